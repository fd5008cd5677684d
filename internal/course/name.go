package course

import (
	"regexp"
	"strings"
	"unicode"

	"articulator/internal/util"
)

const (
	maxNameWords = 15
	maxNameChars = 150
)

var (
	labelPattern     = regexp.MustCompile(`(?i)^\s*(course\s+name|course\s+title|title|name|course)\s*:\s*`)
	edgePunctPattern = regexp.MustCompile(`^[\s\-\x{2013}:;,.|/]+|[\s\-\x{2013}:;,|/]+$`)
	connectiveWords  = map[string]struct{}{"and": {}, "or": {}, "&": {}, "plus": {}, "with": {}}
	stopWords        = map[string]struct{}{
		"and": {}, "or": {}, "the": {}, "of": {}, "a": {}, "an": {}, "to": {}, "in": {}, "for": {},
		"with": {}, "no": {}, "none": {}, "units": {}, "unit": {}, "course": {}, "courses": {},
	}
)

// CleanName extracts the course title that accompanies knownCode in text.
// It returns "" when nothing usable remains.
func CleanName(text, knownCode string) string {
	text = util.NormalizeSpaces(util.CleanEntities(text))
	if text == "" {
		return ""
	}

	start, end := locateCode(text, knownCode)
	if start < 0 {
		spans := FindSpans(text)
		if len(spans) == 0 {
			return validOrEmpty(cleanSegment(text))
		}
		start, end = spans[0].Start, spans[0].End
	}

	after := text[end:]
	if next := FindCodeSpans(after, true); len(next) > 0 {
		after = after[:next[0].Start]
	}
	if name := cleanSegment(after); IsValidName(name) {
		return name
	}

	// Text before the code belongs to the previous course when there is one.
	before := text[:start]
	if len(FindCodeSpans(before, true)) > 0 {
		return ""
	}
	return validOrEmpty(cleanSegment(before))
}

func validOrEmpty(name string) string {
	if IsValidName(name) {
		return name
	}
	return ""
}

// locateCode finds knownCode in text, tolerating case and spacing
// differences such as "math3a" for "MATH 3A".
func locateCode(text, knownCode string) (int, int) {
	knownCode = strings.TrimSpace(knownCode)
	if knownCode == "" {
		return -1, -1
	}
	subject, number := Subject(knownCode), ""
	if len(subject) < len(knownCode) {
		number = strings.TrimSpace(knownCode[len(subject):])
	}
	expr := `(?i)\b` + regexp.QuoteMeta(subject) + `\s*-?\s*` + regexp.QuoteMeta(number) + `\b`
	re, err := regexp.Compile(expr)
	if err != nil {
		return -1, -1
	}
	loc := re.FindStringIndex(text)
	if loc == nil {
		return -1, -1
	}
	return loc[0], loc[1]
}

func cleanSegment(segment string) string {
	s := util.StripUnits(segment)
	s = labelPattern.ReplaceAllString(s, "")
	s = edgePunctPattern.ReplaceAllString(s, "")

	words := strings.Fields(s)
	for len(words) > 0 && (IsRomanNumeral(words[0]) || isConnective(words[0])) {
		words = words[1:]
	}
	for len(words) > 0 && isConnective(words[len(words)-1]) {
		words = words[:len(words)-1]
	}
	if len(words) > maxNameWords {
		words = words[:maxNameWords]
	}

	out := strings.Join(words, " ")
	for len(out) > maxNameChars {
		idx := strings.LastIndexByte(out[:maxNameChars], ' ')
		if idx <= 0 {
			out = out[:maxNameChars]
			break
		}
		out = out[:idx]
	}
	return edgePunctPattern.ReplaceAllString(out, "")
}

func isConnective(word string) bool {
	_, ok := connectiveWords[strings.ToLower(strings.Trim(word, ",;"))]
	return ok
}

// IsValidName is the gate every extracted name passes before it is kept.
func IsValidName(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	if _, stop := stopWords[strings.ToLower(s)]; stop {
		return false
	}

	runes := []rune(s)
	letters, punct := 0, 0
	distinct := map[rune]struct{}{}
	for _, r := range runes {
		switch {
		case unicode.IsLetter(r):
			letters++
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			punct++
		}
		if !unicode.IsSpace(r) {
			distinct[unicode.ToLower(r)] = struct{}{}
		}
	}
	if letters < 3 {
		return false
	}
	if punct*2 > len(runes) {
		return false
	}
	return len(distinct) > 1
}
