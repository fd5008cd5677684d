// Package course recognizes course codes and course names in free text.
package course

import (
	"regexp"
	"strings"
)

var (
	strictCodePattern  = regexp.MustCompile(`\b([A-Z]{2,})\s?([A-Z]?\d{1,4}[A-Z]?|XII|XI|X|IX|VIII|VII|VI|V|IV|III|II|I)\b`)
	lenientCodePattern = regexp.MustCompile(`(?i)\b([A-Z][A-Z&]{1,9})\s?-?\s?([A-Z]?\d{1,4}[A-Z]{0,3})\b`)
	romanPattern       = regexp.MustCompile(`^(XII|XI|X|IX|VIII|VII|VI|V|IV|III|II|I)$`)
	yearRangeSuffix    = regexp.MustCompile(`^\s?[-\x{2013}/]\s?(19|20)?\d{2}\b`)
)

// Words that look like a subject but precede a number in ordinary prose.
var deniedSubjects = map[string]struct{}{
	"UNIT": {}, "UNITS": {}, "CREDIT": {}, "CREDITS": {}, "HOUR": {}, "HOURS": {}, "HR": {}, "HRS": {},
	"AND": {}, "OR": {}, "THE": {}, "OF": {}, "TO": {}, "IN": {}, "FOR": {}, "WITH": {}, "PAGE": {},
}

// Longer subjects followed by a roman numeral are usually upper-cased titles.
// A roman numeral must also be separated from its subject by a space, or
// "XII" would read as subject XI, number I.
const maxRomanSubjectLen = 5

// Span is one recognized course code and its byte offsets in the text.
type Span struct {
	Code  string
	Start int
	End   int
}

// FindCourseCodes returns canonical "SUBJECT NUMBER" codes in order of first
// appearance without duplicates.
func FindCourseCodes(text string, strict bool) []string {
	spans := FindCodeSpans(text, strict)
	out := make([]string, 0, len(spans))
	seen := map[string]struct{}{}
	for _, s := range spans {
		if _, ok := seen[s.Code]; ok {
			continue
		}
		seen[s.Code] = struct{}{}
		out = append(out, s.Code)
	}
	return out
}

// FindCodeSpans returns every code occurrence, duplicates included.
func FindCodeSpans(text string, strict bool) []Span {
	pattern := strictCodePattern
	if !strict {
		pattern = lenientCodePattern
	}

	var out []Span
	for _, m := range pattern.FindAllStringSubmatchIndex(text, -1) {
		subject := strings.ToUpper(text[m[2]:m[3]])
		number := strings.ToUpper(text[m[4]:m[5]])
		if _, denied := deniedSubjects[subject]; denied {
			continue
		}
		// "College 2023-2024" is an academic year, not a course.
		if IsYear(number) && yearRangeSuffix.MatchString(text[m[1]:]) {
			continue
		}
		if strict && romanPattern.MatchString(number) && (len(subject) > maxRomanSubjectLen || m[3] == m[4]) {
			continue
		}
		out = append(out, Span{Code: subject + " " + number, Start: m[0], End: m[1]})
	}
	return out
}

// FindCodes tries strict recognition first and falls back to lenient.
func FindCodes(text string) []string {
	if codes := FindCourseCodes(text, true); len(codes) > 0 {
		return codes
	}
	return FindCourseCodes(text, false)
}

// FindSpans is FindCodes for span results.
func FindSpans(text string) []Span {
	if spans := FindCodeSpans(text, true); len(spans) > 0 {
		return spans
	}
	return FindCodeSpans(text, false)
}

// Subject returns the subject part of a canonical code.
func Subject(code string) string {
	if idx := strings.IndexByte(code, ' '); idx > 0 {
		return code[:idx]
	}
	return code
}

// IsBareNumber reports whether a code field holds only a number, the usual
// result of a units value parsed into the code column.
func IsBareNumber(code string) bool {
	code = strings.TrimSpace(code)
	if code == "" {
		return false
	}
	dot := false
	for _, r := range code {
		switch {
		case r >= '0' && r <= '9':
		case r == '.' && !dot:
			dot = true
		default:
			return false
		}
	}
	return true
}

// IsYear reports whether number is a four digit 19xx or 20xx year.
func IsYear(number string) bool {
	if len(number) != 4 || !(strings.HasPrefix(number, "19") || strings.HasPrefix(number, "20")) {
		return false
	}
	for _, r := range number {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// IsRomanNumeral reports whether s is a bare roman numeral I..XII.
func IsRomanNumeral(s string) bool {
	return romanPattern.MatchString(strings.TrimSpace(s))
}
