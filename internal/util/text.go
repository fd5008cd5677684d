package util

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	reTags       = regexp.MustCompile(`(?s)<[^>]*>`)
	reSpaces     = regexp.MustCompile(`\s+`)
	reNonAllowed = regexp.MustCompile(`[^A-Z0-9\s]`)
	invisible    = strings.NewReplacer("\u00a0", " ", "\u200b", "", "\u200c", "", "\u200d", "", "\ufeff", "", "\u00ad", "")
)

var blockElements = map[string]struct{}{
	"address": {}, "article": {}, "aside": {}, "blockquote": {}, "br": {}, "dd": {}, "div": {},
	"dl": {}, "dt": {}, "fieldset": {}, "figcaption": {}, "figure": {}, "footer": {}, "form": {},
	"h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {}, "header": {}, "hr": {}, "li": {},
	"main": {}, "nav": {}, "ol": {}, "p": {}, "section": {}, "table": {}, "tbody": {}, "td": {},
	"tfoot": {}, "th": {}, "thead": {}, "tr": {}, "ul": {},
}

func NormalizeSpaces(input string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(invisible.Replace(input), " "))
}

// CleanEntities decodes HTML entities left in scraped text, including
// double-escaped ones such as "&amp;amp;".
func CleanEntities(input string) string {
	out := input
	for i := 0; i < 2 && strings.Contains(out, "&"); i++ {
		out = html.UnescapeString(out)
	}
	return invisible.Replace(out)
}

// StripMarkup turns an HTML fragment into one line of plain text.
func StripMarkup(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return NormalizeSpaces(CleanEntities(fragment))
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), &html.Node{Type: html.ElementNode, Data: "body"})
	if err != nil {
		return NormalizeSpaces(CleanEntities(reTags.ReplaceAllString(fragment, " ")))
	}
	var sb strings.Builder
	for _, n := range nodes {
		writeText(&sb, n, false)
	}
	return NormalizeSpaces(CleanEntities(sb.String()))
}

// BlockLines flattens an HTML document into text lines, breaking at block
// level elements. Script and style content is dropped.
func BlockLines(document string) []string {
	doc, err := html.Parse(strings.NewReader(document))
	if err != nil {
		return SplitLines(StripMarkup(document))
	}
	var sb strings.Builder
	writeText(&sb, doc, true)
	return SplitLines(CleanEntities(sb.String()))
}

func writeText(sb *strings.Builder, n *html.Node, breakBlocks bool) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		return
	case html.ElementNode:
		if n.Data == "script" || n.Data == "style" || n.Data == "noscript" || n.Data == "template" {
			return
		}
	}
	_, block := blockElements[n.Data]
	block = block && n.Type == html.ElementNode
	if block {
		sb.WriteString(separator(breakBlocks))
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(sb, c, breakBlocks)
	}
	if block {
		sb.WriteString(separator(breakBlocks))
	}
}

func separator(breakBlocks bool) string {
	if breakBlocks {
		return "\n"
	}
	return " "
}

func SplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(text, "\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = NormalizeSpaces(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// NormalizeCode is the dedup key form of a course code.
func NormalizeCode(input string) string {
	return strings.ToUpper(NormalizeSpaces(input))
}

func NormalizeName(input string) string {
	s := strings.ToUpper(CleanEntities(input))
	s = strings.NewReplacer("&", " AND ", "+", " AND ").Replace(s)
	s = reNonAllowed.ReplaceAllString(s, " ")
	return NormalizeSpaces(s)
}

func Tokenize(input string) []string {
	parts := strings.Split(NormalizeName(input), " ")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if len([]rune(p)) >= 2 {
			out = append(out, p)
		}
	}
	return out
}

func DiceCoefficient(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	pairs := func(s string) []string {
		r := []rune(s)
		if len(r) < 2 {
			return nil
		}
		out := make([]string, 0, len(r)-1)
		for i := 0; i < len(r)-1; i++ {
			out = append(out, string(r[i:i+2]))
		}
		return out
	}

	aPairs := pairs(a)
	bPairs := pairs(b)
	if len(aPairs) == 0 || len(bPairs) == 0 {
		return 0
	}

	bCount := map[string]int{}
	for _, p := range bPairs {
		bCount[p]++
	}
	inter := 0
	for _, p := range aPairs {
		if bCount[p] > 0 {
			inter++
			bCount[p]--
		}
	}

	return float64(2*inter) / float64(len(aPairs)+len(bPairs))
}

// NameSimilarity blends bigram overlap with shared-token overlap.
func NameSimilarity(a, b string) float64 {
	na, nb := NormalizeName(a), NormalizeName(b)
	dice := DiceCoefficient(na, nb)
	at, bt := Tokenize(na), Tokenize(nb)
	if len(at) == 0 || len(bt) == 0 {
		return dice
	}
	set := map[string]struct{}{}
	for _, t := range bt {
		set[t] = struct{}{}
	}
	overlap := 0
	for _, t := range at {
		if _, ok := set[t]; ok {
			overlap++
		}
	}
	shorter := len(at)
	if len(bt) < shorter {
		shorter = len(bt)
	}
	return 0.65*dice + 0.35*float64(overlap)/float64(shorter)
}

func ContainsAny(haystack string, needles []string) bool {
	h := strings.ToLower(haystack)
	for _, n := range needles {
		if n != "" && strings.Contains(h, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func IntPtr(v int) *int { return &v }

func DerefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

// IndexFold is a case-insensitive strings.Index returning a byte offset
// into s.
func IndexFold(s, substr string) int {
	n := len(substr)
	if n == 0 {
		return 0
	}
	for i := 0; i+n <= len(s); i++ {
		if strings.EqualFold(s[i:i+n], substr) {
			return i
		}
	}
	return -1
}
