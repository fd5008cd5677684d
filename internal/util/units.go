package util

import (
	"regexp"
	"strconv"
	"strings"
)

// DefaultUnits is reported when a course description carries no unit value.
const DefaultUnits = "3"

var (
	labeledUnitsPattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:units?|credits?|hours?|hrs?)\b`)
	parenUnitsPattern   = regexp.MustCompile(`\(\s*(\d+(?:\.\d+)?)\s*\)`)
	trailingIntPattern  = regexp.MustCompile(`(?:^|\s)(\d{1,2})\s*$`)
)

// ExtractUnits finds the unit value of a single course side. Course codes
// should be removed from text first or their numbers are taken for units.
func ExtractUnits(text string) string {
	line := NormalizeSpaces(text)

	if m := labeledUnitsPattern.FindStringSubmatch(line); len(m) > 1 {
		if v, ok := formatUnits(m[1]); ok {
			return v
		}
	}
	if m := parenUnitsPattern.FindStringSubmatch(line); len(m) > 1 {
		if v, ok := formatUnits(m[1]); ok {
			return v
		}
	}
	if m := trailingIntPattern.FindStringSubmatch(line); len(m) > 1 {
		if n, err := strconv.Atoi(m[1]); err == nil && n >= 1 && n <= 10 {
			return m[1]
		}
	}
	return DefaultUnits
}

// StripUnits removes unit annotations such as "4.00 units" or "(3)".
func StripUnits(text string) string {
	out := labeledUnitsPattern.ReplaceAllString(text, " ")
	out = parenUnitsPattern.ReplaceAllString(out, " ")
	out = strings.NewReplacer("()", " ", "( )", " ").Replace(NormalizeSpaces(out))
	return NormalizeSpaces(out)
}

func formatUnits(token string) (string, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(token), 64)
	if err != nil || v <= 0 {
		return "", false
	}
	return strconv.FormatFloat(v, 'f', -1, 64), true
}
