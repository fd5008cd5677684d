package pipeline

import (
	"regexp"
	"strings"

	"articulator/internal"
	"articulator/internal/config"
	"articulator/internal/course"
)

// Classifier decides whether a group of courses is an AND or an OR
// requirement from the connectives around them. It is a heuristic: the last
// connective before the final course mention wins.
type Classifier struct {
	Conjunctions []string
	Disjunctions []string
	CommaMeansOr bool
	Default      internal.Relationship

	conj []*regexp.Regexp
	disj []*regexp.Regexp
}

func NewClassifier(r config.Relationships) *Classifier {
	c := &Classifier{
		Conjunctions: r.Conjunctions,
		Disjunctions: r.Disjunctions,
		CommaMeansOr: r.CommaMeansOr,
		Default:      internal.Relationship(strings.ToUpper(r.Default)),
	}
	if c.Default != internal.RelationshipAnd {
		c.Default = internal.RelationshipOr
	}
	c.conj = markerPatterns(c.Conjunctions)
	c.disj = markerPatterns(c.Disjunctions)
	return c
}

func markerPatterns(markers []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(markers))
	for _, m := range markers {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		expr := regexp.QuoteMeta(strings.ToLower(m))
		if isLetter(m[0]) {
			expr = `(?:^|[^a-z])` + expr + `(?:$|[^a-z])`
		}
		out = append(out, regexp.MustCompile(expr))
	}
	return out
}

// Classify returns the relationship of n courses mentioned in text.
func (c *Classifier) Classify(text string, n int) internal.Relationship {
	if n <= 1 {
		return internal.RelationshipNone
	}

	region := text
	if spans := course.FindSpans(text); len(spans) > 1 {
		region = text[spans[0].End:spans[len(spans)-1].Start]
	}
	region = strings.ToLower(region)

	conjAt := lastMatch(region, c.conj)
	disjAt := lastMatch(region, c.disj)
	switch {
	case conjAt < 0 && disjAt < 0:
	case conjAt > disjAt:
		return internal.RelationshipAnd
	default:
		return internal.RelationshipOr
	}

	if c.CommaMeansOr && strings.Contains(region, ",") {
		return internal.RelationshipOr
	}
	return c.Default
}

func lastMatch(text string, patterns []*regexp.Regexp) int {
	last := -1
	for _, re := range patterns {
		locs := re.FindAllStringIndex(text, -1)
		if len(locs) > 0 && locs[len(locs)-1][0] > last {
			last = locs[len(locs)-1][0]
		}
	}
	return last
}
