package pipeline

import (
	"strings"

	"articulator/internal/course"
)

type DetectResult struct {
	IsArticulation bool
	Score          float64
	Reason         string
}

var detectKeywords = []string{"articulation", "receiving", "sending", "assist", "transfer", "equivalent", "no course articulated"}

// DetectArticulationPage scores how much a document looks like an
// articulation agreement. It is a diagnostic for runs that find no rows.
func DetectArticulationPage(doc *Document) DetectResult {
	text := strings.ToLower(doc.Text())

	score := 0.0
	for _, kw := range detectKeywords {
		if strings.Contains(text, kw) {
			score += 0.1
		}
	}

	codeHits := len(course.FindCourseCodes(doc.Text(), true))
	if codeHits >= 4 {
		score += 0.4
	} else if codeHits >= 1 {
		score += 0.2
	}

	if doc.Sel != nil {
		if doc.Sel.Find("table, [role=row], [role=table]").Length() > 0 {
			score += 0.15
		}
		if doc.Sel.Find(`[class*="articRow"], [class*="Receiving"], [class*="receiving"]`).Length() > 0 {
			score += 0.25
		}
	}
	if score > 1 {
		score = 1
	}

	isArticulation := score >= 0.45
	reason := "rules_negative"
	if isArticulation {
		reason = "rules_positive"
	}

	return DetectResult{IsArticulation: isArticulation, Score: score, Reason: reason}
}
