package pipeline

import (
	"testing"

	"articulator/internal"
)

func TestDetectArticulationPage(t *testing.T) {
	doc, err := NewDocument(internal.RawDocument{Kind: internal.KindHTML, HTML: headedTable})
	if err != nil {
		t.Fatalf("doc: %v", err)
	}
	got := DetectArticulationPage(doc)
	if !got.IsArticulation || got.Reason != "rules_positive" {
		t.Fatalf("got %+v", got)
	}

	doc, err = NewDocument(internal.RawDocument{Kind: internal.KindText, Text: "Campus parking and dining hours"})
	if err != nil {
		t.Fatalf("doc: %v", err)
	}
	if got := DetectArticulationPage(doc); got.IsArticulation {
		t.Fatalf("got %+v", got)
	}
}
