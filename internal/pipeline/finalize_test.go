package pipeline

import (
	"strings"
	"testing"

	"articulator/internal"
	"articulator/internal/util"
)

func TestWriteCSVQuoting(t *testing.T) {
	batch := internal.ArticulationBatch{
		SourceInstitution: "DAC",
		DestInstitution:   "UCB",
		Entries: []internal.ArticulationEntry{
			{
				SourceCode: "ENGL 1A", SourceName: `Reading, Writing and "Research"`, SourceUnits: "5",
				DestCode: "ENGLISH R1A", DestName: "Reading and Composition",
				Relationship: internal.RelationshipOr, GroupIndex: util.IntPtr(1), GroupSize: util.IntPtr(2),
			},
			{SourceCode: "HIST 7A", SourceName: "Western Civilization", SourceUnits: "3", Relationship: internal.RelationshipNone},
		},
	}

	var sb strings.Builder
	if err := WriteCSV(&sb, batch); err != nil {
		t.Fatalf("write: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(sb.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines=%q", lines)
	}
	if lines[0] != "community_college_code,course_code,course_name,units,university_code,equivalent_course_code,equivalent_course_name,relationship_type,group_index,group_size" {
		t.Fatalf("header=%s", lines[0])
	}
	if want := `DAC,ENGL 1A,"Reading, Writing and ""Research""",5,UCB,ENGLISH R1A,"Reading and Composition",OR,1,2`; lines[1] != want {
		t.Fatalf("got  %s\nwant %s", lines[1], want)
	}
	if want := `DAC,HIST 7A,"Western Civilization",3,UCB,,"",,,`; lines[2] != want {
		t.Fatalf("got  %s\nwant %s", lines[2], want)
	}
}

func TestDedupeKeepsFirstPerSourceCode(t *testing.T) {
	entries := []internal.ArticulationEntry{
		{SourceCode: "MATH 1A", DestCode: "MATH 51", Row: 1},
		{SourceCode: "math  1a", DestCode: "MATH 52", Row: 2},
		{DestCode: "COMPSCI 70", Row: 3},
		{DestCode: "COMPSCI 70", Row: 4},
		{SourceCode: "MATH 1B", DestCode: "MATH 52", Row: 5},
	}
	got := Dedupe(entries)
	if len(got) != 3 {
		t.Fatalf("got %d entries: %+v", len(got), got)
	}
	if got[0].Row != 1 || got[1].Row != 3 || got[2].Row != 5 {
		t.Fatalf("order=%+v", got)
	}
}

func grouped(src, dst string, row, index, size int) internal.ArticulationEntry {
	return internal.ArticulationEntry{
		SourceCode: src, DestCode: dst, Row: row,
		Relationship: internal.RelationshipOr, GroupIndex: util.IntPtr(index), GroupSize: util.IntPtr(size),
	}
}

func TestDedupeDissolvesGroupLeftWithOneMember(t *testing.T) {
	got := Dedupe([]internal.ArticulationEntry{
		grouped("EWRT 1A", "ENGLISH 1A", 2, 1, 2),
		grouped("EWRT 1A", "ENGLISH 1B", 2, 2, 2),
	})
	if len(got) != 1 {
		t.Fatalf("got %+v", got)
	}
	e := got[0]
	if e.GroupIndex != nil || e.GroupSize != nil || e.Relationship != internal.RelationshipNone {
		t.Fatalf("group not dissolved: %+v", e)
	}
	if len(e.Notes) != 1 || e.Notes[0] != "group of 2 reduced to 1 by deduplication" {
		t.Fatalf("notes=%q", e.Notes)
	}
}

func TestDedupeRenumbersShrunkGroup(t *testing.T) {
	got := Dedupe([]internal.ArticulationEntry{
		{SourceCode: "ENGL 1B", DestCode: "ENGLISH R1B", Row: 1},
		grouped("ENGL 1A", "ENGLISH R1A", 2, 1, 3),
		grouped("ENGL 1B", "ENGLISH R1A", 2, 2, 3),
		grouped("ENGL 1C", "ENGLISH R1A", 2, 3, 3),
	})
	if len(got) != 3 {
		t.Fatalf("got %+v", got)
	}
	for i, e := range got[1:] {
		if util.DerefInt(e.GroupIndex) != i+1 || util.DerefInt(e.GroupSize) != 2 || e.Relationship != internal.RelationshipOr {
			t.Fatalf("member %d=%+v", i, e)
		}
	}
}

func TestDedupeLeavesIntactGroups(t *testing.T) {
	entries := []internal.ArticulationEntry{
		grouped("ENGL 1A", "ENGLISH R1A", 2, 1, 2),
		grouped("ENGL 1B", "ENGLISH R1A", 2, 2, 2),
	}
	got := Dedupe(entries)
	if len(got) != 2 || len(got[0].Notes) != 0 || util.DerefInt(got[1].GroupSize) != 2 {
		t.Fatalf("got %+v", got)
	}
}
