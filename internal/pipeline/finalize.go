package pipeline

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"articulator/internal"
	"articulator/internal/util"
)

var csvHeader = []string{
	"community_college_code", "course_code", "course_name", "units",
	"university_code", "equivalent_course_code", "equivalent_course_name",
	"relationship_type", "group_index", "group_size",
}

// Name columns are always quoted.
var quotedColumns = map[int]bool{2: true, 6: true}

// Dedupe keeps the first entry per normalized source code. Entries without
// a source code are keyed by their destination code instead. Groups that
// lose members are renumbered, and a group left with one member is
// dissolved.
func Dedupe(entries []internal.ArticulationEntry) []internal.ArticulationEntry {
	seen := map[string]struct{}{}
	out := make([]internal.ArticulationEntry, 0, len(entries))
	for _, e := range entries {
		key := "src:" + util.NormalizeCode(e.SourceCode)
		if e.SourceCode == "" {
			key = "dst:" + util.NormalizeCode(e.DestCode)
		}
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}
	return reconcileGroups(out)
}

func reconcileGroups(entries []internal.ArticulationEntry) []internal.ArticulationEntry {
	var rows []int
	members := map[int][]int{}
	for i, e := range entries {
		if e.GroupSize == nil {
			continue
		}
		if _, ok := members[e.Row]; !ok {
			rows = append(rows, e.Row)
		}
		members[e.Row] = append(members[e.Row], i)
	}

	for _, row := range rows {
		idx := members[row]
		size := util.DerefInt(entries[idx[0]].GroupSize)
		distinct := distinctGroupIndexes(entries, idx)
		if distinct && len(idx) == size {
			continue
		}
		note := fmt.Sprintf("group of %d reduced to %d by deduplication", size, len(idx))
		for n, i := range idx {
			e := entries[i]
			if distinct && len(idx) > 1 {
				e.GroupIndex, e.GroupSize = util.IntPtr(n+1), util.IntPtr(len(idx))
			} else {
				e.GroupIndex, e.GroupSize = nil, nil
				e.Relationship = internal.RelationshipNone
			}
			entries[i] = e.WithNote(note)
		}
	}
	return entries
}

func distinctGroupIndexes(entries []internal.ArticulationEntry, idx []int) bool {
	seen := map[int]struct{}{}
	for _, i := range idx {
		gi := util.DerefInt(entries[i].GroupIndex)
		if _, dup := seen[gi]; dup {
			return false
		}
		seen[gi] = struct{}{}
	}
	return true
}

// WriteCSV writes a batch in the fixed import column order.
func WriteCSV(w io.Writer, batch internal.ArticulationBatch) error {
	if _, err := io.WriteString(w, strings.Join(csvHeader, ",")+"\n"); err != nil {
		return err
	}
	for _, e := range batch.Entries {
		if _, err := io.WriteString(w, csvLine(CSVRecord(batch, e))+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// CSVRecord renders one entry as CSV fields. Absent values are empty
// strings; a NONE relationship is absent.
func CSVRecord(batch internal.ArticulationBatch, e internal.ArticulationEntry) []string {
	rel := string(e.Relationship)
	if e.Relationship == internal.RelationshipNone {
		rel = ""
	}
	return []string{
		batch.SourceInstitution,
		e.SourceCode,
		e.SourceName,
		e.SourceUnits,
		batch.DestInstitution,
		e.DestCode,
		e.DestName,
		rel,
		optionalInt(e.GroupIndex),
		optionalInt(e.GroupSize),
	}
}

func optionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func csvLine(fields []string) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		if quotedColumns[i] || strings.ContainsAny(f, ",\"\n\r") {
			parts[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
			continue
		}
		parts[i] = f
	}
	return strings.Join(parts, ",")
}

// Finalize deduplicates entries and serializes them.
func Finalize(entries []internal.ArticulationEntry, sourceInst, destInst string) (string, error) {
	batch := internal.ArticulationBatch{
		SourceInstitution: sourceInst,
		DestInstitution:   destInst,
		Entries:           Dedupe(entries),
	}
	var sb strings.Builder
	if err := WriteCSV(&sb, batch); err != nil {
		return "", err
	}
	return sb.String(), nil
}
