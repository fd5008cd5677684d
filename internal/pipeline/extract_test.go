package pipeline

import (
	"testing"

	"articulator/internal"
	"articulator/internal/config"
	"articulator/internal/util"
)

const destGroupTable = `<table>
<tr><th>Receiving: UC Berkeley</th><th>Sending: De Anza College</th></tr>
<tr><td>ENGLISH 1A Composition or ENGLISH 1B Reading</td><td>EWRT 1A Composition</td></tr>
</table>`

func TestExtractDestinationGroup(t *testing.T) {
	x := NewExtractor(config.DefaultProfile(), ExtractOptions{OrientationSample: 10, MinSwapVotes: 1}, nil)
	got, err := x.Extract(htmlDoc(t, destGroupTable))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(got.Entries) != 2 {
		t.Fatalf("entries=%+v", got.Entries)
	}

	wantDest := []string{"ENGLISH 1A", "ENGLISH 1B"}
	wantName := []string{"Composition", "Reading"}
	for i, e := range got.Entries {
		if e.SourceCode != "EWRT 1A" || e.DestCode != wantDest[i] || e.DestName != wantName[i] {
			t.Fatalf("entry %d=%+v", i, e)
		}
		if e.Relationship != internal.RelationshipOr {
			t.Fatalf("entry %d relationship=%s", i, e.Relationship)
		}
		if util.DerefInt(e.GroupIndex) != i+1 || util.DerefInt(e.GroupSize) != 2 {
			t.Fatalf("entry %d group=%v/%v", i, util.DerefInt(e.GroupIndex), util.DerefInt(e.GroupSize))
		}
	}
	if got.RowsSeen != 1 || got.Orientation != OrientationConventional {
		t.Fatalf("rowsSeen=%d orientation=%s", got.RowsSeen, got.Orientation)
	}
}
