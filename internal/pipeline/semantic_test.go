package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"articulator/internal"
	"articulator/internal/config"
	"articulator/internal/util"
)

type fakeJudge struct {
	mu          sync.Mutex
	calls       int
	inFlight    int
	maxInFlight int
	delay       time.Duration
	answer      func(req internal.JudgeRequest) (internal.Judgment, error)
}

func (f *fakeJudge) Judge(ctx context.Context, req internal.JudgeRequest) (internal.Judgment, error) {
	f.mu.Lock()
	f.calls++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if f.answer == nil {
		return related(), nil
	}
	return f.answer(req)
}

type memoryCache struct {
	mu    sync.Mutex
	items map[string]internal.Judgment
}

func (m *memoryCache) GetJudgment(key string) (internal.Judgment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.items[key]
	return j, ok, nil
}

func (m *memoryCache) PutJudgment(key string, j internal.Judgment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = map[string]internal.Judgment{}
	}
	m.items[key] = j
	return nil
}

func related() internal.Judgment {
	return internal.Judgment{Valid: true, CoursesRelated: true, CodesMatchNames: true, Explanation: "ok"}
}

func entry(src, srcName, dst, dstName string) internal.ArticulationEntry {
	return internal.ArticulationEntry{
		SourceCode: src, SourceName: srcName, SourceUnits: "4",
		DestCode: dst, DestName: dstName, DestUnits: "4",
		Relationship: internal.RelationshipNone,
	}
}

func hasNote(e internal.ArticulationEntry, note string) bool {
	for _, n := range e.Notes {
		if n == note {
			return true
		}
	}
	return false
}

func newTestValidator(judge Judge, cache JudgmentCache, batch int) *Validator {
	return NewValidator(config.DefaultProfile(), judge, cache, ValidatorOptions{
		BatchSize:           batch,
		CallTimeout:         time.Second,
		NameSimilarityFloor: 0.35,
	}, nil)
}

func TestValidateRejectsUnrelatedCourses(t *testing.T) {
	judge := &fakeJudge{answer: func(req internal.JudgeRequest) (internal.Judgment, error) {
		return internal.Judgment{Valid: false, CoursesRelated: false, Explanation: "calculus is not art history"}, nil
	}}
	v := newTestValidator(judge, nil, 5)

	res := v.Validate(context.Background(), []internal.ArticulationEntry{entry("MATH 3A", "Calculus I", "MATH 51", "Art History")})
	if len(res.Accepted) != 0 || len(res.Rejected) != 1 {
		t.Fatalf("accepted=%d rejected=%d", len(res.Accepted), len(res.Rejected))
	}
	if reasons := strings.Join(res.Rejected[0].Reasons, ";"); !strings.Contains(reasons, "not related") {
		t.Fatalf("reasons=%s", reasons)
	}
}

func TestValidateJudgesEachDistinctEntryOnce(t *testing.T) {
	judge := &fakeJudge{}
	v := newTestValidator(judge, nil, 5)

	entries := []internal.ArticulationEntry{
		entry("MATH 3A", "Calculus", "MATH 51", "Calculus"),
		entry("MATH 3A", "Calculus", "MATH 51", "Calculus"),
		entry("MATH 3B", "Calculus", "MATH 52", "Calculus"),
	}
	res := v.Validate(context.Background(), entries)
	if judge.calls != 2 {
		t.Fatalf("calls=%d", judge.calls)
	}
	if len(res.Accepted) != 3 || res.Unvalidated != 0 {
		t.Fatalf("accepted=%d unvalidated=%d", len(res.Accepted), res.Unvalidated)
	}
}

func TestValidateKeepsEntriesWhenJudgeFails(t *testing.T) {
	judge := &fakeJudge{answer: func(req internal.JudgeRequest) (internal.Judgment, error) {
		if req.SourceCode == "MATH 3B" {
			return internal.Judgment{}, errors.New("quota exceeded")
		}
		return related(), nil
	}}
	v := newTestValidator(judge, nil, 5)

	res := v.Validate(context.Background(), []internal.ArticulationEntry{
		entry("MATH 3A", "Calculus", "MATH 51", "Calculus"),
		entry("MATH 3B", "Calculus", "MATH 52", "Calculus"),
	})
	if len(res.Accepted) != 2 || res.Unvalidated != 1 {
		t.Fatalf("accepted=%d unvalidated=%d", len(res.Accepted), res.Unvalidated)
	}
	if !hasNote(res.Accepted[1], "unvalidated: semantic check unavailable") {
		t.Fatalf("notes=%q", res.Accepted[1].Notes)
	}
	if len(res.Accepted[0].Notes) != 0 {
		t.Fatalf("notes=%q", res.Accepted[0].Notes)
	}
}

func TestValidateSkipsJudgeForOneSidedEntries(t *testing.T) {
	judge := &fakeJudge{}
	v := newTestValidator(judge, nil, 5)

	res := v.Validate(context.Background(), []internal.ArticulationEntry{entry("HIST 7A", "Western Civilization", "", "")})
	if judge.calls != 0 || res.Unvalidated != 0 || len(res.Accepted) != 1 {
		t.Fatalf("calls=%d unvalidated=%d accepted=%d", judge.calls, res.Unvalidated, len(res.Accepted))
	}
}

func TestValidateAppliesSwapAndCorrections(t *testing.T) {
	judge := &fakeJudge{answer: func(req internal.JudgeRequest) (internal.Judgment, error) {
		j := related()
		j.ShouldSwap = true
		j.CorrectedSourceCode = "math 3a"
		j.CorrectedSourceName = "Calculus I"
		j.CorrectedDestCode = "not a course code"
		j.CorrectedDestName = "--"
		return j, nil
	}}
	v := newTestValidator(judge, nil, 5)

	res := v.Validate(context.Background(), []internal.ArticulationEntry{entry("MATH 52", "Calculus", "MATH 51", "Calculus")})
	if len(res.Accepted) != 1 {
		t.Fatalf("accepted=%d", len(res.Accepted))
	}
	got := res.Accepted[0]
	if got.SourceCode != "MATH 3A" || got.SourceName != "Calculus I" {
		t.Fatalf("source=%s %q", got.SourceCode, got.SourceName)
	}
	if got.DestCode != "MATH 52" || got.DestName != "Calculus" {
		t.Fatalf("dest=%s %q", got.DestCode, got.DestName)
	}
	if res.Repaired != 1 || !hasNote(got, "swapped by semantic check") {
		t.Fatalf("repaired=%d notes=%q", res.Repaired, got.Notes)
	}
}

func TestValidateMarksInvalidJudgmentSuspicious(t *testing.T) {
	judge := &fakeJudge{answer: func(req internal.JudgeRequest) (internal.Judgment, error) {
		j := related()
		j.Valid = false
		j.Explanation = "units differ"
		return j, nil
	}}
	v := newTestValidator(judge, nil, 5)

	res := v.Validate(context.Background(), []internal.ArticulationEntry{entry("MATH 3A", "Calculus", "MATH 51", "Calculus")})
	if len(res.Accepted) != 1 || !res.Accepted[0].Suspicious || res.Suspicious != 1 {
		t.Fatalf("result=%+v", res)
	}
}

func TestValidateGroupRelationshipFromJudge(t *testing.T) {
	judge := &fakeJudge{answer: func(req internal.JudgeRequest) (internal.Judgment, error) {
		j := related()
		j.RelationshipType = internal.RelationshipAnd
		return j, nil
	}}
	v := newTestValidator(judge, nil, 5)

	a := entry("PHYS 4A", "Mechanics", "PHYSICS 7A", "Mechanics")
	b := entry("PHYS 4B", "Mechanics", "PHYSICS 7A", "Mechanics")
	for i, e := range []*internal.ArticulationEntry{&a, &b} {
		e.Row = 3
		e.Relationship = internal.RelationshipOr
		e.GroupIndex = util.IntPtr(i + 1)
		e.GroupSize = util.IntPtr(2)
	}

	res := v.Validate(context.Background(), []internal.ArticulationEntry{a, b})
	if len(res.Accepted) != 2 {
		t.Fatalf("accepted=%d", len(res.Accepted))
	}
	for _, e := range res.Accepted {
		if e.Relationship != internal.RelationshipAnd {
			t.Fatalf("relationship=%s", e.Relationship)
		}
	}
}

func TestValidateUsesCache(t *testing.T) {
	cache := &memoryCache{}
	e := entry("MATH 3A", "Calculus", "MATH 51", "Calculus")
	if err := cache.PutJudgment(EntryKey(e), internal.Judgment{CoursesRelated: false, Explanation: "cached"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	judge := &fakeJudge{}
	v := newTestValidator(judge, cache, 5)
	res := v.Validate(context.Background(), []internal.ArticulationEntry{e, entry("MATH 3B", "Calculus", "MATH 52", "Calculus")})

	if judge.calls != 1 || len(res.Rejected) != 1 || len(res.Accepted) != 1 {
		t.Fatalf("calls=%d rejected=%d accepted=%d", judge.calls, len(res.Rejected), len(res.Accepted))
	}
	if _, ok, _ := cache.GetJudgment(EntryKey(res.Accepted[0])); !ok {
		t.Fatalf("judgment was not cached")
	}
}

func TestValidateBoundsConcurrency(t *testing.T) {
	judge := &fakeJudge{delay: 20 * time.Millisecond}
	v := newTestValidator(judge, nil, 2)

	var entries []internal.ArticulationEntry
	for _, code := range []string{"1A", "1B", "1C", "1D", "2A"} {
		entries = append(entries, entry("MATH "+code, "Calculus", "MATH 51", "Calculus"))
	}
	res := v.Validate(context.Background(), entries)
	if len(res.Accepted) != 5 || judge.calls != 5 {
		t.Fatalf("accepted=%d calls=%d", len(res.Accepted), judge.calls)
	}
	if judge.maxInFlight > 2 {
		t.Fatalf("maxInFlight=%d", judge.maxInFlight)
	}
}
