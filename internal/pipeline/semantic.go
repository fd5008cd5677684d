package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"articulator/internal"
	"articulator/internal/config"
	"articulator/internal/course"
	"articulator/internal/logging"
	"articulator/internal/util"
)

// Judge is the semantic validation collaborator.
type Judge interface {
	Judge(ctx context.Context, req internal.JudgeRequest) (internal.Judgment, error)
}

// JudgmentCache keeps judgments across runs, keyed by EntryKey.
type JudgmentCache interface {
	GetJudgment(key string) (internal.Judgment, bool, error)
	PutJudgment(key string, j internal.Judgment) error
}

type ValidatorOptions struct {
	BatchSize           int
	BatchDelay          time.Duration
	CallTimeout         time.Duration
	NameSimilarityFloor float64
}

// Validator runs the heuristic tier on every entry and, when a judge is
// configured, the semantic tier on every entry with both sides present.
type Validator struct {
	profile *config.Profile
	judge   Judge
	cache   JudgmentCache
	opts    ValidatorOptions
	logger  *zap.Logger
}

func NewValidator(profile *config.Profile, judge Judge, cache JudgmentCache, opts ValidatorOptions, logger *zap.Logger) *Validator {
	if opts.BatchSize < 1 {
		opts.BatchSize = 5
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 20 * time.Second
	}
	return &Validator{profile: profile, judge: judge, cache: cache, opts: opts, logger: logging.OrNop(logger)}
}

type ValidationResult struct {
	Accepted    []internal.ArticulationEntry
	Rejected    []internal.Rejection
	Repaired    int
	Suspicious  int
	Unvalidated int
}

type checkedEntry struct {
	entry    internal.ArticulationEntry
	issues   []string
	repaired bool
}

// Validate never fails: every entry ends up accepted, rejected, or kept
// unvalidated.
func (v *Validator) Validate(ctx context.Context, entries []internal.ArticulationEntry) ValidationResult {
	var res ValidationResult
	checked := make([]checkedEntry, 0, len(entries))

	for _, e := range entries {
		fixed, issues := HeuristicRepair(e, v.profile, v.opts.NameSimilarityFloor)
		c := checkedEntry{entry: fixed}
		drop := false
		for _, is := range issues {
			fixed = fixed.WithNote(is.String())
			switch {
			case is.Kind == IssueEmptyCodes:
				drop = true
			case is.Repaired:
				c.repaired = true
			default:
				fixed.Suspicious = true
			}
			c.issues = append(c.issues, is.String())
			v.logger.Debug("parse ambiguity", zap.Int("row", e.Row), zap.String("issue", is.String()))
		}
		c.entry = fixed
		if drop {
			res.Rejected = append(res.Rejected, internal.Rejection{Entry: fixed, Reasons: c.issues})
			continue
		}
		checked = append(checked, c)
	}

	judgments := v.judgeAll(ctx, checked)
	groups := groupRelationships(checked, judgments)

	for _, c := range checked {
		e := c.entry
		j, judged := judgments[EntryKey(e)]
		needsJudge := v.judge != nil && e.SourceCode != "" && e.DestCode != ""

		switch {
		case needsJudge && !judged:
			res.Unvalidated++
			e = e.WithNote("unvalidated: semantic check unavailable")
		case judged:
			if !j.CoursesRelated {
				reasons := append(append([]string(nil), c.issues...), "semantic: courses not related: "+j.Explanation)
				res.Rejected = append(res.Rejected, internal.Rejection{Entry: e, Reasons: reasons})
				continue
			}
			var applied bool
			e, applied = applyJudgment(e, j)
			if applied {
				c.repaired = true
			}
			if rel, ok := groups[e.Row]; ok && e.GroupSize != nil && e.Relationship != rel {
				e.Relationship = rel
				e = e.WithNote("relationship set to " + string(rel) + " by semantic check")
			}
		}

		if c.repaired {
			res.Repaired++
		}
		if e.Suspicious {
			res.Suspicious++
		}
		res.Accepted = append(res.Accepted, e)
	}
	return res
}

// EntryKey identifies an entry for judge deduplication and caching.
func EntryKey(e internal.ArticulationEntry) string {
	return strings.Join([]string{
		util.NormalizeCode(e.SourceCode),
		strings.ToLower(util.NormalizeSpaces(e.SourceName)),
		util.NormalizeCode(e.DestCode),
		strings.ToLower(util.NormalizeSpaces(e.DestName)),
	}, "|")
}

// judgeAll calls the judge at most once per distinct entry, in batches of
// BatchSize with BatchDelay between batches. Failed calls are absent from
// the returned map.
func (v *Validator) judgeAll(ctx context.Context, checked []checkedEntry) map[string]internal.Judgment {
	out := map[string]internal.Judgment{}
	if v.judge == nil {
		return out
	}

	var keys []string
	requests := map[string]internal.JudgeRequest{}
	for _, c := range checked {
		e := c.entry
		if e.SourceCode == "" || e.DestCode == "" {
			continue
		}
		key := EntryKey(e)
		if _, dup := requests[key]; dup {
			continue
		}
		if v.cache != nil {
			if j, ok, err := v.cache.GetJudgment(key); err == nil && ok {
				out[key] = j
				requests[key] = internal.JudgeRequest{}
				continue
			}
		}
		requests[key] = internal.JudgeRequest{
			SourceCode:  e.SourceCode,
			SourceName:  e.SourceName,
			SourceUnits: e.SourceUnits,
			DestCode:    e.DestCode,
			DestName:    e.DestName,
			DestUnits:   e.DestUnits,
			Issues:      c.issues,
		}
		keys = append(keys, key)
	}

	for start := 0; start < len(keys); start += v.opts.BatchSize {
		if start > 0 && v.opts.BatchDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(v.opts.BatchDelay):
			}
		}
		if ctx.Err() != nil {
			v.logger.Warn("semantic validation stopped", zap.Int("remaining", len(keys)-start), zap.Error(ctx.Err()))
			break
		}

		end := start + v.opts.BatchSize
		if end > len(keys) {
			end = len(keys)
		}
		batch := keys[start:end]
		results := make([]*internal.Judgment, len(batch))

		var g errgroup.Group
		g.SetLimit(v.opts.BatchSize)
		for i, key := range batch {
			g.Go(func() error {
				callCtx, cancel := context.WithTimeout(ctx, v.opts.CallTimeout)
				defer cancel()
				j, err := v.judge.Judge(callCtx, requests[key])
				if err != nil {
					v.logger.Warn("semantic judge failed", zap.String("entry", key), zap.Error(err))
					return nil
				}
				results[i] = &j
				return nil
			})
		}
		_ = g.Wait()

		for i, key := range batch {
			if results[i] == nil {
				continue
			}
			out[key] = *results[i]
			if v.cache != nil {
				if err := v.cache.PutJudgment(key, *results[i]); err != nil {
					v.logger.Warn("judgment cache write failed", zap.Error(err))
				}
			}
		}
	}
	return out
}

// applyJudgment applies a swap and any corrections that pass the same
// checks extracted fields pass. Corrections describe the entry after the
// swap.
func applyJudgment(e internal.ArticulationEntry, j internal.Judgment) (internal.ArticulationEntry, bool) {
	applied := false
	if j.ShouldSwap {
		e = e.Swapped().WithNote("swapped by semantic check")
		applied = true
	}

	if code := correctedCode(j.CorrectedSourceCode); code != "" && code != e.SourceCode {
		e.SourceCode = code
		applied = true
	}
	if code := correctedCode(j.CorrectedDestCode); code != "" && code != e.DestCode {
		e.DestCode = code
		applied = true
	}
	if name := util.NormalizeSpaces(j.CorrectedSourceName); course.IsValidName(name) && name != e.SourceName {
		e.SourceName = name
		applied = true
	}
	if name := util.NormalizeSpaces(j.CorrectedDestName); course.IsValidName(name) && name != e.DestName {
		e.DestName = name
		applied = true
	}

	if !j.Valid {
		e.Suspicious = true
		e = e.WithNote(fmt.Sprintf("semantic: judged invalid: %s", j.Explanation))
	}
	return e, applied
}

func correctedCode(code string) string {
	codes := course.FindCourseCodes(strings.ToUpper(code), true)
	if len(codes) != 1 {
		return ""
	}
	return codes[0]
}

// groupRelationships returns, per row, the relationship every judged group
// member agreed on. Rows whose members disagree are left out.
func groupRelationships(checked []checkedEntry, judgments map[string]internal.Judgment) map[int]internal.Relationship {
	agreed := map[int]internal.Relationship{}
	conflict := map[int]bool{}
	for _, c := range checked {
		e := c.entry
		if e.GroupSize == nil || *e.GroupSize < 2 {
			continue
		}
		j, ok := judgments[EntryKey(e)]
		if !ok {
			continue
		}
		rel := internal.Relationship(strings.ToUpper(string(j.RelationshipType)))
		if rel != internal.RelationshipAnd && rel != internal.RelationshipOr {
			continue
		}
		if prev, seen := agreed[e.Row]; seen && prev != rel {
			conflict[e.Row] = true
		}
		agreed[e.Row] = rel
	}
	for row := range conflict {
		delete(agreed, row)
	}
	return agreed
}
