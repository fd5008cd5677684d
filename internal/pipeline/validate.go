package pipeline

import (
	"fmt"
	"regexp"

	"articulator/internal"
	"articulator/internal/config"
	"articulator/internal/course"
	"articulator/internal/util"
)

type IssueKind string

const (
	IssueBareNumberCode   IssueKind = "bare_number_code"
	IssueSubjectInName    IssueKind = "subject_in_name"
	IssueWrongInstitution IssueKind = "wrong_institution"
	IssueDissimilarNames  IssueKind = "dissimilar_names"
	IssueEmptyCodes       IssueKind = "empty_codes"
)

// Issue is a parse ambiguity found on one entry. Repaired issues were fixed
// in place; the rest mark the entry suspicious.
type Issue struct {
	Kind     IssueKind
	Side     string
	Detail   string
	Repaired bool
}

func (i Issue) String() string {
	state := "unresolved"
	if i.Repaired {
		state = "repaired"
	}
	if i.Side == "" {
		return fmt.Sprintf("%s (%s): %s", i.Kind, state, i.Detail)
	}
	return fmt.Sprintf("%s[%s] (%s): %s", i.Kind, i.Side, state, i.Detail)
}

// minSubjectLen keeps short prefixes like "CS" from flagging ordinary names.
const minSubjectLen = 4

// HeuristicRepair checks one entry without any external call and returns
// the repaired copy with every issue it found.
func HeuristicRepair(e internal.ArticulationEntry, profile *config.Profile, nameFloor float64) (internal.ArticulationEntry, []Issue) {
	var issues []Issue

	e, issues = repairBareNumber(e, "source", issues)
	e, issues = repairBareNumber(e, "dest", issues)
	e, issues = repairSubjectInName(e, "source", issues)
	e, issues = repairSubjectInName(e, "dest", issues)

	if e.SourceCode == "" && e.DestCode == "" {
		return e, append(issues, Issue{Kind: IssueEmptyCodes, Detail: "both course codes are empty"})
	}

	e, issues = repairInstitutionSwap(e, profile, issues)

	if e.SourceName != "" && e.DestName != "" && nameFloor > 0 {
		if sim := util.NameSimilarity(e.SourceName, e.DestName); sim < nameFloor {
			issues = append(issues, Issue{
				Kind:   IssueDissimilarNames,
				Detail: fmt.Sprintf("%q vs %q similarity %.2f", e.SourceName, e.DestName, sim),
			})
		}
	}
	return e, issues
}

type sideFields struct {
	code, name, units *string
}

func fieldsOf(e *internal.ArticulationEntry, side string) sideFields {
	if side == "source" {
		return sideFields{&e.SourceCode, &e.SourceName, &e.SourceUnits}
	}
	return sideFields{&e.DestCode, &e.DestName, &e.DestUnits}
}

// repairBareNumber handles a units value parsed into the code column by
// re-reading the code from the name.
func repairBareNumber(e internal.ArticulationEntry, side string, issues []Issue) (internal.ArticulationEntry, []Issue) {
	f := fieldsOf(&e, side)
	if !course.IsBareNumber(*f.code) {
		return e, issues
	}

	bad := *f.code
	codes := course.FindCodes(*f.name)
	if len(codes) == 0 {
		*f.code = ""
		return e, append(issues, Issue{Kind: IssueBareNumberCode, Side: side, Detail: fmt.Sprintf("code %q is a number and the name has no code", bad)})
	}

	*f.code = codes[0]
	*f.name = course.CleanName(*f.name, codes[0])
	if *f.units == "" || *f.units == util.DefaultUnits {
		if v := util.ExtractUnits(bad + " units"); v != util.DefaultUnits {
			*f.units = v
		}
	}
	return e, append(issues, Issue{Kind: IssueBareNumberCode, Side: side, Detail: fmt.Sprintf("code %q replaced by %q", bad, codes[0]), Repaired: true})
}

// repairSubjectInName strips a code that leaked into its own name field.
func repairSubjectInName(e internal.ArticulationEntry, side string, issues []Issue) (internal.ArticulationEntry, []Issue) {
	f := fieldsOf(&e, side)
	subject := course.Subject(*f.code)
	if len(subject) < minSubjectLen || *f.name == "" {
		return e, issues
	}
	if !regexp.MustCompile(`\b` + regexp.QuoteMeta(subject) + `\b`).MatchString(*f.name) {
		return e, issues
	}

	before := *f.name
	cleaned := course.CleanName(before, *f.code)
	if cleaned == "" || cleaned == before {
		return e, append(issues, Issue{Kind: IssueSubjectInName, Side: side, Detail: fmt.Sprintf("name %q contains subject %s", before, subject)})
	}
	*f.name = cleaned
	return e, append(issues, Issue{Kind: IssueSubjectInName, Side: side, Detail: fmt.Sprintf("name %q cleaned to %q", before, cleaned), Repaired: true})
}

// repairInstitutionSwap swaps an entry whose codes carry the other
// institution's conventions, unless either side contradicts it.
func repairInstitutionSwap(e internal.ArticulationEntry, profile *config.Profile, issues []Issue) (internal.ArticulationEntry, []Issue) {
	srcIsSrc, srcIsDst := exclusiveMatch(e.SourceCode, profile)
	dstIsSrc, dstIsDst := exclusiveMatch(e.DestCode, profile)

	evidence := srcIsDst || dstIsSrc
	contradiction := srcIsSrc || dstIsDst
	switch {
	case !evidence:
		return e, issues
	case contradiction:
		return e, append(issues, Issue{Kind: IssueWrongInstitution, Detail: fmt.Sprintf("%q / %q carry mixed institution conventions", e.SourceCode, e.DestCode)})
	default:
		swapped := e.Swapped()
		return swapped, append(issues, Issue{Kind: IssueWrongInstitution, Detail: fmt.Sprintf("swapped %q and %q", e.SourceCode, e.DestCode), Repaired: true})
	}
}

func exclusiveMatch(code string, profile *config.Profile) (bool, bool) {
	if code == "" {
		return false, false
	}
	s := profile.Source.MatchesCode(code)
	d := profile.Dest.MatchesCode(code)
	return s && !d, d && !s
}
