package pipeline

import (
	"articulator/internal"
	"articulator/internal/config"
	"articulator/internal/course"
	"articulator/internal/util"
)

type Side int

const (
	SideUnknown Side = iota
	SideSource
	SideDest
)

// HeaderHints records which column a header row assigned to which
// institution.
type HeaderHints struct {
	Left  Side
	Right Side
}

func (h HeaderHints) complete() HeaderHints {
	switch {
	case h.Left == SideUnknown && h.Right != SideUnknown:
		h.Left = opposite(h.Right)
	case h.Right == SideUnknown && h.Left != SideUnknown:
		h.Right = opposite(h.Left)
	}
	if h.Left == h.Right {
		return HeaderHints{}
	}
	return h
}

func opposite(s Side) Side {
	if s == SideSource {
		return SideDest
	}
	return SideSource
}

// Orientation returns the orientation the hints imply, if any.
func (h HeaderHints) Orientation() (Orientation, bool) {
	switch {
	case h.Left == SideDest && h.Right == SideSource:
		return OrientationConventional, true
	case h.Left == SideSource && h.Right == SideDest:
		return OrientationReversed, true
	default:
		return "", false
	}
}

// Orientation is the single side assignment applied to every row of a
// document. Conventional puts the destination on the left.
type Orientation string

const (
	OrientationConventional Orientation = "conventional"
	OrientationReversed     Orientation = "reversed"
)

// ResolveSides returns the source and destination text of a row.
func ResolveSides(row internal.CandidateRow, o Orientation) (string, string) {
	if o == OrientationReversed {
		return row.Left, row.Right
	}
	return row.Right, row.Left
}

// sideText is one column of a row parsed without deciding which
// institution it belongs to.
type sideText struct {
	Text           string
	Codes          []string
	NoArticulation bool
}

type pairing struct {
	Row   int
	Left  sideText
	Right sideText
}

func parsePairing(row internal.CandidateRow, profile *config.Profile) pairing {
	return pairing{
		Row:   row.Index,
		Left:  parseSide(row.Left, profile),
		Right: parseSide(row.Right, profile),
	}
}

func parseSide(text string, profile *config.Profile) sideText {
	text = util.NormalizeSpaces(text)
	out := sideText{Text: text}
	for _, phrase := range profile.NoArticulationPhrases {
		if idx := util.IndexFold(text, phrase); idx >= 0 && phrase != "" {
			out.NoArticulation = true
			text = text[:idx] + " " + text[idx+len(phrase):]
		}
	}
	out.Codes = course.FindCodes(text)
	if out.NoArticulation && len(out.Codes) == 0 {
		out.Text = ""
	}
	return out
}

// source and dest return the side parses under an orientation.
func (p pairing) source(o Orientation) sideText {
	if o == OrientationReversed {
		return p.Left
	}
	return p.Right
}

func (p pairing) dest(o Orientation) sideText {
	if o == OrientationReversed {
		return p.Right
	}
	return p.Left
}

type OrientationVotes struct {
	Swap int
	Keep int
}

// DecideOrientation fixes one orientation for the whole document. Header
// hints win. Otherwise the conventional layout is assumed and flipped when
// code shapes over the first sample pairings say the columns are reversed.
func DecideOrientation(pairings []pairing, hints HeaderHints, profile *config.Profile, sample, minVotes int) (Orientation, OrientationVotes) {
	if o, ok := hints.Orientation(); ok {
		return o, OrientationVotes{}
	}
	if sample <= 0 || sample > len(pairings) {
		sample = len(pairings)
	}
	if minVotes < 1 {
		minVotes = 1
	}

	var votes OrientationVotes
	for _, p := range pairings[:sample] {
		leftSrc, leftDst := sideEvidence(p.Left.Codes, profile)
		rightSrc, rightDst := sideEvidence(p.Right.Codes, profile)
		swap := leftSrc || rightDst
		keep := rightSrc || leftDst
		switch {
		case swap && !keep:
			votes.Swap++
		case keep && !swap:
			votes.Keep++
		}
	}

	if votes.Swap > votes.Keep && votes.Swap >= minVotes {
		return OrientationReversed, votes
	}
	return OrientationConventional, votes
}

// sideEvidence reports whether codes look exclusively like source or
// exclusively like destination codes.
func sideEvidence(codes []string, profile *config.Profile) (bool, bool) {
	src, dst := false, false
	for _, c := range codes {
		s := profile.Source.MatchesCode(c)
		d := profile.Dest.MatchesCode(c)
		if s && !d {
			src = true
		}
		if d && !s {
			dst = true
		}
	}
	if src && dst {
		return false, false
	}
	return src, dst
}
