package pipeline

import (
	"go.uber.org/zap"

	"articulator/internal"
	"articulator/internal/config"
	"articulator/internal/course"
	"articulator/internal/logging"
	"articulator/internal/util"
)

type ExtractOptions struct {
	OrientationSample int
	MinSwapVotes      int
}

// Extraction is the outcome of the structural half of a run, before
// validation.
type Extraction struct {
	Entries     []internal.ArticulationEntry
	RowsSeen    int
	CodesSeen   int
	Strategy    string
	Orientation Orientation
	Votes       OrientationVotes
}

type Extractor struct {
	profile    *config.Profile
	locator    *Locator
	classifier *Classifier
	opts       ExtractOptions
	logger     *zap.Logger
}

func NewExtractor(profile *config.Profile, opts ExtractOptions, logger *zap.Logger) *Extractor {
	return &Extractor{
		profile:    profile,
		locator:    NewLocator(profile),
		classifier: NewClassifier(profile.Relationships),
		opts:       opts,
		logger:     logging.OrNop(logger),
	}
}

// Extract locates rows, fixes one orientation for the document and builds
// the entries. It fails only when no pairing is found at all.
func (x *Extractor) Extract(doc *Document) (Extraction, error) {
	located := x.locator.Locate(doc)
	codesSeen := len(course.FindCodes(doc.Text()))

	pairings := make([]pairing, 0, len(located.Rows))
	for _, row := range located.Rows {
		pairings = append(pairings, parsePairing(row, x.profile))
	}

	orientation, votes := DecideOrientation(pairings, located.Hints, x.profile, x.opts.OrientationSample, x.opts.MinSwapVotes)
	x.logger.Debug("orientation decided",
		zap.String("strategy", located.Strategy),
		zap.String("orientation", string(orientation)),
		zap.Int("swapVotes", votes.Swap),
		zap.Int("keepVotes", votes.Keep),
	)

	var entries []internal.ArticulationEntry
	for _, p := range pairings {
		entries = append(entries, x.buildEntries(p, orientation)...)
	}

	out := Extraction{
		Entries:     entries,
		RowsSeen:    len(located.Rows),
		CodesSeen:   codesSeen,
		Strategy:    located.Strategy,
		Orientation: orientation,
		Votes:       votes,
	}
	if len(entries) == 0 {
		return out, &StructuralMissError{
			RowsSeen:   len(located.Rows),
			CodesSeen:  codesSeen,
			Strategies: x.locator.StrategyNames(),
			PageScore:  DetectArticulationPage(doc).Score,
		}
	}
	return out, nil
}

// buildEntries expands one pairing into entries. A side listing several
// courses becomes a group; when both sides list several, the destination
// side is grouped under each source course.
func (x *Extractor) buildEntries(p pairing, o Orientation) []internal.ArticulationEntry {
	src, dst := p.source(o), p.dest(o)
	if len(src.Codes) == 0 && len(dst.Codes) == 0 {
		return nil
	}

	srcCourses := describeSide(src)
	dstCourses := describeSide(dst)

	var groupSide sideText
	groupSize := 0
	switch {
	case len(dst.Codes) > 1:
		groupSide, groupSize = dst, len(dst.Codes)
	case len(src.Codes) > 1:
		groupSide, groupSize = src, len(src.Codes)
	}
	relationship := internal.RelationshipNone
	if groupSize > 1 {
		relationship = x.classifier.Classify(groupSide.Text, groupSize)
	}

	out := make([]internal.ArticulationEntry, 0, len(srcCourses)*len(dstCourses))
	for si, s := range srcCourses {
		for di, d := range dstCourses {
			e := internal.ArticulationEntry{
				SourceCode:   s.Code,
				SourceName:   s.Name,
				SourceUnits:  s.Units,
				DestCode:     d.Code,
				DestName:     d.Name,
				DestUnits:    d.Units,
				Relationship: relationship,
				Row:          p.Row,
			}
			switch {
			case len(dst.Codes) > 1:
				e.GroupIndex, e.GroupSize = util.IntPtr(di+1), util.IntPtr(groupSize)
			case len(src.Codes) > 1:
				e.GroupIndex, e.GroupSize = util.IntPtr(si+1), util.IntPtr(groupSize)
			}
			out = append(out, e)
		}
	}
	return out
}

type courseRef struct {
	Code  string
	Name  string
	Units string
}

// describeSide returns one course per code, or a single empty course for a
// side with no codes.
func describeSide(side sideText) []courseRef {
	if len(side.Codes) == 0 {
		return []courseRef{{}}
	}

	spans := course.FindSpans(side.Text)
	out := make([]courseRef, 0, len(side.Codes))
	for _, code := range side.Codes {
		out = append(out, courseRef{
			Code:  code,
			Name:  course.CleanName(side.Text, code),
			Units: util.ExtractUnits(courseSegment(side.Text, spans, code)),
		})
	}
	return out
}

// courseSegment is the text after a code's first mention up to the next
// code, which is where its units are printed.
func courseSegment(text string, spans []course.Span, code string) string {
	for i, s := range spans {
		if s.Code != code {
			continue
		}
		end := len(text)
		if i+1 < len(spans) {
			end = spans[i+1].Start
		}
		return text[s.End:end]
	}
	return ""
}
