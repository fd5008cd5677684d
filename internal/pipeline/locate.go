package pipeline

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"articulator/internal"
	"articulator/internal/config"
	"articulator/internal/course"
	"articulator/internal/util"
)

// RowStrategy finds candidate pairings in a document. Implementations must
// not modify the document.
type RowStrategy interface {
	Name() string
	Locate(doc *Document) []internal.CandidateRow
}

// FirstNonEmpty returns the rows of the first strategy that finds any, and
// that strategy's name.
func FirstNonEmpty(doc *Document, strategies ...RowStrategy) ([]internal.CandidateRow, string) {
	for _, s := range strategies {
		if rows := s.Locate(doc); len(rows) > 0 {
			return rows, s.Name()
		}
	}
	return nil, ""
}

type LocateResult struct {
	Rows     []internal.CandidateRow
	Hints    HeaderHints
	Strategy string
}

type Locator struct {
	strategies []RowStrategy
	profile    *config.Profile
}

func NewLocator(profile *config.Profile) *Locator {
	return &Locator{
		strategies: []RowStrategy{assistLayout{}, genericRows{}, textScan{profile: profile}},
		profile:    profile,
	}
}

func (l *Locator) StrategyNames() []string {
	out := make([]string, 0, len(l.strategies))
	for _, s := range l.strategies {
		out = append(out, s.Name())
	}
	return out
}

func (l *Locator) Locate(doc *Document) LocateResult {
	rows, name := FirstNonEmpty(doc, l.strategies...)
	hints, rows := SplitHeader(rows, l.profile)
	return LocateResult{Rows: rows, Hints: hints, Strategy: name}
}

// SplitHeader drops a leading header row and reads side hints from it.
// Rows taken from labeled receiving/sending containers carry their own hint.
func SplitHeader(rows []internal.CandidateRow, profile *config.Profile) (HeaderHints, []internal.CandidateRow) {
	if len(rows) == 0 {
		return HeaderHints{}, rows
	}
	if rows[0].Labeled {
		return HeaderHints{Left: SideDest, Right: SideSource}, rows
	}

	first := rows[0]
	joined := first.Left + " " + first.Right
	if len(headerCodes(joined, profile)) > 0 || !isHeaderText(joined, profile) {
		return HeaderHints{}, rows
	}
	hints := HeaderHints{Left: classifyHeaderCell(first.Left, profile), Right: classifyHeaderCell(first.Right, profile)}
	return hints.complete(), rows[1:]
}

var genericHeaderWords = []string{"university", "college", "receiving", "sending"}

func isHeaderText(text string, profile *config.Profile) bool {
	return util.ContainsAny(text, genericHeaderWords) ||
		util.ContainsAny(text, profile.Source.Keywords()) ||
		util.ContainsAny(text, profile.Dest.Keywords())
}

// headerCodes returns the strict codes of a candidate header row, leaving
// out bare years and institution words followed by a number.
func headerCodes(text string, profile *config.Profile) []string {
	words := headerWords(profile)
	var out []string
	for _, code := range course.FindCourseCodes(text, true) {
		subject := course.Subject(code)
		if course.IsYear(strings.TrimPrefix(code, subject+" ")) {
			continue
		}
		if _, ok := words[strings.ToLower(subject)]; ok {
			continue
		}
		out = append(out, code)
	}
	return out
}

func headerWords(profile *config.Profile) map[string]struct{} {
	words := map[string]struct{}{}
	keywords := append(append(append([]string(nil), genericHeaderWords...), profile.Source.Keywords()...), profile.Dest.Keywords()...)
	for _, k := range keywords {
		for _, w := range strings.Fields(strings.ToLower(k)) {
			words[strings.Trim(w, ",.:")] = struct{}{}
		}
	}
	return words
}

func classifyHeaderCell(text string, profile *config.Profile) Side {
	src := util.ContainsAny(text, profile.Source.Keywords())
	dst := util.ContainsAny(text, profile.Dest.Keywords())
	switch {
	case src && !dst:
		return SideSource
	case dst && !src:
		return SideDest
	default:
		return SideUnknown
	}
}

const (
	receivingSelector  = `[class*="Receiving"], [class*="receiving"]`
	sendingSelector    = `[class*="Sending"], [class*="sending"]`
	genericRowSelector = `tr, [role="row"], [class*="row"], [class*="Row"], [class*="entry"], [class*="Entry"], [class*="item"], [class*="Item"]`
	tableRowSelector   = `tr, [role="row"]`
	cellSelector       = `[role="cell"], [role="gridcell"], [role="columnheader"], [role="rowheader"]`
)

// assistLayout reads the paired receiving/sending containers of the
// articulation page layout. Left is always the receiving side.
type assistLayout struct{}

func (assistLayout) Name() string { return "assist_layout" }

func (assistLayout) Locate(doc *Document) []internal.CandidateRow {
	if doc.Sel == nil {
		return nil
	}

	var out []internal.CandidateRow
	doc.Sel.Find(`[class*="articRow"], [class*="ArticRow"]`).Each(func(_ int, row *goquery.Selection) {
		if row.ParentsFiltered(`[class*="articRow"], [class*="ArticRow"]`).Length() > 0 {
			return
		}
		recv := row.Find(receivingSelector).First()
		send := row.Find(sendingSelector).First()
		if recv.Length() == 0 || send.Length() == 0 {
			return
		}
		out = appendLabeled(out, cellText(recv), cellText(send))
	})
	if len(out) > 0 {
		return out
	}

	recvs := outermost(doc.Sel.Find(receivingSelector), receivingSelector)
	sends := outermost(doc.Sel.Find(sendingSelector), sendingSelector)
	n := len(recvs)
	if len(sends) < n {
		n = len(sends)
	}
	for i := 0; i < n; i++ {
		out = appendLabeled(out, cellText(recvs[i]), cellText(sends[i]))
	}
	return out
}

func appendLabeled(rows []internal.CandidateRow, left, right string) []internal.CandidateRow {
	if left == "" && right == "" {
		return rows
	}
	return append(rows, internal.CandidateRow{Index: len(rows), Left: left, Right: right, Labeled: true})
}

func outermost(sel *goquery.Selection, selector string) []*goquery.Selection {
	var out []*goquery.Selection
	sel.Each(func(_ int, s *goquery.Selection) {
		if s.ParentsFiltered(selector).Length() == 0 {
			out = append(out, s)
		}
	})
	return out
}

// genericRows handles table rows, ARIA rows and row-like class names.
// Only the innermost matching elements are used.
type genericRows struct{}

func (genericRows) Name() string { return "generic_rows" }

func (genericRows) Locate(doc *Document) []internal.CandidateRow {
	if doc.Sel == nil {
		return nil
	}

	var out []internal.CandidateRow
	doc.Sel.Find(genericRowSelector).Each(func(_ int, row *goquery.Selection) {
		nested := genericRowSelector
		if goquery.NodeName(row) == "tr" {
			nested = tableRowSelector
		}
		if row.Find(nested).Length() > 0 {
			return
		}
		cells := rowCells(row)
		if len(cells) < 2 {
			return
		}
		left, right := cells[0], cells[len(cells)-1]
		if left == "" && right == "" {
			return
		}
		// The first row is kept without codes so SplitHeader can inspect it.
		if len(out) > 0 && len(course.FindCodes(left+" "+right)) == 0 {
			return
		}
		out = append(out, internal.CandidateRow{Index: len(out), Left: left, Right: right})
	})
	if len(out) == 1 && len(course.FindCodes(out[0].Left+" "+out[0].Right)) == 0 {
		return nil
	}
	return out
}

func rowCells(row *goquery.Selection) []string {
	cells := row.ChildrenFiltered("td, th")
	if cells.Length() == 0 {
		cells = row.Find(cellSelector)
	}
	if cells.Length() == 0 {
		cells = row.Children()
	}

	out := make([]string, 0, cells.Length())
	cells.Each(func(_ int, c *goquery.Selection) {
		if text := cellText(c); text != "" {
			out = append(out, text)
		}
	})
	return out
}

// textScan works on flattened text lines when no structure is usable.
type textScan struct {
	profile *config.Profile
}

func (textScan) Name() string { return "text_scan" }

func (s textScan) Locate(doc *Document) []internal.CandidateRow {
	var out []internal.CandidateRow
	var pending string
	seenCode := false

	for _, line := range doc.Lines {
		spans := course.FindSpans(line)
		if len(spans) == 0 {
			if !seenCode && len(out) == 0 {
				if left, right, ok := s.splitHeaderLine(line); ok {
					out = append(out, internal.CandidateRow{Index: 0, Left: left, Right: right})
				}
			}
			continue
		}
		seenCode = true

		// Lines with a single group of codes pair with the next such line;
		// a lone one carries no pairing and is dropped.
		left, right, paired := s.splitLine(line, spans)
		switch {
		case paired:
			pending = ""
			out = appendRow(out, left, right)
		case pending != "":
			out = appendRow(out, pending, line)
			pending = ""
		default:
			pending = line
		}
	}

	// A header line with no data rows is not a result.
	if len(out) == 1 && len(course.FindCodes(out[0].Left+" "+out[0].Right)) == 0 {
		return nil
	}
	return out
}

func appendRow(rows []internal.CandidateRow, left, right string) []internal.CandidateRow {
	return append(rows, internal.CandidateRow{Index: len(rows), Left: left, Right: right})
}

// splitLine divides one line into two sides. Consecutive codes joined by a
// connective stay on the same side; any other text between codes starts
// the other side. A line with one group of codes pairs with a
// no-articulation phrase when it has one.
func (s textScan) splitLine(line string, spans []course.Span) (string, string, bool) {
	boundary := -1
	for i := 1; i < len(spans); i++ {
		gap := line[spans[i-1].End:spans[i].Start]
		if !joinsSameSide(gap) {
			boundary = spans[i].Start
			break
		}
	}
	if boundary > 0 {
		return strings.TrimSpace(line[:boundary]), strings.TrimSpace(line[boundary:]), true
	}

	for _, phrase := range s.profile.NoArticulationPhrases {
		idx := util.IndexFold(line, phrase)
		if idx < 0 || phrase == "" {
			continue
		}
		if idx >= spans[len(spans)-1].End {
			return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx:]), true
		}
		if idx+len(phrase) <= spans[0].Start {
			return strings.TrimSpace(line[:idx+len(phrase)]), strings.TrimSpace(line[idx+len(phrase):]), true
		}
	}
	return "", "", false
}

var sideConnectives = []string{"or", "and", "plus", "&", "/", ","}

func joinsSameSide(gap string) bool {
	g := strings.ToLower(strings.TrimSpace(gap))
	if g == "" {
		return true
	}
	for _, c := range sideConnectives {
		if strings.HasSuffix(g, c) && (len(g) == len(c) || !isLetter(g[len(g)-len(c)-1]) || !isLetter(c[0])) {
			return true
		}
	}
	return false
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// splitHeaderLine splits a code-free line naming both institutions at the
// start of the later name.
func (s textScan) splitHeaderLine(line string) (string, string, bool) {
	srcAt := firstKeywordIndex(line, append(s.profile.Source.Keywords(), "sending"))
	dstAt := firstKeywordIndex(line, append(s.profile.Dest.Keywords(), "receiving"))
	if srcAt < 0 || dstAt < 0 || srcAt == dstAt {
		return "", "", false
	}
	cut := srcAt
	if dstAt > srcAt {
		cut = dstAt
	}
	cut = strings.LastIndexAny(line[:cut], " \t")
	if cut <= 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:cut]), strings.TrimSpace(line[cut:]), true
}

func firstKeywordIndex(text string, keywords []string) int {
	best := -1
	for _, k := range keywords {
		if k == "" {
			continue
		}
		if idx := util.IndexFold(text, k); idx >= 0 && (best < 0 || idx < best) {
			best = idx
		}
	}
	return best
}
