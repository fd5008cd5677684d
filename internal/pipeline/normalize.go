package pipeline

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"articulator/internal"
	"articulator/internal/util"
)

// Document is a loaded page prepared for the row strategies. Sel is nil for
// plain text inputs.
type Document struct {
	Raw   internal.RawDocument
	Sel   *goquery.Document
	Lines []string
}

func NewDocument(raw internal.RawDocument) (*Document, error) {
	doc := &Document{Raw: raw}
	if strings.TrimSpace(raw.HTML) != "" {
		sel, err := goquery.NewDocumentFromReader(strings.NewReader(raw.HTML))
		if err != nil {
			return nil, err
		}
		doc.Sel = sel
		doc.Lines = util.BlockLines(raw.HTML)
	}
	if len(doc.Lines) == 0 && strings.TrimSpace(raw.Text) != "" {
		doc.Lines = util.SplitLines(util.CleanEntities(raw.Text))
	}
	return doc, nil
}

// Text is the whole document flattened to newline separated lines.
func (d *Document) Text() string {
	return strings.Join(d.Lines, "\n")
}

func cellText(s *goquery.Selection) string {
	html, err := goquery.OuterHtml(s)
	if err != nil {
		return util.NormalizeSpaces(s.Text())
	}
	return strings.Join(util.BlockLines(html), " ")
}
