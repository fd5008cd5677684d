package loader

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jhillyerd/enmime"
	"github.com/ledongthuc/pdf"

	"articulator/internal"
)

// KindFromPath guesses a document kind from a file extension.
func KindFromPath(path string) internal.DocumentKind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return internal.KindHTML
	case ".mhtml", ".mht", ".eml":
		return internal.KindMHTML
	case ".pdf":
		return internal.KindPDF
	default:
		return internal.KindText
	}
}

// ParseKind maps a --type flag value to a document kind. Empty means guess
// from the path.
func ParseKind(value, path string) (internal.DocumentKind, error) {
	switch internal.DocumentKind(strings.ToLower(strings.TrimSpace(value))) {
	case "":
		return KindFromPath(path), nil
	case internal.KindHTML:
		return internal.KindHTML, nil
	case internal.KindMHTML:
		return internal.KindMHTML, nil
	case internal.KindPDF:
		return internal.KindPDF, nil
	case internal.KindText, "txt":
		return internal.KindText, nil
	default:
		return "", fmt.Errorf("unsupported document type: %s", value)
	}
}

// LoadFile reads a saved agreement page.
func LoadFile(path string, kind internal.DocumentKind) (internal.RawDocument, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return internal.RawDocument{}, err
	}
	if kind == "" {
		kind = KindFromPath(path)
	}

	doc := internal.RawDocument{URL: path, Kind: kind}
	switch kind {
	case internal.KindHTML:
		doc.HTML = string(content)
	case internal.KindMHTML:
		doc.HTML, doc.Text, err = readMHTML(content)
	case internal.KindPDF:
		doc.Text, err = readPDF(content)
	case internal.KindText:
		doc.Text = string(content)
	default:
		return internal.RawDocument{}, fmt.Errorf("unsupported document type: %s", kind)
	}
	if err != nil {
		return internal.RawDocument{}, fmt.Errorf("read %s: %w", path, err)
	}
	return doc, nil
}

// readMHTML returns the page HTML of a browser "save as single file"
// snapshot, falling back to its text part.
func readMHTML(raw []byte) (string, string, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return "", "", err
	}
	if env.HTML == "" {
		for _, part := range env.Inlines {
			if strings.HasPrefix(part.ContentType, "text/html") {
				return string(part.Content), env.Text, nil
			}
		}
	}
	return env.HTML, env.Text, nil
}

func readPDF(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}
