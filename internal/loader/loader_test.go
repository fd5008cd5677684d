package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"articulator/internal"
)

func TestWaitReadyAfterDOMSettles(t *testing.T) {
	sizes := []int{10, 40, 80, 80, 80, 80, 80, 80, 80, 80}
	calls := 0
	probe := func(ctx context.Context) (readiness, error) {
		i := calls
		if i >= len(sizes) {
			i = len(sizes) - 1
		}
		calls++
		return readiness{RootChildren: 2, DOMSize: sizes[i]}, nil
	}

	err := waitReady(context.Background(), "https://assist.example/agreement", probe, time.Second, 15*time.Millisecond, 5*time.Millisecond)
	require.NoError(t, err)
	require.GreaterOrEqual(t, calls, 4)
}

func TestWaitReadyNeedsRootChildren(t *testing.T) {
	probe := func(ctx context.Context) (readiness, error) {
		return readiness{RootChildren: 0, DOMSize: 12}, nil
	}

	err := waitReady(context.Background(), "https://assist.example/empty", probe, 40*time.Millisecond, 5*time.Millisecond, 5*time.Millisecond)
	var timeout *LoadTimeoutError
	require.True(t, errors.As(err, &timeout))
	require.ErrorIs(t, err, ErrLoadTimeout)
	require.Equal(t, "https://assist.example/empty", timeout.URL)
	require.GreaterOrEqual(t, timeout.Elapsed, 40*time.Millisecond)
}

func TestWaitReadyProbeErrorsKeepWaiting(t *testing.T) {
	calls := 0
	probe := func(ctx context.Context) (readiness, error) {
		calls++
		if calls < 3 {
			return readiness{}, errors.New("execution context was destroyed")
		}
		return readiness{RootChildren: 1, DOMSize: 5}, nil
	}
	err := waitReady(context.Background(), "u", probe, time.Second, 10*time.Millisecond, 5*time.Millisecond)
	require.NoError(t, err)
}

func TestWaitReadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	probe := func(ctx context.Context) (readiness, error) { return readiness{}, nil }
	err := waitReady(ctx, "u", probe, time.Second, time.Millisecond, 5*time.Millisecond)
	require.ErrorIs(t, err, context.Canceled)
}

func TestLoadFileHTMLAndText(t *testing.T) {
	dir := t.TempDir()
	htmlPath := filepath.Join(dir, "agreement.html")
	require.NoError(t, os.WriteFile(htmlPath, []byte("<table><tr><td>MATH 51</td></tr></table>"), 0o644))
	txtPath := filepath.Join(dir, "agreement.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("MATH 3A Calculus I MATH 51 Calculus\n"), 0o644))

	doc, err := LoadFile(htmlPath, "")
	require.NoError(t, err)
	require.Equal(t, internal.KindHTML, doc.Kind)
	require.Contains(t, doc.HTML, "MATH 51")

	doc, err = LoadFile(txtPath, internal.KindText)
	require.NoError(t, err)
	require.Empty(t, doc.HTML)
	require.Contains(t, doc.Text, "MATH 3A")
}

func TestLoadFileMHTML(t *testing.T) {
	snapshot := strings.Join([]string{
		"From: <Saved by Blink>",
		"Subject: ASSIST agreement",
		"MIME-Version: 1.0",
		`Content-Type: multipart/related; type="text/html"; boundary="----MultipartBoundary--abc"`,
		"",
		"------MultipartBoundary--abc",
		"Content-Type: text/html",
		"Content-Transfer-Encoding: quoted-printable",
		"Content-Location: https://assist.example/agreement",
		"",
		"<html><body><div class=3D\"articRow\">ENGL 1A Composition</div></body></html>",
		"",
		"------MultipartBoundary--abc--",
		"",
	}, "\r\n")
	path := filepath.Join(t.TempDir(), "agreement.mhtml")
	require.NoError(t, os.WriteFile(path, []byte(snapshot), 0o644))

	doc, err := LoadFile(path, "")
	require.NoError(t, err)
	require.Equal(t, internal.KindMHTML, doc.Kind)
	require.Contains(t, doc.HTML, `class="articRow"`)
	require.Contains(t, doc.HTML, "ENGL 1A Composition")
}

func TestParseKind(t *testing.T) {
	kind, err := ParseKind("", "page.pdf")
	require.NoError(t, err)
	require.Equal(t, internal.KindPDF, kind)

	kind, err = ParseKind("TXT", "page.html")
	require.NoError(t, err)
	require.Equal(t, internal.KindText, kind)

	_, err = ParseKind("docx", "page.docx")
	require.Error(t, err)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.html"), "")
	require.ErrorIs(t, err, os.ErrNotExist)
}
