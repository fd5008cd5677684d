package sweep

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"articulator/internal"
	"articulator/internal/config"
	"articulator/internal/pipeline"
	"articulator/internal/storage"
)

type stubPages struct {
	html string
	err  error
	urls []string
}

func (s *stubPages) Load(ctx context.Context, url string) (internal.RawDocument, error) {
	s.urls = append(s.urls, url)
	if s.err != nil {
		return internal.RawDocument{}, s.err
	}
	return internal.RawDocument{URL: url, Kind: internal.KindHTML, HTML: s.html}, nil
}

func TestRunCycle(t *testing.T) {
	dir := t.TempDir()
	textPath := filepath.Join(dir, "math.txt")
	require.NoError(t, os.WriteFile(textPath, []byte("MATH 3A Calculus I 4.00units MATH 51 Calculus\n"), 0o644))
	emptyPath := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(emptyPath, []byte("nothing to see here\n"), 0o644))

	db, err := storage.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	defer db.Close()

	cfg := config.Config{
		OutputDir:           filepath.Join(dir, "out"),
		JudgeBatchSize:      5,
		OrientationSample:   10,
		MinSwapVotes:        1,
		NameSimilarityFloor: 0.35,
	}
	profile := config.DefaultProfile()
	profile.Agreements = []config.Agreement{
		{Name: "math file", File: textPath},
		{Name: "english page", URL: "https://assist.example/english"},
		{Name: "empty", File: emptyPath, Kind: "text"},
	}
	pages := &stubPages{html: `<table>
<tr><td>ENGLISH R1A Reading and Composition</td><td>ENGL 1A Composition</td></tr>
</table>`}

	svc := NewService(db, cfg, profile, pipeline.NewService(db, cfg, profile, nil, nil), pages, nil)
	res, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, CycleResult{Agreements: 3, Succeeded: 2, Failed: 1, Entries: 2}, res)
	require.Equal(t, []string{"https://assist.example/english"}, pages.urls)

	csv, err := os.ReadFile(filepath.Join(cfg.OutputDir, "sweep", "math_file.csv"))
	require.NoError(t, err)
	require.True(t, strings.Contains(string(csv), `DAC,MATH 3A,"Calculus I",4,UCB,MATH 51,"Calculus",,,`))

	last, err := db.GetMetadata("sweep.last_cycle")
	require.NoError(t, err)
	require.NotNil(t, last)

	runs, err := db.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 3)
}

func TestRunCycleRequiresAgreements(t *testing.T) {
	svc := NewService(nil, config.Config{}, config.DefaultProfile(), nil, nil, nil)
	_, err := svc.RunCycle(context.Background())
	require.Error(t, err)
}

func TestRunCycleBrowserFailure(t *testing.T) {
	dir := t.TempDir()
	db, err := storage.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	defer db.Close()

	profile := config.DefaultProfile()
	profile.Agreements = []config.Agreement{{Name: "page", URL: "https://assist.example/x"}}
	svc := NewService(db, config.Config{OutputDir: dir}, profile, pipeline.NewService(db, config.Config{}, profile, nil, nil), &stubPages{err: errors.New("chrome crashed")}, nil)

	res, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Failed)
}
