package sweep

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"articulator/internal"
	"articulator/internal/config"
	"articulator/internal/loader"
	"articulator/internal/logging"
	"articulator/internal/pipeline"
	"articulator/internal/storage"
)

// PageLoader fetches a live agreement page. loader.Browser implements it.
type PageLoader interface {
	Load(ctx context.Context, url string) (internal.RawDocument, error)
}

type Runner interface {
	Run(ctx context.Context, req pipeline.RunRequest) (pipeline.RunResult, error)
}

type CycleResult struct {
	Agreements int
	Succeeded  int
	Failed     int
	Entries    int
}

// Service re-extracts every agreement in the profile manifest on an
// interval and writes one CSV per agreement.
type Service struct {
	db      *storage.DB
	cfg     config.Config
	profile *config.Profile
	runner  Runner
	pages   PageLoader
	logger  *zap.Logger
}

func NewService(db *storage.DB, cfg config.Config, profile *config.Profile, runner Runner, pages PageLoader, logger *zap.Logger) *Service {
	return &Service{db: db, cfg: cfg, profile: profile, runner: runner, pages: pages, logger: logging.OrNop(logger)}
}

func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(s.cfg.SweepIntervalSec) * time.Second
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	for {
		if _, err := s.RunCycle(ctx); err != nil {
			s.logger.Error("sweep cycle error", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

// RunCycle processes each agreement once. A failing agreement is logged and
// counted; it does not stop the cycle.
func (s *Service) RunCycle(ctx context.Context) (CycleResult, error) {
	res := CycleResult{Agreements: len(s.profile.Agreements)}
	if res.Agreements == 0 {
		return res, errors.New("profile lists no agreements")
	}

	for _, a := range s.profile.Agreements {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		n, err := s.runAgreement(ctx, a)
		if err != nil {
			res.Failed++
			s.logger.Warn("agreement failed", zap.String("agreement", a.Name), zap.Error(err))
			continue
		}
		res.Succeeded++
		res.Entries += n
	}

	_ = s.db.SetMetadata("sweep.last_cycle", time.Now().UTC().Format(time.RFC3339))
	s.logger.Info("sweep cycle done",
		zap.Int("agreements", res.Agreements),
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed),
		zap.Int("entries", res.Entries),
	)
	return res, nil
}

func (s *Service) runAgreement(ctx context.Context, a config.Agreement) (int, error) {
	doc, err := s.load(ctx, a)
	if err != nil {
		return 0, err
	}

	result, err := s.runner.Run(ctx, pipeline.RunRequest{
		Document:          doc,
		SourceInstitution: s.profile.Source.Code,
		DestInstitution:   s.profile.Dest.Code,
		InputRef:          doc.URL,
		Semantic:          s.cfg.SemanticEnabled,
	})
	if err != nil {
		return 0, err
	}

	outputPath := filepath.Join(s.cfg.OutputDir, "sweep", sanitizeName(a.Name)+".csv")
	if err := pipeline.WriteCSVFile(result.Batch, outputPath); err != nil {
		return 0, err
	}
	_ = s.db.SetMetadata("sweep.last_run."+a.Name, fmt.Sprintf("%d", result.RunID))
	return len(result.Batch.Entries), nil
}

func (s *Service) load(ctx context.Context, a config.Agreement) (internal.RawDocument, error) {
	if a.File != "" {
		kind, err := loader.ParseKind(a.Kind, a.File)
		if err != nil {
			return internal.RawDocument{}, err
		}
		return loader.LoadFile(a.File, kind)
	}
	if s.pages == nil {
		return internal.RawDocument{}, fmt.Errorf("agreement %s needs a browser", a.Name)
	}
	return s.pages.Load(ctx, a.URL)
}

func sanitizeName(input string) string {
	repl := strings.NewReplacer("<", "_", ">", "_", ":", "_", "/", "_", "\\", "_", "|", "_", "?", "_", "*", "_", " ", "_")
	out := repl.Replace(strings.TrimSpace(input))
	if len(out) > 120 {
		out = out[:120]
	}
	return out
}
