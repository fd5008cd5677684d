package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"articulator/internal"
	"articulator/internal/config"
	"articulator/internal/logging"
	"articulator/internal/storage"
	"articulator/internal/util"
)

// Summary is the user-visible account of one run.
type Summary struct {
	RowsSeen    int         `json:"rowsSeen"`
	CodesSeen   int         `json:"codesSeen"`
	Extracted   int         `json:"extracted"`
	Accepted    int         `json:"accepted"`
	Rejected    int         `json:"rejected"`
	Repaired    int         `json:"repaired"`
	Suspicious  int         `json:"suspicious"`
	Unvalidated int         `json:"unvalidated"`
	Duplicates  int         `json:"duplicates"`
	Orientation Orientation `json:"orientation"`
	Strategy    string      `json:"strategy"`
}

type RunRequest struct {
	Document          internal.RawDocument
	SourceInstitution string
	DestInstitution   string
	InputRef          string
	Semantic          bool
}

type RunResult struct {
	RunID    int
	TraceID  string
	CSV      string
	Batch    internal.ArticulationBatch
	Rejected []internal.Rejection
	Summary  Summary
}

// Service runs the whole pipeline for one document and records the run
// when a database is configured.
type Service struct {
	db      *storage.DB
	cfg     config.Config
	profile *config.Profile
	judge   Judge
	logger  *zap.Logger
}

func NewService(db *storage.DB, cfg config.Config, profile *config.Profile, judge Judge, logger *zap.Logger) *Service {
	return &Service{db: db, cfg: cfg, profile: profile, judge: judge, logger: logging.OrNop(logger)}
}

func (s *Service) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	start := time.Now()
	traceID := uuid.NewString()
	logger := s.logger.With(zap.String("traceId", traceID), zap.String("input", req.InputRef))

	sourceInst := util.FirstNonEmpty(req.SourceInstitution, s.profile.Source.Code)
	destInst := util.FirstNonEmpty(req.DestInstitution, s.profile.Dest.Code)

	doc, err := NewDocument(req.Document)
	if err != nil {
		return RunResult{}, err
	}

	extractor := NewExtractor(s.profile, ExtractOptions{
		OrientationSample: s.cfg.OrientationSample,
		MinSwapVotes:      s.cfg.MinSwapVotes,
	}, logger)
	extraction, err := extractor.Extract(doc)
	if err != nil {
		var miss *StructuralMissError
		if errors.As(err, &miss) {
			logger.Warn("no articulations found",
				zap.Int("rowsSeen", miss.RowsSeen),
				zap.Int("codesSeen", miss.CodesSeen),
				zap.Float64("pageScore", miss.PageScore),
			)
			s.recordFailure(traceID, sourceInst, destInst, req.InputRef, start, Summary{RowsSeen: miss.RowsSeen, CodesSeen: miss.CodesSeen}, logger)
		}
		return RunResult{}, err
	}

	var judge Judge
	if req.Semantic {
		judge = s.judge
		if judge == nil {
			logger.Warn("semantic validation requested but no judge is configured")
		}
	}
	var cache JudgmentCache
	if s.db != nil && s.cfg.JudgeCache {
		cache = s.db
	}
	validator := NewValidator(s.profile, judge, cache, ValidatorOptions{
		BatchSize:           s.cfg.JudgeBatchSize,
		BatchDelay:          time.Duration(s.cfg.JudgeBatchDelayMs) * time.Millisecond,
		CallTimeout:         time.Duration(s.cfg.JudgeTimeoutMs) * time.Millisecond,
		NameSimilarityFloor: s.cfg.NameSimilarityFloor,
	}, logger)
	validated := validator.Validate(ctx, extraction.Entries)

	batch := internal.ArticulationBatch{
		SourceInstitution: sourceInst,
		DestInstitution:   destInst,
		Entries:           Dedupe(validated.Accepted),
	}
	csvText, err := Finalize(batch.Entries, sourceInst, destInst)
	if err != nil {
		return RunResult{}, err
	}

	summary := Summary{
		RowsSeen:    extraction.RowsSeen,
		CodesSeen:   extraction.CodesSeen,
		Extracted:   len(extraction.Entries),
		Accepted:    len(batch.Entries),
		Rejected:    len(validated.Rejected),
		Repaired:    validated.Repaired,
		Suspicious:  validated.Suspicious,
		Unvalidated: validated.Unvalidated,
		Duplicates:  len(validated.Accepted) - len(batch.Entries),
		Orientation: extraction.Orientation,
		Strategy:    extraction.Strategy,
	}

	result := RunResult{
		TraceID:  traceID,
		CSV:      csvText,
		Batch:    batch,
		Rejected: validated.Rejected,
		Summary:  summary,
	}

	if s.db != nil {
		runID, err := s.db.SaveRun(runRow(traceID, sourceInst, destInst, req.InputRef, "completed", start, summary), batch.Entries, validated.Rejected)
		if err != nil {
			return RunResult{}, err
		}
		result.RunID = runID
	}

	logger.Info("run completed",
		zap.Int("runId", result.RunID),
		zap.String("strategy", summary.Strategy),
		zap.String("orientation", string(summary.Orientation)),
		zap.Int("rowsSeen", summary.RowsSeen),
		zap.Int("accepted", summary.Accepted),
		zap.Int("rejected", summary.Rejected),
		zap.Int("repaired", summary.Repaired),
		zap.Int("unvalidated", summary.Unvalidated),
		zap.Int("duplicates", summary.Duplicates),
	)
	return result, nil
}

func (s *Service) recordFailure(traceID, sourceInst, destInst, inputRef string, start time.Time, summary Summary, logger *zap.Logger) {
	if s.db == nil {
		return
	}
	if _, err := s.db.InsertFailedRun(runRow(traceID, sourceInst, destInst, inputRef, "no_articulations", start, summary)); err != nil {
		logger.Warn("failed to record run", zap.Error(err))
	}
}

func runRow(traceID, sourceInst, destInst, inputRef, status string, start time.Time, summary Summary) internal.RunRow {
	timingsJSON, _ := json.Marshal(map[string]float64{"totalMs": float64(time.Since(start).Milliseconds())})
	countsJSON, _ := json.Marshal(summary)
	return internal.RunRow{
		TraceID:           traceID,
		SourceInstitution: sourceInst,
		DestInstitution:   destInst,
		InputRef:          inputRef,
		Orientation:       string(summary.Orientation),
		Strategy:          summary.Strategy,
		Status:            status,
		TimingsJSON:       string(timingsJSON),
		CountsJSON:        string(countsJSON),
	}
}
