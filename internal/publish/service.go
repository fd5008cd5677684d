package publish

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"articulator/internal"
	"articulator/internal/config"
	"articulator/internal/logging"
	"articulator/internal/storage"
)

const StatusPublished = "published"

type Service struct {
	db     *storage.DB
	client *Client
	logger *zap.Logger
}

func NewService(db *storage.DB, cfg config.Config, logger *zap.Logger) *Service {
	return &Service{db: db, client: NewClient(cfg), logger: logging.OrNop(logger)}
}

// PublishRun sends the accepted entries of a stored run downstream and
// marks the run published.
func (s *Service) PublishRun(ctx context.Context, runID int) (ImportResult, error) {
	run, err := s.db.MustRun(runID)
	if err != nil {
		return ImportResult{}, err
	}
	entries, err := s.db.ListEntries(runID)
	if err != nil {
		return ImportResult{}, err
	}
	if len(entries) == 0 {
		return ImportResult{}, fmt.Errorf("run %d has no entries to publish", runID)
	}

	batch := internal.ArticulationBatch{
		SourceInstitution: run.SourceInstitution,
		DestInstitution:   run.DestInstitution,
		Entries:           entries,
	}
	result, err := s.client.PublishBatch(ctx, run, batch)
	if err != nil {
		return ImportResult{}, err
	}

	if err := s.db.UpdateRunStatus(runID, StatusPublished); err != nil {
		return ImportResult{}, err
	}
	_ = s.db.SetMetadata("publish.last_run."+strconv.Itoa(runID), time.Now().UTC().Format(time.RFC3339))
	s.logger.Info("run published",
		zap.Int("runId", runID),
		zap.String("traceId", run.TraceID),
		zap.String("batchId", result.BatchID),
		zap.Int("imported", result.Imported),
	)
	return result, nil
}
