package usecase

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"

	"distributed-nlm/internal/domain"
	"distributed-nlm/internal/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CensusTaskName names the census in the scheduler.
const CensusTaskName = "lock-census"

// LockSource is what the census reads: every file with a lock directory and
// the records held on each. *nlm.Coordinator satisfies it.
type LockSource interface {
	Files(ctx context.Context) ([][]byte, error)
	List(ctx context.Context, fileID []byte) ([]domain.HeldLock, error)
}

// CensusReport is the outcome of one census run.
type CensusReport struct {
	Files  int
	Held   int
	Failed int
}

// CensusService counts held lock records. It only reads; records are never
// removed by the census.
type CensusService struct {
	source LockSource
	logger *slog.Logger
	tracer trace.Tracer
}

func NewCensusService(source LockSource, logger *slog.Logger) *CensusService {
	return &CensusService{
		source: source,
		logger: logger.With("component", "census"),
		tracer: otel.Tracer("distributed-nlm-usecase"),
	}
}

// Run walks every file and publishes the totals to the census gauges.
// Files that cannot be listed are skipped and counted in Failed.
func (s *CensusService) Run(ctx context.Context) (CensusReport, error) {
	ctx, span := s.tracer.Start(ctx, "service.census")
	defer span.End()

	files, err := s.source.Files(ctx)
	if err != nil {
		span.RecordError(err)
		return CensusReport{}, fmt.Errorf("failed to enumerate files: %w", err)
	}

	report := CensusReport{Files: len(files)}
	for _, fileID := range files {
		held, err := s.source.List(ctx, fileID)
		if err != nil {
			report.Failed++
			s.logger.Warn("failed to list locks", "file_id", hex.EncodeToString(fileID), "error", err)
			continue
		}
		report.Held += len(held)
	}

	metrics.CensusFiles.Set(float64(report.Files))
	metrics.HeldLocks.Set(float64(report.Held))
	span.SetAttributes(
		attribute.Int("census.files", report.Files),
		attribute.Int("census.held", report.Held),
		attribute.Int("census.failed", report.Failed),
	)
	s.logger.Info("lock census finished", "files", report.Files, "held", report.Held, "failed", report.Failed)
	return report, nil
}

// Task wraps Run for the scheduler.
func (s *CensusService) Task(schedule string) *domain.ScheduledTask {
	return &domain.ScheduledTask{
		Name:     CensusTaskName,
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			_, err := s.Run(ctx)
			return err
		},
	}
}
