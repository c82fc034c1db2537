package usecase

import (
	"context"
	"encoding/hex"
	"log/slog"
	"strconv"

	"distributed-nlm/internal/domain"
	"distributed-nlm/internal/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Operation results as they appear in the nlm_lock_operations_total metric.
const (
	ResultGranted     = "granted"
	ResultDenied      = "denied"
	ResultUnavailable = "unavailable"
	ResultInvalid     = "invalid"
	ResultError       = "error"
)

// LockService is the entry point protocol front-ends call. It adds tracing,
// metrics and logging around a domain.LockManager.
type LockService struct {
	manager domain.LockManager
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewLockService creates a new LockService instance.
func NewLockService(manager domain.LockManager, logger *slog.Logger) *LockService {
	return &LockService{
		manager: manager,
		logger:  logger.With("component", "lock-service"),
		tracer:  otel.Tracer("distributed-nlm-usecase"),
	}
}

// ResultOf classifies err as one of the Result constants.
func ResultOf(err error) string {
	if err == nil {
		return ResultGranted
	}
	switch domain.KindOf(err) {
	case domain.KindDenied:
		return ResultDenied
	case domain.KindRangeUnavailable:
		return ResultUnavailable
	case domain.KindInvalid:
		return ResultInvalid
	default:
		return ResultError
	}
}

// observe records the outcome of op on span and in metrics. Only
// coordination faults mark the span as failed; denials are normal answers.
func (s *LockService) observe(span trace.Span, op string, fileID []byte, err error) {
	result := ResultOf(err)
	metrics.LockOperationsTotal.WithLabelValues(op, result).Inc()
	span.SetAttributes(attribute.String("nlm.result", result))

	if result == ResultError {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lock coordination failed")
		s.logger.Error("lock operation failed", "op", op, "file_id", hex.EncodeToString(fileID), "error", err)
	}
}

func (s *LockService) start(ctx context.Context, op string, fileID []byte, rec *domain.LockRecord) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "service."+op)
	span.SetAttributes(attribute.String("nlm.file_id", hex.EncodeToString(fileID)))
	if rec != nil {
		span.SetAttributes(recordAttributes(*rec)...)
	}
	return ctx, span
}

// recordAttributes describes rec on a span. Offsets and lengths use the
// whole uint64 range, so they are recorded as decimal strings.
func recordAttributes(rec domain.LockRecord) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("nlm.holder", hex.EncodeToString(rec.Holder)),
		attribute.String("nlm.offset", strconv.FormatUint(rec.Offset, 10)),
		attribute.String("nlm.length", strconv.FormatUint(rec.Length, 10)),
	}
}

// Lock grants rec on fileID or fails with a domain.LockError.
func (s *LockService) Lock(ctx context.Context, fileID []byte, rec domain.LockRecord) error {
	ctx, span := s.start(ctx, "lock", fileID, &rec)
	defer span.End()

	err := s.manager.Lock(ctx, fileID, rec)
	s.observe(span, "lock", fileID, err)
	return err
}

// Unlock releases a lock previously granted with the same record.
func (s *LockService) Unlock(ctx context.Context, fileID []byte, rec domain.LockRecord) error {
	ctx, span := s.start(ctx, "unlock", fileID, &rec)
	defer span.End()

	err := s.manager.Unlock(ctx, fileID, rec)
	s.observe(span, "unlock", fileID, err)
	return err
}

// Test checks whether rec would be granted.
func (s *LockService) Test(ctx context.Context, fileID []byte, rec domain.LockRecord) error {
	ctx, span := s.start(ctx, "test", fileID, &rec)
	defer span.End()

	err := s.manager.Test(ctx, fileID, rec)
	s.observe(span, "test", fileID, err)
	return err
}

// List returns the records held on fileID.
func (s *LockService) List(ctx context.Context, fileID []byte) ([]domain.HeldLock, error) {
	ctx, span := s.start(ctx, "list", fileID, nil)
	defer span.End()

	held, err := s.manager.List(ctx, fileID)
	s.observe(span, "list", fileID, err)
	if err == nil {
		span.SetAttributes(attribute.Int("nlm.held_count", len(held)))
	}
	return held, err
}
