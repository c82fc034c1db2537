// internal/scheduler/cron_scheduler.go
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"distributed-nlm/internal/domain"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTaskTimeout bounds a single task run.
const DefaultTaskTimeout = time.Minute

// cronScheduler runs domain.ScheduledTasks on their cron schedules. It can
// be started and stopped repeatedly, which is what happens when this node
// gains and loses leadership.
type cronScheduler struct {
	cron        *cron.Cron
	parser      cron.Parser
	tasks       map[string]cron.EntryID
	mu          sync.Mutex
	taskTimeout time.Duration
	logger      *slog.Logger
	tracer      trace.Tracer
}

// NewCronScheduler creates a scheduler whose schedules carry a seconds field.
// Overlapping runs of the same task are skipped.
func NewCronScheduler(taskTimeout time.Duration, logger *slog.Logger) domain.Schedular {
	if taskTimeout <= 0 {
		taskTimeout = DefaultTaskTimeout
	}
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	return &cronScheduler{
		cron:        c,
		parser:      parser,
		tasks:       make(map[string]cron.EntryID),
		taskTimeout: taskTimeout,
		logger:      logger.With("component", "cron-scheduler"),
		tracer:      otel.Tracer("distributed-nlm-scheduler"),
	}
}

// Start runs the scheduler until ctx is done, then waits for running tasks.
func (s *cronScheduler) Start(ctx context.Context) error {
	s.logger.Info("cron scheduler started")
	s.cron.Start()
	<-ctx.Done()
	s.logger.Info("cron scheduler stopping...")
	s.Stop()
	s.logger.Info("cron scheduler stopped")
	return ctx.Err()
}

// Stop halts scheduling and waits for running tasks to finish.
func (s *cronScheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
}

// AddTask registers task, replacing any task with the same name.
func (s *cronScheduler) AddTask(task *domain.ScheduledTask) error {
	if _, err := s.parser.Parse(task.Schedule); err != nil {
		return fmt.Errorf("invalid schedule %q for task %s: %w", task.Schedule, task.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.tasks[task.Name]; ok {
		s.cron.Remove(entryID)
	}

	wrapper := &cronTaskWrapper{
		task:    task,
		timeout: s.taskTimeout,
		logger:  s.logger.With("task", task.Name),
		tracer:  s.tracer,
	}
	entryID, err := s.cron.AddJob(task.Schedule, wrapper)
	if err != nil {
		s.logger.Error("failed to add task to cron", "task", task.Name, "error", err)
		return err
	}

	s.tasks[task.Name] = entryID
	s.logger.Info("added task to scheduler", "task", task.Name, "schedule", task.Schedule)
	return nil
}

// RemoveTask removes a task from the scheduler.
func (s *cronScheduler) RemoveTask(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.tasks[name]; ok {
		s.cron.Remove(entryID)
		delete(s.tasks, name)
		s.logger.Info("removed task from scheduler", "task", name)
	}
	return nil
}

// cronTaskWrapper adapts a domain.ScheduledTask to cron.Job.
type cronTaskWrapper struct {
	task    *domain.ScheduledTask
	timeout time.Duration
	logger  *slog.Logger
	tracer  trace.Tracer
}

// Run is called by the cron library. Each run gets its own trace.
func (w *cronTaskWrapper) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	ctx, span := w.tracer.Start(ctx, "scheduler.Run",
		trace.WithAttributes(attribute.String("task.name", w.task.Name)))
	defer span.End()

	start := time.Now()
	if err := w.task.Run(ctx); err != nil {
		w.logger.Error("scheduled task failed", "error", err, "duration", time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, "scheduled task failed")
		return
	}
	w.logger.Debug("scheduled task finished", "duration", time.Since(start))
}
