package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"distributed-nlm/internal/domain"
)

// DefaultCampaignRetry is the pause after a failed campaign.
const DefaultCampaignRetry = 5 * time.Second

// SchedularService runs background tasks on the elected leader only.
type SchedularService struct {
	leaderManager domain.LeaderElectionManager
	schedular     domain.Schedular
	tasks         []*domain.ScheduledTask
	nodeID        string
	retry         time.Duration
	logger        *slog.Logger
}

func NewSchedularService(leaderManager domain.LeaderElectionManager, schedular domain.Schedular, nodeID string, logger *slog.Logger, tasks ...*domain.ScheduledTask) *SchedularService {
	return &SchedularService{
		leaderManager: leaderManager,
		schedular:     schedular,
		tasks:         tasks,
		nodeID:        nodeID,
		retry:         DefaultCampaignRetry,
		logger:        logger.With("component", "schedular-service", "node_id", nodeID),
	}
}

// Start campaigns for leadership until ctx is done. While this node leads,
// the registered tasks run on the scheduler; losing leadership stops them
// and the node campaigns again.
func (s *SchedularService) Start(ctx context.Context) error {
	s.logger.Info("scheduler service starting")

	for _, task := range s.tasks {
		if err := s.schedular.AddTask(task); err != nil {
			return fmt.Errorf("failed to register task %s: %w", task.Name, err)
		}
	}

	for {
		if ctx.Err() != nil {
			s.logger.Info("scheduler service shutting down")
			return ctx.Err()
		}

		s.logger.Debug("attempting to campaign for leadership")
		lostLeadershipCh, err := s.leaderManager.Campaign(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error("leadership campaign failed, retrying", "error", err, "retry_in", s.retry)
			select {
			case <-time.After(s.retry):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		s.logger.Info("became the leader, starting the scheduler")
		if err := s.lead(ctx, lostLeadershipCh); err != nil {
			return err
		}
	}
}

// lead runs the scheduler until leadership is lost (nil) or ctx is done.
func (s *SchedularService) lead(ctx context.Context, lost <-chan struct{}) error {
	leadCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.schedular.Start(leadCtx)
	}()

	select {
	case <-lost:
		s.logger.Warn("lost leadership, stopping the scheduler")
		cancel()
		<-done
		return nil
	case <-ctx.Done():
		cancel()
		<-done
		resignCtx, resignCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer resignCancel()
		if err := s.leaderManager.Resign(resignCtx); err != nil {
			s.logger.Error("failed to resign leadership", "error", err)
		}
		return ctx.Err()
	}
}
