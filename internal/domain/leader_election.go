package domain

import "context"

// LeaderElectionManager elects one nlmd instance to run cluster-wide
// background work such as the lock census.
type LeaderElectionManager interface {
	// Campaign blocks until this node is leader. The returned channel is
	// closed when leadership is lost.
	Campaign(ctx context.Context) (<-chan struct{}, error)
	Resign(ctx context.Context) error
	IsLeader() bool
}
