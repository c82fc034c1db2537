package memory

import (
	"context"
	"sync"

	"distributed-nlm/internal/domain"
)

// LeaderElection makes a single process its own leader. Campaign returns
// immediately; the leadership channel closes on Resign.
type LeaderElection struct {
	mu       sync.Mutex
	isLeader bool
	lost     chan struct{}
}

func NewLeaderElection() *LeaderElection {
	return &LeaderElection{}
}

func (e *LeaderElection) Campaign(ctx context.Context) (<-chan struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.isLeader {
		e.isLeader = true
		e.lost = make(chan struct{})
	}
	return e.lost, nil
}

func (e *LeaderElection) Resign(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.isLeader {
		e.isLeader = false
		close(e.lost)
	}
	return nil
}

func (e *LeaderElection) IsLeader() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isLeader
}

// StaticPeers is a domain.PeerDirectory that always reports the same peers.
type StaticPeers []domain.Peer

func (s StaticPeers) Peers() []domain.Peer {
	return append([]domain.Peer(nil), s...)
}
