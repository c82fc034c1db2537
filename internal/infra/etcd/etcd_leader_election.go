package etcd

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"distributed-nlm/internal/domain"
	"distributed-nlm/internal/metrics"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

type etcdLeaderElectionManager struct {
	client      *clientv3.Client
	session     *concurrency.Session
	election    *concurrency.Election
	electionKey string
	isLeader    bool
	mutex       sync.RWMutex
	nodeID      string
	ttl         time.Duration
	logger      *slog.Logger
}

// NewEtcdLeaderElectionManager creates a manager for leader election on
// electionKey (for example "/nlm/leader").
func NewEtcdLeaderElectionManager(client *clientv3.Client, electionKey, nodeID string, ttl time.Duration, logger *slog.Logger) domain.LeaderElectionManager {
	return &etcdLeaderElectionManager{
		client:      client,
		electionKey: electionKey,
		nodeID:      nodeID,
		ttl:         ttl,
		logger:      logger.With("component", "leader-election"),
	}
}

func (m *etcdLeaderElectionManager) Campaign(ctx context.Context) (<-chan struct{}, error) {
	// The session lease expires if this node dies, handing leadership over.
	session, err := newSession(ctx, m.client, int(m.ttl.Seconds()))
	if err != nil {
		return nil, fmt.Errorf("failed to create election session: %w", err)
	}
	election := concurrency.NewElection(session, m.electionKey)

	// Campaign blocks until this node becomes the leader or the context is canceled.
	if err := election.Campaign(ctx, m.nodeID); err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("campaign on %s failed: %w", m.electionKey, err)
	}

	m.logger.Info("successfully campaigned and became the leader", "node_id", m.nodeID)
	m.mutex.Lock()
	m.session = session
	m.election = election
	m.isLeader = true
	m.mutex.Unlock()
	metrics.IsLeader.WithLabelValues(m.nodeID).Set(1)

	// The returned channel is closed if the session expires, meaning leadership is lost.
	return session.Done(), nil
}

func (m *etcdLeaderElectionManager) Resign(ctx context.Context) error {
	m.mutex.Lock()
	election, session := m.election, m.session
	m.isLeader = false
	m.election, m.session = nil, nil
	m.mutex.Unlock()
	metrics.IsLeader.WithLabelValues(m.nodeID).Set(0)

	if election == nil {
		return nil
	}
	m.logger.Info("resigning leadership", "node_id", m.nodeID)
	err := election.Resign(ctx)
	if closeErr := session.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

func (m *etcdLeaderElectionManager) IsLeader() bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.isLeader
}
