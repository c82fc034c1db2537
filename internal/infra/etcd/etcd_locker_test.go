package etcd

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"distributed-nlm/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// unreachableClient returns a client for an endpoint nothing listens on.
// DialTimeout is zero so the client is created without waiting for a
// connection.
func unreachableClient(t *testing.T) *clientv3.Client {
	t.Helper()
	client, err := NewClient(ClientConfig{Endpoints: []string{"127.0.0.1:1"}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEtcdLocker_LockHonorsContextWhenClusterIsDown(t *testing.T) {
	t.Parallel()
	locker := NewEtcdLocker(unreachableClient(t), 5, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	lock, err := locker.Lock(ctx, "/nlm/mutex/files/AB")
	assert.Nil(t, lock)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMutexNotAcquired)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestEtcdLeaderElection_CampaignHonorsContextWhenClusterIsDown(t *testing.T) {
	t.Parallel()
	election := NewEtcdLeaderElectionManager(unreachableClient(t), "/nlm/leader", "node-1", 5*time.Second, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	lost, err := election.Campaign(ctx)
	assert.Nil(t, lost)
	require.Error(t, err)
	assert.False(t, election.IsLeader())
	assert.Less(t, time.Since(start), 5*time.Second)
}
