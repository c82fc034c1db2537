package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"distributed-nlm/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamespace_SequentialChildren(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ns := NewNamespace()

	require.NoError(t, ns.EnsurePath(ctx, "/nlm"))

	first, err := ns.CreateSequential(ctx, "/nlm/files/AB", "nlm-lock-", []byte("one"))
	require.NoError(t, err)
	second, err := ns.CreateSequential(ctx, "/nlm/files/AB", "nlm-lock-", []byte("two"))
	require.NoError(t, err)

	assert.Equal(t, "/nlm/files/AB/nlm-lock-0000000000", first)
	assert.Equal(t, "/nlm/files/AB/nlm-lock-0000000001", second)

	names, err := ns.Children(ctx, "/nlm/files/AB")
	require.NoError(t, err)
	assert.Equal(t, []string{"nlm-lock-0000000000", "nlm-lock-0000000001"}, names)

	data, err := ns.Get(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), data)

	// Sequence numbers are not reused after a delete.
	require.NoError(t, ns.Delete(ctx, second))
	third, err := ns.CreateSequential(ctx, "/nlm/files/AB", "nlm-lock-", nil)
	require.NoError(t, err)
	assert.Equal(t, "/nlm/files/AB/nlm-lock-0000000002", third)
}

func TestNamespace_MissingNodes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ns := NewNamespace()

	names, err := ns.Children(ctx, "/nlm/files/none")
	require.NoError(t, err)
	assert.Empty(t, names)

	_, err = ns.Get(ctx, "/nlm/files/none")
	assert.ErrorIs(t, err, domain.ErrNodeNotFound)
	assert.ErrorIs(t, ns.Delete(ctx, "/nlm/files/none"), domain.ErrNodeNotFound)
}

func TestNamespace_ChildrenAreDirectOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ns := NewNamespace()

	require.NoError(t, ns.EnsurePath(ctx, "/nlm/files/A/deep"))
	require.NoError(t, ns.EnsurePath(ctx, "/nlm/files/B"))

	names, err := ns.Children(ctx, "/nlm/files")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, names)

	assert.Error(t, ns.Delete(ctx, "/nlm/files/A"), "node with children")
}

func TestLocker_ExcludesConcurrentHolders(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := NewLocker()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lock, err := l.Lock(ctx, "/nlm/mutex/files/AB")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			assert.NoError(t, lock.Unlock(ctx))
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
	assert.Empty(t, l.tokens, "released paths are forgotten")
}

func TestLocker_ContextCancelsAcquire(t *testing.T) {
	t.Parallel()
	l := NewLocker()

	held, err := l.Lock(context.Background(), "/p")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "/p")
	assert.ErrorIs(t, err, domain.ErrMutexNotAcquired)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Other paths are independent.
	other, err := l.Lock(context.Background(), "/q")
	require.NoError(t, err)
	require.NoError(t, other.Unlock(context.Background()))

	require.NoError(t, held.Unlock(context.Background()))
	assert.ErrorIs(t, held.Unlock(context.Background()), ErrNotHeld)
	assert.Empty(t, l.tokens, "an abandoned wait leaves no entry behind")
}

func TestLeaderElection(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := NewLeaderElection()

	lost, err := e.Campaign(ctx)
	require.NoError(t, err)
	assert.True(t, e.IsLeader())

	require.NoError(t, e.Resign(ctx))
	assert.False(t, e.IsLeader())
	select {
	case <-lost:
	default:
		t.Fatal("leadership channel not closed after resign")
	}
}

func TestCoordination_SatisfiesContract(t *testing.T) {
	t.Parallel()
	var _ domain.Coordination = NewCoordination()
	var _ domain.LeaderElectionManager = NewLeaderElection()
	var _ domain.PeerDirectory = StaticPeers{}
}
