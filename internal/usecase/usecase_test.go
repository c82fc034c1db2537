package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"distributed-nlm/internal/domain"
	"distributed-nlm/internal/infra/codec"
	"distributed-nlm/internal/infra/memory"
	"distributed-nlm/internal/metrics"
	"distributed-nlm/internal/nlm"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newCoordinator(t *testing.T) *nlm.Coordinator {
	t.Helper()
	c := nlm.NewCoordinator(memory.NewCoordination(), codec.JSON{}, discardLogger(), nlm.Options{})
	require.NoError(t, c.Init(context.Background()))
	return c
}

func record(owner string, offset, length uint64) domain.LockRecord {
	return domain.NewLockRecord([]byte(owner), offset, length)
}

func TestRecordAttributes_FullRange(t *testing.T) {
	attrs := recordAttributes(domain.NewLockRecord([]byte{0xab}, math.MaxInt64+1, math.MaxUint64))
	assert.Equal(t, []attribute.KeyValue{
		attribute.String("nlm.holder", "ab"),
		attribute.String("nlm.offset", "9223372036854775808"),
		attribute.String("nlm.length", "18446744073709551615"),
	}, attrs)
}

func TestResultOf(t *testing.T) {
	rec := record("o", 0, 1)
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ResultGranted},
		{"denied", domain.NewDenied("lock", []byte("f"), rec), ResultDenied},
		{"unavailable", domain.NewRangeUnavailable("unlock", []byte("f"), rec), ResultUnavailable},
		{"invalid", domain.NewInvalid("lock", nil, errors.New("bad")), ResultInvalid},
		{"exception", domain.WrapException("lock", []byte("f"), "boom", errors.New("down")), ResultError},
		{"plain error", errors.New("plain"), ResultError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ResultOf(tc.err))
		})
	}
}

func TestLockService_DelegatesAndCounts(t *testing.T) {
	svc := NewLockService(newCoordinator(t), discardLogger())
	ctx := context.Background()
	file := []byte("svc-file")

	granted := testutil.ToFloat64(metrics.LockOperationsTotal.WithLabelValues("lock", ResultGranted))
	denied := testutil.ToFloat64(metrics.LockOperationsTotal.WithLabelValues("lock", ResultDenied))

	require.NoError(t, svc.Lock(ctx, file, record("owner1", 0, 10)))
	assert.ErrorIs(t, svc.Lock(ctx, file, record("owner2", 5, 10)), domain.ErrLockDenied)
	assert.ErrorIs(t, svc.Test(ctx, file, record("owner2", 5, 10)), domain.ErrLockDenied)

	held, err := svc.List(ctx, file)
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.True(t, held[0].Record.Equal(record("owner1", 0, 10)))

	require.NoError(t, svc.Unlock(ctx, file, record("owner1", 0, 10)))
	assert.ErrorIs(t, svc.Unlock(ctx, file, record("owner1", 0, 10)), domain.ErrLockRangeUnavailable)
	require.NoError(t, svc.Test(ctx, file, record("owner2", 5, 10)))

	assert.Equal(t, granted+1, testutil.ToFloat64(metrics.LockOperationsTotal.WithLabelValues("lock", ResultGranted)))
	assert.Equal(t, denied+1, testutil.ToFloat64(metrics.LockOperationsTotal.WithLabelValues("lock", ResultDenied)))
}

func TestLockService_InvalidRequest(t *testing.T) {
	svc := NewLockService(newCoordinator(t), discardLogger())
	err := svc.Lock(context.Background(), nil, record("owner", 0, 1))
	assert.ErrorIs(t, err, domain.ErrInvalidLock)
}

// fakeSource serves Files and List from fixed data.
type fakeSource struct {
	files    [][]byte
	held     map[string]int
	listErr  map[string]error
	filesErr error
}

func (f *fakeSource) Files(ctx context.Context) ([][]byte, error) {
	return f.files, f.filesErr
}

func (f *fakeSource) List(ctx context.Context, fileID []byte) ([]domain.HeldLock, error) {
	if err := f.listErr[string(fileID)]; err != nil {
		return nil, err
	}
	return make([]domain.HeldLock, f.held[string(fileID)]), nil
}

func TestCensus_CountsHeldLocks(t *testing.T) {
	c := newCoordinator(t)
	ctx := context.Background()
	require.NoError(t, c.Lock(ctx, []byte("a"), record("o1", 0, 1)))
	require.NoError(t, c.Lock(ctx, []byte("a"), record("o1", 0, 1)))
	require.NoError(t, c.Lock(ctx, []byte("b"), record("o2", 0, 1)))

	report, err := NewCensusService(c, discardLogger()).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, CensusReport{Files: 2, Held: 3}, report)
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.HeldLocks))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.CensusFiles))
}

func TestCensus_SkipsFilesThatFail(t *testing.T) {
	src := &fakeSource{
		files:   [][]byte{[]byte("a"), []byte("b"), []byte("c")},
		held:    map[string]int{"a": 2, "c": 1},
		listErr: map[string]error{"b": errors.New("unreachable")},
	}
	report, err := NewCensusService(src, discardLogger()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CensusReport{Files: 3, Held: 3, Failed: 1}, report)
}

func TestCensus_EnumerationFailure(t *testing.T) {
	src := &fakeSource{filesErr: errors.New("unreachable")}
	_, err := NewCensusService(src, discardLogger()).Run(context.Background())
	assert.Error(t, err)
}

func TestCensus_TaskRunsCensus(t *testing.T) {
	src := &fakeSource{files: [][]byte{[]byte("a")}, held: map[string]int{"a": 4}}
	task := NewCensusService(src, discardLogger()).Task("*/30 * * * * *")
	assert.Equal(t, CensusTaskName, task.Name)
	assert.Equal(t, "*/30 * * * * *", task.Schedule)
	require.NoError(t, task.Run(context.Background()))
	assert.Equal(t, float64(4), testutil.ToFloat64(metrics.HeldLocks))
}

// recordingSchedular records scheduler calls instead of running cron.
type recordingSchedular struct {
	mu      sync.Mutex
	tasks   []string
	starts  int
	started chan struct{}
}

func (r *recordingSchedular) Start(ctx context.Context) error {
	r.mu.Lock()
	r.starts++
	r.mu.Unlock()
	r.started <- struct{}{}
	<-ctx.Done()
	return ctx.Err()
}

func (r *recordingSchedular) Stop() {}

func (r *recordingSchedular) AddTask(task *domain.ScheduledTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, task.Name)
	return nil
}

func (r *recordingSchedular) RemoveTask(name string) error { return nil }

func TestSchedularService_RunsWhileLeading(t *testing.T) {
	election := memory.NewLeaderElection()
	sched := &recordingSchedular{started: make(chan struct{}, 4)}
	task := &domain.ScheduledTask{Name: "t", Schedule: "@every 1s", Run: func(context.Context) error { return nil }}
	svc := NewSchedularService(election, sched, "node-1", discardLogger(), task)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()

	select {
	case <-sched.started:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler was not started after winning the election")
	}
	assert.True(t, election.IsLeader())

	// Losing leadership stops the scheduler; the node campaigns again and
	// restarts it.
	require.NoError(t, election.Resign(context.Background()))
	select {
	case <-sched.started:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler was not restarted after re-election")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop")
	}
	assert.False(t, election.IsLeader(), "shutdown resigns leadership")

	sched.mu.Lock()
	defer sched.mu.Unlock()
	assert.Equal(t, []string{"t"}, sched.tasks)
	assert.Equal(t, 2, sched.starts)
}
