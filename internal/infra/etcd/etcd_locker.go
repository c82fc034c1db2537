// internal/infra/etcd/etcd_locker.go
package etcd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"distributed-nlm/internal/domain"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMutexSessionTTL is the lease TTL, in seconds, of the session that
// owns a path mutex. Only the mutex is leased; lock records never are.
const DefaultMutexSessionTTL = 10

// etcdLock is one held concurrency.Mutex together with its session.
type etcdLock struct {
	mutex   *concurrency.Mutex
	session *concurrency.Session
	path    string
}

// Unlock releases the mutex and closes its session. Both failures are
// reported.
func (l *etcdLock) Unlock(ctx context.Context) error {
	var errs []error
	if err := l.mutex.Unlock(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to unlock %s: %w", l.path, err))
	}
	// Closing the session revokes its lease, which also drops the mutex key
	// if the explicit unlock above did not get through.
	if err := l.session.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close session for %s: %w", l.path, err))
	}
	return errors.Join(errs...)
}

// etcdLocker implements domain.Locker with etcd's concurrency.Mutex.
type etcdLocker struct {
	client     *clientv3.Client
	sessionTTL int
	logger     *slog.Logger
	tracer     trace.Tracer
}

// NewEtcdLocker creates a blocking path mutex provider. sessionTTL is in
// seconds; values <= 0 select DefaultMutexSessionTTL.
func NewEtcdLocker(client *clientv3.Client, sessionTTL int, logger *slog.Logger) domain.Locker {
	if sessionTTL <= 0 {
		sessionTTL = DefaultMutexSessionTTL
	}
	return &etcdLocker{
		client:     client,
		sessionTTL: sessionTTL,
		logger:     logger.With("component", "etcd-locker"),
		tracer:     otel.Tracer("distributed-nlm-etcd-locker"),
	}
}

// Lock blocks until the mutex keyed by path is held or ctx ends.
func (l *etcdLocker) Lock(ctx context.Context, path string) (domain.Lock, error) {
	ctx, span := l.tracer.Start(ctx, "locker.etcd.Lock")
	defer span.End()
	span.SetAttributes(attribute.String("mutex.path", path))

	// Every acquisition gets its own session so that a stuck holder only
	// pins its own lease.
	session, err := newSession(ctx, l.client, l.sessionTTL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create session")
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("mutex %s: %w: %w", path, domain.ErrMutexNotAcquired, ctxErr)
		}
		return nil, fmt.Errorf("failed to create etcd session for mutex %s: %w", path, err)
	}

	mutex := concurrency.NewMutex(session, path)
	start := time.Now()
	if err := mutex.Lock(ctx); err != nil {
		_ = session.Close()
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to acquire mutex")
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("mutex %s: %w: %w", path, domain.ErrMutexNotAcquired, ctxErr)
		}
		return nil, fmt.Errorf("failed to acquire etcd mutex %s: %w", path, err)
	}

	l.logger.Debug("acquired mutex", "path", path, "key", mutex.Key(), "wait", time.Since(start))
	return &etcdLock{
		mutex:   mutex,
		session: session,
		path:    path,
	}, nil
}

// etcdCoordination pairs the namespace and the locker behind one value.
type etcdCoordination struct {
	domain.Namespace
	domain.Locker
}

// NewEtcdCoordination creates the domain.Coordination used by the lock
// coordinator.
func NewEtcdCoordination(client *clientv3.Client, sessionTTL int, logger *slog.Logger) domain.Coordination {
	return &etcdCoordination{
		Namespace: NewEtcdNamespace(client, logger),
		Locker:    NewEtcdLocker(client, sessionTTL, logger),
	}
}
