package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"distributed-nlm/internal/domain"
)

// ErrNotHeld is returned when a mutex is released twice.
var ErrNotHeld = errors.New("mutex is not held")

// Locker is an in-memory domain.Locker. Each path owns a one-slot token
// channel; holding the token means holding the mutex. A path's entry lives
// only while some caller holds or waits for it.
type Locker struct {
	mu     sync.Mutex
	tokens map[string]*token
}

type token struct {
	ch   chan struct{}
	refs int
}

func NewLocker() *Locker {
	return &Locker{tokens: make(map[string]*token)}
}

func (l *Locker) acquire(path string) *token {
	l.mu.Lock()
	defer l.mu.Unlock()
	tk, ok := l.tokens[path]
	if !ok {
		tk = &token{ch: make(chan struct{}, 1)}
		l.tokens[path] = tk
	}
	tk.refs++
	return tk
}

func (l *Locker) release(path string, tk *token) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tk.refs--
	if tk.refs == 0 {
		delete(l.tokens, path)
	}
}

func (l *Locker) Lock(ctx context.Context, path string) (domain.Lock, error) {
	tk := l.acquire(path)
	select {
	case tk.ch <- struct{}{}:
		return &memoryLock{owner: l, path: path, token: tk}, nil
	case <-ctx.Done():
		l.release(path, tk)
		return nil, fmt.Errorf("failed to acquire mutex %s: %w: %w", path, domain.ErrMutexNotAcquired, ctx.Err())
	}
}

type memoryLock struct {
	once  sync.Once
	owner *Locker
	path  string
	token *token
}

func (m *memoryLock) Unlock(ctx context.Context) error {
	released := false
	m.once.Do(func() {
		<-m.token.ch
		m.owner.release(m.path, m.token)
		released = true
	})
	if !released {
		return fmt.Errorf("failed to unlock %s: %w", m.path, ErrNotHeld)
	}
	return nil
}

// Coordination pairs a Namespace with a Locker.
type Coordination struct {
	*Namespace
	*Locker
}

// NewCoordination returns an empty in-memory coordination service.
func NewCoordination() *Coordination {
	return &Coordination{
		Namespace: NewNamespace(),
		Locker:    NewLocker(),
	}
}
