// internal/domain/locker.go
package domain

import (
	"context"
	"errors"
)

// ErrMutexNotAcquired is returned when the coordination service could not
// grant a path mutex before the context ended.
var ErrMutexNotAcquired = errors.New("mutex not acquired")

// Lock represents an acquired path mutex.
type Lock interface {
	// Unlock releases the mutex. It must be called exactly once.
	Unlock(ctx context.Context) error
}

// Locker hands out exclusive mutexes keyed by an arbitrary path. The path
// does not need to exist in the Namespace it guards.
type Locker interface {
	// Lock blocks until the mutex for path is held by the caller or ctx ends.
	Lock(ctx context.Context, path string) (Lock, error)
}
