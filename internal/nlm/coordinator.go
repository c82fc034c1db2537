// Package nlm implements NLM byte-range lock semantics on top of a
// coordination service shared by every nlmd process.
//
// Each operation takes the file's distributed mutex, re-reads the file's
// lock nodes, evaluates the conflict rule and mutates the nodes before
// releasing the mutex. Nothing is cached between calls.
package nlm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"distributed-nlm/internal/domain"
	"distributed-nlm/internal/metrics"
)

const (
	opLock   = "lock"
	opUnlock = "unlock"
	opTest   = "test"
	opList   = "list"

	defaultReleaseTimeout = 5 * time.Second
)

// Options tune a Coordinator. Zero values select the defaults.
type Options struct {
	// Root is the namespace root, DefaultRoot if empty.
	Root string
	// ReleaseTimeout bounds a mutex release. Releases do not inherit the
	// caller's cancellation.
	ReleaseTimeout time.Duration
}

// Coordinator is the domain.LockManager backed by a coordination service.
type Coordinator struct {
	coord          domain.Coordination
	codec          domain.RecordCodec
	paths          layout
	releaseTimeout time.Duration
	logger         *slog.Logger
}

var _ domain.LockManager = (*Coordinator)(nil)

// NewCoordinator creates a coordinator storing records with codec.
func NewCoordinator(coord domain.Coordination, codec domain.RecordCodec, logger *slog.Logger, opts Options) *Coordinator {
	if opts.ReleaseTimeout <= 0 {
		opts.ReleaseTimeout = defaultReleaseTimeout
	}
	return &Coordinator{
		coord:          coord,
		codec:          codec,
		paths:          newLayout(opts.Root),
		releaseTimeout: opts.ReleaseTimeout,
		logger:         logger.With("component", "nlm-coordinator"),
	}
}

// Init creates the persistent root and files paths if they are absent.
func (c *Coordinator) Init(ctx context.Context) error {
	if err := c.coord.EnsurePath(ctx, c.paths.root); err != nil {
		return fmt.Errorf("failed to create root path %s: %w", c.paths.root, err)
	}
	if err := c.coord.EnsurePath(ctx, c.paths.files()); err != nil {
		return fmt.Errorf("failed to create files path %s: %w", c.paths.files(), err)
	}
	return nil
}

// Lock persists rec on fileID unless a record held by another holder
// conflicts with it. The same holder may lock the same range repeatedly.
func (c *Coordinator) Lock(ctx context.Context, fileID []byte, rec domain.LockRecord) error {
	if err := validate(opLock, fileID, rec); err != nil {
		return err
	}
	return c.withFileMutex(ctx, opLock, fileID, func(ctx context.Context, store *fileLockStore) error {
		held, err := store.list(ctx)
		if err != nil {
			return err
		}
		if conflict, ok := firstConflict(held, rec); ok {
			c.logger.Debug("lock denied",
				"file_id", encodeFileID(fileID), "holder", fmt.Sprintf("%x", rec.Holder),
				"offset", rec.Offset, "length", rec.Length, "conflicting_node", conflict.Node)
			return domain.NewDenied(opLock, fileID, rec)
		}
		node, err := store.add(ctx, rec)
		if err != nil {
			return err
		}
		c.logger.Debug("lock granted",
			"file_id", encodeFileID(fileID), "holder", fmt.Sprintf("%x", rec.Holder),
			"offset", rec.Offset, "length", rec.Length, "node", node)
		return nil
	})
}

// Unlock removes the first persisted record structurally equal to rec.
func (c *Coordinator) Unlock(ctx context.Context, fileID []byte, rec domain.LockRecord) error {
	if err := validate(opUnlock, fileID, rec); err != nil {
		return err
	}
	return c.withFileMutex(ctx, opUnlock, fileID, func(ctx context.Context, store *fileLockStore) error {
		held, err := store.list(ctx)
		if err != nil {
			return err
		}
		match, ok := firstMatch(held, rec)
		if !ok {
			return domain.NewRangeUnavailable(opUnlock, fileID, rec)
		}
		if err := store.remove(ctx, match.Node); err != nil {
			return err
		}
		c.logger.Debug("lock released",
			"file_id", encodeFileID(fileID), "holder", fmt.Sprintf("%x", rec.Holder),
			"offset", rec.Offset, "length", rec.Length, "node", match.Node)
		return nil
	})
}

// Test reports whether rec would be granted. It never changes the store.
func (c *Coordinator) Test(ctx context.Context, fileID []byte, rec domain.LockRecord) error {
	if err := validate(opTest, fileID, rec); err != nil {
		return err
	}
	return c.withFileMutex(ctx, opTest, fileID, func(ctx context.Context, store *fileLockStore) error {
		held, err := store.list(ctx)
		if err != nil {
			return err
		}
		if _, ok := firstConflict(held, rec); ok {
			return domain.NewDenied(opTest, fileID, rec)
		}
		return nil
	})
}

// List returns the records currently held on fileID.
func (c *Coordinator) List(ctx context.Context, fileID []byte) ([]domain.HeldLock, error) {
	if len(fileID) == 0 {
		return nil, domain.NewInvalid(opList, fileID, errors.New("file id cannot be empty"))
	}
	var held []domain.HeldLock
	err := c.withFileMutex(ctx, opList, fileID, func(ctx context.Context, store *fileLockStore) error {
		var err error
		held, err = store.list(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return held, nil
}

// Files returns the identifiers of every file that has a subtree under the
// files path. A file whose locks were all released may still be listed.
func (c *Coordinator) Files(ctx context.Context) ([][]byte, error) {
	names, err := c.coord.Children(ctx, c.paths.files())
	if err != nil {
		return nil, fmt.Errorf("failed to list files under %s: %w", c.paths.files(), err)
	}
	ids := make([][]byte, 0, len(names))
	for _, name := range names {
		id, err := decodeFileID(name)
		if err != nil {
			c.logger.Warn("skipping file node with non-hex name", "node", name, "error", err)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// withFileMutex runs fn while holding fileID's mutex. The mutex is released
// on every exit path. A release failure is returned as a KindException
// LockError carrying a *domain.ReleaseError whose Cause is fn's own result.
func (c *Coordinator) withFileMutex(ctx context.Context, op string, fileID []byte, fn func(ctx context.Context, store *fileLockStore) error) (err error) {
	mutexPath := c.paths.mutex(fileID)

	start := time.Now()
	lock, err := c.coord.Lock(ctx, mutexPath)
	metrics.MutexWaitSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		c.logger.Error("failed to acquire file mutex", "op", op, "path", mutexPath, "error", err)
		return domain.WrapException(op, fileID, "failed to acquire file mutex", err)
	}

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.releaseTimeout)
		defer cancel()
		if releaseErr := lock.Unlock(releaseCtx); releaseErr != nil {
			metrics.MutexReleaseFailuresTotal.Inc()
			c.logger.Error("failed to release file mutex", "op", op, "path", mutexPath, "error", releaseErr)
			err = &domain.LockError{
				Kind:   domain.KindException,
				Op:     op,
				FileID: fileID,
				Msg:    "failed to release file mutex",
				Err:    &domain.ReleaseError{Path: mutexPath, Err: releaseErr, Cause: err},
			}
		}
	}()

	store := &fileLockStore{ns: c.coord, codec: c.codec, path: c.paths.file(fileID)}
	if err := fn(ctx, store); err != nil {
		return domain.WrapException(op, fileID, "coordination failure", err)
	}
	return nil
}

func validate(op string, fileID []byte, rec domain.LockRecord) error {
	if len(fileID) == 0 {
		return domain.NewInvalid(op, fileID, errors.New("file id cannot be empty"))
	}
	if err := rec.Validate(); err != nil {
		return domain.NewInvalid(op, fileID, err)
	}
	return nil
}
