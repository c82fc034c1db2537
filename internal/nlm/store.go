package nlm

import (
	"context"
	"fmt"
	"path"
	"strings"

	"distributed-nlm/internal/domain"
)

// fileLockStore is the set of lock records persisted under one file's
// subtree. It is only valid while the file's mutex is held.
type fileLockStore struct {
	ns    domain.Namespace
	codec domain.RecordCodec
	path  string
}

// list reads every lock node of the file. Children that do not carry the
// lock prefix are ignored. A node that cannot be read or decoded fails the
// whole call.
func (s *fileLockStore) list(ctx context.Context) ([]domain.HeldLock, error) {
	names, err := s.ns.Children(ctx, s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to list lock nodes under %s: %w", s.path, err)
	}

	held := make([]domain.HeldLock, 0, len(names))
	for _, name := range names {
		if !strings.HasPrefix(name, LockPrefix) {
			continue
		}
		nodePath := path.Join(s.path, name)
		data, err := s.ns.Get(ctx, nodePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read lock node %s: %w", nodePath, err)
		}
		rec, err := s.codec.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode lock node %s: %w", nodePath, err)
		}
		held = append(held, domain.HeldLock{Node: name, Record: rec})
	}
	return held, nil
}

// add persists rec as a new sequential lock node and returns the node name.
func (s *fileLockStore) add(ctx context.Context, rec domain.LockRecord) (string, error) {
	data, err := s.codec.Encode(rec)
	if err != nil {
		return "", err
	}
	nodePath, err := s.ns.CreateSequential(ctx, s.path, LockPrefix, data)
	if err != nil {
		return "", fmt.Errorf("failed to create lock node under %s: %w", s.path, err)
	}
	return path.Base(nodePath), nil
}

// remove deletes the lock node called name.
func (s *fileLockStore) remove(ctx context.Context, name string) error {
	nodePath := path.Join(s.path, name)
	if err := s.ns.Delete(ctx, nodePath); err != nil {
		return fmt.Errorf("failed to delete lock node %s: %w", nodePath, err)
	}
	return nil
}

// firstConflict returns the first held record that conflicts with rec.
func firstConflict(held []domain.HeldLock, rec domain.LockRecord) (domain.HeldLock, bool) {
	for _, h := range held {
		if domain.Conflicts(h.Record, rec) {
			return h, true
		}
	}
	return domain.HeldLock{}, false
}

// firstMatch returns the first held record structurally equal to rec.
func firstMatch(held []domain.HeldLock, rec domain.LockRecord) (domain.HeldLock, bool) {
	for _, h := range held {
		if h.Record.Equal(rec) {
			return h, true
		}
	}
	return domain.HeldLock{}, false
}
