package domain

import (
	"context"
	"errors"
)

var (
	// ErrNodeNotFound is returned when a node does not exist.
	ErrNodeNotFound = errors.New("node not found")
	// ErrNodeExists is returned when creating a node whose name is taken.
	ErrNodeExists = errors.New("node already exists")
)

// Namespace is the hierarchical store of the coordination service. Paths are
// slash separated and absolute ("/nlm/files/AB12").
type Namespace interface {
	// EnsurePath creates a persistent node at path if it is absent.
	EnsurePath(ctx context.Context, path string) error
	// CreateSequential creates a child of parent named prefix followed by a
	// unique, monotonically assigned suffix and returns the full node path.
	CreateSequential(ctx context.Context, parent, prefix string, data []byte) (string, error)
	// Delete removes the node at path.
	Delete(ctx context.Context, path string) error
	// Children lists the names of the direct children of path. A path without
	// children yields an empty list.
	Children(ctx context.Context, path string) ([]string, error)
	// Get returns the payload of the node at path.
	Get(ctx context.Context, path string) ([]byte, error)
}

// Coordination bundles the two capabilities the lock coordinator needs.
type Coordination interface {
	Namespace
	Locker
}
