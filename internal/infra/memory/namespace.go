// Package memory implements the coordination contracts inside one process.
// It backs the "memory" coordination backend used for single-node setups
// and the test suites.
package memory

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"distributed-nlm/internal/domain"
)

type node struct {
	data []byte
	seq  uint64 // next sequence number handed to a sequential child
}

// Namespace is an in-memory domain.Namespace. Parents created on demand
// persist after their last child is deleted and keep their sequence, so a
// process holds one node per file it has ever locked.
type Namespace struct {
	mu    sync.RWMutex
	nodes map[string]*node
}

// NewNamespace returns an empty namespace holding only "/".
func NewNamespace() *Namespace {
	return &Namespace{nodes: map[string]*node{"/": {}}}
}

func clean(p string) string {
	return path.Clean("/" + p)
}

// ensureLocked creates p and its missing ancestors. mu must be held.
func (n *Namespace) ensureLocked(p string) *node {
	if nd, ok := n.nodes[p]; ok {
		return nd
	}
	n.ensureLocked(path.Dir(p))
	nd := &node{}
	n.nodes[p] = nd
	return nd
}

func (n *Namespace) EnsurePath(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ensureLocked(clean(p))
	return nil
}

// CreateSequential creates missing ancestors of parent as persistent nodes.
func (n *Namespace) CreateSequential(ctx context.Context, parent, prefix string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	pn := n.ensureLocked(clean(parent))
	for {
		name := path.Join(clean(parent), fmt.Sprintf("%s%010d", prefix, pn.seq))
		pn.seq++
		if _, taken := n.nodes[name]; taken {
			continue
		}
		n.nodes[name] = &node{data: append([]byte(nil), data...)}
		return name, nil
	}
}

func (n *Namespace) Delete(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p = clean(p)
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.nodes[p]; !ok {
		return fmt.Errorf("delete %s: %w", p, domain.ErrNodeNotFound)
	}
	prefix := strings.TrimSuffix(p, "/") + "/"
	for other := range n.nodes {
		if strings.HasPrefix(other, prefix) {
			return fmt.Errorf("delete %s: node has children", p)
		}
	}
	delete(n.nodes, p)
	return nil
}

func (n *Namespace) Children(ctx context.Context, p string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p = clean(p)
	prefix := strings.TrimSuffix(p, "/") + "/"

	n.mu.RLock()
	defer n.mu.RUnlock()

	var names []string
	for other := range n.nodes {
		rest, ok := strings.CutPrefix(other, prefix)
		if !ok || rest == "" || strings.Contains(rest, "/") {
			continue
		}
		names = append(names, rest)
	}
	sort.Strings(names)
	return names, nil
}

func (n *Namespace) Get(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p = clean(p)
	n.mu.RLock()
	defer n.mu.RUnlock()

	nd, ok := n.nodes[p]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", p, domain.ErrNodeNotFound)
	}
	return append([]byte(nil), nd.data...), nil
}
