// internal/infra/etcd/etcd_namespace.go
package etcd

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"

	"distributed-nlm/internal/domain"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// SequenceDir holds the per-parent counters behind CreateSequential.
	// It lives outside every namespace root so counters never show up as
	// children.
	SequenceDir = "/_sequence"
)

// etcdNamespace maps the hierarchical namespace onto etcd's flat keyspace:
// every node is a key equal to its absolute path. Parents do not need to
// exist as keys; a path has children when keys exist below "<path>/".
type etcdNamespace struct {
	client *clientv3.Client
	logger *slog.Logger
	tracer trace.Tracer
}

// NewEtcdNamespace creates a domain.Namespace backed by etcd.
func NewEtcdNamespace(client *clientv3.Client, logger *slog.Logger) domain.Namespace {
	return &etcdNamespace{
		client: client,
		logger: logger.With("component", "etcd-namespace"),
		tracer: otel.Tracer("distributed-nlm-etcd-namespace"),
	}
}

func nodeKey(p string) string {
	return path.Clean("/" + p)
}

// EnsurePath puts an empty value at path unless the key already exists.
func (n *etcdNamespace) EnsurePath(ctx context.Context, p string) error {
	ctx, span := n.tracer.Start(ctx, "namespace.etcd.EnsurePath")
	defer span.End()

	key := nodeKey(p)
	span.SetAttributes(attribute.String("etcd.key", key))

	resp, err := n.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, "")).
		Commit()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create path in etcd")
		return fmt.Errorf("failed to create path %s in etcd: %w", key, err)
	}
	span.SetAttributes(attribute.Bool("created", resp.Succeeded))
	return nil
}

// CreateSequential allocates the next suffix from the parent's counter and
// writes the node in the same transaction as the counter bump.
func (n *etcdNamespace) CreateSequential(ctx context.Context, parent, prefix string, data []byte) (string, error) {
	ctx, span := n.tracer.Start(ctx, "namespace.etcd.CreateSequential")
	defer span.End()

	parent = nodeKey(parent)
	seqKey := SequenceDir + parent
	span.SetAttributes(attribute.String("etcd.parent", parent), attribute.String("etcd.sequence_key", seqKey))

	for attempt := 1; ; attempt++ {
		resp, err := n.client.Get(ctx, seqKey)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to read sequence counter")
			return "", fmt.Errorf("failed to read sequence counter %s: %w", seqKey, err)
		}

		var (
			next    uint64
			guarded clientv3.Cmp
		)
		if len(resp.Kvs) == 0 {
			guarded = clientv3.Compare(clientv3.CreateRevision(seqKey), "=", 0)
		} else {
			kv := resp.Kvs[0]
			next, err = strconv.ParseUint(string(kv.Value), 10, 64)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "corrupt sequence counter")
				return "", fmt.Errorf("corrupt sequence counter %s: %w", seqKey, err)
			}
			guarded = clientv3.Compare(clientv3.ModRevision(seqKey), "=", kv.ModRevision)
		}

		name := path.Join(parent, fmt.Sprintf("%s%010d", prefix, next))
		bump := clientv3.OpPut(seqKey, strconv.FormatUint(next+1, 10))
		create := clientv3.OpTxn(
			[]clientv3.Cmp{clientv3.Compare(clientv3.CreateRevision(name), "=", 0)},
			[]clientv3.Op{bump, clientv3.OpPut(name, string(data))},
			[]clientv3.Op{bump},
		)

		txnResp, err := n.client.Txn(ctx).If(guarded).Then(create).Commit()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to create sequential node")
			return "", fmt.Errorf("failed to create sequential node under %s: %w", parent, err)
		}
		if !txnResp.Succeeded {
			// Another writer bumped the counter first.
			continue
		}
		if inner := txnResp.Responses[0].GetResponseTxn(); inner != nil && !inner.Succeeded {
			n.logger.Warn("sequential node name already taken, skipping", "key", name)
			continue
		}

		span.SetAttributes(attribute.String("etcd.key", name), attribute.Int("attempts", attempt))
		return name, nil
	}
}

func (n *etcdNamespace) Delete(ctx context.Context, p string) error {
	ctx, span := n.tracer.Start(ctx, "namespace.etcd.Delete")
	defer span.End()

	key := nodeKey(p)
	span.SetAttributes(attribute.String("etcd.key", key))

	resp, err := n.client.Delete(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to delete node from etcd")
		return fmt.Errorf("failed to delete node %s from etcd: %w", key, err)
	}
	if resp.Deleted == 0 {
		return fmt.Errorf("delete %s: %w", key, domain.ErrNodeNotFound)
	}
	n.dropSequence(ctx, path.Dir(key))
	return nil
}

// dropSequence removes the counter of parent once parent has no children
// left, so counters do not pile up for every file ever locked. The next
// CreateSequential under parent starts again from zero. A concurrent create
// either commits first, failing the emptiness check, or restarts on the
// missing counter.
func (n *etcdNamespace) dropSequence(ctx context.Context, parent string) {
	seqKey := SequenceDir + parent
	resp, err := n.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(parent+"/"), "=", 0).WithPrefix()).
		Then(clientv3.OpDelete(seqKey)).
		Commit()
	if err != nil {
		n.logger.Warn("failed to drop sequence counter", "key", seqKey, "error", err)
		return
	}
	if resp.Succeeded {
		n.logger.Debug("dropped sequence counter", "key", seqKey)
	}
}

// Children reads every key below path and reports the distinct first path
// segments. The cost grows with the whole subtree, not just direct children.
func (n *etcdNamespace) Children(ctx context.Context, p string) ([]string, error) {
	ctx, span := n.tracer.Start(ctx, "namespace.etcd.Children")
	defer span.End()

	prefix := strings.TrimSuffix(nodeKey(p), "/") + "/"
	span.SetAttributes(attribute.String("etcd.prefix", prefix))

	resp, err := n.client.Get(ctx, prefix, clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list children from etcd")
		return nil, fmt.Errorf("failed to list children of %s from etcd: %w", prefix, err)
	}
	span.SetAttributes(attribute.Int("etcd.kv_count", len(resp.Kvs)))

	seen := make(map[string]struct{}, len(resp.Kvs))
	names := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		rest := strings.TrimPrefix(string(kv.Key), prefix)
		name, _, _ := strings.Cut(rest, "/")
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (n *etcdNamespace) Get(ctx context.Context, p string) ([]byte, error) {
	ctx, span := n.tracer.Start(ctx, "namespace.etcd.Get")
	defer span.End()

	key := nodeKey(p)
	span.SetAttributes(attribute.String("etcd.key", key))

	resp, err := n.client.Get(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get node from etcd")
		return nil, fmt.Errorf("failed to get node %s from etcd: %w", key, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, fmt.Errorf("get %s: %w", key, domain.ErrNodeNotFound)
	}
	return resp.Kvs[0].Value, nil
}
