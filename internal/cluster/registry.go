// Package cluster keeps track of the nlmd processes sharing one coordination
// service. Registration is process liveness only; lock records never live
// under a lease.
package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// ServersPath returns the directory under which nlmd instances register,
// for example "/nlm/servers/".
func ServersPath(root string) string {
	return strings.TrimSuffix(root, "/") + "/servers/"
}

// Registry handles the registration of an nlmd in etcd.
type Registry struct {
	client  *clientv3.Client
	prefix  string
	logger  *slog.Logger
	leaseID clientv3.LeaseID
	key     string
	value   string
}

// NewRegistry creates a registry writing under ServersPath(root).
func NewRegistry(client *clientv3.Client, root string, logger *slog.Logger) *Registry {
	return &Registry{
		client: client,
		prefix: ServersPath(root),
		logger: logger.With("component", "registry"),
	}
}

// Register publishes nodeID with its gRPC address under a lease of ttl
// seconds and keeps the lease alive until Deregister or process exit.
func (r *Registry) Register(ctx context.Context, nodeID, addr string, ttl int64) error {
	r.key = r.prefix + nodeID
	r.value = addr

	leaseResp, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return fmt.Errorf("failed to grant lease: %w", err)
	}
	r.leaseID = leaseResp.ID

	if _, err = r.client.Put(ctx, r.key, r.value, clientv3.WithLease(r.leaseID)); err != nil {
		return fmt.Errorf("failed to put server registration key: %w", err)
	}

	keepAliveCh, err := r.client.KeepAlive(context.Background(), r.leaseID)
	if err != nil {
		return fmt.Errorf("failed to start keep-alive: %w", err)
	}

	go func() {
		for ka := range keepAliveCh {
			r.logger.Debug("lease keep-alive refreshed", "lease_id", ka.ID, "ttl", ka.TTL)
		}
		// The channel closes once the lease is revoked or has expired.
		r.logger.Warn("keep-alive channel closed, server registration may have expired", "key", r.key)
	}()

	r.logger.Info("server registered successfully", "key", r.key, "addr", r.value)
	return nil
}

// Deregister removes the registration by revoking its lease.
func (r *Registry) Deregister(ctx context.Context) error {
	if r.leaseID == clientv3.NoLease {
		return nil
	}
	r.logger.Info("deregistering server", "key", r.key)
	if _, err := r.client.Revoke(ctx, r.leaseID); err != nil {
		return fmt.Errorf("failed to revoke lease: %w", err)
	}
	r.leaseID = clientv3.NoLease
	return nil
}
