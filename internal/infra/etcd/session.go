package etcd

import (
	"context"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

// leaseRevokeTimeout bounds the cleanup of a lease whose session could not
// be built.
const leaseRevokeTimeout = 3 * time.Second

// newSession grants a lease of ttl seconds under ctx and builds a session on
// it. concurrency.NewSession grants on the client context, which waits for
// the cluster forever; granting here keeps session creation bounded by ctx.
// The session itself outlives ctx and ends with Close or lease expiry.
func newSession(ctx context.Context, client *clientv3.Client, ttl int) (*concurrency.Session, error) {
	resp, err := client.Grant(ctx, int64(ttl))
	if err != nil {
		return nil, fmt.Errorf("failed to grant lease: %w", err)
	}

	session, err := concurrency.NewSession(client, concurrency.WithLease(resp.ID), concurrency.WithTTL(ttl))
	if err != nil {
		revokeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), leaseRevokeTimeout)
		defer cancel()
		_, _ = client.Revoke(revokeCtx, resp.ID)
		return nil, fmt.Errorf("failed to create session on lease %x: %w", resp.ID, err)
	}
	return session, nil
}
