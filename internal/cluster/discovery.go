package cluster

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"distributed-nlm/internal/domain"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// Discovery tracks the live nlmd instances registered under one root.
type Discovery struct {
	client *clientv3.Client
	prefix string
	logger *slog.Logger
	peers  map[string]string // node id -> gRPC address
	mu     sync.RWMutex
}

var _ domain.PeerDirectory = (*Discovery)(nil)

// NewDiscovery creates a discovery service watching ServersPath(root).
func NewDiscovery(client *clientv3.Client, root string, logger *slog.Logger) *Discovery {
	return &Discovery{
		client: client,
		prefix: ServersPath(root),
		logger: logger.With("component", "discovery"),
		peers:  make(map[string]string),
	}
}

// Watch loads the current registrations and follows changes until ctx is
// done. It blocks and should be run in a goroutine.
func (d *Discovery) Watch(ctx context.Context) {
	d.logger.Info("starting to watch for servers", "prefix", d.prefix)

	rev, err := d.loadInitialPeers(ctx)
	if err != nil {
		d.logger.Error("failed to perform initial server load", "error", err)
	}

	watchChan := d.client.Watch(ctx, d.prefix, watchOptions(rev)...)
	for watchResp := range watchChan {
		if err := watchResp.Err(); err != nil {
			d.logger.Warn("server watch interrupted", "error", err)
			continue
		}
		for _, event := range watchResp.Events {
			d.apply(event.Type, event.Kv)
		}
	}
	d.logger.Info("stopped watching for servers")
}

// loadInitialPeers reads the current registrations and returns the revision
// they were read at.
func (d *Discovery) loadInitialPeers(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp, err := d.client.Get(ctx, d.prefix, clientv3.WithPrefix())
	if err != nil {
		return 0, err
	}
	for _, kv := range resp.Kvs {
		d.apply(mvccpb.PUT, kv)
	}
	return resp.Header.Revision, nil
}

// watchOptions resumes the watch right after the initial load so that no
// change in between is lost. Without a load revision it watches from now.
func watchOptions(loadedRev int64) []clientv3.OpOption {
	opts := []clientv3.OpOption{clientv3.WithPrefix()}
	if loadedRev > 0 {
		opts = append(opts, clientv3.WithRev(loadedRev+1))
	}
	return opts
}

// apply folds one registration change into the peer map.
func (d *Discovery) apply(typ mvccpb.Event_EventType, kv *mvccpb.KeyValue) {
	id := strings.TrimPrefix(string(kv.Key), d.prefix)
	if id == "" || strings.Contains(id, "/") {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	switch typ {
	case mvccpb.PUT:
		if _, ok := d.peers[id]; !ok {
			d.logger.Info("server discovered", "id", id, "addr", string(kv.Value))
		}
		d.peers[id] = string(kv.Value)
	case mvccpb.DELETE:
		d.logger.Info("server deregistered", "id", id, "addr", d.peers[id])
		delete(d.peers, id)
	}
}

// Peers returns a snapshot of the live servers ordered by id.
func (d *Discovery) Peers() []domain.Peer {
	d.mu.RLock()
	defer d.mu.RUnlock()

	peers := make([]domain.Peer, 0, len(d.peers))
	for id, addr := range d.peers {
		peers = append(peers, domain.Peer{ID: id, Addr: addr})
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].ID < peers[j].ID })
	return peers
}
