package rpc

import (
	"fmt"
	"sync"

	"github.com/brokerfed/cluster/pkg/broker"
	"github.com/brokerfed/cluster/pkg/config"
)

// Fabric pools one Client per cluster peer, keyed by NodeID. It is the
// process-wide peer map described in the concurrency model: built once
// from config and never mutated afterward; readers look up entries
// without taking a lock on the hot path beyond the map read itself.
type Fabric struct {
	mu    sync.RWMutex
	peers map[broker.NodeID]*Client
}

// NewFabric builds a Fabric from the peer gRPC addresses in cfg,
// skipping this node's own entry.
func NewFabric(cfg *config.PluginConfig) *Fabric {
	f := &Fabric{peers: make(map[broker.NodeID]*Client)}
	for _, addr := range cfg.PeerGRPCAddrs() {
		f.peers[addr.ID] = NewClient(addr.Addr)
	}
	return f
}

// NewFabricWithPeers builds a Fabric directly from a peer map, bypassing
// config loading. Used by tests and by callers assembling peers from a
// source other than PluginConfig.
func NewFabricWithPeers(peers map[broker.NodeID]*Client) *Fabric {
	f := &Fabric{peers: make(map[broker.NodeID]*Client, len(peers))}
	for id, c := range peers {
		f.peers[id] = c
	}
	return f
}

// ErrUnknownPeer is returned when a caller asks for a peer NodeID the
// fabric was never configured with.
var ErrUnknownPeer = fmt.Errorf("rpc: unknown peer")

// Client returns the pooled client for peer, or ErrUnknownPeer.
func (f *Fabric) Client(peer broker.NodeID) (*Client, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	c, ok := f.peers[peer]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPeer, peer)
	}
	return c, nil
}

// Peers returns a stable snapshot of (NodeID, Client) pairs. Iteration
// order is unspecified, matching the "peers live in a concurrent map"
// note in the concurrency model.
func (f *Fabric) Peers() map[broker.NodeID]*Client {
	f.mu.RLock()
	defer f.mu.RUnlock()
	snapshot := make(map[broker.NodeID]*Client, len(f.peers))
	for id, c := range f.peers {
		snapshot[id] = c
	}
	return snapshot
}

// CloseAll closes every pooled client's connection, for graceful process shutdown.
func (f *Fabric) CloseAll() {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, c := range f.peers {
		_ = c.Close()
	}
}
