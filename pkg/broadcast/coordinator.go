package broadcast

import (
	"context"
	"sort"

	"github.com/brokerfed/cluster/pkg/broker"
	"github.com/brokerfed/cluster/pkg/rpc"
	"golang.org/x/sync/errgroup"
)

// PeerResult is one peer's outcome from a Broadcast call.
type PeerResult struct {
	Peer  broker.NodeID
	Reply *rpc.Reply
	Err   error
}

// Coordinator fans a message out to every peer in a Fabric and collects
// results independently, per component C.
type Coordinator struct {
	fabric *rpc.Fabric
}

// NewCoordinator wraps a Fabric for scatter-gather sends.
func NewCoordinator(fabric *rpc.Fabric) *Coordinator {
	return &Coordinator{fabric: fabric}
}

// Broadcast sends msg to every peer currently in the fabric and returns
// one PeerResult per peer, aligned to a stable iteration order (peer
// NodeID ascending) computed from a point-in-time snapshot of the peer
// map. Peers added to the fabric after the snapshot is taken are not
// contacted (see the eventual-consistency note on the peer map in
// DESIGN.md).
//
// Every peer is contacted at most once. The last peer in iteration order
// receives msg itself; every earlier peer receives an independent clone,
// so a send goroutine can't observe another's in-flight mutation of a
// shared *rpc.Message. One peer's failure never cancels another's call;
// all results are collected (errgroup is used purely for the wait
// barrier, not for error-triggered cancellation — its Group.Wait return
// value is intentionally ignored).
func (c *Coordinator) Broadcast(ctx context.Context, msg *rpc.Message) []PeerResult {
	peers := c.fabric.Peers()
	ids := make([]broker.NodeID, 0, len(peers))
	for id := range peers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	results := make([]PeerResult, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	_ = gctx // per-peer timeouts are the fabric's responsibility, not the coordinator's

	for i, id := range ids {
		i, id := i, id
		client := peers[id]
		sendMsg := msg
		if i != len(ids)-1 {
			sendMsg = msg.Clone()
		}
		g.Go(func() error {
			reply, err := client.SendMessage(ctx, sendMsg)
			results[i] = PeerResult{Peer: id, Reply: reply, Err: err}
			return nil // never propagate: one peer's failure must not cancel others
		})
	}
	_ = g.Wait()

	return results
}
