package retain

import (
	"context"
	"log/slog"

	"github.com/brokerfed/cluster/pkg/broadcast"
	"github.com/brokerfed/cluster/pkg/broker"
	"github.com/brokerfed/cluster/pkg/logging"
	"github.com/brokerfed/cluster/pkg/rpc"
)

// Retainer wraps a local Store with cluster-wide GET aggregation: Set is
// purely local, Get queries local then broadcasts GetRetains and extends
// the result with every reachable peer's reply.
//
// It is a process-wide singleton in production, per the design notes on
// Router/Retainer/Shared: construct one and install it wherever the host
// broker's retain_mut slot expects it.
type Retainer struct {
	local       *Store
	coordinator *broadcast.Coordinator
	messageType int32
	log         *slog.Logger
}

// New constructs a Retainer over a fresh local Store, broadcasting
// through coordinator using messageType as the RPC discriminator.
func New(coordinator *broadcast.Coordinator, messageType int32) *Retainer {
	return &Retainer{
		local:       NewStore(),
		coordinator: coordinator,
		messageType: messageType,
		log:         logging.Nop(),
	}
}

// SetLogger installs the logger used to report peer errors during Get.
func (r *Retainer) SetLogger(l *slog.Logger) {
	if l == nil {
		l = logging.Nop()
	}
	r.log = l
}

// Set delegates to the local store. Only the node handling the original
// publish ever calls this; there is no replication to peers.
func (r *Retainer) Set(topic broker.Topic, retain broker.Retain) {
	r.local.Set(topic, retain)
}

// Get returns the local store's matches for filter plus every reachable
// peer's matches, merged as a set. Peer errors are logged and otherwise
// ignored, so one unreachable node never fails the whole read.
func (r *Retainer) Get(ctx context.Context, filter broker.TopicFilter) []Entry {
	results := append([]Entry(nil), r.local.Match(filter)...)

	msg := &rpc.Message{
		MessageType: r.messageType,
		Kind:        rpc.KindGetRetains,
		GetRetains:  &rpc.GetRetains{Filter: filter},
	}

	for _, peerResult := range r.coordinator.Broadcast(ctx, msg) {
		if peerResult.Err != nil {
			r.log.Warn("retain: peer GetRetains failed", "peer", peerResult.Peer, "error", peerResult.Err)
			continue
		}
		if peerResult.Reply == nil || peerResult.Reply.Kind != rpc.KindGetRetains {
			continue
		}
		for _, e := range peerResult.Reply.GetRetains {
			results = append(results, Entry{Topic: e.Topic, Retain: e.Retain})
		}
	}
	return results
}

// HandleGetRetains answers a peer's inbound GetRetains query against the
// local store only — it must never itself re-broadcast, or a query would
// cycle forever across the cluster.
func (r *Retainer) HandleGetRetains(filter broker.TopicFilter) []rpc.RetainEntry {
	local := r.local.Match(filter)
	out := make([]rpc.RetainEntry, len(local))
	for i, e := range local {
		out[i] = rpc.RetainEntry{Topic: e.Topic, Retain: e.Retain}
	}
	return out
}
