package broadcast

import (
	"context"
	"testing"
	"time"

	"github.com/brokerfed/cluster/pkg/broker"
	"github.com/brokerfed/cluster/pkg/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newUnreachableFabric builds a Fabric whose peers all point at a port
// nothing listens on, so every send fails fast with a transport error —
// enough to exercise alignment and partial-failure tolerance without a
// live peer.
func newUnreachableFabric(t *testing.T, n int) *rpc.Fabric {
	t.Helper()
	peers := make(map[broker.NodeID]*rpc.Client, n)
	for i := 1; i <= n; i++ {
		peers[broker.NodeID(i)] = rpc.NewClient("127.0.0.1:1")
	}
	return rpc.NewFabricWithPeers(peers)
}

func TestCoordinator_Broadcast_AlignedToIterationOrder(t *testing.T) {
	f := newUnreachableFabric(t, 3)
	c := NewCoordinator(f)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	results := c.Broadcast(ctx, &rpc.Message{Kind: rpc.KindData})
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, broker.NodeID(i+1), r.Peer, "results must be aligned to peer iteration order")
	}
}

func TestCoordinator_Broadcast_PartialFailureTolerant(t *testing.T) {
	f := newUnreachableFabric(t, 2)
	c := NewCoordinator(f)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	results := c.Broadcast(ctx, &rpc.Message{Kind: rpc.KindData})
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Error(t, r.Err, "every peer's own result must still be reported even on failure")
	}
}
