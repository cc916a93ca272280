package retain

import (
	"context"
	"testing"

	"github.com/brokerfed/cluster/pkg/broadcast"
	"github.com/brokerfed/cluster/pkg/broker"
	"github.com/brokerfed/cluster/pkg/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SetThenMatch_ReturnsLastWrite(t *testing.T) {
	s := NewStore()
	s.Set("sensor/1", broker.Retain{Payload: []byte("on"), Ts: 1})
	s.Set("sensor/1", broker.Retain{Payload: []byte("off"), Ts: 2})

	matches := s.Match("sensor/+")
	require.Len(t, matches, 1)
	assert.Equal(t, []byte("off"), matches[0].Retain.Payload, "get must see the last write")
}

func TestStore_MatchWildcards(t *testing.T) {
	s := NewStore()
	s.Set("sensor/1", broker.Retain{Payload: []byte("a")})
	s.Set("sensor/2", broker.Retain{Payload: []byte("b")})
	s.Set("other/1", broker.Retain{Payload: []byte("c")})

	matches := s.Match("sensor/+")
	assert.Len(t, matches, 2)

	matches = s.Match("#")
	assert.Len(t, matches, 3)
}

func TestRetainer_Get_MergesLocalAndUnreachablePeer(t *testing.T) {
	// No listener behind this address: the broadcast leg fails, but the
	// local leg must still be returned — the node's local-plus-reachable-peer
	// union degrades to local-only when no peer answers.
	peers := map[broker.NodeID]*rpc.Client{1: rpc.NewClient("127.0.0.1:1")}
	coord := broadcast.NewCoordinator(rpc.NewFabricWithPeers(peers))

	r := New(coord, 7)
	r.Set("sensor/1", broker.Retain{Payload: []byte("on")})

	entries := r.Get(context.Background(), "sensor/+")
	require.Len(t, entries, 1)
	assert.Equal(t, broker.Topic("sensor/1"), entries[0].Topic)
}

func TestRetainer_HandleGetRetains_DoesNotRebroadcast(t *testing.T) {
	r := New(broadcast.NewCoordinator(rpc.NewFabricWithPeers(nil)), 1)
	r.Set("a/b", broker.Retain{Payload: []byte("x")})

	out := r.HandleGetRetains("a/+")
	require.Len(t, out, 1)
	assert.Equal(t, broker.Topic("a/b"), out[0].Topic)
}
