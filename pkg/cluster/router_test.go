package cluster

import (
	"bytes"
	"io"
	"testing"

	"github.com/brokerfed/cluster/pkg/broker"
	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func applyCmd(t *testing.T, r *Router, cmd Command) {
	t.Helper()
	data, err := cmd.Encode()
	require.NoError(t, err)
	result := r.Apply(&raft.Log{Data: data})
	require.Nil(t, result)
}

func TestRouter_ClientAddThenRemove(t *testing.T) {
	r := NewRouter()
	applyCmd(t, r, Command{Op: OpClientAdd, ClientID: "c1", NodeID: 1})

	owner, ok := r.OwnerOf("c1")
	require.True(t, ok)
	assert.EqualValues(t, 1, owner)

	applyCmd(t, r, Command{Op: OpClientRemove, ClientID: "c1", NodeID: 1})
	_, ok = r.OwnerOf("c1")
	assert.False(t, ok)
}

func TestRouter_RemoveIgnoresStaleOwner(t *testing.T) {
	r := NewRouter()
	applyCmd(t, r, Command{Op: OpClientAdd, ClientID: "c1", NodeID: 1})
	applyCmd(t, r, Command{Op: OpClientAdd, ClientID: "c1", NodeID: 2}) // reconnect elsewhere
	applyCmd(t, r, Command{Op: OpClientRemove, ClientID: "c1", NodeID: 1}) // stale disconnect from node 1

	owner, ok := r.OwnerOf("c1")
	require.True(t, ok, "a stale remove must not evict the current owner")
	assert.EqualValues(t, 2, owner)
}

func TestRouter_RouteMatching(t *testing.T) {
	r := NewRouter()
	applyCmd(t, r, Command{Op: OpRouteAdd, Filter: "a/b", ClientID: "s1", NodeID: 1})
	applyCmd(t, r, Command{Op: OpRouteAdd, Filter: "a/+", ClientID: "s2", NodeID: 2})

	entries := r.MatchRoutes("a/b")
	assert.Len(t, entries, 2)

	applyCmd(t, r, Command{Op: OpRouteRemove, Filter: "a/b", ClientID: "s1", NodeID: 1})
	entries = r.MatchRoutes("a/b")
	require.Len(t, entries, 1)
	assert.Equal(t, broker.ClientID("s2"), entries[0].ClientID)
}

func TestRouter_SnapshotRestoreRoundTrip(t *testing.T) {
	r := NewRouter()
	applyCmd(t, r, Command{Op: OpClientAdd, ClientID: "c1", NodeID: 1})
	applyCmd(t, r, Command{Op: OpRouteAdd, Filter: "a/b", ClientID: "c1", NodeID: 1})

	snap, err := r.Snapshot()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, snap.Persist(&fakeSink{Buffer: &buf}))

	r2 := NewRouter()
	require.NoError(t, r2.Restore(io.NopCloser(&buf)))

	owner, ok := r2.OwnerOf("c1")
	require.True(t, ok)
	assert.EqualValues(t, 1, owner)
	assert.Len(t, r2.MatchRoutes("a/b"), 1)
}

// fakeSink implements raft.SnapshotSink over a bytes.Buffer for tests.
type fakeSink struct {
	*bytes.Buffer
}

func (f *fakeSink) ID() string       { return "test" }
func (f *fakeSink) Cancel() error    { return nil }
func (f *fakeSink) Close() error     { return nil }
