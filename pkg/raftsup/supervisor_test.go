package raftsup

import (
	"context"
	"net"
	"testing"

	"github.com/brokerfed/cluster/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindLeaderInfo_NoPeersBootstraps(t *testing.T) {
	cfg := &config.PluginConfig{NodeID: 1}
	s := NewSupervisor(cfg, nil, nil, t.TempDir())

	_, _, found := s.findLeaderInfo(context.Background())
	assert.False(t, found, "a lone node with no configured peers must bootstrap as leader")
}

func TestFindLeaderInfo_ReachablePeerFound(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()
	go func() {
		for {
			conn, err := lis.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	cfg := &config.PluginConfig{
		NodeID: 2,
		RaftPeerAddrs: []config.NodeAddr{
			{ID: 1, Addr: lis.Addr().String()},
			{ID: 2, Addr: "127.0.0.1:0"},
		},
	}
	s := NewSupervisor(cfg, nil, nil, t.TempDir())

	id, addr, found := s.findLeaderInfo(context.Background())
	require.True(t, found)
	assert.EqualValues(t, 1, id)
	assert.Equal(t, lis.Addr().String(), addr)
}
