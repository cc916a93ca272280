package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/brokerfed/cluster/pkg/broker"
	"github.com/brokerfed/cluster/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.PluginConfig {
	cfg := config.DefaultPluginConfig()
	cfg.NodeID = 1
	cfg.MessageType = 7
	cfg.NodeGRPCAddrs = []config.NodeAddr{
		{ID: 1, Addr: "127.0.0.1:17001"},
		{ID: 2, Addr: "127.0.0.1:17002"},
	}
	return &cfg
}

func TestNewPlugin_WiresComponentsWithoutStarting(t *testing.T) {
	p := NewPlugin(testConfig(), t.TempDir())
	require.NotNil(t, p.Router())
	require.NotNil(t, p.Shared())
	require.NotNil(t, p.Retainer())
	require.NotNil(t, p.Registry())

	attrs := p.Attrs()
	clients, ok := attrs["grpc_clients"].(map[string]GRPCClientStats)
	require.True(t, ok)
	_, hasPeer2 := clients["2"]
	assert.True(t, hasPeer2, "peer 2 should be pooled, this node's own entry excluded")
	_, hasSelf := clients["1"]
	assert.False(t, hasSelf, "this node's own grpc entry must not appear as a peer")
}

func TestPlugin_HealthIsUnhealthyBeforeStart(t *testing.T) {
	p := NewPlugin(testConfig(), t.TempDir())
	health := p.Health(context.Background())
	assert.Equal(t, broker.HealthUnhealthy, health.Status)
}

func TestFabricJoiner_SendJoinRequest_UnknownPeerErrors(t *testing.T) {
	cfg := testConfig()
	p := NewPlugin(cfg, t.TempDir())
	joiner := &fabricJoiner{fabric: p.fabric, messageType: cfg.MessageType}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := joiner.SendJoinRequest(ctx, broker.NodeID(99), 1, "127.0.0.1:18000")
	require.Error(t, err)
}
