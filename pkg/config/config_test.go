package config

import (
	"testing"

	"github.com/brokerfed/cluster/pkg/hook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseYAML_ValidConfig(t *testing.T) {
	data := []byte(`
node_id: 1
raft_peer_addrs:
  - id: 1
    addr: "127.0.0.1:7001"
  - id: 2
    addr: "127.0.0.1:7002"
node_grpc_addrs:
  - id: 1
    addr: "127.0.0.1:9001"
  - id: 2
    addr: "127.0.0.1:9002"
worker_threads: 2
async_queue_capacity: 16
rules:
  SessionCreated:
    - action: session_created
      urls: ["http://h1", "http://h2"]
`)
	cfg, err := ParseYAML(data)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.WorkerThreads)
	addr, ok := cfg.OwnRaftAddr()
	require.True(t, ok)
	assert.Equal(t, "127.0.0.1:7001", addr)
	assert.Len(t, cfg.PeerRaftAddrs(), 1)

	rules, ok := cfg.Rules[hook.SessionCreated]
	require.True(t, ok)
	require.Len(t, rules, 1)
	assert.Equal(t, "session_created", rules[0].Action)
}

func TestParseYAML_MissingOwnRaftAddrFails(t *testing.T) {
	data := []byte(`
node_id: 9
raft_peer_addrs:
  - id: 1
    addr: "127.0.0.1:7001"
worker_threads: 1
async_queue_capacity: 1
`)
	_, err := ParseYAML(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "raft_peer_addrs")
}

func TestParseYAML_InvalidHookTypeNameFails(t *testing.T) {
	data := []byte(`
worker_threads: 1
async_queue_capacity: 1
rules:
  NotARealHookType:
    - action: x
`)
	_, err := ParseYAML(data)
	require.Error(t, err)
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path/config.yaml")
	require.ErrorIs(t, err, ErrFileNotFound)
}
