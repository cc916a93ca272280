package config

import (
	"time"

	"github.com/brokerfed/cluster/pkg/broker"
	"github.com/brokerfed/cluster/pkg/hook"
)

// NodeAddr pairs a cluster NodeId with the address it listens on, used
// for both the gRPC peer fabric and the Raft transport.
type NodeAddr struct {
	ID   broker.NodeID `yaml:"id"`
	Addr string        `yaml:"addr"`
}

// Rule is one web-hook dispatch rule: when it fires (optionally filtered
// by topic), which URLs to POST to, and the "action" label stamped into
// the body.
type Rule struct {
	Action string                 `yaml:"action"`
	Topics []broker.TopicFilter   `yaml:"topics,omitempty"`
	URLs   []string               `yaml:"urls,omitempty"`
}

// RuleSet maps a hook type to the rules that fire for it. YAML keys are
// the hook.Type string names (see hook.Type.String), converted on load.
type RuleSet map[hook.Type][]Rule

// PluginConfig is the full configuration surface for both plugins,
// matching the schema in the external-interfaces contract: peer
// addresses for the RPC fabric and Raft transport, the RPC message type
// discriminator, and the web-hook dispatcher's queue/worker/rule
// settings.
type PluginConfig struct {
	// NodeGRPCAddrs lists every peer's gRPC listen address, including this
	// node's own entry (the fabric skips dialing itself).
	NodeGRPCAddrs []NodeAddr `yaml:"node_grpc_addrs"`

	// RaftPeerAddrs lists every peer's Raft transport address. This
	// node's own address is located by matching NodeID.
	RaftPeerAddrs []NodeAddr `yaml:"raft_peer_addrs"`

	// NodeID is this process's identity within the cluster.
	NodeID broker.NodeID `yaml:"node_id"`

	// MessageType is the RPC discriminator this deployment uses to route
	// inbound messages to this plugin's handler, distinct from any other
	// plugin that might share the same gRPC transport.
	MessageType int32 `yaml:"message_type"`

	// ForwardMaxRetries bounds the retrying sender used by Shared.Forwards.
	ForwardMaxRetries int `yaml:"forward_max_retries"`
	// ForwardRetryInterval is the fixed delay between forward attempts.
	ForwardRetryInterval time.Duration `yaml:"forward_retry_interval"`

	// WorkerThreads sizes the web-hook dispatcher's worker pool.
	WorkerThreads int `yaml:"worker_threads"`
	// AsyncQueueCapacity bounds the web-hook handoff queue.
	AsyncQueueCapacity int `yaml:"async_queue_capacity"`
	// HTTPTimeout is the per-request total timeout for web-hook POSTs.
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	// HTTPURLs is the fallback URL list used when a rule has none of its own.
	HTTPURLs []string `yaml:"http_urls"`
	// Rules maps hook type to the dispatch rules that fire for it.
	Rules RuleSet `yaml:"rules"`
}

// DefaultPluginConfig returns the configuration used when a deployment
// does not override a given field: 3 forward retries at a 500ms
// interval, 4 web-hook workers, a 1024-entry queue and a 15s per-fan-out
// http_timeout. The web-hook HTTP client's own 8s connect / 15s total
// timeouts are fixed in that client, not configured here.
func DefaultPluginConfig() PluginConfig {
	return PluginConfig{
		ForwardMaxRetries:    3,
		ForwardRetryInterval: 500 * time.Millisecond,
		WorkerThreads:        4,
		AsyncQueueCapacity:   1024,
		HTTPTimeout:          15 * time.Second,
		Rules:                make(RuleSet),
	}
}
