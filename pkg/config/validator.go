package config

import "fmt"

// ValidationError reports a single invalid field, a plain {Field,
// Message} shape rather than a struct-tag-driven validator.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// Validate checks the invariants a PluginConfig must satisfy before the
// cluster or web-hook plugin can start: when raft_peer_addrs is
// non-empty it must contain this node's own address (an empty list is
// accepted here and left for the raft supervisor to reject at Start),
// and the dispatcher requires positive queue/worker sizes.
func (c *PluginConfig) Validate() error {
	if len(c.RaftPeerAddrs) > 0 {
		if _, ok := c.OwnRaftAddr(); !ok {
			return &ValidationError{
				Field:   "raft_peer_addrs",
				Message: fmt.Sprintf("no entry for node_id %d", c.NodeID),
			}
		}
	}

	if c.WorkerThreads <= 0 {
		return &ValidationError{Field: "worker_threads", Message: "must be positive"}
	}
	if c.AsyncQueueCapacity <= 0 {
		return &ValidationError{Field: "async_queue_capacity", Message: "must be positive"}
	}
	if c.ForwardMaxRetries < 0 {
		return &ValidationError{Field: "forward_max_retries", Message: "must not be negative"}
	}
	return nil
}

// OwnRaftAddr returns this node's listen address from RaftPeerAddrs, the
// lookup the Raft supervisor performs at startup.
func (c *PluginConfig) OwnRaftAddr() (string, bool) {
	for _, a := range c.RaftPeerAddrs {
		if a.ID == c.NodeID {
			return a.Addr, true
		}
	}
	return "", false
}

// PeerRaftAddrs returns every RaftPeerAddrs entry excluding this node's
// own, the set the supervisor's leader-discovery probe dials.
func (c *PluginConfig) PeerRaftAddrs() []NodeAddr {
	out := make([]NodeAddr, 0, len(c.RaftPeerAddrs))
	for _, a := range c.RaftPeerAddrs {
		if a.ID != c.NodeID {
			out = append(out, a)
		}
	}
	return out
}

// PeerGRPCAddrs returns every NodeGRPCAddrs entry excluding this node's
// own, the set the RPC fabric dials.
func (c *PluginConfig) PeerGRPCAddrs() []NodeAddr {
	out := make([]NodeAddr, 0, len(c.NodeGRPCAddrs))
	for _, a := range c.NodeGRPCAddrs {
		if a.ID != c.NodeID {
			out = append(out, a)
		}
	}
	return out
}
