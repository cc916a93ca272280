// Package cluster implements component E, the Router and Shared, and
// wires together components B-F (pkg/rpc, pkg/broadcast, pkg/retain,
// pkg/raftsup) into the cluster plugin a host broker installs.
//
// Router is the Raft state machine: it replicates client ownership
// (the SessionLocator) and topic-filter route entries through the Raft
// log. Shared is the hook-bus-facing half: it proposes ownership
// changes on connect/disconnect, issues Kick RPCs against a superseded
// owner, answers a peer's inbound RPC, and fans a local publish out to
// every peer that owns a matching subscriber.
package cluster
