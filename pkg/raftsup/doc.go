// Package raftsup is the Raft Supervisor: it owns the hashicorp/raft
// engine on a dedicated goroutine, discovers whether a leader already
// exists among the configured peers, joins as a follower or bootstraps
// as the initial leader, and exposes a clone-safe Mailbox the rest of
// the plugin uses to propose log entries and query status.
//
// Raft log/stable storage uses raft-boltdb; snapshots are kept in
// memory, since durable snapshot persistence is outside what this
// plugin's Non-goals ask for (crash recovery of cluster state is not a
// guarantee this plugin makes — see DESIGN.md).
package raftsup
