// Package retain implements the cluster retainer: a local retained-
// message store overlaid with a cluster-wide GET that broadcasts
// GetRetains to every peer and merges the union. There is no cross-node
// replication of writes — the retained set is, by design, the union of
// whatever each node happens to hold locally.
package retain
