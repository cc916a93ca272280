// Package hook implements the shared hook bus: a registry mapping each
// event type to an ordered chain of handlers, and the dispatch loop that
// drives it. Both the cluster plugin and the web-hook plugin attach their
// handlers to one Bus instance owned by the host broker.
package hook
