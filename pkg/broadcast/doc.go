// Package broadcast implements the scatter-gather coordinator: send one
// message to every peer in the fabric, await every reply independently,
// and report each peer's result without letting one failure cancel the
// others.
package broadcast
