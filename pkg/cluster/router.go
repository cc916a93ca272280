package cluster

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/brokerfed/cluster/pkg/broker"
	"github.com/brokerfed/cluster/pkg/logging"
	"github.com/brokerfed/cluster/pkg/raftsup"
	"github.com/hashicorp/raft"
)

// RouteEntry is one (TopicFilter -> owning client) replicated entry.
type RouteEntry struct {
	NodeID   broker.NodeID
	ClientID broker.ClientID
}

// Router is the Raft state machine backing the cluster's session
// locator and route table. Per the design notes' self-referential
// coupling, it is constructed first with no mailbox, handed to Raft as
// the FSM, and only later given a Mailbox once Raft has started
// (SetMailbox) — Propose returns raftsup.ErrMailboxNotReady until then.
type Router struct {
	mu      sync.RWMutex
	owners  map[broker.ClientID]broker.NodeID
	routes  map[broker.TopicFilter][]RouteEntry
	mailbox *raftsup.Mailbox
	log     *slog.Logger
}

// NewRouter constructs an empty Router with no mailbox attached.
func NewRouter() *Router {
	return &Router{
		owners: make(map[broker.ClientID]broker.NodeID),
		routes: make(map[broker.TopicFilter][]RouteEntry),
		log:    logging.Nop(),
	}
}

// SetLogger installs the logger used for FSM apply diagnostics.
func (r *Router) SetLogger(l *slog.Logger) {
	if l == nil {
		l = logging.Nop()
	}
	r.log = l
}

// SetMailbox performs the late binding described in the design notes:
// once Raft is up, the supervisor hands the Router its own mailbox so
// hook handlers can propose through it.
func (r *Router) SetMailbox(m *raftsup.Mailbox) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mailbox = m
}

// Propose encodes and submits cmd through the attached mailbox.
func (r *Router) Propose(cmd Command) error {
	r.mu.RLock()
	mailbox := r.mailbox
	r.mu.RUnlock()
	if mailbox == nil {
		return raftsup.ErrMailboxNotReady
	}
	data, err := cmd.Encode()
	if err != nil {
		return fmt.Errorf("cluster: encode command: %w", err)
	}
	return mailbox.Propose(data)
}

// OwnerOf returns the node currently owning clientID's session.
func (r *Router) OwnerOf(clientID broker.ClientID) (broker.NodeID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.owners[clientID]
	return n, ok
}

// MatchRoutes returns every route entry whose filter matches topic,
// the lookup Shared.Forwards uses to find owning peers.
func (r *Router) MatchRoutes(topic broker.Topic) []RouteEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []RouteEntry
	for filter, entries := range r.routes {
		if broker.MatchTopic(filter, topic) {
			out = append(out, entries...)
		}
	}
	return out
}

// Apply implements raft.FSM: it decodes and applies one replicated
// Command to the in-memory owners/routes tables.
func (r *Router) Apply(log *raft.Log) any {
	cmd, err := DecodeCommand(log.Data)
	if err != nil {
		r.log.Error("cluster: router apply: bad command", "error", err)
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch cmd.Op {
	case OpClientAdd:
		r.owners[cmd.ClientID] = cmd.NodeID
	case OpClientRemove:
		if r.owners[cmd.ClientID] == cmd.NodeID {
			delete(r.owners, cmd.ClientID)
		}
	case OpRouteAdd:
		r.routes[cmd.Filter] = append(r.routes[cmd.Filter], RouteEntry{NodeID: cmd.NodeID, ClientID: cmd.ClientID})
	case OpRouteRemove:
		entries := r.routes[cmd.Filter]
		for i, e := range entries {
			if e.NodeID == cmd.NodeID && e.ClientID == cmd.ClientID {
				r.routes[cmd.Filter] = append(entries[:i:i], entries[i+1:]...)
				break
			}
		}
	}
	return nil
}

// routerState is the JSON shape persisted by Snapshot/Restore.
type routerState struct {
	Owners map[broker.ClientID]broker.NodeID
	Routes map[broker.TopicFilter][]RouteEntry
}

// Snapshot implements raft.FSM.
func (r *Router) Snapshot() (raft.FSMSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	owners := make(map[broker.ClientID]broker.NodeID, len(r.owners))
	for k, v := range r.owners {
		owners[k] = v
	}
	routes := make(map[broker.TopicFilter][]RouteEntry, len(r.routes))
	for k, v := range r.routes {
		routes[k] = append([]RouteEntry(nil), v...)
	}
	return &routerSnapshot{state: routerState{Owners: owners, Routes: routes}}, nil
}

// Restore implements raft.FSM.
func (r *Router) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	var state routerState
	if err := json.NewDecoder(rc).Decode(&state); err != nil {
		return fmt.Errorf("cluster: restore snapshot: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if state.Owners == nil {
		state.Owners = make(map[broker.ClientID]broker.NodeID)
	}
	if state.Routes == nil {
		state.Routes = make(map[broker.TopicFilter][]RouteEntry)
	}
	r.owners = state.Owners
	r.routes = state.Routes
	return nil
}

type routerSnapshot struct {
	state routerState
}

func (s *routerSnapshot) Persist(sink raft.SnapshotSink) error {
	err := json.NewEncoder(sink).Encode(s.state)
	if err != nil {
		_ = sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *routerSnapshot) Release() {}
