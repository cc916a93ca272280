package cluster

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/brokerfed/cluster/pkg/broker"
	"github.com/brokerfed/cluster/pkg/hook"
	"github.com/brokerfed/cluster/pkg/logging"
	"github.com/brokerfed/cluster/pkg/retain"
	"github.com/brokerfed/cluster/pkg/rpc"
)

// JoinRequest is the payload carried in a KindData message used to ask
// the leader to admit a new Raft voter, since hashicorp/raft has no RPC
// of its own for a prospective follower to announce itself.
type JoinRequest struct {
	NodeID   broker.NodeID
	RaftAddr string
}

// JoinHandler admits a node into the Raft configuration. The cluster
// plugin's Supervisor.Mailbox satisfies it through a small adapter.
type JoinHandler interface {
	AddVoter(id broker.NodeID, addr string) error
}

// Deliverer is the local delivery pipeline a real broker provides:
// inject a forwarded publish into this node's normal fan-out to
// matching local subscribers.
type Deliverer interface {
	Deliver(ctx context.Context, to *broker.Client, pub broker.Publish) error
}

// SessionKiller terminates a local session, used to act on an inbound Kick.
type SessionKiller interface {
	Kick(ctx context.Context, clientID broker.ClientID, reason string) error
}

// Counters answers the cheap cluster-wide counter RPCs.
type Counters interface {
	NumberOfClients() int64
	NumberOfSessions() int64
}

// Shared is the hook-bus-facing half of the cluster plugin: component E.
// It owns no broker internals directly — Deliverer/SessionKiller/
// Counters are the seams a host broker implements.
type Shared struct {
	router      *Router
	retainer    *retain.Retainer
	fabric      *rpc.Fabric
	bus         *hook.Bus
	messageType int32
	selfNode    broker.NodeID

	deliver     Deliverer
	kill        SessionKiller
	counters    Counters
	joinHandler JoinHandler

	forwardMaxRetries    int
	forwardRetryInterval time.Duration

	log *slog.Logger
}

// NewShared constructs Shared with no Deliverer, SessionKiller or
// Counters attached; SetCollaborators installs them. While one is nil,
// the inbound call that needs it answers with an empty reply (counters
// report 0).
func NewShared(router *Router, retainer *retain.Retainer, fabric *rpc.Fabric, bus *hook.Bus, selfNode broker.NodeID, messageType int32) *Shared {
	return &Shared{
		router:               router,
		retainer:             retainer,
		fabric:               fabric,
		bus:                  bus,
		messageType:          messageType,
		selfNode:             selfNode,
		forwardMaxRetries:    3,
		forwardRetryInterval: 500 * time.Millisecond,
		log:                  logging.Nop(),
	}
}

// SetLogger installs the logger used across Shared's handlers.
func (s *Shared) SetLogger(l *slog.Logger) {
	if l == nil {
		l = logging.Nop()
	}
	s.log = l
}

// SetCollaborators wires the host broker's delivery/kill/counter
// implementations in, separately from construction so Router/Shared can
// be built before the broker's session layer is ready.
func (s *Shared) SetCollaborators(deliver Deliverer, kill SessionKiller, counters Counters) {
	s.deliver, s.kill, s.counters = deliver, kill, counters
}

// SetJoinHandler installs the handler used to admit an inbound
// KindData join request as a new Raft voter. Only meaningful on the node
// currently serving as leader; hashicorp/raft itself rejects AddVoter
// calls on a follower.
func (s *Shared) SetJoinHandler(h JoinHandler) {
	s.joinHandler = h
}

// SetForwardRetry overrides the retrying sender's parameters used by Forwards.
func (s *Shared) SetForwardRetry(maxRetries int, interval time.Duration) {
	s.forwardMaxRetries, s.forwardRetryInterval = maxRetries, interval
}

// Register attaches Shared's handlers to bus: ownership tracking on
// connect/disconnect, route-table maintenance on subscribe/unsubscribe
// so Forwards has somewhere to send a publish, and the forwarding call
// itself on every local publish.
func (s *Shared) Register(bus *hook.Bus) {
	bus.Register(hook.ClientConnected, hook.HandlerFunc(s.onClientConnected))
	bus.Register(hook.ClientDisconnected, hook.HandlerFunc(s.onClientGone))
	bus.Register(hook.SessionTerminated, hook.HandlerFunc(s.onClientGone))
	bus.Register(hook.SessionSubscribed, hook.HandlerFunc(s.onSubscribed))
	bus.Register(hook.SessionUnsubscribed, hook.HandlerFunc(s.onUnsubscribed))
	bus.Register(hook.MessagePublish, hook.HandlerFunc(s.onPublish))
}

// onPublish forwards a locally published message to every peer that owns
// a matching subscriber, the production entry point for Forwards. Any
// peer delivery failure is reported back through MessageDropped so
// web-hook rules and metrics see it the same way a local delivery
// failure would be seen.
func (s *Shared) onPublish(event hook.Event, acc hook.Result) (hook.Return, error) {
	ev, ok := event.(*hook.PublishEvent)
	if !ok {
		return hook.Return{Continue: true, Acc: acc}, nil
	}
	var from broker.ClientID
	if ev.From != nil {
		from = ev.From.ID
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, d := range s.Forwards(ctx, from, ev.Publish) {
		s.dispatchMessageDropped(ev.Publish, d.Reason)
	}
	return hook.Return{Continue: true, Acc: acc}, nil
}

func (s *Shared) onClientConnected(event hook.Event, acc hook.Result) (hook.Return, error) {
	ce, ok := event.(*hook.ConnectEvent)
	if !ok || ce.Client == nil {
		return hook.Return{Continue: true, Acc: acc}, nil
	}
	clientID, node := ce.Client.ID, ce.Client.Node

	prevOwner, hadPrev := s.router.OwnerOf(clientID)

	if err := s.router.Propose(Command{Op: OpClientAdd, ClientID: clientID, NodeID: node}); err != nil {
		s.log.Error("cluster: propose ClientAdd failed", "client", clientID, "error", err)
		return hook.Return{Continue: true, Acc: acc}, nil
	}

	if hadPrev && prevOwner != node {
		s.kickPreviousOwner(clientID, prevOwner)
	}
	return hook.Return{Continue: true, Acc: acc}, nil
}

func (s *Shared) kickPreviousOwner(clientID broker.ClientID, owner broker.NodeID) {
	client, err := s.fabric.Client(owner)
	if err != nil {
		s.log.Warn("cluster: cannot reach previous owner to kick", "client", clientID, "owner", owner, "error", err)
		return
	}
	msg := &rpc.Message{
		MessageType: s.messageType,
		Kind:        rpc.KindKick,
		Kick:        &rpc.Kick{ClientID: clientID, Reason: "duplicated connection"},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.SendMessage(ctx, msg); err != nil {
		s.log.Warn("cluster: kick RPC failed", "client", clientID, "owner", owner, "error", err)
	}
}

// onClientGone handles ClientDisconnected and SessionTerminated: a
// best-effort ClientRemove proposal. Failure is logged and the event
// proceeds regardless — the log eventually recovers.
func (s *Shared) onClientGone(event hook.Event, acc hook.Result) (hook.Return, error) {
	var clientID broker.ClientID
	var node broker.NodeID
	switch ev := event.(type) {
	case *hook.DisconnectEvent:
		if ev.Client == nil {
			return hook.Return{Continue: true, Acc: acc}, nil
		}
		clientID, node = ev.Client.ID, ev.Client.Node
	default:
		return hook.Return{Continue: true, Acc: acc}, nil
	}

	if err := s.router.Propose(Command{Op: OpClientRemove, ClientID: clientID, NodeID: node}); err != nil {
		s.log.Warn("cluster: propose ClientRemove failed, will reconcile on next raft activity", "client", clientID, "error", err)
	}
	return hook.Return{Continue: true, Acc: acc}, nil
}

func (s *Shared) onSubscribed(event hook.Event, acc hook.Result) (hook.Return, error) {
	ev, ok := event.(*hook.SubscribeEvent)
	if !ok || ev.Client == nil {
		return hook.Return{Continue: true, Acc: acc}, nil
	}
	for _, f := range ev.Filters {
		if err := s.router.Propose(Command{Op: OpRouteAdd, Filter: f, ClientID: ev.Client.ID, NodeID: ev.Client.Node}); err != nil {
			s.log.Warn("cluster: propose RouteAdd failed", "filter", f, "error", err)
		}
	}
	return hook.Return{Continue: true, Acc: acc}, nil
}

func (s *Shared) onUnsubscribed(event hook.Event, acc hook.Result) (hook.Return, error) {
	ev, ok := event.(*hook.SubscribeEvent)
	if !ok || ev.Client == nil {
		return hook.Return{Continue: true, Acc: acc}, nil
	}
	for _, f := range ev.Filters {
		if err := s.router.Propose(Command{Op: OpRouteRemove, Filter: f, ClientID: ev.Client.ID, NodeID: ev.Client.Node}); err != nil {
			s.log.Warn("cluster: propose RouteRemove failed", "filter", f, "error", err)
		}
	}
	return hook.Return{Continue: true, Acc: acc}, nil
}

// DroppedPublish describes a publish that could not be forwarded to one
// of its owning peers, reported to the broker's message_dropped hook.
type DroppedPublish struct {
	To     broker.NodeID
	Reason string
}

// Forwards fans pub out to every peer that owns a matching subscriber,
// using the retrying sender, and returns the set of peers delivery
// failed for so the caller can synthesize message_dropped hook events.
func (s *Shared) Forwards(ctx context.Context, from broker.ClientID, pub broker.Publish) []DroppedPublish {
	entries := s.router.MatchRoutes(pub.Topic)

	owningNodes := make(map[broker.NodeID]struct{})
	for _, e := range entries {
		if e.NodeID != s.selfNode {
			owningNodes[e.NodeID] = struct{}{}
		}
	}

	var dropped []DroppedPublish
	for node := range owningNodes {
		client, err := s.fabric.Client(node)
		if err != nil {
			dropped = append(dropped, DroppedPublish{To: node, Reason: err.Error()})
			continue
		}
		msg := &rpc.Message{
			MessageType: s.messageType,
			Kind:        rpc.KindForwards,
			Forwards:    &rpc.Forwards{From: from, Publish: pub},
		}
		if _, err := client.SendWithRetry(ctx, msg, s.forwardMaxRetries, s.forwardRetryInterval); err != nil {
			dropped = append(dropped, DroppedPublish{To: node, Reason: err.Error()})
		}
	}
	return dropped
}

// Receive implements rpc.Receiver: it answers a peer's inbound call,
// handed to it directly by rpc.Server (no GrpcMessageReceived hook event
// is dispatched for it).
func (s *Shared) Receive(ctx context.Context, msg *rpc.Message) (*rpc.Reply, error) {
	switch msg.Kind {
	case rpc.KindForwards:
		return s.handleForwards(ctx, msg)
	case rpc.KindKick:
		return s.handleKick(ctx, msg)
	case rpc.KindGetRetains:
		return s.handleGetRetains(msg)
	case rpc.KindNumberOfClients:
		var n int64
		if s.counters != nil {
			n = s.counters.NumberOfClients()
		}
		return &rpc.Reply{Kind: rpc.KindNumberOfClients, NumberOfClients: n}, nil
	case rpc.KindNumberOfSessions:
		var n int64
		if s.counters != nil {
			n = s.counters.NumberOfSessions()
		}
		return &rpc.Reply{Kind: rpc.KindNumberOfSessions, NumberOfSessions: n}, nil
	case rpc.KindData:
		return s.handleJoinRequest(msg)
	default:
		return &rpc.Reply{Kind: msg.Kind}, nil
	}
}

// handleJoinRequest decodes msg.Data as a JoinRequest and, if this node
// is currently the Raft leader, admits the requesting node as a voter.
// A non-leader (or any decode failure) answers without error; the
// requester's supervisor falls back to its degraded-mode startup probe.
func (s *Shared) handleJoinRequest(msg *rpc.Message) (*rpc.Reply, error) {
	if s.joinHandler == nil || len(msg.Data) == 0 {
		return &rpc.Reply{Kind: rpc.KindData}, nil
	}
	var req JoinRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.log.Warn("cluster: malformed join request", "error", err)
		return &rpc.Reply{Kind: rpc.KindData}, nil
	}
	if err := s.joinHandler.AddVoter(req.NodeID, req.RaftAddr); err != nil {
		s.log.Warn("cluster: add voter failed", "node", req.NodeID, "error", err)
	}
	return &rpc.Reply{Kind: rpc.KindData}, nil
}

func (s *Shared) handleForwards(ctx context.Context, msg *rpc.Message) (*rpc.Reply, error) {
	if msg.Forwards == nil || s.deliver == nil {
		return &rpc.Reply{Kind: rpc.KindForwards}, nil
	}
	entries := s.router.MatchRoutes(msg.Forwards.Publish.Topic)
	for _, e := range entries {
		if e.NodeID != s.selfNode {
			continue
		}
		client := &broker.Client{ID: e.ClientID, Node: e.NodeID}
		if err := s.deliver.Deliver(ctx, client, msg.Forwards.Publish); err != nil {
			s.log.Warn("cluster: local delivery of forwarded publish failed", "client", e.ClientID, "error", err)
			s.dispatchMessageDropped(msg.Forwards.Publish, err.Error())
		}
	}
	return &rpc.Reply{Kind: rpc.KindForwards}, nil
}

func (s *Shared) handleKick(ctx context.Context, msg *rpc.Message) (*rpc.Reply, error) {
	if msg.Kick == nil || s.kill == nil {
		return &rpc.Reply{Kind: rpc.KindKick}, nil
	}
	if err := s.kill.Kick(ctx, msg.Kick.ClientID, msg.Kick.Reason); err != nil {
		return nil, err
	}
	return &rpc.Reply{Kind: rpc.KindKick}, nil
}

func (s *Shared) handleGetRetains(msg *rpc.Message) (*rpc.Reply, error) {
	if msg.GetRetains == nil {
		return &rpc.Reply{Kind: rpc.KindGetRetains}, nil
	}
	entries := s.retainer.HandleGetRetains(msg.GetRetains.Filter)
	return &rpc.Reply{Kind: rpc.KindGetRetains, GetRetains: entries}, nil
}

func (s *Shared) dispatchMessageDropped(pub broker.Publish, reason string) {
	if s.bus == nil {
		return
	}
	s.bus.Dispatch(&hook.PublishEvent{
		Base:    hook.Base{Type: hook.MessageDropped, Topic: pub.Topic, HasTopic: true},
		Publish: pub,
		Reason:  reason,
	})
}
