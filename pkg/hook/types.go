package hook

import "github.com/brokerfed/cluster/pkg/broker"

// Type identifies one of the broker's ~20 extension points. The set below
// matches the names the companion counter plugin registers against, which
// is the authoritative list of event types a hook bus must support.
type Type int

const (
	ClientConnect Type = iota
	ClientAuthenticate
	ClientConnack
	ClientConnected
	ClientDisconnected
	ClientSubscribe
	ClientUnsubscribe
	ClientSubscribeCheckAcl
	MessagePublishCheckAcl
	SessionCreated
	SessionTerminated
	SessionSubscribed
	SessionUnsubscribed
	MessagePublish
	MessageDelivered
	MessageAcked
	MessageDropped
	GrpcMessageReceived
)

// String returns the event type's canonical name, used in log lines and
// as the map key into a Rule set.
func (t Type) String() string {
	switch t {
	case ClientConnect:
		return "ClientConnect"
	case ClientAuthenticate:
		return "ClientAuthenticate"
	case ClientConnack:
		return "ClientConnack"
	case ClientConnected:
		return "ClientConnected"
	case ClientDisconnected:
		return "ClientDisconnected"
	case ClientSubscribe:
		return "ClientSubscribe"
	case ClientUnsubscribe:
		return "ClientUnsubscribe"
	case ClientSubscribeCheckAcl:
		return "ClientSubscribeCheckAcl"
	case MessagePublishCheckAcl:
		return "MessagePublishCheckAcl"
	case SessionCreated:
		return "SessionCreated"
	case SessionTerminated:
		return "SessionTerminated"
	case SessionSubscribed:
		return "SessionSubscribed"
	case SessionUnsubscribed:
		return "SessionUnsubscribed"
	case MessagePublish:
		return "MessagePublish"
	case MessageDelivered:
		return "MessageDelivered"
	case MessageAcked:
		return "MessageAcked"
	case MessageDropped:
		return "MessageDropped"
	case GrpcMessageReceived:
		return "GrpcMessageReceived"
	default:
		return "Unknown"
	}
}

// allTypes lists every Type in declaration order, used by ParseType.
var allTypes = []Type{
	ClientConnect, ClientAuthenticate, ClientConnack, ClientConnected,
	ClientDisconnected, ClientSubscribe, ClientUnsubscribe, ClientSubscribeCheckAcl,
	MessagePublishCheckAcl, SessionCreated, SessionTerminated, SessionSubscribed,
	SessionUnsubscribed, MessagePublish, MessageDelivered, MessageAcked,
	MessageDropped, GrpcMessageReceived,
}

// ParseType resolves a hook type by its String() name, as used in
// config rule maps. It reports ok=false for an unrecognized name.
func ParseType(name string) (t Type, ok bool) {
	for _, candidate := range allTypes {
		if candidate.String() == name {
			return candidate, true
		}
	}
	return 0, false
}

// Event is the tagged union dispatched through the bus. Concrete event
// types embed Base and implement Kind. Handlers type-switch on the
// concrete type to reach event-specific fields.
type Event interface {
	Kind() Type
}

// Base carries the fields common to every event: the session and
// connecting client the event concerns, and the topic (if any) a
// web-hook rule can filter on.
type Base struct {
	Type    Type
	Session *broker.Session
	Client  *broker.Client
	Topic   broker.Topic // zero value means "no topic"
	HasTopic bool
}

func (b Base) Kind() Type { return b.Type }

// ConnectEvent covers ClientConnect/ClientAuthenticate/ClientConnack/ClientConnected.
type ConnectEvent struct {
	Base
	ConnAck uint8 // present for ClientConnack
}

// DisconnectEvent covers ClientDisconnected/SessionTerminated.
type DisconnectEvent struct {
	Base
	Reason         string
	DisconnectedAt int64
}

// SubscribeEvent covers ClientSubscribe/ClientUnsubscribe/SessionSubscribed/
// SessionUnsubscribed/ClientSubscribeCheckAcl. Filters holds one
// entry per filter in the originating packet; Base.Topic/HasTopic is set
// per-filter by callers that need to dispatch one event per filter.
type SubscribeEvent struct {
	Base
	Filters []broker.TopicFilter
	QoS     byte
}

// PublishEvent covers MessagePublish/MessagePublishCheckAcl/MessageDelivered/
// MessageAcked/MessageDropped.
type PublishEvent struct {
	Base
	From    *broker.Client
	To      *broker.Client // set for Delivered/Acked/Dropped when known
	Publish broker.Publish
	Reason  string // set for MessageDropped
}

// GrpcEvent carries a peer's RPC arriving through GrpcMessageReceived.
type GrpcEvent struct {
	Base
	FromNode broker.NodeID
	Payload  any // concrete rpc.Message
}

// Result is the value a handler may accumulate and pass to the next
// handler in the chain.
type Result any

// Return is what a handler hands back to the bus: whether dispatch
// should continue to the next handler, and the (possibly updated)
// accumulator.
type Return struct {
	Continue bool
	Acc      Result
}

// Handler is implemented by anything that wants to sit in a hook chain.
type Handler interface {
	Hook(event Event, acc Result) (Return, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(event Event, acc Result) (Return, error)

func (f HandlerFunc) Hook(event Event, acc Result) (Return, error) { return f(event, acc) }

// Token identifies one registration, returned by Bus.Register. Removing
// via the same token twice is a no-op, matching the idempotent-per-token
// contract.
type Token struct {
	typ Type
	seq uint64
}
