package rpc

import "github.com/brokerfed/cluster/pkg/broker"

// Kind discriminates the tagged union carried in Message/Reply.
type Kind int

const (
	KindForwards Kind = iota
	KindKick
	KindGetRetains
	KindNumberOfClients
	KindNumberOfSessions
	KindData
)

func (k Kind) String() string {
	switch k {
	case KindForwards:
		return "Forwards"
	case KindKick:
		return "Kick"
	case KindGetRetains:
		return "GetRetains"
	case KindNumberOfClients:
		return "NumberOfClients"
	case KindNumberOfSessions:
		return "NumberOfSessions"
	case KindData:
		return "Data"
	default:
		return "Unknown"
	}
}

// Forwards asks the receiving peer to deliver a publish to subscribers
// it owns.
type Forwards struct {
	From    broker.ClientID
	Publish broker.Publish
}

// Kick asks the receiving peer to terminate a local session.
type Kick struct {
	ClientID broker.ClientID
	Reason   string
}

// GetRetains asks the receiving peer for its locally stored retained
// messages matching filter.
type GetRetains struct {
	Filter broker.TopicFilter
}

// RetainEntry pairs a concrete topic with its retained record, the shape
// GetRetains replies carry.
type RetainEntry struct {
	Topic  broker.Topic
	Retain broker.Retain
}

// Message is the request half of the tagged union described in the
// component's data model: exactly one of the typed fields is set,
// matching Kind. MessageType is the deployment-wide discriminator that
// lets multiple plugins share one gRPC transport.
type Message struct {
	MessageType int32
	Kind        Kind

	// CorrelationID identifies one logical call across its send attempts.
	// It is carried on the wire to the peer; no log line on either side
	// currently includes it.
	CorrelationID string `json:",omitempty"`

	Forwards   *Forwards   `json:",omitempty"`
	Kick       *Kick       `json:",omitempty"`
	GetRetains *GetRetains `json:",omitempty"`
	Data       []byte      `json:",omitempty"`
}

// Clone returns a deep copy of the message, safe to hand to a concurrent
// sender independent of the original. The broadcast coordinator clones
// for every peer but the last, which receives the original by reference
// (see broadcast.Coordinator.Broadcast).
func (m *Message) Clone() *Message {
	clone := *m
	if m.Forwards != nil {
		f := *m.Forwards
		f.Publish.Payload = append([]byte(nil), m.Forwards.Publish.Payload...)
		clone.Forwards = &f
	}
	if m.Kick != nil {
		k := *m.Kick
		clone.Kick = &k
	}
	if m.GetRetains != nil {
		g := *m.GetRetains
		clone.GetRetains = &g
	}
	if m.Data != nil {
		clone.Data = append([]byte(nil), m.Data...)
	}
	return &clone
}

// Reply is the symmetric response half.
type Reply struct {
	Kind Kind

	// Forwards/Kick/Data replies carry no payload beyond acknowledgement;
	// an RPC error return already signals failure, so there is nothing to
	// embed here for them.
	GetRetains      []RetainEntry `json:",omitempty"`
	NumberOfClients int64         `json:",omitempty"`
	NumberOfSessions int64        `json:",omitempty"`
	Data            []byte        `json:",omitempty"`
}
