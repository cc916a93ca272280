package webhook

import (
	"github.com/brokerfed/cluster/pkg/broker"
	"github.com/brokerfed/cluster/pkg/hook"
)

// messageKind discriminates the WebHookMessage tagged union.
type messageKind int

const (
	kindBody messageKind = iota
	kindExit
)

// Message is the value handed off through the bounded queue: either a
// serialized event body to dispatch, or the Exit sentinel a hot
// reconfiguration uses to drain an outgoing worker pool.
type Message struct {
	kind     messageKind
	typ      hook.Type
	hasTopic bool
	topic    broker.Topic
	body     map[string]any
}

func bodyMessage(typ hook.Type, topic broker.Topic, hasTopic bool, body map[string]any) Message {
	return Message{kind: kindBody, typ: typ, hasTopic: hasTopic, topic: topic, body: body}
}

func exitMessage() Message {
	return Message{kind: kindExit}
}

func (m Message) isExit() bool { return m.kind == kindExit }
