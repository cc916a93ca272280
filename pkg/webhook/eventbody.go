package webhook

import (
	"encoding/base64"

	"github.com/brokerfed/cluster/pkg/broker"
	"github.com/brokerfed/cluster/pkg/hook"
)

// buildBodies turns one hook.Event into the JSON body (or bodies, for a
// subscribe/unsubscribe event carrying more than one topic filter) the
// HTTP contract describes for its type. The returned slice shares
// hasTopic/topic for rule matching against each body's own map.
func buildBodies(event hook.Event) []Message {
	switch ev := event.(type) {
	case *hook.ConnectEvent:
		return []Message{bodyMessage(ev.Type, ev.Topic, ev.HasTopic, connectBody(ev))}
	case *hook.DisconnectEvent:
		return []Message{bodyMessage(ev.Type, ev.Topic, ev.HasTopic, disconnectBody(ev))}
	case *hook.SubscribeEvent:
		return subscribeBodies(ev)
	case *hook.PublishEvent:
		return []Message{bodyMessage(ev.Type, ev.Publish.Topic, true, publishBody(ev))}
	case *hook.GrpcEvent:
		return []Message{bodyMessage(ev.Type, ev.Topic, ev.HasTopic, grpcBody(ev))}
	default:
		return nil
	}
}

func clientFields(c *broker.Client) map[string]any {
	if c == nil {
		return map[string]any{}
	}
	return map[string]any{
		"node":       c.Node,
		"ipaddress":  c.RemoteAddr,
		"clientid":   c.ID,
		"username":   c.Username,
		"keepalive":  c.KeepAlive,
		"proto_ver":  c.ProtoVersion,
	}
}

// mqttV5 is the protocol-version byte MQTT v5 connect packets carry;
// anything lower is v3.1/v3.1.1, which calls the same flag clean_session.
const mqttV5 = 5

func connectBody(ev *hook.ConnectEvent) map[string]any {
	body := clientFields(ev.Client)
	cleanStart := ev.Client != nil && ev.Client.CleanStart
	if ev.Client != nil && ev.Client.ProtoVersion >= mqttV5 {
		body["clean_start"] = cleanStart
	} else {
		body["clean_session"] = cleanStart
	}
	if ev.Type == hook.ClientConnack {
		body["conn_ack"] = ev.ConnAck
	}
	if ev.Client != nil {
		if ev.Client.ConnectedAt != 0 {
			body["connected_at"] = ev.Client.ConnectedAt
		}
		if ev.Type == hook.ClientConnected {
			body["session_present"] = ev.Client.SessionPresent
		}
	}
	return body
}

func disconnectBody(ev *hook.DisconnectEvent) map[string]any {
	body := clientFields(ev.Client)
	body["reason"] = ev.Reason
	if ev.DisconnectedAt != 0 {
		body["disconnected_at"] = ev.DisconnectedAt
	}
	return body
}

// subscribeBodies emits one body per topic filter, per the HTTP
// contract's per-filter fan-out for Client/Session Subscribe/Unsubscribe.
func subscribeBodies(ev *hook.SubscribeEvent) []Message {
	out := make([]Message, 0, len(ev.Filters))
	for _, f := range ev.Filters {
		body := clientFields(ev.Client)
		body["topic"] = f
		body["opts"] = map[string]any{"qos": ev.QoS}
		out = append(out, bodyMessage(ev.Type, broker.Topic(f), true, body))
	}
	return out
}

func publishBody(ev *hook.PublishEvent) map[string]any {
	body := map[string]any{
		"dup":       ev.Publish.Dup,
		"retain":    ev.Publish.Retain,
		"qos":       ev.Publish.QoS,
		"topic":     ev.Publish.Topic,
		"packet_id": ev.Publish.PacketID,
		"payload":   base64.StdEncoding.EncodeToString(ev.Publish.Payload),
		"ts":        ev.Publish.Ts,
	}
	if ev.From != nil {
		body["from"] = ev.From.ID
	}
	if ev.To != nil {
		body["to"] = ev.To.ID
	} else if ev.Type == hook.MessageDropped {
		body["to"] = nil
	}
	if ev.Type == hook.MessageDropped {
		body["reason"] = ev.Reason
	}
	return body
}

// grpcBody is a supplemental, minimal body for GrpcMessageReceived: the
// documented HTTP contract does not name fields for it, but a rule
// configured against this type would otherwise be unreachable since
// every other hook type already has a documented shape.
func grpcBody(ev *hook.GrpcEvent) map[string]any {
	return map[string]any{
		"from_node": ev.FromNode,
	}
}
