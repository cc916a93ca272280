package broker

import (
	"strings"
	"time"
)

// NodeID identifies a broker node in the cluster. It is assigned by
// configuration and stable for the lifetime of the process.
type NodeID uint32

// ClientID is an opaque, cluster-unique client identifier.
type ClientID string

// Topic is a concrete MQTT publish target, e.g. "sensor/1/temp".
type Topic string

// TopicFilter is a subscription pattern using the standard MQTT "+" and
// "#" wildcards.
type TopicFilter string

// Retain is the last-value record kept for a concrete Topic.
type Retain struct {
	From    ClientID
	Payload []byte
	QoS     byte
	Ts      int64 // unix millis
}

// Session is the immutable identity of a connected client's session as
// seen by this plugin. The host broker owns the real session state
// machine; this is the read-only view handlers receive.
type Session struct {
	ClientID ClientID
	Node     NodeID
}

// Client carries the per-connection attributes a hook handler or a
// web-hook body needs. Fields that don't apply to a given event are left
// zero.
type Client struct {
	ID            ClientID
	Node          NodeID
	RemoteAddr    string
	Username      string
	KeepAlive     uint16
	ProtoVersion  byte
	CleanStart    bool
	ConnectedAt   int64 // unix millis, 0 if not yet connected
	SessionPresent bool
}

// Publish is a lowered MQTT PUBLISH packet.
type Publish struct {
	Topic    Topic
	Payload  []byte
	QoS      byte
	Retain   bool
	Dup      bool
	PacketID uint16
	Ts       int64 // unix millis
}

// MatchTopic reports whether a concrete topic matches a subscription
// filter under the standard MQTT wildcard rules: "+" matches exactly one
// level, "#" matches the remainder of the topic and must be the final
// level.
func MatchTopic(filter TopicFilter, topic Topic) bool {
	fLevels := strings.Split(string(filter), "/")
	tLevels := strings.Split(string(topic), "/")

	for i, f := range fLevels {
		if f == "#" {
			return true
		}
		if i >= len(tLevels) {
			return false
		}
		if f == "+" {
			continue
		}
		if f != tLevels[i] {
			return false
		}
	}
	return len(fLevels) == len(tLevels)
}

// HealthState is the health status enum both plugins report through
// their Health method, for a host admin surface to render uniformly
// across every attached component regardless of which one it came from.
type HealthState string

const (
	HealthHealthy   HealthState = "healthy"
	HealthDegraded  HealthState = "degraded"
	HealthUnhealthy HealthState = "unhealthy"
	HealthUnknown   HealthState = "unknown"
)

func (h HealthState) String() string { return string(h) }

// HealthStatus is the health-check result shape both the cluster plugin
// and the web-hook plugin return, carrying their own component-specific
// data in Details.
type HealthStatus struct {
	Status    HealthState `json:"status"`
	Message   string      `json:"message,omitempty"`
	CheckedAt time.Time   `json:"checked_at"`
	Details   any         `json:"details,omitempty"`
}

// Runtime is the subset of the host broker's plugin surface this module
// consumes: typed config loading only; no metrics accessor is part of it. The
// broker's hook registration, RPC client construction and state-slot
// installation are modeled directly by pkg/hook, pkg/rpc and pkg/cluster
// rather than through this interface, since those ARE the contracts this
// repo implements.
type Runtime interface {
	// LoadPluginConfig deserializes the named plugin's config section into out.
	LoadPluginConfig(name string, out any) error
}
