package cluster

import (
	"encoding/json"

	"github.com/brokerfed/cluster/pkg/broker"
)

// CommandOp discriminates the small set of operations replicated
// through the Raft log.
type CommandOp int

const (
	OpClientAdd CommandOp = iota
	OpClientRemove
	OpRouteAdd
	OpRouteRemove
)

// Command is the Raft log entry payload. Exactly one of the
// client/route pairs is meaningful, selected by Op.
type Command struct {
	Op       CommandOp
	ClientID broker.ClientID
	NodeID   broker.NodeID
	Filter   broker.TopicFilter
}

// Encode serializes a command for Mailbox.Propose.
func (c Command) Encode() ([]byte, error) {
	return json.Marshal(c)
}

// DecodeCommand is the inverse of Encode, used by Router.Apply.
func DecodeCommand(data []byte) (Command, error) {
	var c Command
	err := json.Unmarshal(data, &c)
	return c, err
}
