package raftsup

import (
	"errors"
	"time"

	"github.com/hashicorp/raft"
)

// ErrMailboxNotReady is returned instead of panicking when a caller
// proposes or queries before the Raft engine has finished starting up.
var ErrMailboxNotReady = errors.New("raftsup: mailbox not ready")

// ProposeTimeout bounds how long a single Propose call waits for the
// Raft log to commit.
const ProposeTimeout = 5 * time.Second

// Mailbox is a clone-safe handle to a running Raft engine, usable from
// any goroutine to submit proposals and query status. The Router holds
// one, late-bound via SetMailbox once Raft comes up.
type Mailbox struct {
	raft *raft.Raft
}

// NewMailbox wraps a started *raft.Raft.
func NewMailbox(r *raft.Raft) *Mailbox {
	return &Mailbox{raft: r}
}

// Propose applies cmd to the replicated log and blocks until it commits
// or ProposeTimeout elapses. The caller decides how to react to a
// failure; callers must not invoke this from a latency-sensitive
// dispatch path since it blocks for up to ProposeTimeout.
func (m *Mailbox) Propose(cmd []byte) error {
	if m == nil || m.raft == nil {
		return ErrMailboxNotReady
	}
	future := m.raft.Apply(cmd, ProposeTimeout)
	return future.Error()
}

// Status summarizes the Raft engine's current state.
type Status struct {
	State      raft.RaftState
	LeaderAddr raft.ServerAddress
}

// IsStarted reports whether the engine has either become leader itself
// or discovered a leader to follow — the condition the owning plugin
// polls for during its startup probe.
func (s Status) IsStarted() bool {
	return s.State == raft.Leader || s.LeaderAddr != ""
}

// Status queries the current Raft state. Safe to call concurrently from
// any goroutine.
func (m *Mailbox) Status() Status {
	if m == nil || m.raft == nil {
		return Status{State: raft.Shutdown}
	}
	addr, _ := m.raft.LeaderWithID()
	return Status{State: m.raft.State(), LeaderAddr: addr}
}

// AddVoter admits a new node into the cluster. Only meaningful when this
// node is the current leader; hashicorp/raft itself rejects the call
// otherwise.
func (m *Mailbox) AddVoter(id raft.ServerID, addr raft.ServerAddress) error {
	if m == nil || m.raft == nil {
		return ErrMailboxNotReady
	}
	return m.raft.AddVoter(id, addr, 0, ProposeTimeout).Error()
}
