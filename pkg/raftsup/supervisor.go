package raftsup

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/brokerfed/cluster/pkg/broker"
	"github.com/brokerfed/cluster/pkg/config"
	"github.com/brokerfed/cluster/pkg/logging"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb/v2"
)

// ErrNoOwnAddr is returned when this node's NodeID has no matching
// entry in raft_peer_addrs — a fatal configuration error. Config.Validate
// checks this only when raft_peer_addrs is non-empty, so a validated
// config with no raft peers at all reaches Start and fails here.
var ErrNoOwnAddr = fmt.Errorf("raftsup: no raft listen address for this node")

// probeTimeout bounds each peer dial during leader discovery.
const probeTimeout = 500 * time.Millisecond

// startupPollInterval and startupPollAttempts bound the startup probe:
// poll Status().IsStarted() up to 10 times at 500ms, then proceed in
// degraded mode.
const (
	startupPollInterval = 500 * time.Millisecond
	startupPollAttempts = 10
)

// Joiner is the minimal capability the supervisor needs from the peer
// RPC fabric to ask an existing leader to admit this node. The cluster
// plugin's rpc.Fabric satisfies it; tests can supply a fake.
type Joiner interface {
	SendJoinRequest(ctx context.Context, peer broker.NodeID, nodeID broker.NodeID, raftAddr string) error
}

// Supervisor owns the Raft engine lifecycle described in component F.
type Supervisor struct {
	cfg     *config.PluginConfig
	fsm     raft.FSM
	joiner  Joiner
	dataDir string
	log     *slog.Logger

	mu      sync.RWMutex
	raft    *raft.Raft
	mailbox *Mailbox
}

// NewSupervisor constructs a Supervisor bound to fsm. dataDir holds the
// BoltDB log/stable store file; an empty dataDir uses the process
// working directory.
func NewSupervisor(cfg *config.PluginConfig, fsm raft.FSM, joiner Joiner, dataDir string) *Supervisor {
	return &Supervisor{cfg: cfg, fsm: fsm, joiner: joiner, dataDir: dataDir, log: logging.Nop()}
}

// SetLogger installs the logger used across the supervisor's lifecycle.
func (s *Supervisor) SetLogger(l *slog.Logger) {
	if l == nil {
		l = logging.Nop()
	}
	s.log = l
}

// Mailbox returns the current mailbox handle, or nil before Start
// completes. Callers must handle nil (see ErrMailboxNotReady) rather
// than assume readiness.
func (s *Supervisor) Mailbox() *Mailbox {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mailbox
}

// Start builds the Raft engine, determines whether a leader already
// exists among the configured peers, and either bootstraps this node as
// leader or joins the discovered leader as a follower. Bootstrapping
// (when no leader is found) happens synchronously here, before the Raft
// engine is created; Start returns once the engine object exists, and
// the join request (when a leader was found) and the subsequent startup
// probe run on a separate goroutine.
func (s *Supervisor) Start(ctx context.Context) error {
	ownAddr, ok := s.cfg.OwnRaftAddr()
	if !ok {
		return fmt.Errorf("%w: node %d", ErrNoOwnAddr, s.cfg.NodeID)
	}

	raftCfg := raft.DefaultConfig()
	localID := raft.ServerID(strconv.Itoa(int(s.cfg.NodeID)))
	raftCfg.LocalID = localID

	tcpAddr, err := net.ResolveTCPAddr("tcp", ownAddr)
	if err != nil {
		return fmt.Errorf("raftsup: resolve %s: %w", ownAddr, err)
	}
	transport, err := raft.NewTCPTransport(ownAddr, tcpAddr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return fmt.Errorf("raftsup: transport: %w", err)
	}

	dir := s.dataDir
	if dir == "" {
		dir = "."
	}
	store, err := raftboltdb.NewBoltStore(filepath.Join(dir, fmt.Sprintf("raft-%d.db", s.cfg.NodeID)))
	if err != nil {
		return fmt.Errorf("raftsup: bolt store: %w", err)
	}
	snapshots := raft.NewInmemSnapshotStore()

	leaderID, leaderAddr, found := s.findLeaderInfo(ctx)

	if !found {
		bootstrapCfg := raft.Configuration{
			Servers: []raft.Server{{ID: localID, Address: transport.LocalAddr()}},
		}
		if err := raft.BootstrapCluster(raftCfg, store, store, snapshots, transport, bootstrapCfg); err != nil {
			return fmt.Errorf("raftsup: bootstrap: %w", err)
		}
	}

	r, err := raft.NewRaft(raftCfg, s.fsm, store, store, snapshots, transport)
	if err != nil {
		return fmt.Errorf("raftsup: new raft: %w", err)
	}

	s.mu.Lock()
	s.raft = r
	s.mailbox = NewMailbox(r)
	s.mu.Unlock()

	go s.runStartup(ctx, found, leaderID, leaderAddr)
	return nil
}

// runStartup sends the join request when an existing leader was found
// (bootstrap has already happened in Start otherwise) and then runs the
// startup probe.
func (s *Supervisor) runStartup(ctx context.Context, joinExisting bool, leaderID broker.NodeID, leaderAddr string) {
	if joinExisting && s.joiner != nil {
		if err := s.joiner.SendJoinRequest(ctx, leaderID, s.cfg.NodeID, mustOwnAddr(s.cfg)); err != nil {
			s.log.Warn("raftsup: join request failed, continuing in degraded mode", "leader", leaderID, "error", err)
		}
	}

	mailbox := s.Mailbox()
	for attempt := 0; attempt < startupPollAttempts; attempt++ {
		if mailbox.Status().IsStarted() {
			s.log.Info("raftsup: started", "node", s.cfg.NodeID)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(startupPollInterval):
		}
	}
	s.log.Warn("raftsup: startup probe timed out, continuing in degraded mode", "node", s.cfg.NodeID)
}

func mustOwnAddr(cfg *config.PluginConfig) string {
	addr, _ := cfg.OwnRaftAddr()
	return addr
}

// findLeaderInfo probes every configured peer's raft address in
// parallel with a bounded per-peer timeout. Among the peers that accept
// a TCP connection, the one with the lowest NodeID is assumed to be the
// leader of an already-running cluster; this node sends it one join
// request asking to be admitted as a voter, with no retry if that peer
// is not actually the leader. A deployment bringing its very first node
// up will find no peer reachable and bootstrap as leader instead.
//
// This is a reachability probe only: no peer is asked who the leader is.
func (s *Supervisor) findLeaderInfo(ctx context.Context) (id broker.NodeID, addr string, found bool) {
	type probeResult struct {
		id   broker.NodeID
		addr string
		ok   bool
	}

	peers := s.cfg.PeerRaftAddrs()
	if len(peers) == 0 {
		return 0, "", false
	}

	results := make(chan probeResult, len(peers))
	for _, p := range peers {
		p := p
		go func() {
			d := net.Dialer{Timeout: probeTimeout}
			conn, err := d.DialContext(ctx, "tcp", p.Addr)
			if err != nil {
				results <- probeResult{}
				return
			}
			_ = conn.Close()
			results <- probeResult{id: p.ID, addr: p.Addr, ok: true}
		}()
	}

	var best *probeResult
	for range peers {
		r := <-results
		if r.ok && (best == nil || r.id < best.id) {
			rCopy := r
			best = &rCopy
		}
	}
	if best == nil {
		return 0, "", false
	}
	return best.id, best.addr, true
}

// ErrShutdownRefused is returned by Stop, always: a started Raft member
// cannot be torn down; operators restart the process instead.
var ErrShutdownRefused = fmt.Errorf("raftsup: shutdown refused, once started a cluster member cannot be stopped")

// Stop is a documented no-op: once started, the Raft engine is not torn down.
func (s *Supervisor) Stop() error {
	s.log.Warn("raftsup: stop refused, once started a cluster member cannot be stopped")
	return ErrShutdownRefused
}
