package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/brokerfed/cluster/pkg/broadcast"
	"github.com/brokerfed/cluster/pkg/broker"
	"github.com/brokerfed/cluster/pkg/config"
	"github.com/brokerfed/cluster/pkg/hook"
	"github.com/brokerfed/cluster/pkg/logging"
	"github.com/brokerfed/cluster/pkg/metrics"
	"github.com/brokerfed/cluster/pkg/raftsup"
	"github.com/brokerfed/cluster/pkg/retain"
	"github.com/brokerfed/cluster/pkg/rpc"
	"github.com/hashicorp/raft"
)

// pluginConfigName is the section name this plugin registers its config
// under when loaded through broker.Runtime.LoadPluginConfig.
const pluginConfigName = "cluster"

// Plugin wires components B through F into a single lifecycle object a
// host broker installs: the peer RPC fabric, the broadcast coordinator,
// the retainer, the Raft supervisor, and the Router/Shared pair.
type Plugin struct {
	cfg *config.PluginConfig

	fabric      *rpc.Fabric
	coordinator *broadcast.Coordinator
	retainer    *retain.Retainer
	router      *Router
	shared      *Shared
	supervisor  *raftsup.Supervisor
	server      *rpc.Server

	registry *metrics.Registry

	log *slog.Logger
}

// NewPlugin constructs every component from cfg, wiring Router as the
// Raft FSM before the supervisor starts and deferring the mailbox
// hand-off to Start, per the self-referential coupling between Router
// and the Raft engine it is replicated by.
func NewPlugin(cfg *config.PluginConfig, dataDir string) *Plugin {
	fabric := rpc.NewFabric(cfg)
	coordinator := broadcast.NewCoordinator(fabric)
	retainer := retain.New(coordinator, cfg.MessageType)
	router := NewRouter()

	bus := hook.NewBus()
	shared := NewShared(router, retainer, fabric, bus, cfg.NodeID, cfg.MessageType)
	shared.SetForwardRetry(cfg.ForwardMaxRetries, cfg.ForwardRetryInterval)

	joiner := &fabricJoiner{fabric: fabric, messageType: cfg.MessageType}
	supervisor := raftsup.NewSupervisor(cfg, router, joiner, dataDir)

	registry := metrics.NewRegistry()

	return &Plugin{
		cfg:         cfg,
		fabric:      fabric,
		coordinator: coordinator,
		retainer:    retainer,
		router:      router,
		shared:      shared,
		supervisor:  supervisor,
		server:      rpc.NewServer(shared),
		registry:    registry,
		log:         logging.Nop(),
	}
}

// LoadPluginConfig loads this plugin's section through the host's
// runtime abstraction.
func LoadPluginConfig(rt broker.Runtime) (*config.PluginConfig, error) {
	cfg := config.DefaultPluginConfig()
	if err := rt.LoadPluginConfig(pluginConfigName, &cfg); err != nil {
		return nil, fmt.Errorf("cluster: load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("cluster: invalid config: %w", err)
	}
	return &cfg, nil
}

// SetLogger installs the logger used across every owned component.
func (p *Plugin) SetLogger(l *slog.Logger) {
	if l == nil {
		l = logging.Nop()
	}
	p.log = l
	p.router.SetLogger(l)
	p.shared.SetLogger(l)
	p.retainer.SetLogger(l)
	p.supervisor.SetLogger(l)
	p.server.SetLogger(l)
}

// Router exposes the Raft state machine for tests and host introspection.
func (p *Plugin) Router() *Router { return p.router }

// Shared exposes the hook-bus-facing half so the host can call
// SetCollaborators with its Deliverer/SessionKiller/Counters.
func (p *Plugin) Shared() *Shared { return p.shared }

// Retainer exposes the retained-message aggregator for the broker's
// retain_mut slot.
func (p *Plugin) Retainer() *retain.Retainer { return p.retainer }

// Registry exposes the Prometheus-text metrics registry for mounting
// under the broker's attributes/metrics endpoint.
func (p *Plugin) Registry() *metrics.Registry { return p.registry }

// Register attaches Shared's hook handlers to the host's bus and makes
// that bus the one Shared reports MessageDropped events on. Called once
// during plugin installation, before Start.
func (p *Plugin) Register(bus *hook.Bus) {
	p.shared.bus = bus
	p.shared.Register(bus)
}

// Start brings the peer RPC server and Raft supervisor up, then performs
// the late mailbox binding described by the Router/Raft coupling:
// Router is handed to Raft as the FSM at construction time, and only
// once Raft produces a live engine does the Router (and Shared, through
// its join handler) get a usable Mailbox.
func (p *Plugin) Start(ctx context.Context, grpcAddr string) error {
	go func() {
		if err := p.server.Serve(grpcAddr); err != nil {
			p.log.Error("cluster: peer rpc server stopped", "error", err)
		}
	}()

	if err := p.supervisor.Start(ctx); err != nil {
		return fmt.Errorf("cluster: raft start: %w", err)
	}

	mailbox := p.supervisor.Mailbox()
	p.router.SetMailbox(mailbox)
	p.shared.SetJoinHandler(&mailboxJoinHandler{mailbox: mailbox})
	return nil
}

// Stop stops the peer RPC server and closes pooled peer connections. The
// Raft supervisor itself refuses to stop once started.
func (p *Plugin) Stop() {
	p.server.Stop()
	p.fabric.CloseAll()
}

// RaftDetails is the cluster-specific payload carried in HealthStatus.Details.
type RaftDetails struct {
	RaftStarted bool   `json:"raft_started"`
	RaftState   string `json:"raft_state"`
	LeaderAddr  string `json:"leader_addr"`
}

// Health reports the Raft engine's current status for the broker's
// health-check surface: healthy once started with a known leader,
// degraded if started but leaderless, unhealthy before Start completes.
func (p *Plugin) Health(ctx context.Context) broker.HealthStatus {
	status := p.supervisor.Mailbox().Status()
	details := RaftDetails{
		RaftStarted: status.IsStarted(),
		RaftState:   status.State.String(),
		LeaderAddr:  string(status.LeaderAddr),
	}

	state := broker.HealthUnhealthy
	msg := "raft supervisor not started"
	switch {
	case details.RaftStarted && details.LeaderAddr != "":
		state = broker.HealthHealthy
		msg = ""
	case details.RaftStarted:
		state = broker.HealthDegraded
		msg = "raft started but no leader known yet"
	}

	return broker.HealthStatus{Status: state, Message: msg, CheckedAt: time.Now(), Details: details}
}

// GRPCClientStats is the per-peer attrs shape the attributes endpoint
// exposes under grpc_clients.
type GRPCClientStats struct {
	ChannelTasks int64 `json:"channel_tasks"`
	ActiveTasks  int64 `json:"active_tasks"`
}

// Attrs builds the full attributes document: per-peer gRPC client
// counters keyed by NodeID, plus the Raft status summary.
func (p *Plugin) Attrs() map[string]any {
	clients := make(map[string]GRPCClientStats)
	for id, c := range p.fabric.Peers() {
		clients[strconv.FormatUint(uint64(id), 10)] = GRPCClientStats{
			ChannelTasks: c.ChannelTasks(),
			ActiveTasks:  c.ActiveTasks(),
		}
	}
	details, _ := p.Health(context.Background()).Details.(RaftDetails)
	return map[string]any{
		"grpc_clients": clients,
		"raft_status": map[string]any{
			"started":     details.RaftStarted,
			"state":       details.RaftState,
			"leader_addr": details.LeaderAddr,
		},
	}
}

// fabricJoiner adapts rpc.Fabric to raftsup.Joiner: a join request is
// just a KindData message carrying the JSON-encoded JoinRequest.
type fabricJoiner struct {
	fabric      *rpc.Fabric
	messageType int32
}

func (j *fabricJoiner) SendJoinRequest(ctx context.Context, peer broker.NodeID, nodeID broker.NodeID, raftAddr string) error {
	client, err := j.fabric.Client(peer)
	if err != nil {
		return err
	}
	data, err := json.Marshal(JoinRequest{NodeID: nodeID, RaftAddr: raftAddr})
	if err != nil {
		return err
	}
	_, err = client.SendMessage(ctx, &rpc.Message{MessageType: j.messageType, Kind: rpc.KindData, Data: data})
	return err
}

// mailboxJoinHandler adapts a raftsup.Mailbox to cluster.JoinHandler,
// translating broker.NodeID/string into raft's own address types.
type mailboxJoinHandler struct {
	mailbox *raftsup.Mailbox
}

func (h *mailboxJoinHandler) AddVoter(id broker.NodeID, addr string) error {
	return h.mailbox.AddVoter(raft.ServerID(strconv.FormatUint(uint64(id), 10)), raft.ServerAddress(addr))
}
