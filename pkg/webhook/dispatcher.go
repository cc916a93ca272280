package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brokerfed/cluster/internal/id"
	"github.com/brokerfed/cluster/pkg/broker"
	"github.com/brokerfed/cluster/pkg/config"
	"github.com/brokerfed/cluster/pkg/hook"
	"github.com/brokerfed/cluster/pkg/logging"
	"github.com/brokerfed/cluster/pkg/util"
	"golang.org/x/sync/errgroup"
)

// sharedClient is the process-wide HTTP client every Dispatcher
// generation uses: a short connect timeout and a longer total request
// timeout, so one slow endpoint can't starve the worker pool's other
// in-flight requests.
var sharedClient = &http.Client{
	Timeout: 15 * time.Second,
	Transport: &http.Transport{
		DialContext: (&net.Dialer{Timeout: 8 * time.Second}).DialContext,
	},
}

// generation is one (queue, worker pool) pairing. LoadConfig swaps the
// Dispatcher's active generation atomically rather than mutating queue
// depth or worker count in place, since neither a Go channel's capacity
// nor a running worker pool's size can change after creation.
type generation struct {
	queue       chan Message
	workers     int
	activeTasks int64
	drops       int64
	wg          sync.WaitGroup
}

func newGeneration(capacity, workers int) *generation {
	return &generation{queue: make(chan Message, capacity), workers: workers}
}

// Dispatcher turns selected hook-bus events into HTTP POSTs against
// operator-configured URLs. Handlers call Submit, which offers onto a
// bounded channel and returns immediately; a fixed worker pool drains
// the channel and performs the HTTP calls.
type Dispatcher struct {
	mu           sync.RWMutex
	gen          *generation
	workers      int
	rules        config.RuleSet
	fallbackURLs []string
	httpTimeout  time.Duration
	client       *http.Client
	log          *slog.Logger
}

// NewDispatcher wires a Dispatcher from cfg without starting its worker
// pool; call Start to bring it up, mirroring the Start/Stop lifecycle
// convention the cluster plugin also follows.
func NewDispatcher(cfg *config.PluginConfig) *Dispatcher {
	return &Dispatcher{
		gen:          newGeneration(cfg.AsyncQueueCapacity, cfg.WorkerThreads),
		workers:      cfg.WorkerThreads,
		rules:        cfg.Rules,
		fallbackURLs: cfg.HTTPURLs,
		httpTimeout:  cfg.HTTPTimeout,
		client:       sharedClient,
		log:          logging.Nop(),
	}
}

func (d *Dispatcher) SetLogger(l *slog.Logger) { d.log = l }

// Start launches the worker pool draining the active generation's queue.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.RLock()
	gen, n := d.gen, d.workers
	d.mu.RUnlock()
	d.startWorkers(gen, n)
	return nil
}

// Stop drains the active generation: it sends one Exit sentinel per
// worker so each drains its remaining backlog and then returns, and
// waits up to timeout for all of them to finish. The queue itself is
// never closed, since a handler racing a concurrent Submit against this
// call must never send on a closed channel.
func (d *Dispatcher) Stop(ctx context.Context, timeout time.Duration) error {
	d.mu.RLock()
	gen := d.gen
	d.mu.RUnlock()

	if err := drainGeneration(gen, timeout, d.log); err != nil {
		return fmt.Errorf("webhook: stop timed out after %s", timeout)
	}
	return nil
}

// Health reports healthy whenever the queue has headroom, degraded once
// it is full (deliveries are being dropped), matching the HealthStatus
// contract the cluster plugin also implements.
func (d *Dispatcher) Health(ctx context.Context) broker.HealthStatus {
	d.mu.RLock()
	capacity := cap(d.gen.queue)
	d.mu.RUnlock()

	stats := d.Stats()
	state := broker.HealthHealthy
	msg := ""
	if capacity > 0 && stats.QueueLen >= capacity {
		state = broker.HealthDegraded
		msg = "delivery queue full"
	}
	return broker.HealthStatus{Status: state, Message: msg, CheckedAt: time.Now(), Details: stats}
}

// Register attaches the dispatcher to every hook type that has at least
// one configured rule, so a deployment with no rules for a given type
// never pays the Submit/offer cost for it.
func (d *Dispatcher) Register(bus *hook.Bus) {
	d.mu.RLock()
	rules := d.rules
	d.mu.RUnlock()

	for typ := range rules {
		t := typ
		bus.Register(t, hook.HandlerFunc(func(event hook.Event, acc hook.Result) (hook.Return, error) {
			d.Submit(event)
			return hook.Return{Continue: true, Acc: acc}, nil
		}))
	}
}

// Submit builds the body (or bodies) for event and offers each onto the
// active generation's queue without blocking: a full queue drops the
// message and logs a warning rather than stalling the hook-dispatch
// goroutine that called Submit.
func (d *Dispatcher) Submit(event hook.Event) {
	d.mu.RLock()
	gen := d.gen
	d.mu.RUnlock()

	for _, msg := range buildBodies(event) {
		select {
		case gen.queue <- msg:
		default:
			atomic.AddInt64(&gen.drops, 1)
			d.log.Warn("webhook: queue full, dropping event", "type", event.Kind().String())
		}
	}
}

func (d *Dispatcher) startWorkers(gen *generation, n int) {
	for i := 0; i < n; i++ {
		gen.wg.Add(1)
		go d.worker(gen)
	}
}

func (d *Dispatcher) worker(gen *generation) {
	defer gen.wg.Done()
	for msg := range gen.queue {
		if msg.isExit() {
			return
		}
		atomic.AddInt64(&gen.activeTasks, 1)
		d.deliver(msg)
		atomic.AddInt64(&gen.activeTasks, -1)
	}
}

// deliver matches msg against the currently configured rules and fans
// the resulting requests out concurrently.
func (d *Dispatcher) deliver(msg Message) {
	d.mu.RLock()
	rules := d.rules[msg.typ]
	fallback := d.fallbackURLs
	d.mu.RUnlock()

	targets := matchRules(rules, fallback, msg.topic, msg.hasTopic, msg.body)
	d.fanOut(targets)
}

// Health reports the active generation's queue depth and in-flight
// worker count, matching the exposition pattern the metrics registry
// uses elsewhere.
type Health struct {
	QueueLen    int   `json:"queue_len"`
	ActiveTasks int64 `json:"active_tasks"`
	Dropped     int64 `json:"dropped"`
}

func (d *Dispatcher) Stats() Health {
	d.mu.RLock()
	gen := d.gen
	d.mu.RUnlock()
	return Health{
		QueueLen:    len(gen.queue),
		ActiveTasks: atomic.LoadInt64(&gen.activeTasks),
		Dropped:     atomic.LoadInt64(&gen.drops),
	}
}

// LoadConfig hot-reconfigures worker count and queue capacity: it builds
// a fresh generation, swaps it in as the active one, then drains the old
// generation with one Exit sentinel per old worker, capped at 3s. A
// timed-out drain is logged; the swap has already happened regardless,
// so Submit never blocks on it. Rule and URL configuration swap
// unconditionally since they carry no goroutine lifecycle.
func (d *Dispatcher) LoadConfig(cfg *config.PluginConfig) {
	newGen := newGeneration(cfg.AsyncQueueCapacity, cfg.WorkerThreads)
	d.startWorkers(newGen, cfg.WorkerThreads)

	d.mu.Lock()
	oldGen := d.gen
	d.gen = newGen
	d.rules = cfg.Rules
	d.fallbackURLs = cfg.HTTPURLs
	d.httpTimeout = cfg.HTTPTimeout
	d.mu.Unlock()

	if err := drainGeneration(oldGen, 3*time.Second, d.log); err != nil {
		d.log.Warn("webhook: old generation drain timed out")
	}
}

// drainGeneration sends one Exit sentinel per worker gen was started
// with onto gen.queue and waits up to timeout for every worker to
// consume one and return. It never closes gen.queue: a Submit call that
// already captured this generation before a swap must still be able to
// send to it without racing a close.
func drainGeneration(gen *generation, timeout time.Duration, log *slog.Logger) error {
	sendDeadline := time.After(timeout)
	go func() {
		for i := 0; i < gen.workers; i++ {
			select {
			case gen.queue <- exitMessage():
			case <-sendDeadline:
				return
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		gen.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("drain timed out")
	}
}

// send POSTs t.body, already annotated by matchRules, to t.url.
func (d *Dispatcher) send(ctx context.Context, t target) error {
	payload, err := json.Marshal(t.body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2*util.MaxLogBodySize))
		return &httpStatusError{url: t.url, status: resp.StatusCode, body: util.TruncateBody(string(respBody), 0)}
	}
	return nil
}

type httpStatusError struct {
	url    string
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("webhook: %s returned status %d: %s", e.url, e.status, e.body)
}

// logDeliveryFailure separates transport failures (dial/timeout/TLS,
// never reached the endpoint) from non-2xx responses (reached it, got
// rejected): the former logs at Error since it signals an unreachable or
// misconfigured endpoint, the latter at Warn since the endpoint is
// reachable and simply declined this one delivery.
func logDeliveryFailure(log *slog.Logger, dispatchID, url string, err error) {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		log.Warn("webhook: delivery failed", "dispatch_id", dispatchID, "url", url, "error", err)
		return
	}
	log.Error("webhook: delivery failed", "dispatch_id", dispatchID, "url", url, "error", err)
}

// fanOut sends every target concurrently and waits for all of them,
// logging each outcome independently; one target's failure never cancels
// another's in-flight request.
func (d *Dispatcher) fanOut(targets []target) {
	if len(targets) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.httpTimeout)
	defer cancel()

	g, _ := errgroup.WithContext(ctx)
	dispatchID := id.Short()
	for _, t := range targets {
		t := t
		g.Go(func() error {
			if err := d.send(ctx, t); err != nil {
				logDeliveryFailure(d.log, dispatchID, t.url, err)
			}
			return nil
		})
	}
	_ = g.Wait()
}
