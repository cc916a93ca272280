package hook

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/brokerfed/cluster/pkg/logging"
)

// registration is one entry in a Type's handler chain.
type registration struct {
	seq     uint64
	handler Handler
}

// Bus is the registry of (event type -> ordered handler chain) and the
// dispatch loop that drives it. One Bus is shared by every plugin
// attaching to the host broker; it is safe for concurrent use.
//
// Modeled on the recording package's HookManager: a mutex-guarded slice
// per registration point, iterated in registration order, with the
// accumulator threaded from one handler to the next.
type Bus struct {
	mu       sync.RWMutex
	chains   map[Type][]registration
	started  atomic.Bool
	nextSeq  atomic.Uint64
	log      *slog.Logger
}

// NewBus constructs an empty, stopped Bus.
func NewBus() *Bus {
	return &Bus{
		chains: make(map[Type][]registration),
		log:    logging.Nop(),
	}
}

// SetLogger installs the logger used for dispatch diagnostics. Defaults
// to a no-op logger.
func (b *Bus) SetLogger(l *slog.Logger) {
	if l == nil {
		l = logging.Nop()
	}
	b.mu.Lock()
	b.log = l
	b.mu.Unlock()
}

// Register appends handler to the chain for typ, in call order, and
// returns a Token that can later be passed to Unregister.
func (b *Bus) Register(typ Type, handler Handler) Token {
	seq := b.nextSeq.Add(1)
	b.mu.Lock()
	b.chains[typ] = append(b.chains[typ], registration{seq: seq, handler: handler})
	b.mu.Unlock()
	return Token{typ: typ, seq: seq}
}

// Unregister removes the handler identified by tok. Calling it twice
// with the same token is a no-op.
func (b *Bus) Unregister(tok Token) {
	b.mu.Lock()
	defer b.mu.Unlock()
	chain := b.chains[tok.typ]
	for i, r := range chain {
		if r.seq == tok.seq {
			b.chains[tok.typ] = append(chain[:i:i], chain[i+1:]...)
			return
		}
	}
}

// Start enables dispatch. Events submitted before Start (or after Stop)
// are silently dropped, matching the registration-gated contract.
func (b *Bus) Start() { b.started.Store(true) }

// Stop disables dispatch.
func (b *Bus) Stop() { b.started.Store(false) }

// Dispatch invokes the handler chain registered for event.Kind() in
// registration order, threading the accumulator from one handler to the
// next. It stops early when a handler returns Continue=false, or when
// the chain is exhausted. The returned Return.Continue is the AND of
// every invoked handler's Continue flag (vacuously true if no handler
// ran or none short-circuited).
//
// Dispatch itself never returns an error for a handler failure; a
// handler error is logged and treated as Continue=true with the
// accumulator left unchanged, since one misbehaving handler must not
// stall the rest of the chain or the caller's event path.
func (b *Bus) Dispatch(event Event) Return {
	if !b.started.Load() {
		return Return{Continue: true}
	}

	b.mu.RLock()
	chain := append([]registration(nil), b.chains[event.Kind()]...)
	log := b.log
	b.mu.RUnlock()

	var acc Result
	cont := true
	for _, r := range chain {
		ret, err := r.handler.Hook(event, acc)
		if err != nil {
			log.Error("hook handler error", "type", event.Kind().String(), "error", err)
			continue
		}
		acc = ret.Acc
		if !ret.Continue {
			cont = false
			break
		}
	}
	return Return{Continue: cont, Acc: acc}
}

// Count returns the number of handlers registered for typ, for tests
// and introspection.
func (b *Bus) Count(typ Type) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.chains[typ])
}

// ErrNotStarted names the "bus exists but dispatch is gated" condition
// for callers that want to report it; Dispatch itself does not return it
// since silent-drop is the documented contract, and no code in this
// module currently returns it.
var ErrNotStarted = fmt.Errorf("hook bus: not started")
