// Package eventbus implements a typed, in-process publish/subscribe broker
// with a single dispatch goroutine, per-variant fan-out in registration
// order, handler failure isolation, and drain-on-stop shutdown semantics.
//
// The bus is the central serialization point of the pipeline: because
// exactly one goroutine ever invokes subscriber handlers, those handlers
// may hold mutable per-component state without their own locking.
package eventbus

import (
	"log/slog"
	"sync"

	"github.com/tradecore/engine/internal/events"
)

// Handler receives one dispatched event. It must not block for long; a
// slow handler stalls the whole pipeline since dispatch is single-threaded.
type Handler func(events.Event)

// State is the bus's lifecycle state.
type State int

const (
	Idle State = iota
	Running
	Stopping
)

// Bus is a typed pub/sub broker. The zero value is not usable; construct
// with New.
type Bus struct {
	logger *slog.Logger

	mu          sync.Mutex
	cond        *sync.Cond
	subscribers map[events.Type][]Handler
	queue       []events.Event
	state       State
	done        chan struct{}
}

// New creates a bus in the Idle state.
func New(logger *slog.Logger) *Bus {
	b := &Bus{
		logger:      logger.With("component", "eventbus"),
		subscribers: make(map[events.Type][]Handler),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Subscribe registers a handler for an event type. Handlers for a type run
// in registration order. Subscriptions should be made before Start and are
// never removed before the bus is discarded.
func (b *Bus) Subscribe(t events.Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[t] = append(b.subscribers[t], h)
}

// Publish enqueues an event for dispatch. Non-blocking; safe to call from
// any goroutine, including from within a handler (those events land at the
// tail of the queue and are processed later, not re-entrantly).
func (b *Bus) Publish(e events.Event) {
	b.mu.Lock()
	b.queue = append(b.queue, e)
	b.mu.Unlock()
	b.cond.Signal()
}

// Start spawns the dispatcher goroutine. Idempotent: calling Start while
// already Running is a no-op.
func (b *Bus) Start() {
	b.mu.Lock()
	if b.state == Running {
		b.mu.Unlock()
		return
	}
	b.state = Running
	b.done = make(chan struct{})
	done := b.done
	b.mu.Unlock()

	go b.dispatchLoop(done)
}

// Stop signals shutdown. The dispatcher drains all events already queued,
// then exits. Stop blocks until the dispatcher has fully drained and
// exited. Idempotent: calling Stop while already Idle is a no-op.
func (b *Bus) Stop() {
	b.mu.Lock()
	if b.state == Idle {
		b.mu.Unlock()
		return
	}
	b.state = Stopping
	done := b.done
	b.mu.Unlock()
	b.cond.Broadcast()

	<-done
}

func (b *Bus) dispatchLoop(done chan struct{}) {
	defer close(done)
	for {
		b.mu.Lock()
		for len(b.queue) == 0 && b.state == Running {
			b.cond.Wait()
		}
		if len(b.queue) == 0 {
			// Stopping with an empty queue: finished draining.
			b.state = Idle
			b.mu.Unlock()
			return
		}
		e := b.queue[0]
		b.queue = b.queue[1:]
		handlers := b.subscribers[e.Type]
		b.mu.Unlock()

		b.dispatch(e, handlers)
	}
}

func (b *Bus) dispatch(e events.Event, handlers []Handler) {
	for _, h := range handlers {
		b.invoke(e, h)
	}
}

func (b *Bus) invoke(e events.Event, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panicked", "event_type", e.Type, "panic", r)
		}
	}()
	h(e)
}
