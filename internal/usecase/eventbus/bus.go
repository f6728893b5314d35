// Package eventbus is the in-process fan-out for workforce domain events:
// agent registrations, status transitions and task lifecycle. The gateway
// subscribes here to stream events to connected clients.
package eventbus

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"agency-ai/internal/domain"
)

// anyType is the internal map key for subscribers to every event.
const anyType domain.EventType = ""

type subscriber struct {
	id      uint64
	handler domain.EventHandler
}

// Bus is a goroutine-safe publish/subscribe bus. Handlers run in their
// own goroutines; a slow subscriber never blocks a publisher or the
// execution path that raised the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[domain.EventType][]subscriber
	nextID atomic.Uint64
	wg     sync.WaitGroup
	closed atomic.Bool
	logger *slog.Logger
}

// New creates an event bus. A nil logger discards records.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Bus{
		subs:   make(map[domain.EventType][]subscriber),
		logger: logger,
	}
}

// Publish fans the event out to its typed subscribers and to the
// subscribe-all set. Publishing on a closed bus is a no-op.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	if b.closed.Load() {
		return
	}

	b.mu.RLock()
	targets := make([]subscriber, 0, len(b.subs[event.Type])+len(b.subs[anyType]))
	targets = append(targets, b.subs[event.Type]...)
	targets = append(targets, b.subs[anyType]...)
	b.mu.RUnlock()

	for _, sub := range targets {
		b.wg.Add(1)
		go b.deliver(ctx, event, sub)
	}
}

func (b *Bus) deliver(ctx context.Context, event domain.Event, sub subscriber) {
	defer b.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", string(event.Type),
				"agent_id", event.AgentID,
				"panic", r,
			)
		}
	}()
	sub.handler(ctx, event)
}

// Subscribe registers a handler for one event type. The returned function
// removes the subscription.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	return b.add(eventType, handler)
}

// SubscribeAll registers a handler for every event. The returned function
// removes the subscription.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	return b.add(anyType, handler)
}

func (b *Bus) add(eventType domain.EventType, handler domain.EventHandler) func() {
	id := b.nextID.Add(1)

	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], subscriber{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		current := b.subs[eventType]
		for i, s := range current {
			if s.id == id {
				b.subs[eventType] = append(current[:i], current[i+1:]...)
				return
			}
		}
	}
}

// SubscriberCount returns the number of live subscriptions, the
// subscribe-all set included.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, subs := range b.subs {
		n += len(subs)
	}
	return n
}

// Close stops accepting publishes and waits for in-flight handlers to
// finish. Idempotent.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.wg.Wait()
}
