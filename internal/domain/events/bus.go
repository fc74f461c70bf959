package events

import (
	"io"
	"log/slog"
	"sync"
)

// Handler receives published events.
type Handler func(Event)

type subscription struct {
	id      uint64
	name    string // empty for wildcard
	handler Handler
}

// Bus is a per-session publish/subscribe hub. Delivery is synchronous and
// follows subscription order.
type Bus struct {
	mu     sync.Mutex
	nextID uint64
	subs   []subscription
	logger *slog.Logger
}

// NewBus creates a bus; logger may be nil.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Bus{logger: logger}
}

// Subscribe registers h for events with the given name.
func (b *Bus) Subscribe(name string, h Handler) func() {
	return b.add(name, h)
}

// SubscribeAll registers h for every event.
func (b *Bus) SubscribeAll(h Handler) func() {
	return b.add("", h)
}

func (b *Bus) add(name string, h Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, name: name, handler: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers e to every matching subscriber. A panicking handler is
// logged and skipped.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	targets := make([]Handler, 0, len(b.subs))
	for _, s := range b.subs {
		if s.name == "" || s.name == e.Name() {
			targets = append(targets, s.handler)
		}
	}
	b.mu.Unlock()

	for _, h := range targets {
		b.deliver(h, e)
	}
}

func (b *Bus) deliver(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event handler panicked", "event", e.Name(), "panic", r)
		}
	}()
	h(e)
}

// Len returns the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
