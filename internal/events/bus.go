// Package events delivers sync domain events to in-process subscribers.
package events

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	notesync "github.com/hyperengineering/notesync/internal/sync"
)

// Handler receives one event. Handlers run synchronously on the publishing
// goroutine and must not block.
type Handler func(ctx context.Context, ev notesync.Event)

// Bus fans events out to the handlers subscribed to their name.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *slog.Logger
}

// NewBus creates an empty bus. A nil logger uses slog.Default().
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Subscribe registers h for events named name.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], h)
}

// Publish delivers ev to every handler subscribed to ev.Name. A panicking
// handler is logged and does not stop delivery to the others.
func (b *Bus) Publish(ctx context.Context, ev notesync.Event) {
	b.mu.RLock()
	handlers := b.handlers[ev.Name]
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(ctx, h, ev)
	}
}

func (b *Bus) deliver(ctx context.Context, h Handler, ev notesync.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"component", "events",
				"event", ev.Name,
				"entity_name", ev.EntityName,
				"entity_id", ev.EntityID,
				"panic", r,
			)
		}
	}()
	h(ctx, ev)
}

// Names returns the event names with at least one subscriber.
func (b *Bus) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.handlers))
	for name := range b.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LogHandler returns a handler that logs each event at debug level.
func LogHandler(logger *slog.Logger) Handler {
	return func(ctx context.Context, ev notesync.Event) {
		logger.DebugContext(ctx, "entity synced",
			"component", "events",
			"event", ev.Name,
			"entity_name", ev.EntityName,
			"entity_id", ev.EntityID,
		)
	}
}
