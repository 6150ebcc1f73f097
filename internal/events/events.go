// Package events is an in-process, best-effort event bus for admin entity changes.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event names emitted by the admin services.
const (
	UserCreate = "user.create"
	UserUpdate = "user.update"
	UserDelete = "user.delete"
)

// Event is delivered to listeners.
type Event struct {
	ID      string
	Name    string
	Payload any
	At      time.Time
}

// Bus publishes events. Emit never fails the caller.
type Bus interface {
	Emit(ctx context.Context, name string, payload any)
}

// Listener handles one event.
type Listener func(ctx context.Context, e Event)

// Nop discards every event.
type Nop struct{}

// Emit does nothing.
func (Nop) Emit(context.Context, string, any) {}

// Hub dispatches events synchronously to listeners registered by name.
// A listener registered for "*" receives every event.
type Hub struct {
	mu        sync.RWMutex
	listeners map[string][]Listener
	logger    *slog.Logger
	now       func() time.Time
}

// NewHub creates a Hub. A nil logger uses slog.Default().
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		listeners: make(map[string][]Listener),
		logger:    logger,
		now:       time.Now,
	}
}

// On registers l for name.
func (h *Hub) On(name string, l Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners[name] = append(h.listeners[name], l)
}

// Emit delivers the event to every matching listener. Listener panics are
// recovered and logged.
func (h *Hub) Emit(ctx context.Context, name string, payload any) {
	h.mu.RLock()
	targets := make([]Listener, 0, len(h.listeners[name])+len(h.listeners["*"]))
	targets = append(targets, h.listeners[name]...)
	targets = append(targets, h.listeners["*"]...)
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	e := Event{ID: uuid.NewString(), Name: name, Payload: payload, At: h.now()}
	for _, l := range targets {
		h.dispatch(ctx, l, e)
	}
}

func (h *Hub) dispatch(ctx context.Context, l Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("event listener panicked", "event", e.Name, "event_id", e.ID, "panic", r)
		}
	}()
	l(ctx, e)
}
