// Package notify implements the lifecycle notifier: fan-out of task create
// and status-change events to subscribed viewers, scoped to their visibility.
//
// Delivery is at-least-once and eventually consistent. A (re)subscribing
// viewer first receives the full snapshot of its visible task set, then
// incremental updates. Events for a single task are delivered to each
// subscriber in publish order; no ordering is guaranteed across tasks.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/codeai-platform/task-engine/internal/models"
)

// EventType distinguishes creations from status changes.
type EventType string

const (
	EventCreated EventType = "created"
	EventStatus  EventType = "status"
)

// TaskEvent carries a full task snapshot; subscribers never receive deltas.
type TaskEvent struct {
	Type EventType    `json:"type"`
	Task *models.Task `json:"task"`
}

// Scope restricts which tasks a subscriber sees: its own (OwnerID) or all
// tasks (admins).
type Scope struct {
	OwnerID string `json:"owner_id,omitempty"`
	All     bool   `json:"all,omitempty"`
}

// Covers reports whether an event for the given owner is visible to the scope.
func (s Scope) Covers(ownerID string) bool {
	return s.All || s.OwnerID == ownerID
}

// Subscriber is one connected viewer. Events arrives in publish order. The
// channel is closed when the subscriber falls too far behind or the hub shuts
// down; the viewer is expected to resubscribe and replay the snapshot, which
// is what makes delivery at-least-once rather than lossy.
type Subscriber struct {
	scope  Scope
	events chan TaskEvent

	mu     sync.Mutex
	closed bool
}

// Events returns the subscriber's ordered event stream.
func (s *Subscriber) Events() <-chan TaskEvent {
	return s.events
}

// Scope returns the subscriber's visibility scope.
func (s *Subscriber) Scope() Scope {
	return s.scope
}

// close tears the stream down once; it reports whether this call did it.
func (s *Subscriber) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	close(s.events)
	return true
}

// send delivers without blocking. Returns false when the subscriber's buffer
// is full, which marks it dead: dropping a single event would break the
// per-task ordering guarantee, so the whole stream is torn down instead.
func (s *Subscriber) send(ev TaskEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.events <- ev:
		return true
	default:
		return false
	}
}

// Hub fans published events out to all current subscribers.
type Hub struct {
	mu          sync.Mutex
	subscribers map[*Subscriber]struct{}
	bufferSize  int
}

// NewHub creates an empty hub. bufferSize is the per-subscriber channel
// depth; a subscriber that lags behind by more than that is disconnected.
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Hub{
		subscribers: make(map[*Subscriber]struct{}),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a viewer with the given scope. The caller is
// responsible for replaying the current snapshot to the viewer before
// consuming incremental events.
func (h *Hub) Subscribe(scope Scope) *Subscriber {
	sub := &Subscriber{
		scope:  scope,
		events: make(chan TaskEvent, h.bufferSize),
	}

	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()

	slog.Debug("subscriber added", "all", scope.All, "owner", scope.OwnerID)
	return sub
}

// Unsubscribe removes a viewer and closes its stream.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	_, ok := h.subscribers[sub]
	delete(h.subscribers, sub)
	h.mu.Unlock()

	if ok {
		sub.close()
	}
}

// Publish delivers an event to every subscriber whose scope covers the task's
// owner. The hub lock serializes publishes, so each subscriber's channel sees
// one task's events in commit order.
func (h *Hub) Publish(ev TaskEvent) {
	if ev.Task == nil {
		return
	}

	h.mu.Lock()
	var dead []*Subscriber
	for sub := range h.subscribers {
		if !sub.scope.Covers(ev.Task.OwnerID) {
			continue
		}
		if !sub.send(ev) {
			dead = append(dead, sub)
		}
	}
	h.mu.Unlock()

	// Dead subscribers stay registered until the pruner sweeps them out.
	for _, sub := range dead {
		if sub.close() {
			slog.Warn("dropping slow subscriber", "all", sub.scope.All, "owner", sub.scope.OwnerID)
		}
	}
}

// Len returns the current subscriber count.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := make([]*Subscriber, 0, len(h.subscribers))
	for sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.subscribers = make(map[*Subscriber]struct{})
	h.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}

// StartPruner runs the periodic sweep that unregisters subscribers whose
// streams Publish tore down. Until a sweep runs, a dead subscriber still
// occupies a map slot and is re-skipped on every publish.
func (h *Hub) StartPruner(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go h.prune(ctx, interval)
}

func (h *Hub) prune(ctx context.Context, interval time.Duration) {
	slog.Info("notifier pruner started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("notifier pruner stopped")
			return
		case <-ticker.C:
			if pruned := h.sweep(); pruned > 0 {
				slog.Debug("pruned dead subscribers", "pruned", pruned, "remaining", h.Len())
			}
		}
	}
}

// sweep unregisters every subscriber whose stream is already closed and
// returns how many it removed.
func (h *Hub) sweep() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	var dead []*Subscriber
	for sub := range h.subscribers {
		sub.mu.Lock()
		closed := sub.closed
		sub.mu.Unlock()
		if closed {
			dead = append(dead, sub)
		}
	}
	for _, sub := range dead {
		delete(h.subscribers, sub)
	}
	return len(dead)
}
