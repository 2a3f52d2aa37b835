package testutil

import (
	"sync"

	"github.com/hupe1980/meshcore/core"
)

// EventRecorder collects lifecycle events. Pass Record to an agent's OnEvent.
type EventRecorder struct {
	mu     sync.Mutex
	events []core.Event
}

// Record stores ev.
func (r *EventRecorder) Record(ev core.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *EventRecorder) Events() []core.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Event(nil), r.events...)
}

// Kinds returns the kinds of the recorded events in order.
func (r *EventRecorder) Kinds() []core.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

// Count returns how many events of kind were recorded.
func (r *EventRecorder) Count(kind core.EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}
