package core

import "time"

// EventKind enumerates agent lifecycle notifications.
type EventKind string

const (
	EventStart     EventKind = "start"
	EventHeartbeat EventKind = "heartbeat"
	EventStep      EventKind = "step"
	EventStopping  EventKind = "stopping"
	EventStop      EventKind = "stop"
	EventError     EventKind = "error"
)

// Event is a lifecycle notification emitted by an agent. It should be treated
// as immutable once emitted. For every loop iteration the heartbeat event is
// emitted before the corresponding step event.
type Event struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	AgentName string    `json:"agent_name"`
	Kind      EventKind `json:"kind"`
	Step      int       `json:"step"`
	Timestamp time.Time `json:"timestamp"`
	Err       error     `json:"-"`
}

// NewEvent creates an event of the given kind bound to an agent.
func NewEvent(agentID, agentName string, kind EventKind, step int) Event {
	return Event{
		ID:        NewID(),
		AgentID:   agentID,
		AgentName: agentName,
		Kind:      kind,
		Step:      step,
		Timestamp: time.Now().UTC(),
	}
}

// UnixSeconds returns the timestamp as fractional seconds since Unix epoch.
func (e Event) UnixSeconds() float64 { return float64(e.Timestamp.UnixNano()) / 1e9 }
