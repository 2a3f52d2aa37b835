package core

import "github.com/google/uuid"

// Member is anything a session owns and can resolve by identifier. Agents
// implement it; threads and tools refer to their owner only through the ID.
type Member interface {
	ID() string
	Name() string
}

// NewID generates a new unique identifier for agents, threads, events and
// synthesized tool calls.
func NewID() string { return uuid.NewString() }
