package core

import (
	"fmt"
	"sync"
)

// CallLimiter enforces a maximum count: model invocations per session as a
// budget, live agents per session as a gauge.
type CallLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewCallLimiter creates a new limiter with a max number of calls.
// If max == 0, unlimited calls are allowed.
func NewCallLimiter(max int) *CallLimiter {
	return &CallLimiter{max: max}
}

// Increment increases the call counter and returns an error if the limit is exceeded.
// A rejected call does not consume budget.
func (cl *CallLimiter) Increment() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.max > 0 && cl.count >= cl.max {
		return fmt.Errorf("%w: max calls %d", ErrLimitExceeded, cl.max)
	}
	cl.count++

	return nil
}

// Decrement releases one unit, used by gauges when a member leaves.
func (cl *CallLimiter) Decrement() {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.count > 0 {
		cl.count--
	}
}

// Count returns the current number of calls made.
func (cl *CallLimiter) Count() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	return cl.count
}
