// Package thread implements the branchable conversation history owned by a
// single agent at a time.
//
// A Thread is an ordered sequence of core.Exchange values forming one branch.
// Simple appends mutate the instance in place; branching operations (Branch,
// Rollup) produce new, unowned instances which the caller must hand over
// explicitly: the old owner abandons the old branch, the new instance is
// adopted. Ownership is a flag on the thread itself holding the owner's
// identifier, never a pointer back to the agent. Every append names the
// acting agent and fails with core.ErrNotOwner unless it owns the thread.
//
// All exported methods are safe for concurrent use.
package thread

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/meshcore/core"
)

// Thread is one branch of a conversation.
type Thread struct {
	id string

	mu        sync.RWMutex
	exchanges []core.Exchange
	// pending maps issued tool-call ids of the trailing batch to their
	// resolution status.
	pending      map[string]bool
	pendingCalls []core.ToolCall
	owner        string
	concluded    bool

	busy atomic.Bool
}

// New creates an empty, unowned thread.
func New() *Thread {
	return &Thread{id: core.NewID()}
}

// ID returns the unique thread identifier.
func (t *Thread) ID() string { return t.id }

// Owner returns the identifier of the owning agent ("" when unowned).
func (t *Thread) Owner() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.owner
}

// Len returns the number of exchanges.
func (t *Thread) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.exchanges)
}

// Exchanges returns a defensive copy of the history.
func (t *Thread) Exchanges() []core.Exchange {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return cloneExchanges(t.exchanges)
}

// Last returns the trailing exchange, if any.
func (t *Thread) Last() (core.Exchange, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.exchanges) == 0 {
		return core.Exchange{}, false
	}
	return t.exchanges[len(t.exchanges)-1].Clone(), true
}

// AppendUserMessage appends a user turn on behalf of the owner agentID.
func (t *Thread) AppendUserMessage(agentID, text string) error {
	return t.appendText(agentID, core.RoleUser, text)
}

// AppendSystemMessage appends a system turn on behalf of the owner agentID.
func (t *Thread) AppendSystemMessage(agentID, text string) error {
	return t.appendText(agentID, core.RoleSystem, text)
}

// AppendAssistantMessage appends a plain assistant reply, completing the turn.
func (t *Thread) AppendAssistantMessage(agentID, text string) error {
	return t.appendText(agentID, core.RoleAssistant, text)
}

func (t *Thread) appendText(agentID string, role core.Role, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.writableLocked(agentID); err != nil {
		return err
	}
	if role == core.RoleAssistant && t.completeLocked() {
		return fmt.Errorf("%w: thread %s already ends in an assistant reply", core.ErrInvalidState, t.id)
	}
	t.exchanges = append(t.exchanges, core.NewTextExchange(role, text))
	return nil
}

// AppendAssistantToolCalls appends an assistant tool-call batch and records
// every call id as pending, in the order given.
func (t *Thread) AppendAssistantToolCalls(agentID string, calls []core.ToolCall) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.writableLocked(agentID); err != nil {
		return err
	}
	if t.completeLocked() {
		return fmt.Errorf("%w: thread %s already ends in an assistant reply", core.ErrInvalidState, t.id)
	}
	if len(calls) == 0 {
		return fmt.Errorf("%w: empty tool call batch", core.ErrInvalidState)
	}

	pending := make(map[string]bool, len(calls))
	for _, c := range calls {
		if c.ID == "" {
			return fmt.Errorf("%w: tool call %q without id", core.ErrInvalidState, c.Name)
		}
		if _, dup := pending[c.ID]; dup {
			return fmt.Errorf("%w: duplicate tool call id %q", core.ErrInvalidState, c.ID)
		}
		pending[c.ID] = false
	}

	t.exchanges = append(t.exchanges, core.NewToolCallsExchange(calls))
	t.pending = pending
	t.pendingCalls = append([]core.ToolCall(nil), calls...)
	return nil
}

// AppendToolResult resolves one pending tool call on behalf of the owner agentID.
func (t *Thread) AppendToolResult(agentID, callID, content string, isError bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.concluded {
		return fmt.Errorf("%w: thread %s is concluded", core.ErrInvalidState, t.id)
	}
	if err := t.ownedByLocked(agentID); err != nil {
		return err
	}
	resolved, ok := t.pending[callID]
	if !ok {
		return fmt.Errorf("%w: %q", core.ErrUnknownCallID, callID)
	}
	if resolved {
		return fmt.Errorf("%w: %q", core.ErrAlreadyResolved, callID)
	}

	name := ""
	for _, c := range t.pendingCalls {
		if c.ID == callID {
			name = c.Name
			break
		}
	}
	t.pending[callID] = true
	t.exchanges = append(t.exchanges, core.NewToolResultExchange(core.ToolResult{
		CallID:  callID,
		Name:    name,
		Content: content,
		IsError: isError,
	}))
	return nil
}

// Pending returns the unresolved calls of the trailing batch in issue order.
func (t *Thread) Pending() []core.ToolCall {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []core.ToolCall
	for _, c := range t.pendingCalls {
		if !t.pending[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

// Resolved reports whether every issued tool call has a result.
func (t *Thread) Resolved() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.resolvedLocked()
}

// Complete reports whether the thread ends in a plain assistant reply.
func (t *Thread) Complete() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.completeLocked()
}

// Concluded reports whether the thread was concluded by its owner.
func (t *Thread) Concluded() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.concluded
}

// Advanceable reports whether the next assistant turn may be requested: the
// thread is not empty, not complete, not concluded and has no pending calls.
func (t *Thread) Advanceable() error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	switch {
	case t.concluded:
		return fmt.Errorf("%w: thread %s is concluded", core.ErrInvalidState, t.id)
	case len(t.exchanges) == 0:
		return fmt.Errorf("%w: thread %s is empty", core.ErrInvalidState, t.id)
	case !t.resolvedLocked():
		return fmt.Errorf("%w: thread %s has unresolved tool calls", core.ErrInvalidState, t.id)
	case t.completeLocked():
		return fmt.Errorf("%w: thread %s is complete", core.ErrInvalidState, t.id)
	}
	return nil
}

// Branch returns a new, unowned thread carrying a copy of this history
// (including the pending-call bookkeeping). The receiver is not modified.
func (t *Thread) Branch() *Thread {
	t.mu.RLock()
	defer t.mu.RUnlock()

	nt := &Thread{id: core.NewID(), exchanges: cloneExchanges(t.exchanges)}
	if t.pending != nil {
		nt.pending = make(map[string]bool, len(t.pending))
		for k, v := range t.pending {
			nt.pending[k] = v
		}
		nt.pendingCalls = append([]core.ToolCall(nil), t.pendingCalls...)
	}
	return nt
}

// Rollup returns a brand-new unowned thread holding base's exchanges followed
// by one synthetic note. It never mutates base. The caller must abandon the
// branch being replaced and adopt the result. A base with unresolved tool
// calls cannot be rolled up.
func Rollup(base *Thread, note string) (*Thread, error) {
	base.mu.RLock()
	if !base.resolvedLocked() {
		base.mu.RUnlock()
		return nil, fmt.Errorf("%w: thread %s has unresolved tool calls", core.ErrInvalidState, base.id)
	}
	exchanges := cloneExchanges(base.exchanges)
	base.mu.RUnlock()

	n := core.NewTextExchange(core.RoleSystem, note)
	n.Synthetic = true

	return &Thread{id: core.NewID(), exchanges: append(exchanges, n)}, nil
}

// RollupNote builds the synthetic note used when collapsing a tool exchange
// branch.
func RollupNote(toolNames []string) string {
	return "[called tools: " + strings.Join(toolNames, ", ") + "]"
}

// Adopt assigns ownership to agentID. Adopting an owned thread fails.
func (t *Thread) Adopt(agentID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.concluded {
		return fmt.Errorf("%w: thread %s is concluded", core.ErrInvalidState, t.id)
	}
	if t.owner != "" {
		return fmt.Errorf("%w: thread %s already owned by %s", core.ErrInvalidState, t.id, t.owner)
	}
	t.owner = agentID
	return nil
}

// Abandon releases ownership. Only the current owner may abandon.
func (t *Thread) Abandon(agentID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.owner != agentID {
		return fmt.Errorf("%w: %s is not owner of thread %s", core.ErrNotOwner, agentID, t.id)
	}
	t.owner = ""
	return nil
}

// CheckOwner fails with core.ErrNotOwner unless agentID owns the thread.
func (t *Thread) CheckOwner(agentID string) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ownedByLocked(agentID)
}

// Conclude seals the thread. Further appends and adoptions fail.
func (t *Thread) Conclude(agentID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.owner != agentID {
		return fmt.Errorf("%w: %s is not owner of thread %s", core.ErrNotOwner, agentID, t.id)
	}
	t.concluded = true
	t.owner = ""
	return nil
}

// TryAcquire marks the thread busy. It returns false when another caller is
// already advancing it.
func (t *Thread) TryAcquire() bool { return t.busy.CompareAndSwap(false, true) }

// Release clears the busy mark set by TryAcquire.
func (t *Thread) Release() { t.busy.Store(false) }

// Equal reports structural equality of two histories (ids and timestamps ignored).
func Equal(a, b *Thread) bool {
	ea, eb := a.Exchanges(), b.Exchanges()
	if len(ea) != len(eb) {
		return false
	}
	for i := range ea {
		if !ea[i].Equal(eb[i]) {
			return false
		}
	}
	return true
}

func (t *Thread) ownedByLocked(agentID string) error {
	if agentID == "" || t.owner != agentID {
		return fmt.Errorf("%w: %s is not owner of thread %s", core.ErrNotOwner, agentID, t.id)
	}
	return nil
}

// writableLocked admits appends by the owner on a live thread without
// pending calls. An unowned thread accepts no appends.
func (t *Thread) writableLocked(agentID string) error {
	if t.concluded {
		return fmt.Errorf("%w: thread %s is concluded", core.ErrInvalidState, t.id)
	}
	if err := t.ownedByLocked(agentID); err != nil {
		return err
	}
	if !t.resolvedLocked() {
		return fmt.Errorf("%w: thread %s has unresolved tool calls", core.ErrInvalidState, t.id)
	}
	return nil
}

func (t *Thread) resolvedLocked() bool {
	for _, done := range t.pending {
		if !done {
			return false
		}
	}
	return true
}

func (t *Thread) completeLocked() bool {
	if len(t.exchanges) == 0 {
		return false
	}
	return t.exchanges[len(t.exchanges)-1].IsAssistantText()
}

func cloneExchanges(in []core.Exchange) []core.Exchange {
	out := make([]core.Exchange, len(in))
	for i, e := range in {
		out[i] = e.Clone()
	}
	return out
}
