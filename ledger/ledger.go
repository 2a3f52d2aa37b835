// Package ledger records the cost of every model invocation of a session.
//
// The ledger is append-only: entries are never revised or removed, and the
// total is always the exact decimal sum of the recorded entries.
package ledger

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hupe1980/meshcore/core"
)

// Entry is one billed model invocation.
type Entry struct {
	Timestamp        time.Time       `json:"timestamp"`
	AgentID          string          `json:"agentId"`
	ModelID          string          `json:"modelId"`
	PromptTokens     int             `json:"promptTokens"`
	CompletionTokens int             `json:"completionTokens"`
	Cost             decimal.Decimal `json:"cost"`
}

// Usage returns the token usage recorded by the entry.
func (e Entry) Usage() core.Usage {
	return core.Usage{PromptTokens: e.PromptTokens, CompletionTokens: e.CompletionTokens}
}

// Totals aggregates token usage and cost for one key (model or agent).
type Totals struct {
	Calls            int             `json:"calls"`
	PromptTokens     int             `json:"promptTokens"`
	CompletionTokens int             `json:"completionTokens"`
	Cost             decimal.Decimal `json:"cost"`
}

// Tokens returns prompt plus completion tokens.
func (t Totals) Tokens() int { return t.PromptTokens + t.CompletionTokens }

func (t Totals) add(e Entry) Totals {
	t.Calls++
	t.PromptTokens += e.PromptTokens
	t.CompletionTokens += e.CompletionTokens
	t.Cost = t.Cost.Add(e.Cost)
	return t
}

// Ledger is an append-only list of entries. Appends are serialized, reads
// return copies. Safe for concurrent use.
type Ledger struct {
	mu      sync.RWMutex
	entries []Entry
	total   decimal.Decimal
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{}
}

// Append records e. A zero timestamp is replaced by the current time.
func (l *Ledger) Append(e Entry) Entry {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, e)
	l.total = l.total.Add(e.Cost)
	return e
}

// Entries returns a copy of all entries in append order.
func (l *Ledger) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// TotalCost returns the exact sum of all entry costs.
func (l *Ledger) TotalCost() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}

// Usage returns the summed token usage of all entries.
func (l *Ledger) Usage() core.Usage {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var u core.Usage
	for _, e := range l.entries {
		u = u.Add(e.Usage())
	}
	return u
}

// ByModel aggregates entries per model id.
func (l *Ledger) ByModel() map[string]Totals {
	return l.group(func(e Entry) string { return e.ModelID })
}

// ByAgent aggregates entries per agent id.
func (l *Ledger) ByAgent() map[string]Totals {
	return l.group(func(e Entry) string { return e.AgentID })
}

func (l *Ledger) group(key func(Entry) string) map[string]Totals {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]Totals)
	for _, e := range l.entries {
		k := key(e)
		out[k] = out[k].add(e)
	}
	return out
}

// Keys returns the sorted keys of an aggregation.
func Keys(m map[string]Totals) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
