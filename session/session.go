package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hupe1980/meshcore/core"
	"github.com/hupe1980/meshcore/ledger"
	"github.com/hupe1980/meshcore/logging"
	"github.com/hupe1980/meshcore/model"
)

// Dispatcher sends a canonical request to the provider of meta.
// *router.Router satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, meta model.Meta, req model.Request) (*model.Response, error)
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, meta model.Meta, req model.Request) (*model.Response, error)

// Dispatch implements Dispatcher.
func (f DispatcherFunc) Dispatch(ctx context.Context, meta model.Meta, req model.Request) (*model.Response, error) {
	return f(ctx, meta, req)
}

// Options configures a Session.
type Options struct {
	// MaxAgents caps the number of simultaneously linked agents. 0 means unbounded.
	MaxAgents int
	// MaxModelCalls caps the number of model invocations. 0 means unbounded.
	MaxModelCalls int
	Logger        logging.Logger
	Clock         func() time.Time
}

// Note is one diagnostic message recorded through Notify.
type Note struct {
	Timestamp time.Time      `json:"timestamp"`
	AgentID   string         `json:"agentId,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Session coordinates the agents of one run. Safe for concurrent use.
type Session struct {
	id         string
	opts       Options
	dispatcher Dispatcher
	ledger     *ledger.Ledger
	limiter    *core.CallLimiter
	agents     *core.CallLimiter
	started    time.Time
	aborted    atomic.Bool

	mu      sync.RWMutex
	members map[string]core.Member
	order   []string
	ended   time.Time
	err     error
	trace   []Note
}

// New creates a session that sends model requests through dispatcher.
func New(dispatcher Dispatcher, optFns ...func(o *Options)) *Session {
	opts := Options{
		Logger: logging.NoOpLogger{},
		Clock:  time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Session{
		id:         core.NewID(),
		opts:       opts,
		dispatcher: dispatcher,
		ledger:     ledger.New(),
		limiter:    core.NewCallLimiter(opts.MaxModelCalls),
		agents:     core.NewCallLimiter(opts.MaxAgents),
		started:    opts.Clock(),
		members:    make(map[string]core.Member),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Logger returns the session logger.
func (s *Session) Logger() logging.Logger { return s.opts.Logger }

// Started returns the creation time.
func (s *Session) Started() time.Time { return s.started }

// Link registers m as a live member.
func (s *Session) Link(m core.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ended.IsZero() {
		return fmt.Errorf("%w: session %s has ended", core.ErrInvalidState, s.id)
	}
	if _, ok := s.members[m.ID()]; ok {
		return fmt.Errorf("%w: member %s already linked", core.ErrInvalidState, m.ID())
	}
	if err := s.agents.Increment(); err != nil {
		return fmt.Errorf("link agent %s: %w", m.ID(), err)
	}

	s.members[m.ID()] = m
	s.order = append(s.order, m.ID())
	s.opts.Logger.Debug("session.link", "session_id", s.id, "agent_id", m.ID(), "agent", m.Name())
	return nil
}

// Unlink removes the member with the given id. Unknown ids are ignored.
func (s *Session) Unlink(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[id]; !ok {
		return
	}
	delete(s.members, id)
	s.agents.Decrement()
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.opts.Logger.Debug("session.unlink", "session_id", s.id, "agent_id", id)
}

// Member looks up a live member by id.
func (s *Session) Member(id string) (core.Member, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[id]
	return m, ok
}

// Members returns the live members in link order.
func (s *Session) Members() []core.Member {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Member, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.members[id])
	}
	return out
}

// InvokeModel dispatches req on behalf of agentID. A successful call appends
// exactly one ledger entry priced with meta.Pricing; a failed call appends none.
func (s *Session) InvokeModel(ctx context.Context, agentID string, meta model.Meta, req model.Request) (*model.Response, error) {
	if err := s.limiter.Increment(); err != nil {
		return nil, fmt.Errorf("session %s: %w", s.id, err)
	}

	start := time.Now()
	resp, err := s.dispatcher.Dispatch(ctx, meta, req)
	if err != nil {
		logging.LogModelCall(s.opts.Logger, meta.ID, core.Usage{}, time.Since(start), err)
		return nil, err
	}

	s.ledger.Append(ledger.Entry{
		Timestamp:        s.opts.Clock(),
		AgentID:          agentID,
		ModelID:          meta.ID,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		Cost:             meta.Pricing.Cost(resp.Usage),
	})
	logging.LogModelCall(s.opts.Logger, meta.ID, resp.Usage, time.Since(start), nil)

	return resp, nil
}

// ModelCalls returns the number of model invocations attempted so far.
func (s *Session) ModelCalls() int { return s.limiter.Count() }

// Abort asks every agent to stop at its next loop head. Never fails.
func (s *Session) Abort() {
	if s.aborted.CompareAndSwap(false, true) {
		s.opts.Logger.Info("session.abort", "session_id", s.id)
	}
}

// Aborted reports whether Abort was called.
func (s *Session) Aborted() bool { return s.aborted.Load() }

// Ledger returns a copy of the ledger entries.
func (s *Session) Ledger() []ledger.Entry { return s.ledger.Entries() }

// TotalCost returns the exact sum of all ledger entries.
func (s *Session) TotalCost() decimal.Decimal { return s.ledger.TotalCost() }

// TokensByModel returns prompt plus completion tokens per model id.
func (s *Session) TokensByModel() map[string]int { return tokens(s.ledger.ByModel()) }

// TokensByAgent returns prompt plus completion tokens per agent id.
func (s *Session) TokensByAgent() map[string]int { return tokens(s.ledger.ByAgent()) }

// CostByModel returns the cost per model id.
func (s *Session) CostByModel() map[string]decimal.Decimal { return costs(s.ledger.ByModel()) }

// CostByAgent returns the cost per agent id.
func (s *Session) CostByAgent() map[string]decimal.Decimal { return costs(s.ledger.ByAgent()) }

func tokens(m map[string]ledger.Totals) map[string]int {
	out := make(map[string]int, len(m))
	for k, t := range m {
		out[k] = t.Tokens()
	}
	return out
}

func costs(m map[string]ledger.Totals) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(m))
	for k, t := range m {
		out[k] = t.Cost
	}
	return out
}

// End marks the session finished with an optional terminal error. Only the
// first call has an effect.
func (s *Session) End(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended.IsZero() {
		return
	}
	s.ended = s.opts.Clock()
	s.err = err
	if err != nil {
		s.opts.Logger.Warn("session.end", "session_id", s.id, "error", err.Error())
		return
	}
	s.opts.Logger.Info("session.end", "session_id", s.id, "cost", s.ledger.TotalCost().String())
}

// Ended reports whether End was called.
func (s *Session) Ended() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.ended.IsZero()
}

// Err returns the error passed to End.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Elapsed returns the run time so far, or the total run time once ended.
func (s *Session) Elapsed() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ended.IsZero() {
		return s.opts.Clock().Sub(s.started)
	}
	return s.ended.Sub(s.started)
}

// Notify records a diagnostic message from agentID. kv are slog style
// key/value pairs.
func (s *Session) Notify(agentID, msg string, kv ...any) {
	note := Note{Timestamp: s.opts.Clock(), AgentID: agentID, Message: msg}
	if len(kv) > 0 {
		note.Fields = make(map[string]any, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			note.Fields[fmt.Sprint(kv[i])] = kv[i+1]
		}
	}

	s.mu.Lock()
	s.trace = append(s.trace, note)
	s.mu.Unlock()

	args := append([]any{"session_id", s.id, "agent_id", agentID}, kv...)
	s.opts.Logger.Info(msg, args...)
}

// Trace returns a copy of the recorded notes.
func (s *Session) Trace() []Note {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Note(nil), s.trace...)
}

// FormatTrace renders notes one per line as
// "<RFC3339 time> <agent id> <message> key=value ...", keys sorted.
func FormatTrace(notes []Note) string {
	var b strings.Builder
	for _, n := range notes {
		b.WriteString(n.Timestamp.UTC().Format(time.RFC3339Nano))
		if n.AgentID != "" {
			b.WriteByte(' ')
			b.WriteString(n.AgentID)
		}
		b.WriteByte(' ')
		b.WriteString(n.Message)

		keys := make([]string, 0, len(n.Fields))
		for k := range n.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, n.Fields[k])
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Report summarizes the session.
type Report struct {
	ID             string          `json:"id"`
	Cost           decimal.Decimal `json:"cost"`
	Elapsed        float64         `json:"elapsed"`
	Ended          bool            `json:"ended"`
	Exchanges      int             `json:"exchanges"`
	TokensPerModel map[string]int  `json:"tokensPerModel"`
	TokensPerAgent map[string]int  `json:"tokensPerAgent"`
	Ledger         []ledger.Entry  `json:"ledger,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// Report builds a summary. Exchanges counts billed model invocations.
func (s *Session) Report() Report {
	r := Report{
		ID:             s.id,
		Cost:           s.TotalCost(),
		Elapsed:        s.Elapsed().Seconds(),
		Ended:          s.Ended(),
		Exchanges:      s.ledger.Len(),
		TokensPerModel: s.TokensByModel(),
		TokensPerAgent: s.TokensByAgent(),
		Ledger:         s.Ledger(),
	}
	if err := s.Err(); err != nil {
		r.Error = err.Error()
	}
	return r
}

// MemberIDs returns the sorted ids of the live members.
func (s *Session) MemberIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.members))
	for id := range s.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
