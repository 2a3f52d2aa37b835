package agent

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/meshcore/core"
	"github.com/hupe1980/meshcore/logging"
	"github.com/hupe1980/meshcore/model"
	"github.com/hupe1980/meshcore/thread"
	"github.com/hupe1980/meshcore/tool"
)

// DefaultMaxToolRounds bounds the tool-call rounds of a single Advance.
const DefaultMaxToolRounds = 8

// State is the lifecycle state of an agent.
type State string

// Lifecycle states, in order.
const (
	StateNotStarted   State = "not_started"
	StateInitializing State = "initializing"
	StateActive       State = "active"
	StateStopping     State = "stopping"
	StateDone         State = "done"
)

// Host is the session an agent belongs to. *session.Session implements it.
type Host interface {
	InvokeModel(ctx context.Context, agentID string, meta model.Meta, req model.Request) (*model.Response, error)
	Aborted() bool
	Link(m core.Member) error
	Unlink(id string)
	Notify(agentID, msg string, kv ...any)
	Logger() logging.Logger
}

// Config configures an Agent.
type Config struct {
	// Name is a human readable label; defaults to "agent".
	Name string
	// Model is the model used by Advance.
	Model model.Meta
	// Tools are advertised to the model and dispatched by HandleToolCalls.
	Tools []tool.Tool
	// EatToolResults collapses every tool exchange of an Advance into one
	// synthetic note on the pre-tool history.
	EatToolResults bool
	// MaxToolRounds bounds tool-call rounds per Advance; defaults to DefaultMaxToolRounds.
	MaxToolRounds int
	// Generate holds sampling parameters passed with every request.
	Generate model.GenerateOptions
	// Instruction becomes the first system message of every new thread.
	Instruction Instruction
}

// Agent is the generic agent engine. Use Spawn to create one bound to a
// session. Agent methods are safe for concurrent use unless noted.
type Agent[O, S, R any] struct {
	id     string
	cfg    Config
	hooks  Hooks[O, S, R]
	opts   O
	host   Host
	tools  map[string]tool.Tool
	logger logging.Logger

	active        atomic.Bool
	step          atomic.Int64
	lastHeartbeat atomic.Int64

	mu        sync.RWMutex
	state     State
	threads   map[string]*thread.Thread
	listeners []func(core.Event)
}

// New creates an agent that is not yet attached to a session. It fails with
// core.ErrNotImplemented when hooks are missing.
func New[O, S, R any](hooks Hooks[O, S, R], opts O, optFns ...func(c *Config)) (*Agent[O, S, R], error) {
	if err := validateHooks(hooks); err != nil {
		return nil, err
	}

	cfg := Config{
		Name:          "agent",
		MaxToolRounds: DefaultMaxToolRounds,
	}
	for _, fn := range optFns {
		fn(&cfg)
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = DefaultMaxToolRounds
	}

	tools := make(map[string]tool.Tool, len(cfg.Tools))
	for _, t := range cfg.Tools {
		if _, dup := tools[t.Name()]; dup {
			return nil, fmt.Errorf("%w: duplicate tool %q", core.ErrInvalidState, t.Name())
		}
		tools[t.Name()] = t
	}

	return &Agent[O, S, R]{
		id:      core.NewID(),
		cfg:     cfg,
		hooks:   hooks,
		opts:    opts,
		tools:   tools,
		logger:  logging.NoOpLogger{},
		state:   StateNotStarted,
		threads: make(map[string]*thread.Thread),
	}, nil
}

// Spawn creates an agent and links it to host. The caller invokes Run,
// typically on its own goroutine. Nested agents pass the parent's Host() to
// become siblings under the same session.
func Spawn[O, S, R any](host Host, hooks Hooks[O, S, R], opts O, optFns ...func(c *Config)) (*Agent[O, S, R], error) {
	a, err := New(hooks, opts, optFns...)
	if err != nil {
		return nil, err
	}
	if err := a.attach(host); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Agent[O, S, R]) attach(host Host) error {
	if host == nil {
		return fmt.Errorf("%w: nil host", core.ErrInvalidState)
	}
	if err := host.Link(a); err != nil {
		return fmt.Errorf("link agent %s: %w", a.cfg.Name, err)
	}
	a.host = host
	if l := host.Logger(); l != nil {
		a.logger = l
	}
	return nil
}

// ID returns the unique agent identifier.
func (a *Agent[O, S, R]) ID() string { return a.id }

// Name returns the configured agent name.
func (a *Agent[O, S, R]) Name() string { return a.cfg.Name }

// Config returns a copy of the agent configuration.
func (a *Agent[O, S, R]) Config() Config { return a.cfg }

// Options returns the options the agent was created with.
func (a *Agent[O, S, R]) Options() O { return a.opts }

// Host returns the session the agent is linked to.
func (a *Agent[O, S, R]) Host() Host { return a.host }

// Logger returns the logger inherited from the host.
func (a *Agent[O, S, R]) Logger() logging.Logger { return a.logger }

// State returns the current lifecycle state.
func (a *Agent[O, S, R]) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Active reports whether the step loop keeps going.
func (a *Agent[O, S, R]) Active() bool { return a.active.Load() }

func (a *Agent[O, S, R]) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// OnEvent registers a lifecycle listener. Listeners run synchronously on the
// agent's goroutine in registration order.
func (a *Agent[O, S, R]) OnEvent(fn func(core.Event)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, fn)
}

func (a *Agent[O, S, R]) emit(kind core.EventKind, err error) {
	ev := core.NewEvent(a.id, a.cfg.Name, kind, int(a.step.Load()))
	ev.Err = err

	a.mu.RLock()
	listeners := append([]func(core.Event){}, a.listeners...)
	a.mu.RUnlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

// Heartbeat raises a liveness signal for external watchdogs. Run calls it
// before every step.
func (a *Agent[O, S, R]) Heartbeat() {
	a.lastHeartbeat.Store(time.Now().UnixNano())
	a.emit(core.EventHeartbeat, nil)
}

// LastHeartbeat returns the time of the last heartbeat, zero if none.
func (a *Agent[O, S, R]) LastHeartbeat() time.Time {
	n := a.lastHeartbeat.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Steps returns the number of steps started so far.
func (a *Agent[O, S, R]) Steps() int { return int(a.step.Load()) }

// Run drives the agent: initialize, then step while active and the session
// is not aborted (at least once), then finalize and conclude. A failing hook
// ends the run without finalize; the agent is concluded and the error returned.
func (a *Agent[O, S, R]) Run(ctx context.Context) (R, error) {
	var zero R

	if a.host == nil {
		return zero, fmt.Errorf("%w: agent %s is not linked to a session", core.ErrInvalidState, a.cfg.Name)
	}

	a.mu.Lock()
	if a.state != StateNotStarted {
		st := a.state
		a.mu.Unlock()
		return zero, fmt.Errorf("%w: agent %s already %s", core.ErrInvalidState, a.cfg.Name, st)
	}
	a.state = StateInitializing
	a.mu.Unlock()

	a.logger.Debug("agent.run.start", "agent", a.cfg.Name, "agent_id", a.id)
	a.emit(core.EventStart, nil)

	state, err := a.hooks.Initialize(ctx, a, a.opts)
	if err != nil {
		return zero, a.fail("initialize", err)
	}

	a.setState(StateActive)
	a.active.Store(true)

	for {
		a.step.Add(1)
		a.Heartbeat()

		state, err = a.hooks.Step(ctx, a, state)
		if err != nil {
			return zero, a.fail("step", err)
		}
		a.emit(core.EventStep, nil)

		if !a.active.Load() || a.host.Aborted() || ctx.Err() != nil {
			break
		}
	}

	a.active.Store(false)
	a.setState(StateStopping)
	a.emit(core.EventStopping, nil)

	result, err := a.hooks.Finalize(ctx, a, state)
	if err != nil {
		return zero, a.fail("finalize", err)
	}

	a.setState(StateDone)
	if err := a.Conclude(); err != nil {
		return zero, err
	}
	a.emit(core.EventStop, nil)
	a.logger.Debug("agent.run.complete", "agent", a.cfg.Name, "agent_id", a.id, "steps", a.Steps())

	return result, nil
}

func (a *Agent[O, S, R]) fail(phase string, err error) error {
	a.active.Store(false)
	a.setState(StateDone)
	a.logger.Error("agent.run.error", "agent", a.cfg.Name, "agent_id", a.id, "phase", phase, "error", err.Error())
	a.emit(core.EventError, err)
	if cerr := a.Conclude(); cerr != nil {
		a.logger.Warn("agent.conclude.failed", "agent_id", a.id, "error", cerr.Error())
	}
	return fmt.Errorf("agent %s %s: %w", a.cfg.Name, phase, err)
}

// Stop asks the loop to exit after the current step. It fails with
// core.ErrInvalidState when the agent is not active.
func (a *Agent[O, S, R]) Stop() error {
	if !a.active.CompareAndSwap(true, false) {
		return fmt.Errorf("%w: agent %s is not active", core.ErrInvalidState, a.cfg.Name)
	}
	return nil
}

// Conclude concludes every owned thread and unlinks the agent from its
// session. It fails with core.ErrInvalidState while the agent is active.
func (a *Agent[O, S, R]) Conclude() error {
	if a.active.Load() {
		return fmt.Errorf("%w: agent %s is active", core.ErrInvalidState, a.cfg.Name)
	}

	a.mu.Lock()
	owned := make([]*thread.Thread, 0, len(a.threads))
	for _, t := range a.threads {
		owned = append(owned, t)
	}
	a.threads = make(map[string]*thread.Thread)
	a.mu.Unlock()

	for _, t := range owned {
		if err := t.Conclude(a.id); err != nil {
			a.logger.Warn("agent.thread.conclude_failed", "agent_id", a.id, "thread_id", t.ID(), "error", err.Error())
		}
	}

	if a.host != nil {
		a.host.Unlink(a.id)
	}
	return nil
}

// Threads returns the threads currently owned by the agent.
func (a *Agent[O, S, R]) Threads() []*thread.Thread {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*thread.Thread, 0, len(a.threads))
	for _, t := range a.threads {
		out = append(out, t)
	}
	return out
}

// Owns reports whether t is owned by the agent.
func (a *Agent[O, S, R]) Owns(t *thread.Thread) bool {
	return t.CheckOwner(a.id) == nil
}

// NewThread creates a thread owned by the agent. A configured instruction is
// appended as its first system message.
func (a *Agent[O, S, R]) NewThread(ctx context.Context) (*thread.Thread, error) {
	if a.State() == StateDone {
		return nil, fmt.Errorf("%w: agent %s is done", core.ErrInvalidState, a.cfg.Name)
	}

	t := thread.New()
	if err := a.adopt(t); err != nil {
		return nil, err
	}

	if !a.cfg.Instruction.IsZero() {
		text, err := a.cfg.Instruction.Resolve(ctx, a)
		if err != nil {
			return nil, fmt.Errorf("resolve instruction: %w", err)
		}
		if text != "" {
			if err := t.AppendSystemMessage(a.id, text); err != nil {
				return nil, err
			}
		}
	}
	return t, nil
}

func (a *Agent[O, S, R]) adopt(t *thread.Thread) error {
	if err := t.Adopt(a.id); err != nil {
		return err
	}
	a.mu.Lock()
	a.threads[t.ID()] = t
	a.mu.Unlock()
	return nil
}

func (a *Agent[O, S, R]) abandon(t *thread.Thread) error {
	if err := t.Abandon(a.id); err != nil {
		return err
	}
	a.mu.Lock()
	delete(a.threads, t.ID())
	a.mu.Unlock()
	return nil
}

// handOver moves ownership from old to next.
func (a *Agent[O, S, R]) handOver(old, next *thread.Thread) error {
	if err := a.abandon(old); err != nil {
		return err
	}
	return a.adopt(next)
}

// Notify forwards a diagnostic message to the session.
func (a *Agent[O, S, R]) Notify(msg string, kv ...any) {
	if a.host != nil {
		a.host.Notify(a.id, msg, kv...)
	}
}
