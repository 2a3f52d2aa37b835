// Package meshcore provides the runtime boundary of the orchestration core.
// Most applications interact with this package by:
//  1. Creating a Runtime via New() or NewFromConfig()
//  2. Registering agent types (agent.NewFactory) under a namespace
//  3. Spawning a root agent per request (Spawn) and polling Status
//
// Every spawn gets its own session: a fresh cost ledger, member table and
// abort flag. The Runtime keeps finished sessions queryable for the lifetime
// of the process.
package meshcore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hupe1980/meshcore/agent"
	"github.com/hupe1980/meshcore/logging"
	"github.com/hupe1980/meshcore/model"
	"github.com/hupe1980/meshcore/registry"
	"github.com/hupe1980/meshcore/router"
	"github.com/hupe1980/meshcore/session"
)

// Options configures the Runtime.
type Options struct {
	// Router dispatches model requests; defaults to an empty router.
	Router *router.Router
	// Registry resolves agent types; defaults to an empty registry.
	Registry *registry.Registry
	// Store keeps sessions for status queries; defaults to an in-memory store.
	Store *session.InMemoryStore
	// Catalog resolves model ids; defaults to model.DefaultModels.
	Catalog *model.Catalog
	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
	// MaxConcurrentSpawns limits simultaneously running spawns. 0 means unbounded.
	MaxConcurrentSpawns int
	// DefaultTimeout applies when a request carries no timeout. 0 disables it.
	DefaultTimeout time.Duration
	// MaxAgents and MaxModelCalls are applied to every new session.
	MaxAgents     int
	MaxModelCalls int
}

// SpawnRequest asks the runtime to run one root agent.
type SpawnRequest struct {
	Type    string          `json:"type"`
	Options json.RawMessage `json:"options,omitempty"`
	// Timeout in seconds; 0 uses the runtime default.
	Timeout float64 `json:"timeout,omitempty"`
}

// SessionSummary is the session part of a spawn response.
type SessionSummary = session.Report

// SpawnResponse reports the outcome of a spawn.
type SpawnResponse struct {
	Success bool            `json:"success"`
	Result  any             `json:"result,omitempty"`
	Session *SessionSummary `json:"session,omitempty"`
	Error   string          `json:"error,omitempty"`
	// Trace holds the session's diagnostic notes, one per line.
	Trace string `json:"trace,omitempty"`
}

// SessionStatus is one entry of a status response.
type SessionStatus struct {
	ID             string         `json:"id"`
	Cost           string         `json:"cost"`
	Elapsed        float64        `json:"elapsed"`
	Ended          bool           `json:"ended"`
	Exchanges      int            `json:"exchanges"`
	TokensPerModel map[string]int `json:"tokensPerModel"`
	TokensPerAgent map[string]int `json:"tokensPerAgent"`
}

// StatusResponse lists every known session, oldest first.
type StatusResponse struct {
	Sessions []SessionStatus `json:"sessions"`
}

// Runtime is the high-level façade tying registry, router and sessions together.
// Safe for concurrent use.
type Runtime struct {
	opts Options
	sem  chan struct{}
}

// New creates a Runtime with optional overrides. Any unset collaborator is
// initialized with an empty in-memory implementation.
func New(optFns ...func(o *Options)) *Runtime {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Router == nil {
		opts.Router = router.New(func(o *router.Options) { o.Logger = opts.Logger })
	}
	if opts.Registry == nil {
		opts.Registry = registry.New()
	}
	if opts.Store == nil {
		opts.Store = session.NewInMemoryStore()
	}
	if opts.Catalog == nil {
		opts.Catalog = model.NewCatalog(model.DefaultModels...)
	}

	rt := &Runtime{opts: opts}
	if opts.MaxConcurrentSpawns > 0 {
		rt.sem = make(chan struct{}, opts.MaxConcurrentSpawns)
	}
	return rt
}

// Register adds an agent type.
func (rt *Runtime) Register(namespace, name string, factory agent.Factory) error {
	return rt.opts.Registry.Register(namespace, name, factory)
}

// Registry returns the agent type registry.
func (rt *Runtime) Registry() *registry.Registry { return rt.opts.Registry }

// Router returns the provider router.
func (rt *Runtime) Router() *router.Router { return rt.opts.Router }

// Catalog returns the model catalog.
func (rt *Runtime) Catalog() *model.Catalog { return rt.opts.Catalog }

// Spawn runs the requested root agent in a new session and waits for it.
// Failures are reported in the response; Spawn itself never returns an error.
// When the timeout expires the session is aborted and in-flight model and
// tool calls observe the cancelled context.
func (rt *Runtime) Spawn(ctx context.Context, req SpawnRequest) (resp SpawnResponse) {
	factory, err := rt.opts.Registry.Get(req.Type)
	if err != nil {
		return SpawnResponse{Error: err.Error()}
	}

	if rt.sem != nil {
		select {
		case rt.sem <- struct{}{}:
			defer func() { <-rt.sem }()
		case <-ctx.Done():
			return SpawnResponse{Error: ctx.Err().Error()}
		}
	}

	sess := session.New(rt.opts.Router, func(o *session.Options) {
		o.Logger = rt.opts.Logger
		o.MaxAgents = rt.opts.MaxAgents
		o.MaxModelCalls = rt.opts.MaxModelCalls
	})
	rt.opts.Store.Add(sess)

	timeout := rt.opts.DefaultTimeout
	if req.Timeout > 0 {
		timeout = time.Duration(req.Timeout * float64(time.Second))
	}
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	stop := context.AfterFunc(runCtx, sess.Abort)
	defer stop()

	rt.opts.Logger.Info("runtime.spawn.start", "session_id", sess.ID(), "type", req.Type, "timeout", timeout)

	result, err := rt.run(runCtx, sess, factory, req.Options)
	if runCtx.Err() == context.DeadlineExceeded {
		sess.Abort()
		if err == nil {
			err = fmt.Errorf("spawn %s: %w", req.Type, runCtx.Err())
		}
	}
	sess.End(err)

	report := sess.Report()
	resp = SpawnResponse{
		Success: err == nil,
		Result:  result,
		Session: &report,
		Trace:   session.FormatTrace(sess.Trace()),
	}
	if err != nil {
		resp.Error = err.Error()
	}

	rt.opts.Logger.Info("runtime.spawn.complete",
		"session_id", sess.ID(),
		"success", resp.Success,
		"cost", report.Cost.String(),
		"exchanges", report.Exchanges)

	return resp
}

func (rt *Runtime) run(ctx context.Context, sess *session.Session, factory agent.Factory, options json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("agent panicked: %v", r)
		}
	}()

	root, err := factory(sess, options)
	if err != nil {
		return nil, err
	}
	return root.Run(ctx)
}

// Abort cooperatively aborts a running session.
func (rt *Runtime) Abort(sessionID string) error {
	sess, err := rt.opts.Store.Get(sessionID)
	if err != nil {
		return err
	}
	sess.Abort()
	return nil
}

// Status reports every session known to the runtime.
func (rt *Runtime) Status() StatusResponse {
	reports := rt.opts.Store.Reports()
	out := StatusResponse{Sessions: make([]SessionStatus, 0, len(reports))}
	for _, r := range reports {
		out.Sessions = append(out.Sessions, SessionStatus{
			ID:             r.ID,
			Cost:           r.Cost.String(),
			Elapsed:        r.Elapsed,
			Ended:          r.Ended,
			Exchanges:      r.Exchanges,
			TokensPerModel: r.TokensPerModel,
			TokensPerAgent: r.TokensPerAgent,
		})
	}
	return out
}
