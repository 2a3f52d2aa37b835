// Package router dispatches canonical model requests to the provider client
// registered for a model's provider. It owns the retry policy (network
// failures and 5xx are retried with bounded exponential backoff, 4xx never),
// optional per-provider concurrency and rate caps, and the final
// canonicalization of responses.
package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hupe1980/meshcore/core"
	"github.com/hupe1980/meshcore/logging"
	"github.com/hupe1980/meshcore/model"
)

// Limit caps the traffic sent to one provider. Zero values mean unbounded.
type Limit struct {
	MaxConcurrent     int     `yaml:"maxConcurrent"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// Options configures the Router.
type Options struct {
	Retry  RetryPolicy
	Logger logging.Logger
}

// ProviderError is returned when a provider call fails for good: either a
// non-retryable answer or an exhausted retry budget.
type ProviderError struct {
	Provider   string
	Model      string
	Attempts   int
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s (model %s) failed after %d attempt(s) with status %d: %v", e.Provider, e.Model, e.Attempts, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s (model %s) failed after %d attempt(s): %v", e.Provider, e.Model, e.Attempts, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, core.ErrProvider) hold.
func (e *ProviderError) Is(target error) bool { return target == core.ErrProvider }

type backend struct {
	client  model.Client
	sem     chan struct{}
	limiter *rate.Limiter
}

func (b *backend) acquire(ctx context.Context) error {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if b.sem == nil {
		return nil
	}
	select {
	case b.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *backend) release() {
	if b.sem != nil {
		<-b.sem
	}
}

// Router selects a client by provider and sends requests through it.
// Safe for concurrent use.
type Router struct {
	opts Options

	mu       sync.RWMutex
	backends map[string]*backend
}

// New creates a Router without registered providers.
func New(optFns ...func(o *Options)) *Router {
	opts := Options{
		Retry:  DefaultRetryPolicy(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Router{opts: opts, backends: make(map[string]*backend)}
}

// Register installs client for provider, replacing any previous registration.
func (r *Router) Register(provider string, client model.Client, limit Limit) {
	b := &backend{client: client}
	if limit.MaxConcurrent > 0 {
		b.sem = make(chan struct{}, limit.MaxConcurrent)
	}
	if limit.RequestsPerSecond > 0 {
		burst := limit.Burst
		if burst < 1 {
			burst = 1
		}
		b.limiter = rate.NewLimiter(rate.Limit(limit.RequestsPerSecond), burst)
	}

	r.mu.Lock()
	r.backends[provider] = b
	r.mu.Unlock()
}

// Providers returns the sorted list of registered providers.
func (r *Router) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.backends))
	for p := range r.backends {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Dispatch sends req to the provider of meta and returns the canonical
// response. req.Model and req.Endpoint are filled from meta.
func (r *Router) Dispatch(ctx context.Context, meta model.Meta, req model.Request) (*model.Response, error) {
	r.mu.RLock()
	b, ok := r.backends[meta.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no client registered for provider %q", core.ErrMissingCredentials, meta.Provider)
	}

	req.Model = meta.ID
	if meta.Endpoint != "" {
		req.Endpoint = meta.Endpoint
	}

	policy := r.opts.Retry
	userOnRetry := policy.OnRetry
	policy.OnRetry = func(err error, attempt int, delay time.Duration) {
		r.opts.Logger.Warn("router.retry",
			"provider", meta.Provider, "model", meta.ID,
			"attempt", attempt, "delay", delay, "error", err.Error())
		if userOnRetry != nil {
			userOnRetry(err, attempt, delay)
		}
	}

	resp, attempts, err := retry(ctx, policy, func(ctx context.Context) (*model.Response, error) {
		if err := b.acquire(ctx); err != nil {
			return nil, err
		}
		defer b.release()
		return b.client.Invoke(ctx, req)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		perr := &ProviderError{Provider: meta.Provider, Model: meta.ID, Attempts: attempts, Err: err}
		var se *model.StatusError
		if errors.As(err, &se) {
			perr.StatusCode = se.StatusCode
		}
		r.opts.Logger.Error("router.dispatch.failed", "provider", meta.Provider, "model", meta.ID, "attempts", attempts, "error", err.Error())
		return nil, perr
	}

	return canonicalize(resp), nil
}

// canonicalize repairs provider quirks: tool calls without ids get synthetic
// ids, negative token counts are clamped, empty text next to tool calls is
// dropped, and a nil response becomes an empty one.
func canonicalize(resp *model.Response) *model.Response {
	if resp == nil {
		return &model.Response{}
	}
	out := *resp
	if len(resp.ToolCalls) > 0 {
		out.ToolCalls = make([]core.ToolCall, len(resp.ToolCalls))
		for i, tc := range resp.ToolCalls {
			if tc.ID == "" {
				tc.ID = "call_" + core.NewID()
			}
			if tc.Arguments == "" {
				tc.Arguments = "{}"
			}
			out.ToolCalls[i] = tc
		}
		if out.Content != nil && *out.Content == "" {
			out.Content = nil
		}
	}
	if out.Usage.PromptTokens < 0 {
		out.Usage.PromptTokens = 0
	}
	if out.Usage.CompletionTokens < 0 {
		out.Usage.CompletionTokens = 0
	}
	return &out
}
