package agent

import (
	"context"
	"fmt"

	"github.com/hupe1980/meshcore/core"
)

// Hooks supplies the behavior of an Agent.
type Hooks[O, S, R any] interface {
	Initialize(ctx context.Context, a *Agent[O, S, R], opts O) (S, error)
	Step(ctx context.Context, a *Agent[O, S, R], state S) (S, error)
	Finalize(ctx context.Context, a *Agent[O, S, R], state S) (R, error)
}

// HookFuncs adapts plain functions to Hooks. All three functions are required.
type HookFuncs[O, S, R any] struct {
	InitializeFunc func(ctx context.Context, a *Agent[O, S, R], opts O) (S, error)
	StepFunc       func(ctx context.Context, a *Agent[O, S, R], state S) (S, error)
	FinalizeFunc   func(ctx context.Context, a *Agent[O, S, R], state S) (R, error)
}

// Initialize implements Hooks.
func (h HookFuncs[O, S, R]) Initialize(ctx context.Context, a *Agent[O, S, R], opts O) (S, error) {
	return h.InitializeFunc(ctx, a, opts)
}

// Step implements Hooks.
func (h HookFuncs[O, S, R]) Step(ctx context.Context, a *Agent[O, S, R], state S) (S, error) {
	return h.StepFunc(ctx, a, state)
}

// Finalize implements Hooks.
func (h HookFuncs[O, S, R]) Finalize(ctx context.Context, a *Agent[O, S, R], state S) (R, error) {
	return h.FinalizeFunc(ctx, a, state)
}

func validateHooks[O, S, R any](h Hooks[O, S, R]) error {
	if h == nil {
		return fmt.Errorf("%w: agent hooks are nil", core.ErrNotImplemented)
	}
	var funcs *HookFuncs[O, S, R]
	switch v := h.(type) {
	case HookFuncs[O, S, R]:
		funcs = &v
	case *HookFuncs[O, S, R]:
		if v == nil {
			return fmt.Errorf("%w: agent hooks are nil", core.ErrNotImplemented)
		}
		funcs = v
	}
	if funcs == nil {
		return nil
	}
	switch {
	case funcs.InitializeFunc == nil:
		return fmt.Errorf("%w: initialize hook missing", core.ErrNotImplemented)
	case funcs.StepFunc == nil:
		return fmt.Errorf("%w: step hook missing", core.ErrNotImplemented)
	case funcs.FinalizeFunc == nil:
		return fmt.Errorf("%w: finalize hook missing", core.ErrNotImplemented)
	}
	return nil
}
