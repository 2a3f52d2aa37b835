package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/meshcore/core"
	"github.com/hupe1980/meshcore/logging"
	"github.com/hupe1980/meshcore/model"
	"github.com/hupe1980/meshcore/thread"
	"github.com/hupe1980/meshcore/tool"
)

// Advance requests the next assistant turn for t and returns the thread that
// holds the answer.
//
// A text reply is appended to t and t is returned. A tool-call reply is
// appended as a batch, resolved by HandleToolCalls and the model is asked
// again on the resulting instance; ownership follows each new instance.
// With EatToolResults the returned thread is a rollup of t's history before
// the first batch, one note naming every called tool, and the final reply.
//
// When a failure occurs after t was handed over, the error is returned
// together with the instance the agent now owns, so the conversation can be
// resumed from there.
func (a *Agent[O, S, R]) Advance(ctx context.Context, t *thread.Thread) (*thread.Thread, error) {
	if !t.TryAcquire() {
		return nil, fmt.Errorf("%w: thread %s", core.ErrThreadBusy, t.ID())
	}
	defer t.Release()

	if err := t.CheckOwner(a.id); err != nil {
		return nil, err
	}
	if err := t.Advanceable(); err != nil {
		return nil, err
	}

	var snapshot *thread.Thread
	if a.cfg.EatToolResults {
		snapshot = t.Branch()
	}

	var called []string
	cur := t
	fail := func(err error) (*thread.Thread, error) {
		if cur == t {
			return nil, err
		}
		return cur, err
	}

	for round := 0; ; round++ {
		resp, err := a.invoke(ctx, cur)
		if err != nil {
			return fail(err)
		}

		switch {
		case resp.HasToolCalls():
			if round >= a.cfg.MaxToolRounds {
				return fail(fmt.Errorf("%w: agent %s exceeded %d tool rounds", core.ErrInvalidState, a.cfg.Name, a.cfg.MaxToolRounds))
			}
			if err := cur.AppendAssistantToolCalls(a.id, resp.ToolCalls); err != nil {
				return fail(fmt.Errorf("%w: %v", core.ErrInvalidResponse, err))
			}
			for _, tc := range resp.ToolCalls {
				called = appendUnique(called, tc.Name)
			}
			next, err := a.HandleToolCalls(ctx, cur)
			if err != nil {
				return fail(err)
			}
			cur = next

		case resp.HasText():
			if err := cur.AppendAssistantMessage(a.id, resp.Text()); err != nil {
				return fail(err)
			}
			if snapshot == nil || len(called) == 0 {
				return cur, nil
			}
			rolled, err := a.rollup(snapshot, cur, called)
			if err != nil {
				if rolled != nil {
					return rolled, err
				}
				return fail(err)
			}
			return rolled, nil

		default:
			return fail(fmt.Errorf("%w: neither text nor tool calls", core.ErrInvalidResponse))
		}
	}
}

func (a *Agent[O, S, R]) invoke(ctx context.Context, t *thread.Thread) (*model.Response, error) {
	req := model.Request{
		Messages: t.Exchanges(),
		Tools:    tool.Definitions(a.cfg.Tools),
		Options:  a.cfg.Generate,
	}
	resp, err := a.host.InvokeModel(ctx, a.id, a.cfg.Model, req)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: empty response", core.ErrInvalidResponse)
	}
	return resp, nil
}

// rollup replaces cur by snapshot + note + cur's final reply and moves
// ownership to the result.
func (a *Agent[O, S, R]) rollup(snapshot, cur *thread.Thread, called []string) (*thread.Thread, error) {
	reply, _ := cur.Last()
	note := thread.RollupNote(called)
	rolled, err := thread.Rollup(snapshot, note)
	if err != nil {
		return nil, err
	}
	if err := a.handOver(cur, rolled); err != nil {
		return nil, err
	}
	if err := rolled.AppendAssistantMessage(a.id, reply.Text); err != nil {
		return rolled, err
	}
	a.logger.Debug("agent.thread.rollup", "agent_id", a.id, "from", cur.ID(), "to", rolled.ID(), "note", note)
	return rolled, nil
}

// HandleToolCalls resolves every pending call of t in issue order and returns
// a new thread instance carrying the results; t is abandoned. Failures of a
// single tool (unknown name, invalid arguments, error, panic) become error
// results prefixed with core.ToolErrorMarker and never affect the other calls.
func (a *Agent[O, S, R]) HandleToolCalls(ctx context.Context, t *thread.Thread) (*thread.Thread, error) {
	if err := t.CheckOwner(a.id); err != nil {
		return nil, err
	}

	for _, call := range t.Pending() {
		content, isError := a.runTool(ctx, call)
		if err := t.AppendToolResult(a.id, call.ID, content, isError); err != nil {
			return nil, err
		}
	}

	next := t.Branch()
	if err := a.handOver(t, next); err != nil {
		return nil, err
	}
	return next, nil
}

func (a *Agent[O, S, R]) runTool(ctx context.Context, call core.ToolCall) (content string, isError bool) {
	start := time.Now()
	result, err := a.invokeTool(ctx, call)
	logging.LogToolCall(a.logger, call.Name, time.Since(start), err)
	if err != nil {
		return core.ToolErrorMarker + " " + err.Error(), true
	}
	return tool.FormatResult(result), false
}

func (a *Agent[O, S, R]) invokeTool(ctx context.Context, call core.ToolCall) (result any, err error) {
	t, ok := a.tools[call.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrToolNotFound, call.Name)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool %s panicked: %v", call.Name, r)
		}
	}()

	result, err = t.Invoke(ctx, a, call.Arguments)
	if err != nil && errors.Is(err, core.ErrValidation) {
		a.logger.Debug("agent.tool.invalid_arguments", "tool", call.Name, "call_id", call.ID)
	}
	return result, err
}

func appendUnique(names []string, name string) []string {
	for _, n := range names {
		if n == name {
			return names
		}
	}
	return append(names, name)
}
