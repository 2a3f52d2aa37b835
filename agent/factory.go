package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/hupe1980/meshcore/core"
)

// Runnable is a type-erased agent as returned by a Factory.
type Runnable interface {
	core.Member
	Run(ctx context.Context) (any, error)
	Stop() error
}

// Factory constructs a linked agent from JSON encoded options.
type Factory func(host Host, options json.RawMessage) (Runnable, error)

// NewFactory returns a Factory decoding options into O. Empty options yield
// the zero value of O.
func NewFactory[O, S, R any](hooks Hooks[O, S, R], optFns ...func(c *Config)) Factory {
	return func(host Host, options json.RawMessage) (Runnable, error) {
		var opts O
		if raw := bytes.TrimSpace(options); len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
			if err := json.Unmarshal(raw, &opts); err != nil {
				return nil, fmt.Errorf("%w: decode agent options: %v", core.ErrValidation, err)
			}
		}
		a, err := Spawn(host, hooks, opts, optFns...)
		if err != nil {
			return nil, err
		}
		return erased[O, S, R]{a}, nil
	}
}

type erased[O, S, R any] struct{ *Agent[O, S, R] }

func (e erased[O, S, R]) Run(ctx context.Context) (any, error) {
	return e.Agent.Run(ctx)
}

// SpawnAgent creates a sibling agent under the same session using f.
func (a *Agent[O, S, R]) SpawnAgent(f Factory, options json.RawMessage) (Runnable, error) {
	if a.host == nil {
		return nil, fmt.Errorf("%w: agent %s is not linked to a session", core.ErrInvalidState, a.cfg.Name)
	}
	return f(a.host, options)
}
