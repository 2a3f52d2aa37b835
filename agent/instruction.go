package agent

import (
	"context"

	"github.com/hupe1980/meshcore/core"
	"github.com/hupe1980/meshcore/internal/util"
)

// Provider supplies dynamic instruction text at runtime.
// Implementations can derive instructions from the agent, environment, etc.
type Provider interface {
	Instruction(ctx context.Context, m core.Member) (string, error)
}

// InstructionFunc is a functional adapter to allow ordinary functions to be used as Providers.
type InstructionFunc func(ctx context.Context, m core.Member) (string, error)

// Instruction implements Provider.
func (f InstructionFunc) Instruction(ctx context.Context, m core.Member) (string, error) {
	return f(ctx, m)
}

// Instruction represents either a static instruction template or a dynamic provider.
// This mirrors a union of string | provider in a Go-idiomatic way.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a static template. The
// template may reference {{.name}} and {{.id}} of the agent.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(ctx context.Context, m core.Member) (string, error)) Instruction {
	return Instruction{provider: InstructionFunc(f)}
}

// IsStatic returns true if the instruction is backed by a static string.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// IsZero reports whether no instruction was configured.
func (i Instruction) IsZero() bool { return i.provider == nil && i.text == "" }

// Resolve returns the instruction text, invoking the provider if needed.
func (i Instruction) Resolve(ctx context.Context, m core.Member) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(ctx, m)
	}
	if i.text == "" {
		return "", nil
	}
	return util.RenderTemplate(i.text, map[string]any{"name": m.Name(), "id": m.ID()})
}
