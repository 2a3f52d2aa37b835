package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/meshcore/core"
)

type mockProvider struct {
	text string
	err  error
}

func (m mockProvider) Instruction(context.Context, core.Member) (string, error) { return m.text, m.err }

type namedMember struct{}

func (namedMember) ID() string   { return "agent-7" }
func (namedMember) Name() string { return "TestAgent" }

func TestInstruction_Static(t *testing.T) {
	inst := NewInstructionFromText("static instruction")
	if !inst.IsStatic() {
		t.Fatalf("expected static instruction")
	}
	got, err := inst.Resolve(context.Background(), namedMember{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "static instruction" {
		t.Fatalf("expected 'static instruction', got %q", got)
	}
}

func TestInstruction_StaticTemplate(t *testing.T) {
	inst := NewInstructionFromText("You are {{.name}} ({{.id}}).")
	got, err := inst.Resolve(context.Background(), namedMember{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "You are TestAgent (agent-7)." {
		t.Fatalf("unexpected rendering %q", got)
	}
}

func TestInstruction_NewInstructionFromFunc(t *testing.T) {
	inst := NewInstructionFromFunc(func(context.Context, core.Member) (string, error) { return "dynamic via func", nil })
	if inst.IsStatic() {
		t.Fatalf("expected dynamic instruction")
	}
	got, err := inst.Resolve(context.Background(), namedMember{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "dynamic via func" {
		t.Fatalf("expected 'dynamic via func', got %q", got)
	}
}

func TestInstruction_NewInstructionFromProvider(t *testing.T) {
	inst := NewInstructionFromProvider(mockProvider{text: "provider text"})
	got, err := inst.Resolve(context.Background(), namedMember{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "provider text" {
		t.Fatalf("expected 'provider text', got %q", got)
	}
}

func TestInstruction_ErrorPropagation(t *testing.T) {
	expectedErr := errors.New("boom")
	inst := NewInstructionFromProvider(mockProvider{err: expectedErr})
	_, err := inst.Resolve(context.Background(), namedMember{})
	if !errors.Is(err, expectedErr) {
		t.Fatalf("expected error %v, got %v", expectedErr, err)
	}
}

func TestInstruction_Zero(t *testing.T) {
	var inst Instruction
	if !inst.IsZero() {
		t.Fatalf("expected zero instruction")
	}
	got, err := inst.Resolve(context.Background(), namedMember{})
	if err != nil || got != "" {
		t.Fatalf("expected empty instruction, got %q, %v", got, err)
	}
}
