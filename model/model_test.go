package model

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/meshcore/core"
)

func TestPricing_Cost(t *testing.T) {
	p := NewPricing(3.0, 15.0)
	cost := p.Cost(core.Usage{PromptTokens: 1000, CompletionTokens: 500})
	// 1000*3/1e6 + 500*15/1e6 = 0.003 + 0.0075
	assert.True(t, decimal.RequireFromString("0.0105").Equal(cost), "got %s", cost)

	assert.True(t, p.Cost(core.Usage{}).IsZero())
}

func TestCatalog(t *testing.T) {
	c := NewCatalog(DefaultModels...)
	m, err := c.Lookup("gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, "openai", m.Provider)

	_, err = c.Lookup("nope")
	assert.Error(t, err)

	c.Add(Meta{ID: "stub", Provider: "stub"})
	assert.Contains(t, c.IDs(), "stub")
}

func TestMockClient(t *testing.T) {
	ctx := context.Background()
	m := NewMockClient("stub").
		AddText("first", core.Usage{PromptTokens: 1}).
		AddToolCalls(core.Usage{}, core.ToolCall{ID: "1", Name: "a"}).
		AddError(errors.New("boom"))

	r, err := m.Invoke(ctx, Request{})
	require.NoError(t, err)
	assert.Equal(t, "first", r.Text())
	assert.True(t, r.HasText())

	r, err = m.Invoke(ctx, Request{})
	require.NoError(t, err)
	assert.True(t, r.HasToolCalls())

	_, err = m.Invoke(ctx, Request{})
	assert.EqualError(t, err, "boom")

	r, err = m.Invoke(ctx, Request{Messages: []core.Exchange{core.NewTextExchange(core.RoleUser, "ping")}})
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: ping", r.Text())
	assert.Len(t, m.Requests(), 4)
	assert.Equal(t, "stub", m.Provider())
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"network", &StatusError{Provider: "x", Err: errors.New("reset")}, true},
		{"500", &StatusError{Provider: "x", StatusCode: 500, Err: errors.New("oops")}, true},
		{"503 wrapped", fmt.Errorf("call: %w", &StatusError{StatusCode: 503}), true},
		{"400", &StatusError{StatusCode: 400}, false},
		{"429", &StatusError{StatusCode: 429}, false},
		{"canceled", context.Canceled, false},
		{"unknown", errors.New("weird"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
