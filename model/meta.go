package model

import (
	"github.com/shopspring/decimal"

	"github.com/hupe1980/meshcore/core"
)

var perMillion = decimal.NewFromInt(1_000_000)

// Pricing is the price table of a model in currency units per million tokens.
type Pricing struct {
	PromptPerMillion     decimal.Decimal `json:"prompt_per_million" yaml:"prompt_per_million"`
	CompletionPerMillion decimal.Decimal `json:"completion_per_million" yaml:"completion_per_million"`
}

// NewPricing builds a price table from per-million float prices.
func NewPricing(promptPerMillion, completionPerMillion float64) Pricing {
	return Pricing{
		PromptPerMillion:     decimal.NewFromFloat(promptPerMillion),
		CompletionPerMillion: decimal.NewFromFloat(completionPerMillion),
	}
}

// Cost computes tokens × price for one invocation. The arithmetic is exact.
func (p Pricing) Cost(u core.Usage) decimal.Decimal {
	prompt := p.PromptPerMillion.Mul(decimal.NewFromInt(int64(u.PromptTokens)))
	completion := p.CompletionPerMillion.Mul(decimal.NewFromInt(int64(u.CompletionTokens)))
	return prompt.Add(completion).Div(perMillion)
}

// Meta describes a model: which provider serves it, an optional endpoint
// override and its price table.
type Meta struct {
	ID       string  `json:"id" yaml:"id"`
	Provider string  `json:"provider" yaml:"provider"`
	Endpoint string  `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Pricing  Pricing `json:"pricing" yaml:"pricing"`
}
