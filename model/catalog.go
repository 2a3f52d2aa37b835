package model

import (
	"fmt"
	"sort"
	"sync"
)

// DefaultModels is the built-in model list used when no configuration
// overrides are given.
var DefaultModels = []Meta{
	{ID: "claude-opus-4-1", Provider: "anthropic", Pricing: NewPricing(15.0, 75.0)},
	{ID: "claude-sonnet-4-5", Provider: "anthropic", Pricing: NewPricing(3.0, 15.0)},
	{ID: "claude-3-5-haiku-latest", Provider: "anthropic", Pricing: NewPricing(0.8, 4.0)},
	{ID: "gpt-4o", Provider: "openai", Pricing: NewPricing(2.5, 10.0)},
	{ID: "gpt-4o-mini", Provider: "openai", Pricing: NewPricing(0.15, 0.6)},
	{ID: "gpt-4.1", Provider: "openai", Pricing: NewPricing(2.0, 8.0)},
}

// Catalog maps model ids to their Meta. It is safe for concurrent use.
type Catalog struct {
	mu     sync.RWMutex
	models map[string]Meta
}

// NewCatalog builds a catalog from the given models. Later entries win.
func NewCatalog(models ...Meta) *Catalog {
	c := &Catalog{models: make(map[string]Meta, len(models))}
	for _, m := range models {
		c.models[m.ID] = m
	}
	return c
}

// Add inserts or replaces a model.
func (c *Catalog) Add(m Meta) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.models[m.ID] = m
}

// Lookup returns the Meta for a model id.
func (c *Catalog) Lookup(id string) (Meta, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.models[id]
	if !ok {
		return Meta{}, fmt.Errorf("unknown model %q", id)
	}
	return m, nil
}

// IDs lists the known model ids in sorted order.
func (c *Catalog) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.models))
	for id := range c.models {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
