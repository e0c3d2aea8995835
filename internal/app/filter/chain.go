package filter

import (
	"context"
)

// Chain executes filters in sequence.
type Chain struct {
	filters []Filter
}

// NewChain creates a new filter chain.
func NewChain() *Chain {
	return &Chain{
		filters: make([]Filter, 0),
	}
}

// Add adds a filter to the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Execute runs all filters in sequence.
// Returns immediately if any filter rejects the request.
// Filters are only applied if they declare they apply to the request's origin.
func (c *Chain) Execute(ctx context.Context, req PassageRequest) Result {
	for _, f := range c.filters {
		if !f.AppliesTo(req.Origin) {
			continue
		}

		result := f.Check(ctx, req)
		if !result.Accepted {
			return result
		}
	}
	return Accept()
}

// Filters returns all filters in the chain.
func (c *Chain) Filters() []Filter {
	return c.filters
}
