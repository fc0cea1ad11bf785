package cost

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Usage holds cumulative token counts.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Tracker accumulates token usage and cost across model calls. A zero
// maxBudget means unlimited. Safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	maxBudget decimal.Decimal
	totalCost decimal.Decimal
	total     Usage
	pricing   map[string]ModelPricing
}

// NewTracker creates a tracker with the given budget cap and pricing table.
// A nil pricing table falls back to DefaultPricing.
func NewTracker(maxBudget decimal.Decimal, pricing map[string]ModelPricing) *Tracker {
	if pricing == nil {
		pricing = DefaultPricing
	}
	return &Tracker{maxBudget: maxBudget, totalCost: decimal.Zero, pricing: pricing}
}

// Record adds one call's token usage and updates the cumulative cost.
func (t *Tracker) Record(model string, inputTokens, outputTokens int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.total.InputTokens += inputTokens
	t.total.OutputTokens += outputTokens

	p, ok := t.pricing[model]
	if !ok {
		return
	}
	t.totalCost = t.totalCost.Add(p.CostFor(inputTokens, outputTokens))
}

// TotalCost returns the cumulative cost so far.
func (t *Tracker) TotalCost() decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalCost
}

// TotalUsage returns the cumulative token usage so far.
func (t *Tracker) TotalUsage() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// Exhausted reports whether the budget cap has been reached. Always false
// when no cap is set.
func (t *Tracker) Exhausted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.maxBudget.IsZero() {
		return false
	}
	return t.totalCost.GreaterThanOrEqual(t.maxBudget)
}
