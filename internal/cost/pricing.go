// Package cost tracks token usage and USD spend across model calls and
// enforces an optional budget cap.
package cost

import "github.com/shopspring/decimal"

// ModelPricing holds per-model token prices in USD per million tokens.
type ModelPricing struct {
	InputPerMTok  decimal.Decimal
	OutputPerMTok decimal.Decimal
}

var million = decimal.NewFromInt(1_000_000)

// CostFor calculates the cost of one call's token usage.
func (p ModelPricing) CostFor(inputTokens, outputTokens int64) decimal.Decimal {
	in := decimal.NewFromInt(inputTokens).Mul(p.InputPerMTok).Div(million)
	out := decimal.NewFromInt(outputTokens).Mul(p.OutputPerMTok).Div(million)
	return in.Add(out)
}

// DefaultPricing contains built-in pricing for commonly used models
// (USD per million tokens). Unknown models accrue tokens but no cost.
var DefaultPricing = map[string]ModelPricing{
	"claude-opus-4-6": {
		InputPerMTok:  decimal.NewFromFloat(5),
		OutputPerMTok: decimal.NewFromFloat(25),
	},
	"claude-sonnet-4-5": {
		InputPerMTok:  decimal.NewFromFloat(3),
		OutputPerMTok: decimal.NewFromFloat(15),
	},
	"claude-haiku-4-5": {
		InputPerMTok:  decimal.NewFromFloat(1),
		OutputPerMTok: decimal.NewFromFloat(5),
	},
	"gpt-4o": {
		InputPerMTok:  decimal.NewFromFloat(2.5),
		OutputPerMTok: decimal.NewFromFloat(10),
	},
	"gpt-4o-mini": {
		InputPerMTok:  decimal.NewFromFloat(0.15),
		OutputPerMTok: decimal.NewFromFloat(0.6),
	},
}
