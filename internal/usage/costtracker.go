// Package usage accumulates token counts and turns them into cost figures.
//
// Two figures are kept side by side. EstimateCost is the flat estimate shown
// to visitors: it assumes a 70/30 input/output split of the running total and
// is known to be inaccurate whenever the real split differs. CostTracker keeps
// the exact per-turn ledger using the counts the provider reported.
package usage

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Flat price model used by EstimateCost, in dollars per million tokens.
const (
	InputPricePerMillion  = 0.25
	OutputPricePerMillion = 1.25

	inputPercent  = 70
	outputPercent = 30
)

// Accumulate adds delta to total. Negative deltas are ignored so a running
// total never decreases.
func Accumulate(total, delta int) int {
	if delta <= 0 {
		return total
	}
	return total + delta
}

// EstimateCost prices totalTokens assuming 70% input and 30% output tokens.
// Each share is truncated to a whole token count before pricing.
func EstimateCost(totalTokens int) float64 {
	if totalTokens <= 0 {
		return 0
	}
	in := totalTokens * inputPercent / 100
	out := totalTokens * outputPercent / 100
	return float64(in)/1_000_000*InputPricePerMillion +
		float64(out)/1_000_000*OutputPricePerMillion
}

// EstimateTokens is a rough token count for text (about 4 characters per token).
func EstimateTokens(text string) int {
	return len(text) / 4
}

// FormatDollars renders a cost like the status surfaces expect: six decimals
// for sub-cent values, two otherwise.
func FormatDollars(cost float64) string {
	if cost < 0.01 {
		return fmt.Sprintf("$%.6f", cost)
	}
	return fmt.Sprintf("$%.2f", cost)
}

// ModelPricing holds per-million-token pricing for a model.
type ModelPricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// TurnCost records cost data for a single exchange.
type TurnCost struct {
	InputTokens  int
	OutputTokens int
	Cost         float64
	Model        string
	Timestamp    time.Time
}

// CostTracker accumulates exact token usage and dollar cost across turns.
type CostTracker struct {
	mu          sync.Mutex
	sessionCost float64
	turns       []TurnCost
	pricing     map[string]ModelPricing
}

// NewCostTracker creates a CostTracker with default pricing and optional overrides.
func NewCostTracker(overrides map[string]ModelPricing) *CostTracker {
	pricing := DefaultPricing()
	for k, v := range overrides {
		pricing[k] = v
	}
	return &CostTracker{pricing: pricing}
}

// DefaultPricing returns built-in pricing for the models cvchat ships defaults for.
func DefaultPricing() map[string]ModelPricing {
	return map[string]ModelPricing{
		"claude-3-haiku-20240307":   {0.25, 1.25},
		"claude-3-5-haiku-20241022": {0.80, 4.0},
		"claude-haiku-4-5-20251001": {1.0, 5.0},
		"claude-sonnet-4-20250514":  {3.0, 15.0},
		"gpt-4o-mini":               {0.15, 0.60},
		"gpt-4o":                    {2.50, 10.0},
		"deepseek-chat":             {0.27, 1.10},
	}
}

// RecordTurn records token usage for a single exchange and returns its cost.
func (ct *CostTracker) RecordTurn(model string, inputTokens, outputTokens int) float64 {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	cost := ct.calculateCost(model, inputTokens, outputTokens)
	ct.sessionCost += cost
	ct.turns = append(ct.turns, TurnCost{
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Cost:         cost,
		Model:        model,
		Timestamp:    time.Now(),
	})
	return cost
}

// SessionCost returns the exact session cost in dollars.
func (ct *CostTracker) SessionCost() float64 {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return ct.sessionCost
}

// Turns returns the number of recorded exchanges.
func (ct *CostTracker) Turns() int {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return len(ct.turns)
}

// Summary returns a formatted per-turn breakdown.
func (ct *CostTracker) Summary() string {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	if len(ct.turns) == 0 {
		return "No usage recorded."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Session cost: %s (%d turns)\n\n", FormatDollars(ct.sessionCost), len(ct.turns)))

	totalIn, totalOut := 0, 0
	for i, t := range ct.turns {
		totalIn += t.InputTokens
		totalOut += t.OutputTokens
		sb.WriteString(fmt.Sprintf("  Turn %d: %s  in=%d out=%d  %s\n",
			i+1, t.Model, t.InputTokens, t.OutputTokens, FormatDollars(t.Cost)))
	}
	sb.WriteString(fmt.Sprintf("\nTotal tokens: %d input + %d output = %d",
		totalIn, totalOut, totalIn+totalOut))

	return sb.String()
}

// FormatCost returns the exact session cost for status display.
func (ct *CostTracker) FormatCost() string {
	return FormatDollars(ct.SessionCost())
}

// calculateCost computes the dollar cost for a turn. Must be called with lock held.
func (ct *CostTracker) calculateCost(model string, inputTokens, outputTokens int) float64 {
	p, ok := ct.pricing[model]
	if !ok {
		// Versioned names such as "gpt-4o-2024-08-06" match their family;
		// the longest matching prefix wins.
		best := ""
		for name, pricing := range ct.pricing {
			if strings.HasPrefix(model, name) && len(name) > len(best) {
				best = name
				p = pricing
				ok = true
			}
		}
	}
	if !ok {
		return 0
	}
	return (float64(inputTokens) * p.InputPerMillion / 1_000_000) +
		(float64(outputTokens) * p.OutputPerMillion / 1_000_000)
}
