// Package budget trims ranked context to fit the token share of an analysis.
package budget

import (
	"github.com/MuslimSoftware/LifeOS-sub001/internal/rank"
)

// Operation names an analysis whose context is budgeted.
type Operation string

const (
	OpLifelongPattern Operation = "lifelong_pattern"
	OpDecisionMatrix  Operation = "decision_matrix"
	OpActionSynthesis Operation = "action_synthesis"
)

const (
	itemOverhead    = 50
	charsPerToken   = 4
	defaultFraction = 0.7
	dateLayout      = "2006-01-02"
)

var fractions = map[Operation]float64{
	OpLifelongPattern: 0.9,
	OpDecisionMatrix:  0.8,
	OpActionSynthesis: 0.4,
}

// Fraction is the share of the context window op may fill.
func Fraction(op Operation) float64 {
	if f, ok := fractions[op]; ok {
		return f
	}
	return defaultFraction
}

// EstimateTokens is the chars/4 heuristic used everywhere in the agent.
func EstimateTokens(s string) int {
	return len(s) / charsPerToken
}

// EstimateItem is the token cost of one item: a fixed overhead plus its text
// and date.
func EstimateItem(it rank.Item) int {
	date := ""
	if !it.Date.IsZero() {
		date = it.Date.Format(dateLayout)
	}
	return itemOverhead + EstimateTokens(it.Text) + EstimateTokens(date)
}

// Manager computes budgets against a model context window.
type Manager struct {
	ContextWindow int
	// Reserved is held back for the prompt and the response.
	Reserved int
}

// Budget returns the token budget for op.
func (m Manager) Budget(op Operation) int {
	b := int(float64(m.ContextWindow)*Fraction(op)) - m.Reserved
	if b < 0 {
		return 0
	}
	return b
}

// Trimmed is the result of fitting items into a budget.
type Trimmed struct {
	Items      []rank.Item `json:"-"`
	Included   int         `json:"itemsIncluded"`
	Dropped    int         `json:"itemsDropped"`
	TokensUsed int         `json:"tokensUsed"`
	Budget     int         `json:"budget"`
}

// Trim keeps items in order until the first one that does not fit. Later
// items are dropped even if they would fit.
func (m Manager) Trim(items []rank.Item, op Operation) Trimmed {
	budget := m.Budget(op)
	out := Trimmed{Budget: budget}

	for i, it := range items {
		cost := EstimateItem(it)
		if out.TokensUsed+cost > budget {
			out.Dropped = len(items) - i
			break
		}
		out.TokensUsed += cost
		out.Items = append(out.Items, it)
	}
	out.Included = len(out.Items)
	return out
}
