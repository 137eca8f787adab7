// Package analyzer wires the normalizer and rule engine together and
// maintains a bounded history window, per spec.md §4.6.
package analyzer

import (
	"sync"

	"github.com/netsentinel/agent/internal/normalize"
	"github.com/netsentinel/agent/internal/rules"
	"github.com/netsentinel/agent/internal/types"
)

// Analyzer holds a bounded ring of recent NormalizedFlows and the rule
// engine evaluated against each newly ingested flow.
type Analyzer struct {
	mu sync.Mutex

	normalizer *normalize.Normalizer
	engine     *rules.Engine

	history  []types.NormalizedFlow
	capacity int
}

// New constructs an Analyzer with a history capacity of
// max(1, baselineWindowMinutes) * 60 entries, per spec.md §4.6.
func New(normalizer *normalize.Normalizer, engine *rules.Engine, baselineWindowMinutes int) *Analyzer {
	capacity := baselineWindowMinutes
	if capacity < 1 {
		capacity = 1
	}
	capacity *= 60

	return &Analyzer{
		normalizer: normalizer,
		engine:     engine,
		capacity:   capacity,
	}
}

// Ingest normalizes f, enforces the history cap (dropping the oldest
// entry first), appends the new flow, then evaluates all rules against
// it and returns the resulting alerts.
func (a *Analyzer) Ingest(f types.FlowEvent) []types.Alert {
	nf := a.normalizer.Normalize(f)

	a.mu.Lock()
	if len(a.history) >= a.capacity {
		a.history = a.history[1:]
	}
	a.history = append(a.history, nf)
	a.mu.Unlock()

	return a.engine.Evaluate(nf)
}

// History returns a copy of the current bounded history, oldest first.
func (a *Analyzer) History() []types.NormalizedFlow {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]types.NormalizedFlow, len(a.history))
	copy(out, a.history)
	return out
}
