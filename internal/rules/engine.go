package rules

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/netsentinel/agent/internal/types"
)

// Engine holds a loaded, immutable rule set and evaluates it against
// normalized flows.
type Engine struct {
	mu    sync.RWMutex
	rules []types.Rule
}

// NewEngine builds an Engine over rules. The slice is never mutated in
// place; Reload replaces it wholesale.
func NewEngine(rules []types.Rule) *Engine {
	return &Engine{rules: rules}
}

// Reload atomically replaces the loaded rule set.
func (e *Engine) Reload(rules []types.Rule) {
	e.mu.Lock()
	e.rules = rules
	e.mu.Unlock()
}

// Evaluate runs every loaded rule against f and returns the resulting
// alerts, plus the builtin.listener alert when applicable.
func (e *Engine) Evaluate(f types.NormalizedFlow) []types.Alert {
	var alerts []types.Alert

	e.mu.RLock()
	loaded := e.rules
	e.mu.RUnlock()

	for _, rule := range loaded {
		if !Matches(rule.Expression, f) {
			continue
		}
		alerts = append(alerts, buildAlert(rule, f))
	}

	if a := DetectListener(f); a != nil {
		alerts = append(alerts, *a)
	}

	return alerts
}

func buildAlert(rule types.Rule, f types.NormalizedFlow) types.Alert {
	summary := rule.Summary
	if summary == "" {
		summary = "Rule match"
	}
	rationale := rule.Rationale
	if rationale == "" {
		rationale = "Matched DSL condition"
	}

	return types.Alert{
		ID:              fmt.Sprintf("alert-%s-%d", rule.ID, f.DstPort),
		TS:              time.Now().UTC(),
		Severity:        rule.Severity,
		RuleID:          rule.ID,
		Summary:         summary,
		FlowRefs:        []string{flowRef(f)},
		ProcessRef:      f.ProcessName,
		Rationale:       rationale,
		SuggestedAction: rule.SuggestedAction,
	}
}

func flowRef(f types.NormalizedFlow) string {
	return f.SrcIP + ":" + strconv.Itoa(int(f.SrcPort)) + "->" + f.DstIP + ":" + strconv.Itoa(int(f.DstPort))
}

// DetectListener is the built-in rule of spec.md §4.5: it fires whenever
// a flow is an inbound LISTEN socket, independent of the loaded DSL rule
// set.
func DetectListener(f types.NormalizedFlow) *types.Alert {
	if f.Direction != types.DirectionInbound {
		return nil
	}
	if f.State == nil || *f.State != types.TCPStateListen {
		return nil
	}

	// A LISTEN socket's local bind address is carried in the src fields;
	// dst carries the (unspecified) remote address that made this flow
	// classify as Inbound in the first place.
	return &types.Alert{
		ID:        fmt.Sprintf("listener-%s-%d", f.SrcIP, f.SrcPort),
		TS:        time.Now().UTC(),
		Severity:  types.SeverityMedium,
		RuleID:    "builtin.listener",
		Summary:   fmt.Sprintf("New listener on %s:%d", f.SrcIP, f.SrcPort),
		FlowRefs:  []string{flowRef(f)},
		Rationale: "Inbound socket entered LISTEN state",
	}
}

// LogParseFailures pre-validates every rule expression, logging (but not
// failing on) any that cannot be parsed, per spec.md §3's invariant that
// a Rule whose expression fails to parse never throws.
func LogParseFailures(rules []types.Rule) {
	for _, r := range rules {
		if _, err := parse(r.Expression); err != nil {
			slog.Warn("rules: rule failed to parse and will never match", "rule_id", r.ID, "expression", r.Expression, "error", err)
		}
	}
}
