package policy

import "github.com/netsentinel/agent/internal/types"

// NoopBackend records what it was asked to do without touching the host
// firewall or process table; used by tests and by platforms with no
// enforcement backend wired.
type NoopBackend struct {
	Applied    []AppliedRule
	RolledBack []AppliedRule
}

func NewNoopBackend() *NoopBackend {
	return &NoopBackend{}
}

func (b *NoopBackend) Apply(flow types.FlowEvent, decision types.QuarantineDecision) (AppliedRule, error) {
	rule := AppliedRule{Name: RuleName(flow)}
	if flow.Process != nil {
		rule.PID = flow.Process.PID
	}
	b.Applied = append(b.Applied, rule)
	return rule, nil
}

func (b *NoopBackend) Rollback(rule AppliedRule) error {
	b.RolledBack = append(b.RolledBack, rule)
	return nil
}
