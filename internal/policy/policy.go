// Package policy recommends and applies quarantine decisions for High
// severity alerts, grounded on the teacher's internal/escrow/kill_switch.go
// TTL-record pattern (RWMutex-guarded map, lazy expiry, Revive to undo).
package policy

import (
	"fmt"

	"github.com/netsentinel/agent/internal/errs"
	"github.com/netsentinel/agent/internal/types"
)

// RecommendQuarantine returns a QuarantineDecision for High severity
// alerts only, per spec.md §4.7: ports is always the flow's single
// destination port, process comes from the flow's identity when known,
// and the decision always expires after 600 seconds.
func RecommendQuarantine(alert types.Alert, flow types.FlowEvent) *types.QuarantineDecision {
	if alert.Severity != types.SeverityHigh {
		return nil
	}

	decision := &types.QuarantineDecision{
		Ports:            []uint16{flow.DstPort},
		ExpiresInSeconds: 600,
	}
	if flow.Process != nil {
		decision.Process = flow.Process.Name
	}
	return decision
}

// ValidateDecision rejects decisions with no ports, which a backend could
// not turn into a firewall rule.
func ValidateDecision(d types.QuarantineDecision) error {
	if len(d.Ports) == 0 {
		return errs.New(errs.KindInit, "policy: validate decision", fmt.Errorf("decision has no ports"))
	}
	return nil
}

// AppliedRule identifies a quarantine action a Backend has put in place,
// enough information for Rollback to undo it later.
type AppliedRule struct {
	Name string
	PID  int32
}

// Backend applies and rolls back quarantine decisions. The no-op backend
// in noop.go is used in tests and whenever no real enforcement point
// exists for the host platform.
type Backend interface {
	Apply(flow types.FlowEvent, decision types.QuarantineDecision) (AppliedRule, error)
	Rollback(rule AppliedRule) error
}

// RuleName derives the deterministic firewall rule name spec.md §4.7
// requires, so repeated Apply calls for the same flow are idempotent and
// Rollback can find the same rule by reconstructing this name.
func RuleName(flow types.FlowEvent) string {
	if flow.Process != nil && flow.Process.PID > 0 {
		return fmt.Sprintf("NETS_Quarantine_PID_%d", flow.Process.PID)
	}
	return fmt.Sprintf("NETS_Block_%s_%d_%s_%d", flow.SrcIP, flow.SrcPort, flow.DstIP, flow.DstPort)
}
