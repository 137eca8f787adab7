package policy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/netsentinel/agent/internal/types"
)

func flowWithProcess(name string, pid int32, dstPort uint16) types.FlowEvent {
	return types.FlowEvent{
		SrcIP: "10.0.0.5", SrcPort: 51234,
		DstIP: "203.0.113.9", DstPort: dstPort,
		Process: &types.ProcessIdentity{PID: pid, Name: name},
	}
}

func TestRecommendQuarantineOnlyForHigh(t *testing.T) {
	flow := flowWithProcess("malware.exe", 999, 4444)

	require.Nil(t, RecommendQuarantine(types.Alert{Severity: types.SeverityLow}, flow))
	require.Nil(t, RecommendQuarantine(types.Alert{Severity: types.SeverityMedium}, flow))

	d := RecommendQuarantine(types.Alert{Severity: types.SeverityHigh}, flow)
	require.NotNil(t, d)
	require.Equal(t, []uint16{4444}, d.Ports)
	require.Equal(t, "malware.exe", d.Process)
	require.Equal(t, 600, d.ExpiresInSeconds)
}

func TestRecommendQuarantineNoProcess(t *testing.T) {
	flow := types.FlowEvent{DstPort: 4444}
	d := RecommendQuarantine(types.Alert{Severity: types.SeverityHigh}, flow)
	require.NotNil(t, d)
	require.Empty(t, d.Process)
}

func TestValidateDecisionRejectsEmptyPorts(t *testing.T) {
	err := ValidateDecision(types.QuarantineDecision{})
	require.Error(t, err)
}

func TestValidateDecisionAcceptsPorts(t *testing.T) {
	err := ValidateDecision(types.QuarantineDecision{Ports: []uint16{80}})
	require.NoError(t, err)
}

func TestRuleNameUsesPIDWhenKnown(t *testing.T) {
	flow := flowWithProcess("malware.exe", 999, 4444)
	require.Equal(t, "NETS_Quarantine_PID_999", RuleName(flow))
}

func TestRuleNameFallsBackToTuple(t *testing.T) {
	flow := types.FlowEvent{SrcIP: "10.0.0.5", SrcPort: 51234, DstIP: "203.0.113.9", DstPort: 4444}
	require.Equal(t, "NETS_Block_10.0.0.5_51234_203.0.113.9_4444", RuleName(flow))
}

func TestNoopBackendRecordsApplyAndRollback(t *testing.T) {
	b := NewNoopBackend()
	flow := flowWithProcess("malware.exe", 999, 4444)

	rule, err := b.Apply(flow, types.QuarantineDecision{Ports: []uint16{4444}})
	require.NoError(t, err)
	require.Equal(t, "NETS_Quarantine_PID_999", rule.Name)
	require.Len(t, b.Applied, 1)

	require.NoError(t, b.Rollback(rule))
	require.Len(t, b.RolledBack, 1)
}
