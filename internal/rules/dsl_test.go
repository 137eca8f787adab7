package rules

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/netsentinel/agent/internal/types"
)

func flow() types.NormalizedFlow {
	return types.NormalizedFlow{
		SrcIP: "10.0.0.1", SrcPort: 1234,
		DstIP: "10.0.0.2", DstPort: 445,
		ProcessName: "svc.exe",
	}
}

func TestMatchesEquality(t *testing.T) {
	require.True(t, Matches(`dst.port == 445`, flow()))
	require.False(t, Matches(`dst.port == 80`, flow()))
}

func TestMatchesNotEqual(t *testing.T) {
	require.True(t, Matches(`proc.name != "other.exe"`, flow()))
}

func TestMatchesIn(t *testing.T) {
	require.True(t, Matches(`dst.port in [80, 443, 445]`, flow()))
	require.True(t, Matches(`dst.port in 80, 443, 445`, flow()))
	require.False(t, Matches(`dst.port in [80, 443]`, flow()))
}

func TestMatchesRegex(t *testing.T) {
	require.True(t, Matches(`regex(^10\.0\.0\.)`, flow()))
	require.False(t, Matches(`regex(^192\.168\.)`, flow()))
}

func TestMatchesUnsupportedFieldIsFalse(t *testing.T) {
	require.False(t, Matches(`bogus.field == x`, flow()))
}

func TestMatchesParseFailureIsFalse(t *testing.T) {
	require.False(t, Matches(`not a valid expression at all ==`, flow()))
}

func TestMatchesReferentiallyTransparent(t *testing.T) {
	f := flow()
	expr := `dst.port == 445`
	require.Equal(t, Matches(expr, f), Matches(expr, f))
}

func TestSMBLateralRuleScenario(t *testing.T) {
	rule := types.Rule{ID: "smb-lateral", Severity: types.SeverityHigh, Expression: "dst.port == 445"}
	engine := NewEngine([]types.Rule{rule})

	alerts := engine.Evaluate(types.NormalizedFlow{
		SrcIP: "10.0.0.1", SrcPort: 1234, DstIP: "10.0.0.2", DstPort: 445,
	})

	var found bool
	for _, a := range alerts {
		if a.RuleID == "smb-lateral" {
			require.Equal(t, "alert-smb-lateral-445", a.ID)
			require.Equal(t, []string{"10.0.0.1:1234->10.0.0.2:445"}, a.FlowRefs)
			found = true
		}
	}
	require.True(t, found)
}

func TestDetectListenerBuiltin(t *testing.T) {
	state := types.TCPStateListen
	alert := DetectListener(types.NormalizedFlow{
		SrcIP: "0.0.0.0", SrcPort: 8080, DstIP: "0.0.0.0", DstPort: 0,
		Direction: types.DirectionInbound, State: &state,
	})
	require.NotNil(t, alert)
	require.Equal(t, "builtin.listener", alert.RuleID)
	require.Equal(t, types.SeverityMedium, alert.Severity)
	require.Equal(t, "listener-0.0.0.0-8080", alert.ID)
	require.Equal(t, "New listener on 0.0.0.0:8080", alert.Summary)
}
