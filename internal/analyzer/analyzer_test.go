package analyzer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/netsentinel/agent/internal/normalize"
	"github.com/netsentinel/agent/internal/rules"
	"github.com/netsentinel/agent/internal/types"
)

func TestAnalyzerBoundsHistory(t *testing.T) {
	a := New(normalize.New(0), rules.NewEngine(nil), 1) // capacity = 60

	for i := 0; i < 65; i++ {
		a.Ingest(types.FlowEvent{
			TSFirst: time.Now(), SrcIP: "10.0.0.1", DstIP: "10.0.0.2", DstPort: uint16(i),
		})
	}

	history := a.History()
	require.Len(t, history, 60)
	require.EqualValues(t, 64, history[len(history)-1].DstPort)
	require.EqualValues(t, 5, history[0].DstPort)
}

func TestAnalyzerIngestReturnsAlerts(t *testing.T) {
	rule := types.Rule{ID: "smb", Severity: types.SeverityHigh, Expression: "dst.port == 445"}
	a := New(normalize.New(0), rules.NewEngine([]types.Rule{rule}), 5)

	alerts := a.Ingest(types.FlowEvent{TSFirst: time.Now(), SrcIP: "10.0.0.1", DstIP: "10.0.0.2", DstPort: 445})

	var found bool
	for _, al := range alerts {
		if al.RuleID == "smb" {
			found = true
		}
	}
	require.True(t, found)
}
