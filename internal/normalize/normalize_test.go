package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/netsentinel/agent/internal/types"
)

func TestNormalizeWindowing(t *testing.T) {
	n := New(60 * time.Second)
	ts := time.Date(2026, 1, 1, 12, 0, 0, 500_000_000, time.UTC)

	flow := types.FlowEvent{
		TSFirst: ts, TSLast: ts,
		Proto: types.ProtoTCP, SrcIP: "10.0.0.1", DstIP: "10.0.0.2",
		SrcPort: 1234, DstPort: 445,
		Process: &types.ProcessIdentity{Name: "svc.exe"},
	}

	nf := n.Normalize(flow)

	require.Equal(t, time.Duration(0), nf.WindowStart.Sub(ts.Truncate(time.Second)))
	require.Equal(t, 60*time.Second, nf.WindowEnd.Sub(ts))
	require.Zero(t, nf.WindowStart.Nanosecond())
	require.Equal(t, "svc.exe", nf.ProcessName)
}

func TestNormalizeDefaultWindow(t *testing.T) {
	n := New(0)
	ts := time.Now()
	nf := n.Normalize(types.FlowEvent{TSFirst: ts})
	require.Equal(t, DefaultWindow, nf.WindowEnd.Sub(ts))
}
