package anomaly

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/netsentinel/agent/internal/types"
)

func boolPtr(b bool) *bool                      { return &b }
func statePtr(s types.TCPState) *types.TCPState { return &s }

func TestHiddenListenerUnsignedBelowEphemeral(t *testing.T) {
	d := New(0, 0)
	flow := types.FlowEvent{
		Proto: types.ProtoTCP, SrcIP: "0.0.0.0", SrcPort: 8080, DstIP: "0.0.0.0", DstPort: 0,
		Direction: types.DirectionInbound,
		State:     statePtr(types.TCPStateListen),
		Process: &types.ProcessIdentity{
			PID: 1234, Name: "test.exe", ExePath: `C:\test\test.exe`, Signed: boolPtr(false),
		},
	}

	anomalies := d.Process(flow)

	var found bool
	for _, a := range anomalies {
		if a.Kind == types.AnomalyHiddenListener {
			require.EqualValues(t, 1234, a.PID)
			require.EqualValues(t, 8080, a.Port)
			found = true
		}
	}
	require.True(t, found, "expected HiddenListener anomaly, got %+v", anomalies)
}

func TestLocalProxySuppressedForKnownApp(t *testing.T) {
	d := New(0, 0)
	flow := types.FlowEvent{
		Direction: types.DirectionInbound,
		State:     statePtr(types.TCPStateListen),
		SrcPort:   8080,
		Process:   &types.ProcessIdentity{PID: 1, Name: "Google Chrome", ExePath: "/usr/bin/chrome", Signed: boolPtr(true)},
	}
	anomalies := d.Process(flow)
	for _, a := range anomalies {
		require.NotEqual(t, types.AnomalyLocalProxy, a.Kind)
	}
}

func TestLocalProxyUnsuppressedForUnknownApp(t *testing.T) {
	d := New(0, 0)
	flow := types.FlowEvent{
		Direction: types.DirectionInbound,
		State:     statePtr(types.TCPStateListen),
		SrcPort:   8080,
		Process:   &types.ProcessIdentity{PID: 2, Name: "mystery-binary", ExePath: "/opt/mystery/bin", Signed: boolPtr(true)},
	}
	anomalies := d.Process(flow)
	var found bool
	for _, a := range anomalies {
		if a.Kind == types.AnomalyLocalProxy {
			found = true
		}
	}
	require.True(t, found)
}

func TestPortScanningTriggersOnEleventhPort(t *testing.T) {
	d := New(0, 0)
	var last []types.Anomaly
	for port := uint16(1); port <= 11; port++ {
		last = d.Process(types.FlowEvent{SrcIP: "10.0.0.5", DstIP: "10.0.0.9", DstPort: port})
	}
	var found bool
	for _, a := range last {
		if a.Kind == types.AnomalyPortScanning {
			require.Equal(t, "10.0.0.5", a.SrcIP)
			require.Equal(t, "10.0.0.9", a.TargetIP)
			require.Equal(t, 11, a.PortCount)
			found = true
		}
	}
	require.True(t, found)
}

func TestSuspiciousDnsDGA(t *testing.T) {
	d := New(0, 0)
	anomalies := d.Process(types.FlowEvent{
		Proto: types.ProtoUDP, DNSQName: "xr7q9zktmvb2nw4xp.example", DNSRCode: "NOERROR",
	})
	var found bool
	for _, a := range anomalies {
		if a.Kind == types.AnomalySuspiciousDNS {
			require.Equal(t, "Potential DGA-generated domain", a.Reason)
			found = true
		}
	}
	require.True(t, found)
}

func TestSuspiciousDnsFailureRatio(t *testing.T) {
	d := New(0, 0)
	var anomalies []types.Anomaly
	for i := 0; i < 11; i++ {
		rcode := "NXDOMAIN"
		if i < 1 {
			rcode = "NOERROR"
		}
		anomalies = d.Process(types.FlowEvent{DNSQName: "flaky.example", DNSRCode: rcode})
	}
	var found bool
	for _, a := range anomalies {
		if a.Kind == types.AnomalySuspiciousDNS {
			found = true
		}
	}
	require.True(t, found)
}

func TestLateralMovementSMB(t *testing.T) {
	d := New(0, 0)
	anomalies := d.Process(types.FlowEvent{
		SrcIP: "10.0.0.1", DstIP: "10.0.0.2", DstPort: 445, Direction: types.DirectionLateral,
	})
	var found bool
	for _, a := range anomalies {
		if a.Kind == types.AnomalyLateralMovement {
			require.Equal(t, "SMB", a.Protocol)
			found = true
		}
	}
	require.True(t, found)
}

func TestEvictionBoundsListenerState(t *testing.T) {
	d := New(time.Millisecond, 3)
	for pid := int32(1); pid <= 10; pid++ {
		d.Process(types.FlowEvent{
			Direction: types.DirectionInbound,
			State:     statePtr(types.TCPStateListen),
			SrcPort:   uint16(20000 + pid),
			Process:   &types.ProcessIdentity{PID: pid, Name: "p", ExePath: "/opt/p", Signed: boolPtr(true)},
		})
	}
	d.mu.Lock()
	size := len(d.listeners)
	d.mu.Unlock()
	require.LessOrEqual(t, size, 3)
}
