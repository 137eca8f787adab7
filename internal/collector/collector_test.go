package collector

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/netsentinel/agent/internal/types"
)

func TestPortFromRaw(t *testing.T) {
	// Port 8080 (0x1F90) little-endian-encoded with value in the upper
	// two bytes of the low 16 bits: raw low16 = 0x901F.
	raw := uint32(0x901F)
	require.Equal(t, uint16(8080), portFromRaw(raw))
}

func TestIPv4FromRaw(t *testing.T) {
	// 10.0.0.5 as a big-endian u32.
	raw := uint32(10)<<24 | uint32(0)<<16 | uint32(0)<<8 | uint32(5)
	require.Equal(t, "10.0.0.5", ipv4FromRaw(raw))
}

func TestInferDirectionInbound(t *testing.T) {
	require.Equal(t, types.DirectionInbound, inferDirection("0.0.0.0", "0.0.0.0"))
	require.Equal(t, types.DirectionInbound, inferDirection("10.0.0.5", "::"))
}

func TestInferDirectionLateral(t *testing.T) {
	require.Equal(t, types.DirectionLateral, inferDirection("10.0.0.5", "192.168.1.10"))
}

func TestInferDirectionOutbound(t *testing.T) {
	require.Equal(t, types.DirectionOutbound, inferDirection("10.0.0.5", "93.184.216.34"))
}

func TestSubscribeAndEmit(t *testing.T) {
	b := newBroadcaster()
	var got types.FlowEvent
	calls := 0
	unsub := b.Subscribe(func(f types.FlowEvent) {
		calls++
		got = f
	})

	b.emit(types.FlowEvent{SrcIP: "1.2.3.4"})
	require.Equal(t, 1, calls)
	require.Equal(t, "1.2.3.4", got.SrcIP)

	unsub()
	b.emit(types.FlowEvent{SrcIP: "5.6.7.8"})
	require.Equal(t, 1, calls)
}

func TestEmitSurvivesPanickingHandler(t *testing.T) {
	b := newBroadcaster()
	b.Subscribe(func(types.FlowEvent) { panic("boom") })

	calledOK := false
	b.Subscribe(func(types.FlowEvent) { calledOK = true })

	require.NotPanics(t, func() { b.emit(types.FlowEvent{}) })
	require.True(t, calledOK)
}
