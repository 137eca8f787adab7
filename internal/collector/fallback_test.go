package collector

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/netsentinel/agent/internal/types"
)

const sampleNetstat = `
Active Connections

  Proto  Local Address          Foreign Address        State           PID
  TCP    0.0.0.0:8080           0.0.0.0:0              LISTENING       4321
  TCP    10.0.0.5:51712         93.184.216.34:443      ESTABLISHED     1234
  UDP    10.0.0.5:51821         *:*                                    2222
  garbled row that is not a protocol line
`

func TestParseNetstatSkipsHeaderAndGarbage(t *testing.T) {
	flows := parseNetstat(sampleNetstat)
	require.Len(t, flows, 3)
}

func TestParseNetstatListenRow(t *testing.T) {
	flows := parseNetstat(sampleNetstat)
	var listen *types.FlowEvent
	for i := range flows {
		if flows[i].SrcPort == 8080 {
			listen = &flows[i]
		}
	}
	require.NotNil(t, listen)
	require.Equal(t, types.ProtoTCP, listen.Proto)
	require.Equal(t, "0.0.0.0", listen.SrcIP)
	require.Equal(t, "0.0.0.0", listen.DstIP)
	require.NotNil(t, listen.State)
	require.Equal(t, types.TCPStateListen, *listen.State)
	require.Equal(t, int32(4321), listen.Process.PID)
}

func TestParseNetstatUDPRowHasNoState(t *testing.T) {
	flows := parseNetstat(sampleNetstat)
	var udp *types.FlowEvent
	for i := range flows {
		if flows[i].Proto == types.ProtoUDP {
			udp = &flows[i]
		}
	}
	require.NotNil(t, udp)
	require.Nil(t, udp.State)
	require.Equal(t, uint16(51821), udp.SrcPort)
	require.Equal(t, "*", udp.DstIP)
}

func TestSplitHostPortWildcard(t *testing.T) {
	ip, port, ok := splitHostPort("*:*")
	require.True(t, ok)
	require.Equal(t, "*", ip)
	require.Equal(t, uint16(0), port)
}

func TestSplitHostPortInvalid(t *testing.T) {
	_, _, ok := splitHostPort("no-colon-here")
	require.False(t, ok)
}
