package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/netsentinel/agent/internal/analyzer"
	"github.com/netsentinel/agent/internal/anomaly"
	"github.com/netsentinel/agent/internal/collector"
	"github.com/netsentinel/agent/internal/eventbus"
	"github.com/netsentinel/agent/internal/metrics"
	"github.com/netsentinel/agent/internal/normalize"
	"github.com/netsentinel/agent/internal/policy"
	"github.com/netsentinel/agent/internal/rules"
	"github.com/netsentinel/agent/internal/types"
)

func newTestPipeline(t *testing.T, backend policy.Backend) (*Pipeline, *eventbus.Bus) {
	t.Helper()

	bus := eventbus.New()
	t.Cleanup(func() { bus.Close() })

	mock := collector.NewMock(nil)
	detector := anomaly.New(0, 0)
	eng := rules.NewEngine(nil)
	an := analyzer.New(normalize.New(0), eng, 1)
	reg := metrics.New(prometheus.NewRegistry())

	return New(mock, detector, an, bus, nil, backend, reg), bus
}

func TestPipelineEmitsFlowsFromCollector(t *testing.T) {
	p, bus := newTestPipeline(t, nil)
	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go p.Run(ctx)

	require.Eventually(t, func() bool {
		select {
		case ev := <-ch:
			return ev.Kind == eventbus.KindFlow
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)
}

func TestPipelineRaisesBuiltinListenerAlert(t *testing.T) {
	p, bus := newTestPipeline(t, nil)
	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go p.Run(ctx)

	require.Eventually(t, func() bool {
		for {
			select {
			case ev := <-ch:
				if ev.Kind == eventbus.KindAlert && ev.Alert.RuleID == "builtin.listener" {
					return true
				}
			default:
				return false
			}
		}
	}, 2*time.Second, 20*time.Millisecond)
}

func TestPipelineAppliesQuarantineForHighSeverityAlert(t *testing.T) {
	backend := policy.NewNoopBackend()
	p := New(
		collector.NewMock(nil),
		anomaly.New(0, 0),
		analyzer.New(normalize.New(0), rules.NewEngine(nil), 1),
		eventbus.New(),
		nil,
		backend,
		metrics.New(prometheus.NewRegistry()),
	)

	highAlert := types.Alert{ID: "a1", Severity: types.SeverityHigh, RuleID: "r1"}
	flow := types.FlowEvent{DstPort: 445, Process: &types.ProcessIdentity{PID: 99, Name: "notesync.exe"}}

	p.dispatchAlert(highAlert, flow)

	require.Len(t, backend.Applied, 1)
	require.Equal(t, int32(99), backend.Applied[0].PID)
}

func TestStatusReflectsCounters(t *testing.T) {
	p, _ := newTestPipeline(t, nil)
	p.handle(types.FlowEvent{
		Proto: types.ProtoTCP, SrcIP: "0.0.0.0", SrcPort: 9999,
		DstIP: "0.0.0.0", DstPort: 0, Direction: types.DirectionInbound,
		State: tcpStatePtr(types.TCPStateListen),
	})

	status := p.Status()
	require.Equal(t, uint64(1), status.FlowsProcessed)
	require.GreaterOrEqual(t, status.AlertsRaised, uint64(1))
}

func tcpStatePtr(s types.TCPState) *types.TCPState { return &s }
