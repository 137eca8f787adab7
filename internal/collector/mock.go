package collector

import (
	"context"
	"sync"
	"time"

	"github.com/netsentinel/agent/internal/types"
)

// Mock emits its whole set of synthetic flows on every 1s tick, for
// tests and demos that don't have a real kernel socket table to read.
type Mock struct {
	*broadcaster

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool

	flows []types.FlowEvent
	tick  time.Duration
}

// NewMock builds a Mock collector. If flows is empty a small built-in
// fixture set is used.
func NewMock(flows []types.FlowEvent) *Mock {
	if len(flows) == 0 {
		flows = defaultMockFlows()
	}
	return &Mock{
		broadcaster: newBroadcaster(),
		flows:       flows,
		tick:        time.Second,
	}
}

func defaultMockFlows() []types.FlowEvent {
	established := types.TCPStateEstablished
	listen := types.TCPStateListen
	return []types.FlowEvent{
		{
			Proto: types.ProtoTCP, SrcIP: "10.0.0.5", SrcPort: 443,
			DstIP: "93.184.216.34", DstPort: 51712, Direction: types.DirectionOutbound,
			State: &established, Process: &types.ProcessIdentity{PID: 1234, Name: "chrome"},
		},
		{
			Proto: types.ProtoTCP, SrcIP: "0.0.0.0", SrcPort: 8080,
			DstIP: "0.0.0.0", DstPort: 0, Direction: types.DirectionInbound,
			State: &listen, Process: &types.ProcessIdentity{PID: 4321, Name: "nginx"},
		},
		{
			Proto: types.ProtoUDP, SrcIP: "10.0.0.5", SrcPort: 51821,
			DstIP: "8.8.8.8", DstPort: 53, Direction: types.DirectionOutbound,
			DNSQName: "example.com", DNSQType: "A", DNSRCode: "NOERROR",
		},
	}
}

func (m *Mock) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.started = true
	m.mu.Unlock()

	go m.run(runCtx)
	return nil
}

func (m *Mock) run(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, f := range m.flows {
				clone := f
				clone.TSFirst = now
				clone.TSLast = now
				m.emit(clone)
			}
		}
	}
}

func (m *Mock) Stop() error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}
	cancel := m.cancel
	done := m.done
	m.started = false
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	return nil
}
