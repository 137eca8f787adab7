package types

import "time"

// NormalizedFlow projects a FlowEvent into the time-windowed shape the
// rule engine and analyzer history operate on.
type NormalizedFlow struct {
	WindowStart time.Time
	WindowEnd   time.Time

	Proto   Proto
	SrcIP   string
	DstIP   string
	SrcPort uint16
	DstPort uint16

	Direction Direction
	State     *TCPState

	Bytes   uint64
	Packets uint64

	ProcessName string
}

// Key mirrors FlowEvent.Key for rule/alert correlation.
func (n NormalizedFlow) Key() string {
	return FlowEvent{SrcIP: n.SrcIP, SrcPort: n.SrcPort, DstIP: n.DstIP, DstPort: n.DstPort}.Key()
}
