// Package normalize projects a FlowEvent into a time-windowed
// NormalizedFlow suitable for rule evaluation, per spec.md §4.4.
package normalize

import (
	"time"

	"github.com/netsentinel/agent/internal/types"
)

// DefaultWindow is the normalizer's default window width.
const DefaultWindow = 60 * time.Second

// Normalizer projects FlowEvents into a fixed-width time window.
type Normalizer struct {
	window time.Duration
}

// New constructs a Normalizer with the given window width, defaulting to
// DefaultWindow when w is zero or negative.
func New(w time.Duration) *Normalizer {
	if w <= 0 {
		w = DefaultWindow
	}
	return &Normalizer{window: w}
}

// Normalize never fails; all fields not explicitly projected are copied
// verbatim from the source FlowEvent.
func (n *Normalizer) Normalize(f types.FlowEvent) types.NormalizedFlow {
	start := f.TSFirst.Truncate(time.Second)

	var processName string
	if f.Process != nil {
		processName = f.Process.Name
	}

	return types.NormalizedFlow{
		WindowStart: start,
		WindowEnd:   f.TSFirst.Add(n.window),
		Proto:       f.Proto,
		SrcIP:       f.SrcIP,
		DstIP:       f.DstIP,
		SrcPort:     f.SrcPort,
		DstPort:     f.DstPort,
		Direction:   f.Direction,
		State:       f.State,
		Bytes:       f.Bytes,
		Packets:     f.Packets,
		ProcessName: processName,
	}
}
