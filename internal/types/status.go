package types

import "time"

// DaemonStatus is a periodic heartbeat published on the event bus so the
// shell and CLI can show the agent is alive without polling component
// internals directly.
type DaemonStatus struct {
	StartedAt      time.Time
	FlowsProcessed uint64
	AlertsRaised   uint64
	Errors         uint64
}
