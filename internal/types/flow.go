// Package types holds the shared data model for the collector → analyzer
// → store pipeline. Nothing in this package performs I/O; it is pure data.
package types

import (
	"strconv"
	"time"
)

// Proto identifies the transport protocol of an observed flow.
type Proto string

const (
	ProtoTCP   Proto = "TCP"
	ProtoUDP   Proto = "UDP"
	ProtoOther Proto = "OTHER"
)

// Direction classifies a flow relative to the host's network position.
type Direction string

const (
	DirectionInbound  Direction = "Inbound"
	DirectionOutbound Direction = "Outbound"
	DirectionLateral  Direction = "Lateral"
)

// TCPState mirrors the kernel's TCP state machine names.
type TCPState string

const (
	TCPStateClosed      TCPState = "CLOSED"
	TCPStateListen      TCPState = "LISTEN"
	TCPStateSynSent     TCPState = "SYN_SENT"
	TCPStateSynRcvd     TCPState = "SYN_RCVD"
	TCPStateEstablished TCPState = "ESTABLISHED"
	TCPStateFinWait1    TCPState = "FIN_WAIT1"
	TCPStateFinWait2    TCPState = "FIN_WAIT2"
	TCPStateCloseWait   TCPState = "CLOSE_WAIT"
	TCPStateClosing     TCPState = "CLOSING"
	TCPStateLastAck     TCPState = "LAST_ACK"
	TCPStateTimeWait    TCPState = "TIME_WAIT"
	TCPStateDeleteTCB   TCPState = "DELETE_TCB"
	TCPStateUnknown     TCPState = "UNKNOWN"
)

// ProcessIdentity is the owning process of a socket, resolved on demand
// and cached by PID across snapshot ticks until the identity cache's TTL
// sweep drops it.
type ProcessIdentity struct {
	PID       int32
	PPID      *int32
	Name      string
	ExePath   string
	SHA256_16 string
	User      string
	Signed    *bool
}

// Layer2EventMetadata carries link-layer detail when the collector variant
// observes it (ARP tables, interface MAC changes).
type Layer2EventMetadata struct {
	SrcMAC string
	DstMAC string
}

// RiskLevel is the coarse severity bucket attached to FlowRisk.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// FlowRisk is attached to a FlowEvent by the anomaly detector before the
// event is dispatched to subscribers.
type FlowRisk struct {
	Score     int
	Level     RiskLevel
	RuleID    string
	Rationale []string
}

// FlowEvent is the unit of observation produced once per snapshot tick by
// the active Collector variant. It is immutable once constructed, except
// for risk enrichment performed by the anomaly detector prior to dispatch.
type FlowEvent struct {
	TSFirst time.Time
	TSLast  time.Time

	Proto Proto

	SrcIP   string
	DstIP   string
	SrcPort uint16
	DstPort uint16

	Iface     string
	Direction Direction
	State     *TCPState

	Bytes   uint64
	Packets uint64

	Process *ProcessIdentity
	Layer2  *Layer2EventMetadata

	// DNS enrichment, populated only for UDP/53 flows the collector can
	// attribute to a query.
	DNSQName string
	DNSQType string
	DNSRCode string

	// TLS enrichment, populated only when a ClientHello was observed.
	TLSSNI  string
	TLSALPN string
	TLSJA3  string

	Risk *FlowRisk
}

// Key returns the textual 5-tuple used by rules and alerts to reference a
// flow, formatted "src:sport->dst:dport".
func (f FlowEvent) Key() string {
	return f.SrcIP + ":" + strconv.Itoa(int(f.SrcPort)) + "->" + f.DstIP + ":" + strconv.Itoa(int(f.DstPort))
}
