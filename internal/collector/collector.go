// Package collector produces FlowEvent snapshots from the host's active
// TCP/UDP endpoints. Three platform variants and a mock implement the
// same Collector contract; the pipeline only ever depends on the
// interface. Every variant fans each event out to its subscribers
// synchronously on the producing goroutine; nothing is buffered or
// dropped here.
package collector

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/netsentinel/agent/internal/types"
)

// Handler is invoked once per FlowEvent. The collector clones the event
// before calling handlers, so implementations must not retain pointers
// into collector-owned memory across calls.
type Handler func(types.FlowEvent)

// Collector is the platform-independent contract every variant satisfies.
type Collector interface {
	// Start begins producing events; idempotent.
	Start(ctx context.Context) error
	// Stop flushes in-flight work and joins worker goroutines; idempotent.
	Stop() error
	// Subscribe registers handler to be called once per FlowEvent. Returns
	// an unsubscribe func.
	Subscribe(h Handler) (unsubscribe func())
}

// broadcaster is embedded by every variant; it owns the subscriber list
// and the dispatch-to-all-handlers fan-out.
type broadcaster struct {
	mu       sync.RWMutex
	handlers map[int]Handler
	nextID   int
}

func newBroadcaster() *broadcaster {
	return &broadcaster{handlers: make(map[int]Handler)}
}

func (b *broadcaster) Subscribe(h Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}

// emit clones f for every subscriber and calls them synchronously. A
// panicking handler is caught and does not take down the producing
// goroutine, per spec.md §4.1's "worker panics are caught and logged"
// failure semantics.
func (b *broadcaster) emit(f types.FlowEvent) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		clone := f
		dispatchSafely(h, clone)
	}
}

func dispatchSafely(h Handler, f types.FlowEvent) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("collector: subscriber handler panicked", "panic", r)
		}
	}()
	h(f)
}

// portFromRaw converts a kernel socket-table port field to a u16. Kernel
// tables encode the port little-endian with the value in the upper two
// bytes of a 32-bit field; spec.md §4.1 gives the conversion as
// (raw >> 8) | ((raw & 0xFF) << 8) applied to the low 16 bits.
func portFromRaw(raw uint32) uint16 {
	lo := uint16(raw & 0xFFFF)
	return (lo >> 8) | ((lo & 0xFF) << 8)
}

// ipv4FromRaw converts a big-endian-encoded IPv4 u32 (as read from a
// kernel socket table) to its dotted-decimal string.
func ipv4FromRaw(raw uint32) string {
	ip := net.IPv4(byte(raw>>24), byte(raw>>16), byte(raw>>8), byte(raw))
	return ip.String()
}

// unspecified reports whether addr is the unspecified address for its
// family ("0.0.0.0", "::", or the netstat wildcard "*").
func unspecified(addr string) bool {
	switch addr {
	case "0.0.0.0", "::", "*", "0.0.0.0.0", "[::]":
		return true
	}
	ip := net.ParseIP(addr)
	return ip != nil && ip.IsUnspecified()
}

var privateV4Blocks []*net.IPNet
var privateV6Blocks []*net.IPNet

func init() {
	for _, cidr := range []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "169.254.0.0/16", "127.0.0.0/8"} {
		_, n, err := net.ParseCIDR(cidr)
		if err == nil {
			privateV4Blocks = append(privateV4Blocks, n)
		}
	}
	for _, cidr := range []string{"fe80::/10", "fc00::/7", "::1/128"} {
		_, n, err := net.ParseCIDR(cidr)
		if err == nil {
			privateV6Blocks = append(privateV6Blocks, n)
		}
	}
}

func isPrivate(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	blocks := privateV4Blocks
	if ip.To4() == nil {
		blocks = privateV6Blocks
	}
	for _, b := range blocks {
		if b.Contains(ip) {
			return true
		}
	}
	return false
}

// inferDirection implements spec.md §4.1's direction-inference rule:
// Inbound if the remote address is unspecified for its family; else
// Lateral if both addresses fall in the same private/link-local/loopback
// class; else Outbound.
func inferDirection(srcIP, dstIP string) types.Direction {
	if unspecified(dstIP) {
		return types.DirectionInbound
	}
	if isPrivate(srcIP) && isPrivate(dstIP) {
		return types.DirectionLateral
	}
	return types.DirectionOutbound
}

// knownProtoToken reports whether tok looks like a protocol column from
// netstat/proc output ("tcp", "udp", "tcp6", "udp6", case-insensitive),
// used by the fallback variant to skip localized header rows.
func knownProtoToken(tok string) bool {
	switch strings.ToLower(tok) {
	case "tcp", "udp", "tcp6", "udp6":
		return true
	}
	return false
}
