// Package eventbus provides the in-process broadcast channel described in
// spec.md §4.9, grounded directly on the teacher's
// internal/fabric/event_bus.go LocalEventBus: an RWMutex-guarded map of
// per-kind subscriber entries with an unsubscribe closure returned from
// Subscribe. Generalized here from free-form EventType strings to the
// three closed UiEvent variants the spec names, and from goroutine-per-
// publish delivery to a bounded per-subscriber channel so a slow
// consumer drops events instead of spawning unbounded goroutines.
package eventbus

import (
	"log/slog"
	"sync"

	"github.com/netsentinel/agent/internal/types"
)

// Kind identifies which UiEvent variant a message carries.
type Kind string

const (
	KindFlow   Kind = "flow"
	KindAlert  Kind = "alert"
	KindStatus Kind = "status"
)

// UiEvent is the envelope broadcast to every subscriber; exactly one of
// Flow, Alert, Status is populated according to Kind.
type UiEvent struct {
	Kind   Kind
	Flow   *types.FlowEvent
	Alert  *types.Alert
	Status *types.DaemonStatus
}

// Capacity is the per-subscriber channel depth mandated by spec.md §4.9.
const Capacity = 256

type subscriber struct {
	id int
	ch chan UiEvent
}

// Bus is a multi-producer multi-consumer broadcast of UiEvent. Producers
// never block: a subscriber whose channel is full misses the event
// rather than applying backpressure to the collector or analyzer.
type Bus struct {
	mu          sync.RWMutex
	subscribers []subscriber
	nextID      int
	closed      bool
}

// New builds an empty Bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers a new consumer and returns its channel plus an
// unsubscribe function. The channel is buffered to Capacity; callers
// should drain it promptly.
func (b *Bus) Subscribe() (<-chan UiEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan UiEvent, Capacity)
	b.subscribers = append(b.subscribers, subscriber{id: id, ch: ch})

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subscribers {
			if s.id == id {
				b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
				close(s.ch)
				break
			}
		}
	}
	return ch, unsubscribe
}

func (b *Bus) publish(ev UiEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, s := range b.subscribers {
		select {
		case s.ch <- ev:
		default:
			slog.Warn("eventbus: subscriber too slow, dropping event", "kind", ev.Kind, "subscriber", s.id)
		}
	}
}

// PublishFlow broadcasts a FlowEvent.
func (b *Bus) PublishFlow(f types.FlowEvent) {
	b.publish(UiEvent{Kind: KindFlow, Flow: &f})
}

// PublishAlert broadcasts an Alert.
func (b *Bus) PublishAlert(a types.Alert) {
	b.publish(UiEvent{Kind: KindAlert, Alert: &a})
}

// PublishStatus broadcasts a DaemonStatus heartbeat.
func (b *Bus) PublishStatus(s types.DaemonStatus) {
	b.publish(UiEvent{Kind: KindStatus, Status: &s})
}

// Close unsubscribes and closes every live subscriber channel. Publish
// calls after Close are silently dropped.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, s := range b.subscribers {
		close(s.ch)
	}
	b.subscribers = nil
	return nil
}
