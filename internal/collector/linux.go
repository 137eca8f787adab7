//go:build linux

package collector

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/ringbuf"
	"github.com/cilium/ebpf/rlimit"

	"github.com/netsentinel/agent/internal/errs"
	"github.com/netsentinel/agent/internal/identity"
	"github.com/netsentinel/agent/internal/types"
)

// flowSample matches the memory layout of the eBPF program's perf/ringbuf
// event struct exactly: proto(1) + pad(3) + src(4) + dst(4) + sport(4) +
// dport(4) + state(1) + pad(3) + pid(4) + bytes(8) + packets(8) = 44 bytes.
type flowSample struct {
	Proto   uint8
	_       [3]byte
	SrcAddr uint32
	DstAddr uint32
	SrcPort uint32
	DstPort uint32
	State   uint8
	_       [3]byte
	PID     uint32
	Bytes   uint64
	Packets uint64
}

// Linux reads FlowEvents from a loaded eBPF/XDP program's ring buffer map,
// grounded on cmd/probe/main.go's ring-buffer read loop (rlimit removal,
// ringbuf.NewReader, sync around a worker's identity cache), adapted from
// payload tracing to socket-table snapshot scanning: the XDP program
// publishes one sample per observed TCP/UDP endpoint rather than per
// packet payload.
type Linux struct {
	*broadcaster

	objectPath  string
	iface       string
	identity    *identity.Cache
	identitySwe time.Duration

	mu      sync.Mutex
	started bool
	coll    *ebpf.Collection
	xdpLink link.Link
	reader  *ringbuf.Reader
	done    chan struct{}
}

// NewLinux builds a Linux collector. objectPath names a compiled eBPF
// object file containing an XDP program that writes flowSample records to
// a ring buffer map named "flow_events"; iface is the network interface
// to attach it to.
func NewLinux(objectPath, iface string, identityTTL time.Duration) *Linux {
	return &Linux{
		broadcaster: newBroadcaster(),
		objectPath:  objectPath,
		iface:       iface,
		identity:    identity.NewCache(identityTTL),
	}
}

func (l *Linux) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return nil
	}

	if err := rlimit.RemoveMemlock(); err != nil {
		return errs.New(errs.KindInit, "collector: removing memlock", err)
	}

	spec, err := ebpf.LoadCollectionSpec(l.objectPath)
	if err != nil {
		return errs.New(errs.KindInit, fmt.Sprintf("collector: loading eBPF spec %s", l.objectPath), err)
	}

	coll, err := ebpf.NewCollection(spec)
	if err != nil {
		return errs.New(errs.KindInit, "collector: instantiating eBPF collection", err)
	}

	prog, ok := coll.Programs["xdp_flow_snapshot"]
	if !ok {
		coll.Close()
		return errs.New(errs.KindInit, "collector: eBPF object missing xdp_flow_snapshot program", nil)
	}

	ifi, err := net.InterfaceByName(l.iface)
	if err != nil {
		coll.Close()
		return errs.New(errs.KindInit, fmt.Sprintf("collector: resolving interface %s", l.iface), err)
	}

	xdpLink, err := link.AttachXDP(link.XDPOptions{
		Program:   prog,
		Interface: ifi.Index,
	})
	if err != nil {
		coll.Close()
		return errs.New(errs.KindInit, fmt.Sprintf("collector: attaching XDP to %s", l.iface), err)
	}

	eventsMap, ok := coll.Maps["flow_events"]
	if !ok {
		xdpLink.Close()
		coll.Close()
		return errs.New(errs.KindInit, "collector: eBPF object missing flow_events ring buffer map", nil)
	}

	reader, err := ringbuf.NewReader(eventsMap)
	if err != nil {
		xdpLink.Close()
		coll.Close()
		return errs.New(errs.KindInit, "collector: opening ring buffer reader", err)
	}

	l.coll = coll
	l.xdpLink = xdpLink
	l.reader = reader
	l.done = make(chan struct{})
	l.started = true

	go l.readLoop()
	go l.sweepLoop(ctx)

	return nil
}

func (l *Linux) readLoop() {
	defer close(l.done)
	for {
		record, err := l.reader.Read()
		if err != nil {
			if errors.Is(err, ringbuf.ErrClosed) {
				return
			}
			slog.Warn("collector: ring buffer read error", "error", err)
			continue
		}

		var sample flowSample
		if err := binary.Read(bytes.NewReader(record.RawSample), binary.LittleEndian, &sample); err != nil {
			slog.Warn("collector: dropping malformed ring buffer record", "error", err)
			continue
		}

		l.emit(l.toFlowEvent(sample))
	}
}

func (l *Linux) toFlowEvent(s flowSample) types.FlowEvent {
	now := time.Now()
	proto := types.ProtoOther
	switch s.Proto {
	case 6:
		proto = types.ProtoTCP
	case 17:
		proto = types.ProtoUDP
	}

	srcIP := ipv4FromRaw(s.SrcAddr)
	dstIP := ipv4FromRaw(s.DstAddr)
	srcPort := portFromRaw(s.SrcPort)
	dstPort := portFromRaw(s.DstPort)

	var state *types.TCPState
	if proto == types.ProtoTCP {
		st := tcpStateFromRaw(s.State)
		state = &st
	}

	var proc *types.ProcessIdentity
	if s.PID > 0 {
		if id, err := l.identity.Resolve(int32(s.PID)); err == nil {
			proc = &id
		} else {
			proc = &types.ProcessIdentity{PID: int32(s.PID)}
		}
	}

	return types.FlowEvent{
		TSFirst:   now,
		TSLast:    now,
		Proto:     proto,
		SrcIP:     srcIP,
		DstIP:     dstIP,
		SrcPort:   srcPort,
		DstPort:   dstPort,
		Iface:     l.iface,
		Direction: inferDirection(srcIP, dstIP),
		State:     state,
		Bytes:     s.Bytes,
		Packets:   s.Packets,
		Process:   proc,
	}
}

func tcpStateFromRaw(raw uint8) types.TCPState {
	states := []types.TCPState{
		types.TCPStateUnknown,
		types.TCPStateEstablished,
		types.TCPStateSynSent,
		types.TCPStateSynRcvd,
		types.TCPStateFinWait1,
		types.TCPStateFinWait2,
		types.TCPStateTimeWait,
		types.TCPStateClosed,
		types.TCPStateCloseWait,
		types.TCPStateLastAck,
		types.TCPStateListen,
		types.TCPStateClosing,
		types.TCPStateDeleteTCB,
	}
	if int(raw) < len(states) {
		return states[raw]
	}
	return types.TCPStateUnknown
}

func (l *Linux) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		case now := <-ticker.C:
			l.identity.Sweep(now)
		}
	}
}

func (l *Linux) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.started {
		return nil
	}
	l.started = false

	if l.reader != nil {
		l.reader.Close()
	}
	if l.xdpLink != nil {
		l.xdpLink.Close()
	}
	if l.coll != nil {
		l.coll.Close()
	}
	if l.done != nil {
		<-l.done
	}
	return nil
}
