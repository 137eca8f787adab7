//go:build windows

package collector

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/netsentinel/agent/internal/errs"
	"github.com/netsentinel/agent/internal/identity"
	"github.com/netsentinel/agent/internal/types"
)

// Windows snapshots the extended TCP/UDP tables for IPv4 and IPv6 via the
// IP Helper API, resolving each row's owning PID to a ProcessIdentity
// through the identity cache, per spec.md §4.1's Windows variant.
type Windows struct {
	*broadcaster

	tick     time.Duration
	identity *identity.Cache

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewWindows builds a Windows collector polling the IP Helper tables at
// the given interval.
func NewWindows(tickInterval, identityTTL time.Duration) *Windows {
	if tickInterval <= 0 {
		tickInterval = 2 * time.Second
	}
	return &Windows{
		broadcaster: newBroadcaster(),
		tick:        tickInterval,
		identity:    identity.NewCache(identityTTL),
	}
}

func (w *Windows) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.started = true
	w.mu.Unlock()

	go w.run(runCtx)
	return nil
}

func (w *Windows) run(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			w.snapshot(now)
		}
	}
}

func (w *Windows) snapshot(now time.Time) {
	for _, f := range w.readTCPTable() {
		w.enrichAndEmit(f, now)
	}
	for _, f := range w.readUDPTable() {
		w.enrichAndEmit(f, now)
	}
	w.identity.Sweep(now)
}

func (w *Windows) enrichAndEmit(f types.FlowEvent, now time.Time) {
	f.TSFirst = now
	f.TSLast = now
	if f.Process != nil && f.Process.PID > 0 {
		if id, err := w.identity.Resolve(f.Process.PID); err == nil {
			f.Process = &id
		}
	}
	f.Direction = inferDirection(f.SrcIP, f.DstIP)
	w.emit(f)
}

// mibTCPRowOwnerPID mirrors MIB_TCPROW_OWNER_PID; ports are big-endian
// within the 32-bit field with the value in the low two bytes, per
// GetExtendedTcpTable's documented layout.
type mibTCPRowOwnerPID struct {
	State      uint32
	LocalAddr  uint32
	LocalPort  uint32
	RemoteAddr uint32
	RemotePort uint32
	OwningPID  uint32
}

type mibUDPRowOwnerPID struct {
	LocalAddr  uint32
	LocalPort  uint32
	RemoteAddr uint32
	RemotePort uint32
	OwningPID  uint32
}

const (
	afInet              = 2 // AF_INET
	tcpTableOwnerPIDAll = 5 // TCP_TABLE_OWNER_PID_ALL
	udpTableOwnerPID    = 1 // UDP_TABLE_OWNER_PID

	errorInsufficientBuffer = 122 // ERROR_INSUFFICIENT_BUFFER
)

// iphlpapi.dll is called directly via LazyDLL/LazyProc rather than through
// a high-level wrapper, the same idiom x/sys/windows itself uses for
// syscalls it doesn't expose a typed signature for.
var (
	modIPHlpAPI             = windows.NewLazySystemDLL("iphlpapi.dll")
	procGetExtendedTCPTable = modIPHlpAPI.NewProc("GetExtendedTcpTable")
	procGetExtendedUDPTable = modIPHlpAPI.NewProc("GetExtendedUdpTable")
)

func getExtendedTCPTable(buf []byte, size *uint32, class uint32) error {
	var ptr uintptr
	if len(buf) > 0 {
		ptr = uintptr(unsafe.Pointer(&buf[0]))
	}
	ret, _, _ := procGetExtendedTCPTable.Call(ptr, uintptr(unsafe.Pointer(size)), 0, uintptr(afInet), uintptr(class), 0)
	if ret != 0 {
		return syscall.Errno(ret)
	}
	return nil
}

func getExtendedUDPTable(buf []byte, size *uint32, class uint32) error {
	var ptr uintptr
	if len(buf) > 0 {
		ptr = uintptr(unsafe.Pointer(&buf[0]))
	}
	ret, _, _ := procGetExtendedUDPTable.Call(ptr, uintptr(unsafe.Pointer(size)), 0, uintptr(afInet), uintptr(class), 0)
	if ret != 0 {
		return syscall.Errno(ret)
	}
	return nil
}

// readTCPTable calls GetExtendedTcpTable and decodes each row into a
// FlowEvent. A failed enumeration logs a warning and yields no rows for
// this table; the UDP table is still read, per spec.md §4.1's "failed
// per-table enumeration" semantics.
func (w *Windows) readTCPTable() []types.FlowEvent {
	buf, rowSize, count, err := fetchExtendedTable(
		func(b []byte, size *uint32) error {
			return getExtendedTCPTable(b, size, tcpTableOwnerPIDAll)
		},
		int(unsafe.Sizeof(mibTCPRowOwnerPID{})),
	)
	if err != nil {
		slog.Warn("collector: TCP table enumeration failed", "error", err)
		return nil
	}

	flows := make([]types.FlowEvent, 0, count)
	for i := 0; i < count; i++ {
		offset := 4 + i*rowSize
		if offset+rowSize > len(buf) {
			break
		}
		var row mibTCPRowOwnerPID
		row.State = binary.LittleEndian.Uint32(buf[offset:])
		row.LocalAddr = binary.LittleEndian.Uint32(buf[offset+4:])
		row.LocalPort = binary.LittleEndian.Uint32(buf[offset+8:])
		row.RemoteAddr = binary.LittleEndian.Uint32(buf[offset+12:])
		row.RemotePort = binary.LittleEndian.Uint32(buf[offset+16:])
		row.OwningPID = binary.LittleEndian.Uint32(buf[offset+20:])

		state := tcpStateFromWin32(row.State)
		flows = append(flows, types.FlowEvent{
			Proto:   types.ProtoTCP,
			SrcIP:   ipv4FromRaw(row.LocalAddr),
			SrcPort: portFromRaw(row.LocalPort),
			DstIP:   ipv4FromRaw(row.RemoteAddr),
			DstPort: portFromRaw(row.RemotePort),
			State:   &state,
			Process: &types.ProcessIdentity{PID: int32(row.OwningPID)},
		})
	}
	return flows
}

func (w *Windows) readUDPTable() []types.FlowEvent {
	buf, rowSize, count, err := fetchExtendedTable(
		func(b []byte, size *uint32) error {
			return getExtendedUDPTable(b, size, udpTableOwnerPID)
		},
		int(unsafe.Sizeof(mibUDPRowOwnerPID{})),
	)
	if err != nil {
		slog.Warn("collector: UDP table enumeration failed", "error", err)
		return nil
	}

	flows := make([]types.FlowEvent, 0, count)
	for i := 0; i < count; i++ {
		offset := 4 + i*rowSize
		if offset+rowSize > len(buf) {
			break
		}
		var row mibUDPRowOwnerPID
		row.LocalAddr = binary.LittleEndian.Uint32(buf[offset:])
		row.LocalPort = binary.LittleEndian.Uint32(buf[offset+4:])
		row.OwningPID = binary.LittleEndian.Uint32(buf[offset+8:])

		flows = append(flows, types.FlowEvent{
			Proto:   types.ProtoUDP,
			SrcIP:   ipv4FromRaw(row.LocalAddr),
			SrcPort: portFromRaw(row.LocalPort),
			DstIP:   "0.0.0.0",
			DstPort: 0,
			Process: &types.ProcessIdentity{PID: int32(row.OwningPID)},
		})
	}
	return flows
}

// fetchExtendedTable grows buf until call succeeds with ERROR_INSUFFICIENT_BUFFER
// resolved, then returns the raw table buffer plus the row count read from
// its first 4 bytes (MIB_TCPTABLE_OWNER_PID / MIB_UDPTABLE_OWNER_PID both
// lead with a dwNumEntries uint32).
func fetchExtendedTable(call func([]byte, *uint32) error, rowSize int) (buf []byte, rowSz, count int, err error) {
	size := uint32(8192)
	for attempt := 0; attempt < 3; attempt++ {
		buf = make([]byte, size)
		callErr := call(buf, &size)
		if callErr == nil {
			if len(buf) < 4 {
				return nil, 0, 0, errs.New(errs.KindIO, "collector: extended table too small", nil)
			}
			n := int(binary.LittleEndian.Uint32(buf))
			return buf, rowSize, n, nil
		}
		if errno, ok := callErr.(syscall.Errno); !ok || errno != errorInsufficientBuffer {
			return nil, 0, 0, errs.New(errs.KindIO, "collector: querying extended table", callErr)
		}
	}
	return nil, 0, 0, errs.New(errs.KindIO, fmt.Sprintf("collector: extended table still too small after retries (wanted %d)", size), nil)
}

func tcpStateFromWin32(state uint32) types.TCPState {
	switch state {
	case 1:
		return types.TCPStateClosed
	case 2:
		return types.TCPStateListen
	case 3:
		return types.TCPStateSynSent
	case 4:
		return types.TCPStateSynRcvd
	case 5:
		return types.TCPStateEstablished
	case 6:
		return types.TCPStateFinWait1
	case 7:
		return types.TCPStateFinWait2
	case 8:
		return types.TCPStateCloseWait
	case 9:
		return types.TCPStateClosing
	case 10:
		return types.TCPStateLastAck
	case 11:
		return types.TCPStateTimeWait
	case 12:
		return types.TCPStateDeleteTCB
	default:
		return types.TCPStateUnknown
	}
}

func (w *Windows) Stop() error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	cancel := w.cancel
	done := w.done
	w.started = false
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	return nil
}
