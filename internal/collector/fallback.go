package collector

import (
	"bufio"
	"context"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/netsentinel/agent/internal/identity"
	"github.com/netsentinel/agent/internal/types"
)

// Fallback shells to `netstat -ano` every tick and parses its table,
// robust to localized column headers by skipping any row whose first
// token isn't a recognized protocol name (spec.md §4.1's fallback
// contract). It is the generic variant used on platforms with neither a
// Linux eBPF toolchain nor the Windows IP-Helper APIs available.
type Fallback struct {
	*broadcaster

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool

	tick     time.Duration
	identity *identity.Cache
	runner   func(ctx context.Context) (string, error)
}

// NewFallback builds a Fallback collector polling at the given interval.
func NewFallback(tickInterval time.Duration, identityTTL time.Duration) *Fallback {
	if tickInterval <= 0 {
		tickInterval = 2 * time.Second
	}
	return &Fallback{
		broadcaster: newBroadcaster(),
		tick:        tickInterval,
		identity:    identity.NewCache(identityTTL),
		runner:      runNetstat,
	}
}

func runNetstat(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "netstat", "-ano").CombinedOutput()
	return string(out), err
}

func (f *Fallback) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.done = make(chan struct{})
	f.started = true
	f.mu.Unlock()

	go f.run(runCtx)
	return nil
}

func (f *Fallback) run(ctx context.Context) {
	defer close(f.done)
	ticker := time.NewTicker(f.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.snapshot(ctx)
		}
	}
}

func (f *Fallback) snapshot(ctx context.Context) {
	out, err := f.runner(ctx)
	if err != nil && out == "" {
		slog.Warn("collector: netstat snapshot failed", "error", err)
		return
	}
	now := time.Now()
	for _, flow := range parseNetstat(out) {
		flow.TSFirst = now
		flow.TSLast = now
		if flow.Process != nil && flow.Process.PID > 0 {
			if id, err := f.identity.Resolve(flow.Process.PID); err == nil {
				flow.Process = &id
			}
		}
		flow.Direction = inferDirection(flow.SrcIP, flow.DstIP)
		f.emit(flow)
	}
	f.identity.Sweep(now)
}

// parseNetstat parses the textual table emitted by `netstat -ano`. Each
// data row is "Proto LocalAddr ForeignAddr [State] PID"; a failed parse
// of one row drops only that row, per spec.md §4.1's failure semantics.
func parseNetstat(out string) []types.FlowEvent {
	var flows []types.FlowEvent
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if !knownProtoToken(fields[0]) {
			continue
		}
		f, ok := parseNetstatRow(fields)
		if !ok {
			continue
		}
		flows = append(flows, f)
	}
	return flows
}

func parseNetstatRow(fields []string) (types.FlowEvent, bool) {
	proto := types.ProtoTCP
	isUDP := strings.EqualFold(fields[0], "UDP") || strings.EqualFold(fields[0], "UDP6")
	if isUDP {
		proto = types.ProtoUDP
	}

	// TCP rows: proto local foreign state pid (5 fields)
	// UDP rows: proto local foreign pid (4 fields, no state column)
	minFields := 5
	if isUDP {
		minFields = 4
	}
	if len(fields) < minFields {
		return types.FlowEvent{}, false
	}

	srcIP, srcPort, ok := splitHostPort(fields[1])
	if !ok {
		return types.FlowEvent{}, false
	}
	dstIP, dstPort, ok := splitHostPort(fields[2])
	if !ok {
		return types.FlowEvent{}, false
	}

	var state *types.TCPState
	pidField := fields[len(fields)-1]
	if !isUDP {
		s := parseTCPState(fields[3])
		state = &s
	}

	pid, err := strconv.Atoi(pidField)
	if err != nil {
		pid = 0
	}

	var proc *types.ProcessIdentity
	if pid > 0 {
		proc = &types.ProcessIdentity{PID: int32(pid)}
	}

	return types.FlowEvent{
		Proto:   proto,
		SrcIP:   srcIP,
		SrcPort: srcPort,
		DstIP:   dstIP,
		DstPort: dstPort,
		State:   state,
		Process: proc,
	}, true
}

func splitHostPort(hostport string) (string, uint16, bool) {
	if hostport == "*:*" {
		return "*", 0, true
	}
	idx := strings.LastIndex(hostport, ":")
	if idx < 0 {
		return "", 0, false
	}
	host := hostport[:idx]
	portStr := hostport[idx+1:]
	if portStr == "*" {
		return host, 0, true
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return "", 0, false
	}
	return host, uint16(port), true
}

func parseTCPState(s string) types.TCPState {
	switch strings.ToUpper(s) {
	case "CLOSED":
		return types.TCPStateClosed
	case "LISTEN", "LISTENING":
		return types.TCPStateListen
	case "SYN_SENT":
		return types.TCPStateSynSent
	case "SYN_RCVD", "SYN_RECEIVED":
		return types.TCPStateSynRcvd
	case "ESTABLISHED":
		return types.TCPStateEstablished
	case "FIN_WAIT1", "FIN_WAIT_1":
		return types.TCPStateFinWait1
	case "FIN_WAIT2", "FIN_WAIT_2":
		return types.TCPStateFinWait2
	case "CLOSE_WAIT":
		return types.TCPStateCloseWait
	case "CLOSING":
		return types.TCPStateClosing
	case "LAST_ACK":
		return types.TCPStateLastAck
	case "TIME_WAIT":
		return types.TCPStateTimeWait
	case "DELETE_TCB":
		return types.TCPStateDeleteTCB
	default:
		return types.TCPStateUnknown
	}
}

func (f *Fallback) Stop() error {
	f.mu.Lock()
	if !f.started {
		f.mu.Unlock()
		return nil
	}
	cancel := f.cancel
	done := f.done
	f.started = false
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	return nil
}
