// Package anomaly implements the stateful anomaly detector of spec.md
// §4.3. All mutable state lives behind a single mutex, mirroring the
// teacher's serialized-state idiom (internal/escrow/kill_switch.go's
// RWMutex-guarded maps with lazy TTL eviction, and cmd/probe/main.go's
// IdentityCache).
//
// The source this was distilled from never evicts its four state maps.
// spec.md §4.3 and §9 require a bounded eviction policy; Detector adds
// one (TTL-by-last-seen sweep plus a hard entry cap), which is a design
// fix, not a faithful reproduction.
package anomaly

import (
	"strings"
	"sync"
	"time"

	"github.com/netsentinel/agent/internal/classify"
	"github.com/netsentinel/agent/internal/types"
)

var proxyPorts = map[uint16]struct{}{
	8080: {}, 8888: {}, 3128: {}, 1080: {}, 9050: {}, 9150: {},
}

var knownProxyApps = []string{
	"chrome", "firefox", "edge", "proxy", "squid", "nginx", "privoxy",
}

var standardSystemDirs = []string{
	"/usr/bin/", "/usr/sbin/", "/bin/", "/sbin/",
	"/usr/local/bin/", "/usr/local/sbin/", "/lib/", "/usr/lib/",
	`C:\Windows\`, `C:\Program Files\`, `C:\Program Files (x86)\`,
}

const ephemeralRangeStart = 49152

type listenerEntry struct {
	ports    map[uint16]struct{}
	lastSeen time.Time
}

type dnsPattern struct {
	queryCount    int
	failedCount   int
	uniqueDomains int
	lastSeen      time.Time
}

type connPattern struct {
	count       int
	uniquePorts map[uint16]struct{}
	firstSeen   time.Time
	lastSeen    time.Time
}

// Detector maintains the four sub-states described in spec.md §4.3
// behind one mutex.
type Detector struct {
	mu sync.Mutex

	listeners   map[int32]*listenerEntry
	dns         map[string]*dnsPattern
	connections map[string]*connPattern

	ttl      time.Duration
	maxState int
}

// New constructs a Detector. ttl and maxState bound the unbounded maps
// the source never evicted; a zero ttl defaults to 30 minutes and a
// zero maxState defaults to 10000 entries per map.
func New(ttl time.Duration, maxState int) *Detector {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if maxState <= 0 {
		maxState = 10000
	}
	return &Detector{
		listeners:   make(map[int32]*listenerEntry),
		dns:         make(map[string]*dnsPattern),
		connections: make(map[string]*connPattern),
		ttl:         ttl,
		maxState:    maxState,
	}
}

// Process evaluates one flow against all four sub-detectors and returns
// zero or more findings.
func (d *Detector) Process(f types.FlowEvent) []types.Anomaly {
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	var out []types.Anomaly

	if a := d.checkListener(f, now); a != nil {
		out = append(out, *a)
	}
	if a := d.checkLocalProxy(f, now); a != nil {
		out = append(out, *a)
	}
	if a := d.checkDNS(f, now); a != nil {
		out = append(out, *a)
	}
	if a := d.checkPortScan(f, now); a != nil {
		out = append(out, *a)
	}
	if a := d.checkLateral(f); a != nil {
		out = append(out, *a)
	}

	return out
}

func (d *Detector) checkListener(f types.FlowEvent, now time.Time) *types.Anomaly {
	if f.State == nil || *f.State != types.TCPStateListen || f.Direction != types.DirectionInbound {
		return nil
	}
	if f.Process == nil {
		return nil
	}

	entry := d.listeners[f.Process.PID]
	if entry == nil {
		entry = &listenerEntry{ports: make(map[uint16]struct{})}
		d.listeners[f.Process.PID] = entry
	}
	// A LISTEN socket's local bind port is carried in SrcPort; DstIP/Port
	// carry the unspecified remote address that made it classify Inbound.
	entry.lastSeen = now
	if _, seen := entry.ports[f.SrcPort]; seen {
		return nil
	}
	entry.ports[f.SrcPort] = struct{}{}
	d.evictListeners(now)

	privileged := f.SrcPort < 1024
	underStandardDir := underStandardDirs(f.Process.ExePath)
	unsigned := f.Process.Signed == nil || !*f.Process.Signed

	hidden := (privileged && !underStandardDir) || (unsigned && f.SrcPort < ephemeralRangeStart)
	if !hidden {
		return nil
	}

	return &types.Anomaly{
		Kind:        types.AnomalyHiddenListener,
		PID:         f.Process.PID,
		Port:        f.SrcPort,
		ProcessName: f.Process.Name,
	}
}

func (d *Detector) checkLocalProxy(f types.FlowEvent, now time.Time) *types.Anomaly {
	if f.State == nil || *f.State != types.TCPStateListen || f.Direction != types.DirectionInbound {
		return nil
	}
	if f.Process == nil {
		return nil
	}
	if _, isProxyPort := proxyPorts[f.SrcPort]; !isProxyPort {
		return nil
	}
	if isKnownProxyApp(f.Process.Name) {
		return nil
	}
	return &types.Anomaly{
		Kind:        types.AnomalyLocalProxy,
		PID:         f.Process.PID,
		Port:        f.SrcPort,
		ProcessName: f.Process.Name,
	}
}

func isKnownProxyApp(name string) bool {
	lower := strings.ToLower(name)
	for _, known := range knownProxyApps {
		if strings.Contains(lower, known) {
			return true
		}
	}
	return false
}

func underStandardDirs(exePath string) bool {
	for _, dir := range standardSystemDirs {
		if strings.HasPrefix(exePath, dir) {
			return true
		}
	}
	return false
}

func (d *Detector) checkDNS(f types.FlowEvent, now time.Time) *types.Anomaly {
	if f.DNSQName == "" {
		return nil
	}

	p := d.dns[f.DNSQName]
	if p == nil {
		p = &dnsPattern{uniqueDomains: 1}
		d.dns[f.DNSQName] = p
	}
	p.queryCount++
	p.lastSeen = now
	if f.DNSRCode != "" && f.DNSRCode != "NOERROR" {
		p.failedCount++
	}
	d.evictDNS(now)

	if p.queryCount > 10 && float64(p.failedCount)/float64(p.queryCount) > 0.8 {
		return &types.Anomaly{
			Kind:   types.AnomalySuspiciousDNS,
			Domain: f.DNSQName,
			Reason: "Excessive failed DNS queries",
		}
	}

	if reason, dga := dgaReason(f.DNSQName); dga {
		return &types.Anomaly{
			Kind:   types.AnomalySuspiciousDNS,
			Domain: f.DNSQName,
			Reason: reason,
		}
	}

	return nil
}

// dgaReason implements spec.md §4.3.2's leftmost-label heuristic for
// domain-generation-algorithm detection.
func dgaReason(qname string) (string, bool) {
	label := qname
	if idx := strings.IndexByte(qname, '.'); idx >= 0 {
		label = qname[:idx]
	}
	if len(label) <= 15 {
		return "", false
	}

	var vowels, digits int
	for _, r := range label {
		switch r {
		case 'a', 'e', 'i', 'o', 'u', 'A', 'E', 'I', 'O', 'U':
			vowels++
		case '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
			digits++
		}
	}

	n := len(label)
	if vowels*5 < n || digits*3 > n {
		return "Potential DGA-generated domain", true
	}
	return "", false
}

func (d *Detector) checkPortScan(f types.FlowEvent, now time.Time) *types.Anomaly {
	if f.SrcIP == "" || f.DstIP == "" {
		return nil
	}

	key := f.SrcIP + ":" + f.DstIP
	p := d.connections[key]
	if p == nil {
		p = &connPattern{uniquePorts: make(map[uint16]struct{}), firstSeen: now}
		d.connections[key] = p
	}
	if now.Sub(p.firstSeen) > 60*time.Second {
		p.firstSeen = now
		p.uniquePorts = make(map[uint16]struct{})
		p.count = 0
	}
	p.count++
	p.lastSeen = now
	p.uniquePorts[f.DstPort] = struct{}{}
	d.evictConnections(now)

	if len(p.uniquePorts) > 10 {
		return &types.Anomaly{
			Kind:      types.AnomalyPortScanning,
			SrcIP:     f.SrcIP,
			TargetIP:  f.DstIP,
			PortCount: len(p.uniquePorts),
		}
	}
	return nil
}

var lateralTags = map[classify.Tag]struct{}{
	classify.TagSMB:  {},
	classify.TagRDP:  {},
	classify.TagLDAP: {},
}

func (d *Detector) checkLateral(f types.FlowEvent) *types.Anomaly {
	if f.Direction != types.DirectionLateral {
		return nil
	}
	tag, ok := classify.Classify(f)
	if !ok {
		return nil
	}
	if _, lateral := lateralTags[tag]; !lateral {
		return nil
	}
	return &types.Anomaly{
		Kind:     types.AnomalyLateralMovement,
		SrcIP:    f.SrcIP,
		DstIP:    f.DstIP,
		Protocol: string(tag),
	}
}

func (d *Detector) evictListeners(now time.Time) {
	evictMap(d.listeners, d.maxState, now, d.ttl, func(e *listenerEntry) time.Time { return e.lastSeen })
}

func (d *Detector) evictDNS(now time.Time) {
	evictMap(d.dns, d.maxState, now, d.ttl, func(p *dnsPattern) time.Time { return p.lastSeen })
}

func (d *Detector) evictConnections(now time.Time) {
	evictMap(d.connections, d.maxState, now, d.ttl, func(p *connPattern) time.Time { return p.lastSeen })
}

// evictMap removes entries whose last-seen time exceeds ttl, and if the
// map is still over maxState afterward, drops the oldest entries until
// it fits. This is the bounded-eviction policy spec.md §4.3/§9 require
// in place of the source's unbounded maps.
func evictMap[K comparable, V any](m map[K]V, maxState int, now time.Time, ttl time.Duration, lastSeen func(V) time.Time) {
	for k, v := range m {
		if now.Sub(lastSeen(v)) > ttl {
			delete(m, k)
		}
	}
	if len(m) <= maxState {
		return
	}
	type kv struct {
		k K
		t time.Time
	}
	var entries []kv
	for k, v := range m {
		entries = append(entries, kv{k, lastSeen(v)})
	}
	for len(m) > maxState {
		oldestIdx := 0
		for i := range entries {
			if entries[i].t.Before(entries[oldestIdx].t) {
				oldestIdx = i
			}
		}
		delete(m, entries[oldestIdx].k)
		entries = append(entries[:oldestIdx], entries[oldestIdx+1:]...)
	}
}
