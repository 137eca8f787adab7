// Package pipeline wires the collector, anomaly detector, analyzer,
// store, event bus, metrics, and policy backend into the single data
// flow spec.md §2 describes: Collector -> (enrich with Classifier and
// Anomaly Detector) -> Event Bus -> {Normalizer -> Rule Engine -> Alerts
// -> Event Bus; Store.put_flow; Store.put_alert}. Grounded on the
// teacher's cmd/probe/main.go ingestion loop, which wires its collector
// straight into IdentityCache enrichment and a fan-out channel the same
// way.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/netsentinel/agent/internal/analyzer"
	"github.com/netsentinel/agent/internal/anomaly"
	"github.com/netsentinel/agent/internal/collector"
	"github.com/netsentinel/agent/internal/eventbus"
	"github.com/netsentinel/agent/internal/metrics"
	"github.com/netsentinel/agent/internal/policy"
	"github.com/netsentinel/agent/internal/store"
	"github.com/netsentinel/agent/internal/types"
)

// anomalyRiskScore is the fixed risk score (paired with level
// types.RiskMedium) spec.md §4.3 requires the collector's outgoing event
// to carry whenever any anomaly fires for that flow.
const anomalyRiskScore = 75

// Pipeline owns the wiring between every stage but no platform-specific
// logic of its own; Collector and Backend are both injected so the same
// Pipeline runs unmodified against the mock collector in tests and the
// real platform variant in production.
type Pipeline struct {
	coll     collector.Collector
	detector *anomaly.Detector
	analyzer *analyzer.Analyzer
	bus      *eventbus.Bus
	st       *store.Store
	backend  policy.Backend
	metrics  *metrics.Registry

	startedAt time.Time

	statusMu sync.Mutex
	status   types.DaemonStatus
}

// New builds a Pipeline. st and backend may be nil: a nil store skips
// persistence (useful for a dry-run/tui-only mode) and a nil backend
// falls back to policy.NewNoopBackend.
func New(
	coll collector.Collector,
	detector *anomaly.Detector,
	an *analyzer.Analyzer,
	bus *eventbus.Bus,
	st *store.Store,
	backend policy.Backend,
	reg *metrics.Registry,
) *Pipeline {
	if backend == nil {
		backend = policy.NewNoopBackend()
	}
	return &Pipeline{
		coll:     coll,
		detector: detector,
		analyzer: an,
		bus:      bus,
		st:       st,
		backend:  backend,
		metrics:  reg,
	}
}

// Run subscribes to the collector and starts it; it blocks until ctx is
// canceled, then stops the collector and returns.
func (p *Pipeline) Run(ctx context.Context) error {
	p.startedAt = time.Now()
	unsubscribe := p.coll.Subscribe(p.handle)
	defer unsubscribe()

	if err := p.coll.Start(ctx); err != nil {
		return fmt.Errorf("pipeline: start collector: %w", err)
	}
	defer p.coll.Stop()

	go p.heartbeat(ctx)

	<-ctx.Done()
	return p.coll.Stop()
}

// heartbeat publishes a DaemonStatus snapshot on the bus periodically, so
// a connected shell can show liveness without polling flows or alerts.
func (p *Pipeline) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.bus.PublishStatus(p.Status())
		}
	}
}

// handle is the collector.Handler driving every downstream stage for one
// FlowEvent.
func (p *Pipeline) handle(f types.FlowEvent) {
	if p.metrics != nil {
		p.metrics.FlowsProcessed.Inc()
	}
	p.statusMu.Lock()
	p.status.FlowsProcessed++
	p.statusMu.Unlock()

	anomalies := p.detector.Process(f)
	if len(anomalies) > 0 {
		f.Risk = &types.FlowRisk{
			Score:     anomalyRiskScore,
			Level:     types.RiskMedium,
			RuleID:    "anomaly",
			Rationale: describeAnomalies(anomalies),
		}
		if p.metrics != nil {
			for _, a := range anomalies {
				p.metrics.AnomaliesFound.WithLabelValues(string(a.Kind)).Inc()
			}
		}
	}

	p.bus.PublishFlow(f)

	if p.st != nil {
		if err := p.st.PutFlow(f); err != nil {
			slog.Error("pipeline: persist flow failed", "error", err)
			if p.metrics != nil {
				p.metrics.StoreErrors.Inc()
			}
			p.statusMu.Lock()
			p.status.Errors++
			p.statusMu.Unlock()
		}
	}

	for _, alert := range p.analyzer.Ingest(f) {
		p.dispatchAlert(alert, f)
	}
}

func (p *Pipeline) dispatchAlert(alert types.Alert, flow types.FlowEvent) {
	p.statusMu.Lock()
	p.status.AlertsRaised++
	p.statusMu.Unlock()
	if p.metrics != nil {
		p.metrics.AlertsRaised.WithLabelValues(string(alert.Severity)).Inc()
	}

	p.bus.PublishAlert(alert)

	if p.st != nil {
		if err := p.st.PutAlert(alert); err != nil {
			slog.Error("pipeline: persist alert failed", "error", err)
			if p.metrics != nil {
				p.metrics.StoreErrors.Inc()
			}
			p.statusMu.Lock()
			p.status.Errors++
			p.statusMu.Unlock()
		}
	}

	decision := policy.RecommendQuarantine(alert, flow)
	if decision == nil {
		return
	}
	if err := policy.ValidateDecision(*decision); err != nil {
		slog.Warn("pipeline: quarantine decision rejected", "error", err)
		return
	}

	if _, err := p.backend.Apply(flow, *decision); err != nil {
		slog.Error("pipeline: quarantine apply failed", "alert_id", alert.ID, "error", err)
		return
	}
	if p.metrics != nil {
		p.metrics.QuarantineApplied.Inc()
	}
}

// Status returns a snapshot of the running daemon's counters, suitable
// for a periodic eventbus.PublishStatus heartbeat.
func (p *Pipeline) Status() types.DaemonStatus {
	p.statusMu.Lock()
	s := p.status
	p.statusMu.Unlock()
	s.StartedAt = p.startedAt
	return s
}

func describeAnomalies(anomalies []types.Anomaly) []string {
	out := make([]string, 0, len(anomalies))
	for _, a := range anomalies {
		out = append(out, describeAnomaly(a))
	}
	return out
}

func describeAnomaly(a types.Anomaly) string {
	switch a.Kind {
	case types.AnomalyHiddenListener:
		return fmt.Sprintf("HiddenListener: pid %d listening on port %d (%s)", a.PID, a.Port, a.ProcessName)
	case types.AnomalyLocalProxy:
		return fmt.Sprintf("LocalProxy: pid %d listening on proxy port %d (%s)", a.PID, a.Port, a.ProcessName)
	case types.AnomalyPortScanning:
		return fmt.Sprintf("PortScanning: %s probed %d ports on %s", a.SrcIP, a.PortCount, a.TargetIP)
	case types.AnomalyLateralMovement:
		return fmt.Sprintf("LateralMovement: %s -> %s over %s", a.SrcIP, a.DstIP, a.Protocol)
	case types.AnomalySuspiciousDNS:
		return fmt.Sprintf("SuspiciousDns: %s (%s)", a.Domain, a.Reason)
	case types.AnomalyArpSpoofing:
		return fmt.Sprintf("ArpSpoofing: %s %s -> %s", a.IP, a.OldMAC, a.NewMAC)
	case types.AnomalyUnexpectedMulticast:
		return fmt.Sprintf("UnexpectedMulticast: %s via %s", a.DstIP, a.Protocol)
	case types.AnomalyUnexpectedP2P:
		return "UnexpectedP2P"
	default:
		return strings.TrimSpace(string(a.Kind))
	}
}
