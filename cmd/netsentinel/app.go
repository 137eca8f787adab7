package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/netsentinel/agent/internal/analyzer"
	"github.com/netsentinel/agent/internal/anomaly"
	"github.com/netsentinel/agent/internal/collector"
	"github.com/netsentinel/agent/internal/config"
	"github.com/netsentinel/agent/internal/eventbus"
	"github.com/netsentinel/agent/internal/metrics"
	"github.com/netsentinel/agent/internal/normalize"
	"github.com/netsentinel/agent/internal/pipeline"
	"github.com/netsentinel/agent/internal/policy"
	"github.com/netsentinel/agent/internal/rules"
	"github.com/netsentinel/agent/internal/store"
)

// runtime bundles every component buildPipeline wires together, so
// subcommands can shut each one down in the right order.
type runtime struct {
	pipeline *pipeline.Pipeline
	store    *store.Store
	bus      *eventbus.Bus
	promReg  *prometheus.Registry
}

func (r *runtime) Close() {
	r.bus.Close()
	if r.store != nil {
		r.store.Close()
	}
}

// buildPipeline assembles the full collector -> analyzer -> store/bus
// wiring from cfg, the same construction spec.md §2's data flow diagram
// names, shared by every subcommand that needs a live agent.
func buildPipeline(cfg *config.Config, openStore bool) (*runtime, error) {
	bus := eventbus.New()

	var st *store.Store
	if openStore {
		key, err := store.LoadOrCreateKeyFile(cfg.Store.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("loading store key: %w", err)
		}
		st, err = store.Open(cfg.Store.Path, key)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
	}

	loadedRules, err := rules.LoadFile(cfg.Rules.File)
	if err != nil {
		return nil, fmt.Errorf("loading rule file: %w", err)
	}

	coll := collector.NewFromVariant(
		cfg.Collector.Variant,
		cfg.Collector.TickIntervalDuration(),
		cfg.Anomaly.StateTTL(),
		cfg.Collector.ObjectPath,
		cfg.Collector.Iface,
	)
	detector := anomaly.New(cfg.Anomaly.StateTTL(), cfg.Anomaly.MaxTrackedEntries)
	engine := rules.NewEngine(loadedRules)
	an := analyzer.New(normalize.New(0), engine, 60)
	promReg := prometheus.NewRegistry()
	reg := metrics.New(promReg)
	backend := platformBackend(cfg)

	p := pipeline.New(coll, detector, an, bus, st, backend, reg)
	return &runtime{pipeline: p, store: st, bus: bus, promReg: promReg}, nil
}

func platformBackend(cfg *config.Config) policy.Backend {
	if cfg.Policy.Backend == "noop" {
		return policy.NewNoopBackend()
	}
	return policy.NewPlatformBackend()
}
