// Package config loads netsentinel's TOML configuration with environment
// variable overrides, following the nested-struct-tree shape the teacher
// backend uses for its own YAML configuration (internal/config/config.go
// upstream), re-keyed here to this agent's domain sections.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the root configuration tree loaded from --config (default
// ./config/config.toml).
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Collector CollectorConfig `toml:"collector"`
	Anomaly   AnomalyConfig   `toml:"anomaly"`
	Rules     RulesConfig     `toml:"rules"`
	Store     StoreConfig     `toml:"store"`
	Bus       BusConfig       `toml:"bus"`
	Policy    PolicyConfig    `toml:"policy"`
}

// ServerConfig controls the health/metrics/ws HTTP surface. Only Listen
// is read: metrics are always served at /metrics, and the server is
// closed immediately on shutdown, so MetricsPath and ShutdownTimeout
// have no effect.
type ServerConfig struct {
	Listen          string `toml:"listen"`
	MetricsPath     string `toml:"metrics_path"`
	ShutdownTimeout int    `toml:"shutdown_timeout_sec"`
}

// CollectorConfig controls the platform collector variant.
type CollectorConfig struct {
	Variant      string `toml:"variant"` // "linux", "windows", "fallback", "mock"
	TickInterval int    `toml:"tick_interval_sec"`

	// ObjectPath and Iface are only consulted by the "linux" variant: the
	// compiled eBPF object file to load and the interface to attach its
	// XDP program to.
	ObjectPath string `toml:"ebpf_object_path"`
	Iface      string `toml:"iface"`
}

// AnomalyConfig bounds the anomaly detector's in-memory state.
type AnomalyConfig struct {
	StateTTLMinutes   int `toml:"state_ttl_minutes"`
	MaxTrackedEntries int `toml:"max_tracked_entries"`
}

// RulesConfig points at the YAML rule file.
type RulesConfig struct {
	File string `toml:"file"`
}

// StoreConfig controls the encrypted SQLite store.
type StoreConfig struct {
	Path    string `toml:"path"`
	KeyPath string `toml:"key_path"`
}

// BusConfig holds the broadcast event bus setting. Capacity is loaded but
// not read; the bus always uses the fixed eventbus.Capacity.
type BusConfig struct {
	Capacity int `toml:"capacity"`
}

// PolicyConfig selects the quarantine backend ("noop" picks the no-op
// backend, any other value the platform backend). DefaultExpirySecs is
// loaded but not read; policy.RecommendQuarantine always uses 600 seconds.
type PolicyConfig struct {
	Backend           string `toml:"backend"` // "noop", "netsh"
	DefaultExpirySecs int    `toml:"default_expiry_seconds"`
}

// TickIntervalDuration returns the collector tick as a time.Duration, applying
// the spec's 2s default when unset.
func (c CollectorConfig) TickIntervalDuration() time.Duration {
	if c.TickInterval <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.TickInterval) * time.Second
}

// StateTTL returns the anomaly state eviction TTL, defaulting to 30
// minutes per spec.md §4.3's required bounded-eviction note.
func (c AnomalyConfig) StateTTL() time.Duration {
	if c.StateTTLMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.StateTTLMinutes) * time.Minute
}

// Default returns the built-in defaults used when no config file exists.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:          "127.0.0.1:8765",
			MetricsPath:     "/metrics",
			ShutdownTimeout: 5,
		},
		Collector: CollectorConfig{
			Variant:      "mock",
			TickInterval: 2,
		},
		Anomaly: AnomalyConfig{
			StateTTLMinutes:   30,
			MaxTrackedEntries: 10000,
		},
		Rules: RulesConfig{
			File: "./config/rules.yaml",
		},
		Store: StoreConfig{
			Path:    "./nets.db",
			KeyPath: "./key.bin",
		},
		Bus: BusConfig{
			Capacity: 256,
		},
		Policy: PolicyConfig{
			Backend:           "noop",
			DefaultExpirySecs: 600,
		},
	}
}

// Load reads the TOML file at path, falling back to Default() when the
// file does not exist, then applies NETS_-prefixed environment
// overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: stat %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides lets deployment environments (service units,
// containers) override the handful of settings that commonly vary
// without editing the TOML file on disk.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NETS_SERVER_LISTEN"); v != "" {
		cfg.Server.Listen = v
	}
	if v := os.Getenv("NETS_COLLECTOR_VARIANT"); v != "" {
		cfg.Collector.Variant = v
	}
	if v := os.Getenv("NETS_COLLECTOR_TICK_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Collector.TickInterval = n
		}
	}
	if v := os.Getenv("NETS_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("NETS_STORE_KEY_PATH"); v != "" {
		cfg.Store.KeyPath = v
	}
	if v := os.Getenv("NETS_RULES_FILE"); v != "" {
		cfg.Rules.File = v
	}
	if v := os.Getenv("NETS_POLICY_BACKEND"); v != "" {
		cfg.Policy.Backend = strings.ToLower(v)
	}
}
