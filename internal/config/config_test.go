package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.NoError(t, err)
	require.Equal(t, "mock", cfg.Collector.Variant)
	require.Equal(t, 256, cfg.Bus.Capacity)
}

func TestLoadParsesTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `
[server]
listen = "0.0.0.0:9000"

[collector]
variant = "linux"
tick_interval_sec = 5

[store]
path = "/var/lib/nets/events.db"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9000", cfg.Server.Listen)
	require.Equal(t, "linux", cfg.Collector.Variant)
	require.Equal(t, 5*time.Second, cfg.Collector.TickIntervalDuration())
	require.Equal(t, "/var/lib/nets/events.db", cfg.Store.Path)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("NETS_COLLECTOR_VARIANT", "fallback")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	require.Equal(t, "fallback", cfg.Collector.Variant)
}
