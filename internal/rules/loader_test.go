package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	contents := `
- id: smb-lateral
  severity: High
  expression: "dst.port == 445"
- id: broken
  severity: Low
  expression: "not a valid triple"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	require.Equal(t, "smb-lateral", loaded[0].ID)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
