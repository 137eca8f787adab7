package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/netsentinel/agent/internal/types"
)

// LoadFile reads a YAML sequence of rule objects from path, per spec.md
// §6's rule file format.
func LoadFile(path string) ([]types.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rules: read %s: %w", path, err)
	}

	var loaded []types.Rule
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("rules: parse %s: %w", path, err)
	}

	LogParseFailures(loaded)
	return loaded, nil
}
