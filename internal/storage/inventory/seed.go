package inventory

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadSeed reads a YAML mapping of item name to quantity, e.g.
//
//	milk: 2
//	rice: 1
func LoadSeed(path string) (map[string]int64, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the command line
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var items map[string]int64
	if err := yaml.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	if items == nil {
		items = map[string]int64{}
	}
	return items, nil
}
