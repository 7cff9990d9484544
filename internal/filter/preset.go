package filter

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ParsePreset decodes a YAML (or JSON) filter preset.
func ParsePreset(data []byte) (Spec, error) {
	var s Spec
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Spec{}, fmt.Errorf("filter: parse preset: %w", err)
	}
	return s, nil
}

// LoadPreset reads a filter preset file.
func LoadPreset(path string) (Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Spec{}, fmt.Errorf("filter: read preset: %w", err)
	}
	return ParsePreset(data)
}

// MarshalPreset renders s as YAML.
func MarshalPreset(s Spec) ([]byte, error) {
	return yaml.Marshal(s)
}
