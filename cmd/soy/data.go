package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// readData decodes a YAML (or JSON) mapping used as template data. An
// empty path yields no data.
func readData(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read data file: %w", err)
	}

	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse data file %s: %w", path, err)
	}
	if doc == nil {
		return nil, nil
	}
	data, ok := normalizeYAML(doc).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("data file %s must contain a mapping, got %T", path, doc)
	}
	return data, nil
}

// normalizeYAML turns mappings with non-string keys into string keyed
// maps so the result converts cleanly into template values.
func normalizeYAML(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, item := range x {
			x[k] = normalizeYAML(item)
		}
		return x
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, item := range x {
			m[fmt.Sprint(k)] = normalizeYAML(item)
		}
		return m
	case []any:
		for i, item := range x {
			x[i] = normalizeYAML(item)
		}
		return x
	}
	return v
}
