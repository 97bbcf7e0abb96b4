package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FromFile reads a preference file and picks the parser from the file
// extension. Hosts typically keep one settings file per plugin next to
// the install; both YAML (.yaml, .yml) and JSON (.json) are accepted.
func FromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read settings file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FromYAML(data)
	case ".json":
		return FromJSON(data)
	default:
		return Config{}, fmt.Errorf("settings file %s: unsupported extension %q", filepath.Base(path), ext)
	}
}

// FromYAML parses YAML settings data.
func FromYAML(data []byte) (Config, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse yaml settings: %w", err)
	}
	return New(m), nil
}

// FromJSON parses JSON settings data.
func FromJSON(data []byte) (Config, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse json settings: %w", err)
	}
	return New(m), nil
}

// LoadSettings reads a preference file and wraps it in a Settings view
// ready to hand to a component. A missing file is an error; callers that
// treat preferences as optional should fall back to NewSettings(New(nil)).
func LoadSettings(path string) (*Settings, error) {
	cfg, err := FromFile(path)
	if err != nil {
		return nil, err
	}
	return NewSettings(cfg), nil
}
