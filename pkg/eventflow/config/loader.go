package config

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FromFile loads configuration from a file, auto-detecting format by extension.
// Supported extensions: .yaml, .yml, .json
func FromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FromYAML(data)
	case ".json":
		return FromJSON(data)
	default:
		return Config{}, fmt.Errorf("unsupported config file extension: %s", ext)
	}
}

// FromYAML parses YAML data into a Config.
func FromYAML(data []byte) (Config, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	return New(m), nil
}

// FromJSON parses JSON data into a Config.
func FromJSON(data []byte) (Config, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse json: %w", err)
	}
	return New(m), nil
}

// WithEnv returns a copy of c in which each key listed in keys is replaced
// by the environment variable PREFIX_KEY (upper-cased) when it is set.
//
// Example:
//
//	// EVENTFLOW_MAX_PATH_DEPTH=64 overrides max_path_depth
//	cfg = cfg.WithEnv("EVENTFLOW", "max_path_depth", "pattern_mode")
func (c Config) WithEnv(prefix string, keys ...string) Config {
	return c.withLookup(prefix, keys, os.LookupEnv)
}

func (c Config) withLookup(prefix string, keys []string, lookup func(string) (string, bool)) Config {
	out := maps.Clone(c.data)
	if out == nil {
		out = make(map[string]any)
	}
	for _, key := range keys {
		name := strings.ToUpper(key)
		if prefix != "" {
			name = strings.ToUpper(prefix) + "_" + name
		}
		if v, ok := lookup(name); ok {
			out[key] = v
		}
	}
	return New(out)
}
