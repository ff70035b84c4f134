/*
Package config provides type-safe configuration extraction from map[string]any.

# Overview

Config wraps a map[string]any and provides typed accessors that return a
default when a key is missing or its value cannot be converted. It is how
eventflow reads bus settings from YAML or JSON files:

	cfg, err := config.FromFile("eventflow.yaml")
	if err != nil {
	    return err
	}
	busCfg, err := eventflow.BusConfigFrom(cfg.Sub("bus"))

# Type Coercion

Every accessor accepts the natural Go type and a string form:
  - Duration: time.Duration, "30s", or seconds as int/float/string
  - Int, Int64: int, int64, whole float64, or a decimal string
  - Bool: bool or anything strconv.ParseBool accepts
  - StringSlice: []string, []any of strings, or a comma-separated string

# Environment Overrides

WithEnv layers environment variables over selected keys:

	cfg = cfg.WithEnv("EVENTFLOW", "max_path_depth", "log_level")

# Thread Safety

Config is safe for concurrent reads. WithEnv returns a new Config and
never modifies the receiver.
*/
package config
