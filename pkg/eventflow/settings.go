package eventflow

import (
	"fmt"
	"log/slog"
	"os"

	"go.uber.org/multierr"

	"github.com/randalmurphal/eventflow/pkg/eventflow/config"
	"github.com/randalmurphal/eventflow/pkg/eventflow/observability"
)

// Config keys read by BusConfigFrom.
const (
	KeyMaxPathDepth     = "max_path_depth"
	KeyPatternMode      = "pattern_mode"
	KeyPatternCacheSize = "pattern_cache_size"
	KeyLogLevel         = "log_level"
	KeyMetrics          = "metrics"
	KeyTracing          = "tracing"
)

// EnvPrefix is the prefix for environment overrides applied by LoadBusConfig.
const EnvPrefix = "EVENTFLOW"

// BusConfigFrom builds a BusConfig from a config section. Missing keys keep
// their DefaultBusConfig values. Every invalid key is reported.
//
//	max_path_depth: 1024        # propagation path limit
//	pattern_mode: fallback      # fallback | always
//	pattern_cache_size: 256     # 0 disables the cache
//	log_level: info             # debug | info | warn | error; text logs on stderr
//	metrics: none               # none | otel | prometheus
//	tracing: false              # OpenTelemetry spans per emit/dispatch
func BusConfigFrom(c config.Config) (BusConfig, error) {
	out := DefaultBusConfig
	var err error

	out.MaxPathDepth = c.Int(KeyMaxPathDepth, out.MaxPathDepth)
	out.PatternCacheSize = c.Int(KeyPatternCacheSize, out.PatternCacheSize)

	mode, modeErr := ParsePatternMode(c.String(KeyPatternMode, out.PatternMode.String()))
	err = multierr.Append(err, modeErr)
	out.PatternMode = mode

	if c.Has(KeyLogLevel) {
		var level slog.Level
		if lvlErr := level.UnmarshalText([]byte(c.String(KeyLogLevel, ""))); lvlErr != nil {
			err = multierr.Append(err, fmt.Errorf("%w: log level: %v", ErrInvalidConfig, lvlErr))
		} else {
			out.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		}
	}

	switch backend := c.String(KeyMetrics, "none"); backend {
	case "none", "":
	case "otel":
		out.Metrics = observability.NewMetricsRecorder()
	case "prometheus":
		rec, promErr := observability.NewPrometheusRecorder(nil)
		if promErr != nil {
			err = multierr.Append(err, fmt.Errorf("%w: prometheus: %v", ErrInvalidConfig, promErr))
		} else {
			out.Metrics = rec
		}
	default:
		err = multierr.Append(err, fmt.Errorf("%w: unknown metrics backend %q", ErrInvalidConfig, backend))
	}

	if c.Bool(KeyTracing, false) {
		out.Spans = observability.NewSpanManager()
	}

	err = multierr.Append(err, out.Validate())
	if err != nil {
		return BusConfig{}, err
	}
	return out, nil
}

// LoadBusConfig reads a YAML or JSON file, applies EVENTFLOW_* environment
// overrides and builds a BusConfig from it.
func LoadBusConfig(path string) (BusConfig, error) {
	c, err := config.FromFile(path)
	if err != nil {
		return BusConfig{}, err
	}
	c = c.WithEnv(EnvPrefix,
		KeyMaxPathDepth, KeyPatternMode, KeyPatternCacheSize, KeyLogLevel, KeyMetrics, KeyTracing)
	return BusConfigFrom(c)
}
