package eventflow

import (
	"fmt"
	"log/slog"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/randalmurphal/eventflow/pkg/eventflow/observability"
)

// PatternMode decides when pattern listeners join a flat emit.
type PatternMode int

const (
	// PatternFallback evaluates pattern listeners only for event types that
	// have no exact flat registration.
	PatternFallback PatternMode = iota
	// PatternAlways evaluates pattern listeners for every emit and merges
	// them with the exact listeners by priority.
	PatternAlways
)

// String returns the mode name used in config files.
func (m PatternMode) String() string {
	switch m {
	case PatternFallback:
		return "fallback"
	case PatternAlways:
		return "always"
	default:
		return fmt.Sprintf("PatternMode(%d)", int(m))
	}
}

// ParsePatternMode parses "fallback" or "always".
func ParsePatternMode(s string) (PatternMode, error) {
	switch s {
	case "fallback", "":
		return PatternFallback, nil
	case "always":
		return PatternAlways, nil
	default:
		return 0, fmt.Errorf("%w: unknown pattern mode %q", ErrInvalidConfig, s)
	}
}

// BusConfig configures a Bus.
type BusConfig struct {
	// Logger receives listener failures and lifecycle debug logs.
	// Default: slog.Default()
	Logger *slog.Logger

	// Metrics records emit, dispatch and failure metrics.
	// Default: observability.NoopMetrics{}
	Metrics observability.MetricsRecorder

	// Spans creates a span per emit and dispatch.
	// Default: observability.NoopSpanManager{}
	Spans observability.SpanManager

	// Clock stamps events created by Emit and times dispatches.
	// Default: the wall clock
	Clock clock.Clock

	// MaxPathDepth bounds the number of targets on a propagation path.
	// Default: 1024
	MaxPathDepth int

	// PatternMode decides when pattern listeners join a flat emit.
	// Default: PatternFallback
	PatternMode PatternMode

	// PatternCacheSize is the number of event types whose pattern matches
	// are cached. 0 disables the cache.
	// Default: 256
	PatternCacheSize int

	// OnListenerError is called after a listener failure has been logged.
	OnListenerError func(err *ListenerError)
}

// DefaultBusConfig provides reasonable defaults.
var DefaultBusConfig = BusConfig{
	MaxPathDepth:     1024,
	PatternMode:      PatternFallback,
	PatternCacheSize: 256,
}

// Validate reports every invalid field at once.
func (c BusConfig) Validate() error {
	var err error
	if c.MaxPathDepth < 0 {
		err = multierr.Append(err, fmt.Errorf("%w: max path depth %d is negative", ErrInvalidConfig, c.MaxPathDepth))
	}
	if c.PatternCacheSize < 0 {
		err = multierr.Append(err, fmt.Errorf("%w: pattern cache size %d is negative", ErrInvalidConfig, c.PatternCacheSize))
	}
	if c.PatternMode != PatternFallback && c.PatternMode != PatternAlways {
		err = multierr.Append(err, fmt.Errorf("%w: unknown pattern mode %d", ErrInvalidConfig, int(c.PatternMode)))
	}
	return err
}

// withDefaults fills unset fields from DefaultBusConfig.
func (c BusConfig) withDefaults() BusConfig {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Metrics == nil {
		c.Metrics = observability.NoopMetrics{}
	}
	if c.Spans == nil {
		c.Spans = observability.NoopSpanManager{}
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.MaxPathDepth <= 0 {
		c.MaxPathDepth = DefaultBusConfig.MaxPathDepth
	}
	if c.PatternCacheSize < 0 {
		c.PatternCacheSize = 0
	}
	return c
}

// Option configures a Bus created with New.
type Option func(*BusConfig)

// WithLogger sets the bus logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *BusConfig) {
		c.Logger = logger
	}
}

// WithMetrics sets the metrics recorder.
//
// Example:
//
//	bus := eventflow.New(eventflow.WithMetrics(observability.NewMetricsRecorder()))
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(c *BusConfig) {
		c.Metrics = m
	}
}

// WithSpans sets the span manager.
func WithSpans(s observability.SpanManager) Option {
	return func(c *BusConfig) {
		c.Spans = s
	}
}

// WithClock sets the clock used for event timestamps and latency.
func WithClock(clk clock.Clock) Option {
	return func(c *BusConfig) {
		c.Clock = clk
	}
}

// WithMaxPathDepth bounds propagation paths. Values below 1 are ignored.
func WithMaxPathDepth(n int) Option {
	return func(c *BusConfig) {
		if n > 0 {
			c.MaxPathDepth = n
		}
	}
}

// WithPatternMode sets when pattern listeners join a flat emit.
func WithPatternMode(m PatternMode) Option {
	return func(c *BusConfig) {
		c.PatternMode = m
	}
}

// WithPatternCacheSize sets the pattern match cache size. 0 disables it.
func WithPatternCacheSize(n int) Option {
	return func(c *BusConfig) {
		c.PatternCacheSize = n
	}
}

// WithListenerErrorHandler sets a callback for listener failures.
func WithListenerErrorHandler(fn func(*ListenerError)) Option {
	return func(c *BusConfig) {
		c.OnListenerError = fn
	}
}

// listenerConfig holds per-registration settings.
type listenerConfig struct {
	priority int64
	capture  bool
	tags     []string
	target   Target
	owner    any
	hasOwner bool
}

// ListenerOption configures a listener registration.
type ListenerOption func(*listenerConfig)

// WithPriority sets the listener priority. Higher runs first; equal
// priorities run in registration order. Default: 0
func WithPriority(p int64) ListenerOption {
	return func(c *listenerConfig) {
		c.priority = p
	}
}

// WithCapture registers the listener for the capturing phase. Capture
// listeners run during hierarchical dispatch only; flat emits skip them.
func WithCapture() ListenerOption {
	return func(c *listenerConfig) {
		c.capture = true
	}
}

// WithListenerTags attaches descriptive tags to the registration. They are
// reported by Bus.Listeners and do not affect matching.
func WithListenerTags(tags ...string) ListenerOption {
	return func(c *listenerConfig) {
		c.tags = append(c.tags, tags...)
	}
}

// WithTarget scopes the registration to a node of a propagation hierarchy.
// The registry holds target strongly until the registration is removed.
func WithTarget(t Target) ListenerOption {
	return func(c *listenerConfig) {
		c.target = t
	}
}

// WithOwner records the subscription under owner in the bus' auto-dispose
// registry so Bus.DisposeAll(owner) releases it.
func WithOwner(owner any) ListenerOption {
	return func(c *listenerConfig) {
		c.owner = owner
		c.hasOwner = true
	}
}

func buildListenerConfig(opts []ListenerOption) listenerConfig {
	var c listenerConfig
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
