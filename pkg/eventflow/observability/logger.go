// Package observability provides logging, metrics and tracing for eventflow:
// structured logging through slog, metrics through OpenTelemetry or
// Prometheus, and tracing through OpenTelemetry.
//
// Every feature is opt-in and has a no-op implementation.
package observability

import (
	"context"
	"log/slog"

	"github.com/benbjohnson/clock"
)

// EnrichLogger adds event context to a logger.
//
// Example:
//
//	enriched := EnrichLogger(logger, "user.created", evt.ID())
//	enriched.Info("handling") // includes event_type, event_id
func EnrichLogger(logger *slog.Logger, eventType, eventID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("event_type", eventType),
		slog.String("event_id", eventID),
	)
}

// LogListenerFailure logs an error or panic raised by a listener.
// Panics are logged at error level, returned errors at warn level.
func LogListenerFailure(logger *slog.Logger, eventType string, listenerID uint64, phase string, err error, panicked bool) {
	if logger == nil {
		return
	}
	level := slog.LevelWarn
	msg := "listener failed"
	if panicked {
		level = slog.LevelError
		msg = "listener panicked"
	}
	logger.LogAttrs(context.Background(), level, msg,
		slog.String("event_type", eventType),
		slog.Uint64("listener_id", listenerID),
		slog.String("phase", phase),
		slog.String("error", err.Error()),
	)
}

// LogPropagationCycle logs a dispatch rejected because the target's
// ancestry loops back on itself.
func LogPropagationCycle(logger *slog.Logger, eventType string, depth int, err error) {
	if logger == nil {
		return
	}
	logger.Error("dispatch aborted",
		slog.String("event_type", eventType),
		slog.Int("depth", depth),
		slog.String("error", err.Error()),
	)
}

// LogDispatchComplete logs the end of a hierarchical dispatch.
func LogDispatchComplete(logger *slog.Logger, eventType string, pathLen int, durationMs float64, prevented bool) {
	if logger == nil {
		return
	}
	logger.Debug("dispatch completed",
		slog.String("event_type", eventType),
		slog.Int("path_len", pathLen),
		slog.Float64("duration_ms", durationMs),
		slog.Bool("default_prevented", prevented),
	)
}

// LogSubscribe logs a new listener registration.
func LogSubscribe(logger *slog.Logger, key string, listenerID uint64, priority int64, capture bool) {
	if logger == nil {
		return
	}
	logger.Debug("listener registered",
		slog.String("key", key),
		slog.Uint64("listener_id", listenerID),
		slog.Int64("priority", priority),
		slog.Bool("capture", capture),
	)
}

// LogUnsubscribe logs removal of one or more registrations.
func LogUnsubscribe(logger *slog.Logger, key string, removed int) {
	if logger == nil || removed == 0 {
		return
	}
	logger.Debug("listeners removed",
		slog.String("key", key),
		slog.Int("removed", removed),
	)
}

// LogDisposeAll logs bulk release of an owner's subscriptions.
func LogDisposeAll(logger *slog.Logger, released int) {
	if logger == nil {
		return
	}
	logger.Debug("owner disposed",
		slog.Int("released", released),
	)
}

// TimedOperation measures the duration of an operation against clk.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation(clock.New())
//	// ... do work ...
//	durationMs := done()
func TimedOperation(clk clock.Clock) func() float64 {
	if clk == nil {
		clk = clock.New()
	}
	start := clk.Now()
	return func() float64 {
		return float64(clk.Since(start).Microseconds()) / 1000
	}
}
