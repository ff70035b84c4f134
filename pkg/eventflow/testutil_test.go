package eventflow

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
)

// recorder collects listener invocations in order.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

// record returns a listener that appends name to r.
func record[T any](r *recorder, name string) Listener[T] {
	return Func(func(*Event[T]) { r.add(name) })
}

// quietBus creates a bus whose logs are discarded.
func quietBus(opts ...Option) *Bus {
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return New(opts...)
}

// logBuffer is a concurrency-safe sink for JSON log lines.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (l *logBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Write(p)
}

func (l *logBuffer) records() []map[string]any {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []map[string]any
	for _, line := range bytes.Split(l.buf.Bytes(), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(line, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

// withMessage returns the records whose msg equals msg.
func (l *logBuffer) withMessage(msg string) []map[string]any {
	var out []map[string]any
	for _, r := range l.records() {
		if r["msg"] == msg {
			out = append(out, r)
		}
	}
	return out
}

// newTestLogger returns a debug-level JSON logger writing to a logBuffer.
func newTestLogger() (*slog.Logger, *logBuffer) {
	buf := &logBuffer{}
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

// loopTarget is a Target whose parent link can point anywhere.
type loopTarget struct {
	name   string
	parent *loopTarget
}

func (t *loopTarget) ParentTarget() Target {
	if t.parent == nil {
		return nil
	}
	return t.parent
}

func (t *loopTarget) String() string {
	return t.name
}
