// Package signal provides reactive value cells for eventflow.
//
// A Signal holds the latest value of something and tells subscribers when
// it changes. FromEvent keeps a Signal in sync with the payload of an event
// type, so state derived from events can be read at any time without
// registering another listener.
//
// Common use cases:
//   - Latest connection status
//   - Current selection in a UI tree
//   - Progress of a long-running job
package signal

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/randalmurphal/eventflow/pkg/eventflow"
)

// Signal is a value cell that notifies subscribers on every change.
// It is safe for concurrent use. Subscribers run on the goroutine that
// changed the value, after the cell's lock is released; under concurrent
// writers they may observe values out of order, so call Get for the latest.
type Signal[T any] struct {
	id     string
	equal  func(a, b T) bool
	logger *slog.Logger

	mu      sync.RWMutex
	value   T
	version uint64
	subs    map[uint64]func(T)
	nextSub uint64
}

// Option configures a Signal.
type Option[T any] func(*Signal[T])

// WithEqual suppresses writes that equal the current value.
func WithEqual[T any](equal func(a, b T) bool) Option[T] {
	return func(s *Signal[T]) {
		s.equal = equal
	}
}

// WithLogger sets the logger that receives subscriber panics.
// Default: slog.Default()
func WithLogger[T any](logger *slog.Logger) Option[T] {
	return func(s *Signal[T]) {
		s.logger = logger
	}
}

// New creates a signal holding initial. Without WithEqual every Set counts
// as a change.
func New[T any](initial T, opts ...Option[T]) *Signal[T] {
	s := &Signal[T]{
		id:    fmt.Sprintf("sig-%s", uuid.New().String()[:8]),
		value: initial,
		subs:  make(map[uint64]func(T)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// NewComparable creates a signal that ignores writes of the current value.
func NewComparable[T comparable](initial T, opts ...Option[T]) *Signal[T] {
	opts = append([]Option[T]{WithEqual(func(a, b T) bool { return a == b })}, opts...)
	return New(initial, opts...)
}

// ID returns the signal's unique identifier.
func (s *Signal[T]) ID() string {
	return s.id
}

// Get returns the current value.
func (s *Signal[T]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Version returns how many changes the signal has seen.
func (s *Signal[T]) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Set stores v and notifies subscribers. It reports whether the value changed.
func (s *Signal[T]) Set(v T) bool {
	return s.Update(func(T) T { return v })
}

// Update replaces the value with fn(current) atomically with respect to
// other writers. fn runs under the signal's lock and must not call back
// into the signal.
func (s *Signal[T]) Update(fn func(current T) T) bool {
	s.mu.Lock()
	next := fn(s.value)
	if s.equal != nil && s.equal(s.value, next) {
		s.mu.Unlock()
		return false
	}
	s.value = next
	s.version++
	subs := s.snapshot()
	s.mu.Unlock()

	for _, fn := range subs {
		s.notify(fn, next)
	}
	return true
}

// Subscribe calls fn with every new value until cancel is called.
// Subscribers run in subscription order.
func (s *Signal[T]) Subscribe(fn func(value T)) (cancel func()) {
	if fn == nil {
		panic("signal: subscriber cannot be nil")
	}
	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Subscribers returns the number of active subscribers.
func (s *Signal[T]) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// snapshot returns subscribers in subscription order. Caller must hold s.mu.
func (s *Signal[T]) snapshot() []func(T) {
	if len(s.subs) == 0 {
		return nil
	}
	ids := make([]uint64, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]func(T), len(ids))
	for i, id := range ids {
		out[i] = s.subs[id]
	}
	return out
}

func (s *Signal[T]) notify(fn func(T), v T) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("signal subscriber panicked",
				slog.String("signal_id", s.id),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	fn(v)
}

// Binding keeps a Signal in sync with the payload of one event type.
type Binding[T any] struct {
	signal *Signal[T]
	sub    *eventflow.Subscription
}

// FromEvent creates a signal holding initial and sets it to the payload of
// every flat emit of eventType on b. Listener options such as WithPriority
// or WithOwner apply to the underlying registration.
//
// Example:
//
//	status := signal.FromEvent(bus, "conn.status", "offline")
//	defer status.Close()
//	cancel := status.Signal().Subscribe(func(s string) { log.Println("status:", s) })
//	defer cancel()
func FromEvent[T any](b *eventflow.Bus, eventType string, initial T, opts ...eventflow.ListenerOption) *Binding[T] {
	s := New(initial)
	sub := eventflow.On(b, eventType, eventflow.Func(func(evt *eventflow.Event[T]) {
		s.Set(evt.Payload())
	}), opts...)
	return &Binding[T]{signal: s, sub: sub}
}

// Signal returns the bound signal. It keeps its last value after Dispose.
func (b *Binding[T]) Signal() *Signal[T] {
	return b.signal
}

// Get returns the latest payload.
func (b *Binding[T]) Get() T {
	return b.signal.Get()
}

// Subscription returns the event registration feeding the signal.
func (b *Binding[T]) Subscription() *eventflow.Subscription {
	return b.sub
}

// Dispose stops following the event type.
func (b *Binding[T]) Dispose() {
	b.sub.Unsubscribe()
}

// Close calls Dispose. It always returns nil.
func (b *Binding[T]) Close() error {
	b.Dispose()
	return nil
}
