package eventflow

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Phase identifies where an event is in its propagation.
type Phase int

const (
	// PhaseNone means the event is not being dispatched.
	PhaseNone Phase = iota
	// PhaseCapturing runs capture listeners from the root down to the target's parent.
	PhaseCapturing
	// PhaseAtTarget runs the target's own listeners, capture group first.
	PhaseAtTarget
	// PhaseBubbling runs bubble listeners from the target's parent up to the root.
	PhaseBubbling
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseNone:
		return "NONE"
	case PhaseCapturing:
		return "CAPTURING"
	case PhaseAtTarget:
		return "AT_TARGET"
	case PhaseBubbling:
		return "BUBBLING"
	default:
		return "UNKNOWN"
	}
}

// AnyEvent is the payload-independent view of an Event. Interceptors and the
// registry see events through it; listeners receive the typed *Event[T].
//
// Only *Event[T] implements AnyEvent.
type AnyEvent interface {
	ID() string
	Type() string
	Source() any
	Timestamp() time.Time
	Tags() []string
	HasTag(tag string) bool
	Bubbles() bool
	Cancelable() bool
	Phase() Phase
	Target() Target
	CurrentTarget() Target
	ComposedPath() []Target
	Context() context.Context
	PayloadAny() any

	StopPropagation()
	StopImmediatePropagation()
	PreventDefault()
	PropagationStopped() bool
	ImmediatePropagationStopped() bool
	DefaultPrevented() bool

	state() *eventState
}

// eventState holds everything about an event except its payload.
// An event is owned by the goroutine dispatching it; listeners mutate
// the control flags in-line, so no locking is needed.
type eventState struct {
	id         string
	eventType  string
	source     any
	timestamp  time.Time
	tags       []string
	bubbles    bool
	cancelable bool
	ctx        context.Context

	target        Target
	currentTarget Target
	phase         Phase
	path          []Target

	propagationStopped bool
	immediateStopped   bool
	defaultPrevented   bool
}

// Event carries one occurrence of eventType with a payload of type T.
// Create events with NewEvent; the zero value is not usable.
type Event[T any] struct {
	eventState
	payload T
}

// EventOption configures a new event.
type EventOption func(*eventState)

// WithTags attaches tags to the event. Duplicates are collapsed.
func WithTags(tags ...string) EventOption {
	return func(s *eventState) {
		s.tags = append(s.tags, tags...)
	}
}

// WithSource records an opaque reference to whatever produced the event.
func WithSource(source any) EventOption {
	return func(s *eventState) {
		s.source = source
	}
}

// WithBubbles controls whether the event bubbles after reaching its target.
// Events bubble by default.
func WithBubbles(bubbles bool) EventOption {
	return func(s *eventState) {
		s.bubbles = bubbles
	}
}

// WithCancelable controls whether PreventDefault has any effect.
// Events are cancelable by default.
func WithCancelable(cancelable bool) EventOption {
	return func(s *eventState) {
		s.cancelable = cancelable
	}
}

// WithTimestamp overrides the event timestamp.
func WithTimestamp(ts time.Time) EventOption {
	return func(s *eventState) {
		s.timestamp = ts
	}
}

// WithEventID overrides the generated event ID.
func WithEventID(id string) EventOption {
	return func(s *eventState) {
		s.id = id
	}
}

// WithContext attaches a context to the event. Listeners read it through
// Event.Context; when tracing is enabled the bus replaces it for the
// duration of the dispatch with one carrying the dispatch span.
func WithContext(ctx context.Context) EventOption {
	return func(s *eventState) {
		s.ctx = ctx
	}
}

// NewEvent creates an event of the given type carrying payload.
func NewEvent[T any](eventType string, payload T, opts ...EventOption) *Event[T] {
	return newEventAt(time.Time{}, eventType, payload, opts)
}

// newEventAt builds an event stamped with now unless an option overrides
// it. A zero now falls back to time.Now.
func newEventAt[T any](now time.Time, eventType string, payload T, opts []EventOption) *Event[T] {
	e := &Event[T]{
		eventState: eventState{
			eventType:  eventType,
			timestamp:  now,
			bubbles:    true,
			cancelable: true,
		},
		payload: payload,
	}
	for _, opt := range opts {
		opt(&e.eventState)
	}
	if e.id == "" {
		e.id = uuid.New().String()
	}
	if e.timestamp.IsZero() {
		e.timestamp = time.Now()
	}
	if len(e.tags) > 1 {
		slices.Sort(e.tags)
		e.tags = slices.Compact(e.tags)
	}
	return e
}

// Payload returns the typed payload.
func (e *Event[T]) Payload() T {
	return e.payload
}

// PayloadAny returns the payload as an empty interface.
func (e *Event[T]) PayloadAny() any {
	return e.payload
}

func (e *Event[T]) state() *eventState {
	return &e.eventState
}

// ID returns the unique event identifier.
func (s *eventState) ID() string { return s.id }

// Type returns the event type.
func (s *eventState) Type() string { return s.eventType }

// Source returns the source set with WithSource, or nil.
func (s *eventState) Source() any { return s.source }

// Timestamp returns when the event was created.
func (s *eventState) Timestamp() time.Time { return s.timestamp }

// Tags returns a sorted copy of the event's tags.
func (s *eventState) Tags() []string { return slices.Clone(s.tags) }

// HasTag reports whether the event carries tag.
func (s *eventState) HasTag(tag string) bool {
	_, found := slices.BinarySearch(s.tags, tag)
	return found
}

// Bubbles reports whether the event bubbles.
func (s *eventState) Bubbles() bool { return s.bubbles }

// Cancelable reports whether PreventDefault has any effect.
func (s *eventState) Cancelable() bool { return s.cancelable }

// Phase returns the current propagation phase.
func (s *eventState) Phase() Phase { return s.phase }

// Target returns the node the event was dispatched at, or nil for flat emits.
func (s *eventState) Target() Target { return s.target }

// CurrentTarget returns the node whose listeners are running, or nil.
func (s *eventState) CurrentTarget() Target { return s.currentTarget }

// ComposedPath returns the propagation path from the root to the target.
// It is empty for events that were never dispatched to a target.
func (s *eventState) ComposedPath() []Target { return slices.Clone(s.path) }

// Context returns the event context, or context.Background if none was set.
func (s *eventState) Context() context.Context {
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// StopPropagation lets the remaining listeners of the current step run,
// then stops the event from reaching any further node or phase.
func (s *eventState) StopPropagation() {
	s.propagationStopped = true
}

// StopImmediatePropagation stops the event before the next listener runs.
func (s *eventState) StopImmediatePropagation() {
	s.immediateStopped = true
	s.propagationStopped = true
}

// PreventDefault marks the default action as cancelled. It has no effect
// on events created with WithCancelable(false).
func (s *eventState) PreventDefault() {
	if s.cancelable {
		s.defaultPrevented = true
	}
}

// PropagationStopped reports whether StopPropagation or
// StopImmediatePropagation was called.
func (s *eventState) PropagationStopped() bool { return s.propagationStopped }

// ImmediatePropagationStopped reports whether StopImmediatePropagation was called.
func (s *eventState) ImmediatePropagationStopped() bool { return s.immediateStopped }

// DefaultPrevented reports whether PreventDefault took effect.
func (s *eventState) DefaultPrevented() bool { return s.defaultPrevented }
