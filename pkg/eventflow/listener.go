package eventflow

import (
	"fmt"
	"sync/atomic"
)

// Listener handles events whose payload is of type T. A returned error is
// logged and reported through BusConfig.OnListenerError; it never stops
// other listeners or reaches the emitter.
type Listener[T any] interface {
	HandleEvent(evt *Event[T]) error
}

// ListenerFunc adapts a function to Listener. Func values are not
// comparable, so a ListenerFunc cannot be removed with Bus.Off; use Func
// or FuncErr, or keep the Subscription.
type ListenerFunc[T any] func(evt *Event[T]) error

// HandleEvent calls f(evt).
func (f ListenerFunc[T]) HandleEvent(evt *Event[T]) error {
	return f(evt)
}

type funcListener[T any] struct {
	fn func(*Event[T]) error
}

func (l *funcListener[T]) HandleEvent(evt *Event[T]) error {
	return l.fn(evt)
}

// Func wraps fn in a Listener with a stable identity, usable with Bus.Off.
func Func[T any](fn func(evt *Event[T])) Listener[T] {
	return &funcListener[T]{fn: func(evt *Event[T]) error {
		fn(evt)
		return nil
	}}
}

// FuncErr is Func for functions that can fail.
func FuncErr[T any](fn func(evt *Event[T]) error) Listener[T] {
	return &funcListener[T]{fn: fn}
}

// typedInvoker recovers the typed event from the erased one. When strict,
// events whose payload type differs from T are rejected with
// ErrPayloadType; otherwise they are skipped, which suits pattern and tag
// registrations that span several event types.
func typedInvoker[T any](l Listener[T], pred func(*Event[T]) bool, strict bool) func(AnyEvent) (bool, error) {
	return func(evt AnyEvent) (bool, error) {
		typed, ok := evt.(*Event[T])
		if !ok {
			if !strict {
				return false, nil
			}
			return false, payloadMismatch[T](evt)
		}
		if pred != nil && !pred(typed) {
			return false, nil
		}
		return true, l.HandleEvent(typed)
	}
}

// onceInvoker fires l at most once. The registration is removed before l
// runs, so a listener that re-emits its own type is not called again.
func onceInvoker[T any](e *entry, l Listener[T]) func(AnyEvent) (bool, error) {
	var fired atomic.Bool
	return func(evt AnyEvent) (bool, error) {
		typed, ok := evt.(*Event[T])
		if !ok {
			return false, payloadMismatch[T](evt)
		}
		if !fired.CompareAndSwap(false, true) {
			return false, nil
		}
		e.sub.Unsubscribe()
		return true, l.HandleEvent(typed)
	}
}

func payloadMismatch[T any](evt AnyEvent) error {
	return fmt.Errorf("%w: listener expects %T, event %q carries %T",
		ErrPayloadType, (*T)(nil), evt.Type(), evt.PayloadAny())
}

func mustListener[T any](l Listener[T]) {
	if l == nil {
		panic("eventflow: listener cannot be nil")
	}
}

// On registers l for events of eventType and returns its subscription.
//
// Without options the listener is a flat bubbling listener with priority 0.
// WithTarget scopes it to a node for Dispatch; WithCapture moves it to the
// capturing group; WithOwner records it for Bus.DisposeAll.
//
// Panics if l is nil.
func On[T any](b *Bus, eventType string, l Listener[T], opts ...ListenerOption) *Subscription {
	mustListener(l)
	return b.register(&entry{
		kind:     kindExact,
		key:      eventType,
		identity: l,
		invoke:   typedInvoker(l, nil, true),
	}, buildListenerConfig(opts))
}

// Once registers l to run for the first matching event only. Concurrent
// emits still deliver it exactly once.
//
// Panics if l is nil.
func Once[T any](b *Bus, eventType string, l Listener[T], opts ...ListenerOption) *Subscription {
	mustListener(l)
	e := &entry{
		kind:     kindExact,
		key:      eventType,
		identity: l,
	}
	e.invoke = onceInvoker(e, l)
	return b.register(e, buildListenerConfig(opts))
}

// Emit creates an event of eventType carrying payload, stamped with the
// bus clock, and delivers it as EmitEvent does.
func Emit[T any](b *Bus, eventType string, payload T, opts ...EventOption) {
	b.EmitEvent(newEventAt(b.config.Clock.Now(), eventType, payload, opts))
}

// NewBusEvent creates an event stamped with the bus clock, for callers
// that need the event after dispatch.
func NewBusEvent[T any](b *Bus, eventType string, payload T, opts ...EventOption) *Event[T] {
	return newEventAt(b.config.Clock.Now(), eventType, payload, opts)
}
