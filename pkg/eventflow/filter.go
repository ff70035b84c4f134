package eventflow

import "github.com/randalmurphal/eventflow/pkg/eventflow/pattern"

// OnPattern registers l for every flat emit whose type matches expr, where
// a "*" segment matches exactly one segment of any value. A malformed expr
// is rejected here with a *pattern.SyntaxError.
//
// Under PatternFallback (the default) pattern listeners are evaluated only
// for types with no exact flat registration; under PatternAlways they are
// merged with the exact listeners by priority. Events whose payload is not
// a T are skipped. WithTarget and WithCapture are ignored.
//
// Panics if l is nil.
func OnPattern[T any](b *Bus, expr string, l Listener[T], opts ...ListenerOption) (*Subscription, error) {
	mustListener(l)
	p, err := pattern.Compile(expr)
	if err != nil {
		return nil, err
	}
	return b.register(&entry{
		kind:     kindPattern,
		key:      expr,
		identity: l,
		invoke:   typedInvoker(l, nil, false),
		pattern:  p,
	}, buildListenerConfig(opts)), nil
}

// OnWhere registers l for eventType, but l only runs for events for which
// pred returns true. The predicate runs in the listener's place in the
// priority order; returning false skips the listener without error.
//
// Panics if l or pred is nil.
func OnWhere[T any](b *Bus, eventType string, pred func(*Event[T]) bool, l Listener[T], opts ...ListenerOption) *Subscription {
	mustListener(l)
	if pred == nil {
		panic("eventflow: predicate cannot be nil")
	}
	return b.register(&entry{
		kind:     kindExact,
		key:      eventType,
		identity: l,
		invoke:   typedInvoker(l, pred, true),
	}, buildListenerConfig(opts))
}

// OnTag registers l for every flat emit, of any type, whose tags contain
// tag. Events whose payload is not a T are skipped. WithTarget and
// WithCapture are ignored.
//
// Panics if l is nil.
func OnTag[T any](b *Bus, tag string, l Listener[T], opts ...ListenerOption) *Subscription {
	mustListener(l)
	return b.register(&entry{
		kind:     kindTag,
		key:      tag,
		identity: l,
		invoke:   typedInvoker(l, nil, false),
	}, buildListenerConfig(opts))
}
