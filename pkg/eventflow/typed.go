package eventflow

// TypedBus is a view of a Bus fixed to one payload type.
//
// Example:
//
//	users := eventflow.Typed[User](bus)
//	users.On("user.created", eventflow.Func(onCreated))
//	users.Emit("user.created", User{Name: "ada"})
type TypedBus[T any] struct {
	bus *Bus
}

// Typed returns a TypedBus for payload type T on b.
func Typed[T any](b *Bus) TypedBus[T] {
	return TypedBus[T]{bus: b}
}

// Bus returns the underlying bus.
func (t TypedBus[T]) Bus() *Bus { return t.bus }

// On registers l. See On.
func (t TypedBus[T]) On(eventType string, l Listener[T], opts ...ListenerOption) *Subscription {
	return On(t.bus, eventType, l, opts...)
}

// Once registers l for a single delivery. See Once.
func (t TypedBus[T]) Once(eventType string, l Listener[T], opts ...ListenerOption) *Subscription {
	return Once(t.bus, eventType, l, opts...)
}

// OnWhere registers l behind pred. See OnWhere.
func (t TypedBus[T]) OnWhere(eventType string, pred func(*Event[T]) bool, l Listener[T], opts ...ListenerOption) *Subscription {
	return OnWhere(t.bus, eventType, pred, l, opts...)
}

// OnPattern registers l for every type matching expr. See OnPattern.
func (t TypedBus[T]) OnPattern(expr string, l Listener[T], opts ...ListenerOption) (*Subscription, error) {
	return OnPattern(t.bus, expr, l, opts...)
}

// OnTag registers l for every event tagged tag. See OnTag.
func (t TypedBus[T]) OnTag(tag string, l Listener[T], opts ...ListenerOption) *Subscription {
	return OnTag(t.bus, tag, l, opts...)
}

// Off removes l from eventType. See Bus.Off.
func (t TypedBus[T]) Off(eventType string, l Listener[T]) {
	t.bus.Off(eventType, l)
}

// Emit emits payload as eventType. See Emit.
func (t TypedBus[T]) Emit(eventType string, payload T, opts ...EventOption) {
	Emit(t.bus, eventType, payload, opts...)
}

// Dispatch creates an event and propagates it through target's hierarchy.
// It returns the event so callers can inspect its flags. See Bus.Dispatch.
func (t TypedBus[T]) Dispatch(target Target, eventType string, payload T, opts ...EventOption) (*Event[T], bool, error) {
	evt := NewBusEvent(t.bus, eventType, payload, opts...)
	ok, err := t.bus.Dispatch(target, evt)
	return evt, ok, err
}
