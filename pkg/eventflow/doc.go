/*
Package eventflow provides an in-process event bus with priority-ordered
publish/subscribe and DOM-style three-phase propagation.

# Overview

A Bus stores listener registrations and delivers events to them
synchronously on the caller's goroutine. It offers two delivery modes over
the same registry:
  - Flat emits: Emit and EmitEvent reach the bubbling listeners of one
    event type, plus matching pattern and tag listeners.
  - Hierarchical dispatch: Bus.Dispatch walks a Target hierarchy through the
    capturing, at-target and bubbling phases.

Listeners at the same node and phase run by priority, highest first, and
in registration order among equal priorities.

# Basic Usage

	bus := eventflow.New()

	sub := eventflow.On(bus, "test", eventflow.Func(func(e *eventflow.Event[int]) {
	    fmt.Println(e.Payload())
	}))
	defer sub.Unsubscribe()

	eventflow.Emit(bus, "test", 42) // prints 42

Payload types are checked when the event reaches the listener. An exact
listener registered for a different payload type is reported as a
listener failure wrapping ErrPayloadType.

# Propagation

	root := eventflow.NewNode("root", nil)
	child := eventflow.NewNode("child", root)

	eventflow.On(bus, "click", onRootCapture, eventflow.WithTarget(root), eventflow.WithCapture())
	eventflow.On(bus, "click", onChild, eventflow.WithTarget(child))

	evt := eventflow.NewEvent("click", Point{X: 1, Y: 2})
	notPrevented, err := bus.Dispatch(child, evt)

Node keeps a weak reference to its parent. A hierarchy that loops back on
itself makes Dispatch return a *PropagationCycleError before any listener
runs.

# Filtering

	eventflow.OnPattern(bus, "user.*", l)                 // one-segment wildcard
	eventflow.OnWhere(bus, "order.placed", isLarge, l)    // predicate
	eventflow.OnTag(bus, "audit", l)                      // any event tagged "audit"

# Lifecycle

Every registration returns a *Subscription. Release it with Unsubscribe,
with Scoped, or by registering WithOwner(owner) and calling
Bus.DisposeAll(owner). Nothing is released implicitly when a Subscription
becomes unreachable.

# Error Handling

Listener errors and panics never reach the emitter. They are logged
through the bus logger, counted by the metrics recorder and passed to
BusConfig.OnListenerError as a *ListenerError. Dispatch returns an error
only for a nil argument or a propagation cycle.

# Thread Safety

All Bus methods are safe for concurrent use. Each emit or dispatch works
on a snapshot of the registry taken under a lock that is released before
any listener runs: listeners added during an emit first fire on the next
one, and listeners removed during an emit still fire for it. An Event is
owned by the goroutine dispatching it and must not be emitted from two
goroutines at once.
*/
package eventflow
