package eventflow

import (
	"errors"
	"fmt"
)

// Sentinel errors for dispatch.
var (
	// ErrPropagationCycle indicates a target's ancestry loops back on itself
	// or is deeper than the configured limit.
	ErrPropagationCycle = errors.New("propagation cycle")

	// ErrNilTarget indicates Dispatch was called without a target.
	ErrNilTarget = errors.New("dispatch target cannot be nil")

	// ErrNilEvent indicates Dispatch or EmitEvent was called without an event.
	ErrNilEvent = errors.New("event cannot be nil")
)

// Sentinel errors for listener failures. They are never returned from
// Emit or Dispatch; they reach the logger, metrics and the
// OnListenerError hook wrapped in a ListenerError.
var (
	// ErrListenerPanic indicates a listener or predicate panicked.
	ErrListenerPanic = errors.New("listener panicked")

	// ErrPayloadType indicates an event reached a listener registered for a
	// different payload type.
	ErrPayloadType = errors.New("payload type mismatch")
)

// ErrInvalidConfig is wrapped by every BusConfig validation error.
var ErrInvalidConfig = errors.New("invalid bus config")

// ListenerError reports a listener that returned an error or panicked.
type ListenerError struct {
	// ListenerID is the registration that failed.
	ListenerID RegistrationID
	// EventType is the type of the event being delivered.
	EventType string
	// EventID is the ID of the event being delivered.
	EventID string
	// Phase is the propagation phase the listener ran in.
	Phase Phase
	// Err is the returned error or a *PanicError.
	Err error
	// Subscription is the failing registration's handle.
	Subscription *Subscription
}

// Error implements the error interface.
func (e *ListenerError) Error() string {
	return fmt.Sprintf("listener %d on %s (%s): %v", e.ListenerID, e.EventType, e.Phase, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ListenerError) Unwrap() error {
	return e.Err
}

// Panicked reports whether the listener panicked rather than returning an error.
func (e *ListenerError) Panicked() bool {
	return errors.Is(e.Err, ErrListenerPanic)
}

// PanicError captures a recovered listener panic.
type PanicError struct {
	// Value is the value passed to panic().
	Value any
	// Stack is the stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Is matches ErrListenerPanic.
func (e *PanicError) Is(target error) bool {
	return target == ErrListenerPanic
}

// Unwrap exposes the panic value when it was itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// PropagationCycleError is returned by Dispatch when the path from the
// target to its root cannot be built.
type PropagationCycleError struct {
	// EventType is the type of the rejected event.
	EventType string
	// Target is the node that appeared twice, or the node at which the
	// depth limit was hit.
	Target Target
	// Depth is the number of nodes walked before the problem was found.
	Depth int
	// Limit is non-zero when the depth limit, not a revisit, stopped the walk.
	Limit int
}

// Error implements the error interface.
func (e *PropagationCycleError) Error() string {
	if e.Limit > 0 {
		return fmt.Sprintf("dispatch %s: path exceeds %d targets", e.EventType, e.Limit)
	}
	return fmt.Sprintf("dispatch %s: target %v revisited after %d steps", e.EventType, e.Target, e.Depth)
}

// Unwrap returns ErrPropagationCycle for errors.Is support.
func (e *PropagationCycleError) Unwrap() error {
	return ErrPropagationCycle
}
