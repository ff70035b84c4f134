package eventflow

import (
	"sync/atomic"
	"weak"
)

// Subscription is the handle returned by every registration. It refers to
// its bus weakly, so holding a Subscription never keeps a bus alive.
//
// Releasing a subscription is always explicit: call Unsubscribe (or Close),
// use Scoped, or record it under an owner and call DisposeAll. Dropping
// the last reference to a Subscription does not remove the listener.
type Subscription struct {
	id  RegistrationID
	key string
	bus weak.Pointer[Bus]

	disposed atomic.Bool
	owner    atomic.Pointer[ownerLink]
}

// ownerLink ties a subscription to the auto-dispose registry tracking it.
type ownerLink struct {
	registry *AutoDisposeRegistry
	owner    any
}

// ID returns the registration ID.
func (s *Subscription) ID() RegistrationID {
	return s.id
}

// Key returns the event type, pattern or tag the listener was registered for.
func (s *Subscription) Key() string {
	return s.key
}

// Disposed reports whether the registration has been removed, through
// Unsubscribe, Off, a Clear or DisposeAll.
func (s *Subscription) Disposed() bool {
	return s.disposed.Load()
}

// Unsubscribe removes the registration. Only the first call has an
// effect; later calls, and calls after the registration was removed by
// Off or Clear, are no-ops.
func (s *Subscription) Unsubscribe() {
	if s == nil || !s.disposed.CompareAndSwap(false, true) {
		return
	}
	if b := s.bus.Value(); b != nil {
		b.unregister(s.id, s.key)
	}
	if link := s.owner.Load(); link != nil {
		link.registry.forget(link.owner, s)
	}
}

// detach marks s disposed after its registration was removed by Off or a
// Clear, and forgets its owner link.
func (s *Subscription) detach() {
	if !s.disposed.CompareAndSwap(false, true) {
		return
	}
	if link := s.owner.Swap(nil); link != nil {
		link.registry.forget(link.owner, s)
	}
}

// Close calls Unsubscribe. It always returns nil.
func (s *Subscription) Close() error {
	s.Unsubscribe()
	return nil
}

// Scoped runs fn with sub and unsubscribes when fn returns, whether it
// returns normally, with an error, or by panicking.
//
// Example:
//
//	err := eventflow.Scoped(eventflow.On(bus, "progress", l), func(*eventflow.Subscription) error {
//	    return runJob(ctx)
//	})
func Scoped(sub *Subscription, fn func(sub *Subscription) error) error {
	defer sub.Unsubscribe()
	return fn(sub)
}
