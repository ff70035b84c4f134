package eventflow

import (
	"go.uber.org/multierr"

	"github.com/randalmurphal/eventflow/pkg/eventflow/observability"
	"github.com/randalmurphal/eventflow/pkg/eventflow/registry"
)

// AutoDisposeRegistry groups subscriptions under an owner key so they can
// be released together, for example when a widget is torn down.
//
// Owners may be any comparable value; a non-comparable owner panics.
// Subscriptions unsubscribed individually drop out of their owner's group.
type AutoDisposeRegistry struct {
	bus    *Bus
	owners *registry.Multi[any, *Subscription]
}

// NewAutoDisposeRegistry creates a registry for subscriptions on b.
// Every bus also carries one, used by WithOwner and Bus.DisposeAll.
func NewAutoDisposeRegistry(b *Bus) *AutoDisposeRegistry {
	return &AutoDisposeRegistry{
		bus:    b,
		owners: registry.NewMulti[any, *Subscription](),
	}
}

// OnOwned registers l like On and records the subscription under owner.
func OnOwned[T any](r *AutoDisposeRegistry, owner any, eventType string, l Listener[T], opts ...ListenerOption) *Subscription {
	return r.Track(owner, On(r.bus, eventType, l, opts...))
}

// Track records sub under owner and returns it. A subscription belongs to
// at most one owner; tracking it again moves it.
func (r *AutoDisposeRegistry) Track(owner any, sub *Subscription) *Subscription {
	if sub == nil {
		return nil
	}
	if prev := sub.owner.Swap(&ownerLink{registry: r, owner: owner}); prev != nil {
		prev.registry.forget(prev.owner, sub)
	}
	r.owners.Add(owner, sub)
	if sub.Disposed() {
		r.owners.Remove(owner, sub)
	}
	return sub
}

// DisposeAll unsubscribes every subscription recorded under owner and
// forgets the owner. It returns how many subscriptions were released;
// a second call for the same owner returns 0. Other owners are untouched.
func (r *AutoDisposeRegistry) DisposeAll(owner any) int {
	subs := r.owners.Take(owner)
	for _, sub := range subs {
		sub.owner.Store(nil)
		sub.Unsubscribe()
	}
	if len(subs) > 0 && r.bus != nil {
		observability.LogDisposeAll(r.bus.config.Logger, len(subs))
	}
	return len(subs)
}

// Count returns how many live subscriptions are recorded under owner.
func (r *AutoDisposeRegistry) Count(owner any) int {
	return r.owners.Count(owner)
}

// Owners returns how many owners have live subscriptions.
func (r *AutoDisposeRegistry) Owners() int {
	return r.owners.Len()
}

// Close disposes every owner.
func (r *AutoDisposeRegistry) Close() error {
	var err error
	for _, subs := range r.owners.Clear() {
		for _, sub := range subs {
			sub.owner.Store(nil)
			err = multierr.Append(err, sub.Close())
		}
	}
	return err
}

func (r *AutoDisposeRegistry) forget(owner any, sub *Subscription) {
	r.owners.Remove(owner, sub)
}
