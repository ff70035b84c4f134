// Package registry provides a generic thread-safe multimap.
//
// Multi groups values under a key and keeps them in insertion order:
//
//	owners := registry.NewMulti[any, *Handle]()
//	owners.Add(widget, h1)
//	owners.Add(widget, h2)
//	for _, h := range owners.Take(widget) {
//	    h.Close()
//	}
//
// Take removes the key and hands the caller everything recorded under it
// in one step, so concurrent Takes never release the same value twice.
//
// Keys may be any comparable value. Using an interface key type such as
// any is allowed; storing a non-comparable dynamic value panics, as with
// built-in maps.
package registry
