// Package pattern compiles and matches dot-segmented event type patterns.
//
// Event types are strings such as "user.created" or "order.item.added".
// A pattern has the same shape, except that a segment may be the wildcard
// "*", which matches exactly one segment of any value:
//
//	p := pattern.MustCompile("user.*")
//	p.Match("user.created")       // true
//	p.Match("user.profile.saved") // false, three segments
//	p.Match("order.created")      // false
//
// Compile rejects empty patterns, empty segments ("a..b", ".a", "a.") and
// wildcards mixed into a literal segment ("us*r").
package pattern
