package eventflow

import (
	"cmp"
	"slices"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/randalmurphal/eventflow/pkg/eventflow/pattern"
)

// RegistrationID identifies one listener registration. IDs are issued from
// a per-bus monotonic counter and double as the tie-break between listeners
// of equal priority.
type RegistrationID uint64

type entryKind uint8

const (
	kindExact entryKind = iota
	kindPattern
	kindTag
)

// entry is a type-erased listener registration.
type entry struct {
	id       RegistrationID
	kind     entryKind
	key      string // event type, pattern source or tag
	scope    Target // nil for flat registrations
	priority int64
	capture  bool
	tags     []string

	// identity is the listener value passed by the caller, compared by Off.
	identity any
	// invoke reports whether the listener ran; false means a predicate or
	// once-guard skipped it.
	invoke func(AnyEvent) (bool, error)

	pattern *pattern.Pattern
	sub     *Subscription
}

// before reports whether a runs before b: higher priority first, then
// registration order.
func (a *entry) before(b *entry) bool {
	if a.priority != b.priority {
		return a.priority > b.priority
	}
	return a.id < b.id
}

func compareEntries(a, b *entry) int {
	if a.priority != b.priority {
		return cmp.Compare(b.priority, a.priority)
	}
	return cmp.Compare(a.id, b.id)
}

type scopeKey struct {
	scope     Target
	eventType string
}

// listenerList holds the two ordered groups for one (scope, type).
// Both slices are copy-on-write: a slice header read under the lock is a
// stable snapshot.
type listenerList struct {
	capture []*entry
	bubble  []*entry
}

func (l *listenerList) len() int {
	return len(l.capture) + len(l.bubble)
}

// nodeListeners is the snapshot for one node of a dispatch path.
type nodeListeners struct {
	capture []*entry
	bubble  []*entry
}

// listenerRegistry stores every registration of a bus.
type listenerRegistry struct {
	mu     sync.Mutex
	nextID atomic.Uint64

	exact map[scopeKey]*listenerList
	byID  map[RegistrationID]*entry

	// patterns indexed by literal first segment; "" holds patterns that
	// start with a wildcard.
	patterns     map[string][]*entry
	patternCount int
	patternCache *lru.Cache[string, []*entry]

	tags map[string][]*entry
}

func newListenerRegistry(cacheSize int) *listenerRegistry {
	r := &listenerRegistry{
		exact:    make(map[scopeKey]*listenerList),
		byID:     make(map[RegistrationID]*entry),
		patterns: make(map[string][]*entry),
		tags:     make(map[string][]*entry),
	}
	if cacheSize > 0 {
		// lru.New only fails for a non-positive size.
		r.patternCache, _ = lru.New[string, []*entry](cacheSize)
	}
	return r
}

// insertSorted returns a new slice with e placed after every entry that
// runs before it.
func insertSorted(list []*entry, e *entry) []*entry {
	i := len(list)
	for i > 0 && e.before(list[i-1]) {
		i--
	}
	out := make([]*entry, 0, len(list)+1)
	out = append(out, list[:i]...)
	out = append(out, e)
	return append(out, list[i:]...)
}

// without returns a new slice without entries matching drop, and how many
// were dropped. The original slice is returned untouched when nothing matches.
func without(list []*entry, drop func(*entry) bool) ([]*entry, int) {
	n := 0
	for _, e := range list {
		if drop(e) {
			n++
		}
	}
	if n == 0 {
		return list, 0
	}
	if n == len(list) {
		return nil, n
	}
	out := make([]*entry, 0, len(list)-n)
	for _, e := range list {
		if !drop(e) {
			out = append(out, e)
		}
	}
	return out, n
}

func patternBucket(p *pattern.Pattern) string {
	prefix, _ := p.Prefix()
	return prefix
}

// reserveID issues the next registration ID.
func (r *listenerRegistry) reserveID() RegistrationID {
	return RegistrationID(r.nextID.Add(1))
}

// add stores e, which must carry an ID from reserveID. Concurrent adds may
// arrive out of ID order; insertSorted still places them by ID.
func (r *listenerRegistry) add(e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID[e.id] = e

	switch e.kind {
	case kindExact:
		k := scopeKey{scope: e.scope, eventType: e.key}
		list, ok := r.exact[k]
		if !ok {
			list = &listenerList{}
			r.exact[k] = list
		}
		if e.capture {
			list.capture = insertSorted(list.capture, e)
		} else {
			list.bubble = insertSorted(list.bubble, e)
		}
	case kindPattern:
		bucket := patternBucket(e.pattern)
		r.patterns[bucket] = insertSorted(r.patterns[bucket], e)
		r.patternCount++
		r.purgePatternCache()
	case kindTag:
		r.tags[e.key] = insertSorted(r.tags[e.key], e)
	}
}

// remove deletes one registration. It returns false if the ID is not live.
func (r *listenerRegistry) remove(id RegistrationID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byID[id]
	if !ok {
		return false
	}
	r.drop(func(x *entry) bool { return x == e }, e.kind, e.scope, e.key)
	return true
}

// drop removes entries of one kind/scope/key for which match is true
// and returns them. Caller must hold r.mu.
func (r *listenerRegistry) drop(match func(*entry) bool, kind entryKind, scope Target, key string) []*entry {
	var dropped []*entry
	forget := func(e *entry) bool {
		if match(e) {
			delete(r.byID, e.id)
			dropped = append(dropped, e)
			return true
		}
		return false
	}

	switch kind {
	case kindExact:
		k := scopeKey{scope: scope, eventType: key}
		list, ok := r.exact[k]
		if !ok {
			return nil
		}
		list.capture, _ = without(list.capture, forget)
		list.bubble, _ = without(list.bubble, forget)
		if list.len() == 0 {
			delete(r.exact, k)
		}
	case kindPattern:
		for bucket, list := range r.patterns {
			next, n := without(list, func(e *entry) bool {
				return e.key == key && forget(e)
			})
			if n == 0 {
				continue
			}
			if len(next) == 0 {
				delete(r.patterns, bucket)
			} else {
				r.patterns[bucket] = next
			}
		}
		if len(dropped) > 0 {
			r.patternCount -= len(dropped)
			r.purgePatternCache()
		}
	case kindTag:
		next, _ := without(r.tags[key], forget)
		if len(next) == 0 {
			delete(r.tags, key)
		} else {
			r.tags[key] = next
		}
	}
	return dropped
}

// removeListener drops every exact and pattern registration under
// (scope, key) whose listener is identical to listener.
func (r *listenerRegistry) removeListener(scope Target, key string, listener any) []*entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	match := func(e *entry) bool { return sameListener(e.identity, listener) }
	removed := r.drop(match, kindExact, scope, key)
	if scope == nil {
		removed = append(removed, r.drop(match, kindPattern, nil, key)...)
	}
	return removed
}

// clearType drops every exact registration for eventType in every scope,
// and every pattern registered with eventType as its source text.
func (r *listenerRegistry) clearType(eventType string) []*entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []*entry
	for k := range r.exact {
		if k.eventType == eventType {
			removed = append(removed, r.drop(all, kindExact, k.scope, k.eventType)...)
		}
	}
	return append(removed, r.drop(all, kindPattern, nil, eventType)...)
}

// clearScope drops every registration scoped to target.
func (r *listenerRegistry) clearScope(target Target) []*entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []*entry
	for k := range r.exact {
		if k.scope == target {
			removed = append(removed, r.drop(all, kindExact, k.scope, k.eventType)...)
		}
	}
	return removed
}

func all(*entry) bool { return true }

// clearAll drops everything. IDs keep increasing.
func (r *listenerRegistry) clearAll() []*entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := make([]*entry, 0, len(r.byID))
	for _, e := range r.byID {
		removed = append(removed, e)
	}
	r.exact = make(map[scopeKey]*listenerList)
	r.byID = make(map[RegistrationID]*entry)
	r.patterns = make(map[string][]*entry)
	r.patternCount = 0
	r.tags = make(map[string][]*entry)
	r.purgePatternCache()
	return removed
}

func (r *listenerRegistry) purgePatternCache() {
	if r.patternCache != nil {
		r.patternCache.Purge()
	}
}

// flatSnapshot returns, in execution order, every listener a flat emit of
// eventType with the given tags must reach. Capture registrations never
// fire for flat emits.
func (r *listenerRegistry) flatSnapshot(eventType string, tags []string, mode PatternMode) []*entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var exact []*entry
	hasExact := false
	if list, ok := r.exact[scopeKey{eventType: eventType}]; ok {
		exact = list.bubble
		hasExact = list.len() > 0
	}

	var matched []*entry
	if r.patternCount > 0 && (mode == PatternAlways || !hasExact) {
		matched = r.matchPatterns(eventType)
	}

	var tagged [][]*entry
	for _, tag := range tags {
		if list := r.tags[tag]; len(list) > 0 {
			tagged = append(tagged, list)
		}
	}

	if len(matched) == 0 && len(tagged) == 0 {
		return exact
	}
	if len(exact) == 0 && len(tagged) == 0 {
		return matched
	}

	size := len(exact) + len(matched)
	for _, list := range tagged {
		size += len(list)
	}
	out := make([]*entry, 0, size)
	out = append(out, exact...)
	out = append(out, matched...)
	for _, list := range tagged {
		out = append(out, list...)
	}
	slices.SortFunc(out, compareEntries)
	return out
}

// matchPatterns returns the pattern registrations matching eventType in
// execution order. Caller must hold r.mu.
func (r *listenerRegistry) matchPatterns(eventType string) []*entry {
	if r.patternCache != nil {
		if cached, ok := r.patternCache.Get(eventType); ok {
			return cached
		}
	}

	var out []*entry
	for _, bucket := range [2]string{pattern.FirstSegment(eventType), ""} {
		for _, e := range r.patterns[bucket] {
			if e.pattern.Match(eventType) {
				out = append(out, e)
			}
		}
		if bucket == "" {
			break
		}
	}
	if len(out) > 1 {
		slices.SortFunc(out, compareEntries)
	}

	if r.patternCache != nil {
		r.patternCache.Add(eventType, out)
	}
	return out
}

// pathSnapshot returns the listener groups for eventType at every node of
// path, taken under a single lock acquisition.
func (r *listenerRegistry) pathSnapshot(path []Target, eventType string) []nodeListeners {
	out := make([]nodeListeners, len(path))

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, node := range path {
		if list, ok := r.exact[scopeKey{scope: node, eventType: eventType}]; ok {
			out[i] = nodeListeners{capture: list.capture, bubble: list.bubble}
		}
	}
	return out
}

// count returns the number of registrations under (scope, key): exact
// registrations in both groups plus, for the flat scope, patterns whose
// source text equals key.
func (r *listenerRegistry) count(scope Target, key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	if list, ok := r.exact[scopeKey{scope: scope, eventType: key}]; ok {
		n += list.len()
	}
	if scope == nil && r.patternCount > 0 {
		for _, list := range r.patterns {
			for _, e := range list {
				if e.key == key {
					n++
				}
			}
		}
	}
	return n
}

// types returns the sorted set of event types with flat exact registrations.
func (r *listenerRegistry) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.exact))
	for k := range r.exact {
		if k.scope == nil {
			out = append(out, k.eventType)
		}
	}
	slices.Sort(out)
	return out
}

// describe returns the flat exact registrations for eventType, capture
// group first, each in execution order.
func (r *listenerRegistry) describe(scope Target, eventType string) []RegistrationInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	list, ok := r.exact[scopeKey{scope: scope, eventType: eventType}]
	if !ok {
		return nil
	}
	out := make([]RegistrationInfo, 0, list.len())
	for _, group := range [2][]*entry{list.capture, list.bubble} {
		for _, e := range group {
			out = append(out, RegistrationInfo{
				ID:       e.id,
				Priority: e.priority,
				Capture:  e.capture,
				Tags:     slices.Clone(e.tags),
			})
		}
	}
	return out
}

// RegistrationInfo describes one registration for introspection.
type RegistrationInfo struct {
	ID       RegistrationID
	Priority int64
	Capture  bool
	Tags     []string
}

// sameListener reports whether a and b are the same listener value.
// Listeners whose dynamic type is not comparable (plain funcs, for
// example) are never equal to anything.
func sameListener(a, b any) (same bool) {
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}
