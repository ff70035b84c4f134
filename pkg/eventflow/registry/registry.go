package registry

import "sync"

// Multi is a thread-safe map from a key to an ordered set of values.
type Multi[K comparable, V comparable] struct {
	mu      sync.RWMutex
	entries map[K][]V
}

// NewMulti creates an empty Multi.
func NewMulti[K comparable, V comparable]() *Multi[K, V] {
	return &Multi[K, V]{
		entries: make(map[K][]V),
	}
}

// Add records value under key. It returns false if the value was
// already recorded for that key.
func (m *Multi[K, V]) Add(key K, value V) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.entries[key] {
		if v == value {
			return false
		}
	}
	m.entries[key] = append(m.entries[key], value)
	return true
}

// Remove deletes one value from key. The key disappears with its last value.
func (m *Multi[K, V]) Remove(key K, value V) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	values, ok := m.entries[key]
	if !ok {
		return false
	}
	for i, v := range values {
		if v != value {
			continue
		}
		if len(values) == 1 {
			delete(m.entries, key)
			return true
		}
		next := make([]V, 0, len(values)-1)
		next = append(next, values[:i]...)
		next = append(next, values[i+1:]...)
		m.entries[key] = next
		return true
	}
	return false
}

// Take removes key and returns its values in insertion order.
// Returns nil if the key is absent.
func (m *Multi[K, V]) Take(key K) []V {
	m.mu.Lock()
	defer m.mu.Unlock()
	values, ok := m.entries[key]
	if !ok {
		return nil
	}
	delete(m.entries, key)
	return values
}

// Get returns a copy of the values recorded under key.
func (m *Multi[K, V]) Get(key K) []V {
	m.mu.RLock()
	defer m.mu.RUnlock()
	values := m.entries[key]
	if len(values) == 0 {
		return nil
	}
	out := make([]V, len(values))
	copy(out, values)
	return out
}

// Has returns true if at least one value is recorded under key.
func (m *Multi[K, V]) Has(key K) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[key]
	return ok
}

// Count returns the number of values recorded under key.
func (m *Multi[K, V]) Count(key K) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries[key])
}

// Len returns the number of keys.
func (m *Multi[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Keys returns all keys in no particular order.
func (m *Multi[K, V]) Keys() []K {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]K, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	return keys
}

// Range calls fn for each key and a copy of its values.
// If fn returns false, iteration stops.
// The multimap is snapshotted before iteration; fn may call back into it.
func (m *Multi[K, V]) Range(fn func(key K, values []V) bool) {
	m.mu.RLock()
	snapshot := make(map[K][]V, len(m.entries))
	for k, v := range m.entries {
		cp := make([]V, len(v))
		copy(cp, v)
		snapshot[k] = cp
	}
	m.mu.RUnlock()

	for k, v := range snapshot {
		if !fn(k, v) {
			return
		}
	}
}

// Clear removes every key and returns what was stored.
func (m *Multi[K, V]) Clear() map[K][]V {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.entries
	m.entries = make(map[K][]V)
	return old
}
