// README: Optimistic local view: apply a tentative change, then reconcile with the server.
package poll

import "sync"

// View holds the last authoritative snapshot plus local tentative overrides.
// Reconcile replaces everything with the authoritative data unconditionally.
type View[K comparable, V any] struct {
	mu        sync.RWMutex
	items     map[K]V
	tentative map[K]V
}

func NewView[K comparable, V any]() *View[K, V] {
	return &View[K, V]{items: make(map[K]V), tentative: make(map[K]V)}
}

func (v *View[K, V]) ApplyTentative(key K, val V) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tentative[key] = val
}

func (v *View[K, V]) Reconcile(authoritative map[K]V) {
	items := make(map[K]V, len(authoritative))
	for k, val := range authoritative {
		items[k] = val
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.items = items
	v.tentative = make(map[K]V)
}

// Get prefers a tentative value over the authoritative one.
func (v *View[K, V]) Get(key K) (V, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if val, ok := v.tentative[key]; ok {
		return val, true
	}
	val, ok := v.items[key]
	return val, ok
}

func (v *View[K, V]) Pending() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.tentative)
}

func (v *View[K, V]) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	n := len(v.items)
	for k := range v.tentative {
		if _, ok := v.items[k]; !ok {
			n++
		}
	}
	return n
}
