package system

import (
	"fmt"
	"sync"
)

type registryKey struct {
	kind string
	id   string
}

var (
	registryMu sync.Mutex
	registry   = map[registryKey]any{}
)

// Register records v as the live system for (kind, id), so that unrelated
// code (Universe looking up a GameSystem by id) can find it without holding
// a direct reference. A duplicate (kind, id) pair is a fatal invariant
// violation: two live actors can never claim the same identity, so this
// panics rather than returning an error a caller might ignore.
func Register(kind, id string, v any) {
	registryMu.Lock()
	defer registryMu.Unlock()

	key := registryKey{kind: kind, id: id}
	if _, exists := registry[key]; exists {
		panic(fmt.Sprintf("duplicate system registration for %s/%s", kind, id))
	}
	registry[key] = v
}

// Deregister removes the (kind, id) entry, if any.
func Deregister(kind, id string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, registryKey{kind: kind, id: id})
}

// Lookup returns the live system registered under (kind, id), if any. Used
// to break the Universe<->GameSystem ownership cycle: callers that only need
// "does a live GameSystem exist for this id" go through here instead of
// holding a reference back to the owning registry (spec.md §9, "Cycle
// between Universe and GameSystem").
func Lookup[T any](kind, id string) (T, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()

	var zero T
	v, ok := registry[registryKey{kind: kind, id: id}]
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}
