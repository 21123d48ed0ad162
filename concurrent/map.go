package concurrent

import "sync"

// Map is a typed sync.Map.
type Map[K comparable, V any] struct {
	raw sync.Map
}

func (m *Map[K, V]) LoadAndDelete(key K) (value V, loaded bool) {
	if v, loaded := m.raw.LoadAndDelete(key); !loaded {
		return value, false
	} else {
		return v.(V), true
	}
}
func (m *Map[K, V]) LoadOrStore(key K, value V) (actual V, loaded bool) {
	if v, loaded := m.raw.LoadOrStore(key, value); !loaded {
		return value, false
	} else {
		return v.(V), true
	}
}
func (m *Map[K, V]) Load(key K) (value V, ok bool) {
	if v, loaded := m.raw.Load(key); !loaded {
		return
	} else {
		return v.(V), true
	}
}
// CompareAndDelete deletes key only while it maps to old; V must be comparable.
func (m *Map[K, V]) CompareAndDelete(key K, old V) bool {
	return m.raw.CompareAndDelete(key, old)
}
func (m *Map[K, V]) Delete(key K) {
	m.raw.Delete(key)
}
func (m *Map[K, V]) Store(key K, value V) {
	m.raw.Store(key, value)
}
func (m *Map[K, V]) Range(f func(key K, value V) bool) {
	m.raw.Range(func(key, value any) bool {
		return f(key.(K), value.(V))
	})
}
func (m *Map[K, V]) Clear() {
	m.raw.Clear()
}
func (m *Map[K, V]) Keys() (keys []K) {
	keys = []K{}
	m.Range(func(key K, value V) bool {
		keys = append(keys, key)
		return true
	})
	return
}
