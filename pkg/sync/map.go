package sync

import (
	"sync"

	"golang.org/x/exp/maps"
)

// Map is like a Go map[K]V but is safe for concurrent use by multiple goroutines.
type Map[K comparable, V any] struct {
	mutex sync.RWMutex
	data  map[K]V
}

// NewMap creates map.
func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{
		data: make(map[K]V),
	}
}

// Store sets the value for a key.
func (m *Map[K, V]) Store(key K, value V) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.data[key] = value
}

// Load returns the value stored in the map for a key.
// The ok result indicates whether value was found in the map.
func (m *Map[K, V]) Load(key K) (value V, ok bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	value, ok = m.data[key]
	return value, ok
}

// LoadOrStore returns the existing value for the key if present.
// Otherwise, it stores and returns the given value. The loaded result is true if the value was loaded, false if stored.
//
// The check and the store are done under one write lock, so two concurrent callers
// never both observe loaded == false for the same key.
func (m *Map[K, V]) LoadOrStore(key K, value V) (actual V, loaded bool) {
	return m.LoadOrStoreWithFunc(key, func() V { return value })
}

func (m *Map[K, V]) LoadOrStoreWithFunc(key K, createFunc func() V) (actual V, loaded bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if v, ok := m.data[key]; ok {
		return v, true
	}
	v := createFunc()
	m.data[key] = v
	return v, false
}

// ReplaceWithFunc atomically computes a new value for the key from the old one.
// When doDelete is true the key is removed instead.
func (m *Map[K, V]) ReplaceWithFunc(key K, onReplaceFunc func(oldValue V, oldLoaded bool) (newValue V, doDelete bool)) (oldValue V, oldLoaded bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	v, ok := m.data[key]
	newValue, del := onReplaceFunc(v, ok)
	if del {
		delete(m.data, key)
		return v, ok
	}
	m.data[key] = newValue
	return v, ok
}

// Delete deletes the value for a key.
func (m *Map[K, V]) Delete(key K) (deleted bool) {
	return m.DeleteWithFunc(key, nil)
}

func (m *Map[K, V]) DeleteWithFunc(key K, onDeleteFunc func(value V)) (deleted bool) {
	m.mutex.Lock()
	value, ok := m.data[key]
	delete(m.data, key)
	m.mutex.Unlock()
	if ok && onDeleteFunc != nil {
		onDeleteFunc(value)
	}
	return ok
}

// LoadAndDelete loads and deletes the value for a key.
func (m *Map[K, V]) LoadAndDelete(key K) (value V, ok bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	value, ok = m.data[key]
	delete(m.data, key)
	return value, ok
}

// LoadAndDeleteAll extracts internal map data and replace it with empty map.
func (m *Map[K, V]) LoadAndDeleteAll() map[K]V {
	m.mutex.Lock()
	data := m.data
	m.data = make(map[K]V)
	m.mutex.Unlock()
	return data
}

// CopyData creates a deep copy of the internal map.
func (m *Map[K, V]) CopyData() map[K]V {
	c := make(map[K]V)
	m.mutex.RLock()
	maps.Copy(c, m.data)
	m.mutex.RUnlock()
	return c
}

// Range calls f sequentially for each key and value present in the map. If f returns false, range stops the iteration.
// Note: The function copies the whole map under a read lock and then iterates this copy unlocked,
// so f may modify the map.
func (m *Map[K, V]) Range(f func(key K, value V) bool) {
	for key, value := range m.CopyData() {
		if !f(key, value) {
			return
		}
	}
}

// Length returns number of stored values.
func (m *Map[K, V]) Length() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.data)
}
