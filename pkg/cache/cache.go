package cache

import (
	"time"

	"github.com/plgd-dev/coap-engine/pkg/sync"
)

// Element is a cached value with an optional expiration time.
type Element[T any] struct {
	validUntil time.Time
	data       T
	onExpire   func(d T)
}

// NewElement creates element that can be stored in the cache.
// A zero validUntil means the element never expires.
func NewElement[T any](data T, validUntil time.Time, onExpire func(d T)) *Element[T] {
	if onExpire == nil {
		onExpire = func(T) {
			// NO-OP as default
		}
	}
	return &Element[T]{data: data, validUntil: validUntil, onExpire: onExpire}
}

func (e *Element[T]) IsExpired(now time.Time) bool {
	if e.validUntil.IsZero() {
		return false
	}
	return now.After(e.validUntil)
}

func (e *Element[T]) Data() T {
	return e.data
}

func (e *Element[T]) ValidUntil() time.Time {
	return e.validUntil
}

// Cache is a concurrent map whose elements expire.
type Cache[K comparable, V any] struct {
	data *sync.Map[K, *Element[V]]
	now  func() time.Time
}

// NewCache creates a new cache using wall clock time.
func NewCache[K comparable, V any]() *Cache[K, V] {
	return NewCacheWithClock[K, V](time.Now)
}

// NewCacheWithClock creates a new cache which evaluates expirations against now.
func NewCacheWithClock[K comparable, V any](now func() time.Time) *Cache[K, V] {
	return &Cache[K, V]{
		data: sync.NewMap[K, *Element[V]](),
		now:  now,
	}
}

// LoadOrStore loads or creates a new element for key.
//
// If an unexpired element for the key exists then this element (oldE) is returned
// and the loaded value is set to true. Otherwise e is stored and (e, false) is returned.
func (c *Cache[K, V]) LoadOrStore(key K, e *Element[V]) (actual *Element[V], loaded bool) {
	now := c.now()
	c.data.ReplaceWithFunc(key, func(oldValue *Element[V], oldLoaded bool) (*Element[V], bool) {
		if oldLoaded && !oldValue.IsExpired(now) {
			actual = oldValue
			return oldValue, false
		}
		actual = e
		return e, false
	})
	return actual, actual != e
}

// Load loads unexpired element with given key from cache. It returns nil when the
// element is missing or expired.
func (c *Cache[K, V]) Load(key K) *Element[V] {
	a, ok := c.data.Load(key)
	if !ok || a.IsExpired(c.now()) {
		return nil
	}
	return a
}

// Delete removes the element for given key from the cache.
func (c *Cache[K, V]) Delete(key K) (deleted bool) {
	return c.data.Delete(key)
}

// Range calls f for every element, expired ones included.
func (c *Cache[K, V]) Range(f func(key K, value *Element[V]) bool) {
	c.data.Range(f)
}

// CheckExpirations iterates over all elements in the cache, checks each for expiration,
// deletes expired elements from cache and invokes onExpire function on the element.
func (c *Cache[K, V]) CheckExpirations(now time.Time) {
	for k, e := range c.data.CopyData() {
		if e.IsExpired(now) {
			c.data.Delete(k)
			e.onExpire(e.data)
		}
	}
}

// LoadAndDeleteAll removes all elements from the cache and returns them in a map.
func (c *Cache[K, V]) LoadAndDeleteAll() map[K]V {
	res := make(map[K]V)
	for key, value := range c.data.LoadAndDeleteAll() {
		res[key] = value.Data()
	}
	return res
}

// Length returns number of stored elements, expired ones included.
func (c *Cache[K, V]) Length() int {
	return c.data.Length()
}
