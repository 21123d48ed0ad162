package lru

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/pme-sh/lrpc/concurrent"
)

const dead = math.MinInt64 / 2

// Entry is a ref-counted cache slot. Entries with no holders become eligible for
// eviction once they have been idle for the cache's expiry.
type Entry[V any] struct {
	Value   V
	lastUse atomic.Int64
	nAcq    atomic.Int64
}

// TryAcquire takes a reference unless the entry was already evicted.
func (e *Entry[V]) TryAcquire() bool {
	if e.nAcq.Add(1) < 0 {
		return false
	}
	e.Bump()
	return true
}
func (e *Entry[V]) Release() {
	e.Bump()
	e.nAcq.Add(-1)
}
func (e *Entry[V]) Bump() {
	e.lastUse.Store(time.Now().UnixMilli())
}
func (e *Entry[V]) Refs() int64 {
	return max(e.nAcq.Load(), 0)
}

// kill marks the entry dead if nobody holds it and it is idle past threshold.
func (e *Entry[V]) kill(threshold time.Time, force bool) bool {
	if !force && e.lastUse.Load() >= threshold.UnixMilli() {
		return false
	}
	if force {
		e.nAcq.Store(dead)
		return true
	}
	return e.nAcq.CompareAndSwap(0, dead)
}

type pending[V any] struct {
	done  chan struct{}
	entry *Entry[V]
	err   error
}

type Cache[K comparable, V any] struct {
	Expiry          time.Duration
	CleanupInterval time.Duration
	New             func(K, *Entry[V]) error
	Evict           func(K, V)

	underlying    concurrent.Map[K, *Entry[V]]
	creating      concurrent.Map[K, *pending[V]]
	itemCount     atomic.Int64
	cleanupTicker atomic.Pointer[time.Ticker]
}

func (c *Cache[K, V]) Len() int { return int(c.itemCount.Load()) }

func (c *Cache[K, V]) Delete(key K) {
	if e, ok := c.underlying.LoadAndDelete(key); ok {
		e.kill(time.Time{}, true)
		c.onDelete(key, e.Value)
	}
}

// Remove evicts key only while it still maps to e.
func (c *Cache[K, V]) Remove(key K, e *Entry[V]) bool {
	if c.underlying.CompareAndDelete(key, e) {
		e.kill(time.Time{}, true)
		c.onDelete(key, e.Value)
		return true
	}
	return false
}

func (c *Cache[K, V]) Cleanup() {
	threshold := time.Now().Add(-c.Expiry)
	c.underlying.Range(func(key K, e *Entry[V]) bool {
		if e.kill(threshold, false) && c.underlying.CompareAndDelete(key, e) {
			c.onDelete(key, e.Value)
		}
		return true
	})
}

// Close evicts every entry, held or not, and stops the cleanup loop.
func (c *Cache[K, V]) Close() {
	if t := c.cleanupTicker.Swap(nil); t != nil {
		t.Stop()
	}
	c.underlying.Range(func(key K, e *Entry[V]) bool {
		c.Remove(key, e)
		return true
	})
}

func (c *Cache[K, V]) onDelete(k K, v V) {
	c.itemCount.Add(-1)
	if c.Evict != nil {
		c.Evict(k, v)
	}
}
func (c *Cache[K, V]) onInsert() {
	if c.itemCount.Add(1) == 1 && c.CleanupInterval > 0 {
		ticker := time.NewTicker(c.CleanupInterval)
		if prev := c.cleanupTicker.Swap(ticker); prev != nil {
			prev.Stop()
		}
		go func() {
			defer ticker.Stop()
			for range ticker.C {
				c.Cleanup()
				if c.itemCount.Load() == 0 {
					c.cleanupTicker.CompareAndSwap(ticker, nil)
					return
				}
			}
		}()
	}
}

func (c *Cache[K, V]) SetEntry(key K, v *Entry[V]) (result *Entry[V], ok bool) {
	v.Bump()
	actual, loaded := c.underlying.LoadOrStore(key, v)
	if !loaded {
		c.onInsert()
		return v, true
	}
	return actual, false
}
func (c *Cache[K, V]) GetEntryIf(key K) (value *Entry[V], ok bool) {
	value, ok = c.underlying.Load(key)
	if ok {
		value.Bump()
	}
	return
}

// GetEntry returns the entry for key, creating it with New at most once per key
// even under concurrent misses.
func (c *Cache[K, V]) GetEntry(key K) (*Entry[V], error) {
	for {
		if e, ok := c.GetEntryIf(key); ok {
			return e, nil
		}
		if c.New == nil {
			return nil, nil
		}

		p := &pending[V]{done: make(chan struct{})}
		if other, loaded := c.creating.LoadOrStore(key, p); loaded {
			<-other.done
			if other.err != nil {
				return nil, other.err
			}
			continue
		}

		e := &Entry[V]{}
		p.err = c.New(key, e)
		if p.err == nil {
			if actual, ok := c.SetEntry(key, e); !ok {
				if c.Evict != nil {
					c.Evict(key, e.Value)
				}
				e = actual
			}
			p.entry = e
		}
		c.creating.Delete(key)
		close(p.done)
		return p.entry, p.err
	}
}

// Acquire is GetEntry plus a reference that the caller must Release.
func (c *Cache[K, V]) Acquire(key K) (*Entry[V], error) {
	for {
		e, err := c.GetEntry(key)
		if err != nil || e == nil {
			return e, err
		}
		if e.TryAcquire() {
			return e, nil
		}
		c.Remove(key, e)
	}
}

func (c *Cache[K, V]) Set(key K, value V) (result V, ok bool) {
	r, ok := c.SetEntry(key, &Entry[V]{Value: value})
	return r.Value, ok
}
func (c *Cache[K, V]) GetIf(key K) (value V, ok bool) {
	e, ok := c.GetEntryIf(key)
	if ok {
		value = e.Value
	}
	return
}
func (c *Cache[K, V]) Get(key K) (value V, err error) {
	e, err := c.GetEntry(key)
	if err == nil && e != nil {
		value = e.Value
	}
	return
}
