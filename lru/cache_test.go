package lru

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetEntryCreatesOnce(t *testing.T) {
	var created atomic.Int32
	c := &Cache[string, int]{
		New: func(k string, e *Entry[int]) error {
			created.Add(1)
			time.Sleep(10 * time.Millisecond)
			e.Value = len(k)
			return nil
		},
	}
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v, err := c.Get("abc"); err != nil || v != 3 {
				t.Errorf("get returned %d, %v", v, err)
			}
		}()
	}
	wg.Wait()
	if n := created.Load(); n != 1 {
		t.Fatalf("expected a single creation, got %d", n)
	}
	if c.Len() != 1 {
		t.Fatalf("expected one entry, got %d", c.Len())
	}
}

func TestCleanupSkipsHeldEntries(t *testing.T) {
	var evicted []string
	c := &Cache[string, string]{
		Expiry: time.Millisecond,
		New: func(k string, e *Entry[string]) error {
			e.Value = k
			return nil
		},
		Evict: func(k string, _ string) { evicted = append(evicted, k) },
	}
	held, err := c.Acquire("held")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get("idle"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	c.Cleanup()
	if len(evicted) != 1 || evicted[0] != "idle" {
		t.Fatalf("expected only the idle entry to be evicted, got %v", evicted)
	}

	held.Release()
	time.Sleep(5 * time.Millisecond)
	c.Cleanup()
	if len(evicted) != 2 || c.Len() != 0 {
		t.Fatalf("expected released entry to expire, got %v (len %d)", evicted, c.Len())
	}
	if held.TryAcquire() {
		t.Fatal("evicted entry could be acquired")
	}
}

func TestClose(t *testing.T) {
	var evicted atomic.Int32
	c := &Cache[int, int]{
		New:   func(k int, e *Entry[int]) error { e.Value = k; return nil },
		Evict: func(int, int) { evicted.Add(1) },
	}
	for i := 0; i < 4; i++ {
		if _, err := c.Acquire(i); err != nil {
			t.Fatal(err)
		}
	}
	c.Close()
	if evicted.Load() != 4 || c.Len() != 0 {
		t.Fatalf("expected all entries evicted, got %d (len %d)", evicted.Load(), c.Len())
	}
}
