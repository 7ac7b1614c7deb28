package cache

import (
	"sort"
	"testing"
)

// present reports whether key can currently be looked up, releasing
// the handle immediately afterward so the lookup itself doesn't
// perturb later eviction decisions beyond the expected LRU bump.
func present(c *Cache, key string) bool {
	h, ok := c.Lookup([]byte(key))
	if ok {
		c.Release(h)
	}
	return ok
}

func TestCacheScenarioSixEvictionSequence(t *testing.T) {
	// spec.md §8 scenario 6, run on a single shard so eviction order
	// is exact rather than merely per-shard.
	c := NewWithShards(3, 0)
	var evicted []string
	deleter := func(key []byte, value any) { evicted = append(evicted, string(key)) }

	insertAndRelease := func(key string) {
		h := c.Insert([]byte(key), key, 1, deleter)
		c.Release(h)
	}

	insertAndRelease("A")
	insertAndRelease("B")
	insertAndRelease("C")
	for _, k := range []string{"A", "B", "C"} {
		if !present(c, k) {
			t.Fatalf("%s should be present after insert", k)
		}
	}

	aHandle, ok := c.Lookup([]byte("A"))
	if !ok {
		t.Fatalf("expected A to be found")
	}

	insertAndRelease("D")
	if present(c, "B") {
		t.Fatalf("B should have been evicted by D (B was the oldest LRU entry)")
	}
	if !present(c, "A") || !present(c, "C") || !present(c, "D") {
		t.Fatalf("A, C, D should all still be present")
	}

	c.Release(aHandle) // A rejoins LRU as newest

	insertAndRelease("E")
	if present(c, "C") {
		t.Fatalf("C should have been evicted by E")
	}

	var remaining []string
	for _, k := range []string{"A", "B", "C", "D", "E"} {
		if present(c, k) {
			remaining = append(remaining, k)
		}
	}
	sort.Strings(remaining)
	want := []string{"A", "D", "E"}
	if len(remaining) != len(want) {
		t.Fatalf("remaining = %v, want %v", remaining, want)
	}
	for i := range want {
		if remaining[i] != want[i] {
			t.Fatalf("remaining = %v, want %v", remaining, want)
		}
	}

	sort.Strings(evicted)
	wantEvicted := []string{"B", "C"}
	if len(evicted) != len(wantEvicted) || evicted[0] != wantEvicted[0] || evicted[1] != wantEvicted[1] {
		t.Fatalf("evicted = %v, want %v", evicted, wantEvicted)
	}
}

func TestCacheUsageNeverExceedsCapacity(t *testing.T) {
	c := NewWithShards(5, 0)
	for i := 0; i < 100; i++ {
		key := []byte{byte(i)}
		h := c.Insert(key, i, 1, func([]byte, any) {})
		c.Release(h)
		if c.TotalCharge() > 5 {
			t.Fatalf("usage %d exceeds capacity 5 after inserting %d entries", c.TotalCharge(), i+1)
		}
	}
}

func TestCacheEveryKeyPresentOrDeletedExactlyOnce(t *testing.T) {
	c := NewWithShards(4, 0)
	deleted := make(map[string]int)
	for i := 0; i < 20; i++ {
		key := string([]byte{byte('a' + i)})
		h := c.Insert([]byte(key), i, 1, func(k []byte, _ any) { deleted[string(k)]++ })
		c.Release(h)
	}
	for i := 0; i < 20; i++ {
		key := string([]byte{byte('a' + i)})
		count := deleted[key]
		if present(c, key) {
			if count != 0 {
				t.Fatalf("key %s is present but its deleter also ran %d times", key, count)
			}
		} else if count != 1 {
			t.Fatalf("key %s is absent but its deleter ran %d times, want 1", key, count)
		}
	}
}

func TestCacheHeldHandlePinsEntryAgainstEviction(t *testing.T) {
	c := NewWithShards(2, 0)
	var evicted []string
	deleter := func(key []byte, value any) { evicted = append(evicted, string(key)) }

	h := c.Insert([]byte("pinned"), "v", 1, deleter)
	insertRelease := func(key string) {
		hh := c.Insert([]byte(key), key, 1, deleter)
		c.Release(hh)
	}
	insertRelease("x")
	insertRelease("y") // would evict "pinned" if it were on LRU, but it's still held

	for _, k := range evicted {
		if k == "pinned" {
			t.Fatalf("pinned entry was evicted while an external handle was outstanding")
		}
	}
	c.Release(h)
}

func TestCacheReinsertReplacesOldEntry(t *testing.T) {
	c := NewWithShards(4, 0)
	var evicted []string
	deleter := func(key []byte, value any) { evicted = append(evicted, string(key)) }

	h1 := c.Insert([]byte("k"), "v1", 1, deleter)
	c.Release(h1)

	h2 := c.Insert([]byte("k"), "v2", 1, deleter)
	defer c.Release(h2)

	if len(evicted) != 1 || evicted[0] != "k" {
		t.Fatalf("expected the stale v1 entry's deleter to fire once, got %v", evicted)
	}
	hLookup, ok := c.Lookup([]byte("k"))
	if !ok || hLookup.Value().(string) != "v2" {
		t.Fatalf("expected lookup to find v2")
	}
	c.Release(hLookup)
}

func TestCacheErase(t *testing.T) {
	c := NewWithShards(4, 0)
	deleted := 0
	h := c.Insert([]byte("k"), "v", 1, func([]byte, any) { deleted++ })
	c.Release(h)

	c.Erase([]byte("k"))
	if present(c, "k") {
		t.Fatalf("expected k to be erased")
	}
	if deleted != 1 {
		t.Fatalf("expected the deleter to run once on erase, ran %d times", deleted)
	}
}

func TestCachePrunesOnlyUnreferencedEntries(t *testing.T) {
	c := NewWithShards(4, 0)
	var evicted []string
	deleter := func(key []byte, value any) { evicted = append(evicted, string(key)) }

	h := c.Insert([]byte("held"), "v", 1, deleter)
	insertRelease := func(key string) {
		hh := c.Insert([]byte(key), key, 1, deleter)
		c.Release(hh)
	}
	insertRelease("idle")

	c.Prune()
	if present(c, "idle") {
		t.Fatalf("expected idle (unreferenced) entry to be pruned")
	}
	if !present(c, "held") {
		t.Fatalf("expected held (referenced) entry to survive Prune")
	}
	c.Release(h)
}

func TestCacheZeroCapacityDisablesCaching(t *testing.T) {
	c := NewWithShards(0, 0)
	deleted := 0
	h := c.Insert([]byte("k"), "v", 1, func([]byte, any) { deleted++ })
	c.Release(h)
	if deleted != 1 {
		t.Fatalf("expected the deleter to fire immediately when capacity is 0")
	}
	if present(c, "k") {
		t.Fatalf("expected nothing to be cached when capacity is 0")
	}
}
