// Package cache implements the sharded LRU cache of spec.md §4.9: N
// power-of-two shards, each a hand-rolled reference-counted LRU with
// an explicit IN-USE list, so that callers holding a Handle never
// have their entry evicted out from under them.
package cache

import (
	"container/list"
	"hash/fnv"
	"sync"
)

// Deleter is invoked, under the owning shard's mutex, when an entry's
// last reference is dropped. It must not call back into the same
// cache shard.
type Deleter func(key []byte, value any)

// entry is the payload behind a Handle. It lives on exactly one of a
// shard's two lists at a time: lru (refs==1, in_cache) or inUse
// (refs>=2, in_cache), or on neither once erased but still held by an
// outstanding Handle.
type entry struct {
	key     string
	value   any
	charge  int
	deleter Deleter
	refs    int
	inCache bool
	list    *list.List
	elem    *list.Element
}

// Handle is an outstanding reference to a cached value. Release must
// be called exactly once per Handle returned by Insert or Lookup.
type Handle struct {
	shard *shard
	e     *entry
}

// Value returns the cached value the handle refers to.
func (h *Handle) Value() any { return h.e.value }

type shard struct {
	mu       sync.Mutex
	capacity int
	usage    int
	lru      *list.List // oldest at Front, newest at Back
	inUse    *list.List // unordered
	table    map[string]*entry
}

func newShard(capacity int) *shard {
	return &shard{
		capacity: capacity,
		lru:      list.New(),
		inUse:    list.New(),
		table:    make(map[string]*entry),
	}
}

func (s *shard) removeFromList(e *entry) {
	if e.list != nil {
		e.list.Remove(e.elem)
		e.list, e.elem = nil, nil
	}
}

// ref promotes e from lru to inUse if this is its first external
// reference, then increments refs.
func (s *shard) ref(e *entry) {
	if e.refs == 1 && e.inCache {
		s.removeFromList(e)
		e.elem = s.inUse.PushBack(e)
		e.list = s.inUse
	}
	e.refs++
}

// unref drops a reference. At refs==0 the entry is gone from both
// lists already (by finishErase or because it was never cached) and
// the deleter runs. At in_cache && refs==1 the entry has lost its
// last external reference and rejoins lru as the newest entry.
func (s *shard) unref(e *entry) {
	e.refs--
	switch {
	case e.refs == 0:
		if e.deleter != nil {
			e.deleter([]byte(e.key), e.value)
		}
	case e.inCache && e.refs == 1:
		s.removeFromList(e)
		e.elem = s.lru.PushBack(e)
		e.list = s.lru
	}
}

// finishErase removes e from whichever list holds it, clears
// in_cache, and drops the cache's own reference. e must already be
// absent from the hash table.
func (s *shard) finishErase(e *entry) {
	if e == nil {
		return
	}
	s.removeFromList(e)
	e.inCache = false
	s.usage -= e.charge
	s.unref(e)
}

func (s *shard) insert(key string, value any, charge int, deleter Deleter) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := &entry{key: key, value: value, charge: charge, deleter: deleter, refs: 1}
	if s.capacity > 0 {
		e.refs++
		e.inCache = true
		e.elem = s.inUse.PushBack(e)
		e.list = s.inUse
		s.usage += charge

		old := s.table[key]
		s.table[key] = e
		s.finishErase(old)
	}

	for s.usage > s.capacity && s.lru.Len() > 0 {
		oldest := s.lru.Front().Value.(*entry)
		delete(s.table, oldest.key)
		s.finishErase(oldest)
	}

	return &Handle{shard: s, e: e}
}

func (s *shard) lookup(key string) (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.table[key]
	if !ok {
		return nil, false
	}
	s.ref(e)
	return &Handle{shard: s, e: e}, true
}

func (s *shard) release(h *Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unref(h.e)
}

func (s *shard) erase(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.table[key]; ok {
		delete(s.table, key)
		s.finishErase(e)
	}
}

func (s *shard) prune() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.lru.Len() > 0 {
		e := s.lru.Front().Value.(*entry)
		delete(s.table, e.key)
		s.finishErase(e)
	}
}

func (s *shard) totalCharge() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

// Cache is the sharded front end: a hash of the key selects one of
// numShards independent shard instances, each with capacity
// ceil(total/numShards).
type Cache struct {
	shards    []*shard
	shardBits uint
}

const defaultShardBits = 4 // 16 shards, per spec.md §4.9's reference

// New returns a Cache with capacity split across 16 shards.
func New(capacity int) *Cache {
	return NewWithShards(capacity, defaultShardBits)
}

// NewWithShards returns a Cache with capacity split across 1<<shardBits
// shards. A single shard (shardBits=0) makes the cache's global
// eviction order exact, at the cost of one shared mutex; this is what
// deterministic tests of the LRU state machine itself should use.
func NewWithShards(capacity int, shardBits uint) *Cache {
	n := 1 << shardBits
	perShard := (capacity + n - 1) / n
	c := &Cache{shardBits: shardBits, shards: make([]*shard, n)}
	for i := range c.shards {
		c.shards[i] = newShard(perShard)
	}
	return c
}

func hashKey(key []byte) uint32 {
	h := fnv.New32a()
	h.Write(key)
	return h.Sum32()
}

func (c *Cache) shardFor(hash uint32) *shard {
	if c.shardBits == 0 {
		return c.shards[0]
	}
	return c.shards[hash>>(32-c.shardBits)]
}

// Insert adds key/value to the cache with the given charge against
// capacity, returning a Handle the caller must Release. If key is
// already present, the old entry is evicted from the cache (existing
// external handles to it remain valid until they are released).
func (c *Cache) Insert(key []byte, value any, charge int, deleter Deleter) *Handle {
	hash := hashKey(key)
	return c.shardFor(hash).insert(string(key), value, charge, deleter)
}

// Lookup returns a Handle for key if present, incrementing its
// reference count.
func (c *Cache) Lookup(key []byte) (*Handle, bool) {
	hash := hashKey(key)
	return c.shardFor(hash).lookup(string(key))
}

// Release drops a reference obtained from Insert or Lookup.
func (c *Cache) Release(h *Handle) {
	h.shard.release(h)
}

// Erase removes key from the cache if present. Outstanding handles to
// it remain valid until released.
func (c *Cache) Erase(key []byte) {
	hash := hashKey(key)
	c.shardFor(hash).erase(string(key))
}

// Prune evicts every entry not currently held by an outstanding
// Handle.
func (c *Cache) Prune() {
	for _, s := range c.shards {
		s.prune()
	}
}

// TotalCharge sums the charge of every entry currently in the cache.
func (c *Cache) TotalCharge() int {
	total := 0
	for _, s := range c.shards {
		total += s.totalCharge()
	}
	return total
}
