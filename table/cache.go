package table

import (
	"encoding/binary"

	"ridgedb/cache"
)

// blockCache is the shape Reader needs to cache decoded blocks by file
// offset, kept narrow so it can be swapped for a no-op when caching is
// disabled.
type blockCache interface {
	Get(key any) (val any, ok bool)
	Add(key, val any)
}

// lruBlockCache backs blockCache with the spec's own sharded LRU
// (package cache), not a third-party black box: the block cache is
// part of the core's cache contract (spec.md §4.9) and its
// eviction/refcount behavior is one of the module's own testable
// properties (§8), so it cannot be handed off to an opaque
// implementation the way the file-handle cache (opentables.go) can.
//
// A decoded *block.Reader owns no external resource, so its cache
// handle is released immediately after every Get/Add: eviction only
// drops the cache's bookkeeping, never the caller's live reference.
type lruBlockCache struct {
	c *cache.Cache
}

func newBlockCache(size int) blockCache {
	if size <= 0 {
		return nullBlockCache{}
	}
	return &lruBlockCache{c: cache.New(size)}
}

func offsetKey(offset uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], offset)
	return buf[:]
}

func (bc *lruBlockCache) Get(key any) (any, bool) {
	h, ok := bc.c.Lookup(offsetKey(key.(uint64)))
	if !ok {
		return nil, false
	}
	val := h.Value()
	bc.c.Release(h)
	return val, true
}

func (bc *lruBlockCache) Add(key, val any) {
	h := bc.c.Insert(offsetKey(key.(uint64)), val, 1, nil)
	bc.c.Release(h)
}

type nullBlockCache struct{}

func (nullBlockCache) Get(key any) (any, bool) { return nil, false }
func (nullBlockCache) Add(key, val any)        {}
