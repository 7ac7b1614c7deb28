package table

import (
	"io"

	lru "github.com/hashicorp/golang-lru"
)

// Opener produces the backing random-access file and its size for a
// table at path. The core never opens files itself (spec.md §1 places
// the file/environment abstraction out of scope); the caller supplies
// this.
type Opener func(path string) (file io.ReaderAt, size int64, err error)

// OpenTables caches opened *Reader by file path so a hot table's
// footer, index, and metaindex blocks are parsed once rather than on
// every access, mirroring reader.Cache/WithCache in the teacher
// (teepeedb's db_opt.go), generalized from a per-block cache keyed by
// offset to a per-file cache keyed by path. Unlike the block cache
// (cache.go), an evicted entry here carries no refcount contract the
// module's own tests depend on, so a plain third-party LRU is the
// right tool.
type OpenTables struct {
	opts   Options
	open   Opener
	tables *lru.Cache
}

// NewOpenTables returns a table cache holding up to size open Readers,
// each built by calling open the first time its path is requested.
func NewOpenTables(size int, open Opener, opts Options) *OpenTables {
	c, err := lru.New(size)
	if err != nil {
		panic(err)
	}
	return &OpenTables{opts: opts, open: open, tables: c}
}

// Get returns the Reader for path, opening and caching it on a miss.
func (o *OpenTables) Get(path string) (*Reader, error) {
	if v, ok := o.tables.Get(path); ok {
		return v.(*Reader), nil
	}
	file, size, err := o.open(path)
	if err != nil {
		return nil, err
	}
	r, err := Open(file, size, o.opts)
	if err != nil {
		return nil, err
	}
	o.tables.Add(path, r)
	return r, nil
}

// Evict drops path's cached Reader, if any, so a subsequent Get
// reopens it — e.g. once a compaction has replaced the underlying
// file at that path.
func (o *OpenTables) Evict(path string) {
	o.tables.Remove(path)
}
