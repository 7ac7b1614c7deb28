// Package memtable implements the in-memory table of spec.md §4.4: a
// skiplist of length-prefixed internal-key entries, backed by an
// Arena, reference counted by the caller (the outer engine owns the
// reference-counting policy; this package just exposes Ref/Unref hooks
// it can drive).
package memtable

import (
	"sync/atomic"

	"ridgedb/arena"
	"ridgedb/comparator"
	"ridgedb/ikey"
	"ridgedb/internal/varint"
	"ridgedb/skiplist"
)

// entryComparator adapts the internal-key comparator to the opaque
// byte-slice comparator the skiplist expects, decoding the
// memtable-entry shape of spec.md §3 before delegating.
type entryComparator struct {
	icmp ikey.Comparator
}

func (c entryComparator) Compare(a, b []byte) int {
	return c.icmp.Compare(internalKeyOf(a), internalKeyOf(b))
}

func internalKeyOf(entry []byte) []byte {
	size, n := varint.Uvarint32(entry)
	return entry[n : n+int(size)]
}

// Table is the memtable proper: an arena-backed skiplist of encoded
// entries, compared in internal-key order.
type Table struct {
	arena    arena.Arena
	list     *skiplist.Skiplist
	icmp     ikey.Comparator
	refs     atomic.Int32
	approxSz atomic.Int64
}

// New returns an empty, ref-count-1 memtable ordered by userCmp (the
// default is comparator.Bytewise).
func New(userCmp comparator.Comparator) *Table {
	icmp := ikey.NewComparator(userCmp)
	t := &Table{icmp: icmp}
	t.list = skiplist.New(entryComparator{icmp: icmp})
	t.refs.Store(1)
	return t
}

// Ref increments the reference count.
func (t *Table) Ref() { t.refs.Add(1) }

// Unref decrements the reference count and reports whether this was
// the last reference. The caller is responsible for dropping the
// table once the last reference is released (spec.md §5).
func (t *Table) Unref() (last bool) {
	return t.refs.Add(-1) == 0
}

// ApproximateMemoryUsage estimates the bytes consumed by entries added
// so far, used by the caller to decide when to freeze and flush this
// table (spec.md §2).
func (t *Table) ApproximateMemoryUsage() int64 {
	return t.arena.MemoryUsage()
}

// Add encodes (seq, type, userKey, value) into the arena as a
// memtable entry and inserts it into the skiplist (spec.md §4.4).
func (t *Table) Add(seq ikey.SequenceNumber, typ ikey.ValueType, userKey, value []byte) {
	internalSize := len(userKey) + 8
	valSize := 0
	if typ != ikey.TypeDeletion {
		valSize = len(value)
	}
	encodedLen := varint.Len32(uint32(internalSize)) + internalSize +
		varint.Len32(uint32(valSize)) + valSize

	buf := t.arena.AllocateAligned(encodedLen)
	dst := buf[:0]
	dst = varint.PutUvarint32(dst, uint32(internalSize))
	dst = ikey.AppendInternalKey(dst, userKey, seq, typ)
	dst = varint.PutUvarint32(dst, uint32(valSize))
	if valSize > 0 {
		dst = append(dst, value...)
	}

	t.list.Insert(dst)
}

// LookupResult reports the outcome of Get.
type LookupResult int

const (
	NotFound LookupResult = iota
	FoundValue
	FoundTombstone
)

// Get seeks the skiplist to userKey at seq and inspects the newest
// matching entry (spec.md §4.4). It does not need to re-check the
// sequence bound explicitly: entries with a sequence greater than seq
// encode a larger tag and therefore sort before the probe key, so the
// first candidate the skiplist returns is already the newest visible
// one.
func (t *Table) Get(userKey []byte, seq ikey.SequenceNumber) (value []byte, result LookupResult) {
	lookup := ikey.AppendLookupKey(nil, userKey, seq)

	it := t.list.NewIterator()
	it.Seek(lookup)
	if !it.Valid() {
		return nil, NotFound
	}

	entry := it.Key()
	candidateUser, tag, _, ok := ikey.MemtableKeyUserKey(entry)
	if !ok {
		panic("memtable: malformed skiplist entry")
	}
	if t.icmp.UserCmp.Compare(candidateUser, userKey) != 0 {
		return nil, NotFound
	}

	_, typ := ikey.UnpackTag(tag)
	if typ == ikey.TypeDeletion {
		return nil, FoundTombstone
	}

	internalSize := len(candidateUser) + 8
	_, n := varint.Uvarint32(entry)
	rest := entry[n+internalSize:]
	valSize, vn := varint.Uvarint32(rest)
	return rest[vn : vn+int(valSize)], FoundValue
}

// Iterator yields memtable entries (the length-prefixed internal-key
// shape of spec.md §3) in ascending internal-key order.
type Iterator struct {
	it *skiplist.Iterator
}

// NewIterator returns an iterator over the memtable's entries.
func (t *Table) NewIterator() *Iterator {
	return &Iterator{it: t.list.NewIterator()}
}

func (it *Iterator) Valid() bool   { return it.it.Valid() }
func (it *Iterator) SeekFirst()    { it.it.SeekFirst() }
func (it *Iterator) SeekLast()     { it.it.SeekLast() }
func (it *Iterator) Next()         { it.it.Next() }
func (it *Iterator) Prev()         { it.it.Prev() }

// SeekUserKey positions the iterator at the first entry whose internal
// key is >= the internal key (userKey, seq, ikey.ValueTypeForSeek).
func (it *Iterator) SeekUserKey(userKey []byte, seq ikey.SequenceNumber) {
	it.it.Seek(ikey.AppendLookupKey(nil, userKey, seq))
}

// Seek positions the iterator at the first entry whose internal key is
// >= internalKey, the exact user_key‖tag bytes. Used by callers (the
// merging iterator) that already hold a complete internal key.
func (it *Iterator) Seek(internalKey []byte) {
	lookup := varint.PutUvarint32(nil, uint32(len(internalKey)))
	lookup = append(lookup, internalKey...)
	it.it.Seek(lookup)
}

// Entry returns the raw memtable-entry bytes at the current position.
func (it *Iterator) Entry() []byte { return it.it.Key() }

// Key returns the internal key (user key ‖ tag) at the current
// position, stripped of its length prefix.
func (it *Iterator) Key() []byte {
	return internalKeyOf(it.it.Key())
}

// InternalKey is an alias for Key, named for readability at memtable
// call sites that are unambiguously about internal keys.
func (it *Iterator) InternalKey() []byte { return it.Key() }

// Value returns the value bytes at the current position. A deletion
// entry stores no value, so Value returns an empty slice for it.
func (it *Iterator) Value() []byte {
	entry := it.it.Key()
	userKey, _, _, _ := ikey.MemtableKeyUserKey(entry)
	internalSize := len(userKey) + 8
	_, n := varint.Uvarint32(entry)
	rest := entry[n+internalSize:]
	valSize, vn := varint.Uvarint32(rest)
	return rest[vn : vn+int(valSize)]
}
