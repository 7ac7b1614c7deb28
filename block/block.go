// Package block implements the prefix-compressed sorted block format of
// spec.md §4.6: a run of key/value entries delta-encoded against the
// previous key, punctuated every blockRestartInterval entries by a
// restart point (an entry stored with no shared prefix), followed by
// the restart offset array and its count.
package block

import (
	"bytes"
	"encoding/binary"

	"ridgedb/internal/varint"
)

// Compression identifies how a raw block's bytes are encoded on disk,
// the single trailer byte described in spec.md §3/§6.
type Compression byte

const (
	NoCompression  Compression = 0
	Lz4Compression Compression = 1
)

// Builder accumulates entries into one block. The zero value is not
// usable; construct with NewBuilder.
type Builder struct {
	restartInterval int
	buf             []byte
	restarts        []uint32
	counter         int
	count           int
	lastKey         []byte
}

// NewBuilder returns a Builder that emits a restart point at least
// every restartInterval entries (clamped to >= 1).
func NewBuilder(restartInterval int) *Builder {
	if restartInterval < 1 {
		restartInterval = 1
	}
	return &Builder{
		restartInterval: restartInterval,
		restarts:        []uint32{0},
	}
}

// Reset clears the builder so it can be reused for the next block.
func (b *Builder) Reset() {
	b.buf = b.buf[:0]
	b.restarts = append(b.restarts[:0], 0)
	b.counter = 0
	b.count = 0
	b.lastKey = b.lastKey[:0]
}

// Empty reports whether any entries have been added since the last
// Reset.
func (b *Builder) Empty() bool { return len(b.buf) == 0 }

// NumEntries returns the number of entries added since the last Reset.
func (b *Builder) NumEntries() int { return b.count }

// CurrentSizeEstimate estimates the encoded size of the block if
// Finish were called right now, including the restart array.
func (b *Builder) CurrentSizeEstimate() int {
	return len(b.buf) + len(b.restarts)*4 + 4
}

// Add appends a key/value entry. Keys must arrive in strictly
// increasing order; the caller (the table builder) is responsible for
// enforcing that (spec.md §4.8). Iterator.Seek compares keys bytewise
// (bytes.Compare).
func (b *Builder) Add(key, value []byte) {
	shared := 0
	if b.counter < b.restartInterval {
		n := len(b.lastKey)
		if len(key) < n {
			n = len(key)
		}
		for shared < n && b.lastKey[shared] == key[shared] {
			shared++
		}
	} else {
		b.restarts = append(b.restarts, uint32(len(b.buf)))
		b.counter = 0
	}

	nonShared := len(key) - shared
	b.buf = varint.PutUvarint32(b.buf, uint32(shared))
	b.buf = varint.PutUvarint32(b.buf, uint32(nonShared))
	b.buf = varint.PutUvarint32(b.buf, uint32(len(value)))
	b.buf = append(b.buf, key[shared:]...)
	b.buf = append(b.buf, value...)

	b.lastKey = append(b.lastKey[:0], key...)
	b.counter++
	b.count++
}

// Finish appends the restart array and its count to the block body and
// returns the resulting bytes. The returned slice aliases the
// Builder's internal buffer and is invalidated by the next Add or
// Reset.
func (b *Builder) Finish() []byte {
	for _, r := range b.restarts {
		b.buf = binary.LittleEndian.AppendUint32(b.buf, r)
	}
	b.buf = binary.LittleEndian.AppendUint32(b.buf, uint32(len(b.restarts)))
	return b.buf
}

// Reader decodes a finished block's bytes for search and iteration.
type Reader struct {
	data          []byte
	restartOffset int
	numRestarts   int
}

// NewReader wraps the bytes returned by Builder.Finish (or read back
// from a table file) for search and iteration.
func NewReader(data []byte) *Reader {
	n := len(data)
	numRestarts := int(binary.LittleEndian.Uint32(data[n-4:]))
	restartOffset := n - 4 - numRestarts*4
	return &Reader{data: data, restartOffset: restartOffset, numRestarts: numRestarts}
}

func (r *Reader) restartPoint(i int) int {
	return int(binary.LittleEndian.Uint32(r.data[r.restartOffset+4*i:]))
}

func (r *Reader) decodeAt(off int, prevKey []byte) (key, value []byte, next int, ok bool) {
	if off >= r.restartOffset {
		return nil, nil, off, false
	}
	data := r.data
	shared, n1 := varint.Uvarint32(data[off:])
	if n1 == 0 {
		return nil, nil, off, false
	}
	nonShared, n2 := varint.Uvarint32(data[off+n1:])
	if n2 == 0 {
		return nil, nil, off, false
	}
	valLen, n3 := varint.Uvarint32(data[off+n1+n2:])
	if n3 == 0 {
		return nil, nil, off, false
	}

	start := off + n1 + n2 + n3
	end := start + int(nonShared)
	if end > r.restartOffset || int(shared) > len(prevKey) {
		return nil, nil, off, false
	}

	key = make([]byte, int(shared)+int(nonShared))
	copy(key, prevKey[:shared])
	copy(key[shared:], data[start:end])

	valEnd := end + int(valLen)
	if valEnd > r.restartOffset {
		return nil, nil, off, false
	}
	value = data[end:valEnd]
	return key, value, valEnd, true
}

// Iterator traverses a block's entries in key order, supporting binary
// search by restart point (spec.md §4.6).
type Iterator struct {
	r             *Reader
	restartIndex  int
	currentOffset int
	nextOffset    int
	key           []byte
	value         []byte
	valid         bool
}

// NewIterator returns an iterator over r, initially invalid.
func (r *Reader) NewIterator() *Iterator {
	return &Iterator{r: r}
}

func (it *Iterator) Valid() bool   { return it.valid }
func (it *Iterator) Key() []byte   { return it.key }
func (it *Iterator) Value() []byte { return it.value }

func (it *Iterator) seekToRestartPoint(index int) {
	it.restartIndex = index
	it.nextOffset = it.r.restartPoint(index)
	it.key = it.key[:0]
	it.value = nil
	it.valid = false
}

func (it *Iterator) decodeNext() bool {
	key, value, next, ok := it.r.decodeAt(it.nextOffset, it.key)
	if !ok {
		it.valid = false
		return false
	}
	it.currentOffset = it.nextOffset
	it.key = key
	it.value = value
	it.nextOffset = next
	it.valid = true
	for it.restartIndex+1 < it.r.numRestarts && it.r.restartPoint(it.restartIndex+1) <= it.currentOffset {
		it.restartIndex++
	}
	return true
}

// SeekFirst positions the iterator at the block's first entry.
func (it *Iterator) SeekFirst() {
	it.seekToRestartPoint(0)
	it.decodeNext()
}

// SeekLast positions the iterator at the block's last entry.
func (it *Iterator) SeekLast() {
	it.seekToRestartPoint(it.r.numRestarts - 1)
	for it.decodeNext() {
		if it.nextOffset >= it.r.restartOffset {
			break
		}
	}
}

// Next advances to the next entry. Valid must be true.
func (it *Iterator) Next() {
	if !it.valid {
		panic("block: Next called on invalid iterator")
	}
	it.decodeNext()
}

// Prev moves to the preceding entry. Valid must be true.
func (it *Iterator) Prev() {
	if !it.valid {
		panic("block: Prev called on invalid iterator")
	}
	original := it.currentOffset
	idx := it.restartIndex
	for idx > 0 && it.r.restartPoint(idx) >= original {
		idx--
	}
	if it.r.restartPoint(idx) >= original {
		// already at the block's first entry: nothing precedes it.
		it.seekToRestartPoint(idx)
		return
	}
	it.seekToRestartPoint(idx)
	for it.decodeNext() && it.nextOffset < original {
	}
}

// Seek positions the iterator at the first entry whose key is >=
// target, binary-searching the restart array before scanning linearly
// within the chosen restart region (spec.md §4.6).
func (it *Iterator) Seek(target []byte) {
	left, right := 0, it.r.numRestarts-1
	for left < right {
		mid := (left + right + 1) / 2
		it.seekToRestartPoint(mid)
		if it.decodeNext() && bytes.Compare(it.key, target) < 0 {
			left = mid
		} else {
			right = mid - 1
		}
	}
	it.seekToRestartPoint(left)
	for it.decodeNext() {
		if bytes.Compare(it.key, target) >= 0 {
			return
		}
	}
}
