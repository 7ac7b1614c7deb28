// Package filter implements the per-table filter block of spec.md §4.7
// together with a bloom filter Policy (spec.md §4.7.1): a per-range
// key-membership summary that lets a table reader skip a block lookup
// when a key is provably absent.
package filter

import "encoding/binary"

// Policy computes and evaluates a filter over a set of keys. CreateFilter
// receives all keys added while one byte-offset window was current;
// KeyMayMatch reports whether key might be a member of a filter
// previously produced by CreateFilter. False positives are allowed;
// false negatives are not.
type Policy interface {
	Name() string
	CreateFilter(keys [][]byte) []byte
	KeyMayMatch(key, filter []byte) bool
}

// baseLg and base define the byte-offset window size (2048 bytes) over
// which one filter is computed, per spec.md §4.7.
const baseLg = 11
const base = 1 << baseLg

// BlockBuilder accumulates keys into per-window filters and assembles
// the finished filter block.
type BlockBuilder struct {
	policy Policy

	keys   []byte
	starts []int

	result        []byte
	filterOffsets []uint32
}

// NewBlockBuilder returns a builder that computes filters with policy.
func NewBlockBuilder(policy Policy) *BlockBuilder {
	return &BlockBuilder{policy: policy}
}

// StartBlock closes out any byte-offset windows elapsed by the start of
// a new data block, emitting an (possibly empty) filter for each.
func (b *BlockBuilder) StartBlock(blockOffset uint64) {
	filterIndex := blockOffset / base
	for uint64(len(b.filterOffsets)) < filterIndex {
		b.generateFilter()
	}
}

// AddKey records a key's membership in the filter currently being
// accumulated.
func (b *BlockBuilder) AddKey(key []byte) {
	b.starts = append(b.starts, len(b.keys))
	b.keys = append(b.keys, key...)
}

// Finish closes out the last filter and returns the encoded filter
// block: filter_data ‖ filter_offsets[m](4 each) ‖ offsets_array_offset(4)
// ‖ base_lg(1).
func (b *BlockBuilder) Finish() []byte {
	if len(b.starts) > 0 {
		b.generateFilter()
	}
	arrayOffset := uint32(len(b.result))
	for _, off := range b.filterOffsets {
		b.result = binary.LittleEndian.AppendUint32(b.result, off)
	}
	b.result = binary.LittleEndian.AppendUint32(b.result, arrayOffset)
	b.result = append(b.result, byte(baseLg))
	return b.result
}

func (b *BlockBuilder) generateFilter() {
	b.filterOffsets = append(b.filterOffsets, uint32(len(b.result)))
	if len(b.starts) == 0 {
		return
	}
	b.starts = append(b.starts, len(b.keys))
	keys := make([][]byte, len(b.starts)-1)
	for i := range keys {
		keys[i] = b.keys[b.starts[i]:b.starts[i+1]]
	}
	b.result = append(b.result, b.policy.CreateFilter(keys)...)

	b.keys = b.keys[:0]
	b.starts = b.starts[:0]
}

// BlockReader evaluates a finished filter block produced by
// BlockBuilder.
type BlockReader struct {
	policy       Policy
	data         []byte
	offsetsStart int
	numFilters   int
	baseLg       int
	valid        bool
}

// NewBlockReader wraps contents, the bytes of a table's filter block.
// Malformed contents yield a reader that always reports "may match"
// rather than erroring, matching the filter block's best-effort role.
func NewBlockReader(policy Policy, contents []byte) *BlockReader {
	n := len(contents)
	if n < 5 {
		return &BlockReader{policy: policy}
	}
	lg := int(contents[n-1])
	arrayOffset := int(binary.LittleEndian.Uint32(contents[n-5 : n-1]))
	if arrayOffset > n-5 {
		return &BlockReader{policy: policy}
	}
	return &BlockReader{
		policy:       policy,
		data:         contents,
		offsetsStart: arrayOffset,
		numFilters:   (n - 5 - arrayOffset) / 4,
		baseLg:       lg,
		valid:        true,
	}
}

// KeyMayMatch reports whether key may be present in the data block that
// starts at blockOffset. A false return is a reliable negative; a true
// return means the caller must still check the block itself.
func (r *BlockReader) KeyMayMatch(blockOffset uint64, key []byte) bool {
	if !r.valid {
		return true
	}
	index := int(blockOffset >> uint(r.baseLg))
	if index >= r.numFilters {
		return true
	}
	start := binary.LittleEndian.Uint32(r.data[r.offsetsStart+index*4:])
	var limit uint32
	if index+1 < r.numFilters {
		limit = binary.LittleEndian.Uint32(r.data[r.offsetsStart+(index+1)*4:])
	} else {
		limit = uint32(r.offsetsStart)
	}
	if start > limit || int(limit) > r.offsetsStart {
		return true
	}
	return r.policy.KeyMayMatch(key, r.data[start:limit])
}
