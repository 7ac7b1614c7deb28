// Package ikey implements the internal-key encoding of spec.md §3: the
// sequence/type tag, the internal key (user key + tag), and the lookup
// key shape stored inside the memtable's skiplist.
package ikey

import (
	"encoding/binary"

	"ridgedb/comparator"
	"ridgedb/internal/varint"
)

// ValueType tags an internal key as a live value or a tombstone.
type ValueType uint8

const (
	TypeDeletion ValueType = 0
	TypeValue    ValueType = 1
)

// ValueTypeForSeek is the sentinel type used when constructing a seek
// key: packed with a snapshot sequence it sorts before any real entry
// at that sequence for the same user key, since the internal-key order
// is descending by tag for equal user keys (spec.md §4.11).
const ValueTypeForSeek = TypeValue

// SequenceNumber is the 56-bit version stamp assigned by the caller.
type SequenceNumber uint64

// MaxSequenceNumber is the largest representable sequence number.
const MaxSequenceNumber SequenceNumber = (1 << 56) - 1

// PackTag combines a sequence number and a value type into the 64-bit
// tag appended to every internal key (spec.md §3).
func PackTag(seq SequenceNumber, t ValueType) uint64 {
	return (uint64(seq) << 8) | uint64(t)
}

// UnpackTag splits a tag back into its sequence number and type.
func UnpackTag(tag uint64) (SequenceNumber, ValueType) {
	return SequenceNumber(tag >> 8), ValueType(tag & 0xff)
}

// AppendInternalKey appends user_key ‖ tag(8, little-endian) to dst and
// returns the result.
func AppendInternalKey(dst, userKey []byte, seq SequenceNumber, t ValueType) []byte {
	dst = append(dst, userKey...)
	var tagBuf [8]byte
	binary.LittleEndian.PutUint64(tagBuf[:], PackTag(seq, t))
	return append(dst, tagBuf[:]...)
}

// ParseInternalKey splits an internal key into its user key and tag. ok
// is false if ikey is shorter than the 8-byte tag (CORRUPTION at the
// caller).
func ParseInternalKey(internalKey []byte) (userKey []byte, seq SequenceNumber, t ValueType, ok bool) {
	if len(internalKey) < 8 {
		return nil, 0, 0, false
	}
	n := len(internalKey) - 8
	tag := binary.LittleEndian.Uint64(internalKey[n:])
	seq, t = UnpackTag(tag)
	return internalKey[:n], seq, t, true
}

// ExtractUserKey strips the 8-byte tag from an internal key.
func ExtractUserKey(internalKey []byte) []byte {
	return internalKey[:len(internalKey)-8]
}

// AppendLookupKey appends the memtable probe shape of spec.md §3 —
// varint32(internal_key_size) ‖ internal_key — to dst and returns it.
func AppendLookupKey(dst, userKey []byte, seq SequenceNumber) []byte {
	internalSize := len(userKey) + 8
	dst = varint.PutUvarint32(dst, uint32(internalSize))
	dst = AppendInternalKey(dst, userKey, seq, ValueTypeForSeek)
	return dst
}

// MemtableKeyUserKey extracts the user key from a memtable-entry-shaped
// buffer (varint32(len) ‖ user_key ‖ tag(8) [‖ ...]), returning the user
// key and the internal key's tag.
func MemtableKeyUserKey(entry []byte) (userKey []byte, tag uint64, rest []byte, ok bool) {
	size, n := varint.Uvarint32(entry)
	if n == 0 || int(size) < 8 || n+int(size) > len(entry) {
		return nil, 0, nil, false
	}
	internalKey := entry[n : n+int(size)]
	userKey = internalKey[:len(internalKey)-8]
	tag = binary.LittleEndian.Uint64(internalKey[len(internalKey)-8:])
	return userKey, tag, entry[n+int(size):], true
}

// Comparator orders internal keys ascending by user key under cmp and,
// for equal user keys, descending by the packed tag so the newest
// version of a key sorts first (spec.md §3, invariant I1/I4).
type Comparator struct {
	UserCmp comparator.Comparator
}

func NewComparator(userCmp comparator.Comparator) Comparator {
	return Comparator{UserCmp: userCmp}
}

func (c Comparator) Name() string { return "ridgedb.InternalKeyComparator" }

func (c Comparator) Compare(a, b []byte) int {
	au, aseq, atype, aok := ParseInternalKey(a)
	bu, bseq, btype, bok := ParseInternalKey(b)
	if !aok || !bok {
		panic("ikey: malformed internal key")
	}
	if r := c.UserCmp.Compare(au, bu); r != 0 {
		return r
	}
	atag := PackTag(aseq, atype)
	btag := PackTag(bseq, btype)
	switch {
	case atag > btag:
		return -1
	case atag < btag:
		return 1
	default:
		return 0
	}
}
