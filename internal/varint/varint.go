// Package varint implements the little-endian base-128 varint and
// fixed-width codecs used throughout the table and record-log formats.
package varint

// MaxLen32 is the longest a varint32 can be.
const MaxLen32 = 5

// MaxLen64 is the longest a varint64 can be.
const MaxLen64 = 10

// PutUvarint32 appends x to dst as a varint32 and returns the result.
func PutUvarint32(dst []byte, x uint32) []byte {
	for x >= 0x80 {
		dst = append(dst, byte(x)|0x80)
		x >>= 7
	}
	return append(dst, byte(x))
}

// PutUvarint64 appends x to dst as a varint64 and returns the result.
func PutUvarint64(dst []byte, x uint64) []byte {
	for x >= 0x80 {
		dst = append(dst, byte(x)|0x80)
		x >>= 7
	}
	return append(dst, byte(x))
}

// Uvarint32 decodes a varint32 from the front of buf, returning the value
// and the number of bytes consumed. n is 0 if buf does not hold a
// complete, valid varint32.
func Uvarint32(buf []byte) (x uint32, n int) {
	for shift := uint(0); shift < 32; shift += 7 {
		if n >= len(buf) {
			return 0, 0
		}
		b := buf[n]
		n++
		if b < 0x80 {
			x |= uint32(b) << shift
			return x, n
		}
		x |= uint32(b&0x7f) << shift
	}
	return 0, 0
}

// Uvarint64 decodes a varint64 from the front of buf, returning the value
// and the number of bytes consumed. n is 0 if buf does not hold a
// complete, valid varint64.
func Uvarint64(buf []byte) (x uint64, n int) {
	for shift := uint(0); shift < 64; shift += 7 {
		if n >= len(buf) {
			return 0, 0
		}
		b := buf[n]
		n++
		if b < 0x80 {
			x |= uint64(b) << shift
			return x, n
		}
		x |= uint64(b&0x7f) << shift
	}
	return 0, 0
}

// Len32 returns the number of bytes PutUvarint32 would emit for x.
func Len32(x uint32) int {
	n := 1
	for x >= 0x80 {
		x >>= 7
		n++
	}
	return n
}

// Len64 returns the number of bytes PutUvarint64 would emit for x.
func Len64(x uint64) int {
	n := 1
	for x >= 0x80 {
		x >>= 7
		n++
	}
	return n
}
