// Package table implements the Table Builder and Table Reader of
// spec.md §4.8: an immutable sorted file of data blocks plus a filter
// block, metaindex block, index block, and footer.
package table

import (
	"bytes"
	"errors"

	"ridgedb/internal/varint"
)

// BlockHandle describes a contiguous byte range within a table file
// (spec.md §3).
type BlockHandle struct {
	Offset uint64
	Size   uint64
}

// EncodeTo appends the handle's varint64-encoded offset and size to dst.
func (h BlockHandle) EncodeTo(dst []byte) []byte {
	dst = varint.PutUvarint64(dst, h.Offset)
	dst = varint.PutUvarint64(dst, h.Size)
	return dst
}

// DecodeHandle reads a BlockHandle from the front of buf, returning the
// number of bytes consumed, or 0 if buf does not hold a valid handle.
func DecodeHandle(buf []byte) (h BlockHandle, n int) {
	off, n1 := varint.Uvarint64(buf)
	if n1 == 0 {
		return BlockHandle{}, 0
	}
	sz, n2 := varint.Uvarint64(buf[n1:])
	if n2 == 0 {
		return BlockHandle{}, 0
	}
	return BlockHandle{Offset: off, Size: sz}, n1 + n2
}

// FooterLen is the fixed on-disk size of a Footer: two
// handles, each padded to maxHandleLen bytes so the footer's total
// layout is independent of handle magnitude, followed by the 8-byte
// magic (spec.md §3, §6).
const (
	maxHandleLen  = 2 * varint.MaxLen64
	footerPadding = 2 * maxHandleLen
	magicLen      = 8
	FooterLen     = footerPadding + magicLen
)

// Magic is the table file's trailing identification marker.
var Magic = [magicLen]byte{'R', 'i', 'd', 'g', 'e', 'T', 'b', 'l'}

// ErrBadFooter is returned when a table's trailing bytes do not carry
// Magic, or a block handle embedded in them fails to decode
// (spec.md §7, CORRUPTION).
var ErrBadFooter = errors.New("table: invalid footer")

// Footer locates a table file's metaindex and index blocks.
type Footer struct {
	MetaIndex BlockHandle
	Index     BlockHandle
}

// EncodeTo returns the FooterLen-byte encoding of f.
func (f Footer) EncodeTo() []byte {
	buf := make([]byte, 0, FooterLen)
	buf = f.MetaIndex.EncodeTo(buf)
	buf = f.Index.EncodeTo(buf)
	for len(buf) < footerPadding {
		buf = append(buf, 0)
	}
	buf = append(buf, Magic[:]...)
	return buf
}

// DecodeFooter parses a FooterLen-byte buffer produced by EncodeTo.
func DecodeFooter(buf []byte) (Footer, error) {
	if len(buf) != FooterLen {
		return Footer{}, ErrBadFooter
	}
	if !bytes.Equal(buf[footerPadding:], Magic[:]) {
		return Footer{}, ErrBadFooter
	}
	meta, n1 := DecodeHandle(buf)
	if n1 == 0 {
		return Footer{}, ErrBadFooter
	}
	index, n2 := DecodeHandle(buf[n1:])
	if n2 == 0 {
		return Footer{}, ErrBadFooter
	}
	return Footer{MetaIndex: meta, Index: index}, nil
}
