// Package batch implements the write batch of spec.md §4.5: a byte
// buffer of grouped mutations with an assigned base sequence that can
// be replayed into a memtable.
package batch

import (
	"encoding/binary"
	"fmt"

	"ridgedb/ikey"
	"ridgedb/internal/varint"
)

const headerSize = 8 + 4 // sequence(8) ‖ count(4)

// Batch is a sequence of Put/Delete mutations, shaped on the wire as
// sequence(8) ‖ count(4) ‖ records (spec.md §4.5).
type Batch struct {
	buf []byte
}

// New returns an empty batch.
func New() *Batch {
	b := &Batch{buf: make([]byte, headerSize)}
	return b
}

func (b *Batch) ensureHeader() {
	if len(b.buf) < headerSize {
		b.buf = make([]byte, headerSize)
	}
}

// Count returns the number of records in the batch.
func (b *Batch) Count() uint32 {
	b.ensureHeader()
	return binary.LittleEndian.Uint32(b.buf[8:12])
}

func (b *Batch) setCount(n uint32) {
	b.ensureHeader()
	binary.LittleEndian.PutUint32(b.buf[8:12], n)
}

// Sequence returns the batch's base sequence number.
func (b *Batch) Sequence() ikey.SequenceNumber {
	b.ensureHeader()
	return ikey.SequenceNumber(binary.LittleEndian.Uint64(b.buf[0:8]))
}

// SetSequence sets the batch's base sequence number.
func (b *Batch) SetSequence(seq ikey.SequenceNumber) {
	b.ensureHeader()
	binary.LittleEndian.PutUint64(b.buf[0:8], uint64(seq))
}

// Put appends a VALUE record.
func (b *Batch) Put(key, value []byte) {
	b.ensureHeader()
	b.buf = append(b.buf, byte(ikey.TypeValue))
	b.buf = varint.PutUvarint32(b.buf, uint32(len(key)))
	b.buf = append(b.buf, key...)
	b.buf = varint.PutUvarint32(b.buf, uint32(len(value)))
	b.buf = append(b.buf, value...)
	b.setCount(b.Count() + 1)
}

// Delete appends a DELETION record.
func (b *Batch) Delete(key []byte) {
	b.ensureHeader()
	b.buf = append(b.buf, byte(ikey.TypeDeletion))
	b.buf = varint.PutUvarint32(b.buf, uint32(len(key)))
	b.buf = append(b.buf, key...)
	b.setCount(b.Count() + 1)
}

// Append concatenates src's records onto dst and sums their counts.
func Append(dst, src *Batch) {
	dst.ensureHeader()
	src.ensureHeader()
	dst.buf = append(dst.buf, src.buf[headerSize:]...)
	dst.setCount(dst.Count() + src.Count())
}

// Contents returns the batch's raw wire bytes.
func (b *Batch) Contents() []byte {
	b.ensureHeader()
	return b.buf
}

// SetContents replaces the batch's contents with raw wire bytes
// previously produced by Contents, e.g. when replaying a record-log
// entry.
func (b *Batch) SetContents(buf []byte) {
	b.buf = append(b.buf[:0], buf...)
	b.ensureHeader()
}

// ByteSize returns the size in bytes of the batch's wire form.
func (b *Batch) ByteSize() int {
	b.ensureHeader()
	return len(b.buf)
}

// Handler receives decoded records from Iterate.
type Handler interface {
	Put(key, value []byte)
	Delete(key []byte)
}

// ErrCorrupt is returned by Iterate when the batch's record count does
// not match its contents, or when decoding a record runs past the end
// of the buffer (spec.md §4.5, §7: CORRUPTION).
var ErrCorrupt = fmt.Errorf("batch: corrupt write batch contents")

// Iterate walks the batch's records, invoking handler.Put or
// handler.Delete for each.
func (b *Batch) Iterate(handler Handler) error {
	b.ensureHeader()
	if len(b.buf) < headerSize {
		return ErrCorrupt
	}
	buf := b.buf[headerSize:]
	var n uint32
	for len(buf) > 0 {
		typ := ikey.ValueType(buf[0])
		buf = buf[1:]

		klen, kn := varint.Uvarint32(buf)
		if kn == 0 || int(klen) > len(buf)-kn {
			return ErrCorrupt
		}
		buf = buf[kn:]
		key := buf[:klen]
		buf = buf[klen:]

		switch typ {
		case ikey.TypeValue:
			vlen, vn := varint.Uvarint32(buf)
			if vn == 0 || int(vlen) > len(buf)-vn {
				return ErrCorrupt
			}
			buf = buf[vn:]
			value := buf[:vlen]
			buf = buf[vlen:]
			handler.Put(key, value)
		case ikey.TypeDeletion:
			handler.Delete(key)
		default:
			return ErrCorrupt
		}
		n++
	}
	if n != b.Count() {
		return ErrCorrupt
	}
	return nil
}

// memtableInserter adapts a *memtable.Table to the Handler interface
// while assigning sequence numbers in insertion order; defined via an
// interface here to avoid batch depending on memtable's concrete type.
type memtableInserter interface {
	Add(seq ikey.SequenceNumber, typ ikey.ValueType, userKey, value []byte)
}

type inserter struct {
	table memtableInserter
	seq   ikey.SequenceNumber
}

func (h *inserter) Put(key, value []byte) {
	h.table.Add(h.seq, ikey.TypeValue, key, value)
	h.seq++
}

func (h *inserter) Delete(key []byte) {
	h.table.Add(h.seq, ikey.TypeDeletion, key, nil)
	h.seq++
}

// InsertInto replays the batch into table, assigning consecutive
// sequence numbers starting at the batch's base sequence (spec.md
// §4.5).
func (b *Batch) InsertInto(table memtableInserter) error {
	h := &inserter{table: table, seq: b.Sequence()}
	return b.Iterate(h)
}
