package table

import (
	"encoding/binary"
	"io"

	"ridgedb/block"
	"ridgedb/comparator"
	"ridgedb/filter"
	"ridgedb/internal/crc"
	"ridgedb/internal/varint"
)

// Options configures a Builder and the Reader that later opens its
// output.
type Options struct {
	Comparator           comparator.Comparator
	FilterPolicy         filter.Policy // nil disables the filter block
	BlockSize            int           // target uncompressed data-block size
	BlockRestartInterval int
	Compression          block.Compression
	BlockCacheSize       int // decoded blocks cached per open Reader; 0 selects 256, negative disables caching
}

func (o Options) withDefaults() Options {
	if o.Comparator == nil {
		o.Comparator = comparator.Bytewise
	}
	if o.BlockSize <= 0 {
		o.BlockSize = 4096
	}
	if o.BlockRestartInterval <= 0 {
		o.BlockRestartInterval = 16
	}
	if o.BlockCacheSize == 0 {
		o.BlockCacheSize = 256
	}
	return o
}

// Builder streams a sorted sequence of key/value pairs into a table
// file (spec.md §4.8).
type Builder struct {
	opts Options
	w    io.Writer

	offset      uint64
	dataBlock   *block.Builder
	indexBlock  *block.Builder
	filterBlock *filter.BlockBuilder

	pendingIndexEntry bool
	pendingHandle     BlockHandle

	lastKey    []byte
	numEntries int
	closed     bool
	err        error
}

// NewBuilder returns a Builder writing to w.
func NewBuilder(w io.Writer, opts Options) *Builder {
	opts = opts.withDefaults()
	b := &Builder{
		opts:       opts,
		w:          w,
		dataBlock:  block.NewBuilder(opts.BlockRestartInterval),
		indexBlock: block.NewBuilder(opts.BlockRestartInterval),
	}
	if opts.FilterPolicy != nil {
		b.filterBlock = filter.NewBlockBuilder(opts.FilterPolicy)
		b.filterBlock.StartBlock(0)
	}
	return b
}

// Add appends a key/value pair. Keys must arrive in strictly
// increasing order under the table's comparator; violating that is a
// programmer error and panics (spec.md §7).
func (b *Builder) Add(key, value []byte) error {
	if b.err != nil {
		return b.err
	}
	if b.numEntries > 0 && b.opts.Comparator.Compare(b.lastKey, key) >= 0 {
		panic("table: keys added out of order")
	}

	if b.pendingIndexEntry {
		sep := comparator.FindShortestSeparator(b.opts.Comparator, b.lastKey, key)
		b.indexBlock.Add(sep, b.pendingHandle.EncodeTo(nil))
		b.pendingIndexEntry = false
	}
	if b.filterBlock != nil {
		b.filterBlock.StartBlock(b.offset)
		b.filterBlock.AddKey(key)
	}

	b.lastKey = append(b.lastKey[:0], key...)
	b.numEntries++
	b.dataBlock.Add(key, value)

	if b.dataBlock.CurrentSizeEstimate() >= b.opts.BlockSize {
		return b.flush()
	}
	return nil
}

func (b *Builder) flush() error {
	if b.dataBlock.Empty() {
		return nil
	}
	if b.pendingIndexEntry {
		panic("table: flush called with a pending index entry")
	}
	handle, err := b.writeBlock(b.dataBlock)
	if err != nil {
		b.err = err
		return err
	}
	b.pendingHandle = handle
	b.pendingIndexEntry = true
	b.dataBlock.Reset()
	return nil
}

// writeBlock finishes blk, compresses it if Options.Compression asks
// for it and doing so saves at least 1/8th of the uncompressed size
// (grounded on the snappy-vs-raw heuristic of bsm-sntable/writer.go,
// generalized to lz4), and writes it as a raw block.
func (b *Builder) writeBlock(blk *block.Builder) (BlockHandle, error) {
	contents := blk.Finish()
	compression := b.opts.Compression
	body := contents

	if compression == block.Lz4Compression {
		compressed, err := lz4Compress(contents)
		if err != nil {
			return BlockHandle{}, err
		}
		candidate := varint.PutUvarint64(nil, uint64(len(contents)))
		candidate = append(candidate, compressed...)
		if len(candidate) <= len(contents)-len(contents)/8 {
			body = candidate
		} else {
			compression = block.NoCompression
		}
	}
	return b.writeRawBlock(body, compression)
}

// writeRawBlock writes body verbatim with compression already decided,
// followed by the 1-byte compression tag and 4-byte masked CRC trailer
// (spec.md §3).
func (b *Builder) writeRawBlock(body []byte, compression block.Compression) (BlockHandle, error) {
	c := crc.Value(body)
	c = crc.Extend(c, []byte{byte(compression)})
	masked := crc.Mask(c)

	if _, err := b.w.Write(body); err != nil {
		return BlockHandle{}, err
	}
	var trailer [5]byte
	trailer[0] = byte(compression)
	binary.LittleEndian.PutUint32(trailer[1:], masked)
	if _, err := b.w.Write(trailer[:]); err != nil {
		return BlockHandle{}, err
	}

	handle := BlockHandle{Offset: b.offset, Size: uint64(len(body))}
	b.offset += uint64(len(body)) + 5
	return handle, nil
}

// Finish flushes any pending data block and writes the filter,
// metaindex, index, and footer, in that order (spec.md §4.8).
func (b *Builder) Finish() error {
	if b.err != nil {
		return b.err
	}
	if err := b.flush(); err != nil {
		return err
	}

	var filterHandle BlockHandle
	haveFilter := false
	if b.filterBlock != nil {
		h, err := b.writeRawBlock(b.filterBlock.Finish(), block.NoCompression)
		if err != nil {
			return err
		}
		filterHandle, haveFilter = h, true
	}

	metaindexBlock := block.NewBuilder(b.opts.BlockRestartInterval)
	metaindexBlock.Add([]byte("comparator"), []byte(b.opts.Comparator.Name()))
	if haveFilter {
		metaindexBlock.Add([]byte("filter."+b.opts.FilterPolicy.Name()), filterHandle.EncodeTo(nil))
	}
	metaindexHandle, err := b.writeRawBlock(metaindexBlock.Finish(), block.NoCompression)
	if err != nil {
		return err
	}

	if b.pendingIndexEntry {
		succ := comparator.FindShortSuccessor(b.lastKey)
		b.indexBlock.Add(succ, b.pendingHandle.EncodeTo(nil))
		b.pendingIndexEntry = false
	}
	indexHandle, err := b.writeRawBlock(b.indexBlock.Finish(), block.NoCompression)
	if err != nil {
		return err
	}

	footer := Footer{MetaIndex: metaindexHandle, Index: indexHandle}
	if _, err := b.w.Write(footer.EncodeTo()); err != nil {
		return err
	}
	b.offset += FooterLen
	b.closed = true
	return nil
}

// FileSize returns the number of bytes written so far. Entries still
// buffered in the current, unflushed data block are not counted.
func (b *Builder) FileSize() uint64 { return b.offset }

// NumEntries returns the number of key/value pairs added so far.
func (b *Builder) NumEntries() int { return b.numEntries }
