package table

import (
	"encoding/binary"
	"errors"
	"io"

	"ridgedb/block"
	"ridgedb/filter"
	"ridgedb/internal/crc"
	"ridgedb/internal/varint"
)

// ErrComparatorMismatch is returned by Open when the table was built
// with a different comparator than Options.Comparator names
// (spec.md §7, INVALID_ARGUMENT).
var ErrComparatorMismatch = errors.New("table: comparator name mismatch")

// ErrCorrupt is returned when a block's stored CRC does not match its
// contents, or a handle fails to decode (spec.md §7, CORRUPTION).
var ErrCorrupt = errors.New("table: corrupt block")

// Reader opens an immutable table file for point lookups and
// iteration (spec.md §4.8).
type Reader struct {
	file io.ReaderAt
	opts Options

	indexReader  *block.Reader
	filterReader *filter.BlockReader
	cache        blockCache
}

// Open parses the footer and metaindex/index blocks of a table file of
// size bytes backed by file, and readies it for Get and NewIterator.
func Open(file io.ReaderAt, size int64, opts Options) (*Reader, error) {
	opts = opts.withDefaults()
	if size < int64(FooterLen) {
		return nil, ErrBadFooter
	}

	var footerBuf [FooterLen]byte
	if _, err := file.ReadAt(footerBuf[:], size-int64(FooterLen)); err != nil {
		return nil, err
	}
	footer, err := DecodeFooter(footerBuf[:])
	if err != nil {
		return nil, err
	}

	indexContents, err := readRawBlock(file, footer.Index)
	if err != nil {
		return nil, err
	}
	metaContents, err := readRawBlock(file, footer.MetaIndex)
	if err != nil {
		return nil, err
	}

	r := &Reader{
		file:        file,
		opts:        opts,
		indexReader: block.NewReader(indexContents),
		cache:       newBlockCache(opts.BlockCacheSize),
	}

	mit := block.NewReader(metaContents).NewIterator()
	for mit.SeekFirst(); mit.Valid(); mit.Next() {
		switch key := string(mit.Key()); {
		case key == "comparator":
			if string(mit.Value()) != opts.Comparator.Name() {
				return nil, ErrComparatorMismatch
			}
		case opts.FilterPolicy != nil && key == "filter."+opts.FilterPolicy.Name():
			handle, n := DecodeHandle(mit.Value())
			if n == 0 {
				return nil, ErrCorrupt
			}
			filterContents, err := readRawBlock(file, handle)
			if err != nil {
				return nil, err
			}
			r.filterReader = filter.NewBlockReader(opts.FilterPolicy, filterContents)
		}
	}
	return r, nil
}

func readRawBlock(file io.ReaderAt, handle BlockHandle) ([]byte, error) {
	buf := make([]byte, handle.Size+5)
	if _, err := file.ReadAt(buf, int64(handle.Offset)); err != nil {
		return nil, err
	}
	body := buf[:handle.Size]
	compressionByte := buf[handle.Size : handle.Size+1]
	storedCRC := binary.LittleEndian.Uint32(buf[handle.Size+1:])

	c := crc.Value(body)
	c = crc.Extend(c, compressionByte)
	if crc.Mask(c) != storedCRC {
		return nil, ErrCorrupt
	}

	switch block.Compression(compressionByte[0]) {
	case block.NoCompression:
		return body, nil
	case block.Lz4Compression:
		uncompSz, n := varint.Uvarint64(body)
		if n == 0 {
			return nil, ErrCorrupt
		}
		return lz4Decompress(body[n:], int(uncompSz))
	default:
		return nil, ErrCorrupt
	}
}

func (r *Reader) dataBlock(handle BlockHandle) (*block.Reader, error) {
	if v, ok := r.cache.Get(handle.Offset); ok {
		return v.(*block.Reader), nil
	}
	contents, err := readRawBlock(r.file, handle)
	if err != nil {
		return nil, err
	}
	br := block.NewReader(contents)
	r.cache.Add(handle.Offset, br)
	return br, nil
}

// Get returns the value stored for key, if any.
func (r *Reader) Get(key []byte) (value []byte, found bool, err error) {
	iit := r.indexReader.NewIterator()
	iit.Seek(key)
	if !iit.Valid() {
		return nil, false, nil
	}
	handle, n := DecodeHandle(iit.Value())
	if n == 0 {
		return nil, false, ErrCorrupt
	}

	if r.filterReader != nil && !r.filterReader.KeyMayMatch(handle.Offset, key) {
		return nil, false, nil
	}

	dblk, err := r.dataBlock(handle)
	if err != nil {
		return nil, false, err
	}
	dit := dblk.NewIterator()
	dit.Seek(key)
	if !dit.Valid() || r.opts.Comparator.Compare(dit.Key(), key) != 0 {
		return nil, false, nil
	}
	return append([]byte{}, dit.Value()...), true, nil
}

// Iterator traverses a table's entries in key order, paging data
// blocks in through the index block as it goes.
type Iterator struct {
	r       *Reader
	indexIt *block.Iterator
	dataIt  *block.Iterator
	err     error
}

// NewIterator returns an iterator over r, initially invalid.
func (r *Reader) NewIterator() *Iterator {
	return &Iterator{r: r, indexIt: r.indexReader.NewIterator()}
}

func (it *Iterator) Valid() bool   { return it.dataIt != nil && it.dataIt.Valid() }
func (it *Iterator) Key() []byte   { return it.dataIt.Key() }
func (it *Iterator) Value() []byte { return it.dataIt.Value() }
func (it *Iterator) Err() error    { return it.err }

func (it *Iterator) initDataBlock() {
	handle, n := DecodeHandle(it.indexIt.Value())
	if n == 0 {
		it.err = ErrCorrupt
		it.dataIt = nil
		return
	}
	blk, err := it.r.dataBlock(handle)
	if err != nil {
		it.err = err
		it.dataIt = nil
		return
	}
	it.dataIt = blk.NewIterator()
}

// SeekFirst positions the iterator at the table's first entry.
func (it *Iterator) SeekFirst() {
	it.indexIt.SeekFirst()
	it.dataIt = nil
	if it.indexIt.Valid() {
		it.initDataBlock()
		if it.dataIt != nil {
			it.dataIt.SeekFirst()
		}
	}
	it.skipEmptyForward()
}

// SeekLast positions the iterator at the table's last entry.
func (it *Iterator) SeekLast() {
	it.indexIt.SeekLast()
	it.dataIt = nil
	if it.indexIt.Valid() {
		it.initDataBlock()
		if it.dataIt != nil {
			it.dataIt.SeekLast()
		}
	}
	it.skipEmptyBackward()
}

// Seek positions the iterator at the first entry whose key is >=
// target.
func (it *Iterator) Seek(target []byte) {
	it.indexIt.Seek(target)
	it.dataIt = nil
	if it.indexIt.Valid() {
		it.initDataBlock()
		if it.dataIt != nil {
			it.dataIt.Seek(target)
		}
	}
	it.skipEmptyForward()
}

// Next advances to the next entry. Valid must be true.
func (it *Iterator) Next() {
	it.dataIt.Next()
	it.skipEmptyForward()
}

// Prev moves to the preceding entry. Valid must be true.
func (it *Iterator) Prev() {
	it.dataIt.Prev()
	it.skipEmptyBackward()
}

func (it *Iterator) skipEmptyForward() {
	for it.dataIt == nil || !it.dataIt.Valid() {
		if !it.indexIt.Valid() {
			it.dataIt = nil
			return
		}
		it.indexIt.Next()
		if !it.indexIt.Valid() {
			it.dataIt = nil
			return
		}
		it.initDataBlock()
		if it.dataIt == nil {
			return
		}
		it.dataIt.SeekFirst()
	}
}

func (it *Iterator) skipEmptyBackward() {
	for it.dataIt == nil || !it.dataIt.Valid() {
		if !it.indexIt.Valid() {
			it.dataIt = nil
			return
		}
		it.indexIt.Prev()
		if !it.indexIt.Valid() {
			it.dataIt = nil
			return
		}
		it.initDataBlock()
		if it.dataIt == nil {
			return
		}
		it.dataIt.SeekLast()
	}
}
