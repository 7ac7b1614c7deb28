// Package recordlog implements the append-only, block-framed record
// stream of spec.md §4.3: each logical record is split into one or
// more physical records that each fit entirely within a 32 KiB block,
// guarded by a masked CRC32C over the fragment's type byte and
// payload.
package recordlog

import (
	"encoding/binary"
	"errors"
	"io"

	"ridgedb/internal/crc"
)

// BlockSize is the size of one physical block in the log file.
const BlockSize = 32 * 1024

// HeaderSize is the size of a physical record's header:
// crc(4) ‖ length(2) ‖ type(1).
const HeaderSize = 7

// RecordType tags a physical record's role in reassembling a logical
// record.
type RecordType byte

const (
	Zero   RecordType = 0 // reserved: block padding
	Full   RecordType = 1
	First  RecordType = 2
	Middle RecordType = 3
	Last   RecordType = 4
)

func fragmentCRC(t RecordType, data []byte) uint32 {
	c := crc.Value([]byte{byte(t)})
	c = crc.Extend(c, data)
	return crc.Mask(c)
}

// Writer appends logical records to an underlying io.Writer, framing
// them into 32 KiB blocks.
type Writer struct {
	w           io.Writer
	blockOffset int
}

// NewWriter returns a Writer appending to w. w is assumed to be
// positioned at a block boundary (e.g. the start of a fresh log file);
// callers resuming a partially written log must account for the
// existing block offset themselves.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

var zeroPad = make([]byte, HeaderSize)

// AddRecord appends data as one logical record, splitting it into as
// many physical fragments as needed (spec.md §4.3). A zero-length
// record still emits exactly one FULL fragment with an empty payload.
func (w *Writer) AddRecord(data []byte) error {
	begin := true
	for {
		leftover := BlockSize - w.blockOffset
		if leftover < HeaderSize {
			if leftover > 0 {
				if _, err := w.w.Write(zeroPad[:leftover]); err != nil {
					return err
				}
			}
			w.blockOffset = 0
			leftover = BlockSize
		}

		avail := leftover - HeaderSize
		fragment := data
		end := true
		if len(fragment) > avail {
			fragment = data[:avail]
			end = false
		}

		var typ RecordType
		switch {
		case begin && end:
			typ = Full
		case begin:
			typ = First
		case end:
			typ = Last
		default:
			typ = Middle
		}

		if err := w.emitFragment(typ, fragment); err != nil {
			return err
		}
		data = data[len(fragment):]
		begin = false
		if end {
			return nil
		}
	}
}

func (w *Writer) emitFragment(t RecordType, data []byte) error {
	var header [HeaderSize]byte
	binary.LittleEndian.PutUint32(header[0:4], fragmentCRC(t, data))
	binary.LittleEndian.PutUint16(header[4:6], uint16(len(data)))
	header[6] = byte(t)

	if _, err := w.w.Write(header[:]); err != nil {
		return err
	}
	if _, err := w.w.Write(data); err != nil {
		return err
	}
	w.blockOffset += HeaderSize + len(data)
	return nil
}

// ErrCorrupt is returned by ReadRecord when framing, a CRC, or the
// FULL/FIRST/MIDDLE/LAST sequencing is violated.
var ErrCorrupt = errors.New("recordlog: corrupt record")

// Reader reassembles logical records from an underlying io.Reader
// framed per Writer.
type Reader struct {
	r   io.Reader
	blk []byte
	eof bool
}

// NewReader returns a Reader reading from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (rd *Reader) nextBlock() bool {
	if rd.eof {
		rd.blk = nil
		return false
	}
	buf := make([]byte, BlockSize)
	n, err := io.ReadFull(rd.r, buf)
	if err != nil {
		rd.eof = true
	}
	rd.blk = buf[:n]
	return n > 0
}

// ReadRecord returns the next logical record, or io.EOF once the
// stream is exhausted with no partial record pending.
func (rd *Reader) ReadRecord() ([]byte, error) {
	var payload []byte
	inFragment := false

	for {
		if len(rd.blk) < HeaderSize {
			if !rd.nextBlock() {
				if inFragment {
					return nil, ErrCorrupt
				}
				return nil, io.EOF
			}
			continue
		}

		crcStored := binary.LittleEndian.Uint32(rd.blk[0:4])
		length := int(binary.LittleEndian.Uint16(rd.blk[4:6]))
		typ := RecordType(rd.blk[6])

		if HeaderSize+length > len(rd.blk) {
			return nil, ErrCorrupt
		}
		data := rd.blk[HeaderSize : HeaderSize+length]
		if fragmentCRC(typ, data) != crcStored {
			return nil, ErrCorrupt
		}
		rd.blk = rd.blk[HeaderSize+length:]

		switch typ {
		case Full:
			if inFragment {
				return nil, ErrCorrupt
			}
			return append([]byte{}, data...), nil
		case First:
			if inFragment {
				return nil, ErrCorrupt
			}
			payload = append([]byte{}, data...)
			inFragment = true
		case Middle:
			if !inFragment {
				return nil, ErrCorrupt
			}
			payload = append(payload, data...)
		case Last:
			if !inFragment {
				return nil, ErrCorrupt
			}
			return append(payload, data...), nil
		case Zero:
			if inFragment {
				return nil, ErrCorrupt
			}
		default:
			return nil, ErrCorrupt
		}
	}
}
