package iterator

import (
	"math/rand"

	"ridgedb/ikey"
)

// readSamplePeriod bounds the random byte countdown DB uses to decide
// when to report a read sample, mirroring the ~1MiB amortization
// period common to leveldb-family read-sampling (spec.md §4.11
// "per-iterator random byte counter used to sample reads").
const readSamplePeriod = 1 << 20

// DB presents the snapshot view of spec.md §4.11 over an inner
// internal-key stream (ordinarily a *Merging over the active memtable
// and the table readers in a version): it skips tombstones and
// superseded versions so exactly one visible entry survives per user
// key, honoring a fixed snapshot sequence number.
type DB struct {
	inner InternalIterator
	cmp   ikey.Comparator
	seq   ikey.SequenceNumber

	dir   direction
	valid bool
	key   []byte
	value []byte

	skipKey []byte

	// SamplePeriod overrides readSamplePeriod; set before the first
	// positioning call. Zero means use the default.
	SamplePeriod int
	sampleFn     func(internalKey []byte)
	bytesUntil   int
	rnd          *rand.Rand
}

// NewDB returns a DB iterator over inner at the given snapshot, with
// a fixed comparator for user-key comparisons. It is initially
// invalid; call SeekFirst, SeekLast, or Seek to position it.
func NewDB(inner InternalIterator, cmp ikey.Comparator, seq ikey.SequenceNumber) *DB {
	return &DB{
		inner: inner,
		cmp:   cmp,
		seq:   seq,
		rnd:   rand.New(rand.NewSource(0xda7aba5e)),
	}
}

// SetSampleFunc installs a callback invoked with the internal key of
// roughly every readSamplePeriod bytes traversed, visible or not. The
// caller (the version holding this DB's table readers) uses this to
// decide whether a file has seen enough reads to warrant a seek
// compaction. A nil fn (the default) disables sampling.
func (d *DB) SetSampleFunc(fn func(internalKey []byte)) {
	d.sampleFn = fn
}

func (d *DB) period() int {
	if d.SamplePeriod > 0 {
		return d.SamplePeriod
	}
	return readSamplePeriod
}

func (d *DB) maybeSample() {
	if d.sampleFn == nil || !d.inner.Valid() {
		return
	}
	n := len(d.inner.Key()) + len(d.inner.Value())
	d.bytesUntil -= n
	for d.bytesUntil < 0 {
		d.bytesUntil += d.rnd.Intn(2*d.period() + 1)
		d.sampleFn(append([]byte{}, d.inner.Key()...))
	}
}

func (d *DB) Valid() bool   { return d.valid }
func (d *DB) Key() []byte   { return d.key }
func (d *DB) Value() []byte { return d.value }

// SeekFirst positions the iterator at the first visible entry.
func (d *DB) SeekFirst() {
	d.dir = forward
	d.inner.SeekFirst()
	d.findNextUserEntry(false)
}

// SeekLast positions the iterator at the last visible entry.
func (d *DB) SeekLast() {
	d.dir = reverse
	d.inner.SeekLast()
	d.findPrevUserEntry()
}

// Seek positions the iterator at the first visible entry whose user
// key is >= target, by probing the inner stream with the sentinel
// internal key (target, S, ValueTypeForSeek) and skipping forward
// with no entries pre-marked hidden (spec.md §4.11).
func (d *DB) Seek(target []byte) {
	d.dir = forward
	seekKey := ikey.AppendInternalKey(nil, target, d.seq, ikey.ValueTypeForSeek)
	d.inner.Seek(seekKey)
	d.findNextUserEntry(false)
}

// Next advances to the next visible user key. A switch from reverse
// to forward direction first steps the inner iterator past the
// currently displayed entry (or to the very first entry, if the
// reverse scan ran off the front) before resuming forward skipping.
func (d *DB) Next() {
	if !d.valid {
		panic("iterator: Next called on an invalid DB iterator")
	}
	if d.dir == reverse {
		d.dir = forward
		if !d.inner.Valid() {
			d.inner.SeekFirst()
		} else {
			d.inner.Next()
		}
	}
	d.skipKey = append(d.skipKey[:0], d.key...)
	d.findNextUserEntry(true)
}

// Prev moves to the previous visible user key. A switch from forward
// to reverse direction first steps backward past every remaining
// entry for the currently displayed user key, then resumes the
// backward scan that finds, among a key's entries at or below the
// snapshot, the one with the largest sequence number.
func (d *DB) Prev() {
	if !d.valid {
		panic("iterator: Prev called on an invalid DB iterator")
	}
	if d.dir == forward {
		d.dir = reverse
		for {
			d.inner.Prev()
			d.maybeSample()
			if !d.inner.Valid() {
				d.valid = false
				d.key = d.key[:0]
				return
			}
			userKey, _, _, ok := ikey.ParseInternalKey(d.inner.Key())
			if !ok {
				panic("iterator: malformed internal key")
			}
			if d.cmp.UserCmp.Compare(userKey, d.key) != 0 {
				break
			}
		}
	}
	d.findPrevUserEntry()
}

// findNextUserEntry scans the inner iterator forward from its current
// position for the first entry that is visible at the snapshot:
// neither superseded by a newer version nor hidden behind a
// tombstone. skipping marks that d.skipKey already names a user key
// whose remaining (older) versions, including any further
// tombstones, must be skipped.
func (d *DB) findNextUserEntry(skipping bool) {
	for d.inner.Valid() {
		d.maybeSample()
		userKey, seq, typ, ok := ikey.ParseInternalKey(d.inner.Key())
		if !ok {
			panic("iterator: malformed internal key")
		}
		if seq <= d.seq {
			switch typ {
			case ikey.TypeDeletion:
				d.skipKey = append(d.skipKey[:0], userKey...)
				skipping = true
			case ikey.TypeValue:
				if skipping && d.cmp.UserCmp.Compare(userKey, d.skipKey) <= 0 {
					// superseded version, or the tombstoned key itself.
				} else {
					d.valid = true
					d.key = append(d.key[:0], userKey...)
					d.value = append(d.value[:0], d.inner.Value()...)
					return
				}
			}
		}
		d.inner.Next()
	}
	d.valid = false
	d.key = d.key[:0]
}

// findPrevUserEntry scans the inner iterator backward, evaluating one
// user key's run of entries at a time. Within a run, the entry with
// the largest sequence number at or below the snapshot wins; if that
// winner is a tombstone the whole key is invisible and the scan
// continues into the preceding (smaller) user key.
func (d *DB) findPrevUserEntry() {
	var curKey, curVal []byte
	haveCandidate := false
	isDeletion := true

	for d.inner.Valid() {
		d.maybeSample()
		userKey, seq, typ, ok := ikey.ParseInternalKey(d.inner.Key())
		if !ok {
			panic("iterator: malformed internal key")
		}
		if haveCandidate && d.cmp.UserCmp.Compare(userKey, curKey) != 0 {
			if !isDeletion {
				d.valid = true
				d.key = curKey
				d.value = curVal
				return
			}
			haveCandidate = false
		}
		if !haveCandidate {
			curKey = append(curKey[:0], userKey...)
		}
		if seq <= d.seq {
			isDeletion = typ == ikey.TypeDeletion
			if isDeletion {
				curVal = curVal[:0]
			} else {
				curVal = append(curVal[:0], d.inner.Value()...)
			}
			haveCandidate = true
		}
		d.inner.Prev()
	}

	if haveCandidate && !isDeletion {
		d.valid = true
		d.key = curKey
		d.value = curVal
		return
	}
	d.valid = false
	d.key = d.key[:0]
}
