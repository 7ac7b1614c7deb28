// Package iterator implements the Merging Iterator and DB Iterator of
// spec.md §4.11: the merging iterator reconciles several internal-key
// streams (memtables and table readers) into one ascending stream; the
// DB iterator layers snapshot visibility and tombstone/version
// skipping on top to present a user-visible key/value stream.
package iterator

import "ridgedb/ikey"

// InternalIterator is the shape shared by memtable.Iterator and
// table.Iterator: positioned traversal over internal-key-ordered
// entries. Both satisfy it without adaptation.
type InternalIterator interface {
	Valid() bool
	SeekFirst()
	SeekLast()
	Seek(internalKey []byte)
	Next()
	Prev()
	Key() []byte
	Value() []byte
}

type direction int

const (
	forward direction = iota
	reverse
)

// Merging reconciles children (one memtable plus zero or more table
// readers, in no particular priority order since every entry carries
// its own sequence number) into a single ascending internal-key
// stream.
type Merging struct {
	cmp      ikey.Comparator
	children []InternalIterator
	current  int // index into children, or -1 if invalid
	dir      direction
}

// NewMerging returns a Merging iterator over children, initially
// invalid.
func NewMerging(cmp ikey.Comparator, children ...InternalIterator) *Merging {
	return &Merging{cmp: cmp, children: children, current: -1}
}

func (m *Merging) Valid() bool   { return m.current >= 0 }
func (m *Merging) Key() []byte   { return m.children[m.current].Key() }
func (m *Merging) Value() []byte { return m.children[m.current].Value() }

func (m *Merging) findSmallest() {
	m.current = -1
	for i, c := range m.children {
		if !c.Valid() {
			continue
		}
		if m.current == -1 || m.cmp.Compare(c.Key(), m.children[m.current].Key()) < 0 {
			m.current = i
		}
	}
}

func (m *Merging) findLargest() {
	m.current = -1
	for i, c := range m.children {
		if !c.Valid() {
			continue
		}
		if m.current == -1 || m.cmp.Compare(c.Key(), m.children[m.current].Key()) > 0 {
			m.current = i
		}
	}
}

func (m *Merging) SeekFirst() {
	for _, c := range m.children {
		c.SeekFirst()
	}
	m.dir = forward
	m.findSmallest()
}

func (m *Merging) SeekLast() {
	for _, c := range m.children {
		c.SeekLast()
	}
	m.dir = reverse
	m.findLargest()
}

func (m *Merging) Seek(target []byte) {
	for _, c := range m.children {
		c.Seek(target)
	}
	m.dir = forward
	m.findSmallest()
}

// Next advances the merged stream. A direction switch re-anchors every
// other child at the key just returned before resuming the forward
// scan (spec.md §4.11).
func (m *Merging) Next() {
	if m.dir != forward {
		key := append([]byte{}, m.Key()...)
		for i, c := range m.children {
			if i == m.current {
				continue
			}
			c.Seek(key)
			if c.Valid() && m.cmp.Compare(c.Key(), key) == 0 {
				c.Next()
			}
		}
		m.dir = forward
	}
	m.children[m.current].Next()
	m.findSmallest()
}

// Prev is Next's mirror image for the backward direction.
func (m *Merging) Prev() {
	if m.dir != reverse {
		key := append([]byte{}, m.Key()...)
		for i, c := range m.children {
			if i == m.current {
				continue
			}
			c.Seek(key)
			if c.Valid() {
				c.Prev()
			} else {
				c.SeekLast()
			}
		}
		m.dir = reverse
	}
	m.children[m.current].Prev()
	m.findLargest()
}
