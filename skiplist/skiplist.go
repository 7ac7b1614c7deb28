// Package skiplist implements the lock-free, single-writer/many-reader
// probabilistic ordered set of spec.md §4.2. Nodes are never removed
// once inserted and a node's key never changes after publication;
// forward-pointer writes use release ordering and reads use acquire
// ordering so that readers may traverse the list without any lock.
package skiplist

import (
	"math/rand"
	"sync/atomic"
)

// Comparator orders the opaque keys stored in a Skiplist.
type Comparator interface {
	Compare(a, b []byte) int
}

const (
	maxHeight = 12
	branching = 4 // level-up probability is 1/branching
)

type node struct {
	key  []byte
	next []atomic.Pointer[node]
}

func newNode(key []byte, height int) *node {
	return &node{key: key, next: make([]atomic.Pointer[node], height)}
}

func (n *node) loadNext(level int) *node {
	if n == nil {
		return nil
	}
	return n.next[level].Load()
}

// Skiplist is a probabilistic ordered set of byte-slice keys. The zero
// value is not usable; construct with New. Insert must be externally
// synchronized so at most one writer is active at a time; Contains and
// iteration may run concurrently with a writer and with each other.
type Skiplist struct {
	cmp    Comparator
	head   *node
	height atomic.Int32 // current max height in use, read with relaxed semantics
	rnd    *rand.Rand   // single-writer only, needs no synchronization
}

// New returns an empty Skiplist ordered by cmp.
func New(cmp Comparator) *Skiplist {
	return &Skiplist{
		cmp:  cmp,
		head: newNode(nil, maxHeight),
		rnd:  rand.New(rand.NewSource(0xda7aba5e)),
	}
}

func (s *Skiplist) randomHeight() int {
	h := 1
	for h < maxHeight && s.rnd.Intn(branching) == 0 {
		h++
	}
	return h
}

func (s *Skiplist) curHeight() int {
	h := int(s.height.Load())
	if h == 0 {
		return 1
	}
	return h
}

// findGreaterOrEqual walks the list for the first node whose key is >=
// target, recording per-level predecessors into prev if non-nil.
func (s *Skiplist) findGreaterOrEqual(target []byte, prev []*node) *node {
	x := s.head
	level := s.curHeight() - 1
	for {
		next := x.loadNext(level)
		if next != nil && s.cmp.Compare(next.key, target) < 0 {
			x = next
			continue
		}
		if prev != nil {
			prev[level] = x
		}
		if level == 0 {
			return next
		}
		level--
	}
}

// findLessThan walks the list for the last node whose key is strictly
// less than target.
func (s *Skiplist) findLessThan(target []byte) *node {
	x := s.head
	level := s.curHeight() - 1
	for {
		next := x.loadNext(level)
		if next != nil && s.cmp.Compare(next.key, target) < 0 {
			x = next
			continue
		}
		if level == 0 {
			return x
		}
		level--
	}
}

func (s *Skiplist) findLast() *node {
	x := s.head
	level := s.curHeight() - 1
	for {
		next := x.loadNext(level)
		if next != nil {
			x = next
			continue
		}
		if level == 0 {
			if x == s.head {
				return nil
			}
			return x
		}
		level--
	}
}

// Insert adds key to the set. key must not already be present; the
// caller (the memtable) guarantees uniqueness by construction, so a
// duplicate insert is a programmer error and panics rather than
// returning a recoverable error (spec.md §7).
func (s *Skiplist) Insert(key []byte) {
	var prev [maxHeight]*node
	x := s.findGreaterOrEqual(key, prev[:s.curHeight()])
	if x != nil && s.cmp.Compare(x.key, key) == 0 {
		panic("skiplist: duplicate key insert")
	}

	height := s.randomHeight()
	if height > s.curHeight() {
		for i := s.curHeight(); i < height; i++ {
			prev[i] = s.head
		}
		// relaxed: a reader that observes the old, smaller height
		// still finds the node via the lower levels it did raise;
		// a reader that observes the new height either sees the
		// fully published pointer below or a nil head slot, which
		// sorts as infinity and simply drops a level (spec.md §4.2).
		s.height.Store(int32(height))
	}

	n := newNode(key, height)
	for i := 0; i < height; i++ {
		// the node is not yet reachable from any predecessor, so
		// this store needs no ordering guarantee of its own.
		n.next[i].Store(prev[i].loadNext(i))
	}
	for i := 0; i < height; i++ {
		// publish: release-ordered so any reader that observes the
		// new predecessor pointer also observes a fully formed node.
		prev[i].next[i].Store(n)
	}
}

// Contains reports whether key is present in the set.
func (s *Skiplist) Contains(key []byte) bool {
	x := s.findGreaterOrEqual(key, nil)
	return x != nil && s.cmp.Compare(x.key, key) == 0
}

// Iterator provides forward and backward traversal over a Skiplist's
// keys in ascending order.
type Iterator struct {
	list *Skiplist
	node *node
}

// NewIterator returns an iterator positioned before the first key.
func (s *Skiplist) NewIterator() *Iterator {
	return &Iterator{list: s}
}

// Valid reports whether the iterator is positioned at an entry.
func (it *Iterator) Valid() bool { return it.node != nil }

// Key returns the key at the iterator's current position. Valid must
// be true.
func (it *Iterator) Key() []byte {
	if it.node == nil {
		panic("skiplist: Key called on invalid iterator")
	}
	return it.node.key
}

// SeekFirst positions the iterator at the smallest key.
func (it *Iterator) SeekFirst() {
	it.node = it.list.head.loadNext(0)
}

// SeekLast positions the iterator at the largest key, or invalid if the
// set is empty.
func (it *Iterator) SeekLast() {
	it.node = it.list.findLast()
}

// Seek positions the iterator at the first key >= target.
func (it *Iterator) Seek(target []byte) {
	it.node = it.list.findGreaterOrEqual(target, nil)
}

// Next advances to the next larger key. Valid must be true.
func (it *Iterator) Next() {
	if it.node == nil {
		panic("skiplist: Next called on invalid iterator")
	}
	it.node = it.node.loadNext(0)
}

// Prev moves to the previous smaller key by re-searching the list for
// the greatest key strictly less than the current one, as spec.md
// §4.2 describes. Valid must be true.
func (it *Iterator) Prev() {
	if it.node == nil {
		panic("skiplist: Prev called on invalid iterator")
	}
	prev := it.list.findLessThan(it.node.key)
	if prev == it.list.head {
		it.node = nil
		return
	}
	it.node = prev
}
