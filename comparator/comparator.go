// Package comparator supplies the user-key ordering used across the
// core (spec.md §3, §4.10) plus the two key-shortening helpers the
// table builder uses to keep its index compact.
package comparator

import "bytes"

// Comparator defines a total order on opaque user keys. The default
// instance is Bytewise, lexicographic byte comparison.
type Comparator interface {
	// Compare returns <0, 0, >0 as a < b, a == b, a > b.
	Compare(a, b []byte) int
	// Name identifies the comparator so a table built with one
	// comparator can refuse to be opened with another (spec.md §7,
	// INVALID_ARGUMENT on a changed comparator).
	Name() string
}

// Bytewise is the default lexicographic comparator.
var Bytewise Comparator = bytewise{}

type bytewise struct{}

func (bytewise) Compare(a, b []byte) int { return bytes.Compare(a, b) }
func (bytewise) Name() string            { return "ridgedb.BytewiseComparator" }

// FindShortestSeparator returns a key s such that start <= s < limit
// (when start < limit) and s is as short as possible, following spec.md
// §4.10: find the first byte at which start and limit differ; if
// incrementing that byte of start keeps it below the matching byte of
// limit, truncate start to that byte (incremented) and return it.
// Otherwise, including when start equals limit or one is a prefix of
// the other, start is returned unchanged.
func FindShortestSeparator(cmp Comparator, start, limit []byte) []byte {
	minLen := len(start)
	if len(limit) < minLen {
		minLen = len(limit)
	}
	i := 0
	for i < minLen && start[i] == limit[i] {
		i++
	}
	if i >= minLen {
		// one is a prefix of the other; no shorter separator exists.
		return start
	}
	if start[i] < 0xff && start[i]+1 < limit[i] {
		s := append([]byte{}, start[:i+1]...)
		s[i]++
		return s
	}
	return start
}

// FindShortSuccessor returns the shortest key greater than or equal to
// key, per spec.md §4.10: increment the first byte less than 0xFF and
// truncate after it; if every byte is 0xFF, key is returned unchanged.
func FindShortSuccessor(key []byte) []byte {
	for i := 0; i < len(key); i++ {
		if key[i] != 0xff {
			s := append([]byte{}, key[:i+1]...)
			s[i]++
			return s
		}
	}
	return key
}
