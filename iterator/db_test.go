package iterator

import (
	"testing"

	"ridgedb/comparator"
	"ridgedb/ikey"
	"ridgedb/memtable"
)

func newDBOver(tbl *memtable.Table, seq ikey.SequenceNumber) *DB {
	icmp := ikey.NewComparator(comparator.Bytewise)
	return NewDB(tbl.NewIterator(), icmp, seq)
}

func collectDBForward(d *DB) []string {
	var got []string
	for d.SeekFirst(); d.Valid(); d.Next() {
		got = append(got, string(d.Key())+"="+string(d.Value()))
	}
	return got
}

func TestDBIteratorSkipsSupersededVersions(t *testing.T) {
	tbl := memtable.New(comparator.Bytewise)
	put(tbl, 1, "k", "v1")
	put(tbl, 2, "k", "v2")
	put(tbl, 3, "k", "v3")

	d := newDBOver(tbl, 10)
	got := collectDBForward(d)
	want := []string{"k=v3"}
	if len(got) != 1 || got[0] != want[0] {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestDBIteratorHonorsSnapshotSequence(t *testing.T) {
	tbl := memtable.New(comparator.Bytewise)
	put(tbl, 1, "k", "v1")
	put(tbl, 5, "k", "v5")

	d := newDBOver(tbl, 3)
	got := collectDBForward(d)
	if len(got) != 1 || got[0] != "k=v1" {
		t.Fatalf("got %v, want [k=v1]: snapshot at seq 3 must not see seq 5's write", got)
	}
}

func TestDBIteratorSkipsTombstonedKey(t *testing.T) {
	tbl := memtable.New(comparator.Bytewise)
	put(tbl, 1, "a", "a1")
	put(tbl, 2, "b", "b1")
	del(tbl, 3, "b")
	put(tbl, 4, "c", "c1")

	d := newDBOver(tbl, 10)
	got := collectDBForward(d)
	want := []string{"a=a1", "c=c1"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestDBIteratorTombstoneVisibleOnlyAboveDeleteSeq(t *testing.T) {
	tbl := memtable.New(comparator.Bytewise)
	put(tbl, 1, "b", "old")
	del(tbl, 3, "b")

	// Snapshot before the delete: the old value is still visible.
	before := newDBOver(tbl, 2)
	got := collectDBForward(before)
	if len(got) != 1 || got[0] != "b=old" {
		t.Fatalf("snapshot before delete: got %v, want [b=old]", got)
	}

	// Snapshot after the delete: the key is gone.
	after := newDBOver(tbl, 10)
	got = collectDBForward(after)
	if len(got) != 0 {
		t.Fatalf("snapshot after delete: got %v, want []", got)
	}
}

func TestDBIteratorBackwardMirrorsForward(t *testing.T) {
	tbl := memtable.New(comparator.Bytewise)
	put(tbl, 1, "a", "a1")
	put(tbl, 2, "b", "b1")
	put(tbl, 3, "c", "c1")

	d := newDBOver(tbl, 10)
	forward := collectDBForward(d)

	var backward []string
	for d.SeekLast(); d.Valid(); d.Prev() {
		backward = append(backward, string(d.Key())+"="+string(d.Value()))
	}
	if len(forward) != len(backward) {
		t.Fatalf("forward %v, backward %v: length mismatch", forward, backward)
	}
	for i := range forward {
		if forward[i] != backward[len(backward)-1-i] {
			t.Fatalf("forward %v, backward %v: not a mirror", forward, backward)
		}
	}
}

func TestDBIteratorDirectionSwitchForwardToReverse(t *testing.T) {
	tbl := memtable.New(comparator.Bytewise)
	put(tbl, 1, "a", "a1")
	put(tbl, 2, "b", "b1")
	put(tbl, 3, "c", "c1")

	d := newDBOver(tbl, 10)
	d.SeekFirst() // a
	d.Next()      // b
	d.Next()      // c
	d.Prev()      // back to b
	if string(d.Key()) != "b" {
		t.Fatalf("got %q, want b", d.Key())
	}
	d.Prev() // back to a
	if string(d.Key()) != "a" {
		t.Fatalf("got %q, want a", d.Key())
	}
}

func TestDBIteratorDirectionSwitchReverseToForward(t *testing.T) {
	tbl := memtable.New(comparator.Bytewise)
	put(tbl, 1, "a", "a1")
	put(tbl, 2, "b", "b1")
	put(tbl, 3, "c", "c1")

	d := newDBOver(tbl, 10)
	d.SeekLast() // c
	d.Prev()     // b
	if string(d.Key()) != "b" {
		t.Fatalf("got %q, want b", d.Key())
	}
	d.Next() // forward again: must land back on c, not repeat b
	if string(d.Key()) != "c" {
		t.Fatalf("got %q, want c", d.Key())
	}
}

func TestDBIteratorSeekLandsOnFirstKeyAtOrAboveTarget(t *testing.T) {
	tbl := memtable.New(comparator.Bytewise)
	put(tbl, 1, "aa", "1")
	put(tbl, 2, "cc", "2")
	put(tbl, 3, "ee", "3")

	d := newDBOver(tbl, 10)
	d.Seek([]byte("bb"))
	if !d.Valid() || string(d.Key()) != "cc" {
		t.Fatalf("Seek(bb) = %q, want cc", d.Key())
	}
}

func TestDBIteratorTombstoneSkipsBackwardToOlderKey(t *testing.T) {
	tbl := memtable.New(comparator.Bytewise)
	put(tbl, 1, "a", "a1")
	put(tbl, 2, "b", "b1")
	del(tbl, 3, "b")

	d := newDBOver(tbl, 10)
	d.SeekLast()
	if !d.Valid() || string(d.Key()) != "a" {
		t.Fatalf("SeekLast() = %q, want a (b is tombstoned)", d.Key())
	}
}

func TestDBIteratorEmptyIsInvalid(t *testing.T) {
	tbl := memtable.New(comparator.Bytewise)
	d := newDBOver(tbl, 10)
	d.SeekFirst()
	if d.Valid() {
		t.Fatalf("expected an empty table's iterator to be invalid")
	}
	d.SeekLast()
	if d.Valid() {
		t.Fatalf("expected an empty table's iterator to be invalid")
	}
}

func TestDBIteratorSamplesReadBytes(t *testing.T) {
	tbl := memtable.New(comparator.Bytewise)
	for i := 0; i < 50; i++ {
		put(tbl, ikey.SequenceNumber(i+1), string(rune('a'+i%26))+string(rune('A'+i)), "value-bytes-padding")
	}

	d := newDBOver(tbl, 1000)
	d.SamplePeriod = 32 // force frequent samples for a deterministic-ish test
	samples := 0
	d.SetSampleFunc(func(internalKey []byte) { samples++ })

	for d.SeekFirst(); d.Valid(); d.Next() {
	}
	if samples == 0 {
		t.Fatalf("expected at least one read sample over 50 entries with a 32-byte period")
	}
}
