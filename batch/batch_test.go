package batch

import (
	"testing"

	"ridgedb/comparator"
	"ridgedb/memtable"
)

type recording struct {
	puts    [][2]string
	deletes []string
}

func (r *recording) Put(k, v []byte) { r.puts = append(r.puts, [2]string{string(k), string(v)}) }
func (r *recording) Delete(k []byte) { r.deletes = append(r.deletes, string(k)) }

func TestPutDeleteIterate(t *testing.T) {
	b := New()
	b.Put([]byte("a"), []byte("1"))
	b.Delete([]byte("b"))
	b.Put([]byte("c"), []byte("3"))

	if b.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", b.Count())
	}

	r := &recording{}
	if err := b.Iterate(r); err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	if len(r.puts) != 2 || r.puts[0] != [2]string{"a", "1"} || r.puts[1] != [2]string{"c", "3"} {
		t.Fatalf("unexpected puts: %v", r.puts)
	}
	if len(r.deletes) != 1 || r.deletes[0] != "b" {
		t.Fatalf("unexpected deletes: %v", r.deletes)
	}
}

func TestAppend(t *testing.T) {
	a := New()
	a.Put([]byte("x"), []byte("1"))
	b := New()
	b.Put([]byte("y"), []byte("2"))
	b.Delete([]byte("z"))

	Append(a, b)
	if a.Count() != 3 {
		t.Fatalf("Count() after Append = %d, want 3", a.Count())
	}
}

func TestIterateCorruptCount(t *testing.T) {
	b := New()
	b.Put([]byte("a"), []byte("1"))
	b.setCount(5) // lie about the record count
	if err := b.Iterate(&recording{}); err != ErrCorrupt {
		t.Fatalf("Iterate() = %v, want ErrCorrupt", err)
	}
}

func TestInsertIntoAssignsSequencesInOrder(t *testing.T) {
	b := New()
	b.SetSequence(100)
	b.Put([]byte("a"), []byte("1"))
	b.Put([]byte("b"), []byte("2"))
	b.Delete([]byte("a"))

	m := memtable.New(comparator.Bytewise)
	if err := b.InsertInto(m); err != nil {
		t.Fatalf("InsertInto: %v", err)
	}

	v, res := m.Get([]byte("a"), 101)
	if res != memtable.FoundValue || string(v) != "1" {
		t.Fatalf("Get(a,101) = %q, %v; want 1, FoundValue", v, res)
	}
	_, res = m.Get([]byte("a"), 102)
	if res != memtable.FoundTombstone {
		t.Fatalf("Get(a,102) = %v; want FoundTombstone (delete at seq 102)", res)
	}
}
