package varint

import "testing"

func TestUvarint32RoundTrip(t *testing.T) {
	vals := []uint32{0, 1, 127, 128, 300, 16384, 1<<32 - 1}
	for _, v := range vals {
		buf := PutUvarint32(nil, v)
		if len(buf) != Len32(v) {
			t.Fatalf("Len32(%d) = %d, encoded %d bytes", v, Len32(v), len(buf))
		}
		got, n := Uvarint32(buf)
		if n != len(buf) || got != v {
			t.Fatalf("roundtrip %d: got %d n=%d", v, got, n)
		}
	}
}

func TestUvarint64RoundTrip(t *testing.T) {
	vals := []uint64{0, 1, 127, 128, 1 << 56, 1<<64 - 1}
	for _, v := range vals {
		buf := PutUvarint64(nil, v)
		if len(buf) != Len64(v) {
			t.Fatalf("Len64(%d) = %d, encoded %d bytes", v, Len64(v), len(buf))
		}
		got, n := Uvarint64(buf)
		if n != len(buf) || got != v {
			t.Fatalf("roundtrip %d: got %d n=%d", v, got, n)
		}
	}
}

func TestUvarintTruncated(t *testing.T) {
	buf := PutUvarint64(nil, 1<<40)
	_, n := Uvarint64(buf[:len(buf)-1])
	if n != 0 {
		t.Fatalf("expected truncated varint to fail, got n=%d", n)
	}
}
