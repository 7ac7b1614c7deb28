package filter

import "testing"

func TestBloomNoFalseNegatives(t *testing.T) {
	p := NewBloomPolicy(10)
	keys := [][]byte{[]byte("apple"), []byte("banana"), []byte("cherry"), []byte("date")}
	f := p.CreateFilter(keys)
	for _, k := range keys {
		if !p.KeyMayMatch(k, f) {
			t.Fatalf("KeyMayMatch(%q) = false, want true (no false negatives)", k)
		}
	}
}

func TestBloomFalsePositiveRateIsBounded(t *testing.T) {
	p := NewBloomPolicy(10)
	keys := make([][]byte, 1000)
	for i := range keys {
		keys[i] = []byte{byte(i), byte(i >> 8), 'k'}
	}
	f := p.CreateFilter(keys)

	falsePositives := 0
	trials := 2000
	for i := 0; i < trials; i++ {
		probe := []byte{byte(i), byte(i >> 8), 'z'} // disjoint from keys
		if p.KeyMayMatch(probe, f) {
			falsePositives++
		}
	}
	// bits_per_key=10 targets roughly a 1% false positive rate; allow a
	// generous margin so the test isn't flaky.
	if rate := float64(falsePositives) / float64(trials); rate > 0.05 {
		t.Fatalf("false positive rate too high: %.4f (%d/%d)", rate, falsePositives, trials)
	}
}

func TestBloomEmptyFilterMatchesNothing(t *testing.T) {
	p := NewBloomPolicy(10)
	f := p.CreateFilter(nil)
	if p.KeyMayMatch([]byte("anything"), f) {
		t.Fatalf("empty filter should not match any key")
	}
}

func TestBlockBuilderSingleWindow(t *testing.T) {
	b := NewBlockBuilder(NewBloomPolicy(10))
	b.StartBlock(0)
	b.AddKey([]byte("foo"))
	b.AddKey([]byte("bar"))
	b.StartBlock(100) // still inside window 0 (base=2048)
	b.AddKey([]byte("box"))
	contents := b.Finish()

	r := NewBlockReader(NewBloomPolicy(10), contents)
	for _, k := range []string{"foo", "bar", "box"} {
		if !r.KeyMayMatch(0, []byte(k)) {
			t.Fatalf("KeyMayMatch(0, %q) = false, want true", k)
		}
	}
}

func TestBlockBuilderMultipleWindows(t *testing.T) {
	b := NewBlockBuilder(NewBloomPolicy(10))
	b.StartBlock(0)
	b.AddKey([]byte("w0key"))
	b.StartBlock(base) // advance to the next window, closing window 0's filter
	b.AddKey([]byte("w1key"))
	contents := b.Finish()

	r := NewBlockReader(NewBloomPolicy(10), contents)
	if !r.KeyMayMatch(0, []byte("w0key")) {
		t.Fatalf("window 0 filter should contain w0key")
	}
	if !r.KeyMayMatch(base, []byte("w1key")) {
		t.Fatalf("window 1 filter should contain w1key")
	}
}

func TestBlockReaderOutOfRangeOffsetAlwaysMatches(t *testing.T) {
	b := NewBlockBuilder(NewBloomPolicy(10))
	b.StartBlock(0)
	b.AddKey([]byte("only"))
	contents := b.Finish()

	r := NewBlockReader(NewBloomPolicy(10), contents)
	if !r.KeyMayMatch(10*base, []byte("anything")) {
		t.Fatalf("offset beyond the last filter should conservatively match")
	}
}
