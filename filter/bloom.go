package filter

import "hash/fnv"

// BloomPolicy is a bloom filter Policy parameterized by bits-per-key
// (spec.md §4.7.1). Probe count k = bits_per_key * ln(2), clamped to
// [1, 30], using double hashing derived from a single FNV-1a hash so a
// key's k probe positions are computed without k independent hash
// functions.
type BloomPolicy struct {
	bitsPerKey int
	k          int
}

// NewBloomPolicy returns a BloomPolicy using bitsPerKey bits of filter
// space per added key. bitsPerKey below 1 defaults to 10.
func NewBloomPolicy(bitsPerKey int) *BloomPolicy {
	if bitsPerKey < 1 {
		bitsPerKey = 10
	}
	k := int(float64(bitsPerKey) * 0.69314718055994530942) // ln(2)
	if k < 1 {
		k = 1
	}
	if k > 30 {
		k = 30
	}
	return &BloomPolicy{bitsPerKey: bitsPerKey, k: k}
}

func (p *BloomPolicy) Name() string { return "ridgedb.BuiltinBloomFilter" }

func bloomHash(key []byte) uint32 {
	h := fnv.New32a()
	h.Write(key)
	return h.Sum32()
}

// CreateFilter builds one filter covering all of keys.
func (p *BloomPolicy) CreateFilter(keys [][]byte) []byte {
	bitCount := len(keys) * p.bitsPerKey
	if bitCount < 64 {
		bitCount = 64
	}
	byteCount := (bitCount + 7) / 8
	bitCount = byteCount * 8

	dst := make([]byte, byteCount+1)
	dst[byteCount] = byte(p.k)

	for _, key := range keys {
		h := bloomHash(key)
		delta := (h >> 17) | (h << 15) // rotate right 17 bits
		for j := 0; j < p.k; j++ {
			bitpos := h % uint32(bitCount)
			dst[bitpos/8] |= 1 << (bitpos % 8)
			h += delta
		}
	}
	return dst
}

// KeyMayMatch reports whether key may be a member of filter.
func (p *BloomPolicy) KeyMayMatch(key, filter []byte) bool {
	n := len(filter)
	if n < 2 {
		return false
	}
	byteCount := n - 1
	bitCount := byteCount * 8
	k := int(filter[byteCount])
	if k > 30 {
		// Reserved encoding from a future format revision: treat as a
		// guaranteed match rather than risk a false negative.
		return true
	}

	h := bloomHash(key)
	delta := (h >> 17) | (h << 15)
	for j := 0; j < k; j++ {
		bitpos := h % uint32(bitCount)
		if filter[bitpos/8]&(1<<(bitpos%8)) == 0 {
			return false
		}
		h += delta
	}
	return true
}
