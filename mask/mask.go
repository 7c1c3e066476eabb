// Package mask
// Author: momentics <momentics@gmail.com>
//
// Dynamic bit-set of OS processor indices.

package mask

import "math/bits"

const wordBits = 64

// Mask is a set of OS processor indices. The zero value is an empty
// mask ready for use. Masks grow as needed; all binary operations
// tolerate operands of different capacity.
type Mask struct {
	words []uint64
}

// New returns an empty mask.
func New() *Mask {
	return &Mask{}
}

// FromSlice builds a mask containing exactly the given indices.
func FromSlice(ids []int) *Mask {
	m := New()
	for _, id := range ids {
		m.Set(id)
	}
	return m
}

// FromWords wraps a word array produced by platform code. The slice is
// copied.
func FromWords(words []uint64) *Mask {
	m := &Mask{words: make([]uint64, len(words))}
	copy(m.words, words)
	return m
}

// Words returns a copy of the underlying word array.
func (m *Mask) Words() []uint64 {
	out := make([]uint64, len(m.words))
	copy(out, m.words)
	return out
}

func (m *Mask) grow(word int) {
	for len(m.words) <= word {
		m.words = append(m.words, 0)
	}
}

// Set adds index i. Negative indices are ignored.
func (m *Mask) Set(i int) {
	if i < 0 {
		return
	}
	w := i / wordBits
	m.grow(w)
	m.words[w] |= 1 << uint(i%wordBits)
}

// Clear removes index i.
func (m *Mask) Clear(i int) {
	if i < 0 {
		return
	}
	w := i / wordBits
	if w < len(m.words) {
		m.words[w] &^= 1 << uint(i%wordBits)
	}
}

// IsSet reports whether index i is in the mask.
func (m *Mask) IsSet(i int) bool {
	if i < 0 {
		return false
	}
	w := i / wordBits
	return w < len(m.words) && m.words[w]&(1<<uint(i%wordBits)) != 0
}

// Zero empties the mask in place.
func (m *Mask) Zero() {
	for i := range m.words {
		m.words[i] = 0
	}
}

// IsEmpty reports whether no index is set.
func (m *Mask) IsEmpty() bool {
	for _, w := range m.words {
		if w != 0 {
			return false
		}
	}
	return true
}

// Count returns the number of set indices.
func (m *Mask) Count() int {
	n := 0
	for _, w := range m.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// Clone returns an independent copy.
func (m *Mask) Clone() *Mask {
	return FromWords(m.words)
}

// CopyFrom replaces the contents of m with those of src.
func (m *Mask) CopyFrom(src *Mask) {
	m.words = append(m.words[:0], src.words...)
}

// Or adds every index of other to m.
func (m *Mask) Or(other *Mask) {
	m.grow(len(other.words) - 1)
	for i, w := range other.words {
		m.words[i] |= w
	}
}

// And keeps only indices present in both masks.
func (m *Mask) And(other *Mask) {
	for i := range m.words {
		if i < len(other.words) {
			m.words[i] &= other.words[i]
		} else {
			m.words[i] = 0
		}
	}
}

// AndNot removes every index of other from m.
func (m *Mask) AndNot(other *Mask) {
	for i := range m.words {
		if i < len(other.words) {
			m.words[i] &^= other.words[i]
		}
	}
}

// Equal reports set equality regardless of capacity.
func (m *Mask) Equal(other *Mask) bool {
	n := len(m.words)
	if len(other.words) > n {
		n = len(other.words)
	}
	for i := 0; i < n; i++ {
		var a, b uint64
		if i < len(m.words) {
			a = m.words[i]
		}
		if i < len(other.words) {
			b = other.words[i]
		}
		if a != b {
			return false
		}
	}
	return true
}

// IsSubsetOf reports whether every index of m is also in other.
func (m *Mask) IsSubsetOf(other *Mask) bool {
	for i, w := range m.words {
		var b uint64
		if i < len(other.words) {
			b = other.words[i]
		}
		if w&^b != 0 {
			return false
		}
	}
	return true
}

// Intersects reports whether the masks share any index.
func (m *Mask) Intersects(other *Mask) bool {
	n := len(m.words)
	if len(other.words) < n {
		n = len(other.words)
	}
	for i := 0; i < n; i++ {
		if m.words[i]&other.words[i] != 0 {
			return true
		}
	}
	return false
}

// Lowest returns the smallest set index, or -1 when empty.
func (m *Mask) Lowest() int {
	for i, w := range m.words {
		if w != 0 {
			return i*wordBits + bits.TrailingZeros64(w)
		}
	}
	return -1
}

// Highest returns the largest set index, or -1 when empty.
func (m *Mask) Highest() int {
	for i := len(m.words) - 1; i >= 0; i-- {
		if w := m.words[i]; w != 0 {
			return i*wordBits + wordBits - 1 - bits.LeadingZeros64(w)
		}
	}
	return -1
}

// NextAfter returns the smallest set index strictly greater than i,
// or -1 when none remains. Pass -1 to start iteration.
func (m *Mask) NextAfter(i int) int {
	i++
	if i < 0 {
		i = 0
	}
	w := i / wordBits
	if w >= len(m.words) {
		return -1
	}
	cur := m.words[w] &^ (1<<uint(i%wordBits) - 1)
	for {
		if cur != 0 {
			return w*wordBits + bits.TrailingZeros64(cur)
		}
		w++
		if w >= len(m.words) {
			return -1
		}
		cur = m.words[w]
	}
}

// Slice returns the set indices in ascending order.
func (m *Mask) Slice() []int {
	out := make([]int, 0, m.Count())
	for i := m.NextAfter(-1); i >= 0; i = m.NextAfter(i) {
		out = append(out, i)
	}
	return out
}
