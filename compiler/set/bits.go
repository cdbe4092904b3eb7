package set

import (
	"math/bits"

	"tlog.app/go/tlog/tlwire"
)

type (
	Key interface {
		~int | ~int32 | ~int64
	}

	// Bits is a growable bitset keyed by small non-negative integers:
	// virtual register ids, segment indexes, CR bits.
	Bits[K Key] struct {
		b  []uint64
		b0 [2]uint64
	}
)

func MakeBits[K Key](n int) Bits[K] {
	var s Bits[K]

	s.b = s.b0[:]
	s.grow((n + 63) / 64)

	return s
}

func (s Bits[K]) Copy() Bits[K] {
	var c Bits[K]

	c.grow(len(s.b))
	copy(c.b, s.b)

	return c
}

func (s *Bits[K]) Set(k K) {
	i, j := ij(k)

	s.grow(i + 1)

	s.b[i] |= 1 << j
}

// TestAndSet sets k and reports whether it was already set.
func (s *Bits[K]) TestAndSet(k K) bool {
	if s.IsSet(k) {
		return true
	}

	s.Set(k)

	return false
}

func (s Bits[K]) IsSet(k K) bool {
	i, j := ij(k)

	if i >= len(s.b) {
		return false
	}

	return s.b[i]&(1<<j) != 0
}

func (s Bits[K]) Clear(k K) {
	i, j := ij(k)

	if i >= len(s.b) {
		return
	}

	s.b[i] &^= 1 << j
}

func (s *Bits[K]) Merge(x Bits[K]) {
	s.grow(len(x.b))

	for i, x := range x.b {
		s.b[i] |= x
	}
}

func (s Bits[K]) Substract(x Bits[K]) {
	n := min(len(s.b), len(x.b))

	for i, x := range x.b[:n] {
		s.b[i] &^= x
	}
}

// Intersects reports whether any key is in both sets.
func (s Bits[K]) Intersects(x Bits[K]) bool {
	n := min(len(s.b), len(x.b))

	for i := range n {
		if s.b[i]&x.b[i] != 0 {
			return true
		}
	}

	return false
}

func (s Bits[K]) Size() (r int) {
	for _, c := range s.b {
		r += bits.OnesCount64(c)
	}

	return r
}

func (s Bits[K]) Empty() bool {
	for _, c := range s.b {
		if c != 0 {
			return false
		}
	}

	return true
}

// Range calls f for each key in increasing order until f returns false.
func (s Bits[K]) Range(f func(k K) bool) {
	for i, x := range s.b {
		for x != 0 {
			j := bits.TrailingZeros64(x)
			x &^= 1 << j

			if !f(K(i*64 + j)) {
				return
			}
		}
	}
}

// Keys returns the keys in increasing order.
func (s Bits[K]) Keys() []K {
	l := make([]K, 0, s.Size())

	s.Range(func(k K) bool {
		l = append(l, k)
		return true
	})

	return l
}

func (s *Bits[K]) Reset() {
	clear(s.b)
}

func (s Bits[K]) TlogAppend(b []byte) []byte {
	var e tlwire.LowEncoder

	if s.b == nil {
		return e.AppendNil(b)
	}

	b = e.AppendTag(b, tlwire.Array, -1)

	s.Range(func(k K) bool {
		b = e.AppendInt(b, int(k))

		return true
	})

	b = e.AppendBreak(b)

	return b
}

func ij[K Key](k K) (i int, j int) {
	if k < 0 {
		panic("set: negative key")
	}

	return int(k) / 64, int(k) % 64
}

func (s *Bits[K]) grow(n int) {
	if s.b == nil {
		s.b = s.b0[:]
	}

	for n > len(s.b) {
		s.b = append(s.b, 0)
	}
}
