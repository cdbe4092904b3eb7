package set

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBits(t *testing.T) {
	var s Bits[int]

	assert.True(t, s.Empty())
	assert.False(t, s.IsSet(200))

	s.Set(3)
	s.Set(70)
	s.Set(200)

	assert.True(t, s.IsSet(70))
	assert.Equal(t, 3, s.Size())
	assert.Equal(t, []int{3, 70, 200}, s.Keys())

	s.Clear(70)
	assert.False(t, s.IsSet(70))

	assert.True(t, s.TestAndSet(3))
	assert.False(t, s.TestAndSet(4))
	assert.Equal(t, []int{3, 4, 200}, s.Keys())
}

func TestBitsOps(t *testing.T) {
	a := MakeBits[int32](10)
	a.Set(1)
	a.Set(2)

	b := a.Copy()
	b.Set(100)
	assert.False(t, a.IsSet(100), "copy must not alias")

	a.Merge(b)
	assert.Equal(t, []int32{1, 2, 100}, a.Keys())

	var c Bits[int32]
	c.Set(2)

	assert.True(t, a.Intersects(c))

	a.Substract(c)
	assert.Equal(t, []int32{1, 100}, a.Keys())
	assert.False(t, a.Intersects(c))

	a.Reset()
	assert.True(t, a.Empty())
}

func TestBitsRangeStops(t *testing.T) {
	var s Bits[int]
	for i := 0; i < 10; i++ {
		s.Set(i * 10)
	}

	var got []int
	s.Range(func(k int) bool {
		got = append(got, k)
		return len(got) < 3
	})

	assert.Equal(t, []int{0, 10, 20}, got)
}
