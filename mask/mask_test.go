// Package mask tests.
// Author: momentics <momentics@gmail.com>

package mask

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringRendering(t *testing.T) {
	cases := []struct {
		ids  []int
		want string
	}{
		{nil, "{<empty>}"},
		{[]int{5}, "5"},
		{[]int{1, 2}, "1,2"},
		{[]int{1, 2, 3}, "1-3"},
		{[]int{1, 2, 3, 5, 7, 9, 10, 11}, "1-3,5,7,9-11"},
		{[]int{0, 1, 2, 3, 64, 65, 66, 130}, "0-3,64-66,130"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, FromSlice(c.ids).String())
	}
}

func TestParseRoundTrip(t *testing.T) {
	for _, s := range []string{"{<empty>}", "5", "1,2", "1-3", "1-3,5,7,9-11"} {
		m, err := Parse(s)
		require.NoError(t, err, s)
		assert.Equal(t, s, m.String())
	}
}

func TestParseRejects(t *testing.T) {
	for _, s := range []string{"", "a", "3-1", "-2", "1,,2"} {
		_, err := Parse(s)
		assert.Error(t, err, s)
	}
}

func TestSetOperations(t *testing.T) {
	a := FromSlice([]int{0, 2, 70})
	b := FromSlice([]int{2, 3})

	u := a.Clone()
	u.Or(b)
	assert.Equal(t, []int{0, 2, 3, 70}, u.Slice())

	i := a.Clone()
	i.And(b)
	assert.Equal(t, []int{2}, i.Slice())

	d := a.Clone()
	d.AndNot(b)
	assert.Equal(t, []int{0, 70}, d.Slice())

	assert.True(t, i.IsSubsetOf(a))
	assert.True(t, a.Intersects(b))
	assert.False(t, FromSlice([]int{1}).Intersects(b))
}

func TestIteration(t *testing.T) {
	m := FromSlice([]int{3, 64, 127})
	assert.Equal(t, 3, m.Lowest())
	assert.Equal(t, 127, m.Highest())
	assert.Equal(t, 64, m.NextAfter(3))
	assert.Equal(t, 127, m.NextAfter(64))
	assert.Equal(t, -1, m.NextAfter(127))
	assert.Equal(t, 3, m.Count())

	m.Clear(64)
	assert.Equal(t, []int{3, 127}, m.Slice())

	m.Zero()
	assert.True(t, m.IsEmpty())
	assert.Equal(t, -1, m.Lowest())
	assert.Equal(t, -1, m.Highest())
}

func TestEqualDifferentCapacity(t *testing.T) {
	a := FromSlice([]int{1})
	b := FromSlice([]int{1, 500})
	b.Clear(500)
	assert.True(t, a.Equal(b))
}
