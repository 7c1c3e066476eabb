// File: adapters/binder_test.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package adapters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-affinity/api"
	"github.com/momentics/hioload-affinity/fake"
	"github.com/momentics/hioload-affinity/mask"
)

func TestPlaceBinderBindUnbind(t *testing.T) {
	m := fake.NewBareMachine(4)
	full := m.FullMask()
	places := []*mask.Mask{
		mask.FromSlice([]int{0, 1}),
		mask.FromSlice([]int{2, 3}),
	}
	b := NewPlaceBinder(m, places, full)

	require.NoError(t, b.Bind(1))
	cur, err := m.GetThreadAffinity()
	require.NoError(t, err)
	assert.True(t, cur.Equal(places[1]))

	// Rebinding moves the mask without unbinding first.
	require.NoError(t, b.Bind(0))
	cur, err = m.GetThreadAffinity()
	require.NoError(t, err)
	assert.True(t, cur.Equal(places[0]))

	require.NoError(t, b.Unbind())
	cur, err = m.GetThreadAffinity()
	require.NoError(t, err)
	assert.True(t, cur.Equal(full))
}

func TestPlaceBinderRejectsOutOfRange(t *testing.T) {
	m := fake.NewBareMachine(2)
	b := NewPlaceBinder(m, nil, m.FullMask())
	assert.ErrorIs(t, b.Bind(0), api.ErrPlaceOutOfRange)
	assert.NoError(t, b.Unbind())
}
