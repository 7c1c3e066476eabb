// File: internal/platform/pin_test.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-affinity/fake"
)

func TestPinGuardRestoresAffinity(t *testing.T) {
	m := fake.NewBareMachine(4)
	before, err := m.GetThreadAffinity()
	require.NoError(t, err)

	guard, err := NewPinGuard(m)
	require.NoError(t, err)
	require.NoError(t, guard.BindTo(2))
	cur, err := m.GetThreadAffinity()
	require.NoError(t, err)
	assert.Equal(t, []int{2}, cur.Slice())

	guard.Release()
	after, err := m.GetThreadAffinity()
	require.NoError(t, err)
	assert.True(t, before.Equal(after))
}

func TestPinGuardReleaseIsIdempotent(t *testing.T) {
	m := fake.NewBareMachine(4)
	guard, err := NewPinGuard(m)
	require.NoError(t, err)
	guard.Release()

	// A second Release must not touch the thread again; an explicit
	// Release followed by a deferred one is the common pattern.
	moved, err := m.GetThreadAffinity()
	require.NoError(t, err)
	moved = moved.Clone()
	moved.Clear(0)
	require.NoError(t, m.SetThreadAffinity(moved))
	guard.Release()

	cur, err := m.GetThreadAffinity()
	require.NoError(t, err)
	assert.True(t, cur.Equal(moved))
}
