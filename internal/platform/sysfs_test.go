// File: internal/platform/sysfs_test.go
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

func TestParseCPUList(t *testing.T) {
	m, err := ParseCPUList("0-3,7,9-11")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 7, 9, 10, 11}, m.Slice())

	m, err = ParseCPUList("")
	require.NoError(t, err)
	assert.True(t, m.IsEmpty())

	m, err = ParseCPUList(" 5\n")
	require.NoError(t, err)
	assert.Equal(t, []int{5}, m.Slice())
}

func TestParseCPUListRejectsMalformed(t *testing.T) {
	for _, s := range []string{"3-1", "-1", "a", "1-", "1,,2"} {
		_, err := ParseCPUList(s)
		assert.Error(t, err, "list %q", s)
	}
}

func TestOfflineCPUs(t *testing.T) {
	fs := fake.FS{OfflineCPUsPath: "2-3\n"}
	assert.Equal(t, []int{2, 3}, OfflineCPUs(fs).Slice())

	// A kernel with every cpu online omits the file entirely.
	assert.True(t, OfflineCPUs(fake.FS{}).IsEmpty())
}

func TestPossibleCPUs(t *testing.T) {
	fs := fake.FS{PossibleCPUsPath: "0-7\n"}
	assert.Equal(t, 8, PossibleCPUs(fs).Count())
	assert.True(t, PossibleCPUs(fake.FS{}).IsEmpty())
}
