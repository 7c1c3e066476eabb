// Package topology tests.
// Author: momentics <momentics@gmail.com>

package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-affinity/api"
	"github.com/momentics/hioload-affinity/mask"
)

// buildSMP builds a uniform sockets x cores/socket x threads/core
// machine with consecutive OS ids.
func buildSMP(sockets, coresPerSocket, threadsPerCore int) *Topology {
	nproc := sockets * coresPerSocket * threadsPerCore
	t := New(nproc, []api.LevelType{api.LevelSocket, api.LevelCore, api.LevelThread})
	for i := 0; i < nproc; i++ {
		rec := t.Record(i)
		rec.OSID = i
		rec.IDs[0] = i / (coresPerSocket * threadsPerCore)
		rec.IDs[1] = (i / threadsPerCore) % coresPerSocket
		rec.IDs[2] = i % threadsPerCore
	}
	t.SortIDs()
	return t
}

func TestCanonicalizeUniform(t *testing.T) {
	topo := buildSMP(2, 4, 2)
	require.True(t, topo.CheckIDs())
	require.NoError(t, topo.Canonicalize())

	assert.Equal(t, 3, topo.Depth())
	assert.Equal(t, []int{2, 4, 2}, []int{topo.RatioAt(0), topo.RatioAt(1), topo.RatioAt(2)})
	assert.Equal(t, []int{2, 8, 16}, []int{topo.CountAt(0), topo.CountAt(1), topo.CountAt(2)})
	assert.True(t, topo.Uniform())
	assert.Equal(t, 2, topo.NumPackages)
	assert.Equal(t, 4, topo.NumCoresPerPkg)
	assert.Equal(t, 2, topo.NumThreadsPerCore)
	assert.Equal(t, 8, topo.NumCores)
	// Cache never discovered, so last level cache falls back to socket.
	assert.Equal(t, api.LevelSocket, topo.EquivalentType(api.LevelLLC))
}

func TestSubIDsAreDense(t *testing.T) {
	topo := New(4, []api.LevelType{api.LevelSocket, api.LevelCore, api.LevelThread})
	// Non-contiguous physical ids: sockets 0/3, cores 5/9.
	phys := [][3]int{{0, 5, 0}, {0, 5, 1}, {3, 9, 0}, {3, 9, 1}}
	for i, p := range phys {
		rec := topo.Record(i)
		rec.OSID = i
		copy(rec.IDs, p[:])
	}
	topo.SortIDs()
	require.NoError(t, topo.Canonicalize())

	assert.Equal(t, []int{0, 0, 0}, topo.Record(0).SubIDs)
	assert.Equal(t, []int{0, 0, 1}, topo.Record(1).SubIDs)
	assert.Equal(t, []int{1, 1, 0}, topo.Record(2).SubIDs)
	assert.Equal(t, []int{1, 1, 1}, topo.Record(3).SubIDs)
}

func TestRadix1LayerRemoved(t *testing.T) {
	// One die per socket adds no information and must collapse into
	// the socket layer.
	topo := New(4, []api.LevelType{api.LevelSocket, api.LevelDie, api.LevelCore, api.LevelThread})
	for i := 0; i < 4; i++ {
		rec := topo.Record(i)
		rec.OSID = i
		rec.IDs[0] = i / 2
		rec.IDs[1] = 0
		rec.IDs[2] = i % 2
		rec.IDs[3] = 0
	}
	topo.SortIDs()
	require.NoError(t, topo.Canonicalize())

	assert.Equal(t, 3, topo.Depth())
	assert.Equal(t, api.LevelSocket, topo.EquivalentType(api.LevelDie))
	// Equivalence is idempotent.
	assert.Equal(t, api.LevelSocket, topo.EquivalentType(topo.EquivalentType(api.LevelDie)))
	assert.Equal(t, 2, topo.NumPackages)
}

func TestInsertLayerPosition(t *testing.T) {
	topo := buildSMP(1, 4, 1)
	// A module layer grouping pairs of cores sits between socket and
	// core.
	ids := make([]int, topo.NumRecords())
	for i := range ids {
		ids[i] = topo.Record(i).IDs[1] / 2
	}
	topo.InsertLayer(api.LevelModule, ids)
	assert.Equal(t, 4, topo.Depth())
	assert.Equal(t, api.LevelModule, topo.TypeAt(1))
	assert.Equal(t, api.LevelCore, topo.TypeAt(2))
	assert.Equal(t, 1, topo.Record(3).IDs[1])

	// A layer partitioning identically to an existing one goes
	// strictly above it.
	dup := make([]int, topo.NumRecords())
	for i := range dup {
		dup[i] = topo.Record(i).IDs[1]
	}
	topo.InsertLayer(api.LevelTile, dup)
	assert.Equal(t, api.LevelTile, topo.TypeAt(1))
	assert.Equal(t, api.LevelModule, topo.TypeAt(2))
}

func TestCheckIDsDetectsDuplicates(t *testing.T) {
	topo := buildSMP(1, 2, 1)
	require.True(t, topo.CheckIDs())
	rec := topo.Record(1)
	copy(rec.IDs, topo.Record(0).IDs)
	topo.SortIDs()
	assert.False(t, topo.CheckIDs())
}

func TestNonUniform(t *testing.T) {
	// 1 socket, 2 cores, threads 2 and 1.
	topo := New(3, []api.LevelType{api.LevelSocket, api.LevelCore, api.LevelThread})
	phys := [][3]int{{0, 0, 0}, {0, 0, 1}, {0, 1, 0}}
	for i, p := range phys {
		rec := topo.Record(i)
		rec.OSID = i
		copy(rec.IDs, p[:])
	}
	topo.SortIDs()
	require.NoError(t, topo.Canonicalize())
	assert.False(t, topo.Uniform())
	assert.Equal(t, 3, topo.CountAt(2))
	assert.Equal(t, 2, topo.RatioAt(2))
}

func TestRestrictToMask(t *testing.T) {
	topo := buildSMP(2, 4, 2)
	require.NoError(t, topo.Canonicalize())
	full := mask.FromSlice([]int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15})

	allowed := mask.FromSlice([]int{0, 1, 2, 3, 4, 5, 6, 7})
	affected := topo.RestrictToMask(allowed, full)
	assert.True(t, affected)
	assert.Equal(t, 8, topo.NumRecords())
	assert.Equal(t, 1, topo.NumPackages)
	assert.Equal(t, "0-7", full.String())

	// Same mask again: nothing left to drop.
	assert.False(t, topo.RestrictToMask(allowed, full))
}

func TestFilterSubsetWindow(t *testing.T) {
	topo := buildSMP(2, 4, 2)
	require.NoError(t, topo.Canonicalize())
	full := mask.New()
	for i := 0; i < 16; i++ {
		full.Set(i)
	}
	items := []api.SubsetItem{
		api.NewSubsetItem(api.LevelSocket, 1, 0),
		api.NewSubsetItem(api.LevelCore, 2, 0),
		api.NewSubsetItem(api.LevelThread, 1, 0),
	}
	filtered := topo.FilterSubset(items, false, full, api.NopDiagnostics{})
	require.True(t, filtered)
	assert.Equal(t, 2, topo.NumRecords())
	assert.Equal(t, 0, topo.Record(0).OSID)
	assert.Equal(t, 2, topo.Record(1).OSID)
	assert.Equal(t, "0,2", full.String())
}

func TestParseSubset(t *testing.T) {
	items, absolute, err := ParseSubset("1s,2c,1t")
	require.NoError(t, err)
	assert.False(t, absolute)
	require.Len(t, items, 3)
	assert.Equal(t, api.LevelSocket, items[0].Level)
	assert.Equal(t, []int{1}, items[0].Nums)
	assert.Equal(t, api.LevelCore, items[1].Level)
	assert.Equal(t, []int{2}, items[1].Nums)
	assert.Equal(t, api.LevelThread, items[2].Level)

	items, absolute, err = ParseSubset(":2@1sockets,*numa")
	require.NoError(t, err)
	assert.True(t, absolute)
	require.Len(t, items, 2)
	assert.Equal(t, []int{1}, items[0].Offsets)
	assert.Equal(t, api.LevelNUMA, items[1].Level)
	assert.Equal(t, []int{api.SubsetUseAll}, items[1].Nums)

	items, _, err = ParseSubset("")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestParseSubsetMergesCoreAttributes(t *testing.T) {
	items, _, err := ParseSubset("4c:intel_core,2c:eff0")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, api.LevelCore, items[0].Level)
	assert.Equal(t, []int{4, 2}, items[0].Nums)
	assert.Equal(t, api.CoreTypeCore, items[0].Attrs[0].Type)
	assert.Equal(t, 0, items[0].Attrs[1].Eff)
}

func TestParseSubsetRejectsMalformed(t *testing.T) {
	for _, bad := range []string{"1q", "c", "1s,1s", "2c:fast", "1@xs", "0c"} {
		_, _, err := ParseSubset(bad)
		assert.Error(t, err, "subset %q", bad)
	}
}

func TestParseSubsetFiltersScenario(t *testing.T) {
	topo := buildSMP(2, 4, 2)
	require.NoError(t, topo.Canonicalize())
	full := mask.New()
	for i := 0; i < 16; i++ {
		full.Set(i)
	}
	items, absolute, err := ParseSubset("1s,2c,1t")
	require.NoError(t, err)
	require.True(t, topo.FilterSubset(items, absolute, full, api.NopDiagnostics{}))
	assert.Equal(t, 2, topo.NumRecords())
	assert.Equal(t, "0,2", full.String())
}

func TestFilterSubsetOffset(t *testing.T) {
	topo := buildSMP(2, 4, 2)
	require.NoError(t, topo.Canonicalize())
	full := mask.New()
	for i := 0; i < 16; i++ {
		full.Set(i)
	}
	items := []api.SubsetItem{
		api.NewSubsetItem(api.LevelSocket, 1, 1),
		api.NewSubsetItem(api.LevelCore, 2, 2),
	}
	require.True(t, topo.FilterSubset(items, false, full, api.NopDiagnostics{}))
	// Second socket, cores 2-3, both threads.
	assert.Equal(t, "12-15", full.String())
}

func TestFilterSubsetRejectsOversized(t *testing.T) {
	topo := buildSMP(2, 4, 2)
	require.NoError(t, topo.Canonicalize())
	full := mask.New()
	for i := 0; i < 16; i++ {
		full.Set(i)
	}
	items := []api.SubsetItem{api.NewSubsetItem(api.LevelCore, 3, 2)}
	assert.False(t, topo.FilterSubset(items, false, full, api.NopDiagnostics{}))
	assert.Equal(t, 16, topo.NumRecords())
	assert.Equal(t, 16, full.Count())
}

func TestFilterSubsetRejectsUnknownLayer(t *testing.T) {
	topo := buildSMP(1, 4, 1)
	require.NoError(t, topo.Canonicalize())
	full := mask.New()
	for i := 0; i < 4; i++ {
		full.Set(i)
	}
	items := []api.SubsetItem{api.NewSubsetItem(api.LevelNUMA, 1, 0)}
	assert.False(t, topo.FilterSubset(items, false, full, api.NopDiagnostics{}))
}

func TestFilterSubsetFailsClosedWhenAllFiltered(t *testing.T) {
	topo := buildSMP(1, 2, 2)
	require.NoError(t, topo.Canonicalize())
	full := mask.New()
	for i := 0; i < 4; i++ {
		full.Set(i)
	}
	// Absolute window beyond the machine filters everything; the
	// subset must be ignored and the topology kept.
	items := []api.SubsetItem{api.NewSubsetItem(api.LevelCore, 2, 10)}
	assert.False(t, topo.FilterSubset(items, true, full, api.NopDiagnostics{}))
	assert.Equal(t, 4, topo.NumRecords())
	assert.Equal(t, 4, full.Count())
}

func TestIsClose(t *testing.T) {
	topo := buildSMP(2, 2, 2)
	require.NoError(t, topo.Canonicalize())
	// Records 0,1 share a core; 0,2 only share a socket.
	assert.True(t, topo.IsClose(0, 1, 1, false, false)) // core granularity
	assert.False(t, topo.IsClose(0, 2, 1, false, false))
	assert.True(t, topo.IsClose(0, 2, 2, false, false)) // socket granularity
	assert.False(t, topo.IsClose(0, 4, 2, false, false))
	assert.True(t, topo.IsClose(0, 4, 3, false, false)) // coarser than machine
	// Thread granularity: only identical records are close.
	assert.False(t, topo.IsClose(0, 1, 0, false, false))
}

func TestHybridInventory(t *testing.T) {
	topo := New(4, []api.LevelType{api.LevelSocket, api.LevelCore, api.LevelThread})
	for i := 0; i < 4; i++ {
		rec := topo.Record(i)
		rec.OSID = i
		rec.IDs[0] = 0
		rec.IDs[1] = i
		rec.IDs[2] = 0
		if i < 2 {
			rec.Attrs = api.CoreAttrs{Type: api.CoreTypeCore, Eff: 1}
		} else {
			rec.Attrs = api.CoreAttrs{Type: api.CoreTypeAtom, Eff: 0}
		}
	}
	topo.SetHybrid(true)
	topo.SortIDs()
	require.NoError(t, topo.Canonicalize())

	assert.Equal(t, 2, topo.NumCoreEffs())
	assert.Equal(t, []api.CoreType{api.CoreTypeCore, api.CoreTypeAtom}, topo.CoreTypes())
	attr := api.UnknownCoreAttrs()
	attr.Type = api.CoreTypeAtom
	assert.Equal(t, 2, topo.NCoresWithAttr(attr))

	// Performance cores sort ahead of efficiency cores.
	assert.Equal(t, 1, topo.Record(0).Attrs.Eff)
	assert.Equal(t, 0, topo.Record(2).Attrs.Eff)
}

func TestSortCompactInnermostFirst(t *testing.T) {
	topo := buildSMP(2, 2, 2)
	require.NoError(t, topo.Canonicalize())
	// compact=1 makes the thread level most significant: all first
	// threads of every core come before any second thread.
	topo.SortCompact(1)
	for i := 0; i < 4; i++ {
		assert.Equal(t, 0, topo.Record(i).SubIDs[2], "record %d", i)
	}
	for i := 4; i < 8; i++ {
		assert.Equal(t, 1, topo.Record(i).SubIDs[2], "record %d", i)
	}
	topo.SortIDs()
	for i := 0; i < 8; i++ {
		assert.Equal(t, i, topo.Record(i).OSID)
	}
}
