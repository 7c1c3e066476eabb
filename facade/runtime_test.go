// File: facade/runtime_test.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package facade

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-affinity/api"
	"github.com/momentics/hioload-affinity/fake"
)

func testRuntime(cfg *Config, m *fake.Machine, opts ...Option) *Runtime {
	base := []Option{
		WithAffinity(m),
		WithQuerier(m),
		WithProcFS(fake.FS{}),
		WithDiagnostics(api.NopDiagnostics{}),
		WithHybrid(false),
	}
	return New(cfg, append(base, opts...)...)
}

func TestRuntimeCompactPlaces(t *testing.T) {
	m := fake.NewX2ApicMachine(fake.SMPShape{
		Packages: 2, CoresPerPkg: 2, ThreadsPerCore: 2,
	})
	rt := testRuntime(&Config{
		Policy:      "compact",
		Granularity: "core",
		Respect:     true,
	}, m)
	require.NoError(t, rt.Initialize())

	assert.Equal(t, "x2apicid", rt.Method())
	assert.Equal(t, api.PolicyCompact, rt.Policy())
	require.Equal(t, 4, rt.PlaceCount())

	p0, err := rt.PlaceMask(0)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, p0.Slice())

	s, err := rt.FormatPlace(0)
	require.NoError(t, err)
	assert.Equal(t, "{0,1}", s)

	info, err := rt.PlaceIDs(0)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, api.MultipleID}, info.IDs)

	assert.True(t, rt.IsCloseOS(0, 1))
	assert.False(t, rt.IsCloseOS(1, 2))
}

func TestRuntimeBindThroughBinder(t *testing.T) {
	m := fake.NewX2ApicMachine(fake.SMPShape{
		Packages: 1, CoresPerPkg: 2, ThreadsPerCore: 2,
	})
	rt := testRuntime(&Config{
		Policy:      "compact",
		Granularity: "core",
		Respect:     true,
	}, m)
	require.NoError(t, rt.Initialize())

	b, err := rt.Binder()
	require.NoError(t, err)
	require.NoError(t, b.Bind(1))
	cur, err := m.GetThreadAffinity()
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, cur.Slice())
	require.NoError(t, b.Unbind())

	cur, err = m.GetThreadAffinity()
	require.NoError(t, err)
	assert.Equal(t, 4, cur.Count())
}

func TestRuntimeRespectsInheritedMask(t *testing.T) {
	m := fake.NewX2ApicMachine(fake.SMPShape{
		Packages: 1, CoresPerPkg: 4, ThreadsPerCore: 1,
	})
	inherited := m.FullMask()
	inherited.Clear(3)
	require.NoError(t, m.SetThreadAffinity(inherited))

	rt := testRuntime(&Config{
		Policy:      "logical",
		Granularity: "thread",
		Respect:     true,
	}, m)
	require.NoError(t, rt.Initialize())
	assert.Equal(t, 3, rt.PlaceCount())

	full, err := rt.FullMask()
	require.NoError(t, err)
	assert.False(t, full.IsSet(3))
}

func TestRuntimeNoRespectWidensToMachine(t *testing.T) {
	m := fake.NewX2ApicMachine(fake.SMPShape{
		Packages: 1, CoresPerPkg: 4, ThreadsPerCore: 1,
	})
	inherited := m.FullMask()
	inherited.Clear(3)
	require.NoError(t, m.SetThreadAffinity(inherited))

	rt := testRuntime(&Config{
		Policy:      "logical",
		Granularity: "thread",
		Respect:     false,
	}, m)
	require.NoError(t, rt.Initialize())
	assert.Equal(t, 4, rt.PlaceCount())
}

func TestRuntimeSubsetRestriction(t *testing.T) {
	m := fake.NewX2ApicMachine(fake.SMPShape{
		Packages: 2, CoresPerPkg: 2, ThreadsPerCore: 2,
	})
	rt := testRuntime(&Config{
		Policy:      "compact",
		Granularity: "core",
		Respect:     true,
	}, m, WithSubset([]api.SubsetItem{
		api.NewSubsetItem(api.LevelSocket, 1, 0),
	}, false))
	require.NoError(t, rt.Initialize())
	// One socket of two cores survives the subset.
	require.Equal(t, 2, rt.PlaceCount())
	full, err := rt.FullMask()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, full.Slice())
}

func TestRuntimeSubsetFromConfig(t *testing.T) {
	m := fake.NewX2ApicMachine(fake.SMPShape{
		Packages: 2, CoresPerPkg: 4, ThreadsPerCore: 2,
	})
	rt := testRuntime(&Config{
		Policy:      "compact",
		Granularity: "thread",
		Subset:      "1s,2c,1t",
		Respect:     true,
	}, m)
	require.NoError(t, rt.Initialize())

	// One socket, two cores, one thread per core survive.
	require.Equal(t, 2, rt.PlaceCount())
	p0, err := rt.PlaceMask(0)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, p0.Slice())
	p1, err := rt.PlaceMask(1)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, p1.Slice())

	full, err := rt.FullMask()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, full.Slice())
}

func TestRuntimeSubsetSyntaxError(t *testing.T) {
	m := fake.NewX2ApicMachine(fake.SMPShape{
		Packages: 1, CoresPerPkg: 2, ThreadsPerCore: 1,
	})
	rt := testRuntime(&Config{
		Policy:      "compact",
		Granularity: "thread",
		Subset:      "1s,1s",
		Respect:     true,
	}, m)
	err := rt.Initialize()
	require.Error(t, err)
	assert.Equal(t, api.ErrCodeInvalidArgument, api.CodeOf(err))
}

func TestRuntimeNonePolicy(t *testing.T) {
	m := fake.NewX2ApicMachine(fake.SMPShape{
		Packages: 1, CoresPerPkg: 2, ThreadsPerCore: 1,
	})
	rt := testRuntime(DefaultConfig(), m)
	require.NoError(t, rt.Initialize())
	require.Equal(t, 1, rt.PlaceCount())
	p0, err := rt.PlaceMask(0)
	require.NoError(t, err)
	assert.Equal(t, 2, p0.Count())
}

func TestRuntimeQueriesBeforeInitialize(t *testing.T) {
	m := fake.NewBareMachine(2)
	rt := testRuntime(DefaultConfig(), m)
	assert.Equal(t, 0, rt.PlaceCount())
	_, err := rt.PlaceMask(0)
	assert.ErrorIs(t, err, api.ErrNotInitialized)
	_, err = rt.Binder()
	assert.ErrorIs(t, err, api.ErrNotInitialized)
}

func TestRuntimeInitializeOnce(t *testing.T) {
	m := fake.NewX2ApicMachine(fake.SMPShape{
		Packages: 1, CoresPerPkg: 2, ThreadsPerCore: 2,
	})
	rt := testRuntime(&Config{
		Policy:      "compact",
		Granularity: "thread",
		Respect:     true,
	}, m)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, rt.Initialize())
		}()
	}
	wg.Wait()
	assert.Equal(t, 4, rt.PlaceCount())

	rt.Uninitialize()
	assert.Equal(t, 0, rt.PlaceCount())
	require.NoError(t, rt.Initialize())
	assert.Equal(t, 4, rt.PlaceCount())
}

func TestRuntimeBalanced(t *testing.T) {
	m := fake.NewX2ApicMachine(fake.SMPShape{
		Packages: 1, CoresPerPkg: 4, ThreadsPerCore: 2,
	})
	rt := testRuntime(&Config{
		Policy:      "balanced",
		Granularity: "thread",
		Respect:     true,
	}, m)
	require.NoError(t, rt.Initialize())

	bm, err := rt.BalancedMask(1, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, bm.Slice())

	_, err = rt.BalancedMask(4, 4)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestRuntimeExplicitProcList(t *testing.T) {
	m := fake.NewX2ApicMachine(fake.SMPShape{
		Packages: 1, CoresPerPkg: 4, ThreadsPerCore: 2,
	})
	rt := testRuntime(&Config{
		Policy:      "explicit",
		Granularity: "thread",
		ProcList:    "0,2-4",
		Respect:     true,
	}, m)
	require.NoError(t, rt.Initialize())
	require.Equal(t, 4, rt.PlaceCount())
	p, err := rt.PlaceMask(3)
	require.NoError(t, err)
	assert.Equal(t, []int{4}, p.Slice())
}

func TestConfigSpecValidation(t *testing.T) {
	cfg := &Config{Policy: "sideways"}
	_, err := cfg.Spec()
	require.Error(t, err)
	assert.Equal(t, api.ErrCodeInvalidArgument, api.CodeOf(err))

	cfg = &Config{Policy: "compact", Granularity: "quark"}
	_, err = cfg.Spec()
	require.Error(t, err)
}
