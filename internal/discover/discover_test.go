// File: internal/discover/discover_test.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package discover

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-affinity/api"
	"github.com/momentics/hioload-affinity/fake"
	"github.com/momentics/hioload-affinity/internal/platform"
	"github.com/momentics/hioload-affinity/topology"
)

func contextFor(m *fake.Machine) *Context {
	return &Context{
		FullMask: m.FullMask(),
		XProc:    m.NumCPUs,
		Capable:  true,
		Affinity: m,
		Querier:  m,
		FS:       fake.FS{},
		Diag:     api.NopDiagnostics{},
	}
}

func canonicalized(t *testing.T, topo *topology.Topology) *topology.Topology {
	t.Helper()
	require.NoError(t, topo.Canonicalize())
	return topo
}

func TestX2ApicUniformMachine(t *testing.T) {
	m := fake.NewX2ApicMachine(fake.SMPShape{
		Packages: 2, CoresPerPkg: 2, ThreadsPerCore: 2,
	})
	res, err := x2apicBackend{}.Discover(contextFor(m))
	require.NoError(t, err)
	require.NotNil(t, res.Topology)

	topo := canonicalized(t, res.Topology)
	assert.Equal(t, 3, topo.Depth())
	assert.Equal(t, []api.LevelType{
		api.LevelSocket, api.LevelCore, api.LevelThread,
	}, topo.Types())
	assert.Equal(t, 8, topo.NumRecords())
	assert.Equal(t, 2, topo.NumPackages)
	assert.Equal(t, 2, topo.NumCoresPerPkg)
	assert.Equal(t, 2, topo.NumThreadsPerCore)
	assert.True(t, topo.Uniform())

	// Per-core caches fold into the core layer, the package-wide L3
	// into the socket layer.
	assert.Equal(t, api.LevelCore, topo.EquivalentType(api.LevelL1))
	assert.Equal(t, api.LevelCore, topo.EquivalentType(api.LevelL2))
	assert.Equal(t, api.LevelSocket, topo.EquivalentType(api.LevelL3))
}

func TestX2ApicHybridMachine(t *testing.T) {
	m := fake.NewHybridMachine(fake.HybridShape{
		PCores: 2, ThreadsPerPCore: 2, ECores: 4,
	})
	ctx := contextFor(m)
	ctx.Hybrid = true
	res, err := x2apicBackend{}.Discover(ctx)
	require.NoError(t, err)
	require.NotNil(t, res.Topology)

	topo := canonicalized(t, res.Topology)
	assert.True(t, topo.Hybrid())
	assert.Equal(t, 2, topo.NumCoreEffs())
	assert.ElementsMatch(t,
		[]api.CoreType{api.CoreTypeCore, api.CoreTypeAtom},
		topo.CoreTypes())
	assert.Equal(t, 2, topo.NCoresWithAttr(api.CoreAttrs{
		Type: api.CoreTypeCore, Eff: api.UnknownID,
	}))
	assert.Equal(t, 4, topo.NCoresWithAttr(api.CoreAttrs{
		Type: api.CoreTypeAtom, Eff: api.UnknownID,
	}))
	// Performance cores sort ahead of efficiency cores.
	assert.Equal(t, api.CoreTypeCore, topo.Record(0).Attrs.Type)
}

func TestLegacyApicMachine(t *testing.T) {
	m := fake.NewLegacyApicMachine(fake.SMPShape{
		Packages: 2, CoresPerPkg: 2, ThreadsPerCore: 2,
	})
	res, err := apicBackend{}.Discover(contextFor(m))
	require.NoError(t, err)
	require.NotNil(t, res.Topology)
	assert.Equal(t, Globals{
		NPackages: 2, NCoresPerPkg: 2, NThreadsPerCore: 2, NCores: 4,
	}, res.Globals)

	topo := canonicalized(t, res.Topology)
	assert.Equal(t, 8, topo.NumRecords())
	assert.Equal(t, 2, topo.NumPackages)
}

func TestLegacyApicRequiresApic(t *testing.T) {
	m := fake.NewNoApicMachine(4)
	_, err := apicBackend{}.Discover(contextFor(m))
	require.Error(t, err)
	assert.Equal(t, api.ErrCodeApicNotPresent, api.CodeOf(err))
}

func TestRunFallsBackToLegacyApic(t *testing.T) {
	// The machine answers leaf 1 and 4 but not leaf 11, so the chain
	// must step down from x2apic to the legacy decode.
	m := fake.NewLegacyApicMachine(fake.SMPShape{
		Packages: 1, CoresPerPkg: 4, ThreadsPerCore: 1,
	})
	res, err := Run(contextFor(m))
	require.NoError(t, err)
	assert.Equal(t, MethodApic, res.Method)
	require.NotNil(t, res.Topology)
	assert.Equal(t, 4, res.Topology.NumRecords())
}

func TestRunForcedMethodFails(t *testing.T) {
	m := fake.NewLegacyApicMachine(fake.SMPShape{
		Packages: 1, CoresPerPkg: 2, ThreadsPerCore: 1,
	})
	ctx := contextFor(m)
	ctx.Method = MethodX2Apic
	_, err := Run(ctx)
	require.Error(t, err)
	assert.Equal(t, api.ErrCodeNoLeaf11Support, api.CodeOf(err))
}

func TestRunFlatFallback(t *testing.T) {
	m := fake.NewBareMachine(4)
	res, err := Run(contextFor(m))
	require.NoError(t, err)
	assert.Equal(t, MethodFlat, res.Method)
	require.NotNil(t, res.Topology)

	topo := canonicalized(t, res.Topology)
	assert.Equal(t, 4, topo.NumPackages)
	assert.Equal(t, 1, topo.NumThreadsPerCore)
}

func TestCpuinfoMachine(t *testing.T) {
	m := fake.NewBareMachine(8)
	ctx := contextFor(m)
	ctx.CpuinfoPath = "/fixtures/cpuinfo"
	ctx.FS = fake.FS{
		"/fixtures/cpuinfo": fake.CpuinfoText(2, 2, 2),
	}
	res, err := cpuinfoBackend{}.Discover(ctx)
	require.NoError(t, err)
	require.NotNil(t, res.Topology)
	assert.Equal(t, Globals{
		NPackages: 2, NCoresPerPkg: 2, NThreadsPerCore: 2, NCores: 4,
	}, res.Globals)

	topo := canonicalized(t, res.Topology)
	assert.Equal(t, 8, topo.NumRecords())
	assert.Equal(t, 2, topo.NumThreadsPerCore)

	// Thread ids were absent from the file; synthesized ids must be
	// dense within each core.
	for i := 0; i < topo.NumRecords(); i++ {
		assert.Contains(t, []int{0, 1}, topo.Record(i).IDs[2])
	}
}

func TestCpuinfoRecoversMissingPhysicalID(t *testing.T) {
	m := fake.NewBareMachine(2)
	ctx := contextFor(m)
	ctx.CpuinfoPath = "/fixtures/cpuinfo"
	ctx.FS = fake.FS{
		"/fixtures/cpuinfo": "processor\t: 0\n" +
			"physical id\t: -1\n" +
			"core id\t\t: 0\n" +
			"\n" +
			"processor\t: 1\n" +
			"physical id\t: -1\n" +
			"core id\t\t: 1\n" +
			"\n",
		"/sys/devices/system/cpu/cpu0/topology/core_siblings_list": "0-1\n",
		"/sys/devices/system/cpu/cpu1/topology/core_siblings_list": "0-1\n",
	}
	res, err := cpuinfoBackend{}.Discover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Globals.NPackages)
	assert.Equal(t, 2, res.Globals.NCoresPerPkg)
}

func TestCpuinfoRejectsEmptyFile(t *testing.T) {
	m := fake.NewBareMachine(2)
	ctx := contextFor(m)
	ctx.CpuinfoPath = "/fixtures/cpuinfo"
	ctx.FS = fake.FS{"/fixtures/cpuinfo": "model name\t: something\n"}
	_, err := cpuinfoBackend{}.Discover(ctx)
	require.Error(t, err)
	assert.Equal(t, api.ErrCodeCpuinfoParse, api.CodeOf(err))
}

func TestCpuinfoRejectsDuplicateField(t *testing.T) {
	m := fake.NewBareMachine(2)
	ctx := contextFor(m)
	ctx.CpuinfoPath = "/fixtures/cpuinfo"
	ctx.FS = fake.FS{
		"/fixtures/cpuinfo": "processor\t: 0\n" +
			"physical id\t: 0\n" +
			"physical id\t: 0\n" +
			"\n",
	}
	_, err := cpuinfoBackend{}.Discover(ctx)
	require.Error(t, err)
	assert.Equal(t, api.ErrCodeCpuinfoDuplicateField, api.CodeOf(err))
}

func TestCpuinfoSkipsProcsOutsideMask(t *testing.T) {
	m := fake.NewBareMachine(8)
	ctx := contextFor(m)
	ctx.FullMask.Clear(7)
	ctx.CpuinfoPath = "/fixtures/cpuinfo"
	ctx.FS = fake.FS{
		"/fixtures/cpuinfo": fake.CpuinfoText(2, 2, 2),
	}
	res, err := cpuinfoBackend{}.Discover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, res.Topology.NumRecords())
}

func TestNotCapableReturnsGlobalsOnly(t *testing.T) {
	m := fake.NewX2ApicMachine(fake.SMPShape{
		Packages: 1, CoresPerPkg: 4, ThreadsPerCore: 2,
	})
	ctx := contextFor(m)
	ctx.Capable = false
	res, err := x2apicBackend{}.Discover(ctx)
	require.NoError(t, err)
	assert.Nil(t, res.Topology)
	assert.Equal(t, 2, res.Globals.NThreadsPerCore)
	// The core level of leaf 11 counts logical processors per package.
	assert.Equal(t, 8, res.Globals.NCoresPerPkg)
	assert.Equal(t, 4, res.Globals.NCores)
	assert.Equal(t, 1, res.Globals.NPackages)
}

func TestGroupNotCapableGlobals(t *testing.T) {
	m := fake.NewBareMachine(64)
	ctx := contextFor(m)
	ctx.Capable = false
	ctx.NumProcGroups = 2
	res, err := groupBackend{}.Discover(ctx)
	require.NoError(t, err)
	assert.Nil(t, res.Topology)
	assert.Equal(t, 2, res.Globals.NPackages)
	assert.Equal(t, 32, res.Globals.NCoresPerPkg)
	assert.Equal(t, 64, res.Globals.NCores)
	assert.Equal(t, 1, res.Globals.NThreadsPerCore)
}

func TestDiscoveryRestoresAffinity(t *testing.T) {
	m := fake.NewX2ApicMachine(fake.SMPShape{
		Packages: 1, CoresPerPkg: 2, ThreadsPerCore: 2,
	})
	before, err := m.GetThreadAffinity()
	require.NoError(t, err)

	_, err = x2apicBackend{}.Discover(contextFor(m))
	require.NoError(t, err)

	after, err := m.GetThreadAffinity()
	require.NoError(t, err)
	assert.True(t, before.Equal(after), "probing must restore the thread mask")
}

func TestParseMethodRoundTrip(t *testing.T) {
	for _, m := range []Method{
		MethodAll, MethodHwloc, MethodX2Apic, MethodX2Apic1F,
		MethodApic, MethodCpuinfo, MethodGroup, MethodFlat,
	} {
		assert.Equal(t, m, ParseMethod(m.String()))
	}
	assert.Equal(t, MethodAll, ParseMethod("nonsense"))
}

func TestParseCPUListFormats(t *testing.T) {
	m, err := platform.ParseCPUList("0-2,5,8-9")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 5, 8, 9}, m.Slice())

	empty, err := platform.ParseCPUList("")
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())

	_, err = platform.ParseCPUList("3-1")
	assert.Error(t, err)
}
