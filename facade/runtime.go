// File: facade/runtime.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package facade aggregates discovery and placement behind a single
// runtime: initialize once, query places, bind worker threads.

package facade

import (
	"sync"

	"github.com/momentics/hioload-affinity/adapters"
	"github.com/momentics/hioload-affinity/api"
	"github.com/momentics/hioload-affinity/internal/discover"
	"github.com/momentics/hioload-affinity/internal/placement"
	"github.com/momentics/hioload-affinity/internal/platform"
	"github.com/momentics/hioload-affinity/mask"
	"github.com/momentics/hioload-affinity/topology"
)

// Runtime owns the discovered topology and the published places. All
// published state is read-only after Initialize returns; Uninitialize
// may only run after every bound worker has unbound.
type Runtime struct {
	cfg            *Config
	diag           api.Diagnostics
	aff            api.OSAffinity
	querier        api.LeafQuerier
	fs             api.ProcFS
	cpuinfoPath    string
	hybrid         bool
	subset         []api.SubsetItem
	subsetAbsolute bool
	granAttrs      api.CoreAttrs

	mu          sync.Mutex
	initialized bool
	initErr     error

	capable  bool
	fullMask *mask.Mask
	origMask *mask.Mask
	topo     *topology.Topology
	res      *placement.Result
	infos    []placement.PlaceInfo
	method   discover.Method
}

// New constructs a runtime over the host hardware. Options substitute
// the hardware primitives, which tests use to run against fakes.
func New(cfg *Config, opts ...Option) *Runtime {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	r := &Runtime{
		cfg:       cfg,
		aff:       platform.New(),
		querier:   platform.NewCPUIDQuerier(),
		fs:        platform.HostFS{},
		hybrid:    platform.IsHybridCPU(),
		granAttrs: api.UnknownCoreAttrs(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.diag == nil {
		r.diag = adapters.NewLogrusDiagnostics(nil, cfg.Warnings)
	}
	return r
}

// Initialize discovers the topology and publishes the places. The
// first caller does the work; concurrent callers block until it is
// done and share its outcome. Repeating after Uninitialize reruns
// discovery.
func (r *Runtime) Initialize() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized {
		return r.initErr
	}
	r.initErr = r.initialize()
	r.initialized = true
	return r.initErr
}

func (r *Runtime) initialize() error {
	spec, err := r.cfg.Spec()
	if err != nil {
		return err
	}
	spec.GranularityAttrs = r.granAttrs
	if len(spec.Subset) == 0 {
		spec.Subset, spec.SubsetAbsolute = r.subset, r.subsetAbsolute
	}

	// The entire-machine mask: the kernel's possible-CPU list when it
	// is available, else every index the OS mask can hold, minus
	// processors reported offline.
	entire := platform.PossibleCPUs(r.fs)
	if entire.IsEmpty() {
		for i := 0; i <= r.aff.MaxCPUIndex(); i++ {
			entire.Set(i)
		}
	}
	entire.AndNot(platform.OfflineCPUs(r.fs))
	xproc := entire.Count()

	orig, err := r.aff.GetThreadAffinity()
	capable := err == nil && orig != nil && !orig.IsEmpty()
	r.capable = capable

	full := entire.Clone()
	if capable {
		r.origMask = orig.Clone()
		if spec.Respect {
			full = orig.Clone()
			if full.Count() > xproc {
				r.diag.Warnf("inherited mask larger than the machine, using the machine mask")
				full = entire.Clone()
			}
		}
	}

	ctx := &discover.Context{
		FullMask:      full.Clone(),
		XProc:         xproc,
		Capable:       capable,
		Affinity:      r.aff,
		Querier:       r.querier,
		FS:            r.fs,
		Diag:          r.diag,
		Method:        discover.ParseMethod(r.cfg.Method),
		Hybrid:        r.hybrid,
		NumProcGroups: platform.NumProcGroups(),
		GroupOf:       platform.GroupOf,
		CpuinfoPath:   r.cpuinfoPath,
	}
	dres, err := discover.Run(ctx)
	if err != nil {
		return err
	}
	r.method = dres.Method

	if dres.Topology == nil {
		// Only machine-wide counts are known; no per-thread records
		// means nothing to bind to beyond the full mask.
		g := dres.Globals
		topo := topology.New(0, []api.LevelType{
			api.LevelSocket, api.LevelCore, api.LevelThread,
		})
		topo.CanonicalizeFlat(g.NPackages, g.NCoresPerPkg, g.NThreadsPerCore,
			g.NCores, xproc)
		r.topo = topo
		r.fullMask = full
		r.res = &placement.Result{
			Kind:   api.PolicyNone,
			Places: []*mask.Mask{full.Clone()},
		}
		r.infos = nil
		return nil
	}

	topo := dres.Topology
	if ctx.NumProcGroups > 1 {
		topo.InsertProcGroups(ctx.NumProcGroups, ctx.GroupOf)
	}
	if err := topo.Canonicalize(); err != nil {
		return err
	}
	if len(spec.Subset) > 0 {
		topo.FilterSubset(spec.Subset, spec.SubsetAbsolute, full, r.diag)
	}
	r.diag.Debugf("topology: %s", topo.Summary())

	pres, err := placement.BuildPlaces(topo, full, spec, ctx.NumProcGroups, r.diag)
	if err != nil {
		return err
	}
	r.topo = topo
	r.fullMask = full
	r.res = pres
	r.infos = placement.DescribePlaces(topo, pres.Places)
	return nil
}

// Uninitialize drops all published state. The caller guarantees no
// worker is still bound.
func (r *Runtime) Uninitialize() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initialized = false
	r.initErr = nil
	r.capable = false
	r.fullMask = nil
	r.origMask = nil
	r.topo = nil
	r.res = nil
	r.infos = nil
}

func (r *Runtime) ready() error {
	if !r.initialized || r.initErr != nil || r.res == nil {
		return api.ErrNotInitialized
	}
	return nil
}

// PlaceCount returns the number of published places, 0 before
// initialization.
func (r *Runtime) PlaceCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ready() != nil {
		return 0
	}
	return len(r.res.Places)
}

// PlaceMask returns a copy of place i.
func (r *Runtime) PlaceMask(i int) (*mask.Mask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ready(); err != nil {
		return nil, err
	}
	if i < 0 || i >= len(r.res.Places) {
		return nil, api.ErrPlaceOutOfRange
	}
	return r.res.Places[i].Clone(), nil
}

// PlaceIDs returns the topology coverage of place i, MultipleID where
// the place spans several units of a level.
func (r *Runtime) PlaceIDs(i int) (placement.PlaceInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ready(); err != nil {
		return placement.PlaceInfo{}, err
	}
	if i < 0 || i >= len(r.infos) {
		return placement.PlaceInfo{}, api.ErrPlaceOutOfRange
	}
	return r.infos[i], nil
}

// FormatPlace renders place i in the canonical mask syntax.
func (r *Runtime) FormatPlace(i int) (string, error) {
	m, err := r.PlaceMask(i)
	if err != nil {
		return "", err
	}
	return m.String(), nil
}

// FullMask returns a copy of the mask the runtime operates within.
func (r *Runtime) FullMask() (*mask.Mask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ready(); err != nil {
		return nil, err
	}
	return r.fullMask.Clone(), nil
}

// Topology returns the canonical topology. Callers must not mutate it.
func (r *Runtime) Topology() (*topology.Topology, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ready(); err != nil {
		return nil, err
	}
	return r.topo, nil
}

// Method reports which discovery backend produced the topology.
func (r *Runtime) Method() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.method.String()
}

// Policy reports the effective policy after fallbacks.
func (r *Runtime) Policy() api.PolicyKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ready() != nil {
		return api.PolicyNone
	}
	return r.res.Kind
}

// IsCloseOS reports whether two OS processors share a granularity
// unit.
func (r *Runtime) IsCloseOS(a, b int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ready() != nil || r.res.Table == nil {
		return false
	}
	m := r.res.Table.MaskOf(a)
	return m != nil && m.IsSet(b)
}

// BalancedMask computes the per-thread mask for the balanced policy.
func (r *Runtime) BalancedMask(tid, nthreads int) (*mask.Mask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ready(); err != nil {
		return nil, err
	}
	if r.res.Kind != api.PolicyBalanced {
		return nil, api.ErrInvalidArgument
	}
	if tid < 0 || nthreads <= 0 || tid >= nthreads {
		return nil, api.ErrInvalidArgument
	}
	return r.res.BalancedMask(r.topo, tid, nthreads), nil
}

// Binder returns a fresh per-goroutine binder over the published
// places.
func (r *Runtime) Binder() (api.Binder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ready(); err != nil {
		return nil, err
	}
	return adapters.NewPlaceBinder(r.aff, r.res.Places, r.fullMask), nil
}

// BindCurrentThread narrows the calling thread's mask to place i. The
// caller owns the OS thread; prefer Binder for goroutine workers.
func (r *Runtime) BindCurrentThread(i int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ready(); err != nil {
		return err
	}
	if i < 0 || i >= len(r.res.Places) {
		return api.ErrPlaceOutOfRange
	}
	place := (i + r.res.Offset) % len(r.res.Places)
	return r.aff.SetThreadAffinity(r.res.Places[place])
}

// Summary renders the topology in the canonical one-line-per-fact
// form.
func (r *Runtime) Summary() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ready(); err != nil {
		return "", err
	}
	return r.topo.Summary(), nil
}
