// File: internal/discover/hwloc.go
//go:build hwloc && cgo

//
// Discovery through libhwloc. Preferred when available because hwloc
// already reconciles vendor quirks the CPUID decoders handle case by
// case. Enabled with the hwloc build tag.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package discover

// #include <hwloc.h>
// #cgo LDFLAGS: -lhwloc
import "C"

import (
	"github.com/momentics/hioload-affinity/api"
	"github.com/momentics/hioload-affinity/topology"
)

type hwlocBackend struct{}

func (hwlocBackend) Name() string   { return "hwloc" }
func (hwlocBackend) Method() Method { return MethodHwloc }

func (hwlocBackend) Discover(ctx *Context) (*Result, error) {
	var t C.hwloc_topology_t
	if C.hwloc_topology_init(&t) != 0 {
		return nil, api.NewError(api.ErrCodeInternal, "hwloc init failed")
	}
	defer C.hwloc_topology_destroy(t)
	if C.hwloc_topology_load(t) != 0 {
		return nil, api.NewError(api.ErrCodeInternal, "hwloc load failed")
	}
	ctx.diag().Infof("decoding topology via hwloc")

	npus := int(C.hwloc_get_nbobjs_by_type(t, C.HWLOC_OBJ_PU))
	if npus <= 0 {
		return nil, api.NewError(api.ErrCodeInternal, "hwloc reports no PUs")
	}
	ncores := int(C.hwloc_get_nbobjs_by_type(t, C.HWLOC_OBJ_CORE))
	npkgs := int(C.hwloc_get_nbobjs_by_type(t, C.HWLOC_OBJ_PACKAGE))
	nnumas := int(C.hwloc_get_nbobjs_by_type(t, C.HWLOC_OBJ_NUMANODE))
	hasNuma := nnumas > 1

	if !ctx.Capable {
		g := Globals{NPackages: 1, NCoresPerPkg: 1, NThreadsPerCore: 1}
		if npkgs > 0 {
			g.NPackages = npkgs
		}
		if ncores > 0 {
			g.NCores = ncores
			g.NCoresPerPkg = ncores / g.NPackages
			g.NThreadsPerCore = npus / ncores
		} else {
			g.NCores = npus
		}
		return &Result{Globals: g, Method: MethodHwloc}, nil
	}

	var types []api.LevelType
	types = append(types, api.LevelSocket)
	if hasNuma {
		types = append(types, api.LevelNUMA)
	}
	types = append(types, api.LevelCore, api.LevelThread)
	depth := len(types)

	ancestorIndex := func(obj C.hwloc_obj_t, typ C.hwloc_obj_type_t) int {
		for a := obj; a != nil; a = a.parent {
			if a._type == typ {
				return int(a.logical_index)
			}
		}
		return api.UnknownID
	}

	records := make([][]int, 0, npus)
	osIDs := make([]int, 0, npus)
	for i := 0; i < npus; i++ {
		pu := C.hwloc_get_obj_by_type(t, C.HWLOC_OBJ_PU, C.uint(i))
		if pu == nil {
			continue
		}
		os := int(pu.os_index)
		if !ctx.FullMask.IsSet(os) {
			continue
		}
		ids := make([]int, depth)
		lvl := 0
		ids[lvl] = ancestorIndex(pu, C.HWLOC_OBJ_PACKAGE)
		lvl++
		if hasNuma {
			// NUMA nodes hang off the tree as memory children; the
			// covering node is found through the PU's cpuset instead.
			idx := api.UnknownID
			mem := C.hwloc_get_next_obj_covering_cpuset_by_type(
				t, pu.cpuset, C.HWLOC_OBJ_NUMANODE, nil)
			if mem != nil {
				idx = int(mem.logical_index)
			}
			ids[lvl] = idx
			lvl++
		}
		ids[lvl] = ancestorIndex(pu, C.HWLOC_OBJ_CORE)
		ids[lvl+1] = int(pu.logical_index)
		records = append(records, ids)
		osIDs = append(osIDs, os)
	}
	if len(records) == 0 {
		return nil, api.NewError(api.ErrCodeInternal,
			"no PU intersects the process mask")
	}

	topo := topology.New(len(records), types)
	for i := range records {
		rec := topo.Record(i)
		rec.OSID = osIDs[i]
		copy(rec.IDs, records[i])
	}
	topo.SortIDs()
	if !topo.CheckIDs() {
		return nil, api.NewError(api.ErrCodeTopologyInvalid,
			"hwloc ids are not unique")
	}
	return &Result{Topology: topo, Method: MethodHwloc}, nil
}

func newHwlocBackend() (Backend, bool) { return hwlocBackend{}, true }
