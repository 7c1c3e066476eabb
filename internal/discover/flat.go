// File: internal/discover/flat.go
//
// Flat and processor-group fallback backends.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package discover

import (
	"github.com/momentics/hioload-affinity/api"
	"github.com/momentics/hioload-affinity/topology"
)

// flatBackend models every OS processor as its own single-core socket.
// It cannot fail, so it terminates the coordinator's fallback chain.
type flatBackend struct{}

func (flatBackend) Name() string   { return "flat" }
func (flatBackend) Method() Method { return MethodFlat }

func (flatBackend) Discover(ctx *Context) (*Result, error) {
	ctx.diag().Infof("modeling the machine as a flat set of processors")

	if !ctx.Capable {
		return &Result{
			Globals: Globals{
				NPackages:       ctx.XProc,
				NCoresPerPkg:    1,
				NThreadsPerCore: 1,
				NCores:          ctx.XProc,
			},
			Method: MethodFlat,
		}, nil
	}

	avail := ctx.AvailProc()
	types := []api.LevelType{api.LevelSocket, api.LevelCore, api.LevelThread}
	topo := topology.New(avail, types)
	n := 0
	for os := ctx.FullMask.NextAfter(-1); os >= 0; os = ctx.FullMask.NextAfter(os) {
		rec := topo.Record(n)
		rec.OSID = os
		rec.IDs[0] = os
		rec.IDs[1] = 0
		rec.IDs[2] = 0
		n++
	}
	return &Result{
		Topology: topo,
		Globals: Globals{
			NPackages:       avail,
			NCoresPerPkg:    1,
			NThreadsPerCore: 1,
			NCores:          avail,
		},
		Method: MethodFlat,
	}, nil
}

// bitsPerGroup is the width of one Windows processor group.
const bitsPerGroup = 64

// groupBackend maps Windows processor groups to the socket slot so
// threads can float within a group when granularity is coarse. Only
// offered when the machine has more than one group.
type groupBackend struct{}

func (groupBackend) Name() string   { return "group" }
func (groupBackend) Method() Method { return MethodGroup }

func (groupBackend) Discover(ctx *Context) (*Result, error) {
	if ctx.NumProcGroups <= 1 {
		return nil, api.NewError(api.ErrCodeNotSupported,
			"single processor group, group topology not applicable")
	}

	if !ctx.Capable {
		ncores := ctx.XProc
		npkg := ctx.NumProcGroups
		return &Result{
			Globals: Globals{
				NPackages:       npkg,
				NCoresPerPkg:    ncores / npkg,
				NThreadsPerCore: 1,
				NCores:          ncores,
			},
			Method: MethodGroup,
		}, nil
	}

	avail := ctx.AvailProc()
	types := []api.LevelType{api.LevelProcGroup, api.LevelCore, api.LevelThread}
	topo := topology.New(avail, types)
	n := 0
	for os := ctx.FullMask.NextAfter(-1); os >= 0; os = ctx.FullMask.NextAfter(os) {
		rec := topo.Record(n)
		rec.OSID = os
		rec.IDs[0] = os / bitsPerGroup
		rec.IDs[1] = os % bitsPerGroup
		rec.IDs[2] = os % bitsPerGroup
		n++
	}
	return &Result{Topology: topo, Method: MethodGroup}, nil
}
