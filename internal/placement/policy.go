// File: internal/placement/policy.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package placement

import (
	"github.com/momentics/hioload-affinity/api"
	"github.com/momentics/hioload-affinity/mask"
	"github.com/momentics/hioload-affinity/topology"
)

// Result carries the published places plus everything the per-thread
// balanced computation needs later.
type Result struct {
	// Kind is the effective policy after fallbacks. A policy that
	// cannot apply degrades to PolicyNone with a warning.
	Kind   api.PolicyKind
	Places []*mask.Mask

	// Table maps OS ids to their granularity unit masks.
	Table       *OSMaskTable
	NumUnique   int
	Granularity api.LevelType
	GranLevels  int

	// Compact and Offset are the effective sorting parameters.
	Compact int
	Offset  int

	// Balanced state for non-uniform machines: ProcArr holds
	// NCores*MaxProcPerCore slots of OS ids, -1 for absent threads.
	CoreLevel      int
	NCores         int
	MaxProcPerCore int
	ProcArr        []int
}

// BuildPlaces runs the placement policy against a canonical topology
// whose records are already restricted to fullMask. It returns the
// ordered place masks and leaves the topology in canonical record
// order.
func BuildPlaces(topo *topology.Topology, fullMask *mask.Mask,
	spec api.PolicySpec, numProcGroups int, diag api.Diagnostics) (*Result, error) {

	avail := topo.NumRecords()
	res := &Result{Kind: spec.Kind}

	if spec.Kind == api.PolicyDisabled {
		return res, nil
	}
	if spec.Kind == api.PolicyNone {
		res.Places = []*mask.Mask{fullMask.Clone()}
		return res, nil
	}

	granType, granLevels := ResolveGranularity(topo, &spec, numProcGroups, diag)
	res.Granularity, res.GranLevels = granType, granLevels
	res.Table, res.NumUnique = BuildOSIDMasks(topo, granLevels, spec.GranularityAttrs, diag)

	// Attribute filtering can exclude whole cores; the working mask
	// then follows the surviving union.
	if spec.GranularityAttrs.Valid() && res.Table != nil {
		union := mask.New()
		for os := 0; os <= res.Table.MaxOSID(); os++ {
			if m := res.Table.MaskOf(os); m != nil {
				union.Or(m)
			}
		}
		if !union.IsEmpty() && !fullMask.IsSubsetOf(union) {
			fullMask.And(union)
		}
	}

	if spec.Kind == api.PolicyExplicit {
		var places []*mask.Mask
		var err error
		switch {
		case spec.ProcList != "":
			places, err = ParseProcList(spec.ProcList, res.Table, diag)
		case spec.PlaceList != "":
			places, err = ParsePlaceList(spec.PlaceList, res.Table, fullMask, diag)
		default:
			err = api.NewError(api.ErrCodeInvalidArgument,
				"explicit placement needs a proc list or a place list")
		}
		if err != nil {
			return nil, err
		}
		if len(places) == 0 {
			diag.Warnf("explicit list contains no valid OS processor id, falling back to a single place")
			return nonePlaces(res, fullMask), nil
		}
		res.Places = places
		return res, nil
	}

	compact, offset := spec.Compact, spec.Offset
	depth := topo.Depth()
	switch spec.Kind {
	case api.PolicyLogical:
		compact = 0
		if offset != 0 {
			offset = topo.NumThreadsPerCore * offset % avail
		}
	case api.PolicyPhysical:
		if topo.NumThreadsPerCore > 1 {
			compact = 1
			if compact >= depth {
				compact = 0
			}
		} else {
			compact = 0
		}
		if offset != 0 {
			offset = topo.NumThreadsPerCore * offset % avail
		}
	case api.PolicyScatter:
		if compact >= depth {
			compact = 0
		} else {
			compact = depth - 1 - compact
		}
	case api.PolicyCompact:
		if compact >= depth {
			compact = depth - 1
		}
	case api.PolicyBalanced:
		if depth <= 1 {
			diag.Warnf("balanced placement needs at least two topology levels, falling back to a single place")
			return nonePlaces(res, fullMask), nil
		}
		if !topo.Uniform() {
			coreLevel := findCoreLevel(topo, depth-1)
			ncores := topo.CountAt(coreLevel)
			maxPer := maxProcPerCore(topo, depth-1, coreLevel)
			nproc := ncores * maxPer
			if nproc < 2 || nproc < avail {
				diag.Warnf("balanced placement not available on this machine shape, falling back to a single place")
				return nonePlaces(res, fullMask), nil
			}
			procarr := make([]int, nproc)
			for i := range procarr {
				procarr[i] = -1
			}
			lastCore, inLastCore := -1, 0
			for i := 0; i < avail; i++ {
				core := findCore(topo, i, coreLevel)
				if core == lastCore {
					inLastCore++
				} else {
					inLastCore = 0
				}
				lastCore = core
				procarr[core*maxPer+inLastCore] = topo.Record(i).OSID
			}
			res.CoreLevel = coreLevel
			res.NCores = ncores
			res.MaxProcPerCore = maxPer
			res.ProcArr = procarr
		}
		if compact >= depth {
			compact = depth - 1
		}
	default:
		return nil, api.NewError(api.ErrCodeInvalidArgument, "unknown placement policy").
			WithContext("kind", spec.Kind.String())
	}
	res.Compact, res.Offset = compact, offset

	numMasks := res.NumUnique
	if spec.Dups {
		numMasks = avail
	}
	if spec.MaxPlaces > 0 && spec.MaxPlaces < numMasks {
		numMasks = spec.MaxPlaces
	}

	topo.SortCompact(compact)
	places := make([]*mask.Mask, 0, numMasks)
	for i := 0; i < avail && len(places) < numMasks; i++ {
		rec := topo.Record(i)
		if !spec.Dups && !rec.Leader {
			continue
		}
		src := res.Table.MaskOf(rec.OSID)
		if src == nil || src.IsEmpty() {
			continue
		}
		places = append(places, src.Clone())
	}
	topo.SortIDs()
	res.Places = places
	return res, nil
}

// nonePlaces degrades the result to a single full-machine place.
func nonePlaces(res *Result, fullMask *mask.Mask) *Result {
	res.Kind = api.PolicyNone
	res.Places = []*mask.Mask{fullMask.Clone()}
	return res
}
