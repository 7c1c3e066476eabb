// File: internal/placement/placeinfo.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package placement

import (
	"github.com/momentics/hioload-affinity/api"
	"github.com/momentics/hioload-affinity/mask"
	"github.com/momentics/hioload-affinity/topology"
)

// PlaceInfo summarizes which topology units one place mask covers.
// IDs holds the logical id per level, MultipleID when the place spans
// more than one unit of that level. Attrs carries the core attributes
// when every thread in the place shares them.
type PlaceInfo struct {
	IDs   []int
	Attrs api.CoreAttrs
}

// OSIDToRecord maps OS processor ids to canonical record indices.
func OSIDToRecord(topo *topology.Topology) map[int]int {
	byOS := make(map[int]int, topo.NumRecords())
	for i := 0; i < topo.NumRecords(); i++ {
		byOS[topo.Record(i).OSID] = i
	}
	return byOS
}

// DescribePlaces reports per-place topology coverage. Once a level
// shows two different ids, it and every deeper level report MultipleID.
func DescribePlaces(topo *topology.Topology, places []*mask.Mask) []PlaceInfo {
	byOS := OSIDToRecord(topo)
	depth := topo.Depth()
	out := make([]PlaceInfo, len(places))
	for p, place := range places {
		info := PlaceInfo{IDs: make([]int, depth), Attrs: api.UnknownCoreAttrs()}
		for i := range info.IDs {
			info.IDs[i] = api.UnknownID
		}
		first := true
		for cpu := place.NextAfter(-1); cpu >= 0; cpu = place.NextAfter(cpu) {
			idx, ok := byOS[cpu]
			if !ok {
				continue
			}
			rec := topo.Record(idx)
			for level := 0; level < depth; level++ {
				id := rec.SubIDs[level]
				if info.IDs[level] == api.UnknownID || info.IDs[level] == id {
					info.IDs[level] = id
					continue
				}
				for ; level < depth; level++ {
					info.IDs[level] = api.MultipleID
				}
			}
			if first {
				info.Attrs = rec.Attrs
				first = false
			} else if info.Attrs.Type != rec.Attrs.Type || info.Attrs.Eff != rec.Attrs.Eff {
				info.Attrs = api.UnknownCoreAttrs()
			}
		}
		out[p] = info
	}
	return out
}
