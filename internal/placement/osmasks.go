// File: internal/placement/osmasks.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package placement

import (
	"github.com/momentics/hioload-affinity/api"
	"github.com/momentics/hioload-affinity/mask"
	"github.com/momentics/hioload-affinity/topology"
)

// OSMaskTable maps every OS processor id to the affinity mask of its
// granularity unit. Processors excluded by an attribute filter have no
// entry.
type OSMaskTable struct {
	masks []*mask.Mask
}

// MaxOSID returns the highest OS id the table covers.
func (t *OSMaskTable) MaxOSID() int { return len(t.masks) - 1 }

// MaskOf returns the unit mask of osID, or nil when absent.
func (t *OSMaskTable) MaskOf(osID int) *mask.Mask {
	if osID < 0 || osID >= len(t.masks) {
		return nil
	}
	return t.masks[osID]
}

// Contains reports whether osID has an entry that includes itself.
func (t *OSMaskTable) Contains(osID int) bool {
	m := t.MaskOf(osID)
	return m != nil && m.IsSet(osID)
}

// BuildOSIDMasks constructs the per-processor unit masks, grouping
// records that fall within the same granularity unit. Leaders are
// marked on the records. Returns the table and the number of distinct
// units.
//
// Up to three record walks are tried in order: attribute-filtered when
// attribute granularity is requested, skipping records without an id at
// the granularity level, and finally the plain walk.
func BuildOSIDMasks(topo *topology.Topology, granLevels int,
	granAttrs api.CoreAttrs, diag api.Diagnostics) (*OSMaskTable, int) {

	n := topo.NumRecords()

	if granAttrs.Valid() {
		attrNext := func(idx int) int {
			for i := idx + 1; i < n; i++ {
				if topo.Record(i).Attrs.Contains(granAttrs) {
					return i
				}
			}
			return n
		}
		if table, unique := createOSIDMasks(topo, granLevels, diag, attrNext); table != nil {
			return table, unique
		}
		diag.Warnf("no processors match the requested core attributes, ignoring them")
	}

	if granLevel := topo.Depth() - 1 - granLevels; granLevel >= 0 {
		granNext := func(idx int) int {
			for i := idx + 1; i < n; i++ {
				if topo.Record(i).IDs[granLevel] != api.UnknownID {
					return i
				}
			}
			return n
		}
		if table, unique := createOSIDMasks(topo, granLevels, diag, granNext); table != nil {
			return table, unique
		}
	}

	table, unique := createOSIDMasks(topo, granLevels, diag,
		func(idx int) int { return idx + 1 })
	return table, unique
}

// createOSIDMasks walks the records selected by findNext, which yields
// the next index after its argument (start with -1) and NumRecords when
// exhausted. Returns a nil table when the walk selects nothing.
func createOSIDMasks(topo *topology.Topology, granLevels int,
	diag api.Diagnostics, findNext func(int) int) (*OSMaskTable, int) {

	n := topo.NumRecords()
	if findNext(-1) >= n {
		return nil, 0
	}
	for i := 0; i < n; i++ {
		topo.Record(i).Leader = false
	}
	maxOSID := 0
	for i := 0; i < n; i++ {
		if os := topo.Record(i).OSID; os > maxOSID {
			maxOSID = os
		}
	}
	table := &OSMaskTable{masks: make([]*mask.Mask, maxOSID+1)}
	if granLevels >= topo.Depth() {
		diag.Warnf("granularity exceeds the topology depth, threads may migrate across the whole machine")
	}

	unique := 0
	j := findNext(-1)
	leader := j
	sum := mask.New()
	sum.Set(topo.Record(leader).OSID)
	i := findNext(leader)
	for ; i < n; i = findNext(i) {
		if topo.IsClose(leader, i, granLevels, false, false) {
			sum.Set(topo.Record(i).OSID)
			continue
		}
		for ; j < i; j = findNext(j) {
			rec := topo.Record(j)
			table.masks[rec.OSID] = sum.Clone()
			rec.Leader = j == leader
		}
		unique++
		sum = mask.New()
		leader = i
		sum.Set(topo.Record(i).OSID)
	}
	for ; j < i; j = findNext(j) {
		rec := topo.Record(j)
		table.masks[rec.OSID] = sum.Clone()
		rec.Leader = j == leader
	}
	unique++
	return table, unique
}
