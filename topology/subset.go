// Package topology
// Author: momentics <momentics@gmail.com>
//
// Restriction of the topology to an affinity mask and the hardware
// subset filter.

package topology

import (
	"sort"

	"github.com/momentics/hioload-affinity/api"
	"github.com/momentics/hioload-affinity/mask"
)

// RestrictToMask drops every record whose OS id is not in allowed,
// compacting in place and re-deriving the per-level statistics. OS ids
// of dropped records are cleared from full when full is non-nil.
// Reports whether anything was dropped.
func (t *Topology) RestrictToMask(allowed, full *mask.Mask) bool {
	newIndex := 0
	for i := range t.records {
		osID := t.records[i].OSID
		if allowed.IsSet(osID) {
			if i != newIndex {
				t.records[newIndex] = t.records[i]
			}
			newIndex++
		} else if full != nil {
			full.Clear(osID)
		}
	}
	affected := len(t.records) != newIndex
	t.records = t.records[:newIndex]
	if affected {
		t.gatherEnumeration()
		t.discoverUniformity()
		t.setGlobals()
		t.setLastLevelCache()
	}
	return affected
}

// normalizeSubset resolves item levels, adds implicit socket/core/
// thread items to a relative subset, and sorts items outermost first.
// Returns false (with a warning) when the subset cannot apply.
func (t *Topology) normalizeSubset(items []api.SubsetItem, absolute bool,
	diag api.Diagnostics) ([]api.SubsetItem, bool) {
	specified := make(map[api.LevelType]api.LevelType)
	out := append([]api.SubsetItem(nil), items...)
	for i := range out {
		typ := out[i].Level
		eq := t.EquivalentType(typ)
		if eq == api.LevelUnknown {
			diag.Warnf("hardware subset ignored: %s does not exist in the topology", typ)
			return nil, false
		}
		if prev, dup := specified[eq]; dup {
			diag.Warnf("hardware subset ignored: %s is equivalent to the already specified %s", typ, prev)
			return nil, false
		}
		specified[eq] = typ
		out[i].Level = eq
	}
	if !absolute {
		for _, typ := range []api.LevelType{api.LevelSocket, api.LevelCore, api.LevelThread} {
			eq := t.EquivalentType(typ)
			if eq == api.LevelUnknown {
				continue
			}
			if _, ok := specified[eq]; !ok {
				out = append(out, api.NewSubsetItem(eq, api.SubsetUseAll, 0))
				specified[eq] = eq
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return t.LevelOf(out[i].Level) < t.LevelOf(out[j].Level)
	})
	return out, true
}

// FilterSubset applies a hardware subset restriction, dropping the
// hardware threads outside the requested windows. Invalid subsets and
// subsets that would filter the whole machine are ignored with a
// warning. full is restricted alongside. Reports whether anything was
// filtered.
func (t *Topology) FilterSubset(items []api.SubsetItem, absolute bool,
	full *mask.Mask, diag api.Diagnostics) bool {
	if len(items) == 0 {
		return false
	}
	items, ok := t.normalizeSubset(items, absolute, diag)
	if !ok {
		return false
	}

	usingCoreTypes := false
	usingCoreEffs := false
	coreLevel := t.LevelOf(api.LevelCore)
	levels := make([]int, len(items))
	for i := range items {
		item := &items[i]
		level := t.LevelOf(item.Level)
		levels[i] = level

		num := item.Nums[0]
		offset := item.Offsets[0]
		maxCount := t.RatioAt(level)
		if !absolute {
			if maxCount < 0 || (num != api.SubsetUseAll && num+offset > maxCount) {
				diag.Warnf("hardware subset ignored: too many %ss requested", item.Level)
				return false
			}
		}

		if level != coreLevel {
			continue
		}
		for _, a := range item.Attrs {
			if a.Type != api.CoreTypeUnknown {
				usingCoreTypes = true
			}
			if a.Eff >= 0 {
				usingCoreEffs = true
			}
		}
		if (usingCoreTypes || usingCoreEffs) && !t.hybrid {
			if len(item.Attrs) == 1 {
				diag.Warnf("hardware subset: ignoring core attribute on non-hybrid machine")
				usingCoreTypes = false
				usingCoreEffs = false
				for j := range item.Attrs {
					item.Attrs[j] = api.UnknownCoreAttrs()
				}
			} else {
				diag.Warnf("hardware subset ignored: multiple core attributes on non-hybrid machine")
				return false
			}
		}
		if usingCoreTypes && usingCoreEffs {
			diag.Warnf("hardware subset ignored: core_type and efficiency cannot be combined")
			return false
		}
		if usingCoreEffs {
			for _, a := range item.Attrs {
				if a.Eff >= 0 && a.Eff >= t.numCoreEffs {
					diag.Warnf("hardware subset ignored: efficiency %d out of range 0-%d",
						a.Eff, t.numCoreEffs-1)
					return false
				}
			}
		}
		if (usingCoreTypes || usingCoreEffs) && !absolute {
			for j, a := range item.Attrs {
				if !a.Valid() {
					continue
				}
				if coreLevel < 1 {
					continue
				}
				maxCount := t.NCoresWithAttrPer(a, coreLevel-1)
				num, offset := item.Nums[j], item.Offsets[j]
				if maxCount <= 0 || (num != api.SubsetUseAll && num+offset > maxCount) {
					diag.Warnf("hardware subset ignored: too many cores with the requested attribute")
					return false
				}
			}
		}
		if (usingCoreTypes || usingCoreEffs) && len(item.Attrs) > 1 {
			for j := range item.Attrs {
				// Plain cores cannot be mixed with attribute cores in
				// one item, and an attribute may appear only once.
				if !item.Attrs[j].Valid() {
					diag.Warnf("hardware subset ignored: plain cores mixed with attribute cores")
					return false
				}
				for k := 0; k < j; k++ {
					if item.Attrs[k] == item.Attrs[j] {
						diag.Warnf("hardware subset ignored: core attribute specified more than once")
						return false
					}
				}
			}
		}
	}

	// Running sub-id state for absolute subsets and core attributes.
	prevSubIDs := make([]int, t.depth)
	absSubIDs := make([]int, t.depth)
	for i := range prevSubIDs {
		prevSubIDs[i] = -1
		absSubIDs[i] = -1
	}
	coreEffSubIDs := make([]int, t.numCoreEffs+1)
	coreTypeSubIDs := make([]int, maxCoreTypes+1)
	for i := range coreEffSubIDs {
		coreEffSubIDs[i] = -1
	}
	for i := range coreTypeSubIDs {
		coreTypeSubIDs[i] = -1
	}

	isTargeted := func(level int) bool {
		if !absolute {
			return true
		}
		for _, l := range levels {
			if l == level {
				return true
			}
		}
		return false
	}
	coreTypeIndex := func(rec *HardwareThread) int {
		switch rec.Attrs.Type {
		case api.CoreTypeAtom:
			return 1
		case api.CoreTypeCore:
			return 2
		}
		return 0
	}
	coreEffIndex := func(rec *HardwareThread) int {
		if rec.Attrs.Eff < 0 {
			return len(coreEffSubIDs) - 1
		}
		return rec.Attrs.Eff
	}

	numFiltered := 0
	filteredMask := full.Clone()
	for i := range t.records {
		rec := &t.records[i]

		if absolute || usingCoreEffs || usingCoreTypes {
			for level := 0; level < t.depth; level++ {
				if rec.SubIDs[level] == prevSubIDs[level] {
					continue
				}
				foundTargeted := false
				for j := level; j < t.depth; j++ {
					targeted := isTargeted(j)
					switch {
					case !foundTargeted && targeted:
						foundTargeted = true
						absSubIDs[j]++
						if j == coreLevel && usingCoreEffs {
							coreEffSubIDs[coreEffIndex(rec)]++
						}
						if j == coreLevel && usingCoreTypes {
							coreTypeSubIDs[coreTypeIndex(rec)]++
						}
					case targeted:
						absSubIDs[j] = 0
						if j == coreLevel && usingCoreEffs {
							coreEffSubIDs[coreEffIndex(rec)] = 0
						}
						if j == coreLevel && usingCoreTypes {
							coreTypeSubIDs[coreTypeIndex(rec)] = 0
						}
					}
				}
				break
			}
			copy(prevSubIDs, rec.SubIDs)
		}

		shouldFilter := false
		for idx := range items {
			item := &items[idx]
			level := levels[idx]
			if level == -1 {
				continue
			}
			if (usingCoreEffs || usingCoreTypes) && level == coreLevel {
				attrIdx := -1
				for j, a := range item.Attrs {
					if usingCoreTypes && a.Type == rec.Attrs.Type {
						attrIdx = j
						break
					}
					if usingCoreEffs && a.Eff == rec.Attrs.Eff {
						attrIdx = j
						break
					}
				}
				// Attribute absent from the subset: always filter.
				if attrIdx == -1 {
					shouldFilter = true
					break
				}
				num, offset := item.Nums[attrIdx], item.Offsets[attrIdx]
				var subID int
				if usingCoreTypes {
					subID = coreTypeSubIDs[coreTypeIndex(rec)]
				} else {
					subID = coreEffSubIDs[coreEffIndex(rec)]
				}
				if subID < offset || (num != api.SubsetUseAll && subID >= offset+num) {
					shouldFilter = true
					break
				}
			} else {
				num, offset := item.Nums[0], item.Offsets[0]
				var subID int
				if absolute {
					subID = absSubIDs[level]
				} else {
					subID = rec.SubIDs[level]
				}
				if rec.IDs[level] == api.UnknownID || subID < offset ||
					(num != api.SubsetUseAll && subID >= offset+num) {
					shouldFilter = true
					break
				}
			}
		}
		if shouldFilter {
			filteredMask.Clear(rec.OSID)
			numFiltered++
		}
	}

	if numFiltered == len(t.records) {
		diag.Warnf("hardware subset ignored: all hardware threads would be filtered")
		return false
	}
	t.RestrictToMask(filteredMask, full)
	return true
}
