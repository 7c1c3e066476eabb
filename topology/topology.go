// Package topology
// Author: momentics <momentics@gmail.com>
//
// Topology model and canonicalization pipeline.

package topology

import (
	"sort"

	"github.com/momentics/hioload-affinity/api"
)

// maxCoreTypes bounds the hybrid core type inventory.
const maxCoreTypes = 2

// Topology owns the hardware thread records and the per-level
// statistics derived from them. Levels run widest (index 0) to deepest
// (index depth-1).
type Topology struct {
	depth      int
	types      []api.LevelType
	equivalent map[api.LevelType]api.LevelType
	ratio      []int
	count      []int
	records    []HardwareThread

	hybrid      bool
	uniform     bool
	numCoreEffs int
	coreTypes   []api.CoreType

	// Machine-wide totals published by setGlobals.
	NumPackages       int
	NumCoresPerPkg    int
	NumThreadsPerCore int
	NumCores          int
}

// New allocates a topology of nproc records over the given level
// types, outermost first. Every id starts as UnknownID.
func New(nproc int, types []api.LevelType) *Topology {
	t := &Topology{
		depth:      len(types),
		types:      append([]api.LevelType(nil), types...),
		equivalent: make(map[api.LevelType]api.LevelType),
		ratio:      make([]int, len(types)),
		count:      make([]int, len(types)),
		records:    make([]HardwareThread, nproc),
	}
	for _, typ := range types {
		t.equivalent[typ] = typ
	}
	for i := range t.records {
		t.records[i] = newHardwareThread(t.depth)
		t.records[i].OriginalIdx = i
	}
	return t
}

// Depth returns the number of topology levels.
func (t *Topology) Depth() int { return t.depth }

// NumRecords returns the number of hardware threads.
func (t *Topology) NumRecords() int { return len(t.records) }

// Record returns a mutable reference to record i in current order.
func (t *Topology) Record(i int) *HardwareThread { return &t.records[i] }

// TypeAt returns the level type at index level.
func (t *Topology) TypeAt(level int) api.LevelType { return t.types[level] }

// Types returns the level types, outermost first.
func (t *Topology) Types() []api.LevelType {
	return append([]api.LevelType(nil), t.types...)
}

// RatioAt returns the max number of level units per parent unit.
func (t *Topology) RatioAt(level int) int { return t.ratio[level] }

// CountAt returns the total number of units at level.
func (t *Topology) CountAt(level int) int { return t.count[level] }

// Uniform reports whether every branch of the topology tree has the
// same shape.
func (t *Topology) Uniform() bool { return t.uniform }

// Hybrid reports whether the machine carries heterogeneous cores.
func (t *Topology) Hybrid() bool { return t.hybrid }

// SetHybrid is called by discovery when heterogeneous cores were seen.
func (t *Topology) SetHybrid(v bool) { t.hybrid = v }

// CoreTypes returns the distinct core types seen, discovery order.
func (t *Topology) CoreTypes() []api.CoreType {
	return append([]api.CoreType(nil), t.coreTypes...)
}

// NumCoreEffs returns the number of distinct efficiency classes.
func (t *Topology) NumCoreEffs() int { return t.numCoreEffs }

// EquivalentType resolves typ through the equivalence map, returning
// LevelUnknown when the machine has no such layer.
func (t *Topology) EquivalentType(typ api.LevelType) api.LevelType {
	if eq, ok := t.equivalent[typ]; ok {
		return eq
	}
	return api.LevelUnknown
}

// SetEquivalentType records that typ is served by the layer of type
// keep. Discovery uses it to fold cache levels into enumerated layers;
// SetEquivalentType(t, t) marks t present without aliasing.
func (t *Topology) SetEquivalentType(typ, keep api.LevelType) {
	t.setEquivalentType(typ, keep)
}

// setEquivalentType folds removed into keep, re-pointing every alias
// of removed so the map stays idempotent.
func (t *Topology) setEquivalentType(removed, keep api.LevelType) {
	real := keep
	if eq, ok := t.equivalent[keep]; ok && eq != api.LevelUnknown {
		real = eq
	}
	t.equivalent[removed] = real
	for typ, eq := range t.equivalent {
		if eq == removed {
			t.equivalent[typ] = real
		}
	}
}

// LevelOf returns the level index of typ resolved through equivalence,
// or -1 when absent.
func (t *Topology) LevelOf(typ api.LevelType) int {
	eq := t.EquivalentType(typ)
	if eq == api.LevelUnknown {
		return -1
	}
	for i, lt := range t.types {
		if lt == eq {
			return i
		}
	}
	return -1
}

// CalculateRatio returns the number of inner units per outer unit,
// where inner is the deeper level index.
func (t *Topology) CalculateRatio(inner, outer int) int {
	r := 1
	for level := inner; level > outer; level-- {
		r *= t.ratio[level]
	}
	return r
}

// compareIDs orders records by physical ids, outermost level first.
// On hybrid parts cores sort by descending efficiency first, so the
// most performant cores come earliest. UnknownID sorts last. OS id
// breaks remaining ties.
func (t *Topology) compareIDs(a, b *HardwareThread) int {
	for level := 0; level < t.depth; level++ {
		if t.hybrid && t.types[level] == api.LevelCore &&
			a.Attrs.Eff >= 0 && b.Attrs.Eff >= 0 {
			if a.Attrs.Eff < b.Attrs.Eff {
				return 1
			}
			if a.Attrs.Eff > b.Attrs.Eff {
				return -1
			}
		}
		ai, bi := a.IDs[level], b.IDs[level]
		if ai == bi {
			continue
		}
		if ai == api.UnknownID {
			return 1
		}
		if bi == api.UnknownID {
			return -1
		}
		if ai < bi {
			return -1
		}
		return 1
	}
	switch {
	case a.OSID < b.OSID:
		return -1
	case a.OSID > b.OSID:
		return 1
	}
	return 0
}

// SortIDs restores canonical record order.
func (t *Topology) SortIDs() {
	sort.Slice(t.records, func(i, j int) bool {
		return t.compareIDs(&t.records[i], &t.records[j]) < 0
	})
}

// SortCompact reorders records for place generation: the innermost
// `compact` levels become most significant, the remaining outer levels
// follow in their usual order. Callers restore with SortIDs.
func (t *Topology) SortCompact(compact int) {
	depth := t.depth
	sort.Slice(t.records, func(x, y int) bool {
		a, b := &t.records[x], &t.records[y]
		i := 0
		for ; i < compact; i++ {
			j := depth - i - 1
			if a.SubIDs[j] != b.SubIDs[j] {
				return a.SubIDs[j] < b.SubIDs[j]
			}
		}
		for ; i < depth; i++ {
			j := i - compact
			if a.SubIDs[j] != b.SubIDs[j] {
				return a.SubIDs[j] < b.SubIDs[j]
			}
		}
		return false
	})
}

// CheckIDs verifies id-tuple uniqueness. Records must be sorted.
func (t *Topology) CheckIDs() bool {
	for i := 1; i < len(t.records); i++ {
		unique := false
		for j := 0; j < t.depth; j++ {
			if t.records[i-1].IDs[j] != t.records[i].IDs[j] {
				unique = true
				break
			}
		}
		if !unique {
			return false
		}
	}
	return true
}

// InsertLayer adds a level with the given per-record ids, positioning
// it by comparing id variation against existing levels. A layer whose
// partition matches an existing one goes strictly above it. Assumes
// perfect nesting.
func (t *Topology) InsertLayer(typ api.LevelType, ids []int) {
	var target int
	prevID := api.UnknownID
	prevNewID := api.UnknownID
	for target = 0; target < t.depth; target++ {
		layersEqual := true
		strictlyAbove := false
		for i := range t.records {
			id := t.records[i].IDs[target]
			newID := ids[i]
			if id != prevID && newID == prevNewID {
				strictlyAbove = true
				layersEqual = false
				break
			} else if id == prevID && newID != prevNewID {
				layersEqual = false
				break
			}
			prevID = id
			prevNewID = newID
		}
		if strictlyAbove || layersEqual {
			break
		}
	}

	t.types = append(t.types, api.LevelUnknown)
	copy(t.types[target+1:], t.types[target:])
	t.types[target] = typ
	for k := range t.records {
		rec := &t.records[k]
		rec.IDs = append(rec.IDs, api.UnknownID)
		copy(rec.IDs[target+1:], rec.IDs[target:])
		rec.IDs[target] = ids[k]
		rec.SubIDs = append(rec.SubIDs, api.UnknownID)
	}
	t.equivalent[typ] = typ
	t.depth++
	t.ratio = append(t.ratio, 0)
	t.count = append(t.count, 0)
}

// InsertProcGroups adds a processor-group layer, one id per record,
// and re-sorts. No-op with a single group. Called by discovery on
// systems with processor groups before Canonicalize.
func (t *Topology) InsertProcGroups(numGroups int, groupOf func(osID int) int) {
	if numGroups <= 1 {
		return
	}
	ids := make([]int, len(t.records))
	for i := range t.records {
		ids[i] = groupOf(t.records[i].OSID)
	}
	t.InsertLayer(api.LevelProcGroup, ids)
	t.SortIDs()
}

// removeRadix1Layers drops layers that partition the machine
// identically to a neighbor, keeping the higher-preference type.
// Socket, core and thread are never collapsed into each other.
func (t *Topology) removeRadix1Layers() {
	isMain := func(typ api.LevelType) bool {
		return typ == api.LevelThread || typ == api.LevelCore || typ == api.LevelSocket
	}
	top1, top2 := 0, 1
	for top1 < t.depth-1 && top2 < t.depth {
		type1 := t.types[top1]
		type2 := t.types[top2]
		if isMain(type1) && isMain(type2) {
			top1 = top2
			top2++
			continue
		}
		radix1 := true
		allSame := true
		id1 := t.records[0].IDs[top1]
		id2 := t.records[0].IDs[top2]
		for i := 1; i < len(t.records); i++ {
			if t.records[i].IDs[top1] == id1 && t.records[i].IDs[top2] != id2 {
				radix1 = false
				break
			}
			if t.records[i].IDs[top2] != id2 {
				allSame = false
			}
			id1 = t.records[i].IDs[top1]
			id2 = t.records[i].IDs[top2]
		}
		if !radix1 {
			top1 = top2
			top2++
			continue
		}
		var removeType, keepType api.LevelType
		var removeLayer, removeLayerIDs int
		if type1.RemovalPreference() > type2.RemovalPreference() {
			removeType, keepType = type2, type1
			removeLayer, removeLayerIDs = top2, top2
		} else {
			removeType, keepType = type1, type2
			removeLayer, removeLayerIDs = top1, top1
		}
		// When the deeper layer's ids carry no information (all the
		// same), keep the first layer's ids whichever type survives.
		if allSame {
			removeLayerIDs = top2
		}
		t.setEquivalentType(removeType, keepType)
		for i := range t.records {
			rec := &t.records[i]
			copy(rec.IDs[removeLayerIDs:], rec.IDs[removeLayerIDs+1:])
			rec.IDs = rec.IDs[:t.depth-1]
			rec.SubIDs = rec.SubIDs[:t.depth-1]
		}
		copy(t.types[removeLayer:], t.types[removeLayer+1:])
		t.types = t.types[:t.depth-1]
		t.depth--
		t.ratio = t.ratio[:t.depth]
		t.count = t.count[:t.depth]
	}
}

// setLastLevelCache resolves the ll_cache alias to the deepest cache
// layer present, falling back to socket then core.
func (t *Topology) setLastLevelCache() {
	switch {
	case t.EquivalentType(api.LevelL3) != api.LevelUnknown:
		t.setEquivalentType(api.LevelLLC, api.LevelL3)
	case t.EquivalentType(api.LevelL2) != api.LevelUnknown:
		t.setEquivalentType(api.LevelLLC, api.LevelL2)
	case t.EquivalentType(api.LevelL1) != api.LevelUnknown:
		t.setEquivalentType(api.LevelLLC, api.LevelL1)
	}
	if t.EquivalentType(api.LevelLLC) == api.LevelUnknown {
		if t.EquivalentType(api.LevelSocket) != api.LevelUnknown {
			t.setEquivalentType(api.LevelLLC, api.LevelSocket)
		} else if t.EquivalentType(api.LevelCore) != api.LevelUnknown {
			t.setEquivalentType(api.LevelLLC, api.LevelCore)
		}
	}
}

// gatherEnumeration computes count and ratio per level plus the
// hybrid core inventory, in a single pass over sorted records.
func (t *Topology) gatherEnumeration() {
	prevID := make([]int, t.depth)
	max := make([]int, t.depth)
	for i := 0; i < t.depth; i++ {
		prevID[i] = api.UnknownID
		max[i] = 0
		t.count[i] = 0
		t.ratio[i] = 0
	}
	t.numCoreEffs = 0
	t.coreTypes = t.coreTypes[:0]
	coreLevel := t.LevelOf(api.LevelCore)
	for i := range t.records {
		rec := &t.records[i]
		for layer := 0; layer < t.depth; layer++ {
			if rec.IDs[layer] == prevID[layer] {
				continue
			}
			for l := layer; l < t.depth; l++ {
				if rec.IDs[l] != api.UnknownID {
					t.count[l]++
				}
			}
			if rec.IDs[layer] != api.UnknownID {
				max[layer]++
			}
			for l := layer + 1; l < t.depth; l++ {
				if max[l] > t.ratio[l] {
					t.ratio[l] = max[l]
				}
				max[l] = 1
			}
			if t.hybrid && coreLevel >= 0 && layer <= coreLevel {
				if rec.Attrs.Eff >= t.numCoreEffs {
					// Efficiencies range 0..max, so the class count
					// is max efficiency + 1.
					t.numCoreEffs = rec.Attrs.Eff + 1
				}
				if rec.Attrs.Type != api.CoreTypeUnknown {
					found := false
					for _, ct := range t.coreTypes {
						if ct == rec.Attrs.Type {
							found = true
							break
						}
					}
					if !found && len(t.coreTypes) < maxCoreTypes {
						t.coreTypes = append(t.coreTypes, rec.Attrs.Type)
					}
				}
			}
			break
		}
		for layer := 0; layer < t.depth; layer++ {
			prevID[layer] = rec.IDs[layer]
		}
	}
	for layer := 0; layer < t.depth; layer++ {
		if max[layer] > t.ratio[layer] {
			t.ratio[layer] = max[layer]
		}
	}
}

// NCoresWithAttr counts cores matching attr across the whole machine.
func (t *Topology) NCoresWithAttr(attr api.CoreAttrs) int {
	return t.ncoresWithAttr(attr, -1, true)
}

// NCoresWithAttrPer counts the max cores matching attr below one unit
// of aboveLevel.
func (t *Topology) NCoresWithAttrPer(attr api.CoreAttrs, aboveLevel int) int {
	return t.ncoresWithAttr(attr, aboveLevel, false)
}

func (t *Topology) ncoresWithAttr(attr api.CoreAttrs, aboveLevel int, findAll bool) int {
	prevID := make([]int, t.depth)
	for i := range prevID {
		prevID[i] = api.UnknownID
	}
	coreLevel := t.LevelOf(api.LevelCore)
	if findAll {
		aboveLevel = -1
	}
	if aboveLevel >= coreLevel {
		return 0
	}
	current, currentMax := 0, 0
	for i := range t.records {
		rec := &t.records[i]
		if !findAll && rec.IDs[aboveLevel] != prevID[aboveLevel] {
			if current > currentMax {
				currentMax = current
			}
			current = 0
			if rec.Attrs.Contains(attr) {
				current = 1
			}
		} else {
			for level := aboveLevel + 1; level <= coreLevel; level++ {
				if rec.IDs[level] != prevID[level] {
					if rec.Attrs.Contains(attr) {
						current++
					}
					break
				}
			}
		}
		for level := 0; level < t.depth; level++ {
			prevID[level] = rec.IDs[level]
		}
	}
	if current > currentMax {
		currentMax = current
	}
	return currentMax
}

// discoverUniformity: uniform iff the ratio product equals the total
// hardware thread count.
func (t *Topology) discoverUniformity() {
	num := 1
	for level := 0; level < t.depth; level++ {
		num *= t.ratio[level]
	}
	t.uniform = num == t.count[t.depth-1]
}

// setSubIDs assigns dense logical ids per level over sorted records.
func (t *Topology) setSubIDs() {
	prevID := make([]int, t.depth)
	subID := make([]int, t.depth)
	for i := 0; i < t.depth; i++ {
		prevID[i] = -1
		subID[i] = -1
	}
	for i := range t.records {
		rec := &t.records[i]
		for j := 0; j < t.depth; j++ {
			if rec.IDs[j] != prevID[j] {
				subID[j]++
				for k := j + 1; k < t.depth; k++ {
					subID[k] = 0
				}
				break
			}
		}
		for j := 0; j < t.depth; j++ {
			prevID[j] = rec.IDs[j]
		}
		copy(rec.SubIDs, subID)
	}
}

// setGlobals publishes package/core/thread totals.
func (t *Topology) setGlobals() {
	pkgLevel := t.LevelOf(api.LevelSocket)
	if pkgLevel == -1 {
		pkgLevel = t.LevelOf(api.LevelProcGroup)
	}
	coreLevel := t.LevelOf(api.LevelCore)
	threadLevel := t.LevelOf(api.LevelThread)

	t.NumThreadsPerCore = t.CalculateRatio(threadLevel, coreLevel)
	if pkgLevel != -1 {
		t.NumCoresPerPkg = t.CalculateRatio(coreLevel, pkgLevel)
		t.NumPackages = t.count[pkgLevel]
	} else {
		// assume one socket
		t.NumCoresPerPkg = t.count[coreLevel]
		t.NumPackages = 1
	}
	t.NumCores = t.count[coreLevel]
}

// Canonicalize normalizes a freshly discovered topology. Records must
// already be sorted (SortIDs). Returns an error when a layer ends up
// with a non-positive count or a dangling equivalence.
func (t *Topology) Canonicalize() error {
	t.removeRadix1Layers()
	t.gatherEnumeration()
	t.discoverUniformity()
	t.setSubIDs()
	t.setGlobals()
	t.setLastLevelCache()

	if t.depth <= 0 {
		return api.NewError(api.ErrCodeTopologyInvalid, "topology has no levels")
	}
	for level := 0; level < t.depth; level++ {
		if t.count[level] <= 0 || t.ratio[level] <= 0 {
			return api.NewError(api.ErrCodeTopologyInvalid, "non-positive level statistics").
				WithContext("level", t.types[level].String()).
				WithContext("count", t.count[level]).
				WithContext("ratio", t.ratio[level])
		}
		if t.equivalent[t.types[level]] != t.types[level] {
			return api.NewError(api.ErrCodeTopologyInvalid, "level type not self-equivalent").
				WithContext("level", t.types[level].String())
		}
	}
	return nil
}

// CanonicalizeFlat overwrites the statistics with an explicit
// packages x cores/pkg x threads/core shape. Used when discovery
// yielded only machine-wide counts and no per-thread ids.
func (t *Topology) CanonicalizeFlat(npackages, ncoresPerPkg, nthreadsPerCore, ncores, nproc int) {
	t.depth = 3
	t.types = []api.LevelType{api.LevelSocket, api.LevelCore, api.LevelThread}
	t.equivalent = map[api.LevelType]api.LevelType{
		api.LevelSocket: api.LevelSocket,
		api.LevelCore:   api.LevelCore,
		api.LevelThread: api.LevelThread,
	}
	t.count = []int{npackages, ncores, nproc}
	t.ratio = []int{npackages, ncoresPerPkg, nthreadsPerCore}
	t.NumPackages = npackages
	t.NumCoresPerPkg = ncoresPerPkg
	t.NumThreadsPerCore = nthreadsPerCore
	t.NumCores = ncores
	t.discoverUniformity()
}

// IsClose reports whether two records (by index) fall within the same
// granularity unit. granLevels counts levels up from the deepest one;
// coreTypesGran/coreEffsGran compare hybrid attributes instead.
func (t *Topology) IsClose(i, j, granLevels int, coreTypesGran, coreEffsGran bool) bool {
	if granLevels >= t.depth {
		return true
	}
	a, b := &t.records[i], &t.records[j]
	if coreTypesGran {
		return a.Attrs.Type == b.Attrs.Type
	}
	if coreEffsGran {
		return a.Attrs.Eff == b.Attrs.Eff
	}
	for level := 0; level < t.depth-granLevels; level++ {
		if a.IDs[level] != b.IDs[level] {
			return false
		}
	}
	return true
}
