// File: internal/discover/x2apic.go
//
// Extended topology enumeration via CPUID leaves 31 and 11, with cache
// placement from leaf 4 and hybrid classes from leaf 0x1A.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package discover

import (
	"github.com/momentics/hioload-affinity/api"
	"github.com/momentics/hioload-affinity/internal/platform"
	"github.com/momentics/hioload-affinity/topology"
)

// Intel level type encodings from the extended topology leaves.
const (
	intelTypeInvalid = 0
	intelTypeSMT     = 1
	intelTypeCore    = 2
	intelTypeModule  = 3
	intelTypeTile    = 4
	intelTypeDie     = 5
	intelTypeLast    = 6
)

const knownIntelLevels = (1 << intelTypeLast) - 1

func intelToLevelType(intelType uint32) api.LevelType {
	switch intelType {
	case intelTypeInvalid:
		return api.LevelSocket
	case intelTypeSMT:
		return api.LevelThread
	case intelTypeCore:
		return api.LevelCore
	case intelTypeModule:
		return api.LevelModule
	case intelTypeTile:
		return api.LevelTile
	case intelTypeDie:
		return api.LevelDie
	}
	return api.LevelUnknown
}

func levelTypeToIntel(typ api.LevelType) uint32 {
	switch typ {
	case api.LevelThread:
		return intelTypeSMT
	case api.LevelCore:
		return intelTypeCore
	case api.LevelModule:
		return intelTypeModule
	case api.LevelTile:
		return intelTypeTile
	case api.LevelDie:
		return intelTypeDie
	}
	return intelTypeInvalid
}

// topoDesc is a bitset of the intel level types one processor reported.
type topoDesc uint32

func (d *topoDesc) clear()                     { *d = 0 }
func (d topoDesc) contains(t uint32) bool      { return d&(1<<t) != 0 }
func (d topoDesc) containsAll(r topoDesc) bool { return d|r == d }
func (d *topoDesc) add(t uint32)               { *d |= 1 << t }
func (d *topoDesc) merge(r topoDesc)           { *d |= r }

func (d topoDesc) containsLevelType(typ api.LevelType) bool {
	return d.contains(levelTypeToIntel(typ))
}

// x2Level is one enumerated topology level of one processor.
type x2Level struct {
	levelType uint32
	mask      uint32
	maskWidth uint32
	nitems    uint32
	cacheMask uint32
}

// x2Proc is everything probed on one processor.
type x2Proc struct {
	osID   int
	apicID uint32
	depth  int
	eff    int
	typ    api.CoreType
	desc   topoDesc
	levels [intelTypeLast]x2Level
}

// maxCacheLevel bounds leaf 4 enumeration to L1..L3.
const maxCacheLevel = 3

// cacheEntry is one data or unified cache reported by leaf 4.
type cacheEntry struct {
	level uint32
	mask  uint32
}

type cacheInfo struct {
	depth   int
	entries [maxCacheLevel]cacheEntry
}

func (c *cacheInfo) equal(o *cacheInfo) bool {
	if c.depth != o.depth {
		return false
	}
	for i := 0; i < c.depth; i++ {
		if c.entries[i] != o.entries[i] {
			return false
		}
	}
	return true
}

// levelAt returns the entry for cache level l, or a zero entry when the
// processor did not report that level.
func (c *cacheInfo) levelAt(l uint32) cacheEntry {
	for i := 0; i < c.depth; i++ {
		if c.entries[i].level == l {
			return c.entries[i]
		}
	}
	return cacheEntry{}
}

func cacheLevelType(level uint32) api.LevelType {
	switch level {
	case 1:
		return api.LevelL1
	case 2:
		return api.LevelL2
	case 3:
		return api.LevelL3
	}
	return api.LevelUnknown
}

// readLeaf4Caches enumerates data and unified caches on the processor
// the calling thread is bound to.
func readLeaf4Caches(q api.LeafQuerier, c *cacheInfo) {
	sub := uint32(0)
	for c.depth < maxCacheLevel {
		regs := q.Query(4, sub)
		cacheType := extractBits(regs.EAX, 0, 4)
		if cacheType == 0 {
			break
		}
		// Skip instruction caches.
		if cacheType == 2 {
			sub++
			continue
		}
		maxSharing := int(extractBits(regs.EAX, 14, 25)) + 1
		width := maskWidth(maxSharing)
		c.entries[c.depth] = cacheEntry{
			level: extractBits(regs.EAX, 5, 7),
			mask:  0xffffffff << width,
		}
		c.depth++
		sub++
	}
}

// readHybridInfo classifies the bound processor via leaf 0x1A.
func readHybridInfo(q api.LeafQuerier) (api.CoreType, int) {
	regs := q.Query(0x1a, 0)
	switch extractBits(regs.EAX, 24, 31) {
	case 0x20:
		return api.CoreTypeAtom, 0
	case 0x40:
		return api.CoreTypeCore, 1
	}
	return api.CoreTypeUnknown, api.UnknownID
}

// getX2Levels walks one extended topology leaf on the bound processor,
// filling info and growing the machine-wide types/desc when this
// processor reports a level no earlier processor had. Unknown level
// types fold their width into the previous known level, keeping the
// structure intact without inventing layers.
func getX2Levels(q api.LeafQuerier, leaf uint32, info *x2Proc,
	totalTypes *[]api.LevelType, totalDesc *topoDesc) {

	idx := 0
	for sub := uint32(0); ; sub++ {
		regs := q.Query(leaf, sub)
		levelType := extractBits(regs.ECX, 8, 15)
		width := extractBits(regs.EAX, 0, 4)
		nitems := extractBits(regs.EBX, 0, 15)
		if levelType != intelTypeInvalid && nitems == 0 {
			info.depth = 0
			return
		}
		if knownIntelLevels&(1<<levelType) != 0 {
			info.levels[idx] = x2Level{levelType: levelType,
				maskWidth: width, nitems: nitems}
			idx++
		} else if idx > 0 {
			info.levels[idx-1].maskWidth = width
			info.levels[idx-1].nitems = nitems
		}
		if levelType == intelTypeInvalid {
			break
		}
	}
	info.desc.clear()
	info.depth = idx

	if len(*totalTypes) == 0 {
		totalDesc.clear()
		for i := info.depth - 1; i >= 0; i-- {
			*totalTypes = append(*totalTypes,
				intelToLevelType(info.levels[i].levelType))
			totalDesc.add(info.levels[i].levelType)
		}
	}

	// The socket sentinel must terminate, not open, the enumeration.
	if idx == 0 || info.levels[0].levelType == intelTypeInvalid {
		info.depth = 0
		return
	}

	for i := 0; i < idx; i++ {
		if info.levels[i].levelType != intelTypeInvalid {
			info.levels[i].mask = ^(uint32(0xffffffff) << info.levels[i].maskWidth)
			info.levels[i].cacheMask = 0xffffffff << info.levels[i].maskWidth
			for j := 0; j < i; j++ {
				info.levels[i].mask ^= info.levels[j].mask
			}
		} else {
			info.levels[i].mask = 0xffffffff << info.levels[i-1].maskWidth
			info.levels[i].cacheMask = 0
		}
		info.desc.add(info.levels[i].levelType)
	}

	// A level seen here for the first time is inserted into the total
	// types just above the deepest already-known layer.
	if !totalDesc.containsAll(info.desc) {
		for i, j := info.depth-1, 0; i >= 0; i, j = i-1, j+1 {
			if totalDesc.contains(info.levels[i].levelType) {
				continue
			}
			curr := intelToLevelType(info.levels[i].levelType)
			*totalTypes = append(*totalTypes, api.LevelUnknown)
			copy((*totalTypes)[j+1:], (*totalTypes)[j:])
			(*totalTypes)[j] = curr
		}
		totalDesc.merge(info.desc)
	}
}

type x2apicBackend struct{}

func (x2apicBackend) Name() string   { return "x2apicid" }
func (x2apicBackend) Method() Method { return MethodX2Apic }

func (x2apicBackend) Discover(ctx *Context) (*Result, error) {
	q := ctx.Querier
	if q == nil {
		return nil, api.NewError(api.ErrCodeNoLeaf11Support, "cpuid unavailable")
	}
	ctx.diag().Infof("decoding x2APIC ids")
	highest := q.MaxLeaf()

	var leaves []uint32
	var failCode api.ErrorCode
	switch ctx.Method {
	case MethodX2Apic:
		leaves = []uint32{11}
		failCode = api.ErrCodeNoLeaf11Support
	case MethodX2Apic1F:
		leaves = []uint32{31}
		failCode = api.ErrCodeNoLeaf31Support
	default:
		leaves = []uint32{31, 11}
		failCode = api.ErrCodeNoLeaf11Support
	}

	ninfos := ctx.AvailProc()
	if ninfos < 1 {
		ninfos = 1
	}
	procs := make([]x2Proc, ninfos)
	caches := make([]cacheInfo, ninfos)

	var totalTypes []api.LevelType
	var totalDesc topoDesc
	topoLeaf := uint32(0)
	found := false
	for _, leaf := range leaves {
		if highest < leaf {
			continue
		}
		if q.Query(leaf, 0).EBX == 0 {
			continue
		}
		topoLeaf = leaf
		getX2Levels(q, leaf, &procs[0], &totalTypes, &totalDesc)
		if procs[0].depth == 0 {
			continue
		}
		found = true
		break
	}
	if !found {
		return nil, api.NewError(failCode, "no usable extended topology leaf")
	}
	depth := len(totalTypes)

	if !ctx.Capable {
		// Scale the shape of the one probed processor over XProc.
		g := Globals{NPackages: 1, NCoresPerPkg: 1, NThreadsPerCore: 1}
		for i := 0; i < procs[0].depth; i++ {
			switch procs[0].levels[i].levelType {
			case intelTypeSMT:
				g.NThreadsPerCore = int(procs[0].levels[i].nitems)
			case intelTypeCore:
				g.NCoresPerPkg = int(procs[0].levels[i].nitems)
			}
		}
		g.NCores = ctx.XProc / g.NThreadsPerCore
		g.NPackages = (ctx.XProc + g.NCoresPerPkg - 1) / g.NCoresPerPkg
		return &Result{Globals: g, Method: MethodX2Apic}, nil
	}

	guard, err := platform.NewPinGuard(ctx.Affinity)
	if err != nil {
		return nil, api.NewError(api.ErrCodeAffinitySyscall,
			"cannot snapshot thread affinity").WithContext("cause", err.Error())
	}
	defer guard.Release()

	uniformCaches := true
	n := 0
	for os := ctx.FullMask.NextAfter(-1); os >= 0; os = ctx.FullMask.NextAfter(os) {
		if err := guard.BindTo(os); err != nil {
			return nil, api.NewError(api.ErrCodeAffinitySyscall,
				"cannot bind to processor").WithContext("os_id", os)
		}
		procs[n].osID = os
		procs[n].apicID = q.Query(topoLeaf, 0).EDX
		procs[n].eff = api.UnknownID
		getX2Levels(q, topoLeaf, &procs[n], &totalTypes, &totalDesc)
		if procs[n].depth == 0 {
			return nil, api.NewError(api.ErrCodeInvalidCpuidInfo,
				"empty topology enumeration").WithContext("os_id", os)
		}
		readLeaf4Caches(q, &caches[n])
		if uniformCaches && n > 0 && !caches[0].equal(&caches[n]) {
			uniformCaches = false
		}
		if ctx.Hybrid && highest >= 0x1a {
			procs[n].typ, procs[n].eff = readHybridInfo(q)
		}
		n++
	}
	guard.Release()
	depth = len(totalTypes)

	topo := topology.New(n, totalTypes)
	hybridSeen := false
	for i := 0; i < n; i++ {
		rec := topo.Record(i)
		rec.OSID = procs[i].osID
		for j, idx := 0, depth-1; j < depth; j, idx = j+1, idx-1 {
			if !procs[i].desc.containsLevelType(topo.TypeAt(j)) {
				rec.IDs[idx] = api.UnknownID
				continue
			}
			rec.IDs[idx] = int(procs[i].apicID & procs[i].levels[j].mask)
			if j > 0 {
				rec.IDs[idx] >>= procs[i].levels[j-1].maskWidth
			}
		}
		rec.Attrs.Type = procs[i].typ
		rec.Attrs.Eff = procs[i].eff
		if rec.Attrs.Valid() {
			hybridSeen = true
		}
	}
	topo.SetHybrid(hybridSeen)
	topo.SortIDs()

	// Physical ids below the socket can repeat across parents; renumber
	// them into dense logical ids over the sorted records.
	for j := 0; j < depth-1; j++ {
		newID := 0
		prevID := topo.Record(0).IDs[j]
		currID := topo.Record(0).IDs[j+1]
		topo.Record(0).IDs[j+1] = newID
		for i := 1; i < n; i++ {
			rec := topo.Record(i)
			if rec.IDs[j] == prevID && rec.IDs[j+1] == currID {
				rec.IDs[j+1] = newID
			} else if rec.IDs[j] == prevID && rec.IDs[j+1] != currID {
				currID = rec.IDs[j+1]
				newID++
				rec.IDs[j+1] = newID
			} else {
				prevID = rec.IDs[j]
				currID = rec.IDs[j+1]
				newID++
				rec.IDs[j+1] = newID
			}
		}
	}

	attachCaches(topo, procs, caches, uniformCaches, depth)

	if !topo.CheckIDs() {
		return nil, api.NewError(api.ErrCodeApicIDsNotUnique,
			"x2APIC ids are not unique")
	}
	return &Result{Topology: topo, Method: MethodX2Apic}, nil
}

// attachCaches folds leaf 4 cache data into the topology. Uniform
// caches that share a mask with an enumerated layer become equivalent
// to that layer; the rest are inserted as layers of their own keyed by
// cache-masked APIC ids.
func attachCaches(topo *topology.Topology, procs []x2Proc,
	caches []cacheInfo, uniform bool, depth int) {

	if uniform {
		for i := 0; i < caches[0].depth; i++ {
			cacheType := cacheLevelType(caches[0].entries[i].level)
			if cacheType == api.LevelUnknown {
				continue
			}
			topo.SetEquivalentType(cacheType, cacheType)
			for j := 0; j < depth; j++ {
				if procs[0].levels[j].cacheMask == caches[0].entries[i].mask &&
					j < depth-1 {
					equiv := intelToLevelType(procs[0].levels[j+1].levelType)
					topo.SetEquivalentType(cacheType, equiv)
				}
			}
		}
	} else {
		for i := range caches {
			for j := 0; j < caches[i].depth; j++ {
				cacheType := cacheLevelType(caches[i].entries[j].level)
				if cacheType == api.LevelUnknown {
					continue
				}
				if topo.EquivalentType(cacheType) == api.LevelUnknown {
					topo.SetEquivalentType(cacheType, cacheType)
				}
			}
		}
	}

	// Any cache still equivalent only to itself needs a real layer.
	n := topo.NumRecords()
	for l := uint32(1); l <= maxCacheLevel; l++ {
		cacheType := cacheLevelType(l)
		if topo.EquivalentType(cacheType) != cacheType {
			continue
		}
		ids := make([]int, n)
		for i := 0; i < n; i++ {
			orig := topo.Record(i).OriginalIdx
			ids[i] = api.UnknownID
			entry := caches[orig].levelAt(l)
			if entry.level == 0 {
				continue
			}
			ids[i] = int(entry.mask & procs[orig].apicID)
		}
		topo.InsertLayer(cacheType, ids)
	}
}
