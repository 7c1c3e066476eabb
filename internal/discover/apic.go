// File: internal/discover/apic.go
//
// Legacy APIC id decoding, pre leaf-11 processors.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package discover

import (
	"sort"

	"github.com/momentics/hioload-affinity/api"
	"github.com/momentics/hioload-affinity/internal/platform"
	"github.com/momentics/hioload-affinity/topology"
)

// apicRecord is the per-processor probe of the legacy scheme. The
// 8-bit APIC id packs pkg:core:thread; the field widths are inferred
// from the per-package maxima reported by leaves 1 and 4.
type apicRecord struct {
	osID             int
	apicID           uint32
	maxCoresPerPkg   uint32
	maxThreadsPerPkg uint32
	pkgID            uint32
	coreID           uint32
	threadID         uint32
}

type apicBackend struct{}

func (apicBackend) Name() string   { return "apicid" }
func (apicBackend) Method() Method { return MethodApic }

func (apicBackend) Discover(ctx *Context) (*Result, error) {
	q := ctx.Querier
	if q == nil || q.MaxLeaf() < 4 {
		return nil, api.NewError(api.ErrCodeNoLeaf4Support,
			"cpuid leaf 4 not supported")
	}
	ctx.diag().Infof("decoding legacy APIC ids")

	if !ctx.Capable {
		// Without per-processor binding the best we can do is scale
		// the local leaf data by the OS processor count. Assume SMT
		// off: misreporting an SMT machine as one thread per core is
		// the cheaper mistake.
		maxThreadsPerPkg := int(extractBits(q.Query(1, 0).EBX, 16, 23))
		if maxThreadsPerPkg == 0 {
			maxThreadsPerPkg = 1
		}
		nCoresPerPkg := 1
		if q.MaxLeaf() >= 4 {
			nCoresPerPkg = int(extractBits(q.Query(4, 0).EAX, 26, 31)) + 1
		}
		return &Result{
			Globals: Globals{
				NPackages:       (ctx.XProc + nCoresPerPkg - 1) / nCoresPerPkg,
				NCoresPerPkg:    nCoresPerPkg,
				NThreadsPerCore: 1,
				NCores:          ctx.XProc,
			},
			Method: MethodApic,
		}, nil
	}

	guard, err := platform.NewPinGuard(ctx.Affinity)
	if err != nil {
		return nil, api.NewError(api.ErrCodeAffinitySyscall,
			"cannot snapshot thread affinity").WithContext("cause", err.Error())
	}
	defer guard.Release()

	recs := make([]apicRecord, 0, ctx.AvailProc())
	for os := ctx.FullMask.NextAfter(-1); os >= 0; os = ctx.FullMask.NextAfter(os) {
		if err := guard.BindTo(os); err != nil {
			return nil, api.NewError(api.ErrCodeAffinitySyscall,
				"cannot bind to processor").WithContext("os_id", os)
		}
		var r apicRecord
		r.osID = os

		leaf1 := q.Query(1, 0)
		if extractBits(leaf1.EDX, 9, 9) == 0 {
			return nil, api.NewError(api.ErrCodeApicNotPresent,
				"local APIC not present")
		}
		r.apicID = extractBits(leaf1.EBX, 24, 31)
		r.maxThreadsPerPkg = extractBits(leaf1.EBX, 16, 23)
		if r.maxThreadsPerPkg == 0 {
			r.maxThreadsPerPkg = 1
		}
		if q.Query(0, 0).EAX >= 4 {
			r.maxCoresPerPkg = extractBits(q.Query(4, 0).EAX, 26, 31) + 1
		} else {
			r.maxCoresPerPkg = 1
		}

		widthCT := maskWidth(int(r.maxThreadsPerPkg))
		r.pkgID = r.apicID >> widthCT
		widthC := maskWidth(int(r.maxCoresPerPkg))
		widthT := widthCT - widthC
		if widthT < 0 {
			return nil, api.NewError(api.ErrCodeInvalidCpuidInfo,
				"thread field width is negative").WithContext("os_id", os)
		}
		r.coreID = (r.apicID >> widthT) & ((1 << widthC) - 1)
		r.threadID = r.apicID & ((1 << widthT) - 1)
		recs = append(recs, r)
	}
	guard.Release()

	sort.Slice(recs, func(i, j int) bool {
		a, b := &recs[i], &recs[j]
		if a.pkgID != b.pkgID {
			return a.pkgID < b.pkgID
		}
		if a.coreID != b.coreID {
			return a.coreID < b.coreID
		}
		return a.threadID < b.threadID
	})

	// Walk the sorted table to find the radix of each field, checking
	// that every thread in a package reports the same leaf maxima.
	g := Globals{NPackages: 1, NCoresPerPkg: 1, NThreadsPerCore: 1, NCores: 1}
	coreCt, threadCt := 1, 1
	last := recs[0]
	for i := 1; i < len(recs); i++ {
		r := &recs[i]
		if r.pkgID != last.pkgID {
			g.NCores++
			g.NPackages++
			if coreCt > g.NCoresPerPkg {
				g.NCoresPerPkg = coreCt
			}
			coreCt = 1
			if threadCt > g.NThreadsPerCore {
				g.NThreadsPerCore = threadCt
			}
			threadCt = 1
			last = *r
			continue
		}
		if r.coreID != last.coreID {
			g.NCores++
			coreCt++
			if threadCt > g.NThreadsPerCore {
				g.NThreadsPerCore = threadCt
			}
			threadCt = 1
		} else if r.threadID != last.threadID {
			threadCt++
		} else {
			return nil, api.NewError(api.ErrCodeApicIDsNotUnique,
				"duplicate legacy APIC id").WithContext("os_id", r.osID)
		}
		if r.maxCoresPerPkg != last.maxCoresPerPkg ||
			r.maxThreadsPerPkg != last.maxThreadsPerPkg {
			return nil, api.NewError(api.ErrCodeInconsistentCpuidInfo,
				"leaf maxima differ within a package").
				WithContext("pkg_id", r.pkgID)
		}
		last.coreID = r.coreID
		last.threadID = r.threadID
	}
	if coreCt > g.NCoresPerPkg {
		g.NCoresPerPkg = coreCt
	}
	if threadCt > g.NThreadsPerCore {
		g.NThreadsPerCore = threadCt
	}

	types := []api.LevelType{api.LevelSocket, api.LevelCore, api.LevelThread}
	topo := topology.New(len(recs), types)
	for i := range recs {
		rec := topo.Record(i)
		rec.OSID = recs[i].osID
		rec.IDs[0] = int(recs[i].pkgID)
		rec.IDs[1] = int(recs[i].coreID)
		rec.IDs[2] = int(recs[i].threadID)
	}
	topo.SortIDs()
	if !topo.CheckIDs() {
		return nil, api.NewError(api.ErrCodeApicIDsNotUnique,
			"legacy APIC ids are not unique")
	}
	return &Result{Topology: topo, Globals: g, Method: MethodApic}, nil
}
