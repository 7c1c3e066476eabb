// File: internal/placement/cores.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package placement

import (
	"github.com/momentics/hioload-affinity/api"
	"github.com/momentics/hioload-affinity/topology"
)

// findCoreLevel locates the deepest level above bottomLevel that still
// distinguishes physical cores on a possibly non-uniform machine.
func findCoreLevel(topo *topology.Topology, bottomLevel int) int {
	coreLevel := 0
	for i := 0; i < topo.NumRecords(); i++ {
		rec := topo.Record(i)
		for j := bottomLevel; j > 0; j-- {
			if rec.IDs[j] > 0 && coreLevel < j-1 {
				coreLevel = j - 1
			}
		}
	}
	return coreLevel
}

// findCore returns the zero-based core index of record proc, counting
// sub-id changes down to coreLevel over the preceding records.
func findCore(topo *topology.Topology, proc, coreLevel int) int {
	core := 0
	for i := 0; i < proc; i++ {
		a, b := topo.Record(i), topo.Record(i+1)
		for j := 0; j <= coreLevel; j++ {
			if a.SubIDs[j] != b.SubIDs[j] {
				core++
				break
			}
		}
	}
	return core
}

// maxProcPerCore returns the widest hardware thread count of any core
// at coreLevel.
func maxProcPerCore(topo *topology.Topology, bottomLevel, coreLevel int) int {
	if coreLevel >= bottomLevel {
		return 1
	}
	threadLevel := topo.LevelOf(api.LevelThread)
	return topo.CalculateRatio(threadLevel, coreLevel)
}
