// File: internal/placement/granularity.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package placement

import (
	"github.com/momentics/hioload-affinity/api"
	"github.com/momentics/hioload-affinity/topology"
)

// ResolveGranularity maps the requested granularity onto a level the
// machine actually has. It returns the effective level type and the
// number of levels, counted up from the deepest, that a place mask may
// not split. The policy spec argument is adjusted in place when a fallback applies.
func ResolveGranularity(topo *topology.Topology, spec *api.PolicySpec,
	numProcGroups int, diag api.Diagnostics) (api.LevelType, int) {

	gran := spec.Granularity
	if gran == api.LevelUnknown {
		gran = api.LevelThread
	}

	// Attribute granularity only means something on hybrid parts.
	if spec.GranularityAttrs.Valid() && !topo.Hybrid() {
		diag.Warnf("core attribute granularity requested on a non-hybrid machine, using core granularity")
		gran = api.LevelCore
		spec.GranularityAttrs.Clear()
	}

	granType := topo.EquivalentType(gran)
	if granType == api.LevelUnknown {
		for _, fb := range []api.LevelType{api.LevelCore, api.LevelThread, api.LevelSocket} {
			if eq := topo.EquivalentType(fb); eq != api.LevelUnknown {
				diag.Warnf("granularity %s not present on this machine, using %s",
					gran, fb)
				granType = eq
				break
			}
		}
	}

	// A thread lives inside one processor group, so granularity wider
	// than a group cannot be honored.
	if numProcGroups > 1 {
		granDepth := topo.LevelOf(granType)
		groupDepth := topo.LevelOf(api.LevelProcGroup)
		if granDepth >= 0 && groupDepth >= 0 && granDepth < groupDepth {
			diag.Warnf("granularity %s spans processor groups, using %s",
				granType, api.LevelProcGroup)
			granType = api.LevelProcGroup
		}
	}
	spec.Granularity = granType

	granLevels := 0
	for level := topo.Depth() - 1; level >= 0 && topo.TypeAt(level) != granType; level-- {
		granLevels++
	}
	return granType, granLevels
}
