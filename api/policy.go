// Package api
// Author: momentics <momentics@gmail.com>
//
// Placement policy configuration.

package api

// PolicyKind selects how place masks are derived from the topology.
type PolicyKind int

const (
	// PolicyNone publishes the single full mask.
	PolicyNone PolicyKind = iota
	// PolicyExplicit builds places from a user supplied proc or place list.
	PolicyExplicit
	// PolicyLogical packs places in OS numbering order.
	PolicyLogical
	// PolicyPhysical packs places one per physical core first.
	PolicyPhysical
	// PolicyCompact groups places by the innermost levels.
	PolicyCompact
	// PolicyScatter spreads places across the outermost levels.
	PolicyScatter
	// PolicyBalanced spreads threads evenly over cores, keeping
	// consecutive thread ids close.
	PolicyBalanced
	// PolicyDisabled publishes no places at all.
	PolicyDisabled
)

func (k PolicyKind) String() string {
	switch k {
	case PolicyNone:
		return "none"
	case PolicyExplicit:
		return "explicit"
	case PolicyLogical:
		return "logical"
	case PolicyPhysical:
		return "physical"
	case PolicyCompact:
		return "compact"
	case PolicyScatter:
		return "scatter"
	case PolicyBalanced:
		return "balanced"
	case PolicyDisabled:
		return "disabled"
	}
	return "unknown"
}

// ParsePolicyKind maps a policy name back to its PolicyKind, reporting
// whether the name was recognized.
func ParsePolicyKind(s string) (PolicyKind, bool) {
	for _, k := range []PolicyKind{
		PolicyNone, PolicyExplicit, PolicyLogical, PolicyPhysical,
		PolicyCompact, PolicyScatter, PolicyBalanced, PolicyDisabled,
	} {
		if k.String() == s {
			return k, true
		}
	}
	return PolicyNone, false
}

// SubsetUseAll in a SubsetItem count means "every unit".
const SubsetUseAll = int(^uint(0) >> 1)

// SubsetItem is one component of a hardware subset restriction,
// e.g. "2 cores starting at offset 1" or "4 efficiency-0 cores".
// Nums, Offsets and Attrs run in parallel; entry 0 is the plain
// (attribute-free) request and further entries carry per-attribute
// requests on hybrid machines.
type SubsetItem struct {
	// Level names the unit, resolved through topology equivalence.
	Level LevelType
	// Nums holds unit counts, SubsetUseAll meaning all.
	Nums []int
	// Offsets holds units skipped before counting.
	Offsets []int
	// Attrs holds the core attribute per entry; the zero value means
	// no attribute.
	Attrs []CoreAttrs
}

// NewSubsetItem builds a plain single-request item.
func NewSubsetItem(level LevelType, num, offset int) SubsetItem {
	return SubsetItem{
		Level:   level,
		Nums:    []int{num},
		Offsets: []int{offset},
		Attrs:   []CoreAttrs{{Eff: UnknownID}},
	}
}

// PolicySpec is the complete placement request.
type PolicySpec struct {
	Kind PolicyKind
	// Compact and Offset tune the sorting policies. Compact counts
	// topology levels from the outside; Offset rotates the starting
	// place.
	Compact int
	Offset  int
	// Granularity is the smallest topology unit a place may split.
	Granularity LevelType
	// GranularityAttrs requests attribute granularity on hybrid parts.
	GranularityAttrs CoreAttrs
	// ProcList / PlaceList feed PolicyExplicit. ProcList wins when
	// both are set.
	ProcList  string
	PlaceList string
	// Subset restricts the machine before placement.
	Subset []SubsetItem
	// SubsetAbsolute counts subset units across the whole machine
	// instead of per enclosing unit.
	SubsetAbsolute bool
	// MaxPlaces caps the number of published places, 0 meaning no cap.
	MaxPlaces int
	// Dups emits one place per hardware thread even when granularity
	// groups several threads into one mask.
	Dups bool
	// Respect keeps the process affinity mask inherited at startup
	// instead of widening to the whole machine.
	Respect bool
}
