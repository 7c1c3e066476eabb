// Package api
// Author: momentics <momentics@gmail.com>
//
// Topology level identifiers and per-thread hardware attributes.

package api

// LevelType identifies one layer of the hardware topology. Layers in a
// canonical topology are ordered from the widest (socket) at index 0
// down to hardware threads at the deepest index.
type LevelType int

const (
	LevelUnknown LevelType = iota
	LevelSocket
	LevelProcGroup
	LevelNUMA
	LevelDie
	LevelTile
	LevelModule
	LevelCore
	LevelThread
	LevelL1
	LevelL2
	LevelL3
	LevelLLC
)

var levelNames = map[LevelType]string{
	LevelUnknown:   "unknown",
	LevelSocket:    "socket",
	LevelProcGroup: "proc_group",
	LevelNUMA:      "numa_domain",
	LevelDie:       "die",
	LevelTile:      "tile",
	LevelModule:    "module",
	LevelCore:      "core",
	LevelThread:    "thread",
	LevelL1:        "l1_cache",
	LevelL2:        "l2_cache",
	LevelL3:        "l3_cache",
	LevelLLC:       "ll_cache",
}

func (t LevelType) String() string {
	if s, ok := levelNames[t]; ok {
		return s
	}
	return "unknown"
}

// ParseLevelType maps a level name back to its LevelType, accepting a
// few common aliases. Unknown names yield LevelUnknown.
func ParseLevelType(s string) LevelType {
	switch s {
	case "numa", "node":
		return LevelNUMA
	case "llc":
		return LevelLLC
	case "group":
		return LevelProcGroup
	}
	for typ, name := range levelNames {
		if name == s {
			return typ
		}
	}
	return LevelUnknown
}

// RemovalPreference ranks layers for radix-1 collapsing. When two
// adjacent layers describe the same partition of the machine, the layer
// with the lower preference is removed and its identity folded into the
// survivor.
func (t LevelType) RemovalPreference() int {
	switch t {
	case LevelSocket:
		return 110
	case LevelProcGroup:
		return 100
	case LevelCore:
		return 95
	case LevelThread:
		return 90
	case LevelNUMA:
		return 85
	case LevelDie:
		return 80
	case LevelTile:
		return 75
	case LevelModule:
		return 73
	case LevelL3:
		return 70
	case LevelL2:
		return 65
	case LevelL1:
		return 60
	case LevelLLC:
		return 5
	}
	return 0
}

// Sentinel values used in topology id and sub-id slots.
const (
	// UnknownID marks an id the discovery source could not determine.
	UnknownID = -1
	// MultipleID reports that a place mask spans more than one unit
	// of a level, so no single id applies.
	MultipleID = -2
)

// CoreType classifies a physical core on hybrid parts.
type CoreType int

const (
	CoreTypeUnknown CoreType = iota
	CoreTypeAtom             // efficiency cores
	CoreTypeCore             // performance cores
)

func (c CoreType) String() string {
	switch c {
	case CoreTypeAtom:
		return "Intel Atom(R) processor"
	case CoreTypeCore:
		return "Intel(R) Core(TM) processor"
	}
	return "unknown"
}

// CoreAttrs carries the hybrid attributes of one hardware thread.
// Construct with UnknownCoreAttrs: an Eff of 0 is a real efficiency
// class, the unset state is UnknownID.
type CoreAttrs struct {
	Type CoreType
	// Eff is the native efficiency class, or UnknownID when the
	// platform does not report one. Higher means more performant.
	Eff int
}

// UnknownCoreAttrs returns attributes with nothing set.
func UnknownCoreAttrs() CoreAttrs {
	return CoreAttrs{Type: CoreTypeUnknown, Eff: UnknownID}
}

// Valid reports whether any attribute is set.
func (a CoreAttrs) Valid() bool {
	return a.Type != CoreTypeUnknown || a.Eff != UnknownID
}

// Clear resets both attributes to their unknown states.
func (a *CoreAttrs) Clear() {
	a.Type = CoreTypeUnknown
	a.Eff = UnknownID
}

// Contains reports whether a satisfies the constraint b: every
// attribute set in b must match in a.
func (a CoreAttrs) Contains(b CoreAttrs) bool {
	if b.Type != CoreTypeUnknown && a.Type != b.Type {
		return false
	}
	if b.Eff >= 0 && a.Eff != b.Eff {
		return false
	}
	return true
}
