// Package topology
// Author: momentics <momentics@gmail.com>
//
// Human readable topology reports.

package topology

import (
	"fmt"
	"strings"

	"github.com/momentics/hioload-affinity/api"
)

func plural(typ api.LevelType, c int) string {
	s := typ.String()
	if c > 1 {
		return s + "s"
	}
	return s
}

// Summary renders the condensed topology report: availability,
// uniformity, equivalences, the quick shape line (always including
// core and thread levels), hybrid core inventory, and the OS proc map.
func (t *Topology) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "available OS procs: %d\n", len(t.records))
	if t.uniform {
		sb.WriteString("topology: uniform\n")
	} else {
		sb.WriteString("topology: non-uniform\n")
	}
	for _, typ := range []api.LevelType{
		api.LevelSocket, api.LevelProcGroup, api.LevelNUMA, api.LevelDie,
		api.LevelTile, api.LevelModule, api.LevelCore, api.LevelThread,
		api.LevelL1, api.LevelL2, api.LevelL3, api.LevelLLC,
	} {
		if eq, ok := t.equivalent[typ]; ok && eq != api.LevelUnknown && eq != typ {
			fmt.Fprintf(&sb, "%s is equivalent to %s\n", typ, eq)
		}
	}

	// Quick shape, forcing core and thread levels in.
	printTypes := append([]api.LevelType(nil), t.types...)
	if t.EquivalentType(api.LevelCore) != api.LevelCore {
		if printTypes[len(printTypes)-1] == api.LevelThread {
			printTypes[len(printTypes)-1] = api.LevelCore
			printTypes = append(printTypes, api.LevelThread)
		} else {
			printTypes = append(printTypes, api.LevelCore)
		}
	}
	if t.EquivalentType(api.LevelThread) != api.LevelThread {
		printTypes = append(printTypes, api.LevelThread)
	}
	var shape strings.Builder
	var denominator api.LevelType
	level := 0
	for i, typ := range printTypes {
		c := 1
		if t.equivalent[typ] == typ {
			c = t.ratio[level]
			level++
		}
		if i == 0 {
			fmt.Fprintf(&shape, "%d %s", c, plural(typ, c))
		} else {
			fmt.Fprintf(&shape, " x %d %s/%s", c, plural(typ, c), denominator)
		}
		denominator = typ
	}
	coreLevel := t.LevelOf(api.LevelCore)
	fmt.Fprintf(&sb, "%s (%d total cores)\n", shape.String(), t.count[coreLevel])

	if t.hybrid {
		for _, ct := range t.coreTypes {
			attr := api.UnknownCoreAttrs()
			attr.Type = ct
			if n := t.NCoresWithAttr(attr); n > 0 {
				fmt.Fprintf(&sb, "%d %s cores\n", n, ct)
				for eff := 0; eff < t.numCoreEffs; eff++ {
					attr.Eff = eff
					if ne := t.NCoresWithAttr(attr); ne > 0 {
						fmt.Fprintf(&sb, "  %d cores with efficiency %d\n", ne, eff)
					}
				}
			}
		}
	}

	if len(t.records) == 0 {
		return sb.String()
	}
	sb.WriteString("OS proc to physical thread map:\n")
	for i := range t.records {
		rec := &t.records[i]
		var line strings.Builder
		for level := 0; level < t.depth; level++ {
			if rec.IDs[level] == api.UnknownID {
				continue
			}
			fmt.Fprintf(&line, "%s %d ", t.types[level], rec.IDs[level])
		}
		if t.hybrid {
			fmt.Fprintf(&line, "(%s)", rec.Attrs.Type)
		}
		fmt.Fprintf(&sb, "OS proc %d maps to %s\n", rec.OSID, strings.TrimSpace(line.String()))
	}
	return sb.String()
}

// Dump renders the full internal state for debugging.
func (t *Topology) Dump() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "depth: %d\n", t.depth)
	sb.WriteString("types:")
	for _, typ := range t.types {
		fmt.Fprintf(&sb, " %s", typ)
	}
	sb.WriteString("\nratio:")
	for _, r := range t.ratio {
		fmt.Fprintf(&sb, " %d", r)
	}
	sb.WriteString("\ncount:")
	for _, c := range t.count {
		fmt.Fprintf(&sb, " %d", c)
	}
	fmt.Fprintf(&sb, "\nnum_core_effs: %d\nnum_core_types: %d\n",
		t.numCoreEffs, len(t.coreTypes))
	sb.WriteString("equivalent map:\n")
	for typ, eq := range t.equivalent {
		fmt.Fprintf(&sb, "  %-12s -> %s\n", typ, eq)
	}
	fmt.Fprintf(&sb, "uniform: %v\n", t.uniform)
	fmt.Fprintf(&sb, "num_hw_threads: %d\n", len(t.records))
	for i := range t.records {
		sb.WriteString(t.records[i].String())
		sb.WriteByte('\n')
	}
	return sb.String()
}
