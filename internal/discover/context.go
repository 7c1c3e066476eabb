// File: internal/discover/context.go
//
// Discovery inputs, outputs and the backend contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package discover

import (
	"github.com/momentics/hioload-affinity/api"
	"github.com/momentics/hioload-affinity/mask"
	"github.com/momentics/hioload-affinity/topology"
)

// Method names one discovery strategy. MethodAll lets the coordinator
// pick; any other value forces that single backend.
type Method int

const (
	MethodAll Method = iota
	MethodHwloc
	MethodX2Apic   // CPUID leaf 11 only
	MethodX2Apic1F // CPUID leaf 31 only
	MethodApic     // legacy 8-bit APIC decode
	MethodCpuinfo
	MethodGroup
	MethodFlat
)

var methodNames = map[Method]string{
	MethodAll:      "all",
	MethodHwloc:    "hwloc",
	MethodX2Apic:   "x2apicid",
	MethodX2Apic1F: "x2apicid_1f",
	MethodApic:     "apicid",
	MethodCpuinfo:  "cpuinfo",
	MethodGroup:    "group",
	MethodFlat:     "flat",
}

func (m Method) String() string {
	if s, ok := methodNames[m]; ok {
		return s
	}
	return "all"
}

// ParseMethod maps a method name to its Method, defaulting to MethodAll.
func ParseMethod(s string) Method {
	for m, name := range methodNames {
		if name == s {
			return m
		}
	}
	return MethodAll
}

// Context carries everything a backend may consult. FullMask is the set
// of OS processors the process may use; Capable reports whether the
// platform supports reading and writing thread affinity at all. When
// not capable, backends fall back to machine-wide guesses over XProc.
type Context struct {
	FullMask *mask.Mask
	XProc    int
	Capable  bool

	Affinity api.OSAffinity
	Querier  api.LeafQuerier
	FS       api.ProcFS
	Diag     api.Diagnostics

	// Method restricts x2apic probing to a single leaf when forced.
	Method Method

	// Hybrid gates the leaf 0x1A core type probe; set it when the
	// platform advertises heterogeneous cores.
	Hybrid bool

	// Windows processor group shape; NumProcGroups is 1 elsewhere.
	NumProcGroups int
	GroupOf       func(osID int) int

	// CpuinfoPath overrides /proc/cpuinfo, mainly for fixtures.
	CpuinfoPath string
}

// AvailProc returns the number of usable OS processors.
func (c *Context) AvailProc() int {
	if c.FullMask == nil {
		return 0
	}
	return c.FullMask.Count()
}

func (c *Context) diag() api.Diagnostics {
	if c.Diag == nil {
		return api.NopDiagnostics{}
	}
	return c.Diag
}

// Globals are the machine-wide totals a backend can still compute when
// the platform is not affinity capable and no per-processor probing is
// possible.
type Globals struct {
	NPackages       int
	NCoresPerPkg    int
	NThreadsPerCore int
	NCores          int
}

// Result is what a successful backend returns. Topology is non-nil on
// the affinity capable path and holds raw, sorted, duplicate-checked
// records; it has not been canonicalized yet. On the incapable path
// only Globals carry information.
type Result struct {
	Topology *topology.Topology
	Globals  Globals
	Method   Method
}

// Backend is one discovery strategy.
type Backend interface {
	Name() string
	Method() Method
	// Discover probes the machine. A nil error means the backend fully
	// succeeded; recoverable oddities go to ctx.Diag instead.
	Discover(ctx *Context) (*Result, error)
}

// extractBits returns bits lsb..msb of v, inclusive, shifted down.
func extractBits(v uint32, lsb, msb uint) uint32 {
	left := 31 - msb
	return (v << left) >> (left + lsb)
}

// maskWidth returns the smallest r with 1<<r >= count.
func maskWidth(count int) int {
	r := 0
	for (1 << r) < count {
		r++
	}
	return r
}
