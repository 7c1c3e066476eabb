// File: fake/machine.go
//
// Simulated CPUID machines.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package fake

import (
	"github.com/momentics/hioload-affinity/api"
	"github.com/momentics/hioload-affinity/mask"
)

// Machine simulates a host: it answers CPUID queries for whichever
// processor the calling thread is currently "bound" to and implements
// the affinity surface the binding goes through. The zero processor is
// bound initially, like a freshly started thread on CPU 0.
type Machine struct {
	NumCPUs int

	// leaf answers one CPUID query on processor cpu.
	leaf func(cpu int, leaf, subleaf uint32) api.LeafRegs
	max  uint32

	current int
	affin   *mask.Mask
}

// Query implements api.LeafQuerier against the bound processor.
func (m *Machine) Query(leaf, subleaf uint32) api.LeafRegs {
	return m.leaf(m.current, leaf, subleaf)
}

// MaxLeaf implements api.LeafQuerier.
func (m *Machine) MaxLeaf() uint32 { return m.max }

// GetThreadAffinity implements api.OSAffinity.
func (m *Machine) GetThreadAffinity() (*mask.Mask, error) {
	return m.affin.Clone(), nil
}

// SetThreadAffinity implements api.OSAffinity. Binding to a single
// processor moves the simulated CPUID responses onto it.
func (m *Machine) SetThreadAffinity(mk *mask.Mask) error {
	if mk.IsEmpty() {
		return api.ErrInvalidArgument
	}
	m.affin = mk.Clone()
	if lo := mk.Lowest(); lo == mk.Highest() {
		m.current = lo
	}
	return nil
}

// MaxCPUIndex implements api.OSAffinity.
func (m *Machine) MaxCPUIndex() int { return m.NumCPUs - 1 }

// FullMask returns the mask of all simulated processors.
func (m *Machine) FullMask() *mask.Mask {
	mk := mask.New()
	for i := 0; i < m.NumCPUs; i++ {
		mk.Set(i)
	}
	return mk
}

func newMachine(ncpus int, max uint32,
	leaf func(cpu int, leaf, subleaf uint32) api.LeafRegs) *Machine {

	m := &Machine{NumCPUs: ncpus, leaf: leaf, max: max}
	m.affin = m.FullMask()
	return m
}

// apicID packs pkg:core:thread with the given field widths.
func apicID(pkg, core, thread, widthC, widthT int) uint32 {
	return uint32(pkg)<<(widthC+widthT) | uint32(core)<<widthT | uint32(thread)
}

func fieldWidth(count int) int {
	r := 0
	for (1 << r) < count {
		r++
	}
	return r
}

// SMPShape describes a uniform pkg/core/thread machine.
type SMPShape struct {
	Packages       int
	CoresPerPkg    int
	ThreadsPerCore int
}

func (s SMPShape) ncpus() int {
	return s.Packages * s.CoresPerPkg * s.ThreadsPerCore
}

// split decomposes a linear cpu index into pkg, core, thread.
func (s SMPShape) split(cpu int) (pkg, core, thread int) {
	thread = cpu % s.ThreadsPerCore
	core = (cpu / s.ThreadsPerCore) % s.CoresPerPkg
	pkg = cpu / (s.ThreadsPerCore * s.CoresPerPkg)
	return
}

// NewX2ApicMachine builds a machine that reports its shape through the
// extended topology leaf 11, data caches through leaf 4 (L1 and L2 per
// core, L3 per package), and a local APIC through leaf 1.
func NewX2ApicMachine(shape SMPShape) *Machine {
	widthT := fieldWidth(shape.ThreadsPerCore)
	widthC := fieldWidth(shape.CoresPerPkg)
	return newMachine(shape.ncpus(), 11,
		func(cpu int, leaf, subleaf uint32) api.LeafRegs {
			pkg, core, thread := shape.split(cpu)
			id := apicID(pkg, core, thread, widthC, widthT)
			switch leaf {
			case 0:
				return api.LeafRegs{EAX: 11}
			case 1:
				return leaf1(id, shape.ThreadsPerCore*shape.CoresPerPkg)
			case 4:
				return leaf4(subleaf, shape.ThreadsPerCore,
					shape.ThreadsPerCore*shape.CoresPerPkg)
			case 11:
				return leaf11(subleaf, id, widthT, widthC,
					shape.ThreadsPerCore,
					shape.ThreadsPerCore*shape.CoresPerPkg)
			}
			return api.LeafRegs{}
		})
}

// HybridShape is one package mixing performance and efficiency cores.
// P-cores come first in cpu numbering and carry SMT; E-cores are
// single threaded.
type HybridShape struct {
	PCores          int
	ThreadsPerPCore int
	ECores          int
}

func (h HybridShape) ncpus() int {
	return h.PCores*h.ThreadsPerPCore + h.ECores
}

// NewHybridMachine builds a single-package hybrid machine reporting
// core types through leaf 0x1A.
func NewHybridMachine(shape HybridShape) *Machine {
	ncores := shape.PCores + shape.ECores
	widthT := fieldWidth(shape.ThreadsPerPCore)
	widthC := fieldWidth(ncores)
	pthreads := shape.PCores * shape.ThreadsPerPCore

	split := func(cpu int) (core, thread int, pcore bool) {
		if cpu < pthreads {
			return cpu / shape.ThreadsPerPCore, cpu % shape.ThreadsPerPCore, true
		}
		return shape.PCores + (cpu - pthreads), 0, false
	}

	return newMachine(shape.ncpus(), 0x1a,
		func(cpu int, leaf, subleaf uint32) api.LeafRegs {
			core, thread, pcore := split(cpu)
			id := apicID(0, core, thread, widthC, widthT)
			switch leaf {
			case 0:
				return api.LeafRegs{EAX: 0x1a}
			case 1:
				return leaf1(id, shape.ncpus())
			case 4:
				return leaf4(subleaf, shape.ThreadsPerPCore, shape.ncpus())
			case 11:
				return leaf11(subleaf, id, widthT, widthC,
					shape.ThreadsPerPCore, shape.ncpus())
			case 0x1a:
				if pcore {
					return api.LeafRegs{EAX: 0x40 << 24}
				}
				return api.LeafRegs{EAX: 0x20 << 24}
			}
			return api.LeafRegs{}
		})
}

// NewLegacyApicMachine builds a machine whose newest topology source is
// the 8-bit APIC id of leaf 1, plus the core count of leaf 4.
func NewLegacyApicMachine(shape SMPShape) *Machine {
	widthT := fieldWidth(shape.ThreadsPerCore)
	widthC := fieldWidth(shape.CoresPerPkg)
	maxThreads := shape.CoresPerPkg * shape.ThreadsPerCore
	return newMachine(shape.ncpus(), 4,
		func(cpu int, leaf, subleaf uint32) api.LeafRegs {
			pkg, core, thread := shape.split(cpu)
			id := apicID(pkg, core, thread, widthC, widthT)
			switch leaf {
			case 0:
				return api.LeafRegs{EAX: 4}
			case 1:
				return leaf1(id, maxThreads)
			case 4:
				return api.LeafRegs{
					EAX: uint32(shape.CoresPerPkg-1) << 26,
				}
			}
			return api.LeafRegs{}
		})
}

// NewBareMachine builds a machine with no usable CPUID leaves at all,
// forcing discovery down to the flat model.
func NewBareMachine(ncpus int) *Machine {
	return newMachine(ncpus, 0,
		func(cpu int, leaf, subleaf uint32) api.LeafRegs {
			return api.LeafRegs{}
		})
}

// NewNoApicMachine builds a machine without a local APIC, so the legacy
// decode must fail.
func NewNoApicMachine(ncpus int) *Machine {
	return newMachine(ncpus, 4,
		func(cpu int, leaf, subleaf uint32) api.LeafRegs {
			switch leaf {
			case 0:
				return api.LeafRegs{EAX: 4}
			case 1:
				return api.LeafRegs{EBX: uint32(cpu) << 24} // EDX bit 9 clear
			}
			return api.LeafRegs{}
		})
}

func leaf1(apicID uint32, maxThreadsPerPkg int) api.LeafRegs {
	return api.LeafRegs{
		EBX: apicID<<24 | uint32(maxThreadsPerPkg)<<16,
		EDX: 1 << 9,
	}
}

// leaf11 answers extended topology subleaves: SMT, core, then the
// socket sentinel.
func leaf11(subleaf, apicID uint32, widthT, widthC, nthreads, nthreadsPerPkg int) api.LeafRegs {
	switch subleaf {
	case 0:
		return api.LeafRegs{
			EAX: uint32(widthT),
			EBX: uint32(nthreads),
			ECX: 1<<8 | subleaf,
			EDX: apicID,
		}
	case 1:
		return api.LeafRegs{
			EAX: uint32(widthT + widthC),
			EBX: uint32(nthreadsPerPkg),
			ECX: 2<<8 | subleaf,
			EDX: apicID,
		}
	}
	return api.LeafRegs{ECX: subleaf, EDX: apicID}
}

// leaf4 reports an L1 data and L2 unified cache per core and an L3
// unified cache per package.
func leaf4(subleaf uint32, threadsPerCore, threadsPerPkg int) api.LeafRegs {
	entry := func(cacheType, level, sharing uint32) api.LeafRegs {
		return api.LeafRegs{EAX: cacheType | level<<5 | (sharing-1)<<14}
	}
	switch subleaf {
	case 0:
		return entry(1, 1, uint32(threadsPerCore))
	case 1:
		return entry(2, 1, uint32(threadsPerCore)) // L1i, skipped by readers
	case 2:
		return entry(3, 2, uint32(threadsPerCore))
	case 3:
		return entry(3, 3, uint32(threadsPerPkg))
	}
	return api.LeafRegs{}
}
