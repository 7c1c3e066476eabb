// File: internal/platform/cpuid_amd64.go
//go:build amd64
// +build amd64

//
// Raw CPUID access for x86-64.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package platform

import "github.com/momentics/hioload-affinity/api"

// rawCPUID executes CPUID with the given leaf and subleaf on the
// processor the calling thread runs on. Implemented in assembly.
func rawCPUID(leaf, subleaf uint32) (eax, ebx, ecx, edx uint32)

// CPUIDQuerier implements api.LeafQuerier over the CPUID instruction.
type CPUIDQuerier struct {
	maxLeaf uint32
}

// NewCPUIDQuerier probes the maximum supported standard leaf.
func NewCPUIDQuerier() *CPUIDQuerier {
	eax, _, _, _ := rawCPUID(0, 0)
	return &CPUIDQuerier{maxLeaf: eax}
}

func (q *CPUIDQuerier) Query(leaf, subleaf uint32) api.LeafRegs {
	eax, ebx, ecx, edx := rawCPUID(leaf, subleaf)
	return api.LeafRegs{EAX: eax, EBX: ebx, ECX: ecx, EDX: edx}
}

func (q *CPUIDQuerier) MaxLeaf() uint32 { return q.maxLeaf }

// HasCPUID reports CPUID availability on this architecture.
func HasCPUID() bool { return true }
