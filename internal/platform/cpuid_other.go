// File: internal/platform/cpuid_other.go
//go:build !amd64
// +build !amd64

//
// CPUID stub for non-x86-64 architectures.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package platform

import "github.com/momentics/hioload-affinity/api"

// CPUIDQuerier is unavailable here; Query returns zero registers so
// CPUID based discovery fails cleanly and the coordinator moves on.
type CPUIDQuerier struct{}

// NewCPUIDQuerier returns the stub querier.
func NewCPUIDQuerier() *CPUIDQuerier { return &CPUIDQuerier{} }

func (q *CPUIDQuerier) Query(leaf, subleaf uint32) api.LeafRegs {
	return api.LeafRegs{}
}

func (q *CPUIDQuerier) MaxLeaf() uint32 { return 0 }

// HasCPUID reports CPUID availability on this architecture.
func HasCPUID() bool { return false }
