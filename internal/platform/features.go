// File: internal/platform/features.go
//
// CPU feature gates used by discovery.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package platform

import "github.com/klauspost/cpuid/v2"

// IsHybridCPU reports whether the processor mixes core types.
func IsHybridCPU() bool {
	return cpuid.CPU.Supports(cpuid.HYBRID_CPU)
}

// VendorString returns the CPUID vendor identification string.
func VendorString() string {
	return cpuid.CPU.VendorString
}

// LogicalCores returns the OS visible logical CPU count, used by the
// flat fallback when every richer discovery method failed.
func LogicalCores() int {
	if n := cpuid.CPU.LogicalCores; n > 0 {
		return n
	}
	return 1
}

// PhysicalCores returns the physical core count when known, else 0.
func PhysicalCores() int {
	if n := cpuid.CPU.PhysicalCores; n > 0 {
		return n
	}
	return 0
}

// ThreadsPerCore returns the SMT width when known, else 1.
func ThreadsPerCore() int {
	if n := cpuid.CPU.ThreadsPerCore; n > 0 {
		return n
	}
	return 1
}
