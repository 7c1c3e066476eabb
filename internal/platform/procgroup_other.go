// File: internal/platform/procgroup_other.go
//go:build !windows
// +build !windows

//
// Processor group stubs for platforms without processor groups.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package platform

// NumProcGroups returns 1 outside Windows.
func NumProcGroups() int { return 1 }

// GroupOf returns 0 outside Windows.
func GroupOf(osID int) int { return 0 }
