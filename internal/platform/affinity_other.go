// File: internal/platform/affinity_other.go
//go:build !linux && !windows
// +build !linux,!windows

//
// Stub affinity surface for platforms without thread affinity control.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package platform

import (
	"runtime"

	"github.com/momentics/hioload-affinity/api"
	"github.com/momentics/hioload-affinity/mask"
)

// OSAffinity reports every CPU as available and rejects binding.
type OSAffinity struct{}

// New returns the stub affinity surface.
func New() *OSAffinity { return &OSAffinity{} }

func (a *OSAffinity) GetThreadAffinity() (*mask.Mask, error) {
	m := mask.New()
	for i := 0; i < runtime.NumCPU(); i++ {
		m.Set(i)
	}
	return m, nil
}

func (a *OSAffinity) SetThreadAffinity(m *mask.Mask) error {
	return api.ErrAffinityMissing
}

func (a *OSAffinity) MaxCPUIndex() int {
	return runtime.NumCPU() - 1
}
