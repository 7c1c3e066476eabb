// File: internal/platform/pin.go
//
// Scoped thread pinning for per-CPU discovery.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package platform

import (
	"runtime"

	"github.com/momentics/hioload-affinity/api"
	"github.com/momentics/hioload-affinity/mask"
)

// PinGuard locks the calling goroutine to its OS thread and remembers
// the thread's affinity so it can be restored when discovery is done.
//
//	guard, err := platform.NewPinGuard(aff)
//	defer guard.Release()
//	guard.BindTo(cpu)
type PinGuard struct {
	aff      api.OSAffinity
	saved    *mask.Mask
	released bool
}

// NewPinGuard locks the OS thread and snapshots its affinity.
func NewPinGuard(aff api.OSAffinity) (*PinGuard, error) {
	runtime.LockOSThread()
	saved, err := aff.GetThreadAffinity()
	if err != nil {
		runtime.UnlockOSThread()
		return nil, err
	}
	return &PinGuard{aff: aff, saved: saved}, nil
}

// BindTo moves the thread onto a single CPU.
func (g *PinGuard) BindTo(cpu int) error {
	m := mask.New()
	m.Set(cpu)
	return g.aff.SetThreadAffinity(m)
}

// Release restores the saved affinity and unlocks the thread. Only the
// first call acts, so an early explicit Release and a deferred one can
// coexist without unbalancing the thread lock.
func (g *PinGuard) Release() {
	if g.released {
		return
	}
	g.released = true
	_ = g.aff.SetThreadAffinity(g.saved)
	runtime.UnlockOSThread()
}
