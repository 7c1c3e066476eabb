// File: adapters/binder.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package adapters

import (
	"runtime"

	"github.com/momentics/hioload-affinity/api"
	"github.com/momentics/hioload-affinity/mask"
)

// PlaceBinder implements api.Binder over a published place list. Bind
// locks the calling goroutine to its OS thread and narrows the thread
// mask to the place; Unbind restores the full mask and unlocks.
//
// A binder belongs to one goroutine. Create one per worker.
type PlaceBinder struct {
	aff    api.OSAffinity
	places []*mask.Mask
	full   *mask.Mask
	bound  bool
}

// NewPlaceBinder builds a binder over places, restoring to full on
// Unbind.
func NewPlaceBinder(aff api.OSAffinity, places []*mask.Mask, full *mask.Mask) *PlaceBinder {
	return &PlaceBinder{aff: aff, places: places, full: full}
}

var _ api.Binder = (*PlaceBinder)(nil)

// Bind pins the current thread to place i.
func (b *PlaceBinder) Bind(i int) error {
	if i < 0 || i >= len(b.places) {
		return api.ErrPlaceOutOfRange
	}
	if !b.bound {
		runtime.LockOSThread()
	}
	if err := b.aff.SetThreadAffinity(b.places[i]); err != nil {
		if !b.bound {
			runtime.UnlockOSThread()
		}
		return api.NewError(api.ErrCodeAffinitySyscall, "binding thread to place failed").
			WithContext("place", i).
			WithContext("cause", err.Error())
	}
	b.bound = true
	return nil
}

// Unbind restores the full mask and releases the thread lock. Calling
// it unbound is a no-op.
func (b *PlaceBinder) Unbind() error {
	if !b.bound {
		return nil
	}
	err := b.aff.SetThreadAffinity(b.full)
	b.bound = false
	runtime.UnlockOSThread()
	if err != nil {
		return api.NewError(api.ErrCodeAffinitySyscall, "restoring thread mask failed").
			WithContext("cause", err.Error())
	}
	return nil
}
