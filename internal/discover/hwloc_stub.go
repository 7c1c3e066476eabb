// File: internal/discover/hwloc_stub.go
//go:build !hwloc || !cgo

//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package discover

// newHwlocBackend reports hwloc as unavailable in builds without the
// hwloc tag.
func newHwlocBackend() (Backend, bool) { return nil, false }
