// File: internal/platform/affinity_linux.go
//go:build linux
// +build linux

//
// Linux thread affinity via sched_getaffinity/sched_setaffinity.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package platform

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-affinity/api"
	"github.com/momentics/hioload-affinity/mask"
)

// OSAffinity implements api.OSAffinity over the Linux scheduler
// syscalls. Calls apply to the calling OS thread; callers pin their
// goroutine with runtime.LockOSThread around use.
type OSAffinity struct{}

// New returns the native affinity surface for this platform.
func New() *OSAffinity { return &OSAffinity{} }

func (a *OSAffinity) GetThreadAffinity() (*mask.Mask, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return nil, api.NewError(api.ErrCodeAffinitySyscall, "sched_getaffinity failed").
			WithContext("errno", err)
	}
	return mask.FromWords(cpuSetWords(&set)), nil
}

func (a *OSAffinity) SetThreadAffinity(m *mask.Mask) error {
	var set unix.CPUSet
	limit := len(cpuSetWords(&set)) * 64
	for _, cpu := range m.Slice() {
		if cpu >= limit {
			return api.NewError(api.ErrCodeInvalidArgument, "cpu index exceeds kernel cpu set").
				WithContext("cpu", cpu)
		}
		set.Set(cpu)
	}
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return api.NewError(api.ErrCodeAffinitySyscall, "sched_setaffinity failed").
			WithContext("errno", err)
	}
	return nil
}

func (a *OSAffinity) MaxCPUIndex() int {
	var set unix.CPUSet
	return len(cpuSetWords(&set))*64 - 1
}

// cpuSetWords exposes the CPUSet bit words. unix.CPUSet is an array of
// integers whose width differs across architectures, so go through
// unsafe to view it as 64-bit words.
func cpuSetWords(set *unix.CPUSet) []uint64 {
	n := int(unsafe.Sizeof(*set)) / 8
	return unsafe.Slice((*uint64)(unsafe.Pointer(set)), n)
}
