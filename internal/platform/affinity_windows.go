// File: internal/platform/affinity_windows.go
//go:build windows
// +build windows

//
// Windows thread affinity over processor groups.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// With more than one processor group a thread can live in exactly one
// group at a time, so cross-group masks are rejected here and the
// granularity machinery coarsens places down to one group.

package platform

import (
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/momentics/hioload-affinity/api"
	"github.com/momentics/hioload-affinity/mask"
)

var (
	modkernel32                    = windows.NewLazySystemDLL("kernel32.dll")
	procGetCurrentThread           = modkernel32.NewProc("GetCurrentThread")
	procGetThreadGroupAffinity     = modkernel32.NewProc("GetThreadGroupAffinity")
	procSetThreadGroupAffinity     = modkernel32.NewProc("SetThreadGroupAffinity")
	procGetActiveProcessorGroupCnt = modkernel32.NewProc("GetActiveProcessorGroupCount")
	procGetActiveProcessorCount    = modkernel32.NewProc("GetActiveProcessorCount")
)

// groupAffinity mirrors the kernel GROUP_AFFINITY layout.
type groupAffinity struct {
	Mask     uintptr
	Group    uint16
	Reserved [3]uint16
}

// OSAffinity implements api.OSAffinity for Windows. Group g occupies
// mask indices [g*64, g*64+63].
type OSAffinity struct{}

// New returns the native affinity surface for this platform.
func New() *OSAffinity { return &OSAffinity{} }

// NumProcGroups returns the number of active processor groups.
func NumProcGroups() int {
	n, _, _ := procGetActiveProcessorGroupCnt.Call()
	if n == 0 {
		return 1
	}
	return int(n)
}

// ProcsInGroup returns the number of active processors in group g.
func ProcsInGroup(g int) int {
	n, _, _ := procGetActiveProcessorCount.Call(uintptr(uint16(g)))
	return int(n)
}

// GroupOf returns the processor group an OS index belongs to.
func GroupOf(osID int) int { return osID / 64 }

func (a *OSAffinity) GetThreadAffinity() (*mask.Mask, error) {
	handle, _, _ := procGetCurrentThread.Call()
	var ga groupAffinity
	ret, _, err := procGetThreadGroupAffinity.Call(handle, uintptr(unsafe.Pointer(&ga)))
	if ret == 0 {
		return nil, api.NewError(api.ErrCodeAffinitySyscall, "GetThreadGroupAffinity failed").
			WithContext("errno", err)
	}
	m := mask.New()
	base := int(ga.Group) * 64
	for bit := 0; bit < 64; bit++ {
		if ga.Mask&(uintptr(1)<<uint(bit)) != 0 {
			m.Set(base + bit)
		}
	}
	return m, nil
}

func (a *OSAffinity) SetThreadAffinity(m *mask.Mask) error {
	lo, hi := m.Lowest(), m.Highest()
	if lo < 0 {
		return api.NewError(api.ErrCodeInvalidArgument, "empty affinity mask")
	}
	if GroupOf(lo) != GroupOf(hi) {
		return api.NewError(api.ErrCodeInvalidArgument, "mask spans processor groups").
			WithContext("lowest", lo).WithContext("highest", hi)
	}
	group := GroupOf(lo)
	var bits uintptr
	for _, cpu := range m.Slice() {
		bits |= uintptr(1) << uint(cpu%64)
	}
	ga := groupAffinity{Mask: bits, Group: uint16(group)}
	handle, _, _ := procGetCurrentThread.Call()
	ret, _, err := procSetThreadGroupAffinity.Call(handle,
		uintptr(unsafe.Pointer(&ga)), 0)
	if ret == 0 {
		return api.NewError(api.ErrCodeAffinitySyscall, "SetThreadGroupAffinity failed").
			WithContext("errno", err)
	}
	return nil
}

func (a *OSAffinity) MaxCPUIndex() int {
	return NumProcGroups()*64 - 1
}

// FullMask returns the mask of all active processors across groups.
func FullMask() *mask.Mask {
	m := mask.New()
	groups := NumProcGroups()
	for g := 0; g < groups; g++ {
		n := ProcsInGroup(g)
		for i := 0; i < n; i++ {
			m.Set(g*64 + i)
		}
	}
	return m
}
