// Package api
// Author: momentics <momentics@gmail.com>
//
// Hardware primitive interfaces. Real implementations live under
// internal/platform; deterministic ones under fake/.

package api

import (
	"io"

	"github.com/momentics/hioload-affinity/mask"
)

// LeafRegs holds the four registers returned by one CPUID query.
type LeafRegs struct {
	EAX, EBX, ECX, EDX uint32
}

// LeafQuerier answers raw CPUID queries on the processor the calling
// thread is currently bound to. Callers that need per-processor data
// pin the thread first.
type LeafQuerier interface {
	Query(leaf, subleaf uint32) LeafRegs
	MaxLeaf() uint32
}

// OSAffinity is the per-platform thread affinity surface.
type OSAffinity interface {
	// GetThreadAffinity returns the affinity mask of the calling
	// OS thread.
	GetThreadAffinity() (*mask.Mask, error)
	// SetThreadAffinity binds the calling OS thread to m.
	SetThreadAffinity(m *mask.Mask) error
	// MaxCPUIndex returns the highest OS processor index the mask
	// representation must accommodate.
	MaxCPUIndex() int
}

// ProcFS reads host pseudo-files such as /proc/cpuinfo. Abstracted so
// discovery can run against recorded fixtures.
type ProcFS interface {
	Open(path string) (io.ReadCloser, error)
}

// Binder places the calling goroutine's OS thread onto a published
// place. Implementations lock the goroutine to its thread for the
// duration of the binding.
type Binder interface {
	// Bind pins the current thread to place index i.
	Bind(i int) error
	// Unbind restores the full mask and releases the thread lock.
	Unbind() error
}

// Diagnostics is the warning sink used throughout discovery and
// placement. Recoverable conditions are reported here and execution
// continues; hard failures travel as errors instead.
type Diagnostics interface {
	Warnf(format string, args ...any)
	Infof(format string, args ...any)
	Debugf(format string, args ...any)
}

// NopDiagnostics discards everything. Useful default for library use.
type NopDiagnostics struct{}

func (NopDiagnostics) Warnf(string, ...any)  {}
func (NopDiagnostics) Infof(string, ...any)  {}
func (NopDiagnostics) Debugf(string, ...any) {}
