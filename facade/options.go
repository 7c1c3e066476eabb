// File: facade/options.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package facade

import (
	"github.com/momentics/hioload-affinity/api"
)

// Option customizes runtime construction.
type Option func(*Runtime)

// WithDiagnostics replaces the default logrus-backed sink.
func WithDiagnostics(d api.Diagnostics) Option {
	return func(r *Runtime) {
		r.diag = d
	}
}

// WithAffinity substitutes the OS affinity surface, mainly for tests
// running against fake machines.
func WithAffinity(aff api.OSAffinity) Option {
	return func(r *Runtime) {
		r.aff = aff
	}
}

// WithQuerier substitutes the CPUID querier.
func WithQuerier(q api.LeafQuerier) Option {
	return func(r *Runtime) {
		r.querier = q
	}
}

// WithProcFS substitutes the proc filesystem reader.
func WithProcFS(fs api.ProcFS) Option {
	return func(r *Runtime) {
		r.fs = fs
	}
}

// WithCpuinfoPath overrides the /proc/cpuinfo location.
func WithCpuinfoPath(path string) Option {
	return func(r *Runtime) {
		r.cpuinfoPath = path
	}
}

// WithHybrid overrides hybrid-CPU detection.
func WithHybrid(hybrid bool) Option {
	return func(r *Runtime) {
		r.hybrid = hybrid
	}
}

// WithSubset restricts the machine to a hardware subset before
// placement. absolute counts units machine-wide instead of per
// enclosing unit.
func WithSubset(items []api.SubsetItem, absolute bool) Option {
	return func(r *Runtime) {
		r.subset = append([]api.SubsetItem(nil), items...)
		r.subsetAbsolute = absolute
	}
}

// WithGranularityAttrs requests attribute granularity on hybrid parts,
// e.g. performance cores only.
func WithGranularityAttrs(attrs api.CoreAttrs) Option {
	return func(r *Runtime) {
		r.granAttrs = attrs
	}
}
