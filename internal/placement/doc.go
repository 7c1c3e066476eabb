// File: internal/placement/doc.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package placement turns a canonical topology into place masks.
//
// A place is an affinity mask a thread may be bound to. The engine
// resolves the requested granularity against the machine, builds one
// mask per granularity unit, then orders and publishes them according
// to the selected policy: explicit lists, logical/physical numbering,
// compact/scatter sorting, or the balanced distribution that also
// computes per-thread masks on demand.
package placement
