// File: internal/discover/doc.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package discover probes the machine and produces a raw topology.
//
// Each probing strategy is a Backend. The coordinator tries backends in
// decreasing fidelity order until one succeeds; a forced method turns a
// backend failure into a hard error instead. Backends never touch
// process state directly: everything they need (affinity syscalls,
// CPUID, pseudo-files) arrives through the Context, so they run
// unchanged against recorded fixtures.
package discover
