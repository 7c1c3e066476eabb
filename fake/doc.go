// File: fake/doc.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package fake provides deterministic stand-ins for the hardware
// primitives: CPUID machines with a chosen shape, an in-memory proc
// filesystem and a recording affinity surface. Discovery and placement
// run against these in tests exactly as they run against the host.
package fake
