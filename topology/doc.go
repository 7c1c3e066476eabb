// Package topology
// Author: momentics <momentics@gmail.com>
//
// In-memory model of the machine's hardware topology: one record per
// hardware thread carrying per-level ids, plus the canonicalization
// pipeline that turns raw discovery output into the normalized form
// consumed by placement.
//
// Canonical form guarantees: layers ordered widest to deepest, no
// radix-1 layers outside socket/core/thread, positive counts and
// ratios per layer, contiguous sub-ids, and an idempotent equivalence
// map where every surviving layer type points to itself.
package topology
