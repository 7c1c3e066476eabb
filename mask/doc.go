// Package mask
// Author: momentics <momentics@gmail.com>
//
// Affinity mask bit-set over OS processor indices, with the canonical
// text rendering used in diagnostics and the matching strict parser.
//
// The word-array representation maps directly onto the kernel cpu-set
// and Windows group-affinity layouts, so platform code can exchange
// masks without copying bit by bit.
package mask
