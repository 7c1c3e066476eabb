// Package topology
// Author: momentics <momentics@gmail.com>
//
// Per hardware thread record.

package topology

import (
	"fmt"
	"strings"

	"github.com/momentics/hioload-affinity/api"
)

// HardwareThread describes one hardware thread (logical processor).
// IDs holds the physical id at each topology level, outermost first.
// SubIDs holds the logical (dense, zero-based) counterpart assigned
// during canonicalization.
type HardwareThread struct {
	OSID        int
	IDs         []int
	SubIDs      []int
	Attrs       api.CoreAttrs
	OriginalIdx int
	Leader      bool
}

func newHardwareThread(depth int) HardwareThread {
	ids := make([]int, depth)
	subs := make([]int, depth)
	for i := range ids {
		ids[i] = api.UnknownID
		subs[i] = api.UnknownID
	}
	return HardwareThread{OSID: api.UnknownID, IDs: ids, SubIDs: subs,
		Attrs: api.CoreAttrs{Eff: api.UnknownID}}
}

func (h *HardwareThread) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%4d ", h.OSID)
	for i := range h.IDs {
		fmt.Fprintf(&sb, "%4d (%d) ", h.IDs[i], h.SubIDs[i])
	}
	if h.Attrs.Type != api.CoreTypeUnknown {
		fmt.Fprintf(&sb, " (%s)", h.Attrs.Type)
	}
	if h.Attrs.Eff >= 0 {
		fmt.Fprintf(&sb, " (eff=%d)", h.Attrs.Eff)
	}
	if h.Leader {
		sb.WriteString(" (leader)")
	}
	return sb.String()
}
