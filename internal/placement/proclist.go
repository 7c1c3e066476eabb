// File: internal/placement/proclist.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package placement

import (
	"github.com/momentics/hioload-affinity/api"
	"github.com/momentics/hioload-affinity/mask"
)

// maxRangeSpan bounds the number of ids one range may expand to.
const maxRangeSpan = 65536

// ParseProcList parses an explicit processor list into place masks.
//
// Grammar, comma separated:
//
//	42          one place, the unit mask of OS id 42
//	2-7         one place per id in the range
//	2-14:4      range with a stride, optionally signed
//	7:3:2       repetition, count places starting at the id and
//	            stepping by the stride (default 1)
//	{0,1,8,9}   one place, the union of the listed unit masks
//
// Invalid OS ids are warned about and skipped; malformed syntax is an
// error.
func ParseProcList(list string, table *OSMaskTable,
	diag api.Diagnostics) ([]*mask.Mask, error) {

	sc := &scanner{s: list}
	var places []*mask.Mask

	addOSID := func(osID int) {
		if !table.Contains(osID) {
			diag.Warnf("ignoring invalid OS processor id %d", osID)
			return
		}
		places = append(places, table.MaskOf(osID).Clone())
	}

	for {
		sc.skipSpace()
		if sc.accept('{') {
			sum := mask.New()
			setSize := 0
			for {
				num, err := sc.number()
				if err != nil {
					return nil, err
				}
				if !table.Contains(num) {
					diag.Warnf("ignoring invalid OS processor id %d", num)
				} else {
					sum.Or(table.MaskOf(num))
					setSize++
				}
				sc.skipSpace()
				if sc.accept('}') {
					break
				}
				if !sc.accept(',') {
					return nil, sc.errf("expected ',' or '}' in processor set")
				}
			}
			if setSize > 0 {
				places = append(places, sum)
			}
		} else {
			start, err := sc.number()
			if err != nil {
				return nil, err
			}
			sc.skipSpace()
			switch sc.peek() {
			default:
				addOSID(start)
			case ':':
				sc.pos++
				count, err := sc.number()
				if err != nil {
					return nil, err
				}
				stride := 1
				sc.skipSpace()
				if sc.accept(':') {
					stride, err = sc.signedNumber()
					if err != nil {
						return nil, err
					}
				}
				switch {
				case count <= 0:
					return nil, sc.errf("repeat count must be positive")
				case stride == 0:
					return nil, sc.errf("zero stride")
				case count > maxRangeSpan:
					return nil, sc.errf("range spans too many processors")
				}
				for i := 0; i < count; i++ {
					addOSID(start + i*stride)
				}
			case '-':
				sc.pos++
				end, err := sc.number()
				if err != nil {
					return nil, err
				}
				stride := 1
				sc.skipSpace()
				if sc.accept(':') {
					stride, err = sc.signedNumber()
					if err != nil {
						return nil, err
					}
				}
				switch {
				case stride == 0:
					return nil, sc.errf("zero stride")
				case stride > 0 && start > end:
					return nil, sc.errf("descending range needs a negative stride")
				case stride < 0 && start < end:
					return nil, sc.errf("ascending range needs a positive stride")
				case (end-start)/stride > maxRangeSpan:
					return nil, sc.errf("range spans too many processors")
				}
				if stride > 0 {
					for i := start; i <= end; i += stride {
						addOSID(i)
					}
				} else {
					for i := start; i >= end; i += stride {
						addOSID(i)
					}
				}
			}
		}
		sc.skipSpace()
		if sc.done() {
			break
		}
		if !sc.accept(',') {
			return nil, sc.errf("expected ',' between list items")
		}
	}
	return places, nil
}
