// File: internal/placement/placelist.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package placement

import (
	"github.com/momentics/hioload-affinity/api"
	"github.com/momentics/hioload-affinity/mask"
)

// ParsePlaceList parses a place list into place masks.
//
// Grammar, comma separated:
//
//	place      := num | '{' subplaces '}' | '!' place | place ':' count [ ':' stride ]
//	subplace   := num [ ':' count [ ':' stride ] ]
//
// A bare number denotes the unit mask of that OS id; braces union
// subplaces into a single place; '!' complements a place within the
// full mask; the trailing count/stride form replicates a place by
// shifting its OS ids. Invalid ids are warned about and skipped.
func ParsePlaceList(list string, table *OSMaskTable, fullMask *mask.Mask,
	diag api.Diagnostics) ([]*mask.Mask, error) {

	sc := &scanner{s: list}
	var places []*mask.Mask
	tempMask := mask.New()
	setSize := 0
	maxOSID := table.MaxOSID()

	for {
		if err := processPlace(sc, table, fullMask, tempMask, &setSize, diag); err != nil {
			return nil, err
		}
		sc.skipSpace()

		if sc.done() || sc.peek() == ',' {
			if setSize > 0 {
				places = append(places, tempMask.Clone())
			}
			tempMask.Zero()
			setSize = 0
			if sc.done() {
				break
			}
			sc.pos++ // ','
			continue
		}
		if !sc.accept(':') {
			return nil, sc.errf("expected ',' or ':' after place")
		}
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

		// Replicate the place count times, shifting OS ids by stride
		// each step. Ids that shift off the machine drop out; a warning
		// fires unless this is already the final step.
		previousMask := mask.New()
		for i := 0; i < count; i++ {
			if setSize == 0 {
				break
			}
			previousMask.CopyFrom(tempMask)
			places = append(places, previousMask.Clone())
			tempMask.Zero()
			setSize = 0
			for j := previousMask.NextAfter(-1); j >= 0; j = previousMask.NextAfter(j) {
				if j+stride > maxOSID || j+stride < 0 ||
					!fullMask.IsSet(j) || !table.Contains(j+stride) {
					if i < count-1 {
						diag.Warnf("ignoring invalid OS processor id %d", j+stride)
					}
					continue
				}
				tempMask.Set(j + stride)
				setSize++
			}
		}
		tempMask.Zero()
		setSize = 0

		sc.skipSpace()
		if sc.done() {
			break
		}
		if !sc.accept(',') {
			return nil, sc.errf("expected ',' between places")
		}
	}
	return places, nil
}

func processPlace(sc *scanner, table *OSMaskTable, fullMask *mask.Mask,
	tempMask *mask.Mask, setSize *int, diag api.Diagnostics) error {

	sc.skipSpace()
	switch {
	case sc.accept('!'):
		if err := processPlace(sc, table, fullMask, tempMask, setSize, diag); err != nil {
			return err
		}
		inverted := fullMask.Clone()
		inverted.AndNot(tempMask)
		tempMask.CopyFrom(inverted)
		*setSize = tempMask.Count()
		return nil
	case sc.accept('{'):
		if err := processSubplaceList(sc, table, tempMask, setSize, diag); err != nil {
			return err
		}
		if !sc.accept('}') {
			return sc.errf("expected '}' after subplace list")
		}
		return nil
	default:
		num, err := sc.number()
		if err != nil {
			return err
		}
		if !table.Contains(num) {
			diag.Warnf("ignoring invalid OS processor id %d", num)
			return nil
		}
		tempMask.Or(table.MaskOf(num))
		*setSize++
		return nil
	}
}

func processSubplaceList(sc *scanner, table *OSMaskTable,
	tempMask *mask.Mask, setSize *int, diag api.Diagnostics) error {

	addOne := func(osID int) bool {
		if !table.Contains(osID) {
			diag.Warnf("ignoring invalid OS processor id %d", osID)
			return false
		}
		tempMask.Or(table.MaskOf(osID))
		*setSize++
		return true
	}

	for {
		num, err := sc.number()
		if err != nil {
			return err
		}
		sc.skipSpace()
		if sc.peek() == '}' || sc.peek() == ',' {
			addOne(num)
		} else {
			if !sc.accept(':') {
				return sc.errf("expected ':', ',' or '}' in subplace")
			}
			count, err := sc.number()
			if err != nil {
				return err
			}
			stride := 1
			sc.skipSpace()
			if sc.accept(':') {
				stride, err = sc.signedNumber()
				if err != nil {
					return err
				}
			}
			for i := 0; i < count; i++ {
				if !addOne(num) {
					break
				}
				num += stride
			}
			sc.skipSpace()
		}
		if sc.peek() == '}' {
			return nil
		}
		if !sc.accept(',') {
			return sc.errf("expected ',' or '}' in subplace list")
		}
	}
}
