// File: topology/subsetparse.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package topology

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/momentics/hioload-affinity/api"
)

// ParseSubset parses the hardware subset text syntax, a comma separated
// list of
//
//	<count>[@<offset>]<level>[:<qualifier>]
//
// count is a positive integer or '*' for every unit; offset skips that
// many units before counting; level is a topology level name or one of
// the shortcuts s, c, t, n, g, d; the qualifier restricts cores on
// hybrid machines to a type (intel_core, intel_atom) or an efficiency
// class (eff0, eff1, ...). A leading ':' switches to absolute counting,
// where counts span the whole machine instead of one enclosing unit.
// Terms naming the same level merge into one multi-attribute request.
//
// Malformed text is an error; whether the machine can honor the subset
// is decided later by FilterSubset.
func ParseSubset(list string) ([]api.SubsetItem, bool, error) {
	s := strings.TrimSpace(list)
	if s == "" {
		return nil, false, nil
	}
	absolute := false
	if s[0] == ':' {
		absolute = true
		s = s[1:]
	}
	var items []api.SubsetItem
	index := map[api.LevelType]int{}
	for _, term := range strings.Split(s, ",") {
		level, num, offset, attr, err := parseSubsetTerm(strings.TrimSpace(term), list)
		if err != nil {
			return nil, false, err
		}
		i, dup := index[level]
		if !dup {
			index[level] = len(items)
			items = append(items, api.SubsetItem{
				Level:   level,
				Nums:    []int{num},
				Offsets: []int{offset},
				Attrs:   []api.CoreAttrs{attr},
			})
			continue
		}
		it := &items[i]
		merged := attr.Valid()
		for _, a := range it.Attrs {
			if a.Valid() {
				merged = true
			}
		}
		if !merged {
			return nil, false, subsetErr(list, "level %s specified more than once", level)
		}
		it.Nums = append(it.Nums, num)
		it.Offsets = append(it.Offsets, offset)
		it.Attrs = append(it.Attrs, attr)
	}
	return items, absolute, nil
}

func parseSubsetTerm(term, list string) (api.LevelType, int, int, api.CoreAttrs, error) {
	attr := api.UnknownCoreAttrs()
	pos := 0
	num, ok := scanSubsetCount(term, &pos)
	if !ok {
		return api.LevelUnknown, 0, 0, attr, subsetErr(list, "term %q needs a count or '*'", term)
	}
	offset := 0
	if pos < len(term) && term[pos] == '@' {
		pos++
		offset, ok = scanSubsetNumber(term, &pos)
		if !ok {
			return api.LevelUnknown, 0, 0, attr, subsetErr(list, "term %q has a malformed offset", term)
		}
	}
	start := pos
	for pos < len(term) && term[pos] != ':' {
		pos++
	}
	level := subsetLevel(term[start:pos])
	if level == api.LevelUnknown {
		return level, 0, 0, attr, subsetErr(list, "term %q names no known level", term)
	}
	if pos < len(term) {
		attr, ok = parseSubsetAttr(term[pos+1:])
		if !ok {
			return level, 0, 0, attr, subsetErr(list, "term %q has an unknown qualifier", term)
		}
	}
	return level, num, offset, attr, nil
}

func scanSubsetCount(term string, pos *int) (int, bool) {
	if *pos < len(term) && term[*pos] == '*' {
		*pos++
		return api.SubsetUseAll, true
	}
	n, ok := scanSubsetNumber(term, pos)
	if !ok || n == 0 {
		return 0, false
	}
	return n, true
}

func scanSubsetNumber(term string, pos *int) (int, bool) {
	start := *pos
	for *pos < len(term) && term[*pos] >= '0' && term[*pos] <= '9' {
		*pos++
	}
	if *pos == start {
		return 0, false
	}
	n, err := strconv.Atoi(term[start:*pos])
	if err != nil {
		return 0, false
	}
	return n, true
}

func subsetLevel(kw string) api.LevelType {
	switch kw {
	case "s":
		return api.LevelSocket
	case "c":
		return api.LevelCore
	case "t":
		return api.LevelThread
	case "n":
		return api.LevelNUMA
	case "g":
		return api.LevelProcGroup
	case "d":
		return api.LevelDie
	}
	if lt := api.ParseLevelType(kw); lt != api.LevelUnknown {
		return lt
	}
	// Plural forms: "2 sockets", "4 cores".
	if strings.HasSuffix(kw, "s") {
		return api.ParseLevelType(strings.TrimSuffix(kw, "s"))
	}
	return api.LevelUnknown
}

func parseSubsetAttr(q string) (api.CoreAttrs, bool) {
	a := api.UnknownCoreAttrs()
	switch {
	case q == "intel_core":
		a.Type = api.CoreTypeCore
	case q == "intel_atom":
		a.Type = api.CoreTypeAtom
	case strings.HasPrefix(q, "eff"):
		n, err := strconv.Atoi(q[len("eff"):])
		if err != nil || n < 0 {
			return a, false
		}
		a.Eff = n
	default:
		return a, false
	}
	return a, true
}

func subsetErr(list, format string, args ...any) error {
	return api.NewError(api.ErrCodeInvalidArgument,
		"malformed hardware subset").
		WithContext("subset", list).
		WithContext("cause", fmt.Sprintf(format, args...))
}
