// Package mask
// Author: momentics <momentics@gmail.com>
//
// Canonical text rendering of affinity masks and the matching parser.

package mask

import (
	"fmt"
	"strconv"
	"strings"
)

// Empty is the rendering of a mask with no indices set.
const Empty = "{<empty>}"

// String renders the mask in canonical form: ascending, comma
// separated, with "a-b" ranges only for runs of three or more
// consecutive indices. A run of exactly two prints as "a,b".
func (m *Mask) String() string {
	first := m.Lowest()
	if first < 0 {
		return Empty
	}
	var sb strings.Builder
	prev := first
	start := first
	flush := func(end int) {
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}
		switch {
		case end == start:
			sb.WriteString(strconv.Itoa(start))
		case end == start+1:
			sb.WriteString(strconv.Itoa(start))
			sb.WriteByte(',')
			sb.WriteString(strconv.Itoa(end))
		default:
			sb.WriteString(strconv.Itoa(start))
			sb.WriteByte('-')
			sb.WriteString(strconv.Itoa(end))
		}
	}
	for i := m.NextAfter(first); i >= 0; i = m.NextAfter(i) {
		if i == prev+1 {
			prev = i
			continue
		}
		flush(prev)
		start, prev = i, i
	}
	flush(prev)
	return sb.String()
}

// Parse reads the canonical rendering back into a mask. It accepts
// exactly what String produces plus arbitrary "a-b" ranges of length
// one or two.
func Parse(s string) (*Mask, error) {
	m := New()
	if s == Empty {
		return m, nil
	}
	if s == "" {
		return nil, fmt.Errorf("mask: empty string")
	}
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		lo, hi, ok := parseRange(tok)
		if !ok {
			return nil, fmt.Errorf("mask: bad token %q", tok)
		}
		for i := lo; i <= hi; i++ {
			m.Set(i)
		}
	}
	return m, nil
}

func parseRange(tok string) (lo, hi int, ok bool) {
	if dash := strings.IndexByte(tok, '-'); dash > 0 {
		a, err1 := strconv.Atoi(tok[:dash])
		b, err2 := strconv.Atoi(tok[dash+1:])
		if err1 != nil || err2 != nil || a < 0 || b < a {
			return 0, 0, false
		}
		return a, b, true
	}
	n, err := strconv.Atoi(tok)
	if err != nil || n < 0 {
		return 0, 0, false
	}
	return n, n, true
}
