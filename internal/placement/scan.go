// File: internal/placement/scan.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package placement

import (
	"strconv"

	"github.com/momentics/hioload-affinity/api"
)

// scanner is the shared cursor for the proc-list and place-list
// grammars. Whitespace is insignificant between tokens.
type scanner struct {
	s   string
	pos int
}

func (sc *scanner) skipSpace() {
	for sc.pos < len(sc.s) && (sc.s[sc.pos] == ' ' || sc.s[sc.pos] == '\t') {
		sc.pos++
	}
}

func (sc *scanner) done() bool { return sc.pos >= len(sc.s) }

func (sc *scanner) peek() byte {
	if sc.done() {
		return 0
	}
	return sc.s[sc.pos]
}

// accept consumes ch when it is next, reporting whether it did.
func (sc *scanner) accept(ch byte) bool {
	if !sc.done() && sc.s[sc.pos] == ch {
		sc.pos++
		return true
	}
	return false
}

func (sc *scanner) errf(msg string) error {
	return api.NewError(api.ErrCodeInvalidArgument, msg).
		WithContext("list", sc.s).
		WithContext("pos", sc.pos)
}

// number reads a non-negative decimal integer.
func (sc *scanner) number() (int, error) {
	sc.skipSpace()
	start := sc.pos
	for sc.pos < len(sc.s) && sc.s[sc.pos] >= '0' && sc.s[sc.pos] <= '9' {
		sc.pos++
	}
	if sc.pos == start {
		return 0, sc.errf("expected a number")
	}
	n, err := strconv.Atoi(sc.s[start:sc.pos])
	if err != nil {
		return 0, sc.errf("number out of range")
	}
	return n, nil
}

// signedNumber reads an integer with an optional leading sign.
func (sc *scanner) signedNumber() (int, error) {
	sc.skipSpace()
	sign := 1
	if sc.accept('-') {
		sign = -1
	} else {
		sc.accept('+')
	}
	n, err := sc.number()
	if err != nil {
		return 0, err
	}
	return sign * n, nil
}
