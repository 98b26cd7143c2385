package solver

import (
	"slices"
	"strings"
)

// PairSep joins the two names of a Pair. Names containing it are rejected
// wherever names enter the system.
const PairSep = "|"

// A Pair is an unordered pair of students, stored as "a|b" with a <= b.
type Pair string

func MakePair(a, b string) Pair {
	if b < a {
		a, b = b, a
	}
	return Pair(a + PairSep + b)
}

// ParsePair canonicalizes a pair read from outside, so "B|A" and "A|B" match.
func ParsePair(s string) (Pair, bool) {
	a, b, ok := strings.Cut(s, PairSep)
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if !ok || a == "" || b == "" || a == b || strings.Contains(b, PairSep) {
		return "", false
	}
	return MakePair(a, b), true
}

type PairSet map[Pair]struct{}

func NewPairSet(pairs ...Pair) PairSet {
	s := make(PairSet, len(pairs))
	for _, p := range pairs {
		s[p] = struct{}{}
	}
	return s
}

func (s PairSet) Add(a, b string) {
	if a == b {
		return
	}
	s[MakePair(a, b)] = struct{}{}
}

func (s PairSet) Has(a, b string) bool {
	_, ok := s[MakePair(a, b)]
	return ok
}

// AddGroup adds every pair among names.
func (s PairSet) AddGroup(names []string) {
	for i := range names {
		for j := i + 1; j < len(names); j++ {
			s.Add(names[i], names[j])
		}
	}
}

func (s PairSet) Sorted() []Pair {
	out := make([]Pair, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}
