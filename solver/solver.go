package solver

import (
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"strings"
)

var ErrInvalidInput = errors.New("invalid input")

const (
	HistoryWeight      = 1
	IncompatibleWeight = 1000
)

type Params struct {
	MaxAttempts int

	// OnAttempt, if set, is called after every attempt with the attempt's
	// score and the best score so far.
	OnAttempt func(attempt, score, best int)
}

var DefaultParams = Params{
	MaxAttempts: 100,
}

type Request struct {
	Free         []string
	Locked       map[int][]string
	Shape        Shape
	Historical   PairSet
	Incompatible PairSet
}

type Solution struct {
	Groups   [][]string
	Score    int
	Attempts int
}

// Key returns a representation of groups that ignores the order of groups
// and of students within them.
func Key(groups [][]string) string {
	var gs [][]string
	for _, g := range groups {
		if len(g) == 0 {
			continue
		}
		members := slices.Clone(g)
		slices.Sort(members)
		gs = append(gs, members)
	}
	slices.SortFunc(gs, func(a, b []string) int { return strings.Compare(a[0], b[0]) })
	var buf strings.Builder
	for _, g := range gs {
		buf.WriteString(strings.Join(g, ","))
		buf.WriteByte(';')
	}
	return buf.String()
}

func Score(groups [][]string, historical, incompatible PairSet) int {
	sc := 0
	for _, g := range groups {
		for i := range g {
			for j := i + 1; j < len(g); j++ {
				p := MakePair(g[i], g[j])
				if _, ok := historical[p]; ok {
					sc += HistoryWeight
				}
				if _, ok := incompatible[p]; ok {
					sc += IncompatibleWeight
				}
			}
		}
	}
	return sc
}

type solverState struct {
	free      []string
	locked    [][]string
	remaining []int

	historical   PairSet
	incompatible PairSet
}

func newSolverState(req Request) (*solverState, error) {
	if req.Shape == nil {
		return nil, fmt.Errorf("%w: no shape", ErrInvalidInput)
	}

	seen := map[string]bool{}
	numLocked := 0
	for slot, members := range req.Locked {
		for _, m := range members {
			if seen[m] {
				return nil, fmt.Errorf("%w: %q locked twice", ErrInvalidInput, m)
			}
			seen[m] = true
		}
		if slot < 0 {
			return nil, fmt.Errorf("%w: locked slot %d", ErrInvalidInput, slot)
		}
		numLocked += len(members)
	}
	for _, m := range req.Free {
		if seen[m] {
			return nil, fmt.Errorf("%w: %q appears twice", ErrInvalidInput, m)
		}
		seen[m] = true
	}

	caps, err := req.Shape.Capacities(len(req.Free) + numLocked)
	if err != nil {
		return nil, err
	}
	if len(caps) < 1 {
		return nil, fmt.Errorf("%w: no groups", ErrInvalidInput)
	}

	s := &solverState{
		free:         slices.Clone(req.Free),
		locked:       make([][]string, len(caps)),
		remaining:    make([]int, len(caps)),
		historical:   req.Historical,
		incompatible: req.Incompatible,
	}
	for slot, members := range req.Locked {
		if slot >= len(caps) {
			return nil, fmt.Errorf("%w: locked slot %d of %d", ErrInvalidInput, slot, len(caps))
		}
		s.locked[slot] = members
	}
	for i, c := range caps {
		s.remaining[i] = max(0, c-len(s.locked[i]))
	}
	return s, nil
}

// fill seats order into the slots after their locked members, in slot order.
func (s *solverState) fill(order []string) [][]string {
	groups := make([][]string, len(s.locked))
	idx := 0
	for slot := range groups {
		g := make([]string, 0, len(s.locked[slot])+s.remaining[slot])
		g = append(g, s.locked[slot]...)
		n := min(s.remaining[slot], len(order)-idx)
		g = append(g, order[idx:idx+n]...)
		idx += n
		groups[slot] = g
	}
	if idx < len(order) {
		last := len(groups) - 1
		groups[last] = append(groups[last], order[idx:]...)
	}
	return groups
}

func (s *solverState) score(groups [][]string) int {
	return Score(groups, s.historical, s.incompatible)
}

// Partition seats the free students around the locked ones, keeping the
// lowest-scoring of up to params.MaxAttempts random arrangements. It stops
// as soon as an arrangement scores zero. Not reaching zero is not an error.
func Partition(req Request, params Params, rng *rand.Rand) (Solution, error) {
	st, err := newSolverState(req)
	if err != nil {
		return Solution{}, err
	}

	if len(st.free) == 0 {
		groups := st.fill(nil)
		return Solution{Groups: groups, Score: st.score(groups)}, nil
	}

	attempts := params.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultParams.MaxAttempts
	}

	best := Solution{Score: -1}
	order := slices.Clone(st.free)
	for attempt := range attempts {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		groups := st.fill(order)
		sc := st.score(groups)
		if best.Score < 0 || sc < best.Score {
			best = Solution{Groups: groups, Score: sc}
		}
		best.Attempts = attempt + 1
		if params.OnAttempt != nil {
			params.OnAttempt(attempt, sc, best.Score)
		}
		if best.Score == 0 {
			break
		}
	}
	return best, nil
}
