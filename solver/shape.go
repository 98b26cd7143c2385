package solver

import "fmt"

// A Shape resolves the number of students into per-slot capacities.
type Shape interface {
	Capacities(total int) ([]int, error)
}

// EvenGroups splits students into a fixed number of groups whose sizes
// differ by at most one.
type EvenGroups struct {
	Groups int
}

func (s EvenGroups) Capacities(total int) ([]int, error) {
	if s.Groups < 1 {
		return nil, fmt.Errorf("%w: group count %d", ErrInvalidInput, s.Groups)
	}
	base, rem := total/s.Groups, total%s.Groups
	caps := make([]int, s.Groups)
	for i := range caps {
		caps[i] = base
		if i < rem {
			caps[i]++
		}
	}
	return caps, nil
}

// FixedSize fills groups of Size students; the last group takes the remainder.
type FixedSize struct {
	Size int
}

func (s FixedSize) Capacities(total int) ([]int, error) {
	if s.Size < 1 {
		return nil, fmt.Errorf("%w: group size %d", ErrInvalidInput, s.Size)
	}
	n := max(1, (total+s.Size-1)/s.Size)
	caps := make([]int, n)
	for i := range caps {
		caps[i] = s.Size
	}
	caps[n-1] = total - s.Size*(n-1)
	return caps, nil
}
