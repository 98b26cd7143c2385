package solver

import "time"

// An Entry is one saved grouping of a class. Entries are append-only.
type Entry struct {
	Timestamp         time.Time  `json:"timestamp"`
	Groups            [][]string `json:"groups"`
	IncompatiblePairs []Pair     `json:"incompatiblePairs,omitempty"`
}

func (e Entry) Incompatible() PairSet {
	return NewPairSet(e.IncompatiblePairs...)
}

// HistoricalPairs returns every pair of students that has shared a group in
// any of the entries. All entries count the same regardless of age.
func HistoricalPairs(entries []Entry) PairSet {
	pairs := PairSet{}
	for _, e := range entries {
		for _, g := range e.Groups {
			pairs.AddGroup(g)
		}
	}
	return pairs
}

// CurrentIncompatible returns the incompatibility set saved with the most
// recent entry, or an empty set when there is no history.
func CurrentIncompatible(entries []Entry) PairSet {
	if len(entries) == 0 {
		return PairSet{}
	}
	return entries[len(entries)-1].Incompatible()
}
