package solver_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groups/solver"
)

func TestHistoricalPairs_Empty(t *testing.T) {
	assert.Empty(t, solver.HistoricalPairs(nil))
	assert.Empty(t, solver.HistoricalPairs([]solver.Entry{}))
}

func TestHistoricalPairs_SingleGroup(t *testing.T) {
	entries := []solver.Entry{{Groups: [][]string{{"A", "B", "C"}}}}
	got := solver.HistoricalPairs(entries)
	assert.Equal(t, solver.NewPairSet("A|B", "A|C", "B|C"), got)

	// Same input, same set.
	assert.Equal(t, got, solver.HistoricalPairs(entries))
}

func TestHistoricalPairs_AcrossEntries(t *testing.T) {
	entries := []solver.Entry{
		{Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Groups: [][]string{{"A", "B"}, {"C", "D"}}},
		{Timestamp: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), Groups: [][]string{{"B", "A"}, {"C"}, {}}},
		{Timestamp: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Groups: [][]string{{"D", "E"}}},
	}
	got := solver.HistoricalPairs(entries)
	assert.Equal(t, []solver.Pair{"A|B", "C|D", "D|E"}, got.Sorted())
}

func TestCurrentIncompatible(t *testing.T) {
	assert.Empty(t, solver.CurrentIncompatible(nil))

	entries := []solver.Entry{
		{IncompatiblePairs: []solver.Pair{"A|B"}},
		{IncompatiblePairs: []solver.Pair{"C|D", "A|E"}},
	}
	got := solver.CurrentIncompatible(entries)
	require.Len(t, got, 2)
	assert.True(t, got.Has("D", "C"))
	assert.False(t, got.Has("A", "B"))
}
