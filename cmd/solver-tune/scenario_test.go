package main

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groups/solver"
)

func TestLoadScenario(t *testing.T) {
	sc, err := loadScenario("testdata/scenario.yaml")
	require.NoError(t, err)
	assert.Len(t, sc.Roster, 12)
	assert.Equal(t, map[int][]string{0: {"Ana"}}, sc.Locked)

	req := sc.request()
	assert.Len(t, req.Free, 11)
	assert.NotContains(t, req.Free, "Ana")
	assert.Equal(t, solver.EvenGroups{Groups: 3}, req.Shape)
	assert.True(t, req.Historical.Has("Ana", "Ben"))
	assert.True(t, req.Incompatible.Has("Dev", "Gus"))
	assert.True(t, req.Incompatible.Has("Ivan", "Eli"))
	assert.Len(t, req.Incompatible, 5)

	sol, err := solver.Partition(req, solver.DefaultParams, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Contains(t, sol.Groups[0], "Ana")
	assert.Less(t, sol.Score, solver.IncompatibleWeight)
}

func TestLoadScenario_Invalid(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		return p
	}

	_, err := loadScenario(write("empty.yaml", "shape: {groups: 2}\n"))
	assert.Error(t, err)

	_, err = loadScenario(write("noshape.yaml", "roster: [A, B]\n"))
	assert.Error(t, err)

	_, err = loadScenario(write("both.yaml", "roster: [A, B]\nshape: {groups: 2, size: 2}\n"))
	assert.Error(t, err)

	_, err = loadScenario(write("pair.yaml", "roster: [A, B]\nshape: {groups: 1}\nhistory:\n  - groups: [[A, B]]\n    incompatible_pairs: [A]\n"))
	assert.ErrorContains(t, err, "invalid pair")

	sc, err := loadScenario(write("size.yaml", "roster: [A, B, C]\nshape: {size: 2}\n"))
	require.NoError(t, err)
	assert.Equal(t, solver.FixedSize{Size: 2}, sc.request().Shape)
}

func TestScenario_LatestEntryPairs(t *testing.T) {
	sc := &scenario{Roster: []string{"A", "B", "C", "D"}}
	sc.Shape.Groups = 2
	sc.History = []historyEntry{
		{Groups: [][]string{{"A", "C"}, {"B", "D"}}, IncompatiblePairs: []string{"A|B"}},
		{Groups: [][]string{{"A", "D"}, {"B", "C"}}, IncompatiblePairs: []string{"D|C"}},
	}

	req := sc.request()
	assert.Equal(t, []solver.Pair{"C|D"}, req.Incompatible.Sorted())
}

func TestParseIntList(t *testing.T) {
	assert.Equal(t, []int{10, 50, 100}, parseIntList("10, 50,x,100,-3"))
}
