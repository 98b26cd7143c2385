package store_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groups/solver"
	"groups/store"
)

func openSQLite(t *testing.T) store.Store {
	t.Helper()
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLite(t *testing.T) {
	runStoreTests(t, openSQLite(t), "701")
}

func TestPostgres(t *testing.T) {
	dsn := os.Getenv("PGCONN")
	if dsn == "" {
		t.Skip("PGCONN not set")
	}
	s, err := store.OpenPostgres(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	runStoreTests(t, s, fmt.Sprintf("test-%d", time.Now().UnixNano()))
}

func TestSQLite_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := store.OpenSQLite(path)
	require.NoError(t, err)
	_, err = s.Append(ctx, "702", solver.Entry{Groups: [][]string{{"A", "B"}}})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = store.OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()
	entries, err := s.Entries(ctx, "702")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, [][]string{{"A", "B"}}, entries[0].Groups)
}

func runStoreTests(t *testing.T, s store.Store, class string) {
	ctx := context.Background()
	other := class + "-other"

	t.Run("ping", func(t *testing.T) {
		require.NoError(t, s.Ping(ctx))
	})

	t.Run("empty history", func(t *testing.T) {
		entries, err := s.Entries(ctx, class)
		require.NoError(t, err)
		assert.NotNil(t, entries)
		assert.Empty(t, entries)

		_, err = s.Entry(ctx, class, 0)
		assert.ErrorIs(t, err, store.ErrNotFound)

		set, err := s.Incompatible(ctx, class)
		require.NoError(t, err)
		assert.Empty(t, set)
	})

	t.Run("incompatible", func(t *testing.T) {
		err := s.MarkIncompatible(ctx, class, []solver.Pair{"A|B", "C|D"})
		require.NoError(t, err)
		// Marking again is a no-op.
		require.NoError(t, s.MarkIncompatible(ctx, class, []solver.Pair{"A|B"}))

		set, err := s.Incompatible(ctx, class)
		require.NoError(t, err)
		assert.Equal(t, []solver.Pair{"A|B", "C|D"}, set.Sorted())

		require.NoError(t, s.UnmarkIncompatible(ctx, class, "C|D"))
		assert.ErrorIs(t, s.UnmarkIncompatible(ctx, class, "C|D"), store.ErrNotFound)

		set, err = s.Incompatible(ctx, other)
		require.NoError(t, err)
		assert.Empty(t, set)
	})

	t.Run("append and read back", func(t *testing.T) {
		first := time.Date(2024, 9, 2, 8, 30, 0, 0, time.UTC)
		idx, err := s.Append(ctx, class, solver.Entry{
			Timestamp: first,
			Groups:    [][]string{{"A", "C"}, {"B", "D"}},
		})
		require.NoError(t, err)
		assert.Equal(t, 0, idx)

		idx, err = s.Append(ctx, other, solver.Entry{Groups: [][]string{{"X", "Y"}}})
		require.NoError(t, err)
		assert.Equal(t, 0, idx)

		idx, err = s.Append(ctx, class, solver.Entry{
			Timestamp:         first.Add(24 * time.Hour),
			Groups:            [][]string{{"A", "D"}, {"B", "C"}, {}},
			IncompatiblePairs: []solver.Pair{},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, idx)

		entries, err := s.Entries(ctx, class)
		require.NoError(t, err)
		require.Len(t, entries, 2)

		assert.True(t, first.Equal(entries[0].Timestamp), "got %v", entries[0].Timestamp)
		assert.Equal(t, [][]string{{"A", "C"}, {"B", "D"}}, entries[0].Groups)
		// No pairs given: the current set was saved with the entry.
		assert.Equal(t, []solver.Pair{"A|B"}, entries[0].IncompatiblePairs)

		assert.Equal(t, [][]string{{"A", "D"}, {"B", "C"}, {}}, entries[1].Groups)
		assert.Empty(t, entries[1].IncompatiblePairs)

		// The explicit empty list cleared the class's set.
		set, err := s.Incompatible(ctx, class)
		require.NoError(t, err)
		assert.Empty(t, set)
		assert.Equal(t, solver.CurrentIncompatible(entries), set)

		e, err := s.Entry(ctx, class, 1)
		require.NoError(t, err)
		assert.Equal(t, entries[1].Groups, e.Groups)

		_, err = s.Entry(ctx, class, 2)
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.Entry(ctx, class, -1)
		assert.ErrorIs(t, err, store.ErrNotFound)

		hist := solver.HistoricalPairs(entries)
		assert.Equal(t, []solver.Pair{"A|C", "A|D", "B|C", "B|D"}, hist.Sorted())
	})

	t.Run("explicit pairs replace the current set", func(t *testing.T) {
		require.NoError(t, s.MarkIncompatible(ctx, class, []solver.Pair{"C|D"}))
		_, err := s.Append(ctx, class, solver.Entry{
			Groups:            [][]string{{"A", "C"}, {"B", "D"}},
			IncompatiblePairs: []solver.Pair{"A|B", "B|C"},
		})
		require.NoError(t, err)

		set, err := s.Incompatible(ctx, class)
		require.NoError(t, err)
		assert.Equal(t, []solver.Pair{"A|B", "B|C"}, set.Sorted())

		entries, err := s.Entries(ctx, class)
		require.NoError(t, err)
		assert.Equal(t, solver.CurrentIncompatible(entries), set)

		set, err = s.Incompatible(ctx, other)
		require.NoError(t, err)
		assert.Empty(t, set)
	})

	t.Run("replace", func(t *testing.T) {
		require.NoError(t, s.ReplaceIncompatible(ctx, class, []solver.Pair{"A|D"}))
		set, err := s.Incompatible(ctx, class)
		require.NoError(t, err)
		assert.Equal(t, []solver.Pair{"A|D"}, set.Sorted())

		require.NoError(t, s.ReplaceIncompatible(ctx, class, nil))
		set, err = s.Incompatible(ctx, class)
		require.NoError(t, err)
		assert.Empty(t, set)
	})

	t.Run("zero timestamp is set", func(t *testing.T) {
		before := time.Now().Add(-time.Second)
		idx, err := s.Append(ctx, class, solver.Entry{Groups: [][]string{{"A"}}})
		require.NoError(t, err)
		e, err := s.Entry(ctx, class, idx)
		require.NoError(t, err)
		assert.True(t, e.Timestamp.After(before))
	})
}
