// Package store persists the grouping history of each class and the pairs of
// students currently marked incompatible.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"groups/solver"
)

var ErrNotFound = errors.New("not found")

// Store is append-only for history: entries are never changed once saved.
type Store interface {
	Entries(ctx context.Context, classID string) ([]solver.Entry, error)
	Entry(ctx context.Context, classID string, index int) (solver.Entry, error)
	// Append saves e and returns its index. Afterwards the class's current
	// incompatible set equals the entry's: explicit pairs replace the set,
	// nil pairs get a snapshot of it.
	Append(ctx context.Context, classID string, e solver.Entry) (int, error)

	Incompatible(ctx context.Context, classID string) (solver.PairSet, error)
	MarkIncompatible(ctx context.Context, classID string, pairs []solver.Pair) error
	UnmarkIncompatible(ctx context.Context, classID string, pair solver.Pair) error
	ReplaceIncompatible(ctx context.Context, classID string, pairs []solver.Pair) error

	Ping(ctx context.Context) error
	Close() error
}

type queries struct {
	entries      string
	entryAt      string
	insertEntry  string
	entryIndex   string
	incompatible string
	mark         string
	unmark       string
	unmarkAll    string
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// sqlStore is shared by both backends; they differ in SQL and in how a list
// of pairs is stored.
type sqlStore struct {
	db        *sql.DB
	q         queries
	pairsArg  func([]string) (any, error)
	pairsDest func(*[]string) any
}

func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

func (s *sqlStore) scanEntry(row interface{ Scan(...any) error }) (solver.Entry, error) {
	var e solver.Entry
	var groups []byte
	var pairs []string
	if err := row.Scan(&e.Timestamp, &groups, s.pairsDest(&pairs)); err != nil {
		return e, err
	}
	if err := json.Unmarshal(groups, &e.Groups); err != nil {
		return e, fmt.Errorf("decode groups: %w", err)
	}
	e.IncompatiblePairs = make([]solver.Pair, 0, len(pairs))
	for _, p := range pairs {
		e.IncompatiblePairs = append(e.IncompatiblePairs, solver.Pair(p))
	}
	return e, nil
}

func (s *sqlStore) Entries(ctx context.Context, classID string) ([]solver.Entry, error) {
	rows, err := s.db.QueryContext(ctx, s.q.entries, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []solver.Entry{}
	for rows.Next() {
		e, err := s.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *sqlStore) Entry(ctx context.Context, classID string, index int) (solver.Entry, error) {
	if index < 0 {
		return solver.Entry{}, ErrNotFound
	}
	e, err := s.scanEntry(s.db.QueryRowContext(ctx, s.q.entryAt, classID, index))
	if errors.Is(err, sql.ErrNoRows) {
		return solver.Entry{}, ErrNotFound
	}
	return e, err
}

func (s *sqlStore) Append(ctx context.Context, classID string, e solver.Entry) (int, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Groups == nil {
		e.Groups = [][]string{}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if e.IncompatiblePairs == nil {
		current, err := s.incompatible(ctx, tx, classID)
		if err != nil {
			return 0, err
		}
		e.IncompatiblePairs = current.Sorted()
	} else if err := s.replaceIncompatible(ctx, tx, classID, e.IncompatiblePairs); err != nil {
		return 0, err
	}

	groups, err := json.Marshal(e.Groups)
	if err != nil {
		return 0, fmt.Errorf("encode groups: %w", err)
	}
	pairs := make([]string, len(e.IncompatiblePairs))
	for i, p := range e.IncompatiblePairs {
		pairs[i] = string(p)
	}
	pairsArg, err := s.pairsArg(pairs)
	if err != nil {
		return 0, fmt.Errorf("encode pairs: %w", err)
	}

	var id int64
	if err := tx.QueryRowContext(ctx, s.q.insertEntry, classID, e.Timestamp, string(groups), pairsArg).Scan(&id); err != nil {
		return 0, err
	}
	var index int
	if err := tx.QueryRowContext(ctx, s.q.entryIndex, classID, id).Scan(&index); err != nil {
		return 0, err
	}
	return index, tx.Commit()
}

func (s *sqlStore) Incompatible(ctx context.Context, classID string) (solver.PairSet, error) {
	return s.incompatible(ctx, s.db, classID)
}

func (s *sqlStore) incompatible(ctx context.Context, q querier, classID string) (solver.PairSet, error) {
	rows, err := q.QueryContext(ctx, s.q.incompatible, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	set := solver.PairSet{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		set[solver.Pair(p)] = struct{}{}
	}
	return set, rows.Err()
}

func (s *sqlStore) MarkIncompatible(ctx context.Context, classID string, pairs []solver.Pair) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, p := range pairs {
		if _, err := tx.ExecContext(ctx, s.q.mark, classID, string(p)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqlStore) ReplaceIncompatible(ctx context.Context, classID string, pairs []solver.Pair) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.replaceIncompatible(ctx, tx, classID, pairs); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqlStore) replaceIncompatible(ctx context.Context, q querier, classID string, pairs []solver.Pair) error {
	if _, err := q.ExecContext(ctx, s.q.unmarkAll, classID); err != nil {
		return err
	}
	for _, p := range pairs {
		if _, err := q.ExecContext(ctx, s.q.mark, classID, string(p)); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqlStore) UnmarkIncompatible(ctx context.Context, classID string, pair solver.Pair) error {
	result, err := s.db.ExecContext(ctx, s.q.unmark, classID, string(pair))
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
