package store

import (
	"database/sql"
	_ "embed"
	"fmt"

	"github.com/lib/pq"
)

//go:embed schema.sql
var postgresSchema string

var postgresQueries = queries{
	entries: `SELECT created_at, groups, incompatible_pairs FROM history_entries
		WHERE class_id = $1 ORDER BY id`,
	entryAt: `SELECT created_at, groups, incompatible_pairs FROM history_entries
		WHERE class_id = $1 ORDER BY id LIMIT 1 OFFSET $2`,
	insertEntry: `INSERT INTO history_entries (class_id, created_at, groups, incompatible_pairs)
		VALUES ($1, $2, $3::jsonb, $4) RETURNING id`,
	entryIndex:   "SELECT COUNT(*) - 1 FROM history_entries WHERE class_id = $1 AND id <= $2",
	incompatible: "SELECT pair FROM incompatible_pairs WHERE class_id = $1 ORDER BY pair",
	mark:         "INSERT INTO incompatible_pairs (class_id, pair) VALUES ($1, $2) ON CONFLICT DO NOTHING",
	unmark:       "DELETE FROM incompatible_pairs WHERE class_id = $1 AND pair = $2",
	unmarkAll:    "DELETE FROM incompatible_pairs WHERE class_id = $1",
}

// OpenPostgres connects to dsn and applies the schema.
func OpenPostgres(dsn string) (Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.Exec(postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &sqlStore{
		db:        db,
		q:         postgresQueries,
		pairsArg:  func(pairs []string) (any, error) { return pq.Array(pairs), nil },
		pairsDest: func(dest *[]string) any { return pq.Array(dest) },
	}, nil
}
