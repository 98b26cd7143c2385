package store

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

var sqliteQueries = queries{
	entries: `SELECT created_at, groups, incompatible_pairs FROM history_entries
		WHERE class_id = ? ORDER BY id`,
	entryAt: `SELECT created_at, groups, incompatible_pairs FROM history_entries
		WHERE class_id = ? ORDER BY id LIMIT 1 OFFSET ?`,
	insertEntry: `INSERT INTO history_entries (class_id, created_at, groups, incompatible_pairs)
		VALUES (?, ?, ?, ?) RETURNING id`,
	entryIndex:   "SELECT COUNT(*) - 1 FROM history_entries WHERE class_id = ? AND id <= ?",
	incompatible: "SELECT pair FROM incompatible_pairs WHERE class_id = ? ORDER BY pair",
	mark:         "INSERT OR IGNORE INTO incompatible_pairs (class_id, pair) VALUES (?, ?)",
	unmark:       "DELETE FROM incompatible_pairs WHERE class_id = ? AND pair = ?",
	unmarkAll:    "DELETE FROM incompatible_pairs WHERE class_id = ?",
}

// OpenSQLite opens (creating if needed) the database file at path.
func OpenSQLite(path string) (Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &sqlStore{
		db:        db,
		q:         sqliteQueries,
		pairsArg:  encodeJSONStrings,
		pairsDest: func(dest *[]string) any { return jsonStrings{dest} },
	}, nil
}

func encodeJSONStrings(s []string) (any, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// jsonStrings scans a JSON array column into a []string.
type jsonStrings struct {
	dest *[]string
}

func (j jsonStrings) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*j.dest = nil
		return nil
	case string:
		b = []byte(v)
	case []byte:
		b = v
	default:
		return fmt.Errorf("cannot scan %T into string list", src)
	}
	return json.Unmarshal(b, j.dest)
}
