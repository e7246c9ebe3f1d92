// Package store implements the relational persistence layer over an
// embedded SQLite database (modernc driver, no cgo). It exposes a typed
// query-specification API instead of string-built SQL: callers describe a
// select with a Query value and a conjunction of equality predicates, and
// a single interpreter renders the statement.
//
// Every statement runs in its own implicit transaction. Multi-step
// operations that need atomicity are the caller's responsibility to
// sequence and to tolerate partially completing.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/haukened/surfguard/internal/guard/common/log"
)

// ErrNoMigrationPath is returned when the on-disk schema version has no
// registered migration to the current version. Fatal at open.
var ErrNoMigrationPath = errors.New("no migration path for schema version")

// Row is one table row keyed by column name. Joined columns appear under
// their "table.column" alias.
type Row map[string]any

// Store is the shared relational store. Safe for concurrent use; the
// underlying connection pool serializes writes.
type Store struct {
	db     *sql.DB
	logger log.Logger
}

// Open opens (creating if necessary) the database at path, applies the
// connection pragmas, and brings the schema up to the current version.
// Use ":memory:" for an in-memory database in tests.
func Open(path string, logger log.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	// WAL keeps readers unblocked during recording bursts; the busy
	// timeout covers writer contention between recorder goroutines.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, logger: logger}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// scanRows converts sql.Rows into Row maps, normalizing []byte to string.
func scanRows(rows *sql.Rows, visit func(Row) bool) error {
	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[c] = v
		}
		if !visit(row) {
			break
		}
	}
	return rows.Err()
}

// Int64 reads an integer column out of a Row, tolerating the driver's
// numeric representations. Returns 0 when absent or NULL.
func (r Row) Int64(col string) int64 {
	switch v := r[col].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// String reads a text column out of a Row. Returns "" when absent or NULL.
func (r Row) String(col string) string {
	if v, ok := r[col].(string); ok {
		return v
	}
	return ""
}
