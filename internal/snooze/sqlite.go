package snooze

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS snooze (
	id             INTEGER PRIMARY KEY CHECK (id = 1),
	disabled_until INTEGER NOT NULL
);
`

// SQLiteStore keeps the record in a one-row SQLite table, for hosts that
// already keep their state in a database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) a database file at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("snooze: open %s: %w", path, err)
	}
	s, err := NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore uses an existing handle and ensures the schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("snooze: schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context) (int64, bool, error) {
	var until int64
	err := s.db.QueryRowContext(ctx, `SELECT disabled_until FROM snooze WHERE id = 1`).Scan(&until)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("snooze: get: %w", err)
	}
	return until, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, until int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snooze (id, disabled_until) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET disabled_until = excluded.disabled_until
	`, until)
	if err != nil {
		return fmt.Errorf("snooze: set: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snooze`); err != nil {
		return fmt.Errorf("snooze: clear: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
