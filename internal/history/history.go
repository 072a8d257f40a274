// Package history keeps an audit log of executed plans in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

type Entry struct {
	ID         int64         `json:"id"`
	Command    string        `json:"command"`
	Risk       string        `json:"risk"`
	Outcome    string        `json:"outcome"`
	ExitCode   int           `json:"exit_code"`
	Duration   time.Duration `json:"duration"`
	Workdir    string        `json:"workdir"`
	Transcript string        `json:"transcript,omitempty"`
	At         time.Time     `json:"at"`
}

type Store struct {
	db *sql.DB
}

const schema = `CREATE TABLE IF NOT EXISTS executions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	command     TEXT    NOT NULL,
	risk        TEXT    NOT NULL,
	outcome     TEXT    NOT NULL,
	exit_code   INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	workdir     TEXT    NOT NULL DEFAULT '',
	transcript  TEXT    NOT NULL DEFAULT '',
	at          INTEGER NOT NULL
)`

// Open opens or creates the database at path. Use ":memory:" in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	// One writer; also keeps a ":memory:" database alive across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO executions
		(command, risk, outcome, exit_code, duration_ms, workdir, transcript, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Command, e.Risk, e.Outcome, e.ExitCode, e.Duration.Milliseconds(), e.Workdir, e.Transcript, e.At.UnixMilli())
	if err != nil {
		return fmt.Errorf("history: record: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, command, risk, outcome, exit_code, duration_ms, workdir, transcript, at
		FROM executions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e     Entry
			durMS int64
			atMS  int64
		)
		if err := rows.Scan(&e.ID, &e.Command, &e.Risk, &e.Outcome, &e.ExitCode, &durMS, &e.Workdir, &e.Transcript, &atMS); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		e.Duration = time.Duration(durMS) * time.Millisecond
		e.At = time.UnixMilli(atMS)
		out = append(out, e)
	}
	return out, rows.Err()
}
