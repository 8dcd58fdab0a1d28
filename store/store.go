// Package store keeps a history of finished counting sessions in SQLite so
// counts can be compared across runs and sampling locations.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/swdee/go-planktrack/export"
	"os"
	"path/filepath"
	"time"
)

var (
	// ErrNotFound is returned when a session does not exist
	ErrNotFound = errors.New("session not found")
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	location TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT '',
	model TEXT NOT NULL DEFAULT '',
	started_at TIMESTAMP NOT NULL,
	duration_seconds REAL NOT NULL,
	frames INTEGER NOT NULL,
	total INTEGER NOT NULL,
	volume_ml REAL NOT NULL DEFAULT 0,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS session_counts (
	session_id TEXT NOT NULL,
	class TEXT NOT NULL,
	count INTEGER NOT NULL,
	PRIMARY KEY (session_id, class),
	FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_sessions_location ON sessions(location, started_at);
`

// Session is a stored session
type Session struct {
	ID              string         `json:"id"`
	Location        string         `json:"location"`
	Source          string         `json:"source"`
	Model           string         `json:"model"`
	StartedAt       time.Time      `json:"started_at"`
	DurationSeconds float64        `json:"duration_seconds"`
	Frames          int            `json:"frames"`
	Total           int            `json:"total"`
	VolumeML        float64        `json:"volume_ml"`
	Counts          map[string]int `json:"counts"`
}

// Store is the session history database
type Store struct {
	db *sql.DB
}

// Open opens or creates the database file
func Open(path string) (*Store, error) {

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=1")

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// sqlite handles a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSession stores the report of a finished session and returns its ID.
// A new ID is generated when the report has none.
func (s *Store) SaveSession(ctx context.Context, rep export.Report) (string, error) {

	m := rep.Metadata
	id := m.SessionID

	if id == "" {
		id = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)

	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, location, source, model, started_at,
			duration_seconds, frames, total, volume_ml)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, m.Location, m.Source, m.Model, m.StartedAt.UTC(),
		m.DurationSeconds, m.Frames, rep.Total, m.VolumeML,
	)

	if err != nil {
		return "", fmt.Errorf("failed to insert session: %w", err)
	}

	for class, n := range rep.Counts {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO session_counts (session_id, class, count) VALUES (?, ?, ?)`,
			id, class, n)

		if err != nil {
			return "", fmt.Errorf("failed to insert count for %s: %w", class, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit session: %w", err)
	}

	return id, nil
}

// ListSessions returns the most recent sessions first, optionally limited to
// one location.  A limit <= 0 returns all sessions.
func (s *Store) ListSessions(ctx context.Context, location string, limit int) ([]Session, error) {

	query := `SELECT id, location, source, model, started_at, duration_seconds,
		frames, total, volume_ml FROM sessions`
	args := []any{}

	if location != "" {
		query += ` WHERE location = ?`
		args = append(args, location)
	}

	query += ` ORDER BY started_at DESC, created_at DESC`

	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)

	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}

	defer rows.Close()

	var out []Session

	for rows.Next() {
		var sess Session

		err := rows.Scan(&sess.ID, &sess.Location, &sess.Source, &sess.Model,
			&sess.StartedAt, &sess.DurationSeconds, &sess.Frames, &sess.Total,
			&sess.VolumeML)

		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}

		out = append(out, sess)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		if out[i].Counts, err = s.counts(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// Session returns a single session by ID
func (s *Store) Session(ctx context.Context, id string) (Session, error) {

	var sess Session

	err := s.db.QueryRowContext(ctx, `SELECT id, location, source, model,
		started_at, duration_seconds, frames, total, volume_ml
		FROM sessions WHERE id = ?`, id).Scan(&sess.ID, &sess.Location,
		&sess.Source, &sess.Model, &sess.StartedAt, &sess.DurationSeconds,
		&sess.Frames, &sess.Total, &sess.VolumeML)

	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if err != nil {
		return Session{}, fmt.Errorf("failed to query session: %w", err)
	}

	sess.Counts, err = s.counts(ctx, id)

	return sess, err
}

// counts returns the per class counts of a session
func (s *Store) counts(ctx context.Context, id string) (map[string]int, error) {

	rows, err := s.db.QueryContext(ctx,
		`SELECT class, count FROM session_counts WHERE session_id = ?`, id)

	if err != nil {
		return nil, fmt.Errorf("failed to query counts: %w", err)
	}

	defer rows.Close()

	out := make(map[string]int)

	for rows.Next() {
		var class string
		var n int

		if err := rows.Scan(&class, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}

		out[class] = n
	}

	return out, rows.Err()
}

// SpeciesTotals sums the counts of every stored session per class,
// optionally for one location only
func (s *Store) SpeciesTotals(ctx context.Context, location string) (map[string]int, error) {

	query := `SELECT c.class, SUM(c.count) FROM session_counts c
		JOIN sessions s ON s.id = c.session_id`
	args := []any{}

	if location != "" {
		query += ` WHERE s.location = ?`
		args = append(args, location)
	}

	query += ` GROUP BY c.class`

	rows, err := s.db.QueryContext(ctx, query, args...)

	if err != nil {
		return nil, fmt.Errorf("failed to query species totals: %w", err)
	}

	defer rows.Close()

	out := make(map[string]int)

	for rows.Next() {
		var class string
		var n int

		if err := rows.Scan(&class, &n); err != nil {
			return nil, fmt.Errorf("failed to scan species total: %w", err)
		}

		out[class] = n
	}

	return out, rows.Err()
}
