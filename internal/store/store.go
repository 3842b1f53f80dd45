// Package store keeps run history and the resume cursor in sqlite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const cursorKey = "cursor"

type Store struct {
	db *sql.DB
}

// Run is one recorded sifting run.
type Run struct {
	ID             string
	StartedAt      time.Time
	FinishedAt     time.Time
	TotalProcessed int
	Matches        int
	LastCreated    *time.Time
}

// RunInput describes a completed run to record. An empty ID gets a
// generated UUID.
type RunInput struct {
	ID             string
	StartedAt      time.Time
	FinishedAt     time.Time
	TotalProcessed int
	Matches        int
	LastCreated    *time.Time
}

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("path is required")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := migrate(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordRun inserts a run row and, when the run saw posts, advances the
// stored cursor to its LastCreated timestamp. Returns the run ID.
func (s *Store) RecordRun(ctx context.Context, in RunInput) (string, error) {
	if s == nil || s.db == nil {
		return "", errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if in.StartedAt.IsZero() {
		return "", errors.New("started_at is required")
	}
	if in.FinishedAt.IsZero() {
		return "", errors.New("finished_at is required")
	}

	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}

	var lastCreated sql.NullString
	if in.LastCreated != nil {
		lastCreated = sql.NullString{String: formatTime(*in.LastCreated), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, finished_at, total_processed, matches, last_created)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		id,
		formatTime(in.StartedAt),
		formatTime(in.FinishedAt),
		in.TotalProcessed,
		in.Matches,
		lastCreated,
	)
	if err != nil {
		_ = tx.Rollback()
		return "", fmt.Errorf("insert run: %w", err)
	}

	if in.LastCreated != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO metadata(key, value) VALUES(?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, cursorKey, formatTime(*in.LastCreated))
		if err != nil {
			_ = tx.Rollback()
			return "", fmt.Errorf("advance cursor: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit run: %w", err)
	}

	return id, nil
}

// Cursor returns the stored resume timestamp. ok is false when no run
// with posts has been recorded yet.
func (s *Store) Cursor(ctx context.Context) (time.Time, bool, error) {
	if s == nil || s.db == nil {
		return time.Time{}, false, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", cursorKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read cursor: %w", err)
	}

	ts, err := parseTime(value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse cursor: %w", err)
	}
	return ts, true, nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, total_processed, matches, last_created
		FROM runs
		ORDER BY finished_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		var (
			run                 Run
			startedAt, finished string
			lastCreated         sql.NullString
		)
		if err := rows.Scan(&run.ID, &startedAt, &finished, &run.TotalProcessed, &run.Matches, &lastCreated); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if run.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if run.FinishedAt, err = parseTime(finished); err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		if lastCreated.Valid {
			ts, err := parseTime(lastCreated.String)
			if err != nil {
				return nil, fmt.Errorf("parse last_created: %w", err)
			}
			run.LastCreated = &ts
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	return runs, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, value)
}
