// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package resume

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/playctl/internal/persistence/sqlite"
)

const schemaVersion = 1

var errClosed = errors.New("resume store closed")

// SqliteStore implements Store using SQLite.
type SqliteStore struct {
	DB   *sql.DB
	path string
}

// NewSqliteStore opens (and migrates) a SQLite resume store.
func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}

	s := &SqliteStore{DB: db, path: dbPath}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("resume store: migration failed: %w", err)
	}
	return s, nil
}

// Path returns the database file.
func (s *SqliteStore) Path() string { return s.path }

func (s *SqliteStore) migrate() error {
	current, err := sqlite.UserVersion(s.DB)
	if err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS resume_positions (
		media_key TEXT PRIMARY KEY,
		position_ms INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		finished BOOLEAN NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_resume_updated ON resume_positions(updated_at);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SqliteStore) Put(ctx context.Context, key string, state *State) error {
	query := `
	INSERT INTO resume_positions (media_key, position_ms, duration_ms, finished, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(media_key) DO UPDATE SET
		position_ms = excluded.position_ms,
		duration_ms = excluded.duration_ms,
		finished = excluded.finished,
		updated_at = excluded.updated_at
	`
	_, err := s.DB.ExecContext(ctx, query,
		key, state.PositionMs, state.DurationMs, state.Finished, state.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *SqliteStore) Get(ctx context.Context, key string) (*State, error) {
	query := `SELECT position_ms, duration_ms, finished, updated_at FROM resume_positions WHERE media_key = ?`
	var state State
	var updatedAt string
	err := s.DB.QueryRowContext(ctx, query, key).Scan(
		&state.PositionMs, &state.DurationMs, &state.Finished, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	state.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &state, nil
}

func (s *SqliteStore) Delete(ctx context.Context, key string) error {
	_, err := s.DB.ExecContext(ctx, "DELETE FROM resume_positions WHERE media_key = ?", key)
	return err
}

func (s *SqliteStore) Close() error {
	return s.DB.Close()
}

// Ping checks that the database is reachable.
func (s *SqliteStore) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}
