// Package localstore keeps a single player's saved game and recent history in
// a local libSQL file.
package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/susu3304/whereami/internal/game"
)

// MaxHistory is how many completed games are kept; older ones are dropped.
const MaxHistory = 50

type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path (":memory:" for a throwaway
// store) and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("libsql", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection: an in-memory database is per connection, and a single
	// writer needs no more.
	db.SetMaxOpenConns(1)

	// libSQL rejects Exec for PRAGMAs that return rows.
	for _, p := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		rows, err := db.QueryContext(ctx, p)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("executing %s: %w", p, err)
		}
		rows.Close()
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS current_game (
			slot INTEGER PRIMARY KEY CHECK (slot = 1),
			session_id TEXT NOT NULL,
			snapshot TEXT NOT NULL,
			saved_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS game_history (
			session_id TEXT PRIMARY KEY,
			completed_at INTEGER NOT NULL,
			summary TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_game_history_completed ON game_history(completed_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrating: %w", err)
		}
	}
	return nil
}

func (s *Store) Save(ctx context.Context, snap game.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("%w: encode snapshot: %w", game.ErrPersistenceUnavailable, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO current_game (slot, session_id, snapshot, saved_at) VALUES (1, ?, ?, ?)
		ON CONFLICT (slot) DO UPDATE
		SET session_id = excluded.session_id, snapshot = excluded.snapshot, saved_at = excluded.saved_at
	`, snap.SessionID, string(data), snap.SavedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("%w: save: %w", game.ErrPersistenceUnavailable, err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context) (game.Snapshot, error) {
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT snapshot FROM current_game WHERE slot = 1").Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return game.Snapshot{}, game.ErrNoSavedSession
	}
	if err != nil {
		return game.Snapshot{}, fmt.Errorf("%w: load: %w", game.ErrPersistenceUnavailable, err)
	}

	var snap game.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return game.Snapshot{}, fmt.Errorf("%w: decode snapshot: %w", game.ErrInvalidSnapshot, err)
	}
	return snap, nil
}

func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM current_game"); err != nil {
		return fmt.Errorf("%w: clear: %w", game.ErrPersistenceUnavailable, err)
	}
	return nil
}

// Record appends a completed game and trims the history to MaxHistory.
func (s *Store) Record(ctx context.Context, sum game.Summary) error {
	data, err := json.Marshal(sum)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: record: %w", game.ErrPersistenceUnavailable, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO game_history (session_id, completed_at, summary) VALUES (?, ?, ?)",
		sum.SessionID, sum.CompletedAt.UnixNano(), string(data),
	); err != nil {
		return fmt.Errorf("%w: record: %w", game.ErrPersistenceUnavailable, err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM game_history WHERE session_id NOT IN (
			SELECT session_id FROM game_history ORDER BY completed_at DESC LIMIT ?
		)
	`, MaxHistory); err != nil {
		return fmt.Errorf("%w: trim history: %w", game.ErrPersistenceUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: record: %w", game.ErrPersistenceUnavailable, err)
	}
	return nil
}

// RecentSummaries returns up to limit games, newest first.
func (s *Store) RecentSummaries(ctx context.Context, limit int) ([]game.Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT summary FROM game_history ORDER BY completed_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("%w: read history: %w", game.ErrPersistenceUnavailable, err)
	}
	defer rows.Close()

	var out []game.Summary
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var sum game.Summary
		if err := json.Unmarshal([]byte(data), &sum); err != nil {
			return nil, fmt.Errorf("decoding summary: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Statistics aggregates the kept history.
func (s *Store) Statistics(ctx context.Context) (game.Statistics, error) {
	history, err := s.RecentSummaries(ctx, MaxHistory)
	if err != nil {
		return game.Statistics{}, err
	}
	return game.ComputeStatistics(history), nil
}
