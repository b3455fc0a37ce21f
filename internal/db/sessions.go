package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/susu3304/whereami/internal/game"
)

// SessionStore keeps one saved game per player.
type SessionStore struct {
	db       *DB
	playerID string
}

func (db *DB) SessionStore(playerID string) *SessionStore {
	return &SessionStore{db: db, playerID: playerID}
}

func (s *SessionStore) Save(ctx context.Context, snap game.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("%w: encode snapshot: %w", game.ErrPersistenceUnavailable, err)
	}
	_, err = s.db.pool.Exec(ctx, `
		INSERT INTO saved_sessions (player_id, session_id, snapshot, saved_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (player_id) DO UPDATE
		SET session_id = EXCLUDED.session_id, snapshot = EXCLUDED.snapshot, saved_at = EXCLUDED.saved_at
	`, s.playerID, snap.SessionID, data, snap.SavedAt)
	if err != nil {
		return fmt.Errorf("%w: save session: %w", game.ErrPersistenceUnavailable, err)
	}
	return nil
}

func (s *SessionStore) Load(ctx context.Context) (game.Snapshot, error) {
	var data []byte
	err := s.db.pool.QueryRow(ctx,
		"SELECT snapshot FROM saved_sessions WHERE player_id = $1",
		s.playerID,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return game.Snapshot{}, game.ErrNoSavedSession
		}
		return game.Snapshot{}, fmt.Errorf("%w: load session: %w", game.ErrPersistenceUnavailable, err)
	}

	var snap game.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return game.Snapshot{}, fmt.Errorf("%w: decode snapshot: %w", game.ErrInvalidSnapshot, err)
	}
	return snap, nil
}

func (s *SessionStore) Clear(ctx context.Context) error {
	if _, err := s.db.pool.Exec(ctx, "DELETE FROM saved_sessions WHERE player_id = $1", s.playerID); err != nil {
		return fmt.Errorf("%w: clear session: %w", game.ErrPersistenceUnavailable, err)
	}
	return nil
}
