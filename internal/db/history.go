package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/susu3304/whereami/internal/game"
)

// History records completed games for one player.
type History struct {
	db       *DB
	playerID string
}

func (db *DB) History(playerID string) *History {
	return &History{db: db, playerID: playerID}
}

// Record stores the summary. Recording the same session twice keeps the
// first copy.
func (h *History) Record(ctx context.Context, sum game.Summary) error {
	rounds, err := json.Marshal(sum.Rounds)
	if err != nil {
		return err
	}
	_, err = h.db.pool.Exec(ctx, `
		INSERT INTO game_history (session_id, player_id, game_id, mode, total_score, max_possible, rounds, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id) DO NOTHING
	`, sum.SessionID, h.playerID, sum.GameID, string(sum.Mode), sum.TotalScore, sum.MaxPossible, rounds, sum.CompletedAt)
	if err != nil {
		return fmt.Errorf("%w: record history: %w", game.ErrPersistenceUnavailable, err)
	}
	return nil
}

// RecentSummaries returns the player's latest games, newest first.
func (h *History) RecentSummaries(ctx context.Context, limit int) ([]game.Summary, error) {
	rows, err := h.db.pool.Query(ctx, `
		SELECT session_id, game_id, mode, total_score, max_possible, rounds, completed_at
		FROM game_history
		WHERE player_id = $1
		ORDER BY completed_at DESC
		LIMIT $2
	`, h.playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: read history: %w", game.ErrPersistenceUnavailable, err)
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (game.Summary, error) {
		var (
			s      game.Summary
			mode   string
			rounds []byte
		)
		if err := row.Scan(&s.SessionID, &s.GameID, &mode, &s.TotalScore, &s.MaxPossible, &rounds, &s.CompletedAt); err != nil {
			return s, err
		}
		s.Mode = game.Mode(mode)
		if err := json.Unmarshal(rounds, &s.Rounds); err != nil {
			return s, fmt.Errorf("decode rounds of %s: %w", s.SessionID, err)
		}
		return s, nil
	})
}
