package db

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/susu3304/whereami/internal/game"
)

// MaxScoresPerGame caps the attempts kept per custom game; the oldest are
// dropped first.
const MaxScoresPerGame = 1000

var (
	ErrInvalidScore     = errors.New("score must be between 0 and maxPossible")
	ErrAlreadySubmitted = errors.New("score already submitted for this session")
)

type LeaderboardEntry struct {
	PlayerID    string    `json:"playerId"`
	Score       int       `json:"score"`
	MaxPossible int       `json:"maxPossible"`
	Percentage  int       `json:"percentage"`
	Rounds      int       `json:"rounds"`
	PlayedAt    time.Time `json:"playedAt"`
}

type GameScoreStats struct {
	Attempts     int     `json:"attempts"`
	Players      int     `json:"players"`
	AverageScore float64 `json:"averageScore"`
}

// SubmitScore stores an attempt and updates the player's best score for the
// game. Failures wrap game.ErrScoreSubmission.
func (db *DB) SubmitScore(ctx context.Context, sub game.ScoreSubmission) (game.ScoreReceipt, error) {
	if sub.Score < 0 || sub.MaxPossible <= 0 || sub.Score > sub.MaxPossible {
		return game.ScoreReceipt{}, fmt.Errorf("%w: %w (%d of %d)", game.ErrScoreSubmission, ErrInvalidScore, sub.Score, sub.MaxPossible)
	}
	receipt, err := db.submitScore(ctx, sub)
	if err != nil {
		return game.ScoreReceipt{}, fmt.Errorf("%w: %w", game.ErrScoreSubmission, err)
	}
	return receipt, nil
}

func (db *DB) submitScore(ctx context.Context, sub game.ScoreSubmission) (game.ScoreReceipt, error) {
	percentage := int(math.Round(float64(sub.Score) / float64(sub.MaxPossible) * 100))

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return game.ScoreReceipt{}, err
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM custom_games WHERE id = $1)", sub.GameID).Scan(&exists); err != nil {
		return game.ScoreReceipt{}, err
	}
	if !exists {
		return game.ScoreReceipt{}, ErrGameNotFound
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO game_scores (game_id, player_id, session_id, score, max_possible, percentage, rounds)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, sub.GameID, sub.PlayerID, sub.SessionID, sub.Score, sub.MaxPossible, percentage, sub.Rounds)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return game.ScoreReceipt{}, ErrAlreadySubmitted
		}
		return game.ScoreReceipt{}, err
	}

	_, err = tx.Exec(ctx, `
		DELETE FROM game_scores
		WHERE game_id = $1 AND id NOT IN (
			SELECT id FROM game_scores WHERE game_id = $1 ORDER BY id DESC LIMIT $2
		)
	`, sub.GameID, MaxScoresPerGame)
	if err != nil {
		return game.ScoreReceipt{}, err
	}

	// The upsert only returns a row when it inserted or raised the best score.
	var isNewBest bool
	err = tx.QueryRow(ctx, `
		INSERT INTO user_best_scores (game_id, player_id, score, max_possible, rounds)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (game_id, player_id) DO UPDATE
		SET score = EXCLUDED.score, max_possible = EXCLUDED.max_possible,
		    rounds = EXCLUDED.rounds, played_at = CURRENT_TIMESTAMP
		WHERE user_best_scores.score < EXCLUDED.score
		RETURNING true
	`, sub.GameID, sub.PlayerID, sub.Score, sub.MaxPossible, sub.Rounds).Scan(&isNewBest)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return game.ScoreReceipt{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return game.ScoreReceipt{}, err
	}
	return game.ScoreReceipt{Accepted: true, IsNewBest: isNewBest}, nil
}

// Leaderboard returns each player's best score for the game, highest first.
// Ties go to whoever reached the score earlier.
func (db *DB) Leaderboard(ctx context.Context, gameID string, limit int) ([]LeaderboardEntry, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT player_id, score, max_possible, rounds, played_at
		FROM user_best_scores
		WHERE game_id = $1
		ORDER BY score DESC, played_at ASC
		LIMIT $2
	`, gameID, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (LeaderboardEntry, error) {
		var e LeaderboardEntry
		err := row.Scan(&e.PlayerID, &e.Score, &e.MaxPossible, &e.Rounds, &e.PlayedAt)
		if e.MaxPossible > 0 {
			e.Percentage = int(math.Round(float64(e.Score) / float64(e.MaxPossible) * 100))
		}
		return e, err
	})
}

// ScoreStats summarizes the attempts kept for a game.
func (db *DB) ScoreStats(ctx context.Context, gameID string) (GameScoreStats, error) {
	var st GameScoreStats
	err := db.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT player_id), COALESCE(AVG(score), 0)::float8
		FROM game_scores
		WHERE game_id = $1
	`, gameID).Scan(&st.Attempts, &st.Players, &st.AverageScore)
	return st, err
}
