package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

func (db *DB) Close() {
	db.pool.Close()
}

// RunMigrations creates the game tables if they do not exist yet.
func (db *DB) RunMigrations(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS images (
			id TEXT PRIMARY KEY,
			image_ref TEXT NOT NULL,
			lat DOUBLE PRECISION NOT NULL CHECK (lat BETWEEN -90 AND 90),
			lng DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS custom_games (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			created_by TEXT NOT NULL DEFAULT '',
			play_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS custom_game_images (
			game_id TEXT NOT NULL REFERENCES custom_games(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			image_id TEXT NOT NULL REFERENCES images(id),
			PRIMARY KEY (game_id, position)
		);

		CREATE TABLE IF NOT EXISTS saved_sessions (
			player_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			snapshot JSONB NOT NULL,
			saved_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS game_history (
			session_id TEXT PRIMARY KEY,
			player_id TEXT NOT NULL,
			game_id TEXT NOT NULL DEFAULT '',
			mode TEXT NOT NULL,
			total_score INTEGER NOT NULL,
			max_possible INTEGER NOT NULL,
			rounds JSONB NOT NULL,
			completed_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_game_history_player ON game_history(player_id, completed_at DESC);

		CREATE TABLE IF NOT EXISTS game_scores (
			id BIGSERIAL PRIMARY KEY,
			game_id TEXT NOT NULL REFERENCES custom_games(id) ON DELETE CASCADE,
			player_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			score INTEGER NOT NULL,
			max_possible INTEGER NOT NULL,
			percentage INTEGER NOT NULL,
			rounds INTEGER NOT NULL,
			played_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (game_id, session_id)
		);
		CREATE INDEX IF NOT EXISTS idx_game_scores_game ON game_scores(game_id, id);

		CREATE TABLE IF NOT EXISTS user_best_scores (
			game_id TEXT NOT NULL REFERENCES custom_games(id) ON DELETE CASCADE,
			player_id TEXT NOT NULL,
			score INTEGER NOT NULL,
			max_possible INTEGER NOT NULL,
			rounds INTEGER NOT NULL,
			played_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (game_id, player_id)
		);
	`)
	return err
}
