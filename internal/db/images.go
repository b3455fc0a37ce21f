package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/susu3304/whereami/internal/game"
	"github.com/susu3304/whereami/internal/geoscore"
)

var (
	ErrGameNotFound   = errors.New("game not found")
	ErrDuplicateImage = errors.New("image already exists")
)

// AddImage registers a photograph in the random-play pool.
func (db *DB) AddImage(ctx context.Context, t game.Target) error {
	_, err := db.pool.Exec(ctx,
		"INSERT INTO images (id, image_ref, lat, lng) VALUES ($1, $2, $3, $4)",
		t.ID, t.ImageRef, t.Location.Lat, geoscore.NormalizeLongitude(t.Location.Lng),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateImage
		}
		return err
	}
	return nil
}

// FetchTargets picks count distinct images at random.
func (db *DB) FetchTargets(ctx context.Context, count int) ([]game.Target, error) {
	rows, err := db.pool.Query(ctx,
		"SELECT id, image_ref, lat, lng FROM images ORDER BY random() LIMIT $1",
		count,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanTarget)
}

// CreateCustomGame stores an ordered image list that players can replay and
// compete on.
func (db *DB) CreateCustomGame(ctx context.Context, id, name, createdBy string, imageIDs []string) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		"INSERT INTO custom_games (id, name, created_by) VALUES ($1, $2, $3)",
		id, name, createdBy,
	); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for i, imageID := range imageIDs {
		batch.Queue("INSERT INTO custom_game_images (game_id, position, image_id) VALUES ($1, $2, $3)", id, i, imageID)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("add game images: %w", err)
	}
	return tx.Commit(ctx)
}

// FetchGameTargets returns a custom game's images in play order and counts
// the play.
func (db *DB) FetchGameTargets(ctx context.Context, gameID string) ([]game.Target, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx, "UPDATE custom_games SET play_count = play_count + 1 WHERE id = $1", gameID)
	if err != nil {
		return nil, err
	}
	if ct.RowsAffected() == 0 {
		return nil, ErrGameNotFound
	}

	rows, err := tx.Query(ctx, `
		SELECT i.id, i.image_ref, i.lat, i.lng
		FROM custom_game_images g
		JOIN images i ON i.id = g.image_id
		WHERE g.game_id = $1
		ORDER BY g.position
	`, gameID)
	if err != nil {
		return nil, err
	}
	targets, err := pgx.CollectRows(rows, scanTarget)
	if err != nil {
		return nil, err
	}
	return targets, tx.Commit(ctx)
}

// PlayCount reports how many times a custom game has been started.
func (db *DB) PlayCount(ctx context.Context, gameID string) (int, error) {
	var n int
	err := db.pool.QueryRow(ctx, "SELECT play_count FROM custom_games WHERE id = $1", gameID).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrGameNotFound
	}
	return n, err
}

func scanTarget(row pgx.CollectableRow) (game.Target, error) {
	var t game.Target
	err := row.Scan(&t.ID, &t.ImageRef, &t.Location.Lat, &t.Location.Lng)
	return t, err
}
