// Package catalog serves game targets from image metadata documents kept in
// S3-compatible object storage.
//
// Layout under the configured prefix:
//
//	images/<id>.json  {"id", "imageRef", "lat", "lng"}
//	games/<id>.json   {"id", "name", "images": [<image id>...], "playCount"}
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"path"
	"strings"

	"github.com/susu3304/whereami/internal/game"
	"github.com/susu3304/whereami/internal/geoscore"
)

var (
	ErrNotFound = errors.New("object not found")
	ErrExists   = errors.New("object already exists")
)

// ObjectStore is the slice of object storage the catalog needs.
type ObjectStore interface {
	List(ctx context.Context, prefix string) ([]string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, data []byte) error
	// PutNew stores data only if key does not exist yet, returning ErrExists
	// otherwise.
	PutNew(ctx context.Context, key string, data []byte) error
}

type Image struct {
	ID       string  `json:"id"`
	ImageRef string  `json:"imageRef"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
}

func (i Image) target() game.Target {
	return game.Target{ID: i.ID, ImageRef: i.ImageRef, Location: geoscore.Coordinate{Lat: i.Lat, Lng: i.Lng}}
}

type CustomGame struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Images    []string `json:"images"`
	PlayCount int      `json:"playCount"`
}

type Catalog struct {
	store   ObjectStore
	prefix  string
	logger  *slog.Logger
	shuffle func([]string)
}

func New(store ObjectStore, prefix string, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Catalog{
		store:   store,
		prefix:  strings.Trim(prefix, "/"),
		logger:  logger,
		shuffle: func(keys []string) {
			rand.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
		},
	}
}

func (c *Catalog) key(parts ...string) string {
	return path.Join(append([]string{c.prefix}, parts...)...)
}

// FetchTargets loads count random images. Documents that cannot be read are
// skipped, so fewer targets than requested may come back.
func (c *Catalog) FetchTargets(ctx context.Context, count int) ([]game.Target, error) {
	keys, err := c.store.List(ctx, c.key("images")+"/")
	if err != nil {
		return nil, fmt.Errorf("listing images: %w", err)
	}
	c.shuffle(keys)

	targets := make([]game.Target, 0, count)
	for _, k := range keys {
		if len(targets) == count {
			break
		}
		if !strings.HasSuffix(k, ".json") {
			continue
		}
		var img Image
		if err := c.getJSON(ctx, k, &img); err != nil {
			c.logger.Warn("skipping image document", "key", k, "error", err)
			continue
		}
		targets = append(targets, img.target())
	}
	return targets, nil
}

// FetchGameTargets loads a custom game's images in order and bumps its play
// count. The count update is a read-modify-write and may lose increments
// under concurrent plays.
func (c *Catalog) FetchGameTargets(ctx context.Context, gameID string) ([]game.Target, error) {
	g, err := c.Game(ctx, gameID)
	if err != nil {
		return nil, err
	}

	targets := make([]game.Target, 0, len(g.Images))
	for _, id := range g.Images {
		var img Image
		if err := c.getJSON(ctx, c.key("images", id+".json"), &img); err != nil {
			c.logger.Warn("custom game references unreadable image", "game_id", gameID, "image_id", id, "error", err)
			continue
		}
		targets = append(targets, img.target())
	}

	g.PlayCount++
	if err := c.putJSON(ctx, c.key("games", gameID+".json"), g, false); err != nil {
		c.logger.Warn("failed to count play", "game_id", gameID, "error", err)
	}
	return targets, nil
}

func (c *Catalog) Game(ctx context.Context, gameID string) (CustomGame, error) {
	var g CustomGame
	if err := c.getJSON(ctx, c.key("games", gameID+".json"), &g); err != nil {
		return CustomGame{}, fmt.Errorf("game %s: %w", gameID, err)
	}
	return g, nil
}

// AddImage stores an image document. Existing documents are never
// overwritten.
func (c *Catalog) AddImage(ctx context.Context, img Image) error {
	t := img.target()
	if t.ID == "" || !t.Location.Valid() {
		return fmt.Errorf("image %q: %w", img.ID, game.ErrInvalidCoordinate)
	}
	return c.putJSON(ctx, c.key("images", img.ID+".json"), img, true)
}

func (c *Catalog) AddGame(ctx context.Context, g CustomGame) error {
	if g.ID == "" || len(g.Images) == 0 {
		return errors.New("custom game needs an id and at least one image")
	}
	return c.putJSON(ctx, c.key("games", g.ID+".json"), g, true)
}

func (c *Catalog) getJSON(ctx context.Context, key string, v any) error {
	rc, err := c.store.Get(ctx, key)
	if err != nil {
		return err
	}
	defer rc.Close()
	if err := json.NewDecoder(rc).Decode(v); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

func (c *Catalog) putJSON(ctx context.Context, key string, v any, onlyNew bool) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if onlyNew {
		return c.store.PutNew(ctx, key, data)
	}
	return c.store.Put(ctx, key, data)
}
