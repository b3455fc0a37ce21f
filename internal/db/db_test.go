package db

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/susu3304/whereami/internal/game"
	"github.com/susu3304/whereami/internal/geoscore"
)

// newTestDB connects to TEST_DATABASE_URL and starts from empty tables. Tests
// are skipped when it is unset.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	database, err := New(ctx, url)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(database.Close)

	if err := database.RunMigrations(ctx); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	if _, err := database.pool.Exec(ctx, `
		TRUNCATE images, custom_games, custom_game_images, saved_sessions,
		         game_history, game_scores, user_best_scores CASCADE
	`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return database
}

func seedImages(t *testing.T, database *DB, n int) []string {
	t.Helper()
	var ids []string
	for i := range n {
		tg := game.Target{
			ID:       string(rune('a' + i)),
			ImageRef: "images/" + string(rune('a'+i)) + ".jpg",
			Location: geoscore.Coordinate{Lat: float64(i), Lng: float64(i * 10)},
		}
		if err := database.AddImage(context.Background(), tg); err != nil {
			t.Fatalf("AddImage() error = %v", err)
		}
		ids = append(ids, tg.ID)
	}
	return ids
}

func TestFetchTargets(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	seedImages(t, database, 5)

	if err := database.AddImage(ctx, game.Target{ID: "a", ImageRef: "dup"}); !errors.Is(err, ErrDuplicateImage) {
		t.Errorf("AddImage() duplicate error = %v, want ErrDuplicateImage", err)
	}

	tests := []struct {
		name  string
		count int
		want  int
	}{
		{"fewer than available", 3, 3},
		{"more than available", 8, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := database.FetchTargets(ctx, tt.count)
			if err != nil {
				t.Fatalf("FetchTargets() error = %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("got %d targets, want %d", len(got), tt.want)
			}
			seen := map[string]bool{}
			for _, tg := range got {
				if seen[tg.ID] {
					t.Errorf("duplicate target %q", tg.ID)
				}
				seen[tg.ID] = true
			}
		})
	}
}

func TestCustomGameTargets(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	ids := seedImages(t, database, 3)

	order := []string{ids[2], ids[0], ids[1]}
	if err := database.CreateCustomGame(ctx, "g1", "Trip", "p1", order); err != nil {
		t.Fatalf("CreateCustomGame() error = %v", err)
	}

	got, err := database.FetchGameTargets(ctx, "g1")
	if err != nil {
		t.Fatalf("FetchGameTargets() error = %v", err)
	}
	for i, tg := range got {
		if tg.ID != order[i] {
			t.Errorf("target %d = %q, want %q", i, tg.ID, order[i])
		}
	}
	if n, _ := database.PlayCount(ctx, "g1"); n != 1 {
		t.Errorf("PlayCount() = %d, want 1", n)
	}

	if _, err := database.FetchGameTargets(ctx, "missing"); !errors.Is(err, ErrGameNotFound) {
		t.Errorf("FetchGameTargets(missing) error = %v, want ErrGameNotFound", err)
	}
}

func TestSessionStore(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	store := database.SessionStore("p1")

	if _, err := store.Load(ctx); !errors.Is(err, game.ErrNoSavedSession) {
		t.Fatalf("Load() on empty store error = %v, want ErrNoSavedSession", err)
	}

	snap := game.Snapshot{
		SessionID: "s1",
		Settings:  game.DefaultSettings(),
		Status:    game.StatusInProgress,
		Rounds: []game.Round{{
			ID:     1,
			Target: game.Target{ID: "a", Location: geoscore.Coordinate{Lat: 1, Lng: 2}},
			Outcome: &game.Outcome{
				Guess: geoscore.Coordinate{Lat: 1, Lng: 2}, Score: 10000,
				OptimalTarget: geoscore.Coordinate{Lat: 1, Lng: 2},
			},
		}},
		TotalScore:  10000,
		MaxPossible: 10000,
		SavedAt:     time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	snap.CurrentRound = 0
	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.SessionID != "s1" || got.TotalScore != 10000 || got.Rounds[0].Outcome == nil || got.Status != game.StatusInProgress {
		t.Errorf("Load() = %+v", got)
	}

	// Another player's slot is separate.
	if _, err := database.SessionStore("p2").Load(ctx); !errors.Is(err, game.ErrNoSavedSession) {
		t.Errorf("other player's Load() error = %v", err)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, err := store.Load(ctx); !errors.Is(err, game.ErrNoSavedSession) {
		t.Errorf("Load() after Clear() error = %v", err)
	}
}

func TestHistory(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	h := database.History("p1")

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := range 3 {
		sum := game.Summary{
			SessionID:   string(rune('x' + i)),
			Mode:        game.ModeRandom,
			Rounds:      []game.RoundSummary{{ID: 1, ImageID: "a", Score: 1000 * (i + 1)}},
			TotalScore:  1000 * (i + 1),
			MaxPossible: 10000,
			CompletedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := h.Record(ctx, sum); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
		if err := h.Record(ctx, sum); err != nil {
			t.Fatalf("duplicate Record() error = %v", err)
		}
	}

	got, err := h.RecentSummaries(ctx, 2)
	if err != nil {
		t.Fatalf("RecentSummaries() error = %v", err)
	}
	if len(got) != 2 || got[0].SessionID != "z" || got[1].SessionID != "y" {
		t.Fatalf("RecentSummaries() = %+v", got)
	}
	if got[0].Rounds[0].Score != 3000 || got[0].Mode != game.ModeRandom {
		t.Errorf("decoded summary = %+v", got[0])
	}
}

func TestSubmitScore(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	ids := seedImages(t, database, 1)
	if err := database.CreateCustomGame(ctx, "g1", "One", "p1", ids); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name        string
		sub         game.ScoreSubmission
		wantErr     error
		wantNewBest bool
	}{
		{"first score", game.ScoreSubmission{GameID: "g1", PlayerID: "p1", SessionID: "s1", Score: 5000, MaxPossible: 10000, Rounds: 1}, nil, true},
		{"worse score", game.ScoreSubmission{GameID: "g1", PlayerID: "p1", SessionID: "s2", Score: 4000, MaxPossible: 10000, Rounds: 1}, nil, false},
		{"better score", game.ScoreSubmission{GameID: "g1", PlayerID: "p1", SessionID: "s3", Score: 9000, MaxPossible: 10000, Rounds: 1}, nil, true},
		{"other player", game.ScoreSubmission{GameID: "g1", PlayerID: "p2", SessionID: "s4", Score: 9000, MaxPossible: 10000, Rounds: 1}, nil, true},
		{"same session twice", game.ScoreSubmission{GameID: "g1", PlayerID: "p1", SessionID: "s3", Score: 9500, MaxPossible: 10000, Rounds: 1}, ErrAlreadySubmitted, false},
		{"score above max", game.ScoreSubmission{GameID: "g1", PlayerID: "p1", SessionID: "s5", Score: 10001, MaxPossible: 10000, Rounds: 1}, ErrInvalidScore, false},
		{"negative score", game.ScoreSubmission{GameID: "g1", PlayerID: "p1", SessionID: "s6", Score: -1, MaxPossible: 10000, Rounds: 1}, ErrInvalidScore, false},
		{"unknown game", game.ScoreSubmission{GameID: "nope", PlayerID: "p1", SessionID: "s7", Score: 1, MaxPossible: 10000, Rounds: 1}, ErrGameNotFound, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := database.SubmitScore(ctx, tt.sub)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) || !errors.Is(err, game.ErrScoreSubmission) {
					t.Fatalf("SubmitScore() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("SubmitScore() error = %v", err)
			}
			if !got.Accepted || got.IsNewBest != tt.wantNewBest {
				t.Errorf("SubmitScore() = %+v, want new best %v", got, tt.wantNewBest)
			}
		})
	}

	board, err := database.Leaderboard(ctx, "g1", 10)
	if err != nil {
		t.Fatalf("Leaderboard() error = %v", err)
	}
	if len(board) != 2 || board[0].PlayerID != "p1" || board[0].Score != 9000 || board[0].Percentage != 90 {
		t.Errorf("Leaderboard() = %+v", board)
	}

	st, err := database.ScoreStats(ctx, "g1")
	if err != nil {
		t.Fatalf("ScoreStats() error = %v", err)
	}
	if st.Attempts != 4 || st.Players != 2 || st.AverageScore != 6750 {
		t.Errorf("ScoreStats() = %+v", st)
	}
}
