package localstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/susu3304/whereami/internal/game"
	"github.com/susu3304/whereami/internal/geoscore"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLoadClear(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if _, err := s.Load(ctx); !errors.Is(err, game.ErrNoSavedSession) {
		t.Fatalf("Load() on empty store error = %v, want ErrNoSavedSession", err)
	}

	snap := game.Snapshot{
		SessionID: "s1",
		Settings:  game.Settings{NumRounds: 2, Mode: game.ModeRandom},
		Status:    game.StatusInProgress,
		Rounds: []game.Round{
			{ID: 1, Target: game.Target{ID: "a", Location: geoscore.Coordinate{Lat: 10, Lng: 20}}, Outcome: &game.Outcome{
				Guess: geoscore.Coordinate{Lat: 10, Lng: 21}, Score: 4200, DistanceKm: 109.5,
				OptimalTarget: geoscore.Coordinate{Lat: 10, Lng: 20},
			}},
			{ID: 2, Target: game.Target{ID: "b", Location: geoscore.Coordinate{Lat: -5, Lng: 170}}},
		},
		CurrentRound: 1,
		TotalScore:   4200,
		MaxPossible:  20000,
		SavedAt:      time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
	}
	if err := s.Save(ctx, snap); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.SessionID != snap.SessionID || got.CurrentRound != 1 || got.TotalScore != 4200 || got.Status != game.StatusInProgress {
		t.Errorf("Load() = %+v", got)
	}
	if got.Rounds[0].Outcome == nil || *got.Rounds[0].Outcome != *snap.Rounds[0].Outcome {
		t.Errorf("round 1 outcome = %+v", got.Rounds[0].Outcome)
	}
	if got.Rounds[1].Scored() {
		t.Error("round 2 came back scored")
	}
	if !got.SavedAt.Equal(snap.SavedAt) {
		t.Errorf("SavedAt = %v, want %v", got.SavedAt, snap.SavedAt)
	}

	// The slot holds one game.
	snap.SessionID = "s2"
	if err := s.Save(ctx, snap); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.Load(ctx); got.SessionID != "s2" {
		t.Errorf("Load() after overwrite = %q, want s2", got.SessionID)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, err := s.Load(ctx); !errors.Is(err, game.ErrNoSavedSession) {
		t.Errorf("Load() after Clear() error = %v", err)
	}
}

func TestResumeFromStore(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	src := sliceSource{
		{ID: "a", Location: geoscore.Coordinate{Lat: 1, Lng: 1}},
		{ID: "b", Location: geoscore.Coordinate{Lat: 2, Lng: 2}},
	}
	sess := game.NewSession(src)
	if err := sess.Initialize(ctx, game.Settings{NumRounds: 2}); err != nil {
		t.Fatal(err)
	}
	if _, err := sess.SubmitGuess(geoscore.Coordinate{Lat: 1, Lng: 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, sess.Snapshot()); err != nil {
		t.Fatal(err)
	}

	resumed := game.NewSession(src)
	if err := resumed.Resume(ctx, s); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if resumed.ID() != sess.ID() || resumed.TotalScore() != sess.TotalScore() {
		t.Errorf("resumed %s/%d, want %s/%d", resumed.ID(), resumed.TotalScore(), sess.ID(), sess.TotalScore())
	}
}

func TestHistoryKeepsNewest(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := range MaxHistory + 5 {
		sum := game.Summary{
			SessionID:   fmt.Sprintf("s%02d", i),
			Mode:        game.ModeRandom,
			Rounds:      []game.RoundSummary{{ID: 1, ImageID: "a", Score: i}},
			TotalScore:  i,
			MaxPossible: geoscore.MaxScore,
			CompletedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.Record(ctx, sum); err != nil {
			t.Fatalf("Record(%d) error = %v", i, err)
		}
	}
	// Recording the same session again is ignored.
	if err := s.Record(ctx, game.Summary{SessionID: "s54", TotalScore: 9999, CompletedAt: base}); err != nil {
		t.Fatal(err)
	}

	got, err := s.RecentSummaries(ctx, 100)
	if err != nil {
		t.Fatalf("RecentSummaries() error = %v", err)
	}
	if len(got) != MaxHistory {
		t.Fatalf("kept %d games, want %d", len(got), MaxHistory)
	}
	if got[0].SessionID != "s54" || got[0].TotalScore != 54 {
		t.Errorf("newest = %+v, want s54 with score 54", got[0])
	}
	if got[len(got)-1].SessionID != "s05" {
		t.Errorf("oldest kept = %s, want s05", got[len(got)-1].SessionID)
	}

	st, err := s.Statistics(ctx)
	if err != nil {
		t.Fatalf("Statistics() error = %v", err)
	}
	if st.TotalGames != MaxHistory || st.BestScore != 54 {
		t.Errorf("Statistics() = %+v", st)
	}
}

type sliceSource []game.Target

func (s sliceSource) FetchTargets(ctx context.Context, count int) ([]game.Target, error) {
	return s[:min(count, len(s))], nil
}
