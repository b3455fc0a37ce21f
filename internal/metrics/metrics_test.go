package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"github.com/susu3304/whereami/internal/game"
	"github.com/susu3304/whereami/internal/geoscore"
)

type staticSource []game.Target

func (s staticSource) FetchTargets(ctx context.Context, count int) ([]game.Target, error) {
	return s[:min(count, len(s))], nil
}

func TestCollectorObservesSession(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewGameCollector(reg)
	if err != nil {
		t.Fatalf("NewGameCollector: %v", err)
	}

	bus := game.NewBus()
	bus.Subscribe(collector.Handle)

	src := staticSource{
		{ID: "a", Location: geoscore.Coordinate{Lat: 0, Lng: 0}},
		{ID: "b", Location: geoscore.Coordinate{Lat: 0, Lng: 0}},
	}
	s := game.NewSession(src, game.WithBus(bus))
	ctx := context.Background()

	if err := s.Initialize(ctx, game.Settings{NumRounds: 5}); err == nil {
		t.Fatal("Initialize() with too few targets succeeded")
	}
	if err := s.Initialize(ctx, game.Settings{NumRounds: 2}); err != nil {
		t.Fatal(err)
	}
	for _, g := range []geoscore.Coordinate{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 90}} {
		if _, err := s.SubmitGuess(g); err != nil {
			t.Fatal(err)
		}
		if err := s.Advance(); err != nil {
			t.Fatal(err)
		}
	}
	bus.Close()

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"started", collector.SessionsStarted, 1},
		{"completed", collector.SessionsCompleted, 1},
		{"load failures", collector.LoadFailures, 1},
		{"guesses", collector.Guesses, 2},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(tt.c); got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
		}
	}

	if count := histogramSampleCount(t, reg, "whereami_round_score"); count != 2 {
		t.Errorf("whereami_round_score sample_count = %d, want 2", count)
	}
	if sum := histogramSampleSum(t, reg, "whereami_round_score"); sum != 10000 {
		t.Errorf("whereami_round_score sample_sum = %v, want 10000", sum)
	}
	if sum := histogramSampleSum(t, reg, "whereami_final_score_ratio"); sum != 0.5 {
		t.Errorf("whereami_final_score_ratio sample_sum = %v, want 0.5", sum)
	}
}

func TestSideEffectFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewGameCollector(reg)
	if err != nil {
		t.Fatal(err)
	}

	var hook game.FailureHook = collector.SideEffectFailed
	hook("autosave", io.ErrUnexpectedEOF)
	hook("autosave", io.ErrUnexpectedEOF)
	hook("submit_score", io.ErrUnexpectedEOF)

	if got := testutil.ToFloat64(collector.SideEffectErrors.WithLabelValues("autosave")); got != 2 {
		t.Errorf("autosave failures = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.SideEffectErrors.WithLabelValues("submit_score")); got != 1 {
		t.Errorf("submit_score failures = %v, want 1", got)
	}
}

func TestRegisterTwiceReusesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewGameCollector(reg)
	if err != nil {
		t.Fatal(err)
	}
	second, err := NewGameCollector(reg)
	if err != nil {
		t.Fatalf("second NewGameCollector: %v", err)
	}

	first.Guesses.Inc()
	if got := testutil.ToFloat64(second.Guesses); got != 1 {
		t.Errorf("second collector sees %v guesses, want 1", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewGameCollector(reg)
	if err != nil {
		t.Fatal(err)
	}
	collector.SessionsStarted.Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if body := rr.Body.String(); !strings.Contains(body, "whereami_sessions_started_total 1") {
		t.Errorf("metrics output missing started counter:\n%s", body)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *GameCollector
	c.Handle(game.Event{Kind: game.EventStarted})
	c.SideEffectFailed("autosave", nil)
}

func findHistogram(t *testing.T, gatherer prometheus.Gatherer, name string) *dto.Histogram {
	t.Helper()
	mfs, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if h := m.GetHistogram(); h != nil {
				return h
			}
		}
	}
	return nil
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string) uint64 {
	t.Helper()
	return findHistogram(t, gatherer, name).GetSampleCount()
}

func histogramSampleSum(t *testing.T, gatherer prometheus.Gatherer, name string) float64 {
	t.Helper()
	return findHistogram(t, gatherer, name).GetSampleSum()
}
