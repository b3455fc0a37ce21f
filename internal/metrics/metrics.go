// Package metrics exposes game activity as Prometheus metrics. The collector
// only consumes session events; it never reads or changes session state.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/susu3304/whereami/internal/game"
	"github.com/susu3304/whereami/internal/geoscore"
)

type GameCollector struct {
	gatherer prometheus.Gatherer

	SessionsStarted   prometheus.Counter
	SessionsCompleted prometheus.Counter
	SessionsRestored  prometheus.Counter
	LoadFailures      prometheus.Counter
	Guesses           prometheus.Counter
	SideEffectErrors  *prometheus.CounterVec
	RoundScores       prometheus.Histogram
	GuessDistances    prometheus.Histogram
	FinalScoreRatio   prometheus.Histogram
}

// NewGameCollector registers the game metrics against reg, defaulting to the
// global registry when nil. Registering twice returns the existing metrics.
func NewGameCollector(reg prometheus.Registerer) (*GameCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &GameCollector{gatherer: gatherer}
	var err error

	counters := []struct {
		dst  *prometheus.Counter
		name string
		help string
	}{
		{&c.SessionsStarted, "whereami_sessions_started_total", "Games whose targets loaded successfully."},
		{&c.SessionsCompleted, "whereami_sessions_completed_total", "Games played through the last round."},
		{&c.SessionsRestored, "whereami_sessions_restored_total", "Games resumed from a saved snapshot."},
		{&c.LoadFailures, "whereami_load_failures_total", "Games that failed to load their targets."},
		{&c.Guesses, "whereami_guesses_total", "Guesses scored."},
	}
	for _, ctr := range counters {
		*ctr.dst, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Name: ctr.name,
			Help: ctr.help,
		}), ctr.name)
		if err != nil {
			return nil, err
		}
	}

	c.SideEffectErrors, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "whereami_side_effect_failures_total",
		Help: "Best-effort side effects that failed, labeled by operation.",
	}, []string{"op"}), "whereami_side_effect_failures_total")
	if err != nil {
		return nil, err
	}

	c.RoundScores, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "whereami_round_score",
		Help:    "Points awarded per round.",
		Buckets: prometheus.LinearBuckets(0, geoscore.MaxScore/10, 11),
	}), "whereami_round_score")
	if err != nil {
		return nil, err
	}

	c.GuessDistances, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "whereami_guess_distance_km",
		Help:    "Great-circle distance between guess and target in kilometers.",
		Buckets: []float64{0.01, 0.1, 1, 10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 20016},
	}), "whereami_guess_distance_km")
	if err != nil {
		return nil, err
	}

	c.FinalScoreRatio, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "whereami_final_score_ratio",
		Help:    "Completed games' total score as a fraction of the maximum possible.",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	}), "whereami_final_score_ratio")
	if err != nil {
		return nil, err
	}

	return c, nil
}

// Handle is a game.Bus subscriber.
func (c *GameCollector) Handle(e game.Event) {
	if c == nil {
		return
	}
	switch e.Kind {
	case game.EventStarted:
		c.SessionsStarted.Inc()
	case game.EventLoadFailed:
		c.LoadFailures.Inc()
	case game.EventRestored:
		c.SessionsRestored.Inc()
	case game.EventGuessScored:
		if e.Result != nil {
			c.Guesses.Inc()
			c.RoundScores.Observe(float64(e.Result.Score))
			c.GuessDistances.Observe(e.Result.DistanceKm)
		}
	case game.EventCompleted:
		c.SessionsCompleted.Inc()
		if e.Summary != nil && e.Summary.MaxPossible > 0 {
			c.FinalScoreRatio.Observe(float64(e.Summary.TotalScore) / float64(e.Summary.MaxPossible))
		}
	}
}

// SideEffectFailed matches game.FailureHook.
func (c *GameCollector) SideEffectFailed(op string, _ error) {
	if c == nil {
		return
	}
	c.SideEffectErrors.WithLabelValues(op).Inc()
}

// Handler exposes a ready-to-use /metrics handler.
func (c *GameCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}
