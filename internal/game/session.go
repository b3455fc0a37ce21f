package game

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/susu3304/whereami/internal/geoscore"
)

const tracerName = "github.com/susu3304/whereami/internal/game"

type Option func(*Session)

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBus makes the session publish every transition to b.
func WithBus(b *Bus) Option {
	return func(s *Session) { s.bus = b }
}

func WithCurve(c geoscore.Curve) Option {
	return func(s *Session) { s.curve = c }
}

func WithGameTargets(src GameTargetSource) Option {
	return func(s *Session) { s.gameTargets = src }
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Session) { s.tracer = t }
}

// Session drives one playthrough. All methods are safe for concurrent use;
// mutations are serialized and only Initialize blocks on I/O, outside the
// lock.
type Session struct {
	targets     TargetSource
	gameTargets GameTargetSource
	bus         *Bus
	curve       geoscore.Curve
	logger      *slog.Logger
	tracer      trace.Tracer
	now         func() time.Time

	mu          sync.Mutex
	generation  uint64
	id          string
	settings    Settings
	status      Status
	rounds      []Round
	current     int
	completedAt time.Time
	lastErr     error
}

func NewSession(targets TargetSource, opts ...Option) *Session {
	s := &Session{
		targets:  targets,
		curve:    geoscore.DefaultCurve,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
		id:       uuid.NewString(),
		settings: DefaultSettings(),
		status:   StatusIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	return s
}

// Initialize fetches targets and starts a fresh game. Any game in progress is
// discarded. If another Initialize, Reset or Restore happens while this one is
// fetching, its result is dropped and ErrSuperseded is returned.
//
// On failure the session is left Idle with no rounds and the error is kept
// for Err and the next snapshot.
func (s *Session) Initialize(ctx context.Context, settings Settings) error {
	settings, err := settings.Normalize()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.status = StatusLoading
	s.rounds = nil
	s.current = 0
	s.completedAt = time.Time{}
	s.lastErr = nil
	s.settings = settings
	s.publishLocked(Event{Kind: EventLoading})
	s.mu.Unlock()

	ctx, span := s.tracer.Start(ctx, "game.Initialize", trace.WithAttributes(
		attribute.String("game.mode", string(settings.Mode)),
		attribute.Int("game.rounds_requested", settings.NumRounds),
	))
	defer span.End()

	targets, err := s.fetch(ctx, settings)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("game.rounds", len(targets)))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != gen {
		s.logger.Debug("discarding superseded load", "generation", gen, "current", s.generation)
		return ErrSuperseded
	}
	if err != nil {
		s.status = StatusIdle
		s.lastErr = err
		s.logger.Warn("failed to load targets", "op", "initialize", "mode", settings.Mode, "error", err)
		s.publishLocked(Event{Kind: EventLoadFailed, Err: err})
		return err
	}

	s.id = uuid.NewString()
	s.rounds = make([]Round, len(targets))
	for i, t := range targets {
		s.rounds[i] = Round{ID: i + 1, Target: t}
	}
	s.status = StatusInProgress
	s.logger.Info("game started", "session_id", s.id, "mode", settings.Mode, "rounds", len(s.rounds))
	s.publishLocked(Event{Kind: EventStarted})
	return nil
}

func (s *Session) fetch(ctx context.Context, settings Settings) ([]Target, error) {
	var (
		raw []Target
		err error
	)
	switch settings.Mode {
	case ModeCustom:
		if s.gameTargets == nil {
			return nil, ErrNoGameSource
		}
		raw, err = s.gameTargets.FetchGameTargets(ctx, settings.GameID)
	default:
		if s.targets == nil {
			return nil, fmt.Errorf("%w: no target source configured", ErrInsufficientContent)
		}
		raw, err = s.targets.FetchTargets(ctx, settings.NumRounds)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch targets: %w", err)
	}

	valid := make([]Target, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, t := range raw {
		if !t.valid() {
			continue
		}
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		valid = append(valid, t)
	}

	want := settings.NumRounds
	if want == 0 {
		// Custom game with every image.
		want = max(len(valid), 1)
	}
	if len(valid) < want {
		return nil, &InsufficientContentError{Requested: want, Available: len(valid)}
	}
	return valid[:want], nil
}

// SubmitGuess scores the current round. It returns ErrInvalidStateTransition
// without changing anything when the round is already scored, the game is
// complete or targets are still loading.
func (s *Session) SubmitGuess(location geoscore.Coordinate) (GuessResult, error) {
	if !location.Valid() {
		return GuessResult{}, fmt.Errorf("%w: %v", ErrInvalidCoordinate, location)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusInProgress {
		return GuessResult{}, fmt.Errorf("%w: guess while %s", ErrInvalidStateTransition, s.status)
	}
	r := &s.rounds[s.current]
	if r.Scored() {
		return GuessResult{}, fmt.Errorf("%w: round %d already scored", ErrInvalidStateTransition, r.ID)
	}

	guess := location.Normalize()
	m := geoscore.Measure(guess, r.Target.Location)
	r.Outcome = &Outcome{
		Guess:         guess,
		Score:         s.curve.Score(m.DistanceKm),
		DistanceKm:    m.DistanceKm,
		OptimalTarget: m.OptimalTarget,
	}

	res := GuessResult{
		RoundID:       r.ID,
		Guess:         guess,
		Score:         r.Outcome.Score,
		DistanceKm:    m.DistanceKm,
		OptimalTarget: m.OptimalTarget,
		IsLastRound:   s.current == len(s.rounds)-1,
	}
	s.publishLocked(Event{Kind: EventGuessScored, Result: &res})
	return res, nil
}

// Advance moves past a scored round. Advancing past the last round completes
// the game and publishes its summary.
func (s *Session) Advance() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusInProgress {
		return fmt.Errorf("%w: advance while %s", ErrInvalidStateTransition, s.status)
	}
	if !s.rounds[s.current].Scored() {
		return fmt.Errorf("%w: round %d not scored", ErrInvalidStateTransition, s.rounds[s.current].ID)
	}

	s.current++
	if s.current < len(s.rounds) {
		s.publishLocked(Event{Kind: EventRoundAdvanced})
		return nil
	}

	s.status = StatusComplete
	s.completedAt = s.now()
	sum := summarize(s.id, s.settings, s.rounds, s.completedAt)
	s.logger.Info("game complete", "session_id", s.id, "total_score", sum.TotalScore, "max_possible", sum.MaxPossible)
	s.publishLocked(Event{Kind: EventCompleted, Summary: &sum})
	return nil
}

// Reset abandons the current game under a fresh session id and starts a new
// one. A nil settings reuses the previous settings.
func (s *Session) Reset(ctx context.Context, settings *Settings) error {
	s.mu.Lock()
	s.generation++
	next := s.settings
	if settings != nil {
		next = *settings
	}
	s.id = uuid.NewString()
	s.status = StatusIdle
	s.rounds = nil
	s.current = 0
	s.completedAt = time.Time{}
	s.lastErr = nil
	s.publishLocked(Event{Kind: EventReset})
	s.mu.Unlock()

	return s.Initialize(ctx, next)
}

// Restore replaces the session state with snap after checking that it is
// internally consistent. Any in-flight Initialize is superseded.
func (s *Session) Restore(snap Snapshot) error {
	if err := validateSnapshot(snap); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.id = snap.SessionID
	s.settings = snap.Settings
	s.rounds = cloneRounds(snap.Rounds)
	s.current = snap.CurrentRound
	s.lastErr = nil
	s.completedAt = time.Time{}
	s.status = StatusInProgress
	if s.current == len(s.rounds) {
		s.status = StatusComplete
		s.completedAt = snap.SavedAt
	}
	s.logger.Info("game restored", "session_id", s.id, "round", s.current+1, "total_score", totalScore(s.rounds))
	s.publishLocked(Event{Kind: EventRestored})
	return nil
}

// Resume restores the game saved in store. A saved game that is already
// complete is not resumable.
func (s *Session) Resume(ctx context.Context, store SessionStore) error {
	snap, err := store.Load(ctx)
	if err != nil {
		return err
	}
	if snap.Complete {
		return fmt.Errorf("%w: saved game %s already complete", ErrNoSavedSession, snap.SessionID)
	}
	return s.Restore(snap)
}

func validateSnapshot(snap Snapshot) error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidSnapshot, fmt.Sprintf(format, args...))
	}

	if snap.SessionID == "" {
		return invalid("missing session id")
	}
	if _, err := snap.Settings.Normalize(); err != nil {
		return invalid("settings: %v", err)
	}
	n := len(snap.Rounds)
	if n == 0 {
		return invalid("no rounds")
	}
	if snap.CurrentRound < 0 || snap.CurrentRound > n {
		return invalid("current round %d outside [0, %d]", snap.CurrentRound, n)
	}
	if snap.Complete != (snap.CurrentRound == n) {
		return invalid("complete=%v with current round %d of %d", snap.Complete, snap.CurrentRound, n)
	}
	for i, r := range snap.Rounds {
		if r.ID != i+1 {
			return invalid("round %d has id %d", i+1, r.ID)
		}
		if !r.Target.valid() {
			return invalid("round %d has an invalid target", r.ID)
		}
		if i < snap.CurrentRound && !r.Scored() {
			return invalid("round %d was passed without a guess", r.ID)
		}
		if i > snap.CurrentRound && r.Scored() {
			return invalid("round %d scored ahead of round %d", r.ID, snap.CurrentRound+1)
		}
		if o := r.Outcome; o != nil {
			if o.Score < 0 || o.Score > geoscore.MaxScore || o.DistanceKm < 0 || !o.Guess.Valid() {
				return invalid("round %d has an out-of-range outcome", r.ID)
			}
		}
	}
	if got := totalScore(snap.Rounds); got != snap.TotalScore {
		return invalid("total score %d does not match rounds (%d)", snap.TotalScore, got)
	}
	return nil
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID:    s.id,
		Settings:     s.settings,
		Status:       s.status,
		Rounds:       cloneRounds(s.rounds),
		CurrentRound: s.current,
		TotalScore:   totalScore(s.rounds),
		Complete:     s.status == StatusComplete,
		Loading:      s.status == StatusLoading,
		MaxPossible:  len(s.rounds) * geoscore.MaxScore,
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	return snap
}

// Summary reports the game so far. CompletedAt is zero until the game is
// complete.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return summarize(s.id, s.settings, s.rounds, s.completedAt)
}

// RoundPath traces the line between a scored round's guess and the target
// representation its distance was measured to.
func (s *Session) RoundPath(roundID, numPoints int) (iter.Seq[geoscore.Coordinate], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if roundID < 1 || roundID > len(s.rounds) {
		return nil, fmt.Errorf("%w: no round %d", ErrRoundNotScored, roundID)
	}
	o := s.rounds[roundID-1].Outcome
	if o == nil {
		return nil, fmt.Errorf("%w: round %d", ErrRoundNotScored, roundID)
	}
	return geoscore.GeodesicPath(o.Guess, o.OptimalTarget, numPoints), nil
}

func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) TotalScore() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return totalScore(s.rounds)
}

// CurrentRound returns the round awaiting a guess or advance. ok is false
// when no game is in progress.
func (s *Session) CurrentRound() (r Round, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusInProgress {
		return Round{}, false
	}
	return cloneRounds(s.rounds[s.current : s.current+1])[0], true
}

// Err returns the error of the last failed Initialize, if the session has not
// moved on since.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Session) publishLocked(e Event) {
	if s.bus == nil {
		return
	}
	e.Snapshot = s.snapshotLocked()
	s.bus.Publish(e)
}
