package game

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

const finalizeTimeout = 10 * time.Second

type FinalizerOption func(*Finalizer)

// WithScoreSubmitter enables leaderboard submission for custom games played
// by playerID.
func WithScoreSubmitter(sub ScoreSubmitter, playerID string) FinalizerOption {
	return func(f *Finalizer) {
		f.scores = sub
		f.playerID = playerID
	}
}

func WithFinalizerLogger(l *slog.Logger) FinalizerOption {
	return func(f *Finalizer) {
		if l != nil {
			f.logger = l
		}
	}
}

func WithFinalizerFailureHook(h FailureHook) FinalizerOption {
	return func(f *Finalizer) { f.onFailure = h }
}

// WithResultHook is called after each session has been finalized.
func WithResultHook(h func(FinalizeResult)) FinalizerOption {
	return func(f *Finalizer) { f.onResult = h }
}

type FinalizeResult struct {
	Summary  Summary
	Recorded bool
	// Receipt is nil when no submission was attempted or it failed.
	Receipt *ScoreReceipt
	Err     error
}

// Finalizer hands each completed session to the history sink and, for custom
// games, the leaderboard. A session id is finalized at most once.
type Finalizer struct {
	history   HistorySink
	scores    ScoreSubmitter
	playerID  string
	logger    *slog.Logger
	onFailure FailureHook
	onResult  func(FinalizeResult)

	mu   sync.Mutex
	done map[string]struct{}
}

func NewFinalizer(history HistorySink, opts ...FinalizerOption) *Finalizer {
	f := &Finalizer{
		history: history,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		done:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Handle is a Bus subscriber.
func (f *Finalizer) Handle(e Event) {
	if e.Kind != EventCompleted || e.Summary == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()
	f.Finalize(ctx, *e.Summary)
}

// Finalize records sum and submits its score when it belongs to a custom
// game. Failures are logged and returned in the result; nothing is retried.
func (f *Finalizer) Finalize(ctx context.Context, sum Summary) FinalizeResult {
	res := FinalizeResult{Summary: sum}

	f.mu.Lock()
	if _, seen := f.done[sum.SessionID]; seen {
		f.mu.Unlock()
		return res
	}
	f.done[sum.SessionID] = struct{}{}
	f.mu.Unlock()

	var errs []error
	if f.history != nil {
		if err := f.history.Record(ctx, sum); err != nil {
			f.fail("history", err, sum.SessionID)
			errs = append(errs, fmt.Errorf("record history: %w", err))
		} else {
			res.Recorded = true
		}
	}

	if f.shouldSubmit(sum) {
		receipt, err := f.scores.SubmitScore(ctx, ScoreSubmission{
			GameID:      sum.GameID,
			PlayerID:    f.playerID,
			SessionID:   sum.SessionID,
			Score:       sum.TotalScore,
			MaxPossible: sum.MaxPossible,
			Rounds:      len(sum.Rounds),
		})
		if err != nil {
			if !errors.Is(err, ErrScoreSubmission) {
				err = fmt.Errorf("%w: %w", ErrScoreSubmission, err)
			}
			f.fail("submit_score", err, sum.SessionID)
			errs = append(errs, err)
		} else {
			res.Receipt = &receipt
			f.logger.Info("score submitted", "game_id", sum.GameID, "score", sum.TotalScore, "new_best", receipt.IsNewBest)
		}
	}

	res.Err = errors.Join(errs...)
	if f.onResult != nil {
		f.onResult(res)
	}
	return res
}

func (f *Finalizer) shouldSubmit(sum Summary) bool {
	return f.scores != nil && f.playerID != "" && sum.Mode == ModeCustom && sum.GameID != ""
}

func (f *Finalizer) fail(op string, err error, sessionID string) {
	f.logger.Warn("side effect failed", "op", op, "session_id", sessionID, "error", err)
	if f.onFailure != nil {
		f.onFailure(op, err)
	}
}
