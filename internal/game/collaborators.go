package game

import "context"

// TargetSource supplies random targets. It may return fewer than count but
// never duplicate ids within one call.
type TargetSource interface {
	FetchTargets(ctx context.Context, count int) ([]Target, error)
}

// GameTargetSource supplies the ordered images of a custom game and counts the
// play.
type GameTargetSource interface {
	FetchGameTargets(ctx context.Context, gameID string) ([]Target, error)
}

// SessionStore keeps the single in-flight session slot. Failures wrap
// ErrPersistenceUnavailable; Load returns ErrNoSavedSession when the slot is
// empty.
type SessionStore interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context) (Snapshot, error)
	Clear(ctx context.Context) error
}

// HistorySink receives each completed session once. Retrying is its own
// business.
type HistorySink interface {
	Record(ctx context.Context, summary Summary) error
}

type HistoryReader interface {
	RecentSummaries(ctx context.Context, limit int) ([]Summary, error)
}

type ScoreSubmission struct {
	GameID      string
	PlayerID    string
	SessionID   string
	Score       int
	MaxPossible int
	Rounds      int
}

type ScoreReceipt struct {
	Accepted  bool
	IsNewBest bool
}

// ScoreSubmitter writes a final score to a shared game's leaderboard.
type ScoreSubmitter interface {
	SubmitScore(ctx context.Context, sub ScoreSubmission) (ScoreReceipt, error)
}
