package game

import (
	"fmt"
	"slices"
	"time"

	"github.com/susu3304/whereami/internal/geoscore"
)

type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusInProgress
	StatusComplete
)

var statusNames = [...]string{"idle", "loading", "in_progress", "complete"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

func (s Status) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(statusNames) {
		return nil, fmt.Errorf("unknown status %d", int(s))
	}
	return []byte(statusNames[s]), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	i := slices.Index(statusNames[:], string(b))
	if i < 0 {
		return fmt.Errorf("unknown status %q", b)
	}
	*s = Status(i)
	return nil
}

type Mode string

const (
	ModeRandom Mode = "random"
	ModeCustom Mode = "custom"
)

const DefaultNumRounds = 3

// Settings selects what a session plays. In custom mode NumRounds may be zero,
// meaning every image of the game.
type Settings struct {
	NumRounds int    `json:"numRounds"`
	Mode      Mode   `json:"mode"`
	GameID    string `json:"gameId,omitempty"`
}

func DefaultSettings() Settings {
	return Settings{NumRounds: DefaultNumRounds, Mode: ModeRandom}
}

// Normalize fills defaults and rejects inconsistent settings.
func (s Settings) Normalize() (Settings, error) {
	if s.Mode == "" {
		s.Mode = ModeRandom
	}
	if s.NumRounds < 0 {
		return s, fmt.Errorf("%w: negative round count %d", ErrInvalidSettings, s.NumRounds)
	}
	switch s.Mode {
	case ModeRandom:
		if s.NumRounds == 0 {
			s.NumRounds = DefaultNumRounds
		}
		s.GameID = ""
	case ModeCustom:
		if s.GameID == "" {
			return s, fmt.Errorf("%w: custom mode requires a game id", ErrInvalidSettings)
		}
	default:
		return s, fmt.Errorf("%w: unknown mode %q", ErrInvalidSettings, s.Mode)
	}
	return s, nil
}

// Target is a photograph and where it was taken. It is never mutated once a
// round holds it.
type Target struct {
	ID       string              `json:"id"`
	ImageRef string              `json:"imageRef"`
	Location geoscore.Coordinate `json:"location"`
}

func (t Target) valid() bool {
	return t.ID != "" && t.Location.Valid()
}

// Outcome is what a scored round records. OptimalTarget is the representation
// of the target location the distance was measured to.
type Outcome struct {
	Guess         geoscore.Coordinate `json:"guess"`
	Score         int                 `json:"score"`
	DistanceKm    float64             `json:"distanceKm"`
	OptimalTarget geoscore.Coordinate `json:"optimalTarget"`
}

// Round is one guess opportunity. A nil Outcome means the round is still
// awaiting its guess.
type Round struct {
	ID      int      `json:"id"`
	Target  Target   `json:"target"`
	Outcome *Outcome `json:"outcome,omitempty"`
}

func (r Round) Scored() bool { return r.Outcome != nil }

func (r Round) Score() int {
	if r.Outcome == nil {
		return 0
	}
	return r.Outcome.Score
}

func cloneRounds(rounds []Round) []Round {
	if rounds == nil {
		return nil
	}
	out := make([]Round, len(rounds))
	for i, r := range rounds {
		out[i] = r
		if r.Outcome != nil {
			o := *r.Outcome
			out[i].Outcome = &o
		}
	}
	return out
}

func totalScore(rounds []Round) int {
	total := 0
	for _, r := range rounds {
		total += r.Score()
	}
	return total
}

type GuessResult struct {
	RoundID       int                 `json:"roundId"`
	Guess         geoscore.Coordinate `json:"guess"`
	Score         int                 `json:"score"`
	DistanceKm    float64             `json:"distanceKm"`
	OptimalTarget geoscore.Coordinate `json:"optimalTarget"`
	IsLastRound   bool                `json:"isLastRound"`
}

// Snapshot is a point-in-time copy of a session. It is both what observers
// see and what a SessionStore persists.
type Snapshot struct {
	SessionID    string    `json:"sessionId"`
	Settings     Settings  `json:"settings"`
	Status       Status    `json:"status"`
	Rounds       []Round   `json:"rounds"`
	CurrentRound int       `json:"currentRoundIndex"`
	TotalScore   int       `json:"totalScore"`
	Complete     bool      `json:"complete"`
	Loading      bool      `json:"loading"`
	LastError    string    `json:"lastError,omitempty"`
	MaxPossible  int       `json:"maxPossible"`
	SavedAt      time.Time `json:"savedAt,omitzero"`
}

type RoundSummary struct {
	ID         int      `json:"id"`
	ImageID    string   `json:"imageId"`
	Score      int      `json:"score"`
	DistanceKm *float64 `json:"distanceKm,omitempty"`
}

// Summary is the finalized record of a session handed to history and score
// collaborators.
type Summary struct {
	SessionID   string         `json:"sessionId"`
	GameID      string         `json:"gameId,omitempty"`
	Mode        Mode           `json:"mode"`
	Rounds      []RoundSummary `json:"rounds"`
	TotalScore  int            `json:"totalScore"`
	MaxPossible int            `json:"maxPossible"`
	CompletedAt time.Time      `json:"completedAt,omitzero"`
}

func (s Summary) Completed() bool { return !s.CompletedAt.IsZero() }

func summarize(id string, settings Settings, rounds []Round, completedAt time.Time) Summary {
	sum := Summary{
		SessionID:   id,
		GameID:      settings.GameID,
		Mode:        settings.Mode,
		Rounds:      make([]RoundSummary, 0, len(rounds)),
		MaxPossible: len(rounds) * geoscore.MaxScore,
		CompletedAt: completedAt,
	}
	for _, r := range rounds {
		rs := RoundSummary{ID: r.ID, ImageID: r.Target.ID, Score: r.Score()}
		if r.Outcome != nil {
			d := r.Outcome.DistanceKm
			rs.DistanceKm = &d
		}
		sum.Rounds = append(sum.Rounds, rs)
		sum.TotalScore += rs.Score
	}
	return sum
}
