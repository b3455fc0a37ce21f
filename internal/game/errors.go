package game

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidStateTransition marks a call that had no effect: a second guess
	// on a scored round, a guess or advance after completion, an advance before
	// the round is scored, or any of those while targets are loading. Callers
	// driven by UI events may ignore it.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	ErrInsufficientContent    = errors.New("insufficient content")
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
	ErrScoreSubmission        = errors.New("score submission failed")

	// ErrSuperseded is returned by an Initialize whose result was discarded
	// because a newer Initialize, Reset or Restore ran meanwhile.
	ErrSuperseded = errors.New("initialization superseded")

	ErrNoSavedSession    = errors.New("no saved session")
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	ErrInvalidSnapshot   = errors.New("invalid snapshot")
	ErrInvalidSettings   = errors.New("invalid settings")
	ErrRoundNotScored    = errors.New("round not scored")
	ErrNoGameSource      = errors.New("no source configured for custom games")
)

// InsufficientContentError reports that the target source returned fewer
// valid targets than the session needs.
type InsufficientContentError struct {
	Requested int
	Available int
}

func (e *InsufficientContentError) Error() string {
	return fmt.Sprintf("insufficient content: requested %d targets, %d available", e.Requested, e.Available)
}

func (e *InsufficientContentError) Is(target error) bool {
	return target == ErrInsufficientContent
}
