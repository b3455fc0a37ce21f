package game

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultAutoSaveDelay = time.Second
	saveTimeout          = 5 * time.Second
)

// FailureHook is told about every best-effort side effect that failed. op
// names the side effect ("autosave", "clear", "history", "submit_score").
type FailureHook func(op string, err error)

type AutoSaveOption func(*AutoSaver)

func WithSaveDelay(d time.Duration) AutoSaveOption {
	return func(a *AutoSaver) {
		if d > 0 {
			a.delay = d
		}
	}
}

func WithSaveLogger(l *slog.Logger) AutoSaveOption {
	return func(a *AutoSaver) {
		if l != nil {
			a.logger = l
		}
	}
}

func WithSaveFailureHook(h FailureHook) AutoSaveOption {
	return func(a *AutoSaver) { a.onFailure = h }
}

// AutoSaver persists the in-flight session after it settles. Rapid
// transitions collapse into one write of the latest state; completion and
// reset clear the slot. Errors are logged and never reach the game.
type AutoSaver struct {
	store     SessionStore
	delay     time.Duration
	logger    *slog.Logger
	onFailure FailureHook
	now       func() time.Time

	mu      sync.Mutex
	enabled bool
	timer   *time.Timer
	pending *Snapshot
	epoch   uint64

	// writeMu orders store writes so a clear is never overtaken by an older
	// save.
	writeMu sync.Mutex
}

func NewAutoSaver(store SessionStore, opts ...AutoSaveOption) *AutoSaver {
	a := &AutoSaver{
		store:   store,
		delay:   DefaultAutoSaveDelay,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     time.Now,
		enabled: true,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handle is a Bus subscriber.
func (a *AutoSaver) Handle(e Event) {
	switch e.Kind {
	case EventStarted, EventGuessScored, EventRoundAdvanced, EventRestored:
		if saveable(e.Snapshot) {
			a.schedule(e.Snapshot)
		}
	case EventCompleted, EventReset:
		a.cancel()
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		a.clear(ctx)
	case EventLoading, EventLoadFailed:
		a.cancel()
	}
}

// SetEnabled turns automatic saving on or off. Disabling drops a pending
// save.
func (a *AutoSaver) SetEnabled(enabled bool) {
	a.mu.Lock()
	a.enabled = enabled
	a.mu.Unlock()
	if !enabled {
		a.cancel()
	}
}

func (a *AutoSaver) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

// SaveNow writes snap immediately, replacing any pending save. It reports
// false without writing when snap has no rounds or is complete.
func (a *AutoSaver) SaveNow(ctx context.Context, snap Snapshot) (bool, error) {
	if !saveable(snap) {
		return false, nil
	}
	a.cancel()

	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if err := a.save(ctx, snap); err != nil {
		return false, err
	}
	return true, nil
}

// Flush writes a pending save right away. It is a no-op when nothing is
// pending.
func (a *AutoSaver) Flush(ctx context.Context) error {
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	snap := a.pending
	a.pending = nil
	a.mu.Unlock()

	if snap == nil {
		return nil
	}
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	return a.save(ctx, *snap)
}

func saveable(snap Snapshot) bool {
	return len(snap.Rounds) > 0 && !snap.Complete
}

func (a *AutoSaver) schedule(snap Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.enabled {
		return
	}
	a.pending = &snap
	if a.timer != nil {
		a.timer.Stop()
	}
	epoch := a.epoch
	a.timer = time.AfterFunc(a.delay, func() { a.fire(epoch) })
}

func (a *AutoSaver) cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.epoch++
	a.pending = nil
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

func (a *AutoSaver) fire(epoch uint64) {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	a.mu.Lock()
	if epoch != a.epoch || a.pending == nil {
		a.mu.Unlock()
		return
	}
	snap := *a.pending
	a.pending = nil
	a.timer = nil
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	_ = a.save(ctx, snap)
}

// save must be called with writeMu held.
func (a *AutoSaver) save(ctx context.Context, snap Snapshot) error {
	snap.SavedAt = a.now().UTC()
	if err := a.store.Save(ctx, snap); err != nil {
		a.fail("autosave", err, "session_id", snap.SessionID)
		return err
	}
	a.logger.Debug("session saved", "session_id", snap.SessionID, "round", snap.CurrentRound+1)
	return nil
}

func (a *AutoSaver) clear(ctx context.Context) {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if err := a.store.Clear(ctx); err != nil {
		a.fail("clear", err)
	}
}

func (a *AutoSaver) fail(op string, err error, attrs ...any) {
	a.logger.Warn("side effect failed", append([]any{"op", op, "error", err}, attrs...)...)
	if a.onFailure != nil {
		a.onFailure(op, err)
	}
}
