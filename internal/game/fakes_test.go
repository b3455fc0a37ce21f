package game

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/susu3304/whereami/internal/geoscore"
)

type fakeSource struct {
	mu      sync.Mutex
	targets []Target
	err     error
	calls   int
	// gate, when set, blocks FetchTargets until it is closed.
	gate chan struct{}
}

func (f *fakeSource) FetchTargets(ctx context.Context, count int) ([]Target, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.targets[:min(count, len(f.targets))], nil
}

type fakeGameSource struct {
	games map[string][]Target
	plays map[string]int
}

func (f *fakeGameSource) FetchGameTargets(ctx context.Context, gameID string) ([]Target, error) {
	ts, ok := f.games[gameID]
	if !ok {
		return nil, errors.New("game not found")
	}
	if f.plays == nil {
		f.plays = make(map[string]int)
	}
	f.plays[gameID]++
	return ts, nil
}

type memStore struct {
	mu     sync.Mutex
	snap   *Snapshot
	saves  int
	clears int
	err    error
}

func (m *memStore) Save(ctx context.Context, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saves++
	s := snap
	s.Rounds = cloneRounds(snap.Rounds)
	m.snap = &s
	return nil
}

func (m *memStore) Load(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return Snapshot{}, m.err
	}
	if m.snap == nil {
		return Snapshot{}, ErrNoSavedSession
	}
	return *m.snap, nil
}

func (m *memStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.clears++
	m.snap = nil
	return nil
}

func (m *memStore) state() (snap *Snapshot, saves, clears int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap, m.saves, m.clears
}

// equatorTargets are three targets on the equator so that guess distances are
// easy to construct.
func equatorTargets() []Target {
	return []Target{
		{ID: "img-1", ImageRef: "images/1.jpg", Location: geoscore.Coordinate{Lat: 0, Lng: 0}},
		{ID: "img-2", ImageRef: "images/2.jpg", Location: geoscore.Coordinate{Lat: 0, Lng: 0}},
		{ID: "img-3", ImageRef: "images/3.jpg", Location: geoscore.Coordinate{Lat: 0, Lng: 0}},
	}
}

// Degrees of longitude on the equator that span exactly 5000 km and 500 km.
const (
	lng5000km = 44.96608029593653
	lng500km  = 4.496608029593653
)

func startedSession(t testing.TB, opts ...Option) *Session {
	t.Helper()
	s := NewSession(&fakeSource{targets: equatorTargets()}, opts...)
	if err := s.Initialize(context.Background(), DefaultSettings()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return s
}
