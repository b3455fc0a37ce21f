package game

import (
	"fmt"
	"sync"
)

type EventKind int

const (
	EventLoading EventKind = iota + 1
	EventLoadFailed
	EventStarted
	EventGuessScored
	EventRoundAdvanced
	EventCompleted
	EventReset
	EventRestored
)

var eventKindNames = map[EventKind]string{
	EventLoading:       "loading",
	EventLoadFailed:    "load_failed",
	EventStarted:       "started",
	EventGuessScored:   "guess_scored",
	EventRoundAdvanced: "round_advanced",
	EventCompleted:     "completed",
	EventReset:         "reset",
	EventRestored:      "restored",
}

func (k EventKind) String() string {
	if n, ok := eventKindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event describes one state transition. Snapshot is the session state right
// after it. Result is set for EventGuessScored, Summary for EventCompleted and
// Err for EventLoadFailed.
type Event struct {
	Seq      uint64
	Kind     EventKind
	Snapshot Snapshot
	Result   *GuessResult
	Summary  *Summary
	Err      error
}

// Bus fans events out to subscribers. Each subscriber gets every event
// published after it subscribed, once and in publish order, on its own
// goroutine. Publish never blocks on a slow subscriber.
type Bus struct {
	mu     sync.Mutex
	seq    uint64
	subs   map[*subscription]struct{}
	closed bool
	wg     sync.WaitGroup
}

type subscription struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Event
	stopped bool
	handler func(Event)
}

func NewBus() *Bus {
	return &Bus{subs: make(map[*subscription]struct{})}
}

// Subscribe registers handler and returns a function that detaches it. Events
// already queued for the handler are still delivered after detaching.
func (b *Bus) Subscribe(handler func(Event)) (unsubscribe func()) {
	sub := &subscription{handler: handler}
	sub.cond = sync.NewCond(&sub.mu)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	b.subs[sub] = struct{}{}
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		sub.run()
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, sub)
			b.mu.Unlock()
			sub.stop()
		})
	}
}

// Publish stamps e with the next sequence number and queues it for every
// subscriber.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.seq++
	e.Seq = b.seq
	for sub := range b.subs {
		sub.push(e)
	}
}

// Close stops accepting events and waits until every subscriber has drained
// its queue. It must not be called from a handler.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.wg.Wait()
		return
	}
	b.closed = true
	for sub := range b.subs {
		sub.stop()
	}
	clear(b.subs)
	b.mu.Unlock()
	b.wg.Wait()
}

func (s *subscription) push(e Event) {
	s.mu.Lock()
	if !s.stopped {
		s.queue = append(s.queue, e)
		s.cond.Signal()
	}
	s.mu.Unlock()
}

func (s *subscription) stop() {
	s.mu.Lock()
	s.stopped = true
	s.cond.Signal()
	s.mu.Unlock()
}

func (s *subscription) run() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.stopped {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		e := s.queue[0]
		s.queue[0] = Event{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.handler(e)
	}
}
