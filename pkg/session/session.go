// Package session turns the console's polling monitors into explicit
// objects. A Session polls one status endpoint on a ticker and walks the
// lifecycle idle -> active -> (completed | failed).
package session

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

type State string

const (
	StateIdle      State = "idle"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Terminal reports whether no further polling happens in this state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

type Kind string

const (
	KindTraining      Kind = "training"
	KindExport        Kind = "export"
	KindRemote        Kind = "remote"
	KindTranscription Kind = "transcription"
)

// Outcome is the verdict on one status snapshot.
type Outcome int

const (
	Continue Outcome = iota
	Complete
	Fail
)

// Event is published after every poll and every state change. Status holds
// the typed snapshot (for example *api.TrainingStatus) or nil.
type Event struct {
	Kind      Kind
	SessionID string
	State     State
	Status    any
	Err       error
	At        time.Time
}

type Notifier func(Event)

type Config[T any] struct {
	Kind     Kind
	Interval time.Duration
	Fetch    func(ctx context.Context) (T, error)
	Judge    func(T) Outcome
	Notify   Notifier
	Logger   *log.Logger
}

type Session[T any] struct {
	kind     Kind
	interval time.Duration
	fetch    func(context.Context) (T, error)
	judge    func(T) Outcome
	notify   Notifier
	logger   *log.Logger

	mu       sync.Mutex
	id       string
	state    State
	latest   T
	hasValue bool
	failures int
	gen      uint64
	cancel   context.CancelFunc
}

func New[T any](cfg Config[T]) *Session[T] {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	return &Session[T]{
		kind:     cfg.Kind,
		interval: cfg.Interval,
		fetch:    cfg.Fetch,
		judge:    cfg.Judge,
		notify:   cfg.Notify,
		logger:   logger,
		state:    StateIdle,
	}
}

// Start begins polling and returns the new session id. Any timer left from
// a previous Start is cancelled first.
func (s *Session[T]) Start(ctx context.Context) string {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.gen++
	gen := s.gen
	s.id = uuid.NewString()
	s.state = StateActive
	s.failures = 0
	ev := s.eventLocked(nil, nil)
	s.mu.Unlock()

	s.publish(ev)
	go s.loop(loopCtx, gen)
	return ev.SessionID
}

// Stop cancels the timer. An active session drops back to idle; terminal
// states are kept so the last result stays visible.
func (s *Session[T]) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	changed := s.state == StateActive
	if changed {
		s.state = StateIdle
	}
	ev := s.eventLocked(nil, nil)
	s.mu.Unlock()
	if changed {
		s.publish(ev)
	}
}

// Poll fetches one snapshot outside the ticker. An idle session records the
// snapshot without changing state.
func (s *Session[T]) Poll(ctx context.Context) (T, error) {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()
	return s.poll(ctx, gen)
}

func (s *Session[T]) loop(ctx context.Context, gen uint64) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, _ = s.poll(ctx, gen)
			if s.finished(gen) {
				return
			}
		}
	}
}

func (s *Session[T]) finished(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen != s.gen || s.state != StateActive
}

func (s *Session[T]) poll(ctx context.Context, gen uint64) (T, error) {
	status, err := s.fetch(ctx)
	if err != nil {
		var zero T
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return zero, err
		}
		s.mu.Lock()
		s.failures++
		n := s.failures
		ev := s.eventLocked(nil, err)
		s.mu.Unlock()
		s.logger.Printf("[session] %s poll failed (%d), skipping: %v", s.kind, n, err)
		s.publish(ev)
		return zero, err
	}

	s.mu.Lock()
	s.latest = status
	s.hasValue = true
	transitioned := false
	if gen == s.gen && s.state == StateActive && s.judge != nil {
		switch s.judge(status) {
		case Complete:
			s.state = StateCompleted
			transitioned = true
		case Fail:
			s.state = StateFailed
			transitioned = true
		}
		if transitioned {
			s.stopLocked()
		}
	}
	ev := s.eventLocked(status, nil)
	s.mu.Unlock()

	if transitioned {
		s.logger.Printf("[session] %s %s (%s)", s.kind, ev.State, ev.SessionID)
	}
	s.publish(ev)
	return status, nil
}

func (s *Session[T]) stopLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Session[T]) eventLocked(status any, err error) Event {
	return Event{Kind: s.kind, SessionID: s.id, State: s.state, Status: status, Err: err, At: time.Now()}
}

func (s *Session[T]) publish(ev Event) {
	if s.notify != nil {
		s.notify(ev)
	}
}

func (s *Session[T]) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session[T]) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Session[T]) Kind() Kind { return s.kind }

// Latest is the most recent snapshot from any poll; ok is false before the
// first successful one.
func (s *Session[T]) Latest() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.hasValue
}

func (s *Session[T]) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

func (s *Session[T]) Active() bool {
	return s.State() == StateActive
}
