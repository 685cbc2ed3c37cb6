package scriptrun

import (
	"context"
	"sync"
	"time"

	"github.com/izzyreal/wishjournal/internal/frames"
)

type State int

const (
	StateCreated State = iota
	StateRunning
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	default:
		return "finished"
	}
}

const inputQueue = 64

// Session is one execution of a Backend. Frames produced by the backend are
// queued until a stream drains them with Manager.Wait.
type Session struct {
	ID      string
	Label   string
	Created time.Time

	backend Backend
	input   chan frames.Input

	mu           sync.Mutex
	state        State
	queue        []frames.Frame
	notify       chan struct{}
	lastActivity time.Time
	exitCode     *int
	timedOut     bool
	cancel       context.CancelFunc
	done         chan struct{}
}

func newSession(id, label string, b Backend, now time.Time) *Session {
	return &Session{
		ID:           id,
		Label:        label,
		Created:      now,
		backend:      b,
		input:        make(chan frames.Input, inputQueue),
		notify:       make(chan struct{}, 1),
		lastActivity: now,
		done:         make(chan struct{}),
	}
}

// Emit queues a frame for the client. It implements IO.
func (s *Session) Emit(f frames.Frame) {
	s.mu.Lock()
	if s.timedOut {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, f)
	s.mu.Unlock()
	s.wake()
}

// Input implements IO.
func (s *Session) Input() <-chan frames.Input {
	return s.input
}

func (s *Session) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) ExitCode() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exitCode == nil {
		return 0, false
	}
	return *s.exitCode, true
}

func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Done is closed once the backend has returned.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}

func (s *Session) drain() ([]frames.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.queue
	s.queue = nil
	return out, s.state == StateFinished
}

func (s *Session) unread(fs []frames.Frame) {
	s.mu.Lock()
	s.queue = append(append(make([]frames.Frame, 0, len(fs)+len(s.queue)), fs...), s.queue...)
	s.mu.Unlock()
	s.wake()
}
