// Package scriptrun runs terminal sessions on the server and buffers their
// frames for streaming clients.
package scriptrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/izzyreal/wishjournal/internal/frames"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNotRunning      = errors.New("session not running")
	ErrAlreadyRunning  = errors.New("session already running")
	ErrInputFull       = errors.New("session input queue full")
)

// IO is the backend's view of its session.
type IO interface {
	Emit(frames.Frame)
	Input() <-chan frames.Input
}

// Backend produces the frames of one session. Run returns when the work is
// finished or ctx is cancelled.
type Backend interface {
	Run(ctx context.Context, sio IO) (exitCode int, err error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, sio IO) (int, error)

func (f BackendFunc) Run(ctx context.Context, sio IO) (int, error) {
	return f(ctx, sio)
}

type Options struct {
	// Timeout ends a running session after this long without client
	// activity. Output does not count as activity.
	Timeout time.Duration
	// MaxAge removes finished sessions idle for longer than this.
	MaxAge time.Duration
	Logger *slog.Logger
}

type Manager struct {
	timeout time.Duration
	maxAge  time.Duration
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(opts Options) *Manager {
	if opts.Timeout <= 0 {
		opts.Timeout = 300 * time.Second
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{
		timeout:  opts.Timeout,
		maxAge:   opts.MaxAge,
		logger:   opts.Logger,
		now:      time.Now,
		sessions: map[string]*Session{},
	}
}

func (m *Manager) Create(label string, b Backend) *Session {
	s := newSession(uuid.NewString(), label, b, m.now())
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	m.logger.Info("created session", "session_id", s.ID, "label", label)
	return s
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Start runs the session's backend in the background. A session runs once.
func (m *Manager) Start(id string) error {
	s, ok := m.Get(id)
	if !ok {
		return ErrSessionNotFound
	}
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if s.state != StateCreated {
		s.mu.Unlock()
		cancel()
		return ErrAlreadyRunning
	}
	s.state = StateRunning
	s.cancel = cancel
	s.lastActivity = m.now()
	s.mu.Unlock()

	go m.run(ctx, s)
	m.logger.Info("started session", "session_id", id)
	return nil
}

func (m *Manager) run(ctx context.Context, s *Session) {
	code, err := m.runBackend(ctx, s)
	stopped := ctx.Err() != nil
	if err != nil && !stopped && code == 0 {
		code = 1
	}

	s.mu.Lock()
	switch {
	case s.timedOut:
	case stopped:
		m.logger.Info("session stopped", "session_id", s.ID)
	case err != nil:
		m.logger.Error("session failed", "session_id", s.ID, "error", err)
		s.queue = append(s.queue, frames.Error(fmt.Sprintf("Błąd wykonania skryptu: %v\n", err)), frames.Exit(code))
	default:
		m.logger.Info("session finished", "session_id", s.ID, "exit_code", code)
		s.queue = append(s.queue, frames.Exit(code))
	}
	s.state = StateFinished
	s.exitCode = &code
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	close(s.done)
	s.wake()
}

func (m *Manager) runBackend(ctx context.Context, s *Session) (code int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			code, err = -1, fmt.Errorf("backend panicked: %v", rec)
		}
	}()
	return s.backend.Run(ctx, s)
}

// Wait blocks until frames are queued for the session and returns them.
// It returns ErrNotRunning once a finished session has been fully drained,
// and ErrSessionNotFound if the session is destroyed.
func (m *Manager) Wait(ctx context.Context, id string) ([]frames.Frame, error) {
	for {
		s, ok := m.Get(id)
		if !ok {
			return nil, ErrSessionNotFound
		}
		out, finished := s.drain()
		if len(out) > 0 {
			return out, nil
		}
		if finished {
			return nil, ErrNotRunning
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.notify:
		}
	}
}

// Requeue puts frames a stream took with Wait but failed to deliver back at
// the head of the session queue, so a resumed stream receives them.
func (m *Manager) Requeue(id string, fs []frames.Frame) {
	if len(fs) == 0 {
		return
	}
	s, ok := m.Get(id)
	if !ok {
		return
	}
	s.unread(fs)
}

// SendInput forwards client input to a running session and counts as
// activity.
func (m *Manager) SendInput(id string, in frames.Input) error {
	s, ok := m.Get(id)
	if !ok {
		return ErrSessionNotFound
	}
	if s.State() != StateRunning {
		return ErrNotRunning
	}
	s.touch(m.now())
	select {
	case s.input <- in:
		return nil
	default:
		return ErrInputFull
	}
}

// Touch records client activity, as sent by keepalives.
func (m *Manager) Touch(id string) error {
	s, ok := m.Get(id)
	if !ok {
		return ErrSessionNotFound
	}
	s.touch(m.now())
	return nil
}

// Destroy cancels the session's backend and forgets the session.
func (m *Manager) Destroy(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return false
	}
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.wake()
	m.logger.Info("destroyed session", "session_id", id)
	return true
}

// Expire ends running sessions that have been idle longer than the timeout.
// Each gets a timeout frame.
func (m *Manager) Expire() int {
	now := m.now()
	n := 0
	for _, s := range m.snapshot() {
		s.mu.Lock()
		idle := now.Sub(s.lastActivity)
		if s.state != StateRunning || s.timedOut || idle <= m.timeout {
			s.mu.Unlock()
			continue
		}
		s.queue = append(s.queue, frames.Timeout())
		s.timedOut = true
		if s.cancel != nil {
			s.cancel()
		}
		s.mu.Unlock()
		s.wake()
		m.logger.Warn("session timed out", "session_id", s.ID, "idle", idle.Round(time.Second).String())
		n++
	}
	return n
}

// Cleanup destroys sessions that are not running and have been idle for
// longer than maxAge.
func (m *Manager) Cleanup(maxAge time.Duration) int {
	now := m.now()
	var stale []string
	for _, s := range m.snapshot() {
		s.mu.Lock()
		if s.state != StateRunning && now.Sub(s.lastActivity) > maxAge {
			stale = append(stale, s.ID)
		}
		s.mu.Unlock()
	}
	for _, id := range stale {
		m.Destroy(id)
	}
	if len(stale) > 0 {
		m.logger.Info("cleaned up old sessions", "count", len(stale))
	}
	return len(stale)
}

func (m *Manager) snapshot() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Run expires and cleans up sessions until ctx is cancelled, then destroys
// every remaining session.
func (m *Manager) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = 5 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			for _, s := range m.snapshot() {
				m.Destroy(s.ID)
			}
			return
		case <-ticker.C:
			m.Expire()
			m.Cleanup(m.maxAge)
		}
	}
}
