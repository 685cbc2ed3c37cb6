package widget

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

// ErrStopped is returned to a run whose instance was stopped or restarted.
var ErrStopped = errors.New("widget stopped")

type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseLoading    Phase = "loading"
	PhaseAwaiting   Phase = "awaiting-input"
	PhaseProcessing Phase = "processing"
	PhaseTerminal   Phase = "terminal"
)

// Sink receives the frames of a run. It is called with the instance lock
// held and must not call back into the instance.
type Sink func(frames.Frame)

const inputBuffer = 32

// Instance is one constructed widget. Runs are serialised by a generation
// counter: starting a new run or stopping invalidates every earlier run, and
// a stale run can neither emit frames nor receive input.
type Instance struct {
	ID      string
	Type    string
	Config  Config
	Created time.Time

	behavior Behavior
	clock    Clock
	logger   *slog.Logger

	mu      sync.Mutex
	state   State
	phase   Phase
	gen     uint64
	runs    int
	sink    Sink
	input   chan frames.Input
	cancel  context.CancelFunc
	lastUse time.Time
}

func newInstance(typ string, cfg Config, b Behavior, clock Clock, logger *slog.Logger) *Instance {
	now := time.Now()
	return &Instance{
		ID:       uuid.NewString(),
		Type:     typ,
		Config:   cfg,
		Created:  now,
		behavior: b,
		clock:    clock,
		logger:   logger.With("widget", typ),
		state:    StateIdle,
		phase:    PhaseIdle,
		lastUse:  now,
	}
}

func (i *Instance) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

func (i *Instance) Phase() Phase {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.phase
}

// Runs reports how many runs have been started.
func (i *Instance) Runs() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.runs
}

func (i *Instance) LastUsed() time.Time {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.lastUse
}

// Run starts a new run, invalidating any run in progress, and blocks until
// the behaviour finishes. A run that was superseded returns ErrStopped.
func (i *Instance) Run(ctx context.Context, sink Sink) error {
	t, cancel := i.begin(ctx, sink)
	defer cancel()
	return i.execute(t)
}

// Start is Run in a new goroutine. The returned channel yields the run's
// result once.
func (i *Instance) Start(ctx context.Context, sink Sink) <-chan error {
	t, cancel := i.begin(ctx, sink)
	done := make(chan error, 1)
	go func() {
		defer cancel()
		done <- i.execute(t)
	}()
	return done
}

func (i *Instance) begin(ctx context.Context, sink Sink) (*Terminal, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(ctx)

	i.mu.Lock()
	if i.cancel != nil {
		i.cancel()
	}
	i.gen++
	i.runs++
	i.state = StateRunning
	i.phase = PhaseLoading
	i.sink = sink
	i.input = make(chan frames.Input, inputBuffer)
	i.cancel = cancel
	i.lastUse = time.Now()
	t := newTerminal(runCtx, i, i.gen, i.input, i.clock)
	i.mu.Unlock()

	t.configure(i.Config)
	return t, cancel
}

func (i *Instance) execute(t *Terminal) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			i.logger.Error("widget run panicked", "id", i.ID, "panic", fmt.Sprint(rec))
			err = fmt.Errorf("widget panicked: %v", rec)
		}
		if err != nil && !errors.Is(err, ErrStopped) {
			_ = t.emit(frames.Error(fmt.Sprintf("Błąd widżetu: %v\n", err)))
		}
		i.finish(t.gen, err)
	}()
	err = i.behavior(t)
	if err == nil {
		if !t.Live() {
			err = ErrStopped
		}
	}
	return err
}

func (i *Instance) finish(gen uint64, err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.gen != gen {
		return
	}
	i.state = StateStopped
	if err == nil {
		i.phase = PhaseTerminal
	}
	if i.cancel != nil {
		i.cancel()
		i.cancel = nil
	}
	i.input = nil
	i.sink = nil
}

// Stop invalidates the current run. The stale run observes the change at
// its next suspension point and returns without further output.
func (i *Instance) Stop() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != StateRunning {
		return
	}
	i.gen++
	i.state = StateStopped
	if i.cancel != nil {
		i.cancel()
		i.cancel = nil
	}
	i.input = nil
	i.sink = nil
}

// Send delivers client input to the current run. It reports false when no
// run is accepting input or the input queue is full.
func (i *Instance) Send(in frames.Input) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != StateRunning || i.input == nil {
		return false
	}
	i.lastUse = time.Now()
	select {
	case i.input <- in:
		return true
	default:
		i.logger.Warn("widget input dropped", "id", i.ID)
		return false
	}
}

func (i *Instance) live(gen uint64) bool {
	return i.gen == gen && i.state == StateRunning
}

func (i *Instance) emit(gen uint64, f frames.Frame) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.live(gen) {
		return ErrStopped
	}
	if i.sink != nil {
		i.sink(f)
	}
	return nil
}

func (i *Instance) setPhase(gen uint64, p Phase) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.live(gen) {
		return ErrStopped
	}
	i.phase = p
	return nil
}

func (i *Instance) isLive(gen uint64) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.live(gen)
}
