package widget

import (
	"context"
	"strings"
	"time"

	"github.com/izzyreal/wishjournal/internal/frames"
)

const (
	DefaultCharDelay = 30 * time.Millisecond
	DefaultLineDelay = 250 * time.Millisecond

	ClearScreen = "\x1b[2J\x1b[H"
)

// Terminal is the scripted terminal a behaviour talks to. Every method
// returns ErrStopped once the run has been superseded, and nothing reaches
// the client after that.
type Terminal struct {
	ctx   context.Context
	inst  *Instance
	gen   uint64
	input <-chan frames.Input
	clock Clock

	CharDelay time.Duration
	LineDelay time.Duration
}

func newTerminal(ctx context.Context, inst *Instance, gen uint64, input <-chan frames.Input, clock Clock) *Terminal {
	if clock == nil {
		clock = realClock{}
	}
	return &Terminal{
		ctx:       ctx,
		inst:      inst,
		gen:       gen,
		input:     input,
		clock:     clock,
		CharDelay: DefaultCharDelay,
		LineDelay: DefaultLineDelay,
	}
}

func (t *Terminal) configure(cfg Config) {
	t.CharDelay = cfg.Millis("char_delay_ms", t.CharDelay)
	t.LineDelay = cfg.Millis("line_delay_ms", t.LineDelay)
}

func (t *Terminal) Context() context.Context {
	return t.ctx
}

// Live reports whether this run is still the current one.
func (t *Terminal) Live() bool {
	return t.ctx.Err() == nil && t.inst.isLive(t.gen)
}

func (t *Terminal) emit(f frames.Frame) error {
	return t.inst.emit(t.gen, f)
}

func (t *Terminal) SetPhase(p Phase) error {
	return t.inst.setPhase(t.gen, p)
}

// Sleep pauses the run. It is the only place a run suspends besides input.
func (t *Terminal) Sleep(d time.Duration) error {
	if d > 0 {
		select {
		case <-t.ctx.Done():
			return ErrStopped
		case <-t.clock.After(d):
		}
	}
	if !t.Live() {
		return ErrStopped
	}
	return nil
}

func (t *Terminal) typeText(s string, errStyle bool) error {
	for _, r := range s {
		f := frames.Output(string(r))
		if errStyle {
			f = frames.Error(string(r))
		}
		if err := t.emit(f); err != nil {
			return err
		}
		if r == '\n' {
			continue
		}
		if err := t.Sleep(t.CharDelay); err != nil {
			return err
		}
	}
	return nil
}

// Append types s without a trailing newline.
func (t *Terminal) Append(s string) error {
	return t.typeText(s, false)
}

func (t *Terminal) Print(line string) error {
	return t.typeText(line+"\n", false)
}

func (t *Terminal) PrintError(line string) error {
	return t.typeText(line+"\n", true)
}

// Write emits s at once, bypassing the typing effect.
func (t *Terminal) Write(s string) error {
	return t.emit(frames.Output(s))
}

func (t *Terminal) Newline() error {
	return t.Write("\n")
}

// Lines prints each line followed by the inter-line delay.
func (t *Terminal) Lines(lines ...string) error {
	for _, l := range lines {
		if err := t.Print(l); err != nil {
			return err
		}
		if err := t.Sleep(t.LineDelay); err != nil {
			return err
		}
	}
	return nil
}

// Dots appends n dots spaced by every.
func (t *Terminal) Dots(n int, every time.Duration) error {
	for k := 0; k < n; k++ {
		if err := t.Sleep(every); err != nil {
			return err
		}
		if err := t.Write("."); err != nil {
			return err
		}
	}
	return nil
}

// ProgressBar appends blocks block characters evenly over total.
func (t *Terminal) ProgressBar(blocks int, total time.Duration) error {
	if blocks <= 0 {
		return nil
	}
	step := total / time.Duration(blocks)
	for k := 0; k < blocks; k++ {
		if err := t.Sleep(step); err != nil {
			return err
		}
		if err := t.Write("█"); err != nil {
			return err
		}
	}
	return nil
}

func (t *Terminal) Clear() error {
	return t.Write(ClearScreen)
}

// Show sends a structured view, such as a tile board, to the client.
func (t *Terminal) Show(v any) error {
	f, err := frames.UIFrame(v)
	if err != nil {
		return err
	}
	return t.emit(f)
}

// ReadInput waits for the next client input of any kind.
func (t *Terminal) ReadInput() (frames.Input, error) {
	if err := t.SetPhase(PhaseAwaiting); err != nil {
		return frames.Input{}, err
	}
	select {
	case <-t.ctx.Done():
		return frames.Input{}, ErrStopped
	case in, ok := <-t.input:
		if !ok || !t.Live() {
			return frames.Input{}, ErrStopped
		}
		if err := t.SetPhase(PhaseProcessing); err != nil {
			return frames.Input{}, err
		}
		return in, nil
	}
}

// ReadLine types prompt and returns the next line of text, echoed back.
func (t *Terminal) ReadLine(prompt string) (string, error) {
	if prompt != "" {
		if err := t.Append(prompt); err != nil {
			return "", err
		}
	}
	for {
		in, err := t.ReadInput()
		if err != nil {
			return "", err
		}
		if in.Key != "" || in.Tile != "" {
			continue
		}
		line := strings.TrimRight(in.Text, "\r\n")
		if err := t.Write(line + "\n"); err != nil {
			return "", err
		}
		return line, nil
	}
}

// ReadKey returns the next key name, as reported by the browser's
// KeyboardEvent.key.
func (t *Terminal) ReadKey() (string, error) {
	for {
		in, err := t.ReadInput()
		if err != nil {
			return "", err
		}
		if in.Key != "" {
			return in.Key, nil
		}
	}
}

// ReadTile returns the next tile id. A typed line is accepted as a tile id.
func (t *Terminal) ReadTile() (string, error) {
	for {
		in, err := t.ReadInput()
		if err != nil {
			return "", err
		}
		if in.Tile != "" {
			return in.Tile, nil
		}
		if s := strings.TrimSpace(in.Text); s != "" {
			return s, nil
		}
	}
}
