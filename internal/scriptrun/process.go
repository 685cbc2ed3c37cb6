package scriptrun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/izzyreal/wishjournal/internal/frames"
)

const (
	readChunk      = 4096
	stopGrace      = 2 * time.Second
	outputDrainMax = 2 * time.Second
)

// ProcessBackend runs a script with an interpreter attached to a
// pseudo-terminal where the platform has one.
type ProcessBackend struct {
	Interpreter string
	// Args precede the script path on the command line.
	Args   []string
	Script string
	Env    []string
}

// PythonBackend runs script with the given python interpreter, unbuffered.
func PythonBackend(python, script string) ProcessBackend {
	return ProcessBackend{Interpreter: python, Args: []string{"-u"}, Script: script}
}

func (b ProcessBackend) command() *exec.Cmd {
	args := append(append([]string(nil), b.Args...), b.Script)
	cmd := exec.Command(b.Interpreter, args...)
	cmd.Dir = filepath.Dir(b.Script)
	cmd.Env = append(os.Environ(), "PYTHONUNBUFFERED=1", "PYTHONIOENCODING=utf-8", "TERM=xterm-256color")
	cmd.Env = append(cmd.Env, b.Env...)
	return cmd
}

func (b ProcessBackend) Run(ctx context.Context, sio IO) (int, error) {
	cmd := b.command()
	term, err := startTerminal(cmd)
	if err != nil {
		return -1, fmt.Errorf("start %s: %w", filepath.Base(b.Script), err)
	}

	var (
		wg       sync.WaitGroup
		outputMu sync.Mutex
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		pumpOutput(term.out, func(s string) {
			outputMu.Lock()
			sio.Emit(frames.Output(s))
			outputMu.Unlock()
		})
	}()

	inputCtx, stopInput := context.WithCancel(ctx)
	defer stopInput()
	go func() {
		for {
			select {
			case <-inputCtx.Done():
				return
			case in := <-sio.Input():
				if _, err := io.WriteString(term.in, EncodeInput(in)); err != nil {
					return
				}
			}
		}
	}()

	waitErr := waitCancelable(ctx, cmd)

	// Output written just before exit may still be in flight.
	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(outputDrainMax):
	}
	_ = term.Close()
	<-drained

	if ctx.Err() != nil {
		return -1, ctx.Err()
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode(), nil
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, waitErr
}

// waitCancelable waits for cmd, interrupting and then killing its process
// tree when ctx is cancelled.
func waitCancelable(ctx context.Context, cmd *exec.Cmd) error {
	waitCh := make(chan error, 1)
	go func() {
		waitCh <- cmd.Wait()
	}()

	select {
	case err := <-waitCh:
		return err
	case <-ctx.Done():
		_ = interruptProcessTree(cmd)
		timer := time.NewTimer(stopGrace)
		defer timer.Stop()
		select {
		case err := <-waitCh:
			if err != nil {
				return err
			}
			return ctx.Err()
		case <-timer.C:
			_ = killProcessTree(cmd)
			select {
			case err := <-waitCh:
				if err != nil {
					return err
				}
			case <-time.After(stopGrace):
			}
			return ctx.Err()
		}
	}
}

// pumpOutput forwards everything read from r, never splitting a UTF-8
// sequence across two calls to emit.
func pumpOutput(r io.Reader, emit func(string)) {
	buf := make([]byte, readChunk)
	var pending []byte
	for {
		n, err := r.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			cut := completeUTF8(pending)
			if cut > 0 {
				emit(string(pending[:cut]))
				pending = append(pending[:0], pending[cut:]...)
			}
		}
		if err != nil {
			if len(pending) > 0 {
				emit(string(pending))
			}
			return
		}
	}
}

// completeUTF8 returns the length of the longest prefix of b that does not
// end inside a multi-byte sequence.
func completeUTF8(b []byte) int {
	for back := 1; back <= utf8.UTFMax && back <= len(b); back++ {
		i := len(b) - back
		c := b[i]
		if c < utf8.RuneSelf {
			return len(b)
		}
		if utf8.RuneStart(c) {
			if utf8.FullRune(b[i:]) {
				return len(b)
			}
			return i
		}
	}
	return len(b)
}

var keySequences = map[string]string{
	"Enter":      "\r",
	"Backspace":  "\x7f",
	"Tab":        "\t",
	"Escape":     "\x1b",
	"ArrowUp":    "\x1b[A",
	"ArrowDown":  "\x1b[B",
	"ArrowRight": "\x1b[C",
	"ArrowLeft":  "\x1b[D",
	"Home":       "\x1b[H",
	"End":        "\x1b[F",
	"Delete":     "\x1b[3~",
}

// EncodeInput converts client input into the bytes a terminal program
// expects: a line of text gets a newline, named keys become their escape
// sequences.
func EncodeInput(in frames.Input) string {
	switch {
	case in.Key != "":
		if seq, ok := keySequences[in.Key]; ok {
			return seq
		}
		if utf8.RuneCountInString(in.Key) == 1 {
			return in.Key
		}
		return ""
	case in.Tile != "":
		return in.Tile + "\n"
	default:
		return in.Text + "\n"
	}
}
