package widget

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/izzyreal/wishjournal/internal/frames"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recorder struct {
	mu     sync.Mutex
	frames []frames.Frame
}

func (r *recorder) sink(f frames.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func (r *recorder) text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var b strings.Builder
	for _, f := range r.frames {
		if f.Type == frames.TypeOutput || f.Type == frames.TypeError {
			b.WriteString(f.Text)
		}
	}
	return b.String()
}

func (r *recorder) errorText() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var b strings.Builder
	for _, f := range r.frames {
		if f.Type == frames.TypeError {
			b.WriteString(f.Text)
		}
	}
	return b.String()
}

func (r *recorder) uiFrames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, f := range r.frames {
		if f.Type == frames.TypeUI {
			n++
		}
	}
	return n
}

func newTestInstance(t *testing.T, typ, rawConfig string) *Instance {
	t.Helper()
	reg := NewRegistry(discardLogger())
	reg.SetClock(InstantClock{})
	RegisterBuiltins(reg)
	insts := reg.InitializeElements([]Placeholder{{Type: typ, RawConfig: rawConfig}})
	if insts[0] == nil {
		t.Fatalf("construct %s with %q failed", typ, rawConfig)
	}
	return insts[0]
}

func lines(texts ...string) []frames.Input {
	out := make([]frames.Input, 0, len(texts))
	for _, s := range texts {
		out = append(out, frames.Input{Text: s})
	}
	return out
}

func keys(names ...string) []frames.Input {
	out := make([]frames.Input, 0, len(names))
	for _, k := range names {
		out = append(out, frames.Input{Key: k})
	}
	return out
}

func runWithInputs(t *testing.T, inst *Instance, inputs []frames.Input) (*recorder, error) {
	t.Helper()
	rec := &recorder{}
	done := inst.Start(context.Background(), rec.sink)
	for i, in := range inputs {
		if !inst.Send(in) {
			t.Fatalf("send input %d (%+v) rejected", i, in)
		}
	}
	select {
	case err := <-done:
		return rec, err
	case <-time.After(5 * time.Second):
		t.Fatalf("widget run did not finish; output so far:\n%s", rec.text())
		return nil, nil
	}
}
