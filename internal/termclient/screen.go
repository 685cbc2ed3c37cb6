package termclient

import (
	"encoding/json"
	"io"
	"strings"
	"sync"
)

type Style int

const (
	StylePlain Style = iota
	StyleError
)

// Span is a run of text sharing one style.
type Span struct {
	Text  string
	Style Style
}

const (
	ansiClear = "\x1b[2J\x1b[H"
	ansiRed   = "\x1b[31m"
	ansiReset = "\x1b[0m"
)

// Screen is the rendered state of a terminal session. Appends are mirrored
// to an optional writer, with error text in red and clears passed through.
type Screen struct {
	mu     sync.Mutex
	spans  []Span
	view   json.RawMessage
	mirror io.Writer
}

func NewScreen(mirror io.Writer) *Screen {
	return &Screen{mirror: mirror}
}

func (s *Screen) Append(text string, style Style) {
	if text == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.spans); n > 0 && s.spans[n-1].Style == style {
		s.spans[n-1].Text += text
	} else {
		s.spans = append(s.spans, Span{Text: text, Style: style})
	}
	if s.mirror == nil {
		return
	}
	if style == StyleError {
		io.WriteString(s.mirror, ansiRed+text+ansiReset)
		return
	}
	io.WriteString(s.mirror, text)
}

func (s *Screen) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spans = nil
	if s.mirror != nil {
		io.WriteString(s.mirror, ansiClear)
	}
}

// SetView records the latest structured view sent by the session.
func (s *Screen) SetView(v json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = append(json.RawMessage(nil), v...)
}

func (s *Screen) View() json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// Text returns the visible text regardless of style.
func (s *Screen) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var b strings.Builder
	for _, sp := range s.spans {
		b.WriteString(sp.Text)
	}
	return b.String()
}

func (s *Screen) Spans() []Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Span(nil), s.spans...)
}

// Reset empties the screen without touching the mirror.
func (s *Screen) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spans = nil
	s.view = nil
}
