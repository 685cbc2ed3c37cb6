// Package frames defines the typed frames exchanged by the streamed terminal
// and their server-sent-events encoding.
package frames

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

const (
	TypeSession = "session"
	TypeOutput  = "output"
	TypeError   = "error"
	TypeExit    = "exit"
	TypeTimeout = "timeout"
	TypeUI      = "ui"
)

// Frame is one event of a terminal session. Type selects which fields matter:
// session carries SessionID, output and error carry Text, exit carries Code
// and ui carries UI.
type Frame struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Code      *int            `json:"code,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	UI        json.RawMessage `json:"ui,omitempty"`
}

func Session(id string) Frame { return Frame{Type: TypeSession, SessionID: id} }
func Output(text string) Frame { return Frame{Type: TypeOutput, Text: text} }
func Error(text string) Frame { return Frame{Type: TypeError, Text: text} }
func Timeout() Frame { return Frame{Type: TypeTimeout} }

func Exit(code int) Frame {
	return Frame{Type: TypeExit, Code: &code}
}

// UIFrame wraps a structured view payload such as a tile board.
func UIFrame(v any) (Frame, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Frame{}, fmt.Errorf("encode ui frame: %w", err)
	}
	return Frame{Type: TypeUI, UI: data}, nil
}

// Terminal reports whether the frame ends a session.
func (f Frame) Terminal() bool {
	return f.Type == TypeExit || f.Type == TypeTimeout
}

func (f Frame) ExitCode() int {
	if f.Code == nil {
		return 0
	}
	return *f.Code
}

// Input is a client event sent out of band: a text line, a named key or a
// tile selection.
type Input struct {
	Text string `json:"text,omitempty"`
	Key  string `json:"key,omitempty"`
	Tile string `json:"tile,omitempty"`
}

func (in Input) Empty() bool {
	return in.Text == "" && in.Key == "" && in.Tile == ""
}

// WriteSSE writes f as one server-sent event named after the frame type.
func WriteSSE(w io.Writer, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", f.Type, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Decoder reads frames from a server-sent-events stream.
type Decoder struct {
	r *bufio.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next frame. Comment lines and events without data are
// skipped. It returns io.EOF when the stream ends cleanly.
func (d *Decoder) Next() (Frame, error) {
	var (
		event string
		data  []string
	)
	for {
		line, err := d.r.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			if err == io.EOF && len(data) > 0 {
				return decodeEvent(event, data)
			}
			return Frame{}, err
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if len(data) > 0 {
				return decodeEvent(event, data)
			}
			event = ""
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
		if err == io.EOF {
			if len(data) > 0 {
				return decodeEvent(event, data)
			}
			return Frame{}, io.EOF
		}
	}
}

func decodeEvent(event string, data []string) (Frame, error) {
	var f Frame
	if err := json.Unmarshal([]byte(strings.Join(data, "\n")), &f); err != nil {
		return Frame{}, fmt.Errorf("decode %q frame: %w", event, err)
	}
	if f.Type == "" {
		f.Type = event
	}
	return f, nil
}
