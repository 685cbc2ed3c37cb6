// Package termclient consumes a streamed terminal session: it decodes frames,
// keeps a screen buffer and sends input over a side channel.
package termclient

import "strings"

// clearSequences are the escape sequences that wipe the screen, longest first.
var clearSequences = []string{
	"\x1b[2J\x1b[H",
	"\x1b[H\x1b[2J",
	"\x1b[2J",
	"\x1bc",
}

// Segment is one piece of filtered output: either text to append or a clear.
type Segment struct {
	Text  string
	Clear bool
}

// OutputFilter finds clear-screen sequences in output that may be split
// across frames. Only a possible sequence prefix is held back between
// writes, so the pending buffer never exceeds the longest sequence.
type OutputFilter struct {
	pending string
}

// Write feeds a chunk of output and returns the segments that are complete.
func (f *OutputFilter) Write(chunk string) []Segment {
	buf := f.pending + chunk
	f.pending = ""

	var (
		out  []Segment
		text strings.Builder
	)
	flushText := func() {
		if text.Len() > 0 {
			out = append(out, Segment{Text: text.String()})
			text.Reset()
		}
	}

	for i := 0; i < len(buf); {
		if buf[i] != 0x1b {
			j := strings.IndexByte(buf[i:], 0x1b)
			if j < 0 {
				text.WriteString(buf[i:])
				break
			}
			text.WriteString(buf[i : i+j])
			i += j
			continue
		}
		rest := buf[i:]
		if couldExtend(rest) {
			f.pending = rest
			break
		}
		if n := matchClear(rest); n > 0 {
			flushText()
			out = append(out, Segment{Clear: true})
			i += n
			continue
		}
		text.WriteByte(buf[i])
		i++
	}
	flushText()
	return out
}

// Flush ends the stream and returns whatever was held back.
func (f *OutputFilter) Flush() []Segment {
	rest := f.pending
	f.pending = ""
	if rest == "" {
		return nil
	}
	if n := matchClear(rest); n > 0 {
		out := []Segment{{Clear: true}}
		if n < len(rest) {
			out = append(out, Segment{Text: rest[n:]})
		}
		return out
	}
	return []Segment{{Text: rest}}
}

// Pending reports how many bytes are held back.
func (f *OutputFilter) Pending() int {
	return len(f.pending)
}

// couldExtend reports whether s is a proper prefix of some clear sequence,
// so more input is needed before deciding.
func couldExtend(s string) bool {
	for _, seq := range clearSequences {
		if len(s) < len(seq) && strings.HasPrefix(seq, s) {
			return true
		}
	}
	return false
}

func matchClear(s string) int {
	for _, seq := range clearSequences {
		if strings.HasPrefix(s, seq) {
			return len(seq)
		}
	}
	return 0
}
