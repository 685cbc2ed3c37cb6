package widget

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Verdict int

const (
	VerdictPending Verdict = iota
	VerdictGranted
	VerdictDenied
	VerdictBlocked
)

// Lock is the state of the code-lock game. The cursor stays within the code,
// digits stay within 0-9 and attempts never drop below zero.
type Lock struct {
	code     []int
	entry    []int
	cursor   int
	attempts int
	verdict  Verdict
}

func NewLock(code []int, attempts int) (*Lock, error) {
	if len(code) == 0 {
		return nil, fmt.Errorf("code lock needs at least one digit")
	}
	for _, d := range code {
		if d < 0 || d > 9 {
			return nil, fmt.Errorf("code digit %d out of range", d)
		}
	}
	if attempts <= 0 {
		return nil, fmt.Errorf("code lock needs a positive number of attempts, got %d", attempts)
	}
	return &Lock{
		code:     append([]int(nil), code...),
		entry:    make([]int, len(code)),
		attempts: attempts,
	}, nil
}

// ParseCode accepts "4624" or "4 6 2 4".
func ParseCode(s string) ([]int, error) {
	s = strings.Join(strings.Fields(s), "")
	if s == "" {
		return nil, fmt.Errorf("empty code")
	}
	out := make([]int, 0, len(s))
	for _, r := range s {
		if r < '0' || r > '9' {
			return nil, fmt.Errorf("invalid code digit %q", r)
		}
		out = append(out, int(r-'0'))
	}
	return out, nil
}

func (l *Lock) Entry() []int { return append([]int(nil), l.entry...) }
func (l *Lock) Cursor() int { return l.cursor }
func (l *Lock) Attempts() int { return l.attempts }
func (l *Lock) Verdict() Verdict { return l.verdict }
func (l *Lock) Len() int { return len(l.code) }
func (l *Lock) Done() bool { return l.verdict == VerdictGranted || l.verdict == VerdictBlocked }
func (l *Lock) lastPosition() bool { return l.cursor == len(l.code)-1 }

func (l *Lock) Increment() {
	if !l.Done() {
		l.entry[l.cursor] = (l.entry[l.cursor] + 1) % 10
	}
}

func (l *Lock) Decrement() {
	if !l.Done() {
		l.entry[l.cursor] = (l.entry[l.cursor] + 9) % 10
	}
}

// Set stores d at the cursor and moves right, stopping on the last digit.
func (l *Lock) Set(d int) {
	if l.Done() || d < 0 || d > 9 {
		return
	}
	l.entry[l.cursor] = d
	if !l.lastPosition() {
		l.cursor++
	}
}

// Advance moves the cursor right. On the last digit it submits the entry.
func (l *Lock) Advance() Verdict {
	if l.Done() {
		return l.verdict
	}
	if !l.lastPosition() {
		l.cursor++
		return VerdictPending
	}
	return l.Submit()
}

func (l *Lock) Retreat() {
	if !l.Done() && l.cursor > 0 {
		l.cursor--
	}
}

// ResetEntry starts a fresh attempt without consuming one.
func (l *Lock) ResetEntry() {
	if l.Done() {
		return
	}
	for i := range l.entry {
		l.entry[i] = 0
	}
	l.cursor = 0
}

func (l *Lock) Submit() Verdict {
	if l.Done() {
		return l.verdict
	}
	match := true
	for i, d := range l.code {
		if l.entry[i] != d {
			match = false
			break
		}
	}
	if match {
		l.verdict = VerdictGranted
		return l.verdict
	}
	if l.attempts > 0 {
		l.attempts--
	}
	if l.attempts == 0 {
		l.verdict = VerdictBlocked
		return l.verdict
	}
	l.ResetEntry()
	return VerdictDenied
}

// Enter sets the whole entry at once and submits it.
func (l *Lock) Enter(digits []int) Verdict {
	if l.Done() {
		return l.verdict
	}
	if len(digits) != len(l.code) {
		return VerdictPending
	}
	copy(l.entry, digits)
	l.cursor = len(l.code) - 1
	return l.Submit()
}

type lockView struct {
	Kind     string `json:"kind"`
	Digits   []int  `json:"digits"`
	Cursor   int    `json:"cursor"`
	Attempts int    `json:"attempts"`
}

func (l *Lock) view() lockView {
	return lockView{Kind: "code-lock", Digits: l.Entry(), Cursor: l.cursor, Attempts: l.attempts}
}

func newCodeLock(p Placeholder) (Behavior, error) {
	code := []int{4, 6, 2, 4}
	switch v := p.Config["code"].(type) {
	case string:
		c, err := ParseCode(v)
		if err != nil {
			return nil, err
		}
		code = c
	case float64:
		c, err := ParseCode(strconv.Itoa(int(v)))
		if err != nil {
			return nil, err
		}
		code = c
	case []any:
		code = code[:0:0]
		for _, x := range v {
			f, ok := x.(float64)
			if !ok {
				return nil, fmt.Errorf("code digit %v is not a number", x)
			}
			code = append(code, int(f))
		}
	}
	attempts := p.Config.Int("attempts", 3)
	if _, err := NewLock(code, attempts); err != nil {
		return nil, err
	}
	bootLines := p.Config.Strings("boot", []string{
		"SYSTEM ZABEZPIECZEŃ v2.3",
		"Inicjalizacja modułu zamka...",
		"Połączenie z rdzeniem: OK",
	})
	verify := p.Config.Millis("verify_ms", 900*time.Millisecond)

	return func(t *Terminal) error {
		lock, err := NewLock(code, attempts)
		if err != nil {
			return err
		}
		if err := boot(t, bootLines); err != nil {
			return err
		}
		if err := t.Lines(
			fmt.Sprintf("Wprowadź %d-cyfrowy kod dostępu.", lock.Len()),
			"Strzałki ↑/↓ zmieniają cyfrę, Enter zatwierdza, Backspace cofa, Esc zeruje.",
		); err != nil {
			return err
		}
		for {
			if err := t.Show(lock.view()); err != nil {
				return err
			}
			in, err := t.ReadInput()
			if err != nil {
				return err
			}
			verdict := VerdictPending
			switch key := in.Key; {
			case key == "ArrowUp":
				lock.Increment()
			case key == "ArrowDown":
				lock.Decrement()
			case key == "ArrowRight":
				if lock.Cursor() < lock.Len()-1 {
					lock.Advance()
				}
			case key == "ArrowLeft" || key == "Backspace":
				lock.Retreat()
			case key == "Escape":
				lock.ResetEntry()
			case key == "Enter":
				verdict = lock.Advance()
			case len(key) == 1 && key[0] >= '0' && key[0] <= '9':
				lock.Set(int(key[0] - '0'))
			case key == "" && strings.TrimSpace(in.Text) != "":
				digits, err := ParseCode(in.Text)
				if err != nil || len(digits) != lock.Len() {
					if err := t.PrintError(fmt.Sprintf("Kod musi mieć %d cyfr.", lock.Len())); err != nil {
						return err
					}
					continue
				}
				verdict = lock.Enter(digits)
			}
			if verdict == VerdictPending {
				continue
			}

			if err := t.Show(lock.view()); err != nil {
				return err
			}
			if err := t.Append("Weryfikacja"); err != nil {
				return err
			}
			if err := t.Dots(3, verify/3); err != nil {
				return err
			}
			if err := t.Newline(); err != nil {
				return err
			}
			switch verdict {
			case VerdictGranted:
				return t.Lines("DOSTĘP PRZYZNANY.", "Zamek zwolniony. Witaj w środku.")
			case VerdictBlocked:
				if err := t.PrintError("KOD NIEPRAWIDŁOWY."); err != nil {
					return err
				}
				if err := t.PrintError("SYSTEM ZABLOKOWANY. Wyczerpano wszystkie próby."); err != nil {
					return err
				}
				return t.Print("Skontaktuj się z administratorem.")
			default:
				if err := t.PrintError(fmt.Sprintf("KOD NIEPRAWIDŁOWY. Pozostało prób: %d", lock.Attempts())); err != nil {
					return err
				}
			}
		}
	}, nil
}
