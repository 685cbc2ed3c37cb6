package widget

import (
	"fmt"
	"strings"
)

// Roster tracks the names that may be reanimated during one run. Invalid
// names never consume the remaining count.
type Roster struct {
	allowed   map[string]string
	remaining int
}

func NewRoster(allowed []string, limit int) *Roster {
	r := &Roster{allowed: map[string]string{}, remaining: max(limit, 0)}
	for _, name := range allowed {
		name = strings.TrimSpace(name)
		if name != "" {
			r.allowed[strings.ToLower(name)] = name
		}
	}
	return r
}

func (r *Roster) Remaining() int { return r.remaining }

func (r *Roster) Done() bool { return r.remaining == 0 }

// Submit checks name against the allow-list, ignoring case and surrounding
// whitespace. A match consumes one reanimation and returns the canonical
// spelling.
func (r *Roster) Submit(name string) (string, bool) {
	if r.remaining == 0 {
		return "", false
	}
	canonical, ok := r.allowed[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", false
	}
	r.remaining--
	return canonical, true
}

func newReanimation(p Placeholder) (Behavior, error) {
	phrase := strings.TrimSpace(p.Config.String("unlock_phrase", "LAZARZ WSTAŃ"))
	if phrase == "" {
		return nil, fmt.Errorf("reanimation unlock phrase is empty")
	}
	allowed := p.Config.Strings("allowed", []string{"Burek", "Mruczek", "Filemon", "Reksio"})
	limit := p.Config.Int("limit", 3)
	if limit <= 0 {
		return nil, fmt.Errorf("reanimation limit must be positive, got %d", limit)
	}
	anim := animationFromConfig(p.Config)
	bootLines := p.Config.Strings("boot", []string{
		"MODUŁ REANIMACJI v0.9",
		"Ładowanie rejestru istot...",
		"Wymagana autoryzacja.",
	})

	return func(t *Terminal) error {
		if err := boot(t, bootLines); err != nil {
			return err
		}
		if err := unlock(t, phrase, "Fraza odblokowująca: "); err != nil {
			return err
		}
		roster := NewRoster(allowed, limit)
		for !roster.Done() {
			if err := t.Print(fmt.Sprintf("Pozostało reanimacji: %d", roster.Remaining())); err != nil {
				return err
			}
			name, err := t.ReadLine("Imię istoty: ")
			if err != nil {
				return err
			}
			canonical, ok := roster.Submit(name)
			if !ok {
				if err := t.PrintError(fmt.Sprintf("Nie znaleziono istoty %q w rejestrze.", strings.TrimSpace(name))); err != nil {
					return err
				}
				continue
			}
			if err := anim.play(t, canonical); err != nil {
				return err
			}
		}
		return t.Print("Limit reanimacji wyczerpany. Zamykanie modułu.")
	}, nil
}
