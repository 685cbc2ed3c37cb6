package widget

import (
	"strings"
	"time"
)

// Shared narrative steps reused by the variants.

func boot(t *Terminal, lines []string) error {
	if err := t.SetPhase(PhaseLoading); err != nil {
		return err
	}
	if err := t.Clear(); err != nil {
		return err
	}
	return t.Lines(lines...)
}

// unlock loops until the exact phrase, ignoring surrounding whitespace, is
// typed.
func unlock(t *Terminal, phrase, prompt string) error {
	for {
		line, err := t.ReadLine(prompt)
		if err != nil {
			return err
		}
		if strings.TrimSpace(line) == phrase {
			return t.Print("Fraza przyjęta. Moduł odblokowany.")
		}
		if err := t.PrintError("Nieprawidłowa fraza. Dostęp zabroniony."); err != nil {
			return err
		}
	}
}

type animation struct {
	narration []string
	blocks    int
	duration  time.Duration
}

func (a animation) play(t *Terminal, name string) error {
	for _, line := range a.narration {
		if err := t.Lines(strings.ReplaceAll(line, "{name}", name)); err != nil {
			return err
		}
	}
	if err := t.Append("Postęp: "); err != nil {
		return err
	}
	if err := t.ProgressBar(a.blocks, a.duration); err != nil {
		return err
	}
	if err := t.Write(" 100%\n"); err != nil {
		return err
	}
	return t.Print(name + " powraca do życia.")
}

func animationFromConfig(cfg Config) animation {
	return animation{
		narration: cfg.Strings("narration", []string{
			"Lokalizowanie wzorca: {name}",
			"Synchronizacja pola życiowego...",
			"Wstrzykiwanie iskry...",
		}),
		blocks:   max(cfg.Int("bar_blocks", 20), 1),
		duration: cfg.Millis("bar_ms", 3000*time.Millisecond),
	}
}

func isYes(s, accept string) bool {
	return strings.EqualFold(strings.TrimSpace(s), accept)
}
