package widget

import (
	"fmt"
	"time"
)

func newQuestionnaire(p Placeholder) (Behavior, error) {
	questions := p.Config.Strings("questions", []string{
		"Jak masz na imię?",
		"Czego najbardziej pragniesz?",
		"Czy jesteś gotów/gotowa ponieść koszt spełnienia życzenia? (tak/nie)",
	})
	accept := p.Config.String("accept", "tak")
	if accept == "" {
		return nil, fmt.Errorf("questionnaire accept token is empty")
	}
	yesEnding := p.Config.String("yes_ending", "Życzenie zostało zarejestrowane. Oczekuj na realizację.")
	noEnding := p.Config.String("no_ending", "Życzenie odrzucone. Wróć, gdy będziesz gotów/gotowa.")
	analyze := p.Config.Millis("analyze_ms", 1500*time.Millisecond)
	bootLines := p.Config.Strings("boot", []string{
		"KWESTIONARIUSZ ŻYCZEŃ",
		"Ładowanie formularza...",
		"Formularz gotowy.",
	})

	return func(t *Terminal) error {
		if err := boot(t, bootLines); err != nil {
			return err
		}
		var last string
		for _, q := range questions {
			if err := t.Print(q); err != nil {
				return err
			}
			answer, err := t.ReadLine("> ")
			if err != nil {
				return err
			}
			last = answer
			if err := t.Append("Analizuję odpowiedź"); err != nil {
				return err
			}
			if err := t.Dots(3, analyze/3); err != nil {
				return err
			}
			if err := t.Newline(); err != nil {
				return err
			}
		}
		if isYes(last, accept) {
			return t.Print(yesEnding)
		}
		return t.Print(noEnding)
	}, nil
}
