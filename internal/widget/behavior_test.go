package widget

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/izzyreal/wishjournal/internal/frames"
)

func TestCodeLockGrantedOnFirstTry(t *testing.T) {
	inst := newTestInstance(t, TypeCodeLock, `{"code":[4,6,2,4],"attempts":3}`)
	rec, err := runWithInputs(t, inst, keys("4", "6", "2", "4", "Enter"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	out := rec.text()
	if !strings.Contains(out, "DOSTĘP PRZYZNANY") {
		t.Fatalf("missing success message:\n%s", out)
	}
	if strings.Contains(out, "KOD NIEPRAWIDŁOWY") {
		t.Fatalf("unexpected failure message:\n%s", out)
	}
	if rec.uiFrames() == 0 {
		t.Fatalf("expected code-lock view frames")
	}
	if inst.State() != StateStopped || inst.Phase() != PhaseTerminal {
		t.Fatalf("final state: %s/%s", inst.State(), inst.Phase())
	}
	if !strings.HasPrefix(out, ClearScreen) {
		t.Fatalf("run must start from a cleared screen: %q", out[:10])
	}
}

func TestCodeLockArrowKeys(t *testing.T) {
	inst := newTestInstance(t, TypeCodeLock, `{"code":"19"}`)
	rec, err := runWithInputs(t, inst, keys("ArrowUp", "Enter", "ArrowDown", "Enter"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(rec.text(), "DOSTĘP PRZYZNANY") {
		t.Fatalf("arrow entry failed:\n%s", rec.text())
	}
}

func TestCodeLockBlockedAfterThreeWrongCodes(t *testing.T) {
	inst := newTestInstance(t, TypeCodeLock, `{"code":"4624","attempts":3}`)
	rec, err := runWithInputs(t, inst, lines("1111", "12", "2222", "3333"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	out := rec.text()
	if !strings.Contains(out, "Pozostało prób: 2") || !strings.Contains(out, "Pozostało prób: 1") {
		t.Fatalf("missing attempt countdown:\n%s", out)
	}
	if !strings.Contains(out, "Kod musi mieć 4 cyfr.") {
		t.Fatalf("short code must be rejected without consuming an attempt:\n%s", out)
	}
	if !strings.Contains(rec.errorText(), "SYSTEM ZABLOKOWANY") {
		t.Fatalf("missing blocked message:\n%s", out)
	}
	if strings.Contains(out, "DOSTĘP PRZYZNANY") {
		t.Fatalf("unexpected success:\n%s", out)
	}
}

func TestQuestionnaireBranches(t *testing.T) {
	cases := []struct {
		last string
		want string
	}{
		{"  TAK ", "Życzenie zostało zarejestrowane"},
		{"nie", "Życzenie odrzucone"},
		{"", "Życzenie odrzucone"},
	}
	for _, tc := range cases {
		inst := newTestInstance(t, TypeQuestionnaire, "")
		rec, err := runWithInputs(t, inst, lines("Ala", "spokoju", tc.last))
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		out := rec.text()
		if !strings.Contains(out, tc.want) {
			t.Fatalf("answer %q: missing %q in\n%s", tc.last, tc.want, out)
		}
		if got := strings.Count(out, "Analizuję odpowiedź..."); got != 3 {
			t.Fatalf("analysis count: got %d want 3", got)
		}
	}
}

func TestQuestionnaireCustomAcceptToken(t *testing.T) {
	inst := newTestInstance(t, TypeQuestionnaire, `{"questions":["Gotowy?"],"accept":"yes","yes_ending":"OK!","no_ending":"NO!"}`)
	rec, err := runWithInputs(t, inst, lines("Yes"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(rec.text(), "OK!") {
		t.Fatalf("custom accept token ignored:\n%s", rec.text())
	}
}

func TestReanimationFlow(t *testing.T) {
	inst := newTestInstance(t, TypeReanimation, `{"unlock_phrase":"OTWÓRZ","allowed":["Burek","Reksio"],"limit":3,"bar_blocks":4}`)
	rec, err := runWithInputs(t, inst, lines("otwórz", "OTWÓRZ", "Azor", "burek", "BUREK", "Reksio"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	out := rec.text()
	if got := strings.Count(out, "Nieprawidłowa fraza"); got != 1 {
		t.Fatalf("unlock rejections: got %d want 1", got)
	}
	if got := strings.Count(out, "Nie znaleziono istoty"); got != 1 {
		t.Fatalf("name rejections: got %d want 1", got)
	}
	for _, want := range []string{"Pozostało reanimacji: 3", "Pozostało reanimacji: 2", "Pozostało reanimacji: 1", "Limit reanimacji wyczerpany"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in\n%s", want, out)
		}
	}
	if got := strings.Count(out, "Pozostało reanimacji: 3"); got != 2 {
		t.Fatalf("invalid name must return to the same prompt: count %d", got)
	}
	if got := strings.Count(out, "████ 100%"); got != 3 {
		t.Fatalf("progress bars: got %d want 3", got)
	}
	if got := strings.Count(out, "Burek powraca do życia."); got != 2 {
		t.Fatalf("canonical name: got %d want 2", got)
	}
}

func TestReanimationCatalogFlow(t *testing.T) {
	inst := newTestInstance(t, TypeReanimationCatalog, `{"unlock_phrase":"KLUCZ","items":["Zegar","Miś"],"bar_blocks":2}`)
	rec, err := runWithInputs(t, inst, lines("KLUCZ", "może", "tak", "9", "abc", "1", "tak", "1", "2"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	out := rec.text()
	if got := strings.Count(out, "Nieprawidłowy numer wiersza."); got != 2 {
		t.Fatalf("range errors: got %d want 2\n%s", got, out)
	}
	if !strings.Contains(out, "Zegar został już ożywiony.") {
		t.Fatalf("missing already-animated message:\n%s", out)
	}
	if !strings.Contains(out, "Odpowiedz tak lub nie.") {
		t.Fatalf("missing yes/no hint:\n%s", out)
	}
	if !strings.Contains(out, "Wszystkie obiekty zostały ożywione.") {
		t.Fatalf("missing completion:\n%s", out)
	}
}

func TestReanimationCatalogDecline(t *testing.T) {
	inst := newTestInstance(t, TypeReanimationCatalog, `{"unlock_phrase":"KLUCZ"}`)
	rec, err := runWithInputs(t, inst, lines("KLUCZ", "NIE"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(rec.text(), "Zamykanie katalogu.") {
		t.Fatalf("decline ignored:\n%s", rec.text())
	}
}

func TestCipherManualAndAuto(t *testing.T) {
	inst := newTestInstance(t, TypeCipher, `{"key":"HALO","text":"HAL LA"}`)
	// ciphertext "AHO OH": tiles 0,0,1 then auto for the rest
	inputs := []frames.Input{{Tile: "1"}, {Tile: "0"}, {Tile: "0"}, {Text: "1"}, {Tile: TileAuto}}
	rec, err := runWithInputs(t, inst, inputs)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(rec.text(), "Wiadomość odszyfrowana: HAL LA") {
		t.Fatalf("missing decrypted text:\n%s", rec.text())
	}
	if !strings.Contains(rec.text(), "Szyfrogram: AHO OH") {
		t.Fatalf("missing ciphertext:\n%s", rec.text())
	}
}

func TestBehaviorPanicIsContained(t *testing.T) {
	reg := NewRegistry(discardLogger())
	reg.SetClock(InstantClock{})
	reg.Register("explode", func(Placeholder) (Behavior, error) {
		return func(t *Terminal) error {
			if err := t.Write("przed\n"); err != nil {
				return err
			}
			panic("boom")
		}, nil
	})
	inst := reg.InitializeElements([]Placeholder{{Type: "explode"}})[0]
	rec := &recorder{}
	err := inst.Run(context.Background(), rec.sink)
	if err == nil || errors.Is(err, ErrStopped) {
		t.Fatalf("expected panic error, got %v", err)
	}
	if !strings.Contains(rec.errorText(), "boom") {
		t.Fatalf("panic not reported as error frame: %q", rec.text())
	}
	if inst.State() != StateStopped {
		t.Fatalf("state: got %s want stopped", inst.State())
	}
}

type gateClock struct {
	gate chan time.Time
}

func (g gateClock) After(time.Duration) <-chan time.Time {
	return g.gate
}

func TestRestartCancelsStaleRun(t *testing.T) {
	clock := gateClock{gate: make(chan time.Time)}
	reg := NewRegistry(discardLogger())
	reg.SetClock(clock)
	terms := make(chan *Terminal, 2)
	reg.Register("printer", func(Placeholder) (Behavior, error) {
		return func(t *Terminal) error {
			terms <- t
			return t.Lines("one", "two", "three")
		}, nil
	})
	inst := reg.InitializeElements([]Placeholder{{Type: "printer"}})[0]

	first := &recorder{}
	firstDone := inst.Start(context.Background(), first.sink)
	stale := <-terms
	waitFor(t, func() bool { return first.len() == 1 })

	second := &recorder{}
	secondDone := inst.Start(context.Background(), second.sink)
	select {
	case err := <-firstDone:
		if !errors.Is(err, ErrStopped) {
			t.Fatalf("stale run: got %v want ErrStopped", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("stale run did not stop")
	}
	<-terms

	if err := stale.Print("late"); !errors.Is(err, ErrStopped) {
		t.Fatalf("stale print: got %v want ErrStopped", err)
	}
	if stale.Live() {
		t.Fatalf("stale terminal reports live")
	}

	close(clock.gate)
	select {
	case err := <-secondDone:
		if err != nil {
			t.Fatalf("second run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("second run did not finish")
	}

	if got := first.text(); got != "o" {
		t.Fatalf("stale run output: got %q want %q", got, "o")
	}
	if got := second.text(); got != "one\ntwo\nthree\n" {
		t.Fatalf("active run output: got %q", got)
	}
	if inst.Runs() != 2 {
		t.Fatalf("runs: got %d want 2", inst.Runs())
	}
}

func TestStopDropsInput(t *testing.T) {
	inst := newTestInstance(t, TypeQuestionnaire, "")
	done := inst.Start(context.Background(), (&recorder{}).sink)
	inst.Stop()
	if err := <-done; !errors.Is(err, ErrStopped) {
		t.Fatalf("stopped run: got %v want ErrStopped", err)
	}
	if inst.Send(frames.Input{Text: "x"}) {
		t.Fatalf("stopped instance accepted input")
	}
	if inst.State() != StateStopped {
		t.Fatalf("state: got %s", inst.State())
	}
}

func TestHostPruneAndRelease(t *testing.T) {
	a := newTestInstance(t, TypeCipher, "")
	b := newTestInstance(t, TypeCodeLock, "")
	h := NewHost()
	h.Add(a, b, nil)
	if h.Len() != 2 {
		t.Fatalf("len: got %d want 2", h.Len())
	}
	if got, ok := h.Get(a.ID); !ok || got != a {
		t.Fatalf("get: %v %v", got, ok)
	}
	if n := h.Prune(time.Hour); n != 0 {
		t.Fatalf("fresh instances pruned: %d", n)
	}
	if n := h.Prune(-time.Second); n != 2 {
		t.Fatalf("prune: got %d want 2", n)
	}
	h.Add(a)
	if !h.Release(a.ID) || h.Release(a.ID) {
		t.Fatalf("release must succeed exactly once")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met")
}
