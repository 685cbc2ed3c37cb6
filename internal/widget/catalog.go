package widget

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	ErrRowRange        = errors.New("row out of range")
	ErrAlreadyAnimated = errors.New("item already animated")
)

type CatalogItem struct {
	Name     string
	Animated bool
}

// Catalog is the table of objects of the catalog variant.
type Catalog struct {
	items []CatalogItem
}

func NewCatalog(names []string) *Catalog {
	c := &Catalog{}
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			c.items = append(c.items, CatalogItem{Name: n})
		}
	}
	return c
}

func (c *Catalog) Items() []CatalogItem {
	return append([]CatalogItem(nil), c.items...)
}

func (c *Catalog) Done() bool {
	for _, it := range c.items {
		if !it.Animated {
			return false
		}
	}
	return true
}

// Pick marks the 1-based row as animated.
func (c *Catalog) Pick(row int) (CatalogItem, error) {
	if row < 1 || row > len(c.items) {
		return CatalogItem{}, ErrRowRange
	}
	it := &c.items[row-1]
	if it.Animated {
		return *it, ErrAlreadyAnimated
	}
	it.Animated = true
	return *it, nil
}

func (c *Catalog) Table() []string {
	width := utf8.RuneCountInString("Obiekt")
	for _, it := range c.items {
		width = max(width, utf8.RuneCountInString(it.Name))
	}
	pad := func(s string) string {
		return s + strings.Repeat(" ", width-utf8.RuneCountInString(s))
	}
	lines := []string{
		fmt.Sprintf("Nr | %s | Status", pad("Obiekt")),
		fmt.Sprintf("---+-%s-+---------", strings.Repeat("-", width)),
	}
	for i, it := range c.items {
		status := "oczekuje"
		if it.Animated {
			status = "ożywiony"
		}
		lines = append(lines, fmt.Sprintf("%2d | %s | %s", i+1, pad(it.Name), status))
	}
	return lines
}

func newCatalog(p Placeholder) (Behavior, error) {
	phrase := strings.TrimSpace(p.Config.String("unlock_phrase", "LAZARZ WSTAŃ"))
	if phrase == "" {
		return nil, fmt.Errorf("catalog unlock phrase is empty")
	}
	names := p.Config.Strings("items", []string{"Zegar z kukułką", "Pluszowy miś", "Stara latarnia", "Porcelanowa lalka"})
	if len(NewCatalog(names).items) == 0 {
		return nil, fmt.Errorf("catalog has no items")
	}
	accept := p.Config.String("accept", "tak")
	decline := p.Config.String("decline", "nie")
	anim := animationFromConfig(p.Config)
	bootLines := p.Config.Strings("boot", []string{
		"KATALOG OŻYWIANIA PRZEDMIOTÓW",
		"Wczytywanie inwentarza...",
		"Wymagana autoryzacja.",
	})

	return func(t *Terminal) error {
		if err := boot(t, bootLines); err != nil {
			return err
		}
		if err := unlock(t, phrase, "Fraza odblokowująca: "); err != nil {
			return err
		}
		catalog := NewCatalog(names)
		for !catalog.Done() {
			if err := t.Lines(catalog.Table()...); err != nil {
				return err
			}
			answer, err := t.ReadLine(fmt.Sprintf("Kontynuować? (%s/%s): ", accept, decline))
			if err != nil {
				return err
			}
			switch {
			case isYes(answer, accept):
			case isYes(answer, decline):
				return t.Print("Zamykanie katalogu.")
			default:
				if err := t.PrintError(fmt.Sprintf("Odpowiedz %s lub %s.", accept, decline)); err != nil {
					return err
				}
				continue
			}

			for {
				line, err := t.ReadLine("Numer wiersza: ")
				if err != nil {
					return err
				}
				row, convErr := strconv.Atoi(strings.TrimSpace(line))
				if convErr != nil {
					row = 0
				}
				item, err := catalog.Pick(row)
				if errors.Is(err, ErrRowRange) {
					if err := t.PrintError("Nieprawidłowy numer wiersza."); err != nil {
						return err
					}
					continue
				}
				if errors.Is(err, ErrAlreadyAnimated) {
					if err := t.PrintError(fmt.Sprintf("%s został już ożywiony.", item.Name)); err != nil {
						return err
					}
					continue
				}
				if err := anim.play(t, item.Name); err != nil {
					return err
				}
				break
			}
		}
		if err := t.Lines(catalog.Table()...); err != nil {
			return err
		}
		return t.Print("Wszystkie obiekty zostały ożywione.")
	}, nil
}
