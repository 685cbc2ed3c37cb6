package widget

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const (
	TileNone = "none"
	TileAuto = "auto"
)

// Mapping is a symmetric letter substitution built from consecutive pairs of
// a key: "HALO" swaps H with A and L with O. Applying it twice is the
// identity; letters outside the key pass through.
type Mapping struct {
	pairs [][2]rune
	swap  map[rune]rune
}

func NewMapping(key string) (Mapping, error) {
	letters := []rune(strings.ToUpper(strings.Join(strings.Fields(key), "")))
	if len(letters) == 0 {
		return Mapping{}, fmt.Errorf("cipher key is empty")
	}
	if len(letters)%2 != 0 {
		return Mapping{}, fmt.Errorf("cipher key %q has an odd number of letters", key)
	}
	m := Mapping{swap: map[rune]rune{}}
	for i := 0; i < len(letters); i += 2 {
		a, b := letters[i], letters[i+1]
		if a == b {
			return Mapping{}, fmt.Errorf("cipher key pairs %q with itself", a)
		}
		if _, dup := m.swap[a]; dup {
			return Mapping{}, fmt.Errorf("cipher key repeats %q", a)
		}
		if _, dup := m.swap[b]; dup {
			return Mapping{}, fmt.Errorf("cipher key repeats %q", b)
		}
		m.swap[a] = b
		m.swap[b] = a
		m.pairs = append(m.pairs, [2]rune{a, b})
	}
	return m, nil
}

func (m Mapping) Pairs() [][2]rune {
	return append([][2]rune(nil), m.pairs...)
}

// Map substitutes r, preserving case.
func (m Mapping) Map(r rune) (rune, bool) {
	up := unicode.ToUpper(r)
	to, ok := m.swap[up]
	if !ok {
		return r, false
	}
	if unicode.IsLower(r) {
		return unicode.ToLower(to), true
	}
	return to, true
}

func (m Mapping) Decrypt(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		to, _ := m.Map(r)
		b.WriteRune(to)
	}
	return b.String()
}

// Tile names the tile that reveals r: the index of its pair, or TileNone.
func (m Mapping) Tile(r rune) string {
	up := unicode.ToUpper(r)
	for i, p := range m.pairs {
		if p[0] == up || p[1] == up {
			return strconv.Itoa(i)
		}
	}
	return TileNone
}

// Board is the state of one decryption exercise.
type Board struct {
	mapping  Mapping
	cipher   []rune
	revealed []bool
	pos      int
	flash    string
}

func NewBoard(m Mapping, ciphertext string) *Board {
	b := &Board{
		mapping:  m,
		cipher:   []rune(ciphertext),
		revealed: make([]bool, len([]rune(ciphertext))),
	}
	b.skipSpaces()
	return b
}

func (b *Board) skipSpaces() {
	for b.pos < len(b.cipher) && unicode.IsSpace(b.cipher[b.pos]) {
		b.revealed[b.pos] = true
		b.pos++
	}
}

func (b *Board) Done() bool { return b.pos >= len(b.cipher) }

// Current returns the highlighted ciphertext character.
func (b *Board) Current() (rune, bool) {
	if b.Done() {
		return 0, false
	}
	return b.cipher[b.pos], true
}

// Choose reveals the highlighted character if tile is the right one.
// A wrong tile is remembered as the flashed tile and nothing advances.
func (b *Board) Choose(tile string) bool {
	r, ok := b.Current()
	if !ok {
		return false
	}
	if b.mapping.Tile(r) != tile {
		b.flash = tile
		return false
	}
	b.flash = ""
	b.revealNext()
	return true
}

// RevealNext reveals the highlighted character regardless of tiles.
func (b *Board) RevealNext() bool {
	if b.Done() {
		return false
	}
	b.flash = ""
	b.revealNext()
	return true
}

func (b *Board) revealNext() {
	b.revealed[b.pos] = true
	b.pos++
	b.skipSpaces()
}

// Text renders the ciphertext with revealed characters decrypted.
func (b *Board) Text() string {
	var sb strings.Builder
	for i, r := range b.cipher {
		if b.revealed[i] {
			r, _ = b.mapping.Map(r)
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

type cipherTile struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type cipherCell struct {
	Char     string `json:"char"`
	Revealed bool   `json:"revealed"`
}

type cipherView struct {
	Kind   string       `json:"kind"`
	Tiles  []cipherTile `json:"tiles"`
	Cells  []cipherCell `json:"cells"`
	Cursor int          `json:"cursor"`
	Flash  string       `json:"flash,omitempty"`
	Auto   bool         `json:"auto,omitempty"`
}

func (b *Board) view(auto bool) cipherView {
	v := cipherView{Kind: "cipher", Cursor: b.pos, Flash: b.flash, Auto: auto}
	if b.Done() {
		v.Cursor = -1
	}
	for i, p := range b.mapping.pairs {
		v.Tiles = append(v.Tiles, cipherTile{ID: strconv.Itoa(i), Label: string(p[0]) + string(p[1])})
	}
	v.Tiles = append(v.Tiles,
		cipherTile{ID: TileNone, Label: "brak"},
		cipherTile{ID: TileAuto, Label: "auto"},
	)
	for i, r := range b.cipher {
		if b.revealed[i] {
			r, _ = b.mapping.Map(r)
		}
		v.Cells = append(v.Cells, cipherCell{Char: string(r), Revealed: b.revealed[i]})
	}
	return v
}

func newCipher(p Placeholder) (Behavior, error) {
	m, err := NewMapping(p.Config.String("key", "HALOJUPITERY"))
	if err != nil {
		return nil, err
	}
	plain := p.Config.String("text", "TAJEMNICA PRZETRWA TYLKO W OGRODZIE")
	cipherText := m.Decrypt(plain)
	reveal := p.Config.Millis("reveal_ms", 120*time.Millisecond)
	bootLines := p.Config.Strings("boot", []string{
		"DEKODER SZYFRU PAR",
		"Wczytywanie klucza...",
		fmt.Sprintf("Klucz zawiera %d par.", len(m.pairs)),
	})

	return func(t *Terminal) error {
		board := NewBoard(m, cipherText)
		if err := boot(t, bootLines); err != nil {
			return err
		}
		if err := t.Lines(
			"Szyfrogram: "+cipherText,
			"Wybierz kafelek z parą zawierającą podświetloną literę.",
			"Kafelek \"brak\" dla znaków spoza klucza, \"auto\" odszyfrowuje resztę.",
		); err != nil {
			return err
		}
		for !board.Done() {
			if err := t.Show(board.view(false)); err != nil {
				return err
			}
			tile, err := t.ReadTile()
			if err != nil {
				return err
			}
			if tile == TileAuto {
				for board.RevealNext() {
					if err := t.Show(board.view(true)); err != nil {
						return err
					}
					if err := t.Sleep(reveal); err != nil {
						return err
					}
				}
				break
			}
			if !board.Choose(tile) {
				if err := t.Show(board.view(false)); err != nil {
					return err
				}
			}
		}
		if err := t.Show(board.view(false)); err != nil {
			return err
		}
		return t.Print("Wiadomość odszyfrowana: " + board.Text())
	}, nil
}
