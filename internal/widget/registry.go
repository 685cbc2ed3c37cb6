package widget

import (
	"bytes"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	placeholderClass = "interactive-widget"
	attrType         = "data-widget-type"
	attrConfig       = "data-widget-config"
	attrID           = "data-widget-id"
)

// Behavior is the body of one widget run. It drives the Terminal until the
// widget reaches a terminal state and returns nil, or returns an error.
type Behavior func(t *Terminal) error

// Constructor builds the behaviour of one placeholder. Returning an error
// leaves the placeholder inert.
type Constructor func(p Placeholder) (Behavior, error)

// Placeholder is a page element asking for a widget.
type Placeholder struct {
	Type   string
	Config Config
	// RawConfig is the attribute value as found on the page.
	RawConfig string
}

type Registry struct {
	logger *slog.Logger
	clock  Clock

	mu    sync.RWMutex
	ctors map[string]Constructor
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger: logger,
		clock:  realClock{},
		ctors:  map[string]Constructor{},
	}
}

// SetClock replaces the clock handed to instances built after the call.
func (r *Registry) SetClock(c Clock) {
	r.mu.Lock()
	r.clock = c
	r.mu.Unlock()
}

// Register stores c under tag. A later registration for the same tag
// replaces the earlier one.
func (r *Registry) Register(tag string, c Constructor) {
	tag = strings.TrimSpace(tag)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ctors[tag]; exists {
		r.logger.Warn("widget constructor replaced", "type", tag)
	}
	r.ctors[tag] = c
}

func (r *Registry) Lookup(tag string) (Constructor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.ctors[strings.TrimSpace(tag)]
	return c, ok
}

func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.ctors))
	for tag := range r.ctors {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// InitializeElements constructs one instance per placeholder. The result is
// aligned with ps; entries for unknown types or failed constructions are nil.
func (r *Registry) InitializeElements(ps []Placeholder) []*Instance {
	out := make([]*Instance, len(ps))
	for i, p := range ps {
		out[i] = r.construct(p)
	}
	return out
}

func (r *Registry) construct(p Placeholder) (inst *Instance) {
	ctor, ok := r.Lookup(p.Type)
	if !ok {
		r.logger.Warn("unknown widget type", "type", p.Type)
		return nil
	}
	if p.Config == nil {
		cfg, err := ParseConfig(p.RawConfig)
		if err != nil {
			r.logger.Warn("invalid widget config, using defaults", "type", p.Type, "error", err)
		}
		p.Config = cfg
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("widget constructor panicked", "type", p.Type, "panic", fmt.Sprint(rec))
			inst = nil
		}
	}()
	behavior, err := ctor(p)
	if err != nil {
		r.logger.Error("widget construction failed", "type", p.Type, "error", err)
		return nil
	}
	if behavior == nil {
		r.logger.Error("widget constructor returned no behavior", "type", p.Type)
		return nil
	}

	r.mu.RLock()
	clock := r.clock
	r.mu.RUnlock()
	return newInstance(p.Type, p.Config, behavior, clock, r.logger)
}

// InitializeAll scans an HTML fragment for widget placeholders, constructs
// their instances and returns the fragment with a data-widget-id attribute
// added to every constructed placeholder. Elements that could not be
// constructed are marked inert.
func (r *Registry) InitializeAll(fragment string) (string, []*Instance, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), body)
	if err != nil {
		return fragment, nil, fmt.Errorf("parse widget document: %w", err)
	}

	var (
		elems []*html.Node
		ps    []Placeholder
	)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && hasClass(n, placeholderClass) {
			if typ, ok := attr(n, attrType); ok {
				raw, _ := attr(n, attrConfig)
				elems = append(elems, n)
				ps = append(ps, Placeholder{Type: typ, RawConfig: raw})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	if len(ps) == 0 {
		return fragment, nil, nil
	}

	built := r.InitializeElements(ps)
	var insts []*Instance
	for i, inst := range built {
		if inst == nil {
			setAttr(elems[i], "data-widget-inert", "true")
			continue
		}
		setAttr(elems[i], attrID, inst.ID)
		insts = append(insts, inst)
	}

	var buf bytes.Buffer
	for _, n := range nodes {
		if err := html.Render(&buf, n); err != nil {
			return fragment, nil, fmt.Errorf("render widget document: %w", err)
		}
	}
	return buf.String(), insts, nil
}

func hasClass(n *html.Node, class string) bool {
	v, ok := attr(n, "class")
	if !ok {
		return false
	}
	for _, c := range strings.Fields(v) {
		if c == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}
