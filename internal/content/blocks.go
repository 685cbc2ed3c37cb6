package content

import (
	"fmt"
	"html"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/izzyreal/wishjournal/internal/media"
)

var (
	blockOpenRE  = regexp.MustCompile(`^:::([a-z][a-z-]*)\s*(.*)$`)
	blockCloseRE = regexp.MustCompile(`^:::\s*$`)
	blockAttrRE  = regexp.MustCompile(`([A-Za-z][\w-]*)=(?:"([^"]*)"|'([^']*)')`)
)

type block struct {
	kind  string
	attrs map[string]string
	body  []string
}

// expandBlocks replaces the ::: blocks understood by the blog with HTML
// islands. Unknown block kinds are left for goldmark.
func (l *Library) expandBlocks(src string) string {
	lines := strings.Split(src, "\n")
	out := make([]string, 0, len(lines))
	for i := 0; i < len(lines); i++ {
		m := blockOpenRE.FindStringSubmatch(strings.TrimRight(lines[i], "\r"))
		if m == nil || !knownBlock(m[1]) {
			out = append(out, lines[i])
			continue
		}
		b := block{kind: m[1], attrs: parseAttrs(m[2])}
		j := i + 1
		for ; j < len(lines); j++ {
			if blockCloseRE.MatchString(strings.TrimRight(lines[j], "\r")) {
				break
			}
			b.body = append(b.body, lines[j])
		}
		i = j
		if rendered := l.renderBlock(b); rendered != "" {
			out = append(out, "", rendered, "")
		}
	}
	return strings.Join(out, "\n")
}

func knownBlock(kind string) bool {
	switch kind {
	case "python-script", "widget", "audio", "video":
		return true
	}
	return false
}

func parseAttrs(s string) map[string]string {
	attrs := map[string]string{}
	for _, m := range blockAttrRE.FindAllStringSubmatch(s, -1) {
		v := m[2]
		if v == "" {
			v = m[3]
		}
		attrs[m[1]] = v
	}
	return attrs
}

func (l *Library) renderBlock(b block) string {
	switch b.kind {
	case "python-script":
		return l.renderScriptBlock(b)
	case "widget":
		return renderWidgetBlock(b)
	default:
		return l.renderMediaBlock(b)
	}
}

func (l *Library) renderScriptBlock(b block) string {
	p := strings.TrimSpace(b.attrs["path"])
	if p == "" {
		return ""
	}
	if _, err := l.ScriptPath(p); err != nil {
		l.logger.Warn("script block references unknown script", "path", p)
		return fmt.Sprintf(`<div class="script-error">Nie znaleziono skryptu: %s</div>`, html.EscapeString(p))
	}
	title := strings.TrimSpace(b.attrs["title"])
	if title == "" {
		title = strings.TrimSuffix(path.Base(p), path.Ext(p))
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, `<div class="script-wrapper terminal-shell" data-script-path="%s">`+"\n", html.EscapeString(p))
	fmt.Fprintf(&sb, `<div class="script-header"><span class="script-title">%s</span><span class="script-status" data-state="disconnected">zatrzymany</span></div>`+"\n", html.EscapeString(title))
	sb.WriteString(`<div class="script-terminal"><pre class="script-output"></pre>` +
		`<input type="text" class="script-input" autocomplete="off" disabled placeholder="Wpisz i naciśnij Enter"></div>` + "\n")
	sb.WriteString(`<div class="script-controls"><button type="button" class="script-start">Uruchom</button>` +
		`<button type="button" class="script-stop" disabled>Zatrzymaj</button></div>` + "\n")
	sb.WriteString(`</div>`)
	return sb.String()
}

func renderWidgetBlock(b block) string {
	typ := strings.TrimSpace(b.attrs["type"])
	if typ == "" {
		return ""
	}
	cfg, ok := b.attrs["config"]
	if !ok {
		cfg = strings.TrimSpace(strings.Join(b.body, "\n"))
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, `<div class="interactive-widget terminal-shell" data-widget-type="%s"`, html.EscapeString(typ))
	if cfg != "" {
		fmt.Fprintf(&sb, ` data-widget-config="%s"`, html.EscapeString(cfg))
	}
	sb.WriteString(`></div>`)
	return sb.String()
}

func (l *Library) renderMediaBlock(b block) string {
	p := strings.TrimSpace(b.attrs["path"])
	if p == "" {
		return ""
	}
	if _, err := l.MediaPath(p); err != nil {
		l.logger.Warn("media block references unknown file", "path", p)
		return fmt.Sprintf(`<div class="media-error">Nie znaleziono pliku: %s</div>`, html.EscapeString(p))
	}
	title := strings.TrimSpace(b.attrs["title"])
	if title == "" {
		title = path.Base(p)
	}
	src := "/media/" + escapePath(p)
	tag := b.kind

	var sb strings.Builder
	fmt.Fprintf(&sb, `<div class="media-player %s-player" data-kind="%s">`+"\n", tag, media.Kind(p))
	fmt.Fprintf(&sb, `<div class="mp-title">%s</div>`+"\n", html.EscapeString(title))
	fmt.Fprintf(&sb, `<%s class="mp-element" preload="metadata" src="%s"></%s>`+"\n", tag, html.EscapeString(src), tag)
	sb.WriteString(`<div class="mp-controls"><button type="button" class="mp-play">&#9654;</button>` +
		`<div class="mp-progress"><div class="mp-progress-fill"></div></div>` +
		`<span class="mp-time">0:00 / 0:00</span>` +
		`<input type="range" class="mp-volume" min="0" max="1" step="0.1" value="1">`)
	fmt.Fprintf(&sb, `<a class="mp-download" href="%s?download=1">Pobierz</a></div>`+"\n", html.EscapeString(src))
	sb.WriteString(`</div>`)
	return sb.String()
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
