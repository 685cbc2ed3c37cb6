package server

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/izzyreal/wishjournal/internal/content"
	"github.com/izzyreal/wishjournal/internal/dates"
	"github.com/izzyreal/wishjournal/internal/store"
	"github.com/izzyreal/wishjournal/internal/version"
)

const (
	flashBadCSRF      = "Nieprawidlowy token bezpieczenstwa"
	flashEmptyComment = "Komentarz nie moze byc pusty"
)

// page is the data every template receives; Body is page specific.
type page struct {
	Title   string
	Viewer  *viewer
	CSRF    string
	Flash   string
	Footer  string
	Version string
	Body    any
}

type loginPage struct {
	ShowError   bool
	RateLimited bool
}

type indexPage struct {
	Posts []postSummary
}

type postSummary struct {
	content.Post
	Excerpt  template.HTML
	Comments int
}

type postPage struct {
	Post        content.Post
	Content     template.HTML
	Comments    []commentView
	CSRF        string
	ShowSuccess bool
}

type commentView struct {
	ID          int64
	Username    string
	FirstName   string
	Body        template.HTML
	DisplayDate string
}

func (s *stateStore) render(w http.ResponseWriter, r *http.Request, status int, name, title string, body any) {
	tmpl, ok := s.pages[name]
	if !ok {
		s.logger.Error("unknown page template", "name", name)
		http.Error(w, "Błąd serwera", http.StatusInternalServerError)
		return
	}
	p := page{
		Title:   title,
		Viewer:  viewerFrom(r.Context()),
		Flash:   takeFlash(w, r),
		Footer:  s.lib.RandomFooterMessage(),
		Version: version.Short(),
		Body:    body,
	}
	if p.Viewer != nil {
		p.CSRF = p.Viewer.Claims.CSRF
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", p); err != nil {
		s.logger.Error("render page", "name", name, "error", err)
		http.Error(w, "Błąd serwera", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *stateStore) notFound(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusNotFound, "404", "Nie znaleziono", nil)
}

func (s *stateStore) indexHandler(w http.ResponseWriter, r *http.Request) {
	posts := s.lib.Posts()
	out := make([]postSummary, 0, len(posts))
	for _, p := range posts {
		n, err := s.db.CountComments(r.Context(), p.Slug)
		if err != nil {
			s.logger.Warn("count comments", "slug", p.Slug, "error", err)
		}
		out = append(out, postSummary{Post: p, Excerpt: template.HTML(p.ExcerptHTML), Comments: n})
	}
	s.render(w, r, http.StatusOK, "index", "Wpisy", indexPage{Posts: out})
}

func (s *stateStore) postHandler(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	post, ok := s.lib.Post(slug)
	if !ok {
		s.notFound(w, r)
		return
	}

	comments, err := s.db.CommentsForPost(r.Context(), slug)
	if err != nil {
		s.logger.Error("load comments", "slug", slug, "error", err)
		http.Error(w, "Błąd serwera", http.StatusInternalServerError)
		return
	}
	views := make([]commentView, 0, len(comments))
	for _, c := range comments {
		views = append(views, commentView{
			ID:          c.ID,
			Username:    c.Username,
			FirstName:   c.FirstName,
			Body:        s.renderComment(c),
			DisplayDate: dates.FormatPolish(c.CreatedUTC, true),
		})
	}

	body, insts, err := s.widgets.InitializeAll(post.ContentHTML)
	if err != nil {
		s.logger.Warn("initialize widgets", "slug", slug, "error", err)
		body = post.ContentHTML
	}
	s.host.Add(insts...)

	v := viewerFrom(r.Context())
	s.render(w, r, http.StatusOK, "post", post.Title, postPage{
		Post:        post,
		Content:     template.HTML(body),
		Comments:    views,
		CSRF:        v.Claims.CSRF,
		ShowSuccess: r.URL.Query().Get("success") == "1",
	})
}

func (s *stateStore) renderComment(c store.Comment) template.HTML {
	out, err := content.RenderComment(c.Content)
	if err != nil {
		s.logger.Warn("render comment", "id", c.ID, "error", err)
		return template.HTML(template.HTMLEscapeString(c.Content))
	}
	return template.HTML(out)
}

func (s *stateStore) addCommentHandler(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	postURL := "/post/" + slug

	if !validCSRF(r, r.PostFormValue("csrf_token")) {
		s.logger.Warn("comment rejected: invalid csrf token", "slug", slug)
		setFlash(w, flashBadCSRF)
		http.Redirect(w, r, postURL, http.StatusFound)
		return
	}
	if _, ok := s.lib.Post(slug); !ok {
		s.notFound(w, r)
		return
	}
	text := strings.TrimSpace(r.PostFormValue("content"))
	if text == "" {
		setFlash(w, flashEmptyComment)
		http.Redirect(w, r, postURL+"#comment-form", http.StatusFound)
		return
	}

	v := viewerFrom(r.Context())
	id, err := s.db.AddComment(r.Context(), slug, v.User.ID, text)
	if err != nil {
		s.logger.Error("add comment", "slug", slug, "user_id", v.User.ID, "error", err)
		http.Error(w, "Błąd serwera", http.StatusInternalServerError)
		return
	}
	s.logger.Info("comment added", "slug", slug, "comment_id", id, "user_id", v.User.ID)
	http.Redirect(w, r, postURL+"?success=1#comment-form", http.StatusFound)
}

func parsePages() (map[string]*template.Template, error) {
	funcs := template.FuncMap{
		"formatDate":     func(v any) string { return formatDate(v, false) },
		"formatDateTime": func(v any) string { return formatDate(v, true) },
	}
	base, err := template.New("layout").Funcs(funcs).Parse(layoutHTML)
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}
	pages := map[string]string{
		"index": indexHTML,
		"post":  postHTML,
		"login": loginHTML,
		"404":   notFoundHTML,
	}
	out := make(map[string]*template.Template, len(pages))
	for name, src := range pages {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("clone layout: %w", err)
		}
		if _, err := clone.Parse(src); err != nil {
			return nil, fmt.Errorf("parse page %s: %w", name, err)
		}
		out[name] = clone
	}
	return out, nil
}

func formatDate(v any, withTime bool) string {
	switch d := v.(type) {
	case time.Time:
		return dates.FormatPolish(d, withTime)
	case string:
		return dates.FormatPolishString(d, withTime)
	}
	return fmt.Sprint(v)
}
