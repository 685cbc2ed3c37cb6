// Package content loads the blog's posts, media and scripts from the content
// directory.
package content

import (
	"bytes"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/yuin/goldmark"

	"github.com/izzyreal/wishjournal/internal/dates"
)

const (
	postsGlob     = "posts/*.md"
	excerptRunes  = 500
	defaultAuthor = "Anonim"
)

type Post struct {
	Slug        string
	Title       string
	Date        time.Time
	Author      string
	ContentHTML string
	ContentRaw  string
	ExcerptHTML string
}

// Library is an in-memory snapshot of the content directory. It is safe for
// concurrent use; Load replaces the snapshot atomically.
type Library struct {
	root   string
	md     goldmark.Markdown
	logger *slog.Logger
	now    func() time.Time
	rand   func(n int) int

	mu     sync.RWMutex
	posts  []Post
	footer []string
}

func New(root string, logger *slog.Logger) *Library {
	if logger == nil {
		logger = slog.Default()
	}
	return &Library{
		root:   root,
		md:     newMarkdown(),
		logger: logger,
		now:    time.Now,
		rand:   rand.IntN,
	}
}

func (l *Library) Root() string {
	return l.root
}

// Load reloads posts and footer messages.
func (l *Library) Load() error {
	l.LoadFooterMessages()
	return l.LoadPosts()
}

// LoadPosts parses every posts/*.md file. A broken post is logged and skipped.
func (l *Library) LoadPosts() error {
	postsDir := filepath.Join(l.root, "posts")
	if _, err := os.Stat(postsDir); err != nil {
		l.logger.Warn("posts directory does not exist", "path", postsDir)
		l.setPosts(nil)
		return nil
	}

	matches, err := doublestar.Glob(os.DirFS(l.root), postsGlob)
	if err != nil {
		return fmt.Errorf("glob posts: %w", err)
	}

	posts := make([]Post, 0, len(matches))
	for _, rel := range matches {
		p, err := l.loadPost(filepath.Join(l.root, filepath.FromSlash(rel)))
		if err != nil {
			l.logger.Error("load post failed", "path", rel, "error", err)
			continue
		}
		posts = append(posts, p)
	}
	sort.SliceStable(posts, func(i, j int) bool {
		if posts[i].Date.Equal(posts[j].Date) {
			return posts[i].Slug < posts[j].Slug
		}
		return posts[i].Date.After(posts[j].Date)
	})

	l.setPosts(posts)
	l.logger.Info("loaded posts", "count", len(posts), "dir", postsDir)
	return nil
}

func (l *Library) loadPost(path string) (Post, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Post{}, fmt.Errorf("read post: %w", err)
	}
	fm, body := ParseFrontmatter(string(data))
	slug := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	date := l.now()
	if strings.TrimSpace(fm.Date) != "" {
		date, err = dates.Parse(fm.Date)
		if err != nil {
			return Post{}, fmt.Errorf("parse date %q: %w", fm.Date, err)
		}
	}

	contentHTML, err := l.Render(body)
	if err != nil {
		return Post{}, err
	}
	excerptHTML, err := l.Render(Excerpt(body))
	if err != nil {
		return Post{}, err
	}

	p := Post{
		Slug:        slug,
		Title:       strings.TrimSpace(fm.Title),
		Date:        date,
		Author:      strings.TrimSpace(fm.Author),
		ContentHTML: contentHTML,
		ContentRaw:  body,
		ExcerptHTML: excerptHTML,
	}
	if p.Title == "" {
		p.Title = slug
	}
	if p.Author == "" {
		p.Author = defaultAuthor
	}
	return p, nil
}

// Render converts post markdown, including the custom ::: blocks, to HTML.
func (l *Library) Render(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := l.md.Convert([]byte(l.expandBlocks(markdown)), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

// Excerpt returns the first 500 characters of body cut back to a word
// boundary and suffixed with "...".
func Excerpt(body string) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= excerptRunes {
		return body
	}
	cut := string(runes[:excerptRunes])
	if i := strings.LastIndex(cut, " "); i >= 0 {
		cut = cut[:i]
	}
	return cut + "..."
}

func (l *Library) setPosts(posts []Post) {
	l.mu.Lock()
	l.posts = posts
	l.mu.Unlock()
}

// Posts returns the posts newest first.
func (l *Library) Posts() []Post {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Post(nil), l.posts...)
}

func (l *Library) Post(slug string) (Post, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, p := range l.posts {
		if p.Slug == slug {
			return p, true
		}
	}
	return Post{}, false
}
