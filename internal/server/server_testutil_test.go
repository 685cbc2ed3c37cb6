package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/izzyreal/wishjournal/internal/config"
	"github.com/izzyreal/wishjournal/internal/content"
	"github.com/izzyreal/wishjournal/internal/frames"
	"github.com/izzyreal/wishjournal/internal/scriptrun"
	"github.com/izzyreal/wishjournal/internal/store"
	"github.com/izzyreal/wishjournal/internal/widget"
)

const (
	testPassword = "tajne-haslo"
	testPostBody = "---\ntitle: \"Testowy wpis\"\ndate: 2024-01-15\nauthor: \"Tester\"\n---\n\n" +
		"To jest testowa tresc.\n\n" +
		":::widget type=\"code-lock\" config='{\"code\":\"12\",\"attempts\":2}'\n:::\n\n" +
		":::python-script path=\"hello.py\" title=\"Powitanie\"\n:::\n"
)

var widgetIDRE = regexp.MustCompile(`data-widget-id="([^"]+)"`)

type testEnv struct {
	s    *stateStore
	ts   *httptest.Server
	root string
	user store.User
}

func writeTestFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	tmp := t.TempDir()
	db, err := store.Open(filepath.Join(tmp, "blog.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	user, err := db.CreateUser(context.Background(), "Jan", "Kowalski", "jan", testPassword)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	root := filepath.Join(tmp, "content")
	writeTestFile(t, filepath.Join(root, "posts", "test-post.md"), testPostBody)
	writeTestFile(t, filepath.Join(root, "media", "song.mp3"), "ID3-fake-audio-bytes")
	writeTestFile(t, filepath.Join(root, "scripts", "hello.py"), "print('hello')\n")
	writeTestFile(t, filepath.Join(tmp, "secret.txt"), "top secret")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	lib := content.New(root, logger)
	if err := lib.Load(); err != nil {
		t.Fatalf("load content: %v", err)
	}

	cfg := config.Defaults()
	cfg.SecretKey = "test-secret-key"
	cfg.ContentPath = root
	cfg.ScriptTimeout = time.Minute

	s, err := newStateStore(cfg, db, lib, logger)
	if err != nil {
		t.Fatalf("new state store: %v", err)
	}
	s.widgets.SetClock(widget.InstantClock{})
	s.scriptBackend = func(string) scriptrun.Backend {
		return scriptrun.BackendFunc(greeter)
	}

	ts := httptest.NewServer(buildRouter(s))
	t.Cleanup(ts.Close)
	return &testEnv{s: s, ts: ts, root: root, user: user}
}

// greeter asks for a name and answers once.
func greeter(ctx context.Context, sio scriptrun.IO) (int, error) {
	sio.Emit(frames.Output("Podaj imię: "))
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case in := <-sio.Input():
		sio.Emit(frames.Output("Cześć, " + in.Text + "!\n"))
		return 0, nil
	}
}

// session returns a signed session cookie for the test user and its CSRF
// token.
func (e *testEnv) session(t *testing.T) (*http.Cookie, string) {
	t.Helper()
	token, err := e.s.signSession(e.user.ID, time.Now())
	if err != nil {
		t.Fatalf("sign session: %v", err)
	}
	claims, err := e.s.parseSession(token)
	if err != nil {
		t.Fatalf("parse session: %v", err)
	}
	return &http.Cookie{Name: sessionCookie, Value: token}, claims.CSRF
}

func noRedirectClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, contentType string, cookies ...*http.Cookie) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.ts.URL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := noRedirectClient().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func (e *testEnv) get(t *testing.T, path string, cookies ...*http.Cookie) *http.Response {
	t.Helper()
	return e.do(t, http.MethodGet, path, nil, "", cookies...)
}

func (e *testEnv) postForm(t *testing.T, path string, form url.Values, cookies ...*http.Cookie) *http.Response {
	t.Helper()
	return e.do(t, http.MethodPost, path, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", cookies...)
}

func (e *testEnv) postJSON(t *testing.T, path, body string, cookies ...*http.Cookie) *http.Response {
	t.Helper()
	return e.do(t, http.MethodPost, path, strings.NewReader(body), "application/json", cookies...)
}

// widgetID opens the test post and returns the id of its code lock.
func (e *testEnv) widgetID(t *testing.T, cookie *http.Cookie) string {
	t.Helper()
	resp := e.get(t, "/post/test-post", cookie)
	body := readBody(t, resp)
	m := widgetIDRE.FindStringSubmatch(body)
	if m == nil {
		t.Fatalf("post page has no widget id: %s", body)
	}
	return m[1]
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

func cookieNamed(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// nextFrame reads one frame with a deadline so a stuck stream fails the
// test instead of hanging it.
func nextFrame(t *testing.T, dec *frames.Decoder) frames.Frame {
	t.Helper()
	type result struct {
		f   frames.Frame
		err error
	}
	ch := make(chan result, 1)
	go func() {
		f, err := dec.Next()
		ch <- result{f, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			t.Fatalf("read frame: %v", r.err)
		}
		return r.f
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for frame")
	}
	return frames.Frame{}
}

// readUntil collects frames until one of type want arrives and returns the
// text of the output frames seen on the way along with the final frame.
func readUntil(t *testing.T, dec *frames.Decoder, want string) (string, frames.Frame) {
	t.Helper()
	var sb strings.Builder
	for {
		f := nextFrame(t, dec)
		if f.Type == frames.TypeOutput || f.Type == frames.TypeError {
			sb.WriteString(f.Text)
		}
		if f.Type == want {
			return sb.String(), f
		}
		if f.Terminal() {
			t.Fatalf("stream ended with %s before %s; output=%q", f.Type, want, sb.String())
		}
	}
}
