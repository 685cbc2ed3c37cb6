package termclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/izzyreal/wishjournal/internal/frames"
)

type recordedPost struct {
	path string
	body sideRequest
}

func newSSEServer(t *testing.T, posts chan<- recordedPost) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/script/stream", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("path") != "demo.py" {
			http.Error(w, "bad path", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		frames.WriteSSE(w, frames.Session("s1"))
		frames.WriteSSE(w, frames.Output("cześć\n"))
		frames.WriteSSE(w, frames.Exit(2))
	})
	mux.HandleFunc("/widget/stream", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>login</html>"))
	})
	side := func(w http.ResponseWriter, r *http.Request) {
		var body sideRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		posts <- recordedPost{path: r.URL.Path, body: body}
		if body.CSRFToken != "tok" {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"error":"Nieprawidłowy token bezpieczeństwa"}`))
			return
		}
		w.Write([]byte(`{"success":true}`))
	}
	mux.HandleFunc("/script/input", side)
	mux.HandleFunc("/script/keepalive", side)
	mux.HandleFunc("/script/stop", side)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSSETransportStreamsFrames(t *testing.T) {
	srv := newSSEServer(t, make(chan recordedPost, 4))
	tr := &SSETransport{BaseURL: srv.URL, CSRF: "tok"}
	c := NewClient(tr, nil, Options{})
	if err := c.Start(context.Background(), Target{Script: "demo.py"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	c.Wait(context.Background())

	res, ok := c.Result()
	if !ok || res.ExitCode() != 2 {
		t.Fatalf("result: got %+v %v", res, ok)
	}
	want := "cześć\n\n[Program zakończony, kod wyjścia: 2]\n"
	if got := c.Screen().Text(); got != want {
		t.Fatalf("screen: got %q want %q", got, want)
	}
}

func TestSSETransportRejectsNonStream(t *testing.T) {
	srv := newSSEServer(t, make(chan recordedPost, 4))
	tr := &SSETransport{BaseURL: srv.URL}
	if _, err := tr.Open(context.Background(), Target{Widget: "w"}); err == nil {
		t.Fatalf("expected content type error")
	}
	if _, err := tr.Open(context.Background(), Target{Script: "other.py"}); err == nil {
		t.Fatalf("expected status error")
	}
	if _, err := tr.Open(context.Background(), Target{}); err == nil {
		t.Fatalf("expected target error")
	}
}

func TestSSETransportSideChannel(t *testing.T) {
	posts := make(chan recordedPost, 4)
	srv := newSSEServer(t, posts)
	s := &sseStream{t: &SSETransport{BaseURL: srv.URL, CSRF: "tok"}}

	ctx := context.Background()
	if err := s.Send(ctx, "s1", frames.Input{Text: "tak"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := s.Keepalive(ctx, "s1"); err != nil {
		t.Fatalf("keepalive: %v", err)
	}
	if err := s.Stop(ctx, "s1"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	for _, want := range []string{"/script/input", "/script/keepalive", "/script/stop"} {
		p := <-posts
		if p.path != want || p.body.SessionID != "s1" || p.body.CSRFToken != "tok" {
			t.Fatalf("post: got %+v want path %s", p, want)
		}
		if want == "/script/input" && p.body.Text != "tak" {
			t.Fatalf("input text: got %q", p.body.Text)
		}
	}

	bad := &sseStream{t: &SSETransport{BaseURL: srv.URL, CSRF: "wrong"}}
	if err := bad.Stop(ctx, "s1"); err == nil {
		t.Fatalf("expected csrf rejection")
	}
	<-posts
}

func TestWSTransport(t *testing.T) {
	var (
		mu   sync.Mutex
		msgs []WSMessage
	)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("csrf_token") != "tok" || r.URL.Query().Get("widget") != "w1" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteJSON(frames.Session("s1"))
		conn.WriteJSON(frames.Output("Kod: "))
		var m WSMessage
		if err := conn.ReadJSON(&m); err != nil {
			return
		}
		mu.Lock()
		msgs = append(msgs, m)
		mu.Unlock()
		conn.WriteJSON(frames.Output(m.Text + "\n"))
		conn.WriteJSON(frames.Exit(0))
	}))
	defer srv.Close()

	tr := &WSTransport{BaseURL: srv.URL, CSRF: "tok"}
	c := NewClient(tr, nil, Options{})
	if err := c.Start(context.Background(), Target{Widget: "w1"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "running", func() bool { return c.State() == StateRunning })
	if err := c.SendLine(context.Background(), "4624"); err != nil {
		t.Fatalf("send: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}

	want := "Kod: 4624\n\n[Program zakończony, kod wyjścia: 0]\n"
	if got := c.Screen().Text(); got != want {
		t.Fatalf("screen: got %q want %q", got, want)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(msgs) != 1 || msgs[0].Type != WSInput {
		t.Fatalf("messages: got %+v", msgs)
	}

	bad := &WSTransport{BaseURL: srv.URL, CSRF: "nope"}
	if _, err := bad.Open(context.Background(), Target{Widget: "w1"}); err == nil {
		t.Fatalf("expected dial error")
	}
}

func TestLogin(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.PostForm.Get("password") != "sekret" {
			http.Redirect(w, r, "/auth/login?error=1", http.StatusSeeOther)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "ok", Path: "/"})
		http.Redirect(w, r, "/", http.StatusSeeOther)
	})
	mux.HandleFunc("/auth/csrf", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session"); err != nil || c.Value != "ok" {
			http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"csrf_token":"tok"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	auth, err := Login(context.Background(), srv.URL+"/", "sekret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if auth.CSRF != "tok" || auth.BaseURL != srv.URL {
		t.Fatalf("auth: got %+v", auth)
	}
	if tr := auth.SSE(); tr.CSRF != "tok" || tr.Client != auth.Client {
		t.Fatalf("sse transport: got %+v", tr)
	}

	if _, err := Login(context.Background(), srv.URL, "zle"); !errors.Is(err, ErrBadPassword) {
		t.Fatalf("bad password: got %v want ErrBadPassword", err)
	}
}
