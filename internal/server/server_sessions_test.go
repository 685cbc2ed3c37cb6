package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/izzyreal/wishjournal/internal/frames"
	"github.com/izzyreal/wishjournal/internal/scriptrun"
	"github.com/izzyreal/wishjournal/internal/termclient"
)

func (e *testEnv) openStream(t *testing.T, path string, cookie *http.Cookie) (*http.Response, *frames.Decoder) {
	t.Helper()
	resp := e.get(t, path, cookie)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stream %s: got %d body=%s", path, resp.StatusCode, readBody(t, resp))
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		resp.Body.Close()
		t.Fatalf("stream content type: got %q", ct)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp, frames.NewDecoder(resp.Body)
}

func TestScriptStreamRejectsBadCSRF(t *testing.T) {
	e := newTestEnv(t)
	cookie, _ := e.session(t)
	for _, path := range []string{
		"/script/stream?path=hello.py",
		"/script/stream?path=hello.py&csrf_token=zly",
		"/widget/stream?id=x&csrf_token=zly",
	} {
		resp := e.get(t, path, cookie)
		body := readBody(t, resp)
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("%s: got %d want 403 body=%s", path, resp.StatusCode, body)
		}
	}
	if e.s.sessions.Len() != 0 {
		t.Fatalf("rejected streams created %d sessions", e.s.sessions.Len())
	}
}

func TestScriptStreamUnknownScript(t *testing.T) {
	e := newTestEnv(t)
	cookie, csrf := e.session(t)
	for _, p := range []string{"missing.py", "../secret.py", "hello.txt", ""} {
		_, dec := e.openStream(t, "/script/stream?path="+url.QueryEscape(p)+"&csrf_token="+csrf, cookie)
		f := nextFrame(t, dec)
		if f.Type != frames.TypeError || f.Text != "Nie znaleziono skryptu: "+p {
			t.Fatalf("%q: got frame %+v", p, f)
		}
		if _, err := dec.Next(); !errors.Is(err, io.EOF) {
			t.Fatalf("%q: expected stream end after error frame, got %v", p, err)
		}
	}
	if e.s.sessions.Len() != 0 {
		t.Fatalf("invalid scripts created %d sessions", e.s.sessions.Len())
	}
}

func TestScriptStreamRunsSession(t *testing.T) {
	e := newTestEnv(t)
	cookie, csrf := e.session(t)

	_, dec := e.openStream(t, "/script/stream?path=hello.py&csrf_token="+csrf, cookie)
	first := nextFrame(t, dec)
	if first.Type != frames.TypeSession || first.SessionID == "" {
		t.Fatalf("first frame: got %+v want session", first)
	}
	sid := first.SessionID

	if f := nextFrame(t, dec); f.Type != frames.TypeOutput || f.Text != "Podaj imię: " {
		t.Fatalf("prompt: got %+v", f)
	}

	resp := e.postJSON(t, "/script/keepalive", `{"session_id":"`+sid+`","csrf_token":"`+csrf+`"}`, cookie)
	if body := readBody(t, resp); resp.StatusCode != http.StatusOK {
		t.Fatalf("keepalive: got %d body=%s", resp.StatusCode, body)
	}
	resp = e.postJSON(t, "/script/input", `{"session_id":"`+sid+`","csrf_token":"`+csrf+`","text":"Ala"}`, cookie)
	if body := readBody(t, resp); resp.StatusCode != http.StatusOK || !strings.Contains(body, `"success":true`) {
		t.Fatalf("input: got %d body=%s", resp.StatusCode, body)
	}

	out, last := readUntil(t, dec, frames.TypeExit)
	if out != "Cześć, Ala!\n" {
		t.Fatalf("output: got %q", out)
	}
	if last.Code == nil || *last.Code != 0 {
		t.Fatalf("exit frame: got %+v want code 0", last)
	}
	if _, err := dec.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected stream end after exit, got %v", err)
	}

	resp = e.postJSON(t, "/script/input", `{"session_id":"`+sid+`","csrf_token":"`+csrf+`","text":"znowu"}`, cookie)
	if body := readBody(t, resp); resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("input after exit: got %d body=%s", resp.StatusCode, body)
	}
}

func TestScriptStopEndsStream(t *testing.T) {
	e := newTestEnv(t)
	cookie, csrf := e.session(t)
	e.s.scriptBackend = func(string) scriptrun.Backend {
		return scriptrun.BackendFunc(func(ctx context.Context, sio scriptrun.IO) (int, error) {
			sio.Emit(frames.Output("czekam\n"))
			<-ctx.Done()
			return 0, ctx.Err()
		})
	}

	_, dec := e.openStream(t, "/script/stream?path=hello.py&csrf_token="+csrf, cookie)
	sid := nextFrame(t, dec).SessionID
	if f := nextFrame(t, dec); f.Text != "czekam\n" {
		t.Fatalf("output: got %+v", f)
	}

	resp := e.postJSON(t, "/script/stop", `{"session_id":"`+sid+`","csrf_token":"`+csrf+`"}`, cookie)
	if body := readBody(t, resp); resp.StatusCode != http.StatusOK {
		t.Fatalf("stop: got %d body=%s", resp.StatusCode, body)
	}
	if _, ok := e.s.sessions.Get(sid); ok {
		t.Fatalf("session still registered after stop")
	}

	done := make(chan error, 1)
	go func() {
		_, err := dec.Next()
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, io.EOF) {
			t.Fatalf("expected stream end after stop, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("stream did not end after stop")
	}

	resp = e.postJSON(t, "/script/stop", `{"session_id":"`+sid+`","csrf_token":"`+csrf+`"}`, cookie)
	if body := readBody(t, resp); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second stop: got %d body=%s", resp.StatusCode, body)
	}
}

func TestSideChannelRejections(t *testing.T) {
	e := newTestEnv(t)
	cookie, csrf := e.session(t)

	cases := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"invalid json", "/script/input", `{not json`, http.StatusBadRequest},
		{"bad csrf", "/script/input", `{"session_id":"x","csrf_token":"zly","text":"a"}`, http.StatusForbidden},
		{"missing csrf", "/script/keepalive", `{"session_id":"x"}`, http.StatusForbidden},
		{"missing session", "/script/input", `{"csrf_token":"` + csrf + `","text":"a"}`, http.StatusBadRequest},
		{"unknown session input", "/script/input", `{"session_id":"nope","csrf_token":"` + csrf + `","text":"a"}`, http.StatusNotFound},
		{"unknown session keepalive", "/script/keepalive", `{"session_id":"nope","csrf_token":"` + csrf + `"}`, http.StatusNotFound},
		{"unknown session stop", "/script/stop", `{"session_id":"nope","csrf_token":"` + csrf + `"}`, http.StatusNotFound},
		{"missing widget", "/widget/release", `{"csrf_token":"` + csrf + `"}`, http.StatusBadRequest},
		{"unknown widget", "/widget/release", `{"widget_id":"nope","csrf_token":"` + csrf + `"}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := e.postJSON(t, tc.path, tc.body, cookie)
			body := readBody(t, resp)
			if resp.StatusCode != tc.status {
				t.Fatalf("got %d want %d body=%s", resp.StatusCode, tc.status, body)
			}
			if !strings.Contains(body, `"error"`) {
				t.Fatalf("expected JSON error body, got %s", body)
			}
		})
	}

	resp := e.postJSON(t, "/script/input", `{"session_id":"x","csrf_token":"`+csrf+`"}`)
	if body := readBody(t, resp); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous input: got %d body=%s", resp.StatusCode, body)
	}
}

func TestSessionResumeAfterExpiry(t *testing.T) {
	e := newTestEnv(t)
	cookie, csrf := e.session(t)
	_, dec := e.openStream(t, "/script/stream?session_id=gone&csrf_token="+csrf, cookie)
	if f := nextFrame(t, dec); f.Type != frames.TypeError || f.Text != msgSessionExpired {
		t.Fatalf("got %+v want session expired error", f)
	}
}

func TestSessionResumeAfterWriteFailure(t *testing.T) {
	e := newTestEnv(t)
	cookie, csrf := e.session(t)
	sess := e.s.sessions.Create("script:batch", scriptrun.BackendFunc(func(_ context.Context, sio scriptrun.IO) (int, error) {
		sio.Emit(frames.Output("pierwsza\n"))
		sio.Emit(frames.Output("druga\n"))
		return 5, nil
	}))
	if err := e.s.sessions.Start(sess.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-sess.Done()

	var sent []frames.Frame
	e.s.relay(context.Background(), sess.ID, func(f frames.Frame) error {
		if len(sent) == 1 {
			return errors.New("broken pipe")
		}
		sent = append(sent, f)
		return nil
	})
	if len(sent) != 1 || sent[0].Text != "pierwsza\n" {
		t.Fatalf("sent before failure: %+v", sent)
	}

	_, dec := e.openStream(t, "/script/stream?session_id="+sess.ID+"&csrf_token="+csrf, cookie)
	if f := nextFrame(t, dec); f.Type != frames.TypeSession || f.SessionID != sess.ID {
		t.Fatalf("resume first frame: %+v", f)
	}
	if f := nextFrame(t, dec); f.Type != frames.TypeOutput || f.Text != "druga\n" {
		t.Fatalf("resume output: %+v", f)
	}
	if f := nextFrame(t, dec); f.Type != frames.TypeExit || f.ExitCode() != 5 {
		t.Fatalf("resume exit: %+v", f)
	}
}

func TestWidgetStreamCodeLock(t *testing.T) {
	e := newTestEnv(t)
	cookie, csrf := e.session(t)
	id := e.widgetID(t, cookie)

	_, dec := e.openStream(t, "/widget/stream?id="+id+"&csrf_token="+csrf, cookie)
	sid := nextFrame(t, dec).SessionID
	if sid == "" {
		t.Fatalf("missing session id")
	}

	boot, view := readUntil(t, dec, frames.TypeUI)
	if !strings.Contains(boot, "Wprowadź 2-cyfrowy kod dostępu.") {
		t.Fatalf("boot output: got %q", boot)
	}
	if !strings.Contains(string(view.UI), `"kind":"code-lock"`) || !strings.Contains(string(view.UI), `"attempts":2`) {
		t.Fatalf("lock view: got %s", view.UI)
	}

	send := func(body string) {
		t.Helper()
		resp := e.postJSON(t, "/script/input", `{"session_id":"`+sid+`","csrf_token":"`+csrf+`",`+body+`}`, cookie)
		if b := readBody(t, resp); resp.StatusCode != http.StatusOK {
			t.Fatalf("input %s: got %d body=%s", body, resp.StatusCode, b)
		}
	}

	send(`"text":"99"`)
	readUntil(t, dec, frames.TypeUI)
	out, _ := readUntil(t, dec, frames.TypeUI)
	if !strings.Contains(out, "Pozostało prób: 1") {
		t.Fatalf("wrong code output: got %q", out)
	}

	send(`"key":"1"`)
	if _, v := readUntil(t, dec, frames.TypeUI); !strings.Contains(string(v.UI), `"digits":[1,0]`) {
		t.Fatalf("after key 1: got %s", v.UI)
	}
	send(`"key":"ArrowRight"`)
	readUntil(t, dec, frames.TypeUI)
	send(`"key":"2"`)
	readUntil(t, dec, frames.TypeUI)
	send(`"key":"Enter"`)

	out, last := readUntil(t, dec, frames.TypeExit)
	if !strings.Contains(out, "DOSTĘP PRZYZNANY.") {
		t.Fatalf("granted output: got %q", out)
	}
	if last.ExitCode() != 0 {
		t.Fatalf("exit code: got %d want 0", last.ExitCode())
	}

	resp := e.postJSON(t, "/widget/release", `{"widget_id":"`+id+`","csrf_token":"`+csrf+`"}`, cookie)
	if body := readBody(t, resp); resp.StatusCode != http.StatusOK {
		t.Fatalf("release: got %d body=%s", resp.StatusCode, body)
	}
	if _, ok := e.s.host.Get(id); ok {
		t.Fatalf("widget still hosted after release")
	}
}

func TestWidgetStreamUnknownWidget(t *testing.T) {
	e := newTestEnv(t)
	cookie, csrf := e.session(t)
	_, dec := e.openStream(t, "/widget/stream?id=nope&csrf_token="+csrf, cookie)
	if f := nextFrame(t, dec); f.Type != frames.TypeError || f.Text != msgWidgetNotFound {
		t.Fatalf("got %+v want widget not found", f)
	}
}

func TestScriptWebSocket(t *testing.T) {
	e := newTestEnv(t)
	cookie, csrf := e.session(t)

	wsURL := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/script/ws?path=hello.py&csrf_token=" + csrf
	header := http.Header{}
	header.Set("Cookie", cookie.String())
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial websocket: %v status=%d", err, status)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var f frames.Frame
	if err := conn.ReadJSON(&f); err != nil || f.Type != frames.TypeSession {
		t.Fatalf("session frame: got %+v err=%v", f, err)
	}
	if err := conn.ReadJSON(&f); err != nil || f.Text != "Podaj imię: " {
		t.Fatalf("prompt frame: got %+v err=%v", f, err)
	}
	if err := conn.WriteJSON(wsMessage{Type: "keepalive"}); err != nil {
		t.Fatalf("write keepalive: %v", err)
	}
	if err := conn.WriteJSON(wsMessage{Type: "input", Input: frames.Input{Text: "Ola"}}); err != nil {
		t.Fatalf("write input: %v", err)
	}

	var out strings.Builder
	for {
		var f frames.Frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		if f.Type == frames.TypeOutput {
			out.WriteString(f.Text)
		}
		if f.Type == frames.TypeExit {
			if f.ExitCode() != 0 {
				t.Fatalf("exit code: got %d", f.ExitCode())
			}
			break
		}
	}
	if out.String() != "Cześć, Ola!\n" {
		t.Fatalf("output: got %q", out.String())
	}

	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal close, got %v", err)
	}
}

func TestScriptWebSocketRejectsBadCSRF(t *testing.T) {
	e := newTestEnv(t)
	cookie, _ := e.session(t)
	wsURL := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/script/ws?path=hello.py&csrf_token=zly"
	header := http.Header{}
	header.Set("Cookie", cookie.String())
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		t.Fatalf("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 response, got %+v", resp)
	}
}

func TestTerminalClientAgainstServer(t *testing.T) {
	e := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := termclient.Login(ctx, e.ts.URL, "zle"); !errors.Is(err, termclient.ErrBadPassword) {
		t.Fatalf("bad password login: got %v", err)
	}
	auth, err := termclient.Login(ctx, e.ts.URL, testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	for name, transport := range map[string]termclient.Transport{"sse": auth.SSE(), "ws": auth.WS()} {
		t.Run(name, func(t *testing.T) {
			c := termclient.NewClient(transport, nil, termclient.Options{})
			defer c.Close()
			if err := c.Start(ctx, termclient.Target{Script: "hello.py"}); err != nil {
				t.Fatalf("start: %v", err)
			}
			deadline := time.Now().Add(5 * time.Second)
			for !strings.Contains(c.Screen().Text(), "Podaj imię: ") {
				if time.Now().After(deadline) {
					t.Fatalf("prompt not shown: %q", c.Screen().Text())
				}
				time.Sleep(10 * time.Millisecond)
			}
			if err := c.SendLine(ctx, "Ewa"); err != nil {
				t.Fatalf("send line: %v", err)
			}
			if err := c.Wait(ctx); err != nil {
				t.Fatalf("wait: %v", err)
			}
			res, ok := c.Result()
			if !ok || res.Type != frames.TypeExit || res.ExitCode() != 0 {
				t.Fatalf("result: got %+v ok=%v", res, ok)
			}
			if text := c.Screen().Text(); !strings.Contains(text, "Cześć, Ewa!") || !strings.Contains(text, "kod wyjścia: 0") {
				t.Fatalf("screen: got %q", text)
			}
		})
	}
}
