package termclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/izzyreal/wishjournal/internal/frames"
)

// Target names what a session runs: a script under the content tree or a
// widget instance rendered on a page.
type Target struct {
	Script string
	Widget string
}

func (t Target) validate() error {
	if (t.Script == "") == (t.Widget == "") {
		return errors.New("target needs exactly one of script or widget")
	}
	return nil
}

func (t Target) String() string {
	if t.Widget != "" {
		return "widget " + t.Widget
	}
	return "script " + t.Script
}

// Transport opens the frame stream of a new session.
type Transport interface {
	Open(ctx context.Context, target Target) (Stream, error)
}

// Stream is one open session. Input, keepalive and stop are sent out of band
// with the session id the server announced.
type Stream interface {
	Next() (frames.Frame, error)
	Send(ctx context.Context, sessionID string, in frames.Input) error
	Keepalive(ctx context.Context, sessionID string) error
	Stop(ctx context.Context, sessionID string) error
	Close() error
}

// SSETransport reads frames as server-sent events and posts side-channel
// requests as JSON.
type SSETransport struct {
	BaseURL string
	Client  *http.Client
	CSRF    string
}

func (t *SSETransport) Open(ctx context.Context, target Target) (Stream, error) {
	if err := target.validate(); err != nil {
		return nil, err
	}
	u := strings.TrimRight(t.BaseURL, "/")
	q := url.Values{"csrf_token": {t.CSRF}}
	if target.Widget != "" {
		q.Set("id", target.Widget)
		u += "/widget/stream?" + q.Encode()
	} else {
		q.Set("path", target.Script)
		u += "/script/stream?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := t.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		resp.Body.Close()
		return nil, fmt.Errorf("stream rejected: status=%d body=%s", resp.StatusCode, bytes.TrimSpace(body))
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		resp.Body.Close()
		return nil, fmt.Errorf("stream rejected: unexpected content type %q", ct)
	}
	return &sseStream{t: t, body: resp.Body, dec: frames.NewDecoder(resp.Body)}, nil
}

func (t *SSETransport) httpClient() *http.Client {
	if t.Client != nil {
		return t.Client
	}
	return http.DefaultClient
}

// sideRequest is the JSON body of input, keepalive and stop requests.
type sideRequest struct {
	SessionID string `json:"session_id"`
	CSRFToken string `json:"csrf_token"`
	frames.Input
}

func (t *SSETransport) post(ctx context.Context, path string, payload sideRequest) error {
	payload.CSRFToken = t.CSRF
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(t.BaseURL, "/")+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("send %s request: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return fmt.Errorf("%s rejected: status=%d body=%s", path, resp.StatusCode, bytes.TrimSpace(respBody))
	}
	return nil
}

type sseStream struct {
	t    *SSETransport
	body io.ReadCloser
	dec  *frames.Decoder
}

func (s *sseStream) Next() (frames.Frame, error) { return s.dec.Next() }
func (s *sseStream) Close() error { return s.body.Close() }

func (s *sseStream) Send(ctx context.Context, sessionID string, in frames.Input) error {
	return s.t.post(ctx, "/script/input", sideRequest{SessionID: sessionID, Input: in})
}

func (s *sseStream) Keepalive(ctx context.Context, sessionID string) error {
	return s.t.post(ctx, "/script/keepalive", sideRequest{SessionID: sessionID})
}

func (s *sseStream) Stop(ctx context.Context, sessionID string) error {
	return s.t.post(ctx, "/script/stop", sideRequest{SessionID: sessionID})
}

// WSMessage is a client message on the websocket transport.
type WSMessage struct {
	Type string `json:"type"`
	frames.Input
}

const (
	WSInput     = "input"
	WSKeepalive = "keepalive"
	WSStop      = "stop"
)

// WSTransport carries frames and client messages over one websocket.
type WSTransport struct {
	BaseURL string
	Jar     http.CookieJar
	CSRF    string
	Dialer  *websocket.Dialer
}

func (t *WSTransport) Open(ctx context.Context, target Target) (Stream, error) {
	if err := target.validate(); err != nil {
		return nil, err
	}
	u, err := url.Parse(strings.TrimRight(t.BaseURL, "/") + "/script/ws")
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := url.Values{"csrf_token": {t.CSRF}}
	if target.Widget != "" {
		q.Set("widget", target.Widget)
	} else {
		q.Set("path", target.Script)
	}
	u.RawQuery = q.Encode()

	d := websocket.DefaultDialer
	if t.Dialer != nil {
		d = t.Dialer
	}
	dialer := *d
	if t.Jar != nil {
		dialer.Jar = t.Jar
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial websocket: status=%d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial websocket: %w", err)
	}
	return &wsStream{conn: conn}, nil
}

type wsStream struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (s *wsStream) Next() (frames.Frame, error) {
	var f frames.Frame
	if err := s.conn.ReadJSON(&f); err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return frames.Frame{}, io.EOF
		}
		return frames.Frame{}, err
	}
	return f, nil
}

func (s *wsStream) write(ctx context.Context, msg WSMessage) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		s.conn.SetWriteDeadline(deadline)
		defer s.conn.SetWriteDeadline(time.Time{})
	}
	if err := s.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("send %s message: %w", msg.Type, err)
	}
	return nil
}

func (s *wsStream) Send(ctx context.Context, _ string, in frames.Input) error {
	return s.write(ctx, WSMessage{Type: WSInput, Input: in})
}

func (s *wsStream) Keepalive(ctx context.Context, _ string) error {
	return s.write(ctx, WSMessage{Type: WSKeepalive})
}

func (s *wsStream) Stop(ctx context.Context, _ string) error {
	return s.write(ctx, WSMessage{Type: WSStop})
}

func (s *wsStream) Close() error {
	s.wmu.Lock()
	s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	s.wmu.Unlock()
	return s.conn.Close()
}
