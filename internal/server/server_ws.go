package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/izzyreal/wishjournal/internal/frames"
)

const wsWriteWait = 10 * time.Second

// Origin checking is left to the upgrader default: same host only.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// wsMessage is a client message on the websocket: input, keepalive or stop.
type wsMessage struct {
	Type string `json:"type"`
	frames.Input
}

// scriptWSHandler runs one session over a websocket. Frames flow down as
// JSON messages and client messages replace the side-channel requests.
func (s *stateStore) scriptWSHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !validCSRF(r, q.Get("csrf_token")) {
		writeJSONError(w, http.StatusForbidden, msgBadCSRF)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	write := func(f frames.Frame) error {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(f)
	}
	closeNormal := func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
	}

	id, msg := s.openSession(q.Get("path"), q.Get("widget"))
	if msg != "" {
		write(frames.Error(msg))
		closeNormal()
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go s.readWS(ctx, cancel, conn, id)

	if err := write(frames.Session(id)); err != nil {
		s.sessions.Destroy(id)
		return
	}
	s.relay(ctx, id, write)
	closeNormal()
}

// readWS applies client messages to the session until the socket closes.
func (s *stateStore) readWS(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, id string) {
	defer cancel()
	for {
		var m wsMessage
		if err := conn.ReadJSON(&m); err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read ended", "session_id", id, "error", err)
			}
			return
		}
		switch m.Type {
		case "input":
			if err := s.sessions.SendInput(id, m.Input); err != nil {
				s.logger.Warn("send input", "session_id", id, "error", err)
			}
		case "keepalive":
			s.sessions.Touch(id)
		case "stop":
			s.sessions.Destroy(id)
			return
		default:
			s.logger.Debug("ignoring websocket message", "session_id", id, "type", m.Type)
		}
	}
}
