package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/izzyreal/wishjournal/internal/frames"
	"github.com/izzyreal/wishjournal/internal/scriptrun"
	"github.com/izzyreal/wishjournal/internal/server/httpx"
	"github.com/izzyreal/wishjournal/internal/widget"
)

const (
	msgBadCSRF        = "Nieprawidłowy token bezpieczeństwa"
	msgStartFailed    = "Nie udało się uruchomić skryptu"
	msgSessionExpired = "Sesja wygasła"
	msgWidgetNotFound = "Nie znaleziono widżetu"
)

// sideRequest is the JSON body of input, keepalive, stop and release
// requests.
type sideRequest struct {
	SessionID string `json:"session_id"`
	WidgetID  string `json:"widget_id,omitempty"`
	CSRFToken string `json:"csrf_token"`
	frames.Input
}

// widgetBackend runs a widget instance as a terminal session: frames from
// the instance go to the session and session input goes to the instance.
type widgetBackend struct {
	inst *widget.Instance
}

func (b widgetBackend) Run(ctx context.Context, sio scriptrun.IO) (int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case in := <-sio.Input():
				b.inst.Send(in)
			}
		}
	}()

	err := b.inst.Run(ctx, sio.Emit)
	switch {
	case err == nil, errors.Is(err, widget.ErrStopped):
		return 0, nil
	case ctx.Err() != nil:
		return 0, ctx.Err()
	default:
		// The instance already reported the failure as an error frame.
		return 1, nil
	}
}

// openSession creates and starts a session for a script path or a widget
// id. On failure it returns the message to show in the terminal.
func (s *stateStore) openSession(script, widgetID string) (string, string) {
	var (
		label   string
		backend scriptrun.Backend
	)
	if widgetID != "" {
		inst, ok := s.host.Get(widgetID)
		if !ok {
			s.logger.Warn("stream for unknown widget", "widget_id", widgetID)
			return "", msgWidgetNotFound
		}
		label = "widget:" + inst.Type
		backend = widgetBackend{inst: inst}
	} else {
		path, err := s.lib.ScriptPath(script)
		if err != nil {
			s.logger.Warn("stream for invalid script path", "path", script, "error", err)
			return "", "Nie znaleziono skryptu: " + script
		}
		label = "script:" + script
		backend = s.scriptBackend(path)
	}

	sess := s.sessions.Create(label, backend)
	if err := s.sessions.Start(sess.ID); err != nil {
		s.logger.Error("start session", "session_id", sess.ID, "error", err)
		s.sessions.Destroy(sess.ID)
		return "", msgStartFailed
	}
	return sess.ID, ""
}

func (s *stateStore) scriptStreamHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !validCSRF(r, q.Get("csrf_token")) {
		writeJSONError(w, http.StatusForbidden, msgBadCSRF)
		return
	}

	id := q.Get("session_id")
	switch {
	case id == "":
		var msg string
		if id, msg = s.openSession(q.Get("path"), ""); msg != "" {
			s.streamError(w, msg)
			return
		}
	default:
		if _, ok := s.sessions.Get(id); !ok {
			s.streamError(w, msgSessionExpired)
			return
		}
	}
	s.streamSession(w, r, id)
}

func (s *stateStore) widgetStreamHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !validCSRF(r, q.Get("csrf_token")) {
		writeJSONError(w, http.StatusForbidden, msgBadCSRF)
		return
	}
	id, msg := s.openSession("", q.Get("id"))
	if msg != "" {
		s.streamError(w, msg)
		return
	}
	s.streamSession(w, r, id)
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// streamError answers a stream request with a single error frame.
func (s *stateStore) streamError(w http.ResponseWriter, msg string) {
	setSSEHeaders(w)
	if err := frames.WriteSSE(w, frames.Error(msg)); err != nil {
		s.logger.Debug("write error frame", "error", err)
	}
}

// streamSession relays a session's frames as server-sent events until the
// session ends or the client goes away.
func (s *stateStore) streamSession(w http.ResponseWriter, r *http.Request, id string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	setSSEHeaders(w)

	send := func(f frames.Frame) error {
		if err := frames.WriteSSE(w, f); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
	if err := send(frames.Session(id)); err != nil {
		return
	}
	s.relay(r.Context(), id, send)
}

// relay waits for session frames and passes them to send until a terminal
// frame, a send failure or the end of the session. Frames that could not be
// sent go back to the session for a resumed stream.
func (s *stateStore) relay(ctx context.Context, id string, send func(frames.Frame) error) {
	for {
		batch, err := s.sessions.Wait(ctx, id)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				s.logger.Info("client disconnected from session", "session_id", id)
			case errors.Is(err, scriptrun.ErrSessionNotFound):
				s.logger.Info("session no longer exists", "session_id", id)
			}
			return
		}
		for i, f := range batch {
			if err := send(f); err != nil {
				s.sessions.Requeue(id, batch[i:])
				s.logger.Info("session stream write failed", "session_id", id, "error", err, "requeued", len(batch)-i)
				return
			}
			if f.Terminal() {
				s.logger.Info("session stream ended", "session_id", id, "type", f.Type)
				return
			}
		}
	}
}

// decodeSide parses and authorises a side-channel request, writing the
// error response itself when it fails.
func decodeSide(w http.ResponseWriter, r *http.Request) (sideRequest, bool) {
	var req sideRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid JSON")
		return req, false
	}
	if !validCSRF(r, req.CSRFToken) {
		writeJSONError(w, http.StatusForbidden, msgBadCSRF)
		return req, false
	}
	return req, true
}

func requireSessionID(w http.ResponseWriter, req sideRequest) bool {
	if req.SessionID == "" {
		writeJSONError(w, http.StatusBadRequest, "Missing session_id")
		return false
	}
	return true
}

func (s *stateStore) scriptInputHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSide(w, r)
	if !ok {
		s.logger.Warn("script input rejected")
		return
	}
	if !requireSessionID(w, req) {
		return
	}
	if err := s.sessions.SendInput(req.SessionID, req.Input); err != nil {
		s.logger.Warn("send input", "session_id", req.SessionID, "error", err)
		if errors.Is(err, scriptrun.ErrSessionNotFound) {
			writeJSONError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "Failed to send input")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *stateStore) scriptKeepaliveHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSide(w, r)
	if !ok || !requireSessionID(w, req) {
		return
	}
	if err := s.sessions.Touch(req.SessionID); err != nil {
		writeJSONError(w, http.StatusNotFound, "Session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *stateStore) scriptStopHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSide(w, r)
	if !ok || !requireSessionID(w, req) {
		return
	}
	if !s.sessions.Destroy(req.SessionID) {
		writeJSONError(w, http.StatusNotFound, "Session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *stateStore) widgetReleaseHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSide(w, r)
	if !ok {
		return
	}
	if req.WidgetID == "" {
		writeJSONError(w, http.StatusBadRequest, "Missing widget_id")
		return
	}
	if !s.host.Release(req.WidgetID) {
		writeJSONError(w, http.StatusNotFound, msgWidgetNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
