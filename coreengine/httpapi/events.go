package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/jeeves-cluster-organization/consensusai/commbus"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/kernel"
)

// EventSnapshot is the type of the first message on an events socket.
const EventSnapshot = "Snapshot"

// EventMessage is one websocket frame.
type EventMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	Payload   json.RawMessage `json:"payload"`
}

// handleEvents upgrades to a websocket and streams a snapshot followed by the
// session's events. The socket closes normally after convergence or close.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, sub, err := s.kernel.Watch(id, eventBuffer)
	if errors.Is(err, kernel.ErrNoBus) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer sub.Close()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{})
	if err != nil {
		s.logger.Warn("websocket_accept_failed", "session_id", id, "error", err.Error())
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream ended")

	// Reads are not expected; CloseRead handles control frames and cancels
	// ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	snapshot, err := json.Marshal(sessionView(sess))
	if err != nil {
		return
	}
	if err := wsjson.Write(ctx, conn, EventMessage{Type: EventSnapshot, SessionID: id, Payload: snapshot}); err != nil {
		return
	}
	if sess.State().IsTerminal() {
		conn.Close(websocket.StatusNormalClosure, "session finished")
		return
	}

	s.logger.Debug("event_stream_started", "session_id", id)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-sub.Events():
			eventType := commbus.GetMessageType(msg)
			payload, err := json.Marshal(msg)
			if err != nil {
				return
			}
			if err := wsjson.Write(ctx, conn, EventMessage{Type: eventType, SessionID: id, Payload: payload}); err != nil {
				return
			}
			if commbus.IsTerminalEvent(eventType) {
				conn.Close(websocket.StatusNormalClosure, "session finished")
				return
			}
		}
	}
}
