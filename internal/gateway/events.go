// ABOUTME: WebSocket streaming of session events to consumers.
// ABOUTME: One subscriber per connection; the read pump only watches for close.

package gateway

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const eventWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleEvents upgrades the connection and streams session events until
// either side goes away. The initial frame is a transcript snapshot so a
// late subscriber starts from current state.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	sess, ok := s.lookup(id)
	if !ok {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "session_id", id, "error", err)
		return
	}
	defer conn.Close()

	events, subID := sess.Subscribe()
	defer sess.Unsubscribe(subID)

	// Drain inbound frames so pings and the close handshake are serviced.
	readClosed := make(chan struct{})
	go func() {
		defer close(readClosed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	snapshot := sessionEvent{
		Type:          "transcript",
		Transcript:    sess.Transcript(),
		AwaitingReply: sess.AwaitingReply(),
	}
	if err := writeEvent(conn, snapshot); err != nil {
		return
	}

	s.logger.Debug("event stream opened", "session_id", id)
	for {
		select {
		case <-readClosed:
			return
		case ev, open := <-events:
			if !open {
				// Session closed underneath us.
				deadline := time.Now().Add(eventWriteTimeout)
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
					deadline)
				return
			}
			if err := writeEvent(conn, ev); err != nil {
				s.logger.Debug("event stream write failed", "session_id", id, "error", err)
				return
			}
		}
	}
}

// sessionEvent mirrors session.Event for the initial snapshot frame.
type sessionEvent struct {
	Type          string `json:"type"`
	Transcript    any    `json:"transcript,omitempty"`
	AwaitingReply bool   `json:"awaiting_reply"`
}

func writeEvent(conn *websocket.Conn, payload any) error {
	conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
	return conn.WriteJSON(payload)
}
