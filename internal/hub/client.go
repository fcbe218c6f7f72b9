package hub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound frame size. Attachments travel out of band, so
	// frames only ever carry text and references.
	maxMessageSize = 32 * 1024
)

// ReadPump pumps inbound frames from the connection into the router.
//
// One goroutine per session. The pump owns all reads on the connection;
// it unwinds on any read error and deregisters the session on the way out.
func (s *Session) ReadPump() {
	defer s.hub.Deregister(s)

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.hub.logger.Warn().Err(err).
					Str("session_id", s.ID).
					Msg("unexpected close")
			}
			return
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			s.sendError("", ErrBadEvent)
			continue
		}
		s.sent.Add(1)

		if err := s.hub.Route(context.Background(), s, ev); err != nil {
			s.sendError(ev.RoomID, err)
		}
	}
}

// WritePump pumps frames from the send queue to the connection and keeps
// the connection alive with periodic pings.
//
// One goroutine per session. The pump owns all writes on the connection.
// It exits when the send channel is closed by Deregister or when a write
// fails; either way the deferred Close unwinds the read pump too.
func (s *Session) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case data, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
