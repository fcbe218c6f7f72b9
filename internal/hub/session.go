package hub

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/caretalk/caretalk/internal/models"
)

// Session binds one authenticated identity to one live connection. It is
// created on register and destroyed on deregister; destruction unsubscribes
// it from every room it joined before Deregister returns.
type Session struct {
	ID       string
	Identity models.Identity

	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	joined map[string]struct{}
	closed bool

	// Local send counter, for idempotency debugging in logs.
	sent atomic.Uint64
}

// Sent returns how many inbound events this session has submitted.
func (s *Session) Sent() uint64 {
	return s.sent.Load()
}

// Joined returns a snapshot of the room ids the session is subscribed to.
func (s *Session) Joined() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms := make([]string, 0, len(s.joined))
	for id := range s.joined {
		rooms = append(rooms, id)
	}
	return rooms
}

// enqueue attempts a non-blocking hand-off to the write pump. A false
// return means the outbound queue is full or the session is already
// closed. The closed check and the send share s.mu with the close in
// Deregister, so a reply racing teardown is dropped, never sent on a
// closed channel.
func (s *Session) enqueue(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

// deliver marshals an event onto the outbound queue. Used only for direct
// replies to this session (acks and errors), never for room broadcast.
func (s *Session) deliver(ev Event) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		return false
	}
	return s.enqueue(data)
}

// sendError reports a routing error back to the client so it can correct
// its UI state instead of retrying blindly.
func (s *Session) sendError(roomID string, err error) {
	s.deliver(Event{
		RoomID: roomID,
		Kind:   KindError,
		Payload: mustJSON(ErrorPayload{
			Code:    ErrorCode(err),
			Message: err.Error(),
		}),
	})
}
