package hub

import (
	"encoding/json"

	"github.com/caretalk/caretalk/internal/models"
)

// Event kinds multiplexed on the real-time channel. Chat and call-control
// share one stream; the router dispatches by kind exactly once at its entry
// point.
const (
	KindJoin         = "join"
	KindLeave        = "leave"
	KindMessage      = "message"
	KindCallInvite   = "call_invite"
	KindCallAccept   = "call_accept"
	KindCallDecline  = "call_decline"
	KindCallEnd      = "call_end"
	KindCallTimedOut = "call_timed_out"
	KindError        = "error"
)

// Event is the wire shape exchanged over the real-time channel. Inbound
// events carry room_id, kind and payload; outbound events are enriched with
// sender_id and the router-assigned per-room sequence number.
type Event struct {
	RoomID   string          `json:"room_id"`
	Kind     string          `json:"kind"`
	SenderID string          `json:"sender_id,omitempty"`
	Sequence uint64          `json:"sequence,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// MessagePayload is the payload for "message" events. Text is optional when
// attachments are present; attachments are references previously resolved by
// the upload coordinator.
type MessagePayload struct {
	Text        string   `json:"text,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
}

// CallPayload is the payload for call-control events. CallID is a
// client-generated opaque token scoped to the room.
type CallPayload struct {
	CallID string `json:"call_id"`
	Media  string `json:"media,omitempty"` // "audio" or "video", invite only
}

// ErrorPayload is the payload for "error" events sent back to the
// offending client.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// eventFromEnvelope converts a sequenced envelope into the outbound wire
// event delivered to subscribers.
func eventFromEnvelope(env *models.Envelope) Event {
	return Event{
		RoomID:   env.RoomID,
		Kind:     env.Kind,
		SenderID: env.SenderID,
		Sequence: env.Sequence,
		Payload:  env.Payload,
	}
}

func mustJSON(v interface{}) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
