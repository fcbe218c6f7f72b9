package models

import "time"

// Call session states. A room holds at most one call session in a
// non-terminal state at any instant.
const (
	CallIdle     = "idle"
	CallRinging  = "ringing"
	CallAccepted = "accepted"
	CallDeclined = "declined"
	CallTimedOut = "timed_out"
	CallEnded    = "ended"
)

// CallSession tracks one ring/accept/decline/end cycle within a room.
// The ID is a client-generated opaque token; uniqueness is scoped to the
// room, which is sufficient because only one active call may exist per room.
type CallSession struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"room_id"`
	InitiatorID string    `json:"initiator_id"`
	State       string    `json:"state"`
	Media       string    `json:"media,omitempty"` // "audio" or "video"
	StartedAt   time.Time `json:"started_at"`
	ResolvedAt  time.Time `json:"resolved_at,omitempty"`
}

// Terminal reports whether the session has reached a resolving state.
func (c *CallSession) Terminal() bool {
	switch c.State {
	case CallAccepted, CallRinging:
		return false
	}
	return true
}
