package models

import "encoding/json"

// Envelope is one routed unit of real-time data, immutable once broadcast.
// Sequence is assigned by the router and is unique and strictly increasing
// within a room; the router is the single source of ordering truth.
type Envelope struct {
	ID       string          `json:"id"` // ULID
	RoomID   string          `json:"room_id"`
	SenderID string          `json:"sender_id"`
	Kind     string          `json:"kind"`
	Sequence uint64          `json:"sequence"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	SentAt   int64           `json:"sent_at"` // Unix ms
}
