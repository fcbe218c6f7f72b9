package models

import (
	"time"

	"github.com/google/uuid"
)

// Room is a fixed two-party conversation context between a patient and a
// clinician. The participant pair is set when the room is created and never
// changes; live subscriptions come and go with connections.
type Room struct {
	ID           uuid.UUID `json:"id"`
	PatientID    string    `json:"patient_id"`
	ClinicianID  string    `json:"clinician_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
	MessageCount int64     `json:"message_count"`
}

// Participants returns the fixed identity pair authorized for the room.
func (r *Room) Participants() []string {
	return []string{r.PatientID, r.ClinicianID}
}

// HasParticipant reports whether the identity is one of the room's fixed
// participants.
func (r *Room) HasParticipant(identityID string) bool {
	return identityID == r.PatientID || identityID == r.ClinicianID
}
