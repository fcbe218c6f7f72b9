package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/caretalk/caretalk/internal/api/middleware"
	"github.com/caretalk/caretalk/internal/models"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// CreateRoomRequest is the body for POST /rooms.
type CreateRoomRequest struct {
	PatientID   string `json:"patient_id"`
	ClinicianID string `json:"clinician_id"`
}

// CreateRoom provisions a patient/clinician room. The caller must be one of
// the two named participants; a room's pair is fixed for its lifetime.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentityFromContext(r.Context())

	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.PatientID == "" || req.ClinicianID == "" {
		h.Error(w, http.StatusBadRequest, "patient_id and clinician_id are required")
		return
	}
	if req.PatientID == req.ClinicianID {
		h.Error(w, http.StatusBadRequest, "participants must be distinct")
		return
	}
	if identity.ID != req.PatientID && identity.ID != req.ClinicianID {
		h.Error(w, http.StatusForbidden, "caller must be a room participant")
		return
	}

	room, err := h.data.CreateRoom(r.Context(), req.PatientID, req.ClinicianID)
	if err != nil {
		h.logger.Error().Err(err).Msg("room creation failed")
		h.Error(w, http.StatusInternalServerError, "failed to create room")
		return
	}

	h.logger.Info().
		Str("room_id", room.ID.String()).
		Str("patient", room.PatientID).
		Str("clinician", room.ClinicianID).
		Msg("room created")
	h.JSON(w, http.StatusCreated, room)
}

// GetRoom returns room metadata to its participants.
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	room, ok := h.authorizeRoom(w, r)
	if !ok {
		return
	}
	h.JSON(w, http.StatusOK, room)
}

// HistoryResponse is the body for GET /rooms/{id}/messages.
type HistoryResponse struct {
	RoomID    string            `json:"room_id"`
	Envelopes []models.Envelope `json:"envelopes"` // newest first
}

// GetRoomMessages serves the room's broadcast history for reconnect
// backfill, newest first, paged by sequence number.
func (h *Handler) GetRoomMessages(w http.ResponseWriter, r *http.Request) {
	room, ok := h.authorizeRoom(w, r)
	if !ok {
		return
	}
	if h.redis == nil {
		h.Error(w, http.StatusServiceUnavailable, "history store not configured")
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	var beforeSeq uint64
	if v := r.URL.Query().Get("before"); v != "" {
		if parsed, err := strconv.ParseUint(v, 10, 64); err == nil {
			beforeSeq = parsed
		}
	}

	envelopes, err := h.redis.RoomEnvelopes(r.Context(), room.ID.String(), limit, beforeSeq)
	if err != nil {
		h.logger.Error().Err(err).Str("room_id", room.ID.String()).Msg("history read failed")
		h.Error(w, http.StatusInternalServerError, "failed to read history")
		return
	}

	h.JSON(w, http.StatusOK, HistoryResponse{
		RoomID:    room.ID.String(),
		Envelopes: envelopes,
	})
}

// authorizeRoom loads the room from the URL and verifies the caller is one
// of its participants. On failure the response has already been written.
func (h *Handler) authorizeRoom(w http.ResponseWriter, r *http.Request) (*models.Room, bool) {
	identity := middleware.GetIdentityFromContext(r.Context())

	roomID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid room id")
		return nil, false
	}

	room, err := h.data.GetRoom(r.Context(), roomID)
	if err != nil {
		h.logger.Error().Err(err).Str("room_id", roomID.String()).Msg("room lookup failed")
		h.Error(w, http.StatusInternalServerError, "failed to load room")
		return nil, false
	}
	if room == nil {
		h.Error(w, http.StatusNotFound, "room not found")
		return nil, false
	}
	if !room.HasParticipant(identity.ID) {
		h.Error(w, http.StatusForbidden, "not a room participant")
		return nil, false
	}
	return room, true
}
