package handlers

import (
	"net/http"

	"github.com/caretalk/caretalk/internal/api/middleware"
	"github.com/caretalk/caretalk/internal/models"
)

// UploadResponse is the body for POST /rooms/{id}/uploads. The ref is what
// a subsequent message's attachments array must carry.
type UploadResponse struct {
	TicketID string `json:"ticket_id"`
	Ref      string `json:"ref"`
}

// Upload runs the full attachment flow in one request: stage a ticket,
// push the bytes to the external media store, and mark the ticket complete.
// Only after this returns may a message referencing the attachment be
// broadcast.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentityFromContext(r.Context())

	room, ok := h.authorizeRoom(w, r)
	if !ok {
		return
	}
	if h.media == nil {
		h.Error(w, http.StatusServiceUnavailable, "media store not configured")
		return
	}

	kind := r.URL.Query().Get("kind")
	switch kind {
	case "image", "video", "voice":
	default:
		h.Error(w, http.StatusBadRequest, "kind must be image, video or voice")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		h.Error(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	meta := models.FileMeta{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Kind:        kind,
		Size:        header.Size,
	}

	ticket := h.uploads.Stage(room.ID.String(), identity.ID, meta)

	ref, err := h.media.Put(r.Context(), meta, file)
	if err != nil {
		h.logger.Error().Err(err).
			Str("ticket_id", ticket.ID).
			Str("room_id", room.ID.String()).
			Msg("media store upload failed")
		h.Error(w, http.StatusBadGateway, "media store upload failed")
		return
	}

	if _, err := h.uploads.Complete(ticket.ID, ref); err != nil {
		h.logger.Error().Err(err).Str("ticket_id", ticket.ID).Msg("ticket completion failed")
		h.Error(w, http.StatusInternalServerError, "failed to complete upload")
		return
	}

	h.JSON(w, http.StatusCreated, UploadResponse{
		TicketID: ticket.ID,
		Ref:      string(ref),
	})
}
