// Package handlers contains the HTTP surface of the routing core: room
// administration, history reads, the upload flow and the websocket
// entry point.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/caretalk/caretalk/internal/api/middleware"
	"github.com/caretalk/caretalk/internal/config"
	"github.com/caretalk/caretalk/internal/hub"
	"github.com/caretalk/caretalk/internal/store"
	"github.com/caretalk/caretalk/internal/upload"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	cfg      *config.Config
	data     store.DataStore
	redis    *store.RedisStore
	hub      *hub.Hub
	uploads  *upload.Coordinator
	media    *upload.MediaStore
	verifier *middleware.IdentityVerifier
	logger   zerolog.Logger
}

// NewHandler creates a new Handler with the given dependencies. redis and
// media may be nil; the affected endpoints degrade rather than fail at
// startup.
func NewHandler(
	cfg *config.Config,
	data store.DataStore,
	redis *store.RedisStore,
	h *hub.Hub,
	uploads *upload.Coordinator,
	media *upload.MediaStore,
	verifier *middleware.IdentityVerifier,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		cfg:      cfg,
		data:     data,
		redis:    redis,
		hub:      h,
		uploads:  uploads,
		media:    media,
		verifier: verifier,
		logger:   logger,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}
