package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/caretalk/caretalk/internal/hub"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Origin enforcement happens at the CORS layer; tokens gate the
	// upgrade itself.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades the connection and binds it to a session. The token
// rides a query parameter because browser websocket clients cannot set
// request headers.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		h.Error(w, http.StatusUnauthorized, "missing token")
		return
	}

	identity, err := h.verifier.Verify(token)
	if err != nil {
		h.Error(w, http.StatusUnauthorized, "invalid token")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	session, err := h.hub.Register(identity, conn)
	if err != nil {
		// The upgrade already succeeded, so the rejection has to travel
		// over the socket itself.
		code := websocket.ClosePolicyViolation
		msg := hub.ErrorCode(err)
		if !errors.Is(err, hub.ErrDuplicateSession) {
			code = websocket.CloseInternalServerErr
		}
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, msg), deadline)
		_ = conn.Close()
		return
	}

	go session.WritePump()
	go session.ReadPump()
}
