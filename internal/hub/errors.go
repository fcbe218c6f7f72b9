package hub

import "errors"

// Routing error taxonomy. Authorization and transition errors are surfaced
// synchronously to the offending client; delivery and persistence failures
// are logged and never fail the sender.
var (
	ErrNotAuthorized     = errors.New("identity is not a room participant")
	ErrNotSubscribed     = errors.New("session has not joined the room")
	ErrDuplicateSession  = errors.New("identity already has a live session")
	ErrInvalidTransition = errors.New("call event inconsistent with call state")
	ErrUploadNotReady    = errors.New("attachment upload has not completed")
	ErrUnknownRoom       = errors.New("unknown room")
	ErrRoomFull          = errors.New("room subscriber limit reached")
	ErrBadEvent          = errors.New("malformed event")
	ErrSessionClosed     = errors.New("session is closed")
)

// ErrorCode maps a routing error to the wire error code sent back to the
// offending client.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotAuthorized), errors.Is(err, ErrNotSubscribed):
		return "not_authorized"
	case errors.Is(err, ErrDuplicateSession):
		return "duplicate_session"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrUploadNotReady):
		return "upload_not_ready"
	case errors.Is(err, ErrUnknownRoom):
		return "unknown_room"
	case errors.Is(err, ErrRoomFull):
		return "room_full"
	case errors.Is(err, ErrSessionClosed):
		return "session_closed"
	default:
		return "bad_event"
	}
}
