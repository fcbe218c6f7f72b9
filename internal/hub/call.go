package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/caretalk/caretalk/internal/metrics"
	"github.com/caretalk/caretalk/internal/models"
)

// allowedCallTransitions enumerates the legal call state machine:
// idle -> ringing -> {accepted, declined, timed_out}; accepted -> ended.
// Everything else is rejected explicitly so duplicate or out-of-order
// client retries can never push a room into an inconsistent state.
var allowedCallTransitions = map[string]map[string]struct{}{
	models.CallIdle: {
		models.CallRinging: {},
	},
	models.CallRinging: {
		models.CallAccepted: {},
		models.CallDeclined: {},
		models.CallTimedOut: {},
	},
	models.CallAccepted: {
		models.CallEnded: {},
	},
}

// routeCall interprets call-control payloads against the room's call state.
// All transitions for a room are linearized under the room lock, which also
// guarantees at most one non-terminal call session per room.
func (h *Hub) routeCall(ctx context.Context, s *Session, ev Event) error {
	var payload CallPayload
	if len(ev.Payload) > 0 {
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return fmt.Errorf("%w: %v", ErrBadEvent, err)
		}
	}
	if payload.CallID == "" {
		return fmt.Errorf("%w: call_id is required", ErrBadEvent)
	}

	r := h.lookupRoom(ev.RoomID)
	if r == nil {
		return fmt.Errorf("%w: %s", ErrUnknownRoom, ev.RoomID)
	}

	r.mu.Lock()
	if _, ok := r.subscribers[s]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotSubscribed, ev.RoomID)
	}

	var env *models.Envelope
	var err error
	switch ev.Kind {
	case KindCallInvite:
		env, err = h.callInviteLocked(r, s, payload)
	case KindCallAccept:
		env, err = h.callAcceptLocked(r, s, payload)
	case KindCallDecline:
		env, err = h.callDeclineLocked(r, s, payload)
	case KindCallEnd:
		env, err = h.callEndLocked(r, s, payload)
	}
	r.mu.Unlock()

	if err != nil {
		return err
	}
	h.persist(env)
	return nil
}

// callInviteLocked is the only transition that may originate from idle.
func (h *Hub) callInviteLocked(r *room, s *Session, payload CallPayload) (*models.Envelope, error) {
	if r.call != nil {
		return nil, fmt.Errorf("%w: call %s already %s in room %s",
			ErrInvalidTransition, r.call.ID, r.call.State, r.id)
	}

	call := &models.CallSession{
		ID:          payload.CallID,
		RoomID:      r.id,
		InitiatorID: s.Identity.ID,
		State:       models.CallRinging,
		Media:       payload.Media,
		StartedAt:   time.Now(),
	}
	r.call = call

	callID := call.ID
	roomID := r.id
	r.ringTimer = time.AfterFunc(h.opts.RingTimeout, func() {
		h.timeoutCall(roomID, callID)
	})

	metrics.CallTransitions.WithLabelValues(models.CallRinging).Inc()
	h.logger.Info().
		Str("room_id", r.id).
		Str("call_id", call.ID).
		Str("initiator", s.Identity.ID).
		Msg("call ringing")

	// The initiator already knows about its own invite.
	return h.broadcastLocked(r, s.Identity.ID, KindCallInvite, mustJSON(payload), false), nil
}

// callAcceptLocked moves ringing -> accepted. Only the non-initiator may
// accept; anything else is rejected without a broadcast or state change.
func (h *Hub) callAcceptLocked(r *room, s *Session, payload CallPayload) (*models.Envelope, error) {
	if err := checkCallTransition(r, payload.CallID, models.CallAccepted); err != nil {
		return nil, err
	}
	if s.Identity.ID == r.call.InitiatorID {
		return nil, fmt.Errorf("%w: initiator cannot accept its own invite", ErrInvalidTransition)
	}

	r.call.State = models.CallAccepted
	r.stopRingTimer()

	metrics.CallTransitions.WithLabelValues(models.CallAccepted).Inc()
	h.logger.Info().
		Str("room_id", r.id).
		Str("call_id", r.call.ID).
		Str("acceptor", s.Identity.ID).
		Msg("call accepted")

	return h.broadcastLocked(r, s.Identity.ID, KindCallAccept, mustJSON(payload), true), nil
}

// callDeclineLocked moves ringing -> declined and retires the call session,
// leaving the room ready for a new invite.
func (h *Hub) callDeclineLocked(r *room, s *Session, payload CallPayload) (*models.Envelope, error) {
	if err := checkCallTransition(r, payload.CallID, models.CallDeclined); err != nil {
		return nil, err
	}

	r.call.State = models.CallDeclined
	r.clearCall(time.Now())

	metrics.CallTransitions.WithLabelValues(models.CallDeclined).Inc()
	h.logger.Info().
		Str("room_id", r.id).
		Str("call_id", payload.CallID).
		Str("decliner", s.Identity.ID).
		Msg("call declined")

	return h.broadcastLocked(r, s.Identity.ID, KindCallDecline, mustJSON(payload), true), nil
}

// callEndLocked moves accepted -> ended; either participant may end.
func (h *Hub) callEndLocked(r *room, s *Session, payload CallPayload) (*models.Envelope, error) {
	if err := checkCallTransition(r, payload.CallID, models.CallEnded); err != nil {
		return nil, err
	}

	r.call.State = models.CallEnded
	r.clearCall(time.Now())

	metrics.CallTransitions.WithLabelValues(models.CallEnded).Inc()
	h.logger.Info().
		Str("room_id", r.id).
		Str("call_id", payload.CallID).
		Str("ended_by", s.Identity.ID).
		Msg("call ended")

	return h.broadcastLocked(r, s.Identity.ID, KindCallEnd, mustJSON(payload), true), nil
}

// timeoutCall resolves an unanswered invite. The timer may race a late
// accept or a second firing; re-checking the call id and state under the
// room lock makes the transition happen exactly once.
func (h *Hub) timeoutCall(roomID, callID string) {
	r := h.lookupRoom(roomID)
	if r == nil {
		return
	}

	r.mu.Lock()
	if r.call == nil || r.call.ID != callID || r.call.State != models.CallRinging {
		r.mu.Unlock()
		return
	}

	r.call.State = models.CallTimedOut
	r.clearCall(time.Now())

	env := h.broadcastLocked(r, "", KindCallTimedOut, mustJSON(CallPayload{CallID: callID}), true)
	r.mu.Unlock()

	metrics.CallTransitions.WithLabelValues(models.CallTimedOut).Inc()
	h.logger.Info().
		Str("room_id", roomID).
		Str("call_id", callID).
		Msg("call timed out")

	h.persist(env)
}

// CallState reports the current call state of a room; idle when no call
// session is active.
func (h *Hub) CallState(roomID string) string {
	r := h.lookupRoom(roomID)
	if r == nil {
		return models.CallIdle
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.call == nil {
		return models.CallIdle
	}
	return r.call.State
}

// checkCallTransition validates that a target state is reachable from the
// room's current call state and that the event names the active call.
// Callers must hold the room lock.
func checkCallTransition(r *room, callID, next string) error {
	if r.call == nil {
		return fmt.Errorf("%w: no active call in room %s", ErrInvalidTransition, r.id)
	}
	if r.call.ID != callID {
		return fmt.Errorf("%w: call %s is not the active call", ErrInvalidTransition, callID)
	}
	if _, ok := allowedCallTransitions[r.call.State][next]; !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.call.State, next)
	}
	return nil
}
