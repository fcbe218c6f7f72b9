package hub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caretalk/caretalk/internal/models"
)

func TestAllowedCallTransitions(t *testing.T) {
	cases := []struct {
		from string
		to   string
		ok   bool
	}{
		{from: models.CallIdle, to: models.CallRinging, ok: true},
		{from: models.CallRinging, to: models.CallAccepted, ok: true},
		{from: models.CallRinging, to: models.CallDeclined, ok: true},
		{from: models.CallRinging, to: models.CallTimedOut, ok: true},
		{from: models.CallAccepted, to: models.CallEnded, ok: true},
		{from: models.CallIdle, to: models.CallAccepted, ok: false},
		{from: models.CallRinging, to: models.CallEnded, ok: false},
		{from: models.CallAccepted, to: models.CallDeclined, ok: false},
		{from: models.CallDeclined, to: models.CallRinging, ok: false},
		{from: models.CallEnded, to: models.CallAccepted, ok: false},
	}

	for _, tc := range cases {
		_, allowed := allowedCallTransitions[tc.from][tc.to]
		if allowed != tc.ok {
			t.Fatalf("transition %s -> %s expected allowed=%v got=%v", tc.from, tc.to, tc.ok, allowed)
		}
	}
}

func TestCallSessionTerminal(t *testing.T) {
	for state, terminal := range map[string]bool{
		models.CallRinging:  false,
		models.CallAccepted: false,
		models.CallDeclined: true,
		models.CallTimedOut: true,
		models.CallEnded:    true,
	} {
		c := &models.CallSession{State: state}
		assert.Equal(t, terminal, c.Terminal(), "state %s", state)
	}
}

// callEnv joins a patient and clinician into room-1 ready for signaling.
func callEnv(t *testing.T, opts Options) (*testEnv, *Session, *Session) {
	t.Helper()
	env := newTestEnv(t, opts)
	env.directory.addRoom("room-1", "patient-1", "clinician-1")

	patient := env.register(t, "patient-1", models.RolePatient)
	clinician := env.register(t, "clinician-1", models.RoleClinician)
	env.join(t, patient, "room-1")
	env.join(t, clinician, "room-1")
	return env, patient, clinician
}

func callEvent(kind, callID string) Event {
	return Event{
		RoomID:  "room-1",
		Kind:    kind,
		Payload: mustJSON(CallPayload{CallID: callID, Media: "video"}),
	}
}

func TestCallInviteAcceptEnd(t *testing.T) {
	env, patient, clinician := callEnv(t, Options{})
	ctx := context.Background()

	require.NoError(t, env.hub.Route(ctx, patient, callEvent(KindCallInvite, "call-1")))
	assert.Equal(t, models.CallRinging, env.hub.CallState("room-1"))

	// Only the callee sees the invite.
	ev := recvEvent(t, clinician)
	assert.Equal(t, KindCallInvite, ev.Kind)
	assert.Equal(t, "patient-1", ev.SenderID)
	assertNoEvent(t, patient)

	var payload CallPayload
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	assert.Equal(t, "call-1", payload.CallID)
	assert.Equal(t, "video", payload.Media)

	// Acceptance is broadcast to both sides.
	require.NoError(t, env.hub.Route(ctx, clinician, callEvent(KindCallAccept, "call-1")))
	assert.Equal(t, models.CallAccepted, env.hub.CallState("room-1"))
	assert.Equal(t, KindCallAccept, recvEvent(t, patient).Kind)
	assert.Equal(t, KindCallAccept, recvEvent(t, clinician).Kind)

	// Either side may end an accepted call.
	require.NoError(t, env.hub.Route(ctx, patient, callEvent(KindCallEnd, "call-1")))
	assert.Equal(t, models.CallIdle, env.hub.CallState("room-1"))
	assert.Equal(t, KindCallEnd, recvEvent(t, patient).Kind)
	assert.Equal(t, KindCallEnd, recvEvent(t, clinician).Kind)

	// The room is idle again; a fresh invite is legal.
	require.NoError(t, env.hub.Route(ctx, clinician, callEvent(KindCallInvite, "call-2")))
}

func TestCallDeclineReturnsRoomToIdle(t *testing.T) {
	env, patient, clinician := callEnv(t, Options{})
	ctx := context.Background()

	require.NoError(t, env.hub.Route(ctx, patient, callEvent(KindCallInvite, "call-1")))
	recvEvent(t, clinician)

	require.NoError(t, env.hub.Route(ctx, clinician, callEvent(KindCallDecline, "call-1")))
	assert.Equal(t, models.CallIdle, env.hub.CallState("room-1"))
	assert.Equal(t, KindCallDecline, recvEvent(t, patient).Kind)
	assert.Equal(t, KindCallDecline, recvEvent(t, clinician).Kind)

	require.NoError(t, env.hub.Route(ctx, patient, callEvent(KindCallInvite, "call-2")))
}

func TestCallInviteWhileActiveRejected(t *testing.T) {
	env, patient, clinician := callEnv(t, Options{})
	ctx := context.Background()

	require.NoError(t, env.hub.Route(ctx, patient, callEvent(KindCallInvite, "call-1")))
	recvEvent(t, clinician)

	err := env.hub.Route(ctx, clinician, callEvent(KindCallInvite, "call-2"))
	require.ErrorIs(t, err, ErrInvalidTransition)

	// The active call is untouched and no spurious broadcast went out.
	assert.Equal(t, models.CallRinging, env.hub.CallState("room-1"))
	assertNoEvent(t, patient)
}

func TestInitiatorCannotAcceptOwnInvite(t *testing.T) {
	env, patient, clinician := callEnv(t, Options{})
	ctx := context.Background()

	require.NoError(t, env.hub.Route(ctx, patient, callEvent(KindCallInvite, "call-1")))
	recvEvent(t, clinician)

	err := env.hub.Route(ctx, patient, callEvent(KindCallAccept, "call-1"))
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, models.CallRinging, env.hub.CallState("room-1"))
}

func TestCallEventsRequireMatchingCallID(t *testing.T) {
	env, patient, clinician := callEnv(t, Options{})
	ctx := context.Background()

	require.NoError(t, env.hub.Route(ctx, patient, callEvent(KindCallInvite, "call-1")))
	recvEvent(t, clinician)

	err := env.hub.Route(ctx, clinician, callEvent(KindCallAccept, "stale-call"))
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCallEndRequiresAcceptedState(t *testing.T) {
	env, patient, clinician := callEnv(t, Options{})
	ctx := context.Background()

	require.NoError(t, env.hub.Route(ctx, patient, callEvent(KindCallInvite, "call-1")))
	recvEvent(t, clinician)

	err := env.hub.Route(ctx, patient, callEvent(KindCallEnd, "call-1"))
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCallAcceptWithoutInviteRejected(t *testing.T) {
	env, _, clinician := callEnv(t, Options{})

	err := env.hub.Route(context.Background(), clinician, callEvent(KindCallAccept, "call-1"))
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCallRequiresJoinedSession(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.directory.addRoom("room-1", "patient-1", "clinician-1")

	patient := env.register(t, "patient-1", models.RolePatient)
	err := env.hub.Route(context.Background(), patient, callEvent(KindCallInvite, "call-1"))
	require.ErrorIs(t, err, ErrNotSubscribed)
}

func TestCallRingTimeout(t *testing.T) {
	env, patient, clinician := callEnv(t, Options{RingTimeout: 30 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, env.hub.Route(ctx, patient, callEvent(KindCallInvite, "call-1")))
	recvEvent(t, clinician)

	// Both sides learn about the timeout; the broadcast has no sender.
	ev := recvEvent(t, patient)
	assert.Equal(t, KindCallTimedOut, ev.Kind)
	assert.Empty(t, ev.SenderID)
	assert.Equal(t, KindCallTimedOut, recvEvent(t, clinician).Kind)
	assert.Equal(t, models.CallIdle, env.hub.CallState("room-1"))

	// A late accept is rejected rather than resurrecting the call.
	err := env.hub.Route(ctx, clinician, callEvent(KindCallAccept, "call-1"))
	require.ErrorIs(t, err, ErrInvalidTransition)

	// The room accepts a fresh invite.
	require.NoError(t, env.hub.Route(ctx, patient, callEvent(KindCallInvite, "call-2")))
}

func TestCallAcceptCancelsRingTimer(t *testing.T) {
	env, patient, clinician := callEnv(t, Options{RingTimeout: 30 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, env.hub.Route(ctx, patient, callEvent(KindCallInvite, "call-1")))
	recvEvent(t, clinician)
	require.NoError(t, env.hub.Route(ctx, clinician, callEvent(KindCallAccept, "call-1")))
	recvEvent(t, patient)
	recvEvent(t, clinician)

	// Past the ring window the accepted call must still be live.
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, models.CallAccepted, env.hub.CallState("room-1"))
	assertNoEvent(t, patient)
}
