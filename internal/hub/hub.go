// Package hub implements the real-time routing core: session registry, room
// directory, message router and call signaling controller. One hub instance
// is the authoritative ordering process for every room it serves.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/caretalk/caretalk/internal/metrics"
	"github.com/caretalk/caretalk/internal/models"
)

// Directory supplies the authorization input for joins and receives the
// room-activity bookkeeping side effects. Implemented by store.DataStore.
type Directory interface {
	Participants(ctx context.Context, roomID string) ([]string, error)
	TouchRoomActivity(ctx context.Context, roomID string) error
	IncrementMessageCount(ctx context.Context, roomID string) error
}

// EnvelopeSink persists broadcast envelopes. Writes are fire-and-forget
// from the router's perspective: a failed write degrades durability but
// never blocks in-memory delivery.
type EnvelopeSink interface {
	AppendEnvelope(ctx context.Context, env *models.Envelope) error
}

// AttachmentGate resolves attachment references before a message may be
// broadcast. Implemented by upload.Coordinator.
type AttachmentGate interface {
	Resolve(ref string) error
}

// Options are the routing core tunables.
type Options struct {
	RingTimeout    time.Duration
	SendQueueSize  int
	RoomMaxMembers int
	PersistTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.RingTimeout <= 0 {
		o.RingTimeout = 45 * time.Second
	}
	if o.SendQueueSize <= 0 {
		o.SendQueueSize = 64
	}
	if o.RoomMaxMembers <= 0 {
		o.RoomMaxMembers = 2
	}
	if o.PersistTimeout <= 0 {
		o.PersistTimeout = 5 * time.Second
	}
	return o
}

// Hub routes events between live connections. Room state is partitioned
// per room id so unrelated rooms never contend on one lock.
type Hub struct {
	opts      Options
	logger    zerolog.Logger
	directory Directory
	sink      EnvelopeSink   // optional
	gate      AttachmentGate // optional

	mu       sync.RWMutex
	sessions map[string]*Session // by identity id
	rooms    map[string]*room
}

// New creates a hub. sink and gate may be nil: without a sink history is
// not persisted, without a gate messages carrying attachments are rejected.
func New(directory Directory, sink EnvelopeSink, gate AttachmentGate, opts Options, logger zerolog.Logger) *Hub {
	return &Hub{
		opts:      opts.withDefaults(),
		logger:    logger,
		directory: directory,
		sink:      sink,
		gate:      gate,
		sessions:  make(map[string]*Session),
		rooms:     make(map[string]*room),
	}
}

// Register binds an identity to a live connection under the
// single-session-per-identity policy. The existing session is unaffected
// when a duplicate registration is rejected.
func (h *Hub) Register(identity models.Identity, conn *websocket.Conn) (*Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessions[identity.ID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSession, identity.ID)
	}

	s := &Session{
		ID:       uuid.NewString(),
		Identity: identity,
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, h.opts.SendQueueSize),
		joined:   make(map[string]struct{}),
	}
	h.sessions[identity.ID] = s
	metrics.SessionsLive.Inc()

	h.logger.Info().
		Str("session_id", s.ID).
		Str("identity", identity.ID).
		Str("role", identity.Role).
		Msg("session registered")

	return s, nil
}

// Deregister tears a session down. It is idempotent, and by the time it
// returns the session has been removed from every room it joined, so no
// subsequent broadcast can reach it.
func (h *Hub) Deregister(s *Session) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	joined := make([]string, 0, len(s.joined))
	for id := range s.joined {
		joined = append(joined, id)
	}
	s.joined = make(map[string]struct{})
	s.mu.Unlock()

	// Remove from each room under that room's lock. Broadcast only
	// enqueues while holding a room lock, so after this loop nothing can
	// reach the send channel.
	for _, roomID := range joined {
		if r := h.lookupRoom(roomID); r != nil {
			r.mu.Lock()
			delete(r.subscribers, s)
			r.mu.Unlock()
		}
	}

	h.mu.Lock()
	if current, ok := h.sessions[s.Identity.ID]; ok && current == s {
		delete(h.sessions, s.Identity.ID)
	}
	h.mu.Unlock()

	// Close under s.mu: enqueue checks the closed flag under the same
	// mutex, so no direct reply can slip in between the flag and the close.
	s.mu.Lock()
	close(s.send)
	s.mu.Unlock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
	metrics.SessionsLive.Dec()

	h.logger.Info().
		Str("session_id", s.ID).
		Str("identity", s.Identity.ID).
		Uint64("events_sent", s.Sent()).
		Int("rooms", len(joined)).
		Msg("session deregistered")
}

// Shutdown deregisters every live session.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		h.Deregister(s)
	}
	h.logger.Info().Int("sessions", len(sessions)).Msg("hub shut down")
}

// Route is the single dispatch point for inbound events. Call-control
// kinds go through the signaling controller; chat kinds go to generic
// broadcast after the attachment gate.
func (h *Hub) Route(ctx context.Context, s *Session, ev Event) error {
	var err error
	switch ev.Kind {
	case KindJoin:
		err = h.join(ctx, s, ev.RoomID)
	case KindLeave:
		err = h.leave(s, ev.RoomID)
	case KindMessage:
		err = h.routeMessage(ctx, s, ev)
	case KindCallInvite, KindCallAccept, KindCallDecline, KindCallEnd:
		err = h.routeCall(ctx, s, ev)
	default:
		err = fmt.Errorf("%w: kind %q", ErrBadEvent, ev.Kind)
	}

	if err != nil {
		metrics.EventsRejected.WithLabelValues(ErrorCode(err)).Inc()
		return err
	}
	metrics.EventsRouted.WithLabelValues(ev.Kind).Inc()
	return nil
}

// join admits a session into a room. The participant list is re-verified
// against the directory on every join; the router never caches
// authorization.
func (h *Hub) join(ctx context.Context, s *Session, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("%w: room_id is required", ErrBadEvent)
	}

	participants, err := h.directory.Participants(ctx, roomID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownRoom, roomID)
	}
	authorized := false
	for _, p := range participants {
		if p == s.Identity.ID {
			authorized = true
			break
		}
	}
	if !authorized {
		return fmt.Errorf("%w: %s in room %s", ErrNotAuthorized, s.Identity.ID, roomID)
	}

	r := h.ensureRoom(roomID)
	r.mu.Lock()
	if _, ok := r.subscribers[s]; ok {
		r.mu.Unlock()
		return nil // already joined; idempotent
	}
	if len(r.subscribers) >= h.opts.RoomMaxMembers {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrRoomFull, roomID)
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		r.mu.Unlock()
		return ErrSessionClosed
	}
	r.subscribers[s] = struct{}{}
	s.joined[roomID] = struct{}{}
	s.mu.Unlock()
	r.mu.Unlock()

	s.deliver(Event{RoomID: roomID, Kind: KindJoin, Payload: mustJSON(map[string]string{"status": "ok"})})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.opts.PersistTimeout)
		defer cancel()
		if err := h.directory.TouchRoomActivity(ctx, roomID); err != nil {
			h.logger.Warn().Err(err).Str("room_id", roomID).Msg("room activity update failed")
		}
	}()

	h.logger.Debug().
		Str("room_id", roomID).
		Str("identity", s.Identity.ID).
		Msg("joined room")
	return nil
}

// leave removes a session's subscription without tearing the session down.
func (h *Hub) leave(s *Session, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("%w: room_id is required", ErrBadEvent)
	}
	r := h.lookupRoom(roomID)
	if r == nil {
		return fmt.Errorf("%w: %s", ErrUnknownRoom, roomID)
	}

	r.mu.Lock()
	delete(r.subscribers, s)
	r.mu.Unlock()

	s.mu.Lock()
	delete(s.joined, roomID)
	s.mu.Unlock()
	return nil
}

// routeMessage broadcasts an ordinary chat payload. Messages referencing
// attachments are rejected until every reference has completed its upload;
// the send is rejected rather than queued so the caller retries explicitly.
func (h *Hub) routeMessage(ctx context.Context, s *Session, ev Event) error {
	var payload MessagePayload
	if len(ev.Payload) > 0 {
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return fmt.Errorf("%w: %v", ErrBadEvent, err)
		}
	}
	if payload.Text == "" && len(payload.Attachments) == 0 {
		return fmt.Errorf("%w: empty message", ErrBadEvent)
	}

	for _, ref := range payload.Attachments {
		if h.gate == nil {
			return fmt.Errorf("%w: no upload coordinator", ErrUploadNotReady)
		}
		if err := h.gate.Resolve(ref); err != nil {
			return fmt.Errorf("%w: %s", ErrUploadNotReady, ref)
		}
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
	env := h.broadcastLocked(r, s.Identity.ID, KindMessage, ev.Payload, false)
	r.mu.Unlock()

	h.persist(env)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.opts.PersistTimeout)
		defer cancel()
		if err := h.directory.IncrementMessageCount(ctx, env.RoomID); err != nil {
			h.logger.Warn().Err(err).Str("room_id", env.RoomID).Msg("room activity update failed")
		}
	}()
	return nil
}

// broadcastLocked assigns the next sequence number, builds the immutable
// envelope and fans it out. Sequence assignment happens exactly once, under
// the room's exclusion, at broadcast time. Delivery to each subscriber is
// independent; a subscriber whose queue is full is disconnected rather than
// allowed to stall the room. Callers must hold r.mu.
func (h *Hub) broadcastLocked(r *room, senderID, kind string, payload json.RawMessage, includeSender bool) *models.Envelope {
	env := &models.Envelope{
		ID:       ulid.Make().String(),
		RoomID:   r.id,
		SenderID: senderID,
		Kind:     kind,
		Sequence: r.nextSeq(),
		Payload:  payload,
		SentAt:   time.Now().UnixMilli(),
	}

	data, err := json.Marshal(eventFromEnvelope(env))
	if err != nil {
		h.logger.Error().Err(err).Str("room_id", r.id).Msg("envelope marshal failed")
		return env
	}

	var slow []*Session
	for sub := range r.subscribers {
		if !includeSender && sub.Identity.ID == senderID {
			continue
		}
		if sub.enqueue(data) {
			metrics.BroadcastsDelivered.Inc()
		} else {
			slow = append(slow, sub)
		}
	}
	for _, sub := range slow {
		delete(r.subscribers, sub)
		metrics.SubscribersDropped.Inc()
		h.logger.Warn().
			Str("room_id", r.id).
			Str("identity", sub.Identity.ID).
			Msg("subscriber dropped: outbound queue full")
		go h.dropSubscriber(sub)
	}

	return env
}

// dropSubscriber tears down a subscriber that could not keep up. Closing
// the connection unwinds its read pump, which deregisters the session.
func (h *Hub) dropSubscriber(s *Session) {
	if s.conn != nil {
		_ = s.conn.Close()
		return
	}
	h.Deregister(s)
}

// persist hands the envelope to the sink without blocking the broadcast
// path. Failures are logged as degraded durability.
func (h *Hub) persist(env *models.Envelope) {
	if h.sink == nil || env == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.opts.PersistTimeout)
		defer cancel()
		if err := h.sink.AppendEnvelope(ctx, env); err != nil {
			metrics.PersistFailures.Inc()
			h.logger.Error().Err(err).
				Str("room_id", env.RoomID).
				Uint64("sequence", env.Sequence).
				Msg("envelope persist failed; history is degraded")
			return
		}
		metrics.EnvelopesPersisted.Inc()
	}()
}

// ensureRoom returns the live state for a room id, creating it on first
// use.
func (h *Hub) ensureRoom(roomID string) *room {
	h.mu.RLock()
	r, ok := h.rooms[roomID]
	h.mu.RUnlock()
	if ok {
		return r
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[roomID]; ok {
		return r
	}
	r = newRoom(roomID)
	h.rooms[roomID] = r
	return r
}

func (h *Hub) lookupRoom(roomID string) *room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[roomID]
}

// Subscribers returns the identity ids currently subscribed to a room.
func (h *Hub) Subscribers(roomID string) []string {
	r := h.lookupRoom(roomID)
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.subscribers))
	for s := range r.subscribers {
		ids = append(ids, s.Identity.ID)
	}
	return ids
}
