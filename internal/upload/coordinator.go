// Package upload coordinates the two-phase attachment flow: a client stages
// an upload, pushes bytes to the external media store, and only after the
// store acknowledges may a message referencing the attachment be broadcast.
package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/caretalk/caretalk/internal/metrics"
	"github.com/caretalk/caretalk/internal/models"
)

var (
	ErrUnknownTicket    = errors.New("unknown upload ticket")
	ErrUnknownReference = errors.New("unknown attachment reference")
	ErrNotCompleted     = errors.New("upload has not completed")
	ErrAlreadyCompleted = errors.New("upload already completed")
)

// Coordinator tracks in-flight uploads and answers the router's
// is-this-reference-broadcastable question. Tickets that are never
// completed are expired by a background janitor.
type Coordinator struct {
	logger    zerolog.Logger
	ticketTTL time.Duration

	mu      sync.Mutex
	tickets map[string]*models.UploadTicket // by ticket id
	byRef   map[models.AttachmentReference]*models.UploadTicket
}

// NewCoordinator creates a coordinator. ticketTTL bounds how long a staged
// but never-completed upload is remembered; zero means one hour.
func NewCoordinator(ticketTTL time.Duration, logger zerolog.Logger) *Coordinator {
	if ticketTTL <= 0 {
		ticketTTL = time.Hour
	}
	return &Coordinator{
		logger:    logger,
		ticketTTL: ticketTTL,
		tickets:   make(map[string]*models.UploadTicket),
		byRef:     make(map[models.AttachmentReference]*models.UploadTicket),
	}
}

// Stage registers intent to upload and returns the ticket the client must
// complete before any message may reference the attachment.
func (c *Coordinator) Stage(roomID, uploaderID string, meta models.FileMeta) *models.UploadTicket {
	t := &models.UploadTicket{
		ID:         uuid.NewString(),
		RoomID:     roomID,
		UploaderID: uploaderID,
		Meta:       meta,
		StagedAt:   time.Now(),
	}

	c.mu.Lock()
	c.tickets[t.ID] = t
	c.mu.Unlock()

	metrics.UploadsStaged.Inc()
	c.logger.Debug().
		Str("ticket_id", t.ID).
		Str("room_id", roomID).
		Str("uploader", uploaderID).
		Str("kind", meta.Kind).
		Int64("size", meta.Size).
		Msg("upload staged")
	return t
}

// Complete marks a staged upload as acknowledged by the media store and
// binds its retrievable reference. Completing twice is rejected so a ref
// can never be silently rebound.
func (c *Coordinator) Complete(ticketID string, ref models.AttachmentReference) (*models.UploadTicket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tickets[ticketID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTicket, ticketID)
	}
	if t.Completed {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyCompleted, ticketID)
	}

	t.Completed = true
	t.Ref = ref
	c.byRef[ref] = t

	metrics.UploadsCompleted.Inc()
	c.logger.Debug().
		Str("ticket_id", t.ID).
		Str("room_id", t.RoomID).
		Msg("upload completed")
	return t, nil
}

// Resolve reports whether an attachment reference is broadcastable. This is
// the gate the message router consults before fan-out.
func (c *Coordinator) Resolve(ref string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.byRef[models.AttachmentReference(ref)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownReference, ref)
	}
	if !t.Completed {
		return fmt.Errorf("%w: %s", ErrNotCompleted, ref)
	}
	return nil
}

// Ticket returns a staged ticket by id, or nil when unknown.
func (c *Coordinator) Ticket(ticketID string) *models.UploadTicket {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tickets[ticketID]
}

// Janitor expires stale tickets until ctx is cancelled. Completed tickets
// are retired too once past the TTL; by then the reference has either been
// broadcast (and lives in history) or abandoned.
func (c *Coordinator) Janitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep(time.Now())
		}
	}
}

func (c *Coordinator) sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expired := 0
	for id, t := range c.tickets {
		if now.Sub(t.StagedAt) < c.ticketTTL {
			continue
		}
		delete(c.tickets, id)
		if t.Ref != "" {
			delete(c.byRef, t.Ref)
		}
		expired++
	}
	if expired > 0 {
		c.logger.Debug().Int("expired", expired).Msg("upload tickets expired")
	}
}
