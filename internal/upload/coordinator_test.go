package upload

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caretalk/caretalk/internal/models"
)

func testMeta() models.FileMeta {
	return models.FileMeta{
		Filename:    "scan.png",
		ContentType: "image/png",
		Kind:        "image",
		Size:        2048,
	}
}

func TestStageCompleteResolve(t *testing.T) {
	c := NewCoordinator(time.Hour, zerolog.Nop())

	ticket := c.Stage("room-1", "patient-1", testMeta())
	require.NotEmpty(t, ticket.ID)
	assert.False(t, ticket.Completed)

	// Staged but not completed: not broadcastable yet.
	err := c.Resolve("https://media.example/abc")
	require.ErrorIs(t, err, ErrUnknownReference)

	done, err := c.Complete(ticket.ID, "https://media.example/abc")
	require.NoError(t, err)
	assert.True(t, done.Completed)

	require.NoError(t, c.Resolve("https://media.example/abc"))
}

func TestCompleteUnknownTicket(t *testing.T) {
	c := NewCoordinator(time.Hour, zerolog.Nop())

	_, err := c.Complete("nope", "https://media.example/abc")
	require.ErrorIs(t, err, ErrUnknownTicket)
}

func TestCompleteTwiceRejected(t *testing.T) {
	c := NewCoordinator(time.Hour, zerolog.Nop())

	ticket := c.Stage("room-1", "patient-1", testMeta())
	_, err := c.Complete(ticket.ID, "https://media.example/abc")
	require.NoError(t, err)

	_, err = c.Complete(ticket.ID, "https://media.example/other")
	require.ErrorIs(t, err, ErrAlreadyCompleted)

	// The original binding survives the rejected rebind.
	require.NoError(t, c.Resolve("https://media.example/abc"))
	require.Error(t, c.Resolve("https://media.example/other"))
}

func TestSweepExpiresStaleTickets(t *testing.T) {
	c := NewCoordinator(10*time.Millisecond, zerolog.Nop())

	abandoned := c.Stage("room-1", "patient-1", testMeta())
	completed := c.Stage("room-1", "patient-1", testMeta())
	_, err := c.Complete(completed.ID, "https://media.example/done")
	require.NoError(t, err)

	c.sweep(time.Now().Add(time.Minute))

	assert.Nil(t, c.Ticket(abandoned.ID))
	assert.Nil(t, c.Ticket(completed.ID))
	require.ErrorIs(t, c.Resolve("https://media.example/done"), ErrUnknownReference)
}

func TestSweepKeepsFreshTickets(t *testing.T) {
	c := NewCoordinator(time.Hour, zerolog.Nop())

	ticket := c.Stage("room-1", "patient-1", testMeta())
	c.sweep(time.Now())

	assert.NotNil(t, c.Ticket(ticket.ID))
}
