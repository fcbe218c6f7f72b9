package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/caretalk/caretalk/internal/models"
)

// ErrRoomNotFound is returned by Participants for an unknown room id.
var ErrRoomNotFound = errors.New("room not found")

// DataStore defines the interface for persistent storage of rooms and their
// fixed participant pairs. Both PostgresStore and SQLiteStore implement this
// interface; the hub consults it on every join (authorization input is
// re-verified, never cached indefinitely).
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Room operations
	CreateRoom(ctx context.Context, patientID, clinicianID string) (*models.Room, error)
	GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
	Participants(ctx context.Context, roomID string) ([]string, error)
	TouchRoomActivity(ctx context.Context, roomID string) error
	IncrementMessageCount(ctx context.Context, roomID string) error
	CountRooms(ctx context.Context) (int64, error)
}
