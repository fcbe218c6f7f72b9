package hub

import (
	"sync"
	"time"

	"github.com/caretalk/caretalk/internal/models"
)

// room is the exclusively-owned state object for one room id. All
// membership changes, sequence assignment and call transitions for the room
// are linearized under its mutex; rooms proceed independently of each other.
type room struct {
	id string

	mu          sync.Mutex
	subscribers map[*Session]struct{}
	seq         uint64
	call        *models.CallSession
	ringTimer   *time.Timer
}

func newRoom(id string) *room {
	return &room{
		id:          id,
		subscribers: make(map[*Session]struct{}),
	}
}

// nextSeq assigns the next per-room sequence number. This is the
// linearization point for broadcast ordering; callers must hold the room
// lock.
func (r *room) nextSeq() uint64 {
	r.seq++
	return r.seq
}

// stopRingTimer cancels a pending ring timeout, if any. Callers must hold
// the room lock.
func (r *room) stopRingTimer() {
	if r.ringTimer != nil {
		r.ringTimer.Stop()
		r.ringTimer = nil
	}
}

// clearCall stamps the resolution time and returns the room to idle.
// Callers must hold the room lock.
func (r *room) clearCall(now time.Time) {
	if r.call != nil {
		r.call.ResolvedAt = now
		r.call = nil
	}
	r.stopRingTimer()
}
