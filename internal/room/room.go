// internal/room/room.go
package room

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is a room's position in its lifecycle. Closed is terminal.
type State int

const (
	AwaitingFirstMember State = iota
	Active
	Closed
)

func (s State) String() string {
	switch s {
	case AwaitingFirstMember:
		return "awaiting_first_member"
	case Active:
		return "active"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Member pairs an admitted player with the connection that joined on its behalf.
// Conn may be nil for members admitted without a live socket (tests, HTTP tooling).
type Member struct {
	PlayerID uuid.UUID
	Conn     *Connection
}

// Room owns a room's metadata, its ordered member list and its lifecycle state.
// Everything below mu is guarded by it; the exported fields are immutable after creation.
type Room struct {
	ID           uuid.UUID
	Name         string
	Capacity     int
	Rounds       int
	IsPrivate    bool
	PasswordHash string
	Owner        uuid.UUID
	CreatedAt    time.Time

	mu         sync.Mutex
	members    []Member
	state      State
	graceTimer *time.Timer
	// version increases on every membership change; presence broadcasts
	// carry the version they were built from and are dropped once stale.
	version uint64
}

// Record is the redacted view of a room handed out of the package.
// The password hash never leaves the Room.
type Record struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"roomName"`
	Capacity  int       `json:"maxPlayers"`
	Rounds    int       `json:"rounds"`
	IsPrivate bool      `json:"isPrivate"`
	Owner     uuid.UUID `json:"owner"`
	Players   int       `json:"players"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"createdAt"`
}

// recordLocked snapshots the room. Assumes mu is held.
func (r *Room) recordLocked() Record {
	return Record{
		ID:        r.ID,
		Name:      r.Name,
		Capacity:  r.Capacity,
		Rounds:    r.Rounds,
		IsPrivate: r.IsPrivate,
		Owner:     r.Owner,
		Players:   len(r.members),
		State:     r.state.String(),
		CreatedAt: r.CreatedAt,
	}
}

// transitionLocked moves the room along AwaitingFirstMember -> Active -> Closed
// (or AwaitingFirstMember -> Closed) and reports whether the move was legal.
// Assumes mu is held.
func (r *Room) transitionLocked(to State) bool {
	switch {
	case r.state == AwaitingFirstMember && (to == Active || to == Closed):
	case r.state == Active && to == Closed:
	default:
		return false
	}
	r.state = to
	if r.graceTimer != nil {
		r.graceTimer.Stop()
		r.graceTimer = nil
	}
	return true
}

func (r *Room) indexOfLocked(playerID uuid.UUID) int {
	for i, m := range r.members {
		if m.PlayerID == playerID {
			return i
		}
	}
	return -1
}

func (r *Room) playerIDsLocked() []uuid.UUID {
	ids := make([]uuid.UUID, len(r.members))
	for i, m := range r.members {
		ids[i] = m.PlayerID
	}
	return ids
}

// broadcastLocked pushes msg onto every live member connection and returns the
// players whose buffers were full. Assumes mu is held; Write never blocks.
func (r *Room) broadcastLocked(msg map[string]interface{}) []uuid.UUID {
	var dropped []uuid.UUID
	for _, m := range r.members {
		if m.Conn == nil {
			continue
		}
		if !m.Conn.Write(msg) {
			dropped = append(dropped, m.PlayerID)
		}
	}
	return dropped
}
