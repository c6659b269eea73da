// internal/room/lifecycle.go
package room

import (
	"context"
	"time"

	"github.com/jason-s-yu/scribble/internal/models"
)

// armGraceTimer starts the no-join countdown for a fresh room. Assumes room.mu is held.
// Each room is armed exactly once, at creation.
func (reg *Registry) armGraceTimer(room *Room) {
	room.graceTimer = time.AfterFunc(reg.opts.GracePeriod, func() {
		reg.expire(room)
	})
}

// expire closes a room nobody joined. A join or delete that got the lock first
// has already left AwaitingFirstMember, which turns this into a no-op.
func (reg *Registry) expire(room *Room) {
	room.mu.Lock()
	if room.state != AwaitingFirstMember || !room.transitionLocked(Closed) {
		room.mu.Unlock()
		reg.roomLog(room.ID).Debug("grace timer fired after room left awaiting state, ignoring")
		return
	}
	room.version++
	room.mu.Unlock()

	reg.unregister(room)
	reg.roomLog(room.ID).WithField("grace_period", reg.opts.GracePeriod).Info("nobody joined in time, room expired")
	reg.publish(context.Background(), models.RoomEvent{RoomID: room.ID, Type: models.RoomExpired})
}
