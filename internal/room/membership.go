// internal/room/membership.go
package room

import (
	"context"
	"encoding/json"
	"slices"

	"github.com/google/uuid"
	"github.com/jason-s-yu/scribble/internal/models"
	"github.com/sirupsen/logrus"
)

// Join admits playerID into the room. The occupancy check and the admission
// happen under the room lock, so concurrent joins can never overshoot Capacity.
//
// Joining a room the player already belongs to admits nobody new. If conn is a
// different live connection it replaces the old handle, and the old connection
// is asked to close.
func (reg *Registry) Join(ctx context.Context, roomID, playerID uuid.UUID, conn *Connection) error {
	room, ok := reg.lookup(roomID)
	if !ok {
		return ErrRoomNotFound
	}

	room.mu.Lock()
	if room.state == Closed {
		room.mu.Unlock()
		return ErrRoomNotFound
	}

	if i := room.indexOfLocked(playerID); i >= 0 {
		superseded := room.members[i].Conn
		if conn == nil || superseded == conn {
			room.mu.Unlock()
			return nil
		}
		room.members[i].Conn = conn
		room.mu.Unlock()

		if superseded != nil {
			superseded.Close(ReasonSuperseded)
		}
		reg.memberLog(roomID, playerID).Info("player re-joined, connection replaced")
		// the new handle has not seen the member list yet
		reg.presence.Notify(ctx, roomID)
		return nil
	}

	if len(room.members) >= room.Capacity {
		room.mu.Unlock()
		return ErrRoomFull
	}

	room.members = append(room.members, Member{PlayerID: playerID, Conn: conn})
	room.version++
	first := room.transitionLocked(Active)
	count := len(room.members)
	room.mu.Unlock()

	reg.memberLog(roomID, playerID).WithFields(logrus.Fields{
		"members": count,
		"first":   first,
	}).Info("player joined")
	reg.presence.Notify(ctx, roomID)
	reg.publish(ctx, models.RoomEvent{RoomID: roomID, PlayerID: playerID, Type: models.RoomJoined, Members: count})
	return nil
}

// Leave removes playerID from the room and closes its connection, if any.
// Leaving a room one is not in is a no-op. The last member out closes the room.
func (reg *Registry) Leave(ctx context.Context, roomID, playerID uuid.UUID) error {
	removed, err := reg.remove(ctx, roomID, playerID, nil)
	if removed != nil {
		removed.Close(ReasonLeft)
	}
	return err
}

// Disconnect removes conn's player only while conn is still that player's
// current handle, so a superseded socket going away cannot evict its replacement.
func (reg *Registry) Disconnect(ctx context.Context, conn *Connection) {
	if _, err := reg.remove(ctx, conn.RoomID, conn.PlayerID, conn); err != nil {
		reg.memberLog(conn.RoomID, conn.PlayerID).WithError(err).Debug("disconnect after room was gone")
	}
}

// remove drops the member (matching handle when match is non-nil) and either
// re-broadcasts presence or closes the now empty room.
func (reg *Registry) remove(ctx context.Context, roomID, playerID uuid.UUID, match *Connection) (*Connection, error) {
	room, ok := reg.lookup(roomID)
	if !ok {
		return nil, ErrRoomNotFound
	}

	room.mu.Lock()
	i := room.indexOfLocked(playerID)
	if i < 0 || (match != nil && room.members[i].Conn != match) {
		room.mu.Unlock()
		return nil, nil
	}
	removed := room.members[i].Conn
	room.members = slices.Delete(room.members, i, i+1)
	room.version++
	count := len(room.members)
	closed := count == 0 && room.transitionLocked(Closed)
	room.mu.Unlock()

	reg.memberLog(roomID, playerID).WithField("members", count).Info("player left")
	left := models.RoomEvent{RoomID: roomID, PlayerID: playerID, Type: models.RoomLeft, Members: count}

	if closed {
		reg.unregister(room)
		reg.roomLog(roomID).Info("last member left, room closed")
		reg.publish(ctx, left)
		reg.publish(ctx, models.RoomEvent{RoomID: roomID, Type: models.RoomClosed})
		return removed, nil
	}
	// presence goes out before the archive event so a slow sink never delays it
	reg.presence.Notify(ctx, roomID)
	reg.publish(ctx, left)
	return removed, nil
}

// ListMembers returns member IDs in join order.
func (reg *Registry) ListMembers(roomID uuid.UUID) ([]uuid.UUID, error) {
	room, ok := reg.lookup(roomID)
	if !ok {
		return nil, ErrRoomNotFound
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.state == Closed {
		return nil, ErrRoomNotFound
	}
	return room.playerIDsLocked(), nil
}

// Relay forwards an opaque payload from conn to every connection in its room,
// tagged with the sender's display name. Only the sender's current handle may relay.
func (reg *Registry) Relay(ctx context.Context, conn *Connection, payload json.RawMessage) error {
	room, ok := reg.lookup(conn.RoomID)
	if !ok {
		return ErrRoomNotFound
	}

	room.mu.Lock()
	i := room.indexOfLocked(conn.PlayerID)
	member := i >= 0 && room.members[i].Conn == conn
	room.mu.Unlock()
	if !member {
		return ErrNotMember
	}

	msg := map[string]interface{}{
		"type":    "send",
		"payload": payload,
	}
	if name, ok := reg.presence.displayName(ctx, conn.PlayerID); ok {
		msg["playerName"] = name
	}

	room.mu.Lock()
	if room.state == Closed {
		room.mu.Unlock()
		return ErrRoomNotFound
	}
	dropped := room.broadcastLocked(msg)
	room.mu.Unlock()

	reg.logDropped(conn.RoomID, "send", dropped)
	return nil
}

func (reg *Registry) logDropped(roomID uuid.UUID, msgType string, dropped []uuid.UUID) {
	for _, pid := range dropped {
		reg.memberLog(roomID, pid).WithField("type", msgType).Warn("outbound buffer full, message dropped")
	}
}

func (reg *Registry) memberLog(roomID, playerID uuid.UUID) *logrus.Entry {
	return reg.log.WithFields(logrus.Fields{
		"room_id":   roomID,
		"player_id": playerID,
	})
}
