// internal/room/presence.go
package room

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const resolveTimeout = 3 * time.Second

// Presence pushes a room's resolved member list to every connection in it.
type Presence struct {
	reg   *Registry
	names NameResolver
	log   *logrus.Logger
}

func newPresence(reg *Registry, names NameResolver, logger *logrus.Logger) *Presence {
	return &Presence{reg: reg, names: names, log: logger}
}

// Notify broadcasts the current member list of roomID as a "players" event.
//
// Names are resolved outside the room lock. If membership changed while they
// were being resolved, this broadcast is dropped: the change that moved the
// version on triggers its own Notify with fresher content. Delivery itself
// happens under the room lock, so every recipient gets the same snapshot and
// the recipients are exactly the members that snapshot describes.
func (p *Presence) Notify(ctx context.Context, roomID uuid.UUID) {
	room, ok := p.reg.lookup(roomID)
	if !ok {
		return
	}

	room.mu.Lock()
	if room.state == Closed {
		room.mu.Unlock()
		return
	}
	version := room.version
	ids := room.playerIDsLocked()
	room.mu.Unlock()

	names := p.resolve(ctx, roomID, ids)

	room.mu.Lock()
	if room.state == Closed || room.version != version {
		room.mu.Unlock()
		p.log.WithField("room_id", roomID).Debug("presence snapshot superseded before delivery")
		return
	}
	dropped := room.broadcastLocked(map[string]interface{}{
		"type":    "players",
		"players": names,
	})
	room.mu.Unlock()

	p.reg.logDropped(roomID, "players", dropped)
}

// resolve maps ids to names in join order. Unresolved players are dropped
// from the list instead of failing the whole broadcast.
func (p *Presence) resolve(ctx context.Context, roomID uuid.UUID, ids []uuid.UUID) []string {
	names := make([]string, 0, len(ids))
	if len(ids) == 0 {
		return names
	}
	found := p.lookupNames(ctx, ids)
	for _, id := range ids {
		name, ok := found[id]
		if !ok || name == "" {
			p.log.WithFields(logrus.Fields{
				"room_id":   roomID,
				"player_id": id,
			}).Warn("display name unresolved, omitting from player list")
			continue
		}
		names = append(names, name)
	}
	return names
}

func (p *Presence) displayName(ctx context.Context, id uuid.UUID) (string, bool) {
	name, ok := p.lookupNames(ctx, []uuid.UUID{id})[id]
	return name, ok && name != ""
}

func (p *Presence) lookupNames(ctx context.Context, ids []uuid.UUID) map[uuid.UUID]string {
	if p.names == nil {
		return nil
	}
	// sessions call in from handlers whose request context may already be done
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resolveTimeout)
	defer cancel()

	found, err := p.names.ResolveDisplayNames(ctx, ids)
	if err != nil {
		p.log.WithError(err).WithField("players", len(ids)).Warn("display name lookup failed, using partial result")
	}
	return found
}
