// internal/room/registry.go
package room

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/scribble/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	DefaultCapacity    = 5
	DefaultRounds      = 5
	DefaultGracePeriod = 10 * time.Second
)

// CredentialHasher hashes room passwords and verifies them on join.
type CredentialHasher interface {
	Hash(password string) (string, error)
	Compare(password, encodedHash string) (bool, error)
}

// NameResolver maps player IDs to display names. Partial results are allowed;
// missing IDs are simply absent from the map.
type NameResolver interface {
	ResolveDisplayNames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)
}

// EventSink receives room lifecycle events. Publish errors are logged and dropped.
type EventSink interface {
	Publish(ctx context.Context, ev models.RoomEvent) error
}

// Options configures a Registry. Hasher and Names are required.
type Options struct {
	GracePeriod     time.Duration
	DefaultCapacity int
	DefaultRounds   int

	Hasher CredentialHasher
	Names  NameResolver
	Sink   EventSink
	Logger *logrus.Logger
}

// CreateParams describes a room to create. Zero Capacity or Rounds take the defaults.
type CreateParams struct {
	Name      string
	Capacity  int
	Rounds    int
	IsPrivate bool
	Password  string
	Owner     uuid.UUID
}

// Registry is the process-wide room directory and membership table.
// mu guards the map only; each Room serializes its own membership changes,
// so operations on different rooms never contend beyond the map lookup.
type Registry struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]*Room

	opts     Options
	presence *Presence
	log      *logrus.Logger
}

// NewRegistry returns an empty Registry.
func NewRegistry(opts Options) *Registry {
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.DefaultCapacity <= 0 {
		opts.DefaultCapacity = DefaultCapacity
	}
	if opts.DefaultRounds <= 0 {
		opts.DefaultRounds = DefaultRounds
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	reg := &Registry{
		rooms: make(map[uuid.UUID]*Room),
		opts:  opts,
		log:   opts.Logger,
	}
	reg.presence = newPresence(reg, opts.Names, opts.Logger)
	return reg
}

// Presence returns the broadcaster bound to this registry.
func (reg *Registry) Presence() *Presence {
	return reg.presence
}

// CreateRoom registers a new room in AwaitingFirstMember and arms its grace timer.
// The room is visible to GetRoom and ListRooms as soon as this returns.
func (reg *Registry) CreateRoom(ctx context.Context, p CreateParams) (Record, error) {
	if p.Name == "" || p.Capacity < 0 || p.Rounds < 0 {
		return Record{}, ErrInvalidRoom
	}
	if p.Capacity == 0 {
		p.Capacity = reg.opts.DefaultCapacity
	}
	if p.Rounds == 0 {
		p.Rounds = reg.opts.DefaultRounds
	}

	hash, err := reg.opts.Hasher.Hash(p.Password)
	if err != nil {
		return Record{}, err
	}

	room := &Room{
		ID:           uuid.New(),
		Name:         p.Name,
		Capacity:     p.Capacity,
		Rounds:       p.Rounds,
		IsPrivate:    p.IsPrivate,
		PasswordHash: hash,
		Owner:        p.Owner,
		CreatedAt:    time.Now().UTC(),
		state:        AwaitingFirstMember,
	}

	reg.mu.Lock()
	reg.rooms[room.ID] = room
	reg.mu.Unlock()

	// armed only once the room is in the map, so expiry can always unregister it
	room.mu.Lock()
	if room.state == AwaitingFirstMember {
		reg.armGraceTimer(room)
	}
	rec := room.recordLocked()
	room.mu.Unlock()

	reg.roomLog(room.ID).WithFields(logrus.Fields{
		"capacity": room.Capacity,
		"private":  room.IsPrivate,
		"owner":    room.Owner,
	}).Info("room created")
	reg.publish(ctx, models.RoomEvent{RoomID: room.ID, PlayerID: room.Owner, Type: models.RoomCreated})

	return rec, nil
}

// GetRoom returns the redacted record for id, or ErrRoomNotFound.
func (reg *Registry) GetRoom(id uuid.UUID) (Record, error) {
	room, ok := reg.lookup(id)
	if !ok {
		return Record{}, ErrRoomNotFound
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.state == Closed {
		return Record{}, ErrRoomNotFound
	}
	return room.recordLocked(), nil
}

// ListRooms returns a snapshot of every open room ordered by creation time.
func (reg *Registry) ListRooms() []Record {
	reg.mu.RLock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		rooms = append(rooms, room)
	}
	reg.mu.RUnlock()

	out := make([]Record, 0, len(rooms))
	for _, room := range rooms {
		room.mu.Lock()
		if room.state != Closed {
			out = append(out, room.recordLocked())
		}
		room.mu.Unlock()
	}
	slices.SortFunc(out, func(a, b Record) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
	return out
}

// Authorize checks the room password. Only private rooms are checked; a public
// room's password is accepted unverified.
func (reg *Registry) Authorize(id uuid.UUID, password string) error {
	room, ok := reg.lookup(id)
	if !ok {
		return ErrRoomNotFound
	}
	room.mu.Lock()
	closed, private, hash := room.state == Closed, room.IsPrivate, room.PasswordHash
	room.mu.Unlock()
	if closed {
		return ErrRoomNotFound
	}
	if !private {
		return nil
	}
	match, err := reg.opts.Hasher.Compare(password, hash)
	if err != nil || !match {
		return ErrInvalidCredential
	}
	return nil
}

// DeleteRoom closes and removes a room, telling every member it is gone.
// Deleting a missing or already closed room is a no-op.
func (reg *Registry) DeleteRoom(ctx context.Context, id uuid.UUID) {
	reg.mu.Lock()
	room, ok := reg.rooms[id]
	delete(reg.rooms, id)
	reg.mu.Unlock()
	if !ok {
		return
	}

	room.mu.Lock()
	if !room.transitionLocked(Closed) {
		room.mu.Unlock()
		return
	}
	room.broadcastLocked(map[string]interface{}{
		"type":    "room_closed",
		"room_id": id.String(),
	})
	evicted := room.members
	room.members = nil
	room.version++
	room.mu.Unlock()

	for _, m := range evicted {
		if m.Conn != nil {
			m.Conn.Close(ReasonRoomClosed)
		}
	}
	reg.roomLog(id).WithField("evicted", len(evicted)).Info("room deleted")
	reg.publish(ctx, models.RoomEvent{RoomID: id, Type: models.RoomDeleted})
}

// lookup finds a registered room. Callers must still check its state under room.mu.
func (reg *Registry) lookup(id uuid.UUID) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	room, ok := reg.rooms[id]
	return room, ok
}

// unregister drops room from the map if it is still the registered instance.
func (reg *Registry) unregister(room *Room) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if current, ok := reg.rooms[room.ID]; ok && current == room {
		delete(reg.rooms, room.ID)
	}
}

func (reg *Registry) publish(ctx context.Context, ev models.RoomEvent) {
	if reg.opts.Sink == nil {
		return
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := reg.opts.Sink.Publish(ctx, ev); err != nil {
		reg.roomLog(ev.RoomID).WithError(err).WithField("event", ev.Type).Warn("failed to publish room event")
	}
}

func (reg *Registry) roomLog(id uuid.UUID) *logrus.Entry {
	return reg.log.WithField("room_id", id)
}
