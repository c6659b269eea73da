package models

import "github.com/google/uuid"

// RoomEventType names a transition in a room's lifetime.
type RoomEventType string

const (
	RoomCreated RoomEventType = "created"
	RoomJoined  RoomEventType = "joined"
	RoomLeft    RoomEventType = "left"
	RoomExpired RoomEventType = "expired" // grace period elapsed with nobody joining
	RoomClosed  RoomEventType = "closed"  // last member left
	RoomDeleted RoomEventType = "deleted" // removed explicitly by its owner
)

// RoomEvent is the record pushed onto the event queue and archived by cmd/archiver.
// PlayerID is uuid.Nil for events that are not tied to a single player.
type RoomEvent struct {
	RoomID    uuid.UUID     `json:"room_id"`
	PlayerID  uuid.UUID     `json:"player_id"`
	Type      RoomEventType `json:"type"`
	Members   int           `json:"members"`
	Timestamp int64         `json:"timestamp"` // epoch millis
}
