// internal/room/connection.go
package room

import (
	"sync"

	"github.com/google/uuid"
)

// CloseReason tells the transport why the registry asked a connection to close.
type CloseReason int

const (
	ReasonLeft CloseReason = iota + 1
	ReasonSuperseded
	ReasonRoomClosed
)

func (r CloseReason) String() string {
	switch r {
	case ReasonLeft:
		return "left the room"
	case ReasonSuperseded:
		return "replaced by a newer connection"
	case ReasonRoomClosed:
		return "room closed"
	}
	return "closed"
}

// Connection is the registry's handle on one live socket. The transport drains
// OutChan and watches Closing; the registry only ever enqueues and requests close.
type Connection struct {
	ID       uuid.UUID
	RoomID   uuid.UUID
	PlayerID uuid.UUID
	OutChan  chan map[string]interface{}

	closing   chan struct{}
	closeOnce sync.Once
	reason    CloseReason
}

// NewConnection builds a handle with an outbound buffer of the given size.
func NewConnection(roomID, playerID uuid.UUID, buffer int) *Connection {
	return &Connection{
		ID:       uuid.New(),
		RoomID:   roomID,
		PlayerID: playerID,
		OutChan:  make(chan map[string]interface{}, buffer),
		closing:  make(chan struct{}),
	}
}

// Write enqueues msg without blocking. It returns false if the buffer is full
// and the message was dropped.
func (c *Connection) Write(msg map[string]interface{}) bool {
	select {
	case c.OutChan <- msg:
		return true
	default:
		return false
	}
}

// WriteError enqueues an error event for this connection only.
func (c *Connection) WriteError(msg string) bool {
	return c.Write(map[string]interface{}{
		"type":    "error",
		"message": msg,
	})
}

// Close asks the transport to flush and close the socket. Only the first call counts.
func (c *Connection) Close(reason CloseReason) {
	c.closeOnce.Do(func() {
		c.reason = reason
		close(c.closing)
	})
}

// Closing is closed once Close has been called.
func (c *Connection) Closing() <-chan struct{} {
	return c.closing
}

// Reason is only meaningful after Closing has fired.
func (c *Connection) Reason() CloseReason {
	return c.reason
}
