// internal/handlers/ws_codes.go
package handlers

import (
	"github.com/coder/websocket"
	"github.com/jason-s-yu/scribble/internal/room"
)

// Custom WebSocket close codes used by the room session.
const (
	BadSubprotocolError   = 3000 // Client connected with an unsupported subprotocol.
	InvalidAuthTokenError = 3001 // Room token was missing, invalid or expired.
	SupersededError       = 3002 // The same player connected to the room again elsewhere.
	RoomClosedError       = 3003 // The owner deleted the room.
)

// closeStatus maps the registry's close request to a close frame.
func closeStatus(reason room.CloseReason) (websocket.StatusCode, string) {
	switch reason {
	case room.ReasonSuperseded:
		return SupersededError, reason.String()
	case room.ReasonRoomClosed:
		return RoomClosedError, reason.String()
	}
	return websocket.StatusNormalClosure, reason.String()
}
