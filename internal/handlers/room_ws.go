// internal/handlers/room_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/jason-s-yu/scribble/internal/middleware"
	"github.com/jason-s-yu/scribble/internal/room"
	"github.com/sirupsen/logrus"
)

const roomSubprotocol = "room"

// inbound is a client frame on the room socket.
type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RoomWSHandler runs one connection session: GET /ws?token=<roomToken>.
//
// The token is verified before the session exists. A failed join is reported
// on the socket, which then stays open outside the room's broadcast group.
func (s *Server) RoomWSHandler(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{roomSubprotocol},
		OriginPatterns: s.OriginPatterns,
	})
	if err != nil {
		s.Log.Warnf("websocket accept error: %v", err)
		return
	}
	defer c.CloseNow()

	if c.Subprotocol() != roomSubprotocol {
		c.Close(BadSubprotocolError, "client must speak the room subprotocol")
		return
	}

	roomID, playerID, err := s.Issuer.VerifyRoomToken(r.URL.Query().Get("token"))
	if err != nil {
		c.Close(InvalidAuthTokenError, "invalid or expired room token")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn := room.NewConnection(roomID, playerID, s.outboundBuffer())
	middleware.LogWebSocketConnect(s.Log, r.RemoteAddr, conn.ID, roomID, playerID)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writePump(ctx, c, conn)
	}()

	if err := s.Rooms.Join(ctx, roomID, playerID, conn); err != nil {
		s.sessionLog(conn).WithError(err).Info("join rejected")
		conn.WriteError(err.Error())
	}

	readErr := s.readPump(ctx, c, conn)

	s.Rooms.Disconnect(ctx, conn)
	// lets the writer flush whatever is queued before the socket goes away
	conn.Close(room.ReasonLeft)
	<-writerDone

	middleware.LogWebSocketDisconnect(s.Log, r.RemoteAddr, conn.ID, roomID, playerID, readErr)
}

// readPump handles client frames until the socket closes or the client leaves.
func (s *Server) readPump(ctx context.Context, c *websocket.Conn, conn *room.Connection) error {
	log := s.sessionLog(conn)
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		if typ != websocket.MessageText {
			conn.WriteError("only text frames are supported")
			continue
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			log.WithError(err).Debug("invalid json from client")
			conn.WriteError("Invalid JSON format")
			continue
		}

		switch msg.Type {
		case "sendMessage":
			payload := msg.Payload
			if len(payload) == 0 {
				payload = json.RawMessage("null")
			}
			if err := s.Rooms.Relay(ctx, conn, payload); err != nil {
				conn.WriteError(err.Error())
			}
		case "leave":
			s.Rooms.Disconnect(ctx, conn)
			conn.Close(room.ReasonLeft)
			return nil
		default:
			log.WithField("type", msg.Type).Debug("unknown message type")
			conn.WriteError(fmt.Sprintf("Unknown message type: %s", msg.Type))
		}
	}
}

// writePump drains the connection's queue onto the socket and keeps it alive
// with pings. Once the registry closes the connection it flushes what is left
// and closes the socket, which also ends readPump.
func (s *Server) writePump(ctx context.Context, c *websocket.Conn, conn *room.Connection) {
	ticker := time.NewTicker(s.pingInterval())
	defer ticker.Stop()
	log := s.sessionLog(conn)

	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Closing():
			if err := s.flush(ctx, c, conn); err != nil {
				c.CloseNow()
				return
			}
			code, reason := closeStatus(conn.Reason())
			c.Close(code, reason)
			return
		case msg := <-conn.OutChan:
			if err := s.write(ctx, c, msg); err != nil {
				log.WithError(err).Warn("failed to write to websocket, dropping connection")
				c.CloseNow()
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 3*s.writeTimeout())
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				log.WithError(err).Warn("ping failed, assuming disconnect")
				c.CloseNow()
				return
			}
		}
	}
}

// flush writes whatever is still queued without waiting for more.
func (s *Server) flush(ctx context.Context, c *websocket.Conn, conn *room.Connection) error {
	for {
		select {
		case msg := <-conn.OutChan:
			if err := s.write(ctx, c, msg); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (s *Server) write(ctx context.Context, c *websocket.Conn, msg map[string]interface{}) error {
	writeCtx, cancel := context.WithTimeout(ctx, s.writeTimeout())
	defer cancel()
	return wsjson.Write(writeCtx, c, msg)
}

func (s *Server) sessionLog(conn *room.Connection) *logrus.Entry {
	return s.Log.WithFields(logrus.Fields{
		"conn_id":   conn.ID,
		"room_id":   conn.RoomID,
		"player_id": conn.PlayerID,
	})
}
