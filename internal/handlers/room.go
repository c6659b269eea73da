// internal/handlers/room.go
package handlers

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/jason-s-yu/scribble/internal/middleware"
	"github.com/jason-s-yu/scribble/internal/respond"
	"github.com/jason-s-yu/scribble/internal/room"
)

type createRoomRequest struct {
	Name       string `json:"roomName" validate:"required"`
	MaxPlayers *int   `json:"maxPlayers,omitempty" validate:"omitempty,gt=0"`
	Rounds     *int   `json:"rounds,omitempty" validate:"omitempty,gt=0"`
	IsPrivate  bool   `json:"isPrivate"`
	Password   string `json:"password" validate:"min=4,max=10"`
}

type joinRoomRequest struct {
	RoomID   uuid.UUID `json:"roomId"`
	Password string    `json:"password"`
}

type roomIDRequest struct {
	RoomID uuid.UUID `json:"roomId"`
}

type roomTokenResponse struct {
	RoomToken string    `json:"roomToken"`
	RoomID    uuid.UUID `json:"roomId"`
}

// ListRoomsHandler returns every open room. Password hashes are never included.
func (s *Server) ListRoomsHandler(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]interface{}{
		"rooms": s.Rooms.ListRooms(),
	})
}

// CreateRoomHandler registers a room owned by the caller and hands back a room
// token so the creator can connect straight away.
func (s *Server) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	playerID, _ := middleware.PlayerIDFromContext(r.Context())

	var req createRoomRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if msg := s.validateRequest(req); msg != "" {
		respond.Error(w, http.StatusBadRequest, msg)
		return
	}

	params := room.CreateParams{
		Name:      req.Name,
		IsPrivate: req.IsPrivate,
		Password:  req.Password,
		Owner:     playerID,
	}
	if req.MaxPlayers != nil {
		params.Capacity = *req.MaxPlayers
	}
	if req.Rounds != nil {
		params.Rounds = *req.Rounds
	}

	rec, err := s.Rooms.CreateRoom(r.Context(), params)
	if err != nil {
		if errors.Is(err, room.ErrInvalidRoom) {
			respond.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		s.Log.WithError(err).Error("failed to create room")
		respond.Error(w, http.StatusInternalServerError, "could not create room")
		return
	}

	token, err := s.Issuer.CreateRoomToken(rec.ID, playerID)
	if err != nil {
		s.Log.WithError(err).WithField("room_id", rec.ID).Error("failed to sign room token")
		respond.Error(w, http.StatusInternalServerError, "could not create token")
		return
	}
	respond.JSON(w, http.StatusCreated, roomTokenResponse{RoomToken: token, RoomID: rec.ID})
}

// JoinRoomHandler checks the password and occupancy and issues a room token.
// The occupancy check is advisory: the socket join is what admits the player.
func (s *Server) JoinRoomHandler(w http.ResponseWriter, r *http.Request) {
	playerID, _ := middleware.PlayerIDFromContext(r.Context())

	var req joinRoomRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.Rooms.Authorize(req.RoomID, req.Password); err != nil {
		writeRoomError(w, err)
		return
	}

	rec, err := s.Rooms.GetRoom(req.RoomID)
	if err != nil {
		writeRoomError(w, err)
		return
	}
	if rec.Players >= rec.Capacity {
		members, err := s.Rooms.ListMembers(req.RoomID)
		if err != nil {
			writeRoomError(w, err)
			return
		}
		if !slices.Contains(members, playerID) {
			writeRoomError(w, room.ErrRoomFull)
			return
		}
	}

	token, err := s.Issuer.CreateRoomToken(req.RoomID, playerID)
	if err != nil {
		s.Log.WithError(err).WithField("room_id", req.RoomID).Error("failed to sign room token")
		respond.Error(w, http.StatusInternalServerError, "could not create token")
		return
	}
	respond.JSON(w, http.StatusOK, roomTokenResponse{RoomToken: token, RoomID: req.RoomID})
}

// ExitRoomHandler removes the caller from a room and closes its session there.
func (s *Server) ExitRoomHandler(w http.ResponseWriter, r *http.Request) {
	playerID, _ := middleware.PlayerIDFromContext(r.Context())

	var req roomIDRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.Rooms.Leave(r.Context(), req.RoomID, playerID); err != nil {
		writeRoomError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, nil)
}

// DeleteRoomHandler lets the owner close a room for everyone in it.
func (s *Server) DeleteRoomHandler(w http.ResponseWriter, r *http.Request) {
	playerID, _ := middleware.PlayerIDFromContext(r.Context())

	var req roomIDRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := s.Rooms.GetRoom(req.RoomID)
	if err != nil {
		writeRoomError(w, err)
		return
	}
	if rec.Owner != playerID {
		writeRoomError(w, room.ErrNotOwner)
		return
	}
	s.Rooms.DeleteRoom(r.Context(), req.RoomID)
	respond.JSON(w, http.StatusOK, nil)
}

func writeRoomError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		respond.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, room.ErrInvalidCredential), errors.Is(err, room.ErrNotOwner):
		respond.Error(w, http.StatusForbidden, err.Error())
	case errors.Is(err, room.ErrRoomFull):
		respond.Error(w, http.StatusConflict, err.Error())
	default:
		respond.Error(w, http.StatusInternalServerError, "internal error")
	}
}
