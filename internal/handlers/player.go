// internal/handlers/player.go
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/jason-s-yu/scribble/internal/database"
	"github.com/jason-s-yu/scribble/internal/middleware"
	"github.com/jason-s-yu/scribble/internal/respond"
	"github.com/jason-s-yu/scribble/internal/models"
)

type registerRequest struct {
	Email    string `json:"email" validate:"required,contains=@"`
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"min=6,max=20"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type deletePlayerRequest struct {
	Password string `json:"password"`
}

type authTokenResponse struct {
	AuthToken string `json:"authToken"`
}

// RegisterHandler creates an account and returns a player token.
func (s *Server) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	if msg := s.validateRequest(req); msg != "" {
		respond.Error(w, http.StatusBadRequest, msg)
		return
	}

	p := models.Player{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	}
	if err := s.Players.CreatePlayer(r.Context(), &p); err != nil {
		if errors.Is(err, database.ErrEmailTaken) {
			respond.Error(w, http.StatusConflict, err.Error())
			return
		}
		s.Log.WithError(err).Error("failed to create player")
		respond.Error(w, http.StatusInternalServerError, "could not create player")
		return
	}

	s.issuePlayerToken(w, p, http.StatusCreated)
}

// LoginHandler exchanges email and password for a player token.
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := s.Players.AuthenticatePlayer(r.Context(), strings.TrimSpace(req.Email), req.Password)
	if errors.Is(err, database.ErrInvalidCredentials) {
		respond.Error(w, http.StatusForbidden, err.Error())
		return
	}
	if err != nil {
		s.Log.WithError(err).Error("failed to authenticate player")
		respond.Error(w, http.StatusInternalServerError, "could not log in")
		return
	}

	s.issuePlayerToken(w, *p, http.StatusOK)
}

// DeletePlayerHandler removes the caller's account after checking the password again.
func (s *Server) DeletePlayerHandler(w http.ResponseWriter, r *http.Request) {
	playerID, _ := middleware.PlayerIDFromContext(r.Context())

	var req deletePlayerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	err := s.Players.DeletePlayer(r.Context(), playerID, req.Password)
	switch {
	case errors.Is(err, database.ErrInvalidCredentials):
		respond.Error(w, http.StatusForbidden, "wrong password")
		return
	case errors.Is(err, database.ErrPlayerNotFound):
		respond.Error(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		s.Log.WithError(err).WithField("player_id", playerID).Error("failed to delete player")
		respond.Error(w, http.StatusInternalServerError, "could not delete player")
		return
	}

	if s.Names != nil {
		if err := s.Names.Evict(r.Context(), playerID); err != nil {
			s.Log.WithError(err).WithField("player_id", playerID).Warn("failed to evict cached display name")
		}
	}
	s.Log.WithField("player_id", playerID).Info("player deleted")
	respond.JSON(w, http.StatusAccepted, nil)
}

func (s *Server) issuePlayerToken(w http.ResponseWriter, p models.Player, code int) {
	token, err := s.Issuer.CreatePlayerToken(p.ID)
	if err != nil {
		s.Log.WithError(err).WithField("player_id", p.ID).Error("failed to sign player token")
		respond.Error(w, http.StatusInternalServerError, "could not create token")
		return
	}
	respond.JSON(w, code, authTokenResponse{AuthToken: token})
}
