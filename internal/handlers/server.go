// internal/handlers/server.go
package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jason-s-yu/scribble/internal/auth"
	"github.com/jason-s-yu/scribble/internal/models"
	"github.com/jason-s-yu/scribble/internal/room"
	"github.com/sirupsen/logrus"
)

const (
	defaultOutboundBuffer = 16
	defaultPingInterval   = 30 * time.Second
	defaultWriteTimeout   = 5 * time.Second
)

// PlayerStore is the account storage the player endpoints need.
type PlayerStore interface {
	CreatePlayer(ctx context.Context, p *models.Player) error
	AuthenticatePlayer(ctx context.Context, email, password string) (*models.Player, error)
	DeletePlayer(ctx context.Context, id uuid.UUID, password string) error
}

// NameEvicter drops cached display names.
type NameEvicter interface {
	Evict(ctx context.Context, id uuid.UUID) error
}

// Server bundles the dependencies of the HTTP and WebSocket handlers.
type Server struct {
	Rooms   *room.Registry
	Players PlayerStore
	Names   NameEvicter // optional
	Issuer  *auth.Issuer
	Log     *logrus.Logger

	// OriginPatterns is passed to websocket.Accept; nil means same-origin only.
	OriginPatterns []string

	// Validate checks request bodies; a default instance is built on first use.
	Validate     *validator.Validate
	validateOnce sync.Once

	OutboundBuffer int
	PingInterval   time.Duration
	WriteTimeout   time.Duration
}

func (s *Server) outboundBuffer() int {
	if s.OutboundBuffer > 0 {
		return s.OutboundBuffer
	}
	return defaultOutboundBuffer
}

func (s *Server) pingInterval() time.Duration {
	if s.PingInterval > 0 {
		return s.PingInterval
	}
	return defaultPingInterval
}

func (s *Server) writeTimeout() time.Duration {
	if s.WriteTimeout > 0 {
		return s.WriteTimeout
	}
	return defaultWriteTimeout
}
