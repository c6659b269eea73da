// internal/handlers/router.go
package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/jason-s-yu/scribble/internal/middleware"
)

// RouterOptions holds the HTTP-edge settings of the router.
type RouterOptions struct {
	AllowedOrigins     []string
	RateLimitPerMinute int // zero disables rate limiting
}

// NewRouter mounts the player, room and socket endpoints.
func NewRouter(s *Server, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.LogMiddleware(s.Log))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Heartbeat("/ping"))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	r.Route("/api", func(r chi.Router) {
		if opts.RateLimitPerMinute > 0 {
			r.Use(httprate.Limit(opts.RateLimitPerMinute, time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint)))
		}

		r.Route("/player", func(r chi.Router) {
			r.Post("/register", s.RegisterHandler)
			r.Post("/login", s.LoginHandler)
			r.With(middleware.Authenticate(s.Issuer)).Delete("/delete", s.DeletePlayerHandler)
		})

		r.Route("/room", func(r chi.Router) {
			r.Use(middleware.Authenticate(s.Issuer))
			r.Get("/getall", s.ListRoomsHandler)
			r.Post("/create", s.CreateRoomHandler)
			r.Patch("/join", s.JoinRoomHandler)
			r.Patch("/exit", s.ExitRoomHandler)
			r.Delete("/delete", s.DeleteRoomHandler)
		})
	})

	r.Get("/ws", s.RoomWSHandler)
	return r
}
