// internal/middleware/auth.go

package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jason-s-yu/scribble/internal/respond"
)

type contextKey struct{}

var playerIDKey = contextKey{}

// PlayerVerifier checks a player bearer token and returns its subject.
type PlayerVerifier interface {
	VerifyPlayerToken(token string) (uuid.UUID, error)
}

// Authenticate rejects requests without a valid "Authorization: Bearer <token>"
// header and stores the player ID in the request context.
func Authenticate(v PlayerVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w, "missing bearer token")
				return
			}
			playerID, err := v.VerifyPlayerToken(token)
			if err != nil {
				unauthorized(w, "invalid auth token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPlayerID(r.Context(), playerID)))
		})
	}
}

// WithPlayerID returns a copy of ctx carrying playerID.
func WithPlayerID(ctx context.Context, playerID uuid.UUID) context.Context {
	return context.WithValue(ctx, playerIDKey, playerID)
}

// PlayerIDFromContext returns the authenticated player, if any.
func PlayerIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(playerIDKey).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	respond.Error(w, http.StatusUnauthorized, msg)
}
