// internal/middleware/logging.go

package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// LogMiddleware is an HTTP middleware that logs incoming requests using Logrus.
// Logs the method, path, status, and duration of each request.
func LogMiddleware(logger *logrus.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			fields := logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   ww.Status(),
				"duration": time.Since(start),
				"remote":   r.RemoteAddr,
			}
			if reqID := chimw.GetReqID(r.Context()); reqID != "" {
				fields["request_id"] = reqID
			}
			logger.WithFields(fields).Info("HTTP Request")
		})
	}
}

// LogWebSocketConnect logs a session joining a room.
func LogWebSocketConnect(logger *logrus.Logger, remoteAddr string, connID, roomID, playerID uuid.UUID) {
	logger.WithFields(logrus.Fields{
		"remote":    remoteAddr,
		"conn_id":   connID,
		"room_id":   roomID,
		"player_id": playerID,
	}).Info("WebSocket connected")
}

// LogWebSocketDisconnect logs a session ending, with the error that ended it if any.
func LogWebSocketDisconnect(logger *logrus.Logger, remoteAddr string, connID, roomID, playerID uuid.UUID, err error) {
	fields := logrus.Fields{
		"remote":    remoteAddr,
		"conn_id":   connID,
		"room_id":   roomID,
		"player_id": playerID,
	}
	if err != nil {
		fields["error"] = err
	}
	logger.WithFields(fields).Info("WebSocket disconnected")
}
