// internal/respond/respond.go
package respond

import (
	"encoding/json"
	"net/http"
)

// Envelope is the shape of every JSON response.
type Envelope struct {
	Status  bool        `json:"status"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

const encodeFailure = `{"status":false,"message":"failed to encode response"}`

// JSON writes a successful envelope carrying data.
func JSON(w http.ResponseWriter, code int, data interface{}) {
	write(w, code, Envelope{Status: true, Data: data})
}

// Error writes a failed envelope carrying msg.
func Error(w http.ResponseWriter, code int, msg string) {
	write(w, code, Envelope{Status: false, Message: msg})
}

// write encodes before touching the response so an unencodable payload
// still yields a well-formed 500.
func write(w http.ResponseWriter, code int, env Envelope) {
	body, err := json.Marshal(env)
	if err != nil {
		code, body = http.StatusInternalServerError, []byte(encodeFailure)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(append(body, '\n'))
}
