package respond

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, http.StatusCreated, map[string]string{"roomId": "abc"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var env struct {
		Status bool              `json:"status"`
		Data   map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.True(t, env.Status)
	assert.Equal(t, "abc", env.Data["roomId"])
	assert.NotContains(t, w.Body.String(), "message")
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, http.StatusUnauthorized, "invalid auth token")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"status":false,"message":"invalid auth token"}`, w.Body.String())
}

func TestUnencodablePayload(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, http.StatusOK, map[string]interface{}{"ch": make(chan int)})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, encodeFailure, w.Body.String())
}
