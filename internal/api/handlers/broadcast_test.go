package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"relay-service/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBroadcastRouter() (*gin.Engine, *websocket.Hub) {
	gin.SetMode(gin.TestMode)
	hub := websocket.NewHub(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	handler := NewBroadcastHandler(hub)

	engine := gin.New()
	engine.POST("/broadcast", handler.Broadcast)
	return engine, hub
}

func postBroadcast(t *testing.T, engine *gin.Engine, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/broadcast", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestBroadcastAcceptsValidEnvelope(t *testing.T) {
	engine, _ := newBroadcastRouter()

	rec := postBroadcast(t, engine, map[string]interface{}{
		"type":        "new-message",
		"channelName": "general",
		"message":     map[string]string{"id": "m1", "text": "hello"},
	})

	// Broadcasting to a channel with no subscribers is still accepted;
	// there is no delivery guarantee to report on.
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestBroadcastRejectsUnknownEventType(t *testing.T) {
	engine, _ := newBroadcastRouter()

	rec := postBroadcast(t, engine, map[string]interface{}{
		"type":        "not-a-thing",
		"channelName": "general",
		"message":     map[string]string{"id": "m1"},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBroadcastRejectsMissingFields(t *testing.T) {
	engine, _ := newBroadcastRouter()

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"no type", map[string]interface{}{"channelName": "general", "message": map[string]string{}}},
		{"no channel", map[string]interface{}{"type": "new-message", "message": map[string]string{}}},
		{"no message", map[string]interface{}{"type": "new-message", "channelName": "general"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postBroadcast(t, engine, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestBroadcastRejectsMalformedBody(t *testing.T) {
	engine, _ := newBroadcastRouter()

	req := httptest.NewRequest(http.MethodPost, "/broadcast", bytes.NewReader([]byte("not json")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := websocket.NewHub(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	handler := NewStatsHandler(hub)

	engine := gin.New()
	engine.GET("/stats", handler.GetStats)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var snapshot websocket.StatsSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	assert.Equal(t, 0, snapshot.ActiveConnections)
	assert.Empty(t, snapshot.Channels)
}
