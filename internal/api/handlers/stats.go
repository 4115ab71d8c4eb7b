package handlers

import (
	"net/http"

	"relay-service/internal/websocket"

	"github.com/gin-gonic/gin"
)

type StatsHandler struct {
	hub *websocket.Hub
}

func NewStatsHandler(hub *websocket.Hub) *StatsHandler {
	return &StatsHandler{hub: hub}
}

// GetStats godoc
// @Summary Relay statistics
// @Description Point-in-time snapshot of connections and channel subscriber counts
// @Tags relay
// @Produce json
// @Success 200 {object} websocket.StatsSnapshot
// @Router /stats [get]
func (h *StatsHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.Stats())
}
