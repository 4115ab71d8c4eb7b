package handlers

import (
	"log/slog"
	"net/http"

	"relay-service/internal/api/middleware"
	"relay-service/internal/websocket"

	"github.com/gin-gonic/gin"
)

type WSHandler struct {
	hub    *websocket.Hub
	authMW *middleware.AuthMiddleware
}

func NewWSHandler(hub *websocket.Hub, authMW *middleware.AuthMiddleware) *WSHandler {
	return &WSHandler{hub: hub, authMW: authMW}
}

// HandleWebSocket godoc
// @Summary Open a relay connection
// @Description Upgrades to a WebSocket carrying broadcast frames for subscribed channels
// @Tags relay
// @Param token query string false "Bearer token (alternative to Authorization header)"
// @Success 101 "Switching protocols"
// @Failure 401 {object} models.ErrorResponse "Missing, invalid or expired token"
// @Router /ws [get]
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	token := middleware.TokenFromRequest(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token is required"})
		return
	}

	identity, err := h.authMW.VerifyToken(token)
	if err != nil {
		slog.Warn("websocket connection rejected", "error", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	websocket.ServeWS(h.hub, c.Writer, c.Request, identity)
}
