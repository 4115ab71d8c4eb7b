package handlers

import (
	"errors"
	"net/http"

	"relay-service/internal/models"
	"relay-service/internal/websocket"

	"github.com/gin-gonic/gin"
)

// BroadcastHandler is the HTTP face of the ingestion boundary. It validates
// the envelope and hands it to the registry; it never inspects message
// contents beyond what typing events require.
type BroadcastHandler struct {
	hub *websocket.Hub
}

func NewBroadcastHandler(hub *websocket.Hub) *BroadcastHandler {
	return &BroadcastHandler{hub: hub}
}

// Broadcast godoc
// @Summary Push an event to a channel
// @Description Fans the event out to every open subscriber of the channel
// @Tags relay
// @Accept json
// @Produce json
// @Param request body websocket.IngestEnvelope true "Event to broadcast"
// @Success 202 {object} map[string]string "Accepted for delivery"
// @Failure 400 {object} models.ErrorResponse "Missing field or unrecognized event type"
// @Security BearerAuth
// @Router /broadcast [post]
func (h *BroadcastHandler) Broadcast(c *gin.Context) {
	var env websocket.IngestEnvelope
	if err := c.ShouldBindJSON(&env); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Code:    http.StatusBadRequest,
			Message: "Invalid request body",
			Details: err.Error(),
		})
		return
	}

	if err := h.hub.Dispatch(env); err != nil {
		status := http.StatusBadRequest
		if !errors.Is(err, websocket.ErrUnknownEventType) &&
			!errors.Is(err, websocket.ErrMissingChannel) &&
			!errors.Is(err, websocket.ErrMissingMessage) {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, models.ErrorResponse{
			Code:    status,
			Message: "Broadcast rejected",
			Details: err.Error(),
		})
		return
	}

	// Delivery is fire-and-forget per subscriber; acceptance is all the
	// producer gets.
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}
