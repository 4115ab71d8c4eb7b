package handlers

import (
	"net/http"
	"strconv"

	"relay-service/internal/api/middleware"
	"relay-service/internal/database"
	"relay-service/internal/models"
	"relay-service/internal/services"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	userService *services.UserService
	storage     *database.MinIOClient
}

func NewUserHandler(userService *services.UserService, storage *database.MinIOClient) *UserHandler {
	return &UserHandler{userService: userService, storage: storage}
}

// UploadAvatar godoc
// @Summary Upload an avatar image
// @Description Stores the image and records its URL as the user's avatar reference
// @Tags users
// @Accept multipart/form-data
// @Produce json
// @Param avatar formData file true "Avatar image"
// @Success 200 {object} map[string]string "Avatar URL"
// @Failure 400 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse "Object storage not configured"
// @Security BearerAuth
// @Router /users/avatar [post]
func (h *UserHandler) UploadAvatar(c *gin.Context) {
	if h.storage == nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
			Code:    http.StatusServiceUnavailable,
			Message: "Avatar storage is not configured",
		})
		return
	}

	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	file, err := c.FormFile("avatar")
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Code:    http.StatusBadRequest,
			Message: "avatar file is required",
		})
		return
	}

	url, err := h.storage.UploadAvatar(c.Request.Context(), file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Code:    http.StatusInternalServerError,
			Message: "Upload failed",
		})
		return
	}

	userID, err := strconv.ParseUint(identity.UserID, 10, 64)
	if err == nil {
		if err := h.userService.UpdateAvatar(uint(userID), url); err != nil {
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{
				Code:    http.StatusInternalServerError,
				Message: "Failed to record avatar",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"avatar": url})
}
