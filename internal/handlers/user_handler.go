package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"caerp/internal/services"
)

type UserHandler struct {
	service *services.UserService
}

func NewUserHandler(service *services.UserService) *UserHandler {
	return &UserHandler{service: service}
}

// GET /users/me
func (h *UserHandler) Me(c *gin.Context) {
	actor := actorFrom(c)
	user, err := h.service.GetByID(c.Request.Context(), actor.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// GET /users/:id
func (h *UserHandler) GetByID(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	user, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// GET /users
func (h *UserHandler) List(c *gin.Context) {
	page, limit, offset := pageParams(c)
	users, total, err := h.service.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	paginated(c, users, total, page, limit)
}

// PUT /users/:id
func (h *UserHandler) Update(c *gin.Context) {
	actor := actorFrom(c)
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Name           *string `json:"name"`
		RoleID         *int    `json:"role_id"`
		Department     *string `json:"department"`
		AvatarURL      *string `json:"avatar_url"`
		TelegramChatID *int64  `json:"telegram_chat_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.RoleID != nil {
		user.RoleID = *req.RoleID
	}
	if req.Department != nil {
		user.Department = *req.Department
	}
	if req.AvatarURL != nil {
		user.AvatarURL = *req.AvatarURL
	}
	if req.TelegramChatID != nil {
		user.TelegramChatID = req.TelegramChatID
	}

	if err := h.service.Update(c.Request.Context(), actor, user); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// DELETE /users/:id
func (h *UserHandler) Delete(c *gin.Context) {
	actor := actorFrom(c)
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), actor, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
