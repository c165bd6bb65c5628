package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"caerp/internal/models"
	"caerp/internal/services"
)

type ClientHandler struct {
	service *services.ClientService
}

func NewClientHandler(service *services.ClientService) *ClientHandler {
	return &ClientHandler{service: service}
}

// POST /clients
func (h *ClientHandler) Create(c *gin.Context) {
	actor := actorFrom(c)

	var req struct {
		Name    string `json:"name" binding:"required"`
		Email   string `json:"email"`
		Phone   string `json:"phone"`
		Address string `json:"address"`
		TaxID   string `json:"tax_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	client := &models.Client{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Address: req.Address,
		TaxID:   req.TaxID,
	}
	if err := h.service.Create(c.Request.Context(), actor, client); err != nil {
		log.Printf("[client][create][err] %v", err)
		respondError(c, err)
		return
	}
	log.Printf("[client][create][ok] id=%d name=%q", client.ID, client.Name)
	c.JSON(http.StatusCreated, client)
}

// GET /clients/:id
func (h *ClientHandler) GetByID(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	client, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, client)
}

// GET /clients (optional ?name= search)
func (h *ClientHandler) List(c *gin.Context) {
	if name, ok := c.GetQuery("name"); ok && name != "" {
		clients, err := h.service.Search(c.Request.Context(), name)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": clients, "total": len(clients)})
		return
	}

	page, limit, offset := pageParams(c)
	clients, total, err := h.service.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	paginated(c, clients, total, page, limit)
}

// PUT /clients/:id
func (h *ClientHandler) Update(c *gin.Context) {
	actor := actorFrom(c)
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Name    *string `json:"name"`
		Email   *string `json:"email"`
		Phone   *string `json:"phone"`
		Address *string `json:"address"`
		TaxID   *string `json:"tax_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	client, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if req.Name != nil {
		client.Name = *req.Name
	}
	if req.Email != nil {
		client.Email = *req.Email
	}
	if req.Phone != nil {
		client.Phone = *req.Phone
	}
	if req.Address != nil {
		client.Address = *req.Address
	}
	if req.TaxID != nil {
		client.TaxID = *req.TaxID
	}

	if err := h.service.Update(c.Request.Context(), actor, client); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, client)
}

// DELETE /clients/:id
func (h *ClientHandler) Delete(c *gin.Context) {
	actor := actorFrom(c)
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.service.SoftDelete(c.Request.Context(), actor, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
