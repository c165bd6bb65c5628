package handlers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"caerp/internal/models"
	"caerp/internal/services"
)

type InvoiceHandler struct {
	service *services.InvoiceService
}

func NewInvoiceHandler(service *services.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{service: service}
}

// GET /invoices/invoiceable
func (h *InvoiceHandler) ListInvoiceable(c *gin.Context) {
	var filter models.TaskFilter
	if v, ok := c.GetQuery("project_id"); ok {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			filter.ProjectID = &id
		}
	}
	if v, ok := c.GetQuery("assignee_id"); ok {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			filter.AssigneeID = &id
		}
	}

	tasks, err := h.service.ListInvoiceable(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": tasks, "total": len(tasks)})
}

// POST /invoices/totals { "task_ids": [...] }
// Dry run: validates the batch and returns what the invoice would total.
func (h *InvoiceHandler) ComputeTotals(c *gin.Context) {
	var req struct {
		TaskIDs []int64 `json:"task_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	totals, err := h.service.ComputeTotals(c.Request.Context(), req.TaskIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, totals)
}

// POST /invoices { "task_ids": [...], "invoice_number": "...", "invoice_date": "..." }
func (h *InvoiceHandler) Create(c *gin.Context) {
	actor := actorFrom(c)
	log.Printf("[invoice][create] call by userID=%d role=%d", actor.UserID, actor.RoleID)

	var req struct {
		TaskIDs       []int64 `json:"task_ids"`
		InvoiceNumber string  `json:"invoice_number"`
		InvoiceDate   string  `json:"invoice_date"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.CreateInvoice(c.Request.Context(), actor, services.CreateInvoiceInput{
		InvoiceNumber: req.InvoiceNumber,
		InvoiceDate:   req.InvoiceDate,
		TaskIDs:       req.TaskIDs,
	})
	if err != nil {
		log.Printf("[invoice][create][err] %v", err)
		respondError(c, err)
		return
	}

	log.Printf("[invoice][create][ok] number=%s succeeded=%d failed=%d",
		result.InvoiceNumber, len(result.Succeeded), len(result.Failed))
	status := http.StatusCreated
	if len(result.Failed) > 0 {
		status = http.StatusMultiStatus
	}
	c.JSON(status, result)
}

// GET /invoices/:id
func (h *InvoiceHandler) GetByID(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	inv, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

// GET /invoices
func (h *InvoiceHandler) List(c *gin.Context) {
	page, limit, offset := pageParams(c)

	var clientID *int64
	if v, ok := c.GetQuery("client_id"); ok {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			clientID = &id
		}
	}

	invoices, total, err := h.service.List(c.Request.Context(), clientID, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	paginated(c, invoices, total, page, limit)
}
