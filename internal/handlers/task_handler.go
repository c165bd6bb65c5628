package handlers

import (
	"log"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"caerp/internal/models"
	"caerp/internal/services"
)

type TaskHandler struct {
	service services.TaskService
	users   *services.UserService
	tg      *services.TelegramService

	filesRoot string
}

func NewTaskHandler(service services.TaskService, users *services.UserService, tg *services.TelegramService, filesRoot string) *TaskHandler {
	return &TaskHandler{service: service, users: users, tg: tg, filesRoot: filesRoot}
}

// POST /tasks
func (h *TaskHandler) Create(c *gin.Context) {
	actor := actorFrom(c)
	log.Printf("[task][create] call by userID=%d role=%d", actor.UserID, actor.RoleID)

	var req struct {
		ProjectID      int64               `json:"project_id" binding:"required"`
		AssigneeID     int64               `json:"assignee_id" binding:"required"`
		Title          string              `json:"title" binding:"required"`
		Description    string              `json:"description"`
		DueDate        string              `json:"due_date" binding:"required"` // RFC3339
		Priority       models.TaskPriority `json:"priority"`                    // High|Medium|Low
		EstimatedHours float64             `json:"estimated_hours"`
		Cost           float64             `json:"cost"`
		Tags           []string            `json:"tags"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Printf("[task][create][bind][err] %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.service.Create(c.Request.Context(), actor, services.CreateTaskInput{
		ProjectID:      req.ProjectID,
		AssigneeID:     req.AssigneeID,
		Title:          req.Title,
		Description:    req.Description,
		DueDate:        req.DueDate,
		Priority:       req.Priority,
		EstimatedHours: req.EstimatedHours,
		Cost:           req.Cost,
		Tags:           req.Tags,
	})
	if err != nil {
		log.Printf("[task][create][err] %v", err)
		respondError(c, err)
		return
	}
	log.Printf("[task][create][ok] id=%d assignee_id=%d title=%q", task.ID, req.AssigneeID, task.Title)
	c.JSON(http.StatusCreated, task)

	h.users.NotifyAssignment(c.Request.Context(), h.tg, req.AssigneeID, task.Title)
}

// GET /tasks/:id
func (h *TaskHandler) GetByID(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	task, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// GET /tasks
func (h *TaskHandler) List(c *gin.Context) {
	actor := actorFrom(c)
	page, limit, offset := pageParams(c)

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
	if v, ok := c.GetQuery("status"); ok {
		st := models.TaskStatus(v)
		filter.Status = &st
	}
	if v, ok := c.GetQuery("priority"); ok {
		p := models.TaskPriority(v)
		filter.Priority = &p
	}

	tasks, total, err := h.service.List(c.Request.Context(), actor, filter, limit, offset)
	if err != nil {
		log.Printf("[task][list][err] %v", err)
		respondError(c, err)
		return
	}
	paginated(c, tasks, total, page, limit)
}

// PUT /tasks/:id
func (h *TaskHandler) Update(c *gin.Context) {
	actor := actorFrom(c)
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req struct {
		AssigneeID     *int64               `json:"assignee_id"`
		Title          *string              `json:"title"`
		Description    *string              `json:"description"`
		DueDate        *string              `json:"due_date"` // RFC3339, "" clears
		Priority       *models.TaskPriority `json:"priority"`
		Status         *models.TaskStatus   `json:"status"`
		EstimatedHours *float64             `json:"estimated_hours"`
		Cost           *float64             `json:"cost"`
		Tags           []string             `json:"tags"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Printf("[task][update][bind][err] %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.service.Update(c.Request.Context(), actor, id, services.TaskPatch{
		AssigneeID:     req.AssigneeID,
		Title:          req.Title,
		Description:    req.Description,
		DueDate:        req.DueDate,
		Priority:       req.Priority,
		Status:         req.Status,
		EstimatedHours: req.EstimatedHours,
		Cost:           req.Cost,
		Tags:           req.Tags,
	})
	if err != nil {
		log.Printf("[task][update][err] id=%d: %v", id, err)
		respondError(c, err)
		return
	}
	log.Printf("[task][update][ok] id=%d", id)
	c.JSON(http.StatusOK, task)
}

// POST /tasks/:id/status { "to": "In-Progress" }
func (h *TaskHandler) ChangeStatus(c *gin.Context) {
	actor := actorFrom(c)
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var body struct {
		To models.TaskStatus `json:"to" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.service.ChangeStatus(c.Request.Context(), actor, id, body.To)
	if err != nil {
		log.Printf("[task][status][err] id=%d to=%q: %v", id, body.To, err)
		respondError(c, err)
		return
	}
	log.Printf("[task][status][ok] id=%d to=%q", id, body.To)
	c.JSON(http.StatusOK, task)
}

// POST /tasks/:id/assign { "assignee_id": 7 }
func (h *TaskHandler) Assign(c *gin.Context) {
	actor := actorFrom(c)
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var body struct {
		AssigneeID int64 `json:"assignee_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.service.Assign(c.Request.Context(), actor, id, body.AssigneeID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)

	h.users.NotifyAssignment(c.Request.Context(), h.tg, body.AssigneeID, task.Title)
}

// DELETE /tasks/:id
func (h *TaskHandler) Delete(c *gin.Context) {
	actor := actorFrom(c)
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.service.SoftDelete(c.Request.Context(), actor, id); err != nil {
		log.Printf("[task][delete][err] id=%d: %v", id, err)
		respondError(c, err)
		return
	}
	log.Printf("[task][delete][ok] id=%d", id)
	c.Status(http.StatusNoContent)
}

// POST /tasks/:id/subtasks
func (h *TaskHandler) AddSubtask(c *gin.Context) {
	actor := actorFrom(c)
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var body struct {
		Title string `json:"title" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st, err := h.service.AddSubtask(c.Request.Context(), actor, id, body.Title)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, st)
}

// GET /tasks/:id/subtasks
func (h *TaskHandler) ListSubtasks(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	subtasks, err := h.service.Subtasks(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, subtasks)
}

// POST /tasks/:id/comments
func (h *TaskHandler) AddComment(c *gin.Context) {
	actor := actorFrom(c)
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var body struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cm, err := h.service.AddComment(c.Request.Context(), actor, id, body.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cm)
}

// GET /tasks/:id/comments
func (h *TaskHandler) ListComments(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	comments, err := h.service.Comments(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, comments)
}

// POST /tasks/:id/attachments (multipart). The binary is written to the
// file store; the task keeps metadata and a storage ref only.
func (h *TaskHandler) AddAttachment(c *gin.Context) {
	actor := actorFrom(c)
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	storageRef := uuid.NewString() + filepath.Ext(file.Filename)
	dst := filepath.Join(h.filesRoot, storageRef)
	if err := c.SaveUploadedFile(file, dst); err != nil {
		log.Printf("[task][attach][err] save id=%d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store file"})
		return
	}

	at := &models.Attachment{
		TaskID:     id,
		Name:       filepath.Base(file.Filename),
		Size:       file.Size,
		StorageRef: storageRef,
	}
	if err := h.service.AddAttachment(c.Request.Context(), actor, at); err != nil {
		respondError(c, err)
		return
	}
	log.Printf("[task][attach][ok] id=%d ref=%s size=%d", id, storageRef, file.Size)
	c.JSON(http.StatusCreated, at)
}

// GET /tasks/:id/attachments
func (h *TaskHandler) ListAttachments(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	attachments, err := h.service.Attachments(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, attachments)
}

// POST /tasks/:id/time-entries
func (h *TaskHandler) AddTimeEntry(c *gin.Context) {
	actor := actorFrom(c)
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var body struct {
		Date        string  `json:"date"`
		Hours       float64 `json:"hours" binding:"required"`
		Description string  `json:"description"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, actualHours, err := h.service.AddTimeEntry(c.Request.Context(), actor, id, services.TimeEntryInput{
		Date:        body.Date,
		Hours:       body.Hours,
		Description: body.Description,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"entry": entry, "actual_hours": actualHours})
}

// GET /tasks/:id/time-entries
func (h *TaskHandler) ListTimeEntries(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	entries, err := h.service.TimeEntries(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}
