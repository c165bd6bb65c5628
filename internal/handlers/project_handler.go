package handlers

import (
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"caerp/internal/models"
	"caerp/internal/services"
)

type ProjectHandler struct {
	service   *services.ProjectService
	filesRoot string
}

func NewProjectHandler(service *services.ProjectService, filesRoot string) *ProjectHandler {
	return &ProjectHandler{service: service, filesRoot: filesRoot}
}

func parseDatePtr(raw string) (*time.Time, bool) {
	if raw == "" {
		return nil, true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, true
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return &t, true
	}
	return nil, false
}

// POST /projects
func (h *ProjectHandler) Create(c *gin.Context) {
	actor := actorFrom(c)
	log.Printf("[project][create] call by userID=%d role=%d", actor.UserID, actor.RoleID)

	var req struct {
		ClientID  int64                `json:"client_id" binding:"required"`
		Name      string               `json:"name" binding:"required"`
		Status    models.ProjectStatus `json:"status"`
		Priority  models.TaskPriority  `json:"priority"`
		StartDate string               `json:"start_date"`
		DueDate   string               `json:"due_date"`
		Budget    *float64             `json:"budget"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	start, ok := parseDatePtr(req.StartDate)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start_date"})
		return
	}
	due, ok := parseDatePtr(req.DueDate)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid due_date"})
		return
	}

	project, err := h.service.Create(c.Request.Context(), actor, services.CreateProjectInput{
		ClientID:  req.ClientID,
		Name:      req.Name,
		Status:    req.Status,
		Priority:  req.Priority,
		StartDate: start,
		DueDate:   due,
		Budget:    req.Budget,
	})
	if err != nil {
		log.Printf("[project][create][err] %v", err)
		respondError(c, err)
		return
	}
	log.Printf("[project][create][ok] id=%d name=%q", project.ID, project.Name)
	c.JSON(http.StatusCreated, project)
}

// GET /projects/:id
func (h *ProjectHandler) GetByID(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	project, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

// GET /projects
func (h *ProjectHandler) List(c *gin.Context) {
	page, limit, offset := pageParams(c)

	var filter models.ProjectFilter
	if v, ok := c.GetQuery("client_id"); ok {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			filter.ClientID = &id
		}
	}
	if v, ok := c.GetQuery("status"); ok {
		st := models.ProjectStatus(v)
		filter.Status = &st
	}

	projects, total, err := h.service.List(c.Request.Context(), filter, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	paginated(c, projects, total, page, limit)
}

// PUT /projects/:id
func (h *ProjectHandler) Update(c *gin.Context) {
	actor := actorFrom(c)
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Name      *string               `json:"name"`
		Status    *models.ProjectStatus `json:"status"`
		Priority  *models.TaskPriority  `json:"priority"`
		StartDate *string               `json:"start_date"`
		DueDate   *string               `json:"due_date"`
		Budget    *float64              `json:"budget"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	patch := services.ProjectPatch{
		Name:     req.Name,
		Status:   req.Status,
		Priority: req.Priority,
		Budget:   req.Budget,
	}
	if req.StartDate != nil {
		t, ok := parseDatePtr(*req.StartDate)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start_date"})
			return
		}
		patch.StartDate = t
	}
	if req.DueDate != nil {
		t, ok := parseDatePtr(*req.DueDate)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid due_date"})
			return
		}
		patch.DueDate = t
	}

	project, err := h.service.Update(c.Request.Context(), actor, id, patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

// DELETE /projects/:id
func (h *ProjectHandler) Delete(c *gin.Context) {
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

// POST /projects/:id/notes
func (h *ProjectHandler) AddNote(c *gin.Context) {
	actor := actorFrom(c)
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var body struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	note, err := h.service.AddNote(c.Request.Context(), actor, id, body.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, note)
}

// PUT /projects/:id/notes/:note_id
func (h *ProjectHandler) EditNote(c *gin.Context) {
	actor := actorFrom(c)
	noteID, ok := paramID(c, "note_id")
	if !ok {
		return
	}
	var body struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.EditNote(c.Request.Context(), actor, noteID, body.Content); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DELETE /projects/:id/notes/:note_id
func (h *ProjectHandler) DeleteNote(c *gin.Context) {
	actor := actorFrom(c)
	noteID, ok := paramID(c, "note_id")
	if !ok {
		return
	}
	if err := h.service.SoftDeleteNote(c.Request.Context(), actor, noteID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /projects/:id/notes
func (h *ProjectHandler) ListNotes(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	notes, err := h.service.Notes(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, notes)
}

// POST /projects/:id/documents (multipart)
func (h *ProjectHandler) AddDocument(c *gin.Context) {
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
		log.Printf("[project][document][err] save id=%d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store file"})
		return
	}

	doc := &models.ProjectDocument{
		ProjectID:  id,
		Name:       filepath.Base(file.Filename),
		Size:       file.Size,
		StorageRef: storageRef,
	}
	if err := h.service.AddDocument(c.Request.Context(), actor, doc); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

// GET /projects/:id/documents
func (h *ProjectHandler) ListDocuments(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	docs, err := h.service.Documents(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, docs)
}
