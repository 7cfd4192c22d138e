package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/dcrane/planwise/internal/images"
	"github.com/dcrane/planwise/internal/services"
	"github.com/dcrane/planwise/pkg/response"
)

// SubtaskHandler exposes HTTP endpoints for subtasks and their rich-text
// descriptions with inline images.
type SubtaskHandler struct {
	service *services.SubtaskService
}

// NewSubtaskHandler constructs a subtask handler.
func NewSubtaskHandler(db *gorm.DB, engine *images.Engine) (*SubtaskHandler, error) {
	service, err := services.NewSubtaskService(db, engine)
	if err != nil {
		return nil, err
	}
	return &SubtaskHandler{service: service}, nil
}

// Create registers a new subtask under a task. Inline base64 images in the
// description are extracted and stored before the subtask is returned.
func (h *SubtaskHandler) Create(c *gin.Context) {
	var payload struct {
		Title       string `json:"title" validate:"required,min=1,max=300"`
		Description string `json:"description"`
	}

	if !bindAndValidate(c, &payload) {
		return
	}

	dto, err := h.service.Create(requestContext(c), services.CreateSubtaskInput{
		TaskID:      strings.TrimSpace(c.Param("id")),
		Title:       payload.Title,
		Description: payload.Description,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, dto)
}

// ListForTask returns a task's subtasks in display order.
func (h *SubtaskHandler) ListForTask(c *gin.Context) {
	items, err := h.service.ListForTask(requestContext(c), strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, items)
}

// Get returns a single subtask with its description resolved for display.
func (h *SubtaskHandler) Get(c *gin.Context) {
	dto, err := h.service.Get(requestContext(c), strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, dto)
}

// Update applies partial changes to a subtask.
func (h *SubtaskHandler) Update(c *gin.Context) {
	var payload struct {
		Title          *string  `json:"title" validate:"omitempty,min=1,max=300"`
		Description    *string  `json:"description"`
		Done           *bool    `json:"done"`
		Position       *int     `json:"position" validate:"omitempty,min=0"`
		RemoveImageIDs []string `json:"remove_image_ids"`
	}

	if !bindAndValidate(c, &payload) {
		return
	}

	dto, err := h.service.Update(requestContext(c), strings.TrimSpace(c.Param("id")), services.UpdateSubtaskInput{
		Title:          payload.Title,
		Description:    payload.Description,
		Done:           payload.Done,
		Position:       payload.Position,
		RemoveImageIDs: payload.RemoveImageIDs,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, dto)
}

// Toggle flips a subtask's done flag.
func (h *SubtaskHandler) Toggle(c *gin.Context) {
	dto, err := h.service.Toggle(requestContext(c), strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, dto)
}

// Delete removes a subtask and its extracted images.
func (h *SubtaskHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(requestContext(c), strings.TrimSpace(c.Param("id"))); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
