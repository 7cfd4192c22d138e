package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/dcrane/planwise/internal/images"
	"github.com/dcrane/planwise/internal/services"
	appErrors "github.com/dcrane/planwise/pkg/errors"
	"github.com/dcrane/planwise/pkg/response"
)

// TaskHandler exposes HTTP endpoints for tasks, the kanban board, and the roadmap.
type TaskHandler struct {
	service *services.TaskService
}

// NewTaskHandler constructs a task handler.
func NewTaskHandler(db *gorm.DB, engine *images.Engine) (*TaskHandler, error) {
	service, err := services.NewTaskService(db, engine)
	if err != nil {
		return nil, err
	}
	return &TaskHandler{service: service}, nil
}

// Create registers a new task in a project.
func (h *TaskHandler) Create(c *gin.Context) {
	var payload struct {
		ProjectID   string     `json:"project_id" validate:"required"`
		Title       string     `json:"title" validate:"required,min=1,max=300"`
		Description string     `json:"description" validate:"max=5000"`
		Status      string     `json:"status" validate:"omitempty,oneof=backlog todo in_progress done"`
		Priority    string     `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
		Labels      []string   `json:"labels"`
		DueAt       *time.Time `json:"due_at"`
		StartsAt    *time.Time `json:"starts_at"`
		EndsAt      *time.Time `json:"ends_at"`
	}

	if !bindAndValidate(c, &payload) {
		return
	}

	dto, err := h.service.Create(requestContext(c), services.CreateTaskInput{
		ProjectID:   payload.ProjectID,
		Title:       payload.Title,
		Description: payload.Description,
		Status:      payload.Status,
		Priority:    payload.Priority,
		Labels:      payload.Labels,
		DueAt:       payload.DueAt,
		StartsAt:    payload.StartsAt,
		EndsAt:      payload.EndsAt,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, dto)
}

// List returns tasks filtered by project, status, or due date.
func (h *TaskHandler) List(c *gin.Context) {
	input := services.ListTasksInput{
		ProjectID: strings.TrimSpace(c.Query("project_id")),
		Status:    strings.TrimSpace(c.Query("status")),
	}

	if raw := strings.TrimSpace(c.Query("due_before")); raw != "" {
		parsed, err := parseTimeQuery(raw)
		if err != nil {
			response.Error(c, appErrors.NewBadRequest("due_before must be an RFC 3339 timestamp or a YYYY-MM-DD date"))
			return
		}
		input.DueBefore = &parsed
	}

	items, err := h.service.List(requestContext(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, items)
}

// Get returns a single task by id.
func (h *TaskHandler) Get(c *gin.Context) {
	dto, err := h.service.Get(requestContext(c), strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, dto)
}

// Update applies partial changes to a task.
func (h *TaskHandler) Update(c *gin.Context) {
	var payload struct {
		Title       *string    `json:"title" validate:"omitempty,min=1,max=300"`
		Description *string    `json:"description" validate:"omitempty,max=5000"`
		Priority    *string    `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
		Labels      []string   `json:"labels"`
		DueAt       *time.Time `json:"due_at"`
		ClearDueAt  bool       `json:"clear_due_at"`
		StartsAt    *time.Time `json:"starts_at"`
		EndsAt      *time.Time `json:"ends_at"`
		ClearDates  bool       `json:"clear_dates"`
	}

	if !bindAndValidate(c, &payload) {
		return
	}

	dto, err := h.service.Update(requestContext(c), strings.TrimSpace(c.Param("id")), services.UpdateTaskInput{
		Title:       payload.Title,
		Description: payload.Description,
		Priority:    payload.Priority,
		Labels:      payload.Labels,
		DueAt:       payload.DueAt,
		ClearDueAt:  payload.ClearDueAt,
		StartsAt:    payload.StartsAt,
		EndsAt:      payload.EndsAt,
		ClearDates:  payload.ClearDates,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, dto)
}

// Move places a task in a new board column and position.
func (h *TaskHandler) Move(c *gin.Context) {
	var payload struct {
		Status   string `json:"status" validate:"required,oneof=backlog todo in_progress done"`
		Position int    `json:"position" validate:"min=0"`
	}

	if !bindAndValidate(c, &payload) {
		return
	}

	dto, err := h.service.Move(requestContext(c), strings.TrimSpace(c.Param("id")), payload.Status, payload.Position)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, dto)
}

// Board returns the kanban board for a project.
func (h *TaskHandler) Board(c *gin.Context) {
	columns, err := h.service.Board(requestContext(c), strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, columns)
}

// Roadmap returns scheduled tasks for a project grouped by month.
func (h *TaskHandler) Roadmap(c *gin.Context) {
	now := time.Now()
	from := now.AddDate(0, -1, 0)
	to := now.AddDate(0, 6, 0)

	if raw := strings.TrimSpace(c.Query("from")); raw != "" {
		parsed, err := parseTimeQuery(raw)
		if err != nil {
			response.Error(c, appErrors.NewBadRequest("from must be an RFC 3339 timestamp or a YYYY-MM-DD date"))
			return
		}
		from = parsed
	}
	if raw := strings.TrimSpace(c.Query("to")); raw != "" {
		parsed, err := parseTimeQuery(raw)
		if err != nil {
			response.Error(c, appErrors.NewBadRequest("to must be an RFC 3339 timestamp or a YYYY-MM-DD date"))
			return
		}
		to = parsed
	}

	groups, err := h.service.Roadmap(requestContext(c), strings.TrimSpace(c.Param("id")), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, groups)
}

// Delete removes a task and its subtasks.
func (h *TaskHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(requestContext(c), strings.TrimSpace(c.Param("id"))); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

func parseTimeQuery(raw string) (time.Time, error) {
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed, nil
	}
	return time.Parse("2006-01-02", raw)
}
