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

// ProjectHandler exposes HTTP endpoints for projects.
type ProjectHandler struct {
	service *services.ProjectService
}

// NewProjectHandler constructs a project handler.
func NewProjectHandler(db *gorm.DB, engine *images.Engine) (*ProjectHandler, error) {
	service, err := services.NewProjectService(db, engine)
	if err != nil {
		return nil, err
	}
	return &ProjectHandler{service: service}, nil
}

// Create registers a new project.
func (h *ProjectHandler) Create(c *gin.Context) {
	var payload struct {
		Name        string `json:"name" validate:"required,min=1,max=200"`
		Description string `json:"description" validate:"max=2000"`
		Color       string `json:"color" validate:"max=32"`
	}

	if !bindAndValidate(c, &payload) {
		return
	}

	dto, err := h.service.Create(requestContext(c), services.CreateProjectInput{
		Name:        payload.Name,
		Description: payload.Description,
		Color:       payload.Color,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, dto)
}

// List returns all projects, optionally including archived ones.
func (h *ProjectHandler) List(c *gin.Context) {
	includeArchived := parseBoolQuery(c, "include_archived")

	items, err := h.service.List(requestContext(c), includeArchived)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, items)
}

// Get returns a single project by id.
func (h *ProjectHandler) Get(c *gin.Context) {
	dto, err := h.service.Get(requestContext(c), strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, dto)
}

// Update applies partial changes to a project.
func (h *ProjectHandler) Update(c *gin.Context) {
	var payload struct {
		Name        *string `json:"name" validate:"omitempty,min=1,max=200"`
		Description *string `json:"description" validate:"omitempty,max=2000"`
		Color       *string `json:"color" validate:"omitempty,max=32"`
		Archived    *bool   `json:"archived"`
	}

	if !bindAndValidate(c, &payload) {
		return
	}

	dto, err := h.service.Update(requestContext(c), strings.TrimSpace(c.Param("id")), services.UpdateProjectInput{
		Name:        payload.Name,
		Description: payload.Description,
		Color:       payload.Color,
		Archived:    payload.Archived,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, dto)
}

// Delete removes a project and everything beneath it.
func (h *ProjectHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(requestContext(c), strings.TrimSpace(c.Param("id"))); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
