package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/dcrane/planwise/internal/images"
	"github.com/dcrane/planwise/internal/models"
	apperrors "github.com/dcrane/planwise/pkg/errors"
)

// ProjectDTO represents the API-friendly project payload.
type ProjectDTO struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Color       string    `json:"color"`
	Archived    bool      `json:"archived"`
	TaskCount   int64     `json:"task_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateProjectInput defines attributes required to create a project.
type CreateProjectInput struct {
	Name        string
	Description string
	Color       string
}

// UpdateProjectInput carries optional project mutations.
type UpdateProjectInput struct {
	Name        *string
	Description *string
	Color       *string
	Archived    *bool
}

// ProjectService manages projects and owns their cascading deletion.
type ProjectService struct {
	db     *gorm.DB
	engine *images.Engine
}

// NewProjectService constructs a ProjectService.
func NewProjectService(db *gorm.DB, engine *images.Engine) (*ProjectService, error) {
	if db == nil {
		return nil, errors.New("project service: db is required")
	}
	if engine == nil {
		return nil, errors.New("project service: image engine is required")
	}
	return &ProjectService{db: db, engine: engine}, nil
}

// Create registers a new project.
func (s *ProjectService) Create(ctx context.Context, input CreateProjectInput) (*ProjectDTO, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewBadRequest("project name is required")
	}

	project := models.Project{
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		Color:       defaultIfEmpty(strings.TrimSpace(input.Color), "slate"),
	}

	if err := s.db.WithContext(ctx).Create(&project).Error; err != nil {
		return nil, fmt.Errorf("project service: create project: %w", err)
	}

	dto := mapProject(project, 0)
	return &dto, nil
}

// Get returns a single project by id.
func (s *ProjectService) Get(ctx context.Context, projectID string) (*ProjectDTO, error) {
	ctx = ensureContext(ctx)

	project, err := s.loadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	count, err := s.taskCount(ctx, project.ID)
	if err != nil {
		return nil, err
	}

	dto := mapProject(*project, count)
	return &dto, nil
}

// List returns projects ordered by recency. Archived projects are excluded
// unless includeArchived is set.
func (s *ProjectService) List(ctx context.Context, includeArchived bool) ([]ProjectDTO, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Order("created_at DESC")
	if !includeArchived {
		query = query.Where("archived = ?", false)
	}

	var rows []models.Project
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("project service: list projects: %w", err)
	}

	items := make([]ProjectDTO, 0, len(rows))
	for _, row := range rows {
		count, err := s.taskCount(ctx, row.ID)
		if err != nil {
			return nil, err
		}
		items = append(items, mapProject(row, count))
	}
	return items, nil
}

// Update applies the provided mutations to a project.
func (s *ProjectService) Update(ctx context.Context, projectID string, input UpdateProjectInput) (*ProjectDTO, error) {
	ctx = ensureContext(ctx)

	project, err := s.loadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, apperrors.NewBadRequest("project name cannot be empty")
		}
		updates["name"] = name
	}
	if input.Description != nil {
		updates["description"] = strings.TrimSpace(*input.Description)
	}
	if input.Color != nil {
		updates["color"] = defaultIfEmpty(strings.TrimSpace(*input.Color), "slate")
	}
	if input.Archived != nil {
		updates["archived"] = *input.Archived
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(project).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("project service: update project: %w", err)
		}
	}

	return s.Get(ctx, projectID)
}

// Delete removes a project and everything beneath it. Image rows cascade at
// the database level, but the payload cache has no foreign-key awareness, so
// affected image ids are collected first and forgotten after the delete
// commits.
func (s *ProjectService) Delete(ctx context.Context, projectID string) error {
	ctx = ensureContext(ctx)

	project, err := s.loadProject(ctx, projectID)
	if err != nil {
		return err
	}

	imageIDs, err := s.collectImageIDs(ctx, project.ID)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(imageIDs) > 0 {
			if err := tx.Where("id IN ?", imageIDs).Delete(&models.SubtaskImage{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("task_id IN (?)",
			tx.Model(&models.Task{}).Select("id").Where("project_id = ?", project.ID),
		).Delete(&models.Subtask{}).Error; err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", project.ID).Delete(&models.Task{}).Error; err != nil {
			return err
		}
		return tx.Delete(project).Error
	}); err != nil {
		return fmt.Errorf("project service: delete project: %w", err)
	}

	s.engine.Forget(imageIDs...)
	return nil
}

func (s *ProjectService) loadProject(ctx context.Context, projectID string) (*models.Project, error) {
	var project models.Project
	if err := s.db.WithContext(ctx).Take(&project, "id = ?", strings.TrimSpace(projectID)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("project service: load project: %w", err)
	}
	return &project, nil
}

func (s *ProjectService) taskCount(ctx context.Context, projectID string) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Task{}).
		Where("project_id = ?", projectID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("project service: count tasks: %w", err)
	}
	return count, nil
}

func (s *ProjectService) collectImageIDs(ctx context.Context, projectID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&models.SubtaskImage{}).
		Where("subtask_id IN (?)",
			s.db.Model(&models.Subtask{}).Select("id").Where("task_id IN (?)",
				s.db.Model(&models.Task{}).Select("id").Where("project_id = ?", projectID),
			),
		).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("project service: collect image ids: %w", err)
	}
	return ids, nil
}

func mapProject(row models.Project, taskCount int64) ProjectDTO {
	return ProjectDTO{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description,
		Color:       row.Color,
		Archived:    row.Archived,
		TaskCount:   taskCount,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}
