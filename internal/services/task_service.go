package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/dcrane/planwise/internal/images"
	"github.com/dcrane/planwise/internal/models"
	apperrors "github.com/dcrane/planwise/pkg/errors"
)

// TaskDTO represents the API-friendly task payload.
type TaskDTO struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Position    int        `json:"position"`
	Priority    string     `json:"priority"`
	Labels      []string   `json:"labels,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	StartsAt    *time.Time `json:"starts_at,omitempty"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// CreateTaskInput defines attributes required to create a task.
type CreateTaskInput struct {
	ProjectID   string
	Title       string
	Description string
	Status      string
	Priority    string
	Labels      []string
	DueAt       *time.Time
	StartsAt    *time.Time
	EndsAt      *time.Time
}

// UpdateTaskInput carries optional task mutations.
type UpdateTaskInput struct {
	Title       *string
	Description *string
	Priority    *string
	Labels      []string
	DueAt       *time.Time
	ClearDueAt  bool
	StartsAt    *time.Time
	EndsAt      *time.Time
	ClearDates  bool
}

// ListTasksInput defines filters for querying tasks.
type ListTasksInput struct {
	ProjectID string
	Status    string
	DueBefore *time.Time
}

// BoardColumn groups tasks belonging to one kanban status column.
type BoardColumn struct {
	Status string    `json:"status"`
	Tasks  []TaskDTO `json:"tasks"`
}

// RoadmapGroup groups roadmap tasks by calendar month ("2026-08").
type RoadmapGroup struct {
	Month string    `json:"month"`
	Tasks []TaskDTO `json:"tasks"`
}

// TaskService manages tasks, the kanban board, and the roadmap view.
type TaskService struct {
	db     *gorm.DB
	engine *images.Engine
}

// NewTaskService constructs a TaskService.
func NewTaskService(db *gorm.DB, engine *images.Engine) (*TaskService, error) {
	if db == nil {
		return nil, errors.New("task service: db is required")
	}
	if engine == nil {
		return nil, errors.New("task service: image engine is required")
	}
	return &TaskService{db: db, engine: engine}, nil
}

// Create registers a new task at the bottom of its status column.
func (s *TaskService) Create(ctx context.Context, input CreateTaskInput) (*TaskDTO, error) {
	ctx = ensureContext(ctx)

	projectID := strings.TrimSpace(input.ProjectID)
	if projectID == "" {
		return nil, apperrors.NewBadRequest("project id is required")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewBadRequest("task title is required")
	}

	status := defaultIfEmpty(strings.TrimSpace(input.Status), models.TaskStatusTodo)
	if !models.ValidTaskStatus(status) {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown task status %q", status))
	}
	priority := defaultIfEmpty(strings.TrimSpace(input.Priority), models.TaskPriorityMedium)
	if !models.ValidTaskPriority(priority) {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown task priority %q", priority))
	}
	if input.StartsAt != nil && input.EndsAt != nil && input.EndsAt.Before(*input.StartsAt) {
		return nil, apperrors.NewBadRequest("roadmap end date precedes start date")
	}

	var exists int64
	if err := s.db.WithContext(ctx).Model(&models.Project{}).
		Where("id = ?", projectID).Count(&exists).Error; err != nil {
		return nil, fmt.Errorf("task service: check project: %w", err)
	}
	if exists == 0 {
		return nil, apperrors.ErrNotFound
	}

	position, err := s.nextPosition(ctx, projectID, status)
	if err != nil {
		return nil, err
	}

	task := models.Task{
		ProjectID:   projectID,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Status:      status,
		Position:    position,
		Priority:    priority,
		Labels:      encodeJSON(input.Labels),
		DueAt:       input.DueAt,
		StartsAt:    input.StartsAt,
		EndsAt:      input.EndsAt,
	}

	if err := s.db.WithContext(ctx).Create(&task).Error; err != nil {
		return nil, fmt.Errorf("task service: create task: %w", err)
	}

	dto := mapTask(task)
	return &dto, nil
}

// Get returns a single task by id.
func (s *TaskService) Get(ctx context.Context, taskID string) (*TaskDTO, error) {
	ctx = ensureContext(ctx)

	task, err := s.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	dto := mapTask(*task)
	return &dto, nil
}

// List returns tasks matching the provided filters, ordered by column position.
func (s *TaskService) List(ctx context.Context, input ListTasksInput) ([]TaskDTO, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Order("status ASC, position ASC")
	if projectID := strings.TrimSpace(input.ProjectID); projectID != "" {
		query = query.Where("project_id = ?", projectID)
	}
	if status := strings.TrimSpace(input.Status); status != "" {
		if !models.ValidTaskStatus(status) {
			return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown task status %q", status))
		}
		query = query.Where("status = ?", status)
	}
	if input.DueBefore != nil {
		query = query.Where("due_at IS NOT NULL AND due_at <= ?", *input.DueBefore)
	}

	var rows []models.Task
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("task service: list tasks: %w", err)
	}

	return mapTasks(rows), nil
}

// Update applies the provided mutations to a task.
func (s *TaskService) Update(ctx context.Context, taskID string, input UpdateTaskInput) (*TaskDTO, error) {
	ctx = ensureContext(ctx)

	task, err := s.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, apperrors.NewBadRequest("task title cannot be empty")
		}
		updates["title"] = title
	}
	if input.Description != nil {
		updates["description"] = strings.TrimSpace(*input.Description)
	}
	if input.Priority != nil {
		priority := strings.TrimSpace(*input.Priority)
		if !models.ValidTaskPriority(priority) {
			return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown task priority %q", priority))
		}
		updates["priority"] = priority
	}
	if input.Labels != nil {
		updates["labels"] = encodeJSON(input.Labels)
	}
	switch {
	case input.ClearDueAt:
		updates["due_at"] = nil
	case input.DueAt != nil:
		updates["due_at"] = *input.DueAt
	}
	switch {
	case input.ClearDates:
		updates["starts_at"] = nil
		updates["ends_at"] = nil
	default:
		if input.StartsAt != nil {
			updates["starts_at"] = *input.StartsAt
		}
		if input.EndsAt != nil {
			updates["ends_at"] = *input.EndsAt
		}
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(task).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("task service: update task: %w", err)
		}
	}

	return s.Get(ctx, taskID)
}

// Move places the task into a status column at the requested position and
// renumbers the column so positions stay dense.
func (s *TaskService) Move(ctx context.Context, taskID, status string, position int) (*TaskDTO, error) {
	ctx = ensureContext(ctx)

	if !models.ValidTaskStatus(status) {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown task status %q", status))
	}

	task, err := s.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var siblings []models.Task
		if err := tx.
			Where("project_id = ? AND status = ? AND id <> ?", task.ProjectID, status, task.ID).
			Order("position ASC").
			Find(&siblings).Error; err != nil {
			return err
		}

		if position < 0 {
			position = 0
		}
		if position > len(siblings) {
			position = len(siblings)
		}

		ordered := make([]models.Task, 0, len(siblings)+1)
		ordered = append(ordered, siblings[:position]...)
		task.Status = status
		ordered = append(ordered, *task)
		ordered = append(ordered, siblings[position:]...)

		for i := range ordered {
			if err := tx.Model(&models.Task{}).
				Where("id = ?", ordered[i].ID).
				Updates(map[string]any{"status": status, "position": i}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("task service: move task: %w", err)
	}

	return s.Get(ctx, taskID)
}

// Board returns the project's tasks grouped into kanban columns.
func (s *TaskService) Board(ctx context.Context, projectID string) ([]BoardColumn, error) {
	ctx = ensureContext(ctx)

	tasks, err := s.List(ctx, ListTasksInput{ProjectID: projectID})
	if err != nil {
		return nil, err
	}

	byStatus := make(map[string][]TaskDTO)
	for _, task := range tasks {
		byStatus[task.Status] = append(byStatus[task.Status], task)
	}

	columns := make([]BoardColumn, 0, 4)
	for _, status := range []string{
		models.TaskStatusBacklog,
		models.TaskStatusTodo,
		models.TaskStatusInProgress,
		models.TaskStatusDone,
	} {
		columns = append(columns, BoardColumn{
			Status: status,
			Tasks:  append([]TaskDTO{}, byStatus[status]...),
		})
	}
	return columns, nil
}

// Roadmap returns tasks with roadmap dates overlapping [from, to], grouped by
// the month their scheduled window starts in.
func (s *TaskService) Roadmap(ctx context.Context, projectID string, from, to time.Time) ([]RoadmapGroup, error) {
	ctx = ensureContext(ctx)

	if to.Before(from) {
		return nil, apperrors.NewBadRequest("roadmap window end precedes start")
	}

	var rows []models.Task
	if err := s.db.WithContext(ctx).
		Where("project_id = ?", strings.TrimSpace(projectID)).
		Where("starts_at IS NOT NULL AND ends_at IS NOT NULL").
		Where("starts_at <= ? AND ends_at >= ?", to, from).
		Order("starts_at ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("task service: roadmap tasks: %w", err)
	}

	byMonth := make(map[string][]TaskDTO)
	for _, row := range rows {
		month := row.StartsAt.UTC().Format("2006-01")
		byMonth[month] = append(byMonth[month], mapTask(row))
	}

	months := make([]string, 0, len(byMonth))
	for month := range byMonth {
		months = append(months, month)
	}
	sort.Strings(months)

	groups := make([]RoadmapGroup, 0, len(months))
	for _, month := range months {
		groups = append(groups, RoadmapGroup{Month: month, Tasks: byMonth[month]})
	}
	return groups, nil
}

// Delete removes a task, its subtasks and images, and forgets cached payloads.
func (s *TaskService) Delete(ctx context.Context, taskID string) error {
	ctx = ensureContext(ctx)

	task, err := s.loadTask(ctx, taskID)
	if err != nil {
		return err
	}

	var imageIDs []string
	if err := s.db.WithContext(ctx).Model(&models.SubtaskImage{}).
		Where("subtask_id IN (?)",
			s.db.Model(&models.Subtask{}).Select("id").Where("task_id = ?", task.ID),
		).
		Pluck("id", &imageIDs).Error; err != nil {
		return fmt.Errorf("task service: collect image ids: %w", err)
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(imageIDs) > 0 {
			if err := tx.Where("id IN ?", imageIDs).Delete(&models.SubtaskImage{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("task_id = ?", task.ID).Delete(&models.Subtask{}).Error; err != nil {
			return err
		}
		return tx.Delete(task).Error
	}); err != nil {
		return fmt.Errorf("task service: delete task: %w", err)
	}

	s.engine.Forget(imageIDs...)
	return nil
}

func (s *TaskService) loadTask(ctx context.Context, taskID string) (*models.Task, error) {
	var task models.Task
	if err := s.db.WithContext(ctx).Take(&task, "id = ?", strings.TrimSpace(taskID)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("task service: load task: %w", err)
	}
	return &task, nil
}

func (s *TaskService) nextPosition(ctx context.Context, projectID, status string) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Task{}).
		Where("project_id = ? AND status = ?", projectID, status).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("task service: next position: %w", err)
	}
	return int(count), nil
}

func mapTasks(rows []models.Task) []TaskDTO {
	items := make([]TaskDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapTask(row))
	}
	return items
}

func mapTask(row models.Task) TaskDTO {
	return TaskDTO{
		ID:          row.ID,
		ProjectID:   row.ProjectID,
		Title:       row.Title,
		Description: row.Description,
		Status:      row.Status,
		Position:    row.Position,
		Priority:    row.Priority,
		Labels:      decodeStringSlice(row.Labels),
		DueAt:       row.DueAt,
		StartsAt:    row.StartsAt,
		EndsAt:      row.EndsAt,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}
