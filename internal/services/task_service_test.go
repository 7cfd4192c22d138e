package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dcrane/planwise/internal/models"
	apperrors "github.com/dcrane/planwise/pkg/errors"
)

func newTaskFixtures(t *testing.T) (*ProjectService, *TaskService, *ProjectDTO) {
	t.Helper()

	db, engine, _ := newTestEngine(t)
	projects, err := NewProjectService(db, engine)
	require.NoError(t, err)
	tasks, err := NewTaskService(db, engine)
	require.NoError(t, err)

	project := mustCreateProject(t, projects, "Workbench")
	return projects, tasks, project
}

func TestTaskService_CreateDefaultsAndPositions(t *testing.T) {
	_, tasks, project := newTaskFixtures(t)
	ctx := context.Background()

	first, err := tasks.Create(ctx, CreateTaskInput{
		ProjectID: project.ID,
		Title:     "First",
		Labels:    []string{"woodwork", "weekend"},
	})
	require.NoError(t, err)
	require.Equal(t, models.TaskStatusTodo, first.Status)
	require.Equal(t, models.TaskPriorityMedium, first.Priority)
	require.Equal(t, 0, first.Position)
	require.Equal(t, []string{"woodwork", "weekend"}, first.Labels)

	second, err := tasks.Create(ctx, CreateTaskInput{ProjectID: project.ID, Title: "Second"})
	require.NoError(t, err)
	require.Equal(t, 1, second.Position)
}

func TestTaskService_CreateValidation(t *testing.T) {
	_, tasks, project := newTaskFixtures(t)
	ctx := context.Background()

	_, err := tasks.Create(ctx, CreateTaskInput{ProjectID: project.ID, Title: ""})
	require.Error(t, err)

	_, err = tasks.Create(ctx, CreateTaskInput{ProjectID: project.ID, Title: "X", Status: "blocked"})
	require.Error(t, err)

	_, err = tasks.Create(ctx, CreateTaskInput{ProjectID: "missing", Title: "X"})
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestTaskService_MoveRenumbersColumn(t *testing.T) {
	_, tasks, project := newTaskFixtures(t)
	ctx := context.Background()

	a, err := tasks.Create(ctx, CreateTaskInput{ProjectID: project.ID, Title: "A"})
	require.NoError(t, err)
	b, err := tasks.Create(ctx, CreateTaskInput{ProjectID: project.ID, Title: "B"})
	require.NoError(t, err)
	c, err := tasks.Create(ctx, CreateTaskInput{ProjectID: project.ID, Title: "C"})
	require.NoError(t, err)

	// Move C to the top of in_progress, then B after it.
	moved, err := tasks.Move(ctx, c.ID, models.TaskStatusInProgress, 0)
	require.NoError(t, err)
	require.Equal(t, models.TaskStatusInProgress, moved.Status)
	require.Equal(t, 0, moved.Position)

	_, err = tasks.Move(ctx, b.ID, models.TaskStatusInProgress, 1)
	require.NoError(t, err)

	board, err := tasks.Board(ctx, project.ID)
	require.NoError(t, err)

	byStatus := map[string][]TaskDTO{}
	for _, column := range board {
		byStatus[column.Status] = column.Tasks
	}

	require.Len(t, byStatus[models.TaskStatusTodo], 1)
	require.Equal(t, a.ID, byStatus[models.TaskStatusTodo][0].ID)

	inProgress := byStatus[models.TaskStatusInProgress]
	require.Len(t, inProgress, 2)
	require.Equal(t, c.ID, inProgress[0].ID)
	require.Equal(t, b.ID, inProgress[1].ID)
	require.Equal(t, 0, inProgress[0].Position)
	require.Equal(t, 1, inProgress[1].Position)
}

func TestTaskService_BoardAlwaysHasAllColumns(t *testing.T) {
	_, tasks, project := newTaskFixtures(t)

	board, err := tasks.Board(context.Background(), project.ID)
	require.NoError(t, err)
	require.Len(t, board, 4)
	for _, column := range board {
		require.Empty(t, column.Tasks)
	}
}

func TestTaskService_RoadmapGroupsByMonth(t *testing.T) {
	_, tasks, project := newTaskFixtures(t)
	ctx := context.Background()

	date := func(y int, m time.Month, d int) *time.Time {
		ts := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		return &ts
	}

	_, err := tasks.Create(ctx, CreateTaskInput{
		ProjectID: project.ID, Title: "August work",
		StartsAt: date(2026, time.August, 3), EndsAt: date(2026, time.August, 20),
	})
	require.NoError(t, err)
	_, err = tasks.Create(ctx, CreateTaskInput{
		ProjectID: project.ID, Title: "September work",
		StartsAt: date(2026, time.September, 1), EndsAt: date(2026, time.September, 15),
	})
	require.NoError(t, err)
	// No roadmap dates: never appears.
	_, err = tasks.Create(ctx, CreateTaskInput{ProjectID: project.ID, Title: "Unscheduled"})
	require.NoError(t, err)

	groups, err := tasks.Roadmap(ctx, project.ID,
		time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, time.September, 30, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, groups, 2)
	require.Equal(t, "2026-08", groups[0].Month)
	require.Equal(t, "2026-09", groups[1].Month)
	require.Len(t, groups[0].Tasks, 1)
	require.Equal(t, "August work", groups[0].Tasks[0].Title)

	// A window past both tasks returns nothing.
	empty, err := tasks.Roadmap(ctx, project.ID,
		time.Date(2026, time.November, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, time.December, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestTaskService_UpdateDueDate(t *testing.T) {
	_, tasks, project := newTaskFixtures(t)
	ctx := context.Background()

	task, err := tasks.Create(ctx, CreateTaskInput{ProjectID: project.ID, Title: "Due"})
	require.NoError(t, err)

	due := time.Date(2026, time.September, 4, 17, 0, 0, 0, time.UTC)
	updated, err := tasks.Update(ctx, task.ID, UpdateTaskInput{DueAt: &due})
	require.NoError(t, err)
	require.NotNil(t, updated.DueAt)
	require.True(t, updated.DueAt.Equal(due))

	cleared, err := tasks.Update(ctx, task.ID, UpdateTaskInput{ClearDueAt: true})
	require.NoError(t, err)
	require.Nil(t, cleared.DueAt)
}
