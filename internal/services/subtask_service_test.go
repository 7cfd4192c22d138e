package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dcrane/planwise/internal/imagecache"
	"github.com/dcrane/planwise/internal/models"
	apperrors "github.com/dcrane/planwise/pkg/errors"
)

func newSubtaskFixtures(t *testing.T) (*gorm.DB, imagecache.Store, *SubtaskService, *TaskDTO) {
	t.Helper()

	db, engine, cache := newTestEngine(t)

	projects, err := NewProjectService(db, engine)
	require.NoError(t, err)
	tasks, err := NewTaskService(db, engine)
	require.NoError(t, err)
	subtasks, err := NewSubtaskService(db, engine)
	require.NoError(t, err)

	project := mustCreateProject(t, projects, "Fixtures")
	task, err := tasks.Create(context.Background(), CreateTaskInput{ProjectID: project.ID, Title: "Task"})
	require.NoError(t, err)

	return db, cache, subtasks, task
}

func TestSubtaskService_CreatePlain(t *testing.T) {
	_, _, subtasks, task := newSubtaskFixtures(t)
	ctx := context.Background()

	created, err := subtasks.Create(ctx, CreateSubtaskInput{
		TaskID:      task.ID,
		Title:       "Measure twice",
		Description: "<p>No images</p>",
	})
	require.NoError(t, err)
	require.Equal(t, "<p>No images</p>", created.Description)
	require.Empty(t, created.Images)
	require.False(t, created.Done)
	require.Equal(t, 0, created.Position)
}

func TestSubtaskService_CreateExtractsImages(t *testing.T) {
	db, cache, subtasks, task := newSubtaskFixtures(t)
	ctx := context.Background()

	created, err := subtasks.Create(ctx, CreateSubtaskInput{
		TaskID:      task.ID,
		Title:       "Sketch",
		Description: `<p>See <img src="data:image/png;base64,AAAA"/></p>`,
	})
	require.NoError(t, err)

	require.Len(t, created.Images, 1)
	require.Equal(t, "image/png", created.Images[0].MimeType)
	require.Equal(t, "image-1.png", created.Images[0].Filename)
	require.Equal(t, 1, created.Images[0].Order)

	// Display form carries the payload back inline.
	require.Contains(t, created.Description, `src="data:image/png;base64,AAAA"`)

	// Stored form references the image by id only.
	var stored models.Subtask
	require.NoError(t, db.Take(&stored, "id = ?", created.ID).Error)
	require.Contains(t, stored.Description, fmt.Sprintf(`data-image-id="%s"`, created.Images[0].ID))
	require.NotContains(t, stored.Description, "base64,AAAA")

	// Extraction registered the payload for the first read.
	entry, ok := cache.Get(created.Images[0].ID)
	require.True(t, ok)
	require.Equal(t, "AAAA", entry.Base64Data)
}

func TestSubtaskService_CreateRejectsInvalidImageAtomically(t *testing.T) {
	db, _, subtasks, task := newSubtaskFixtures(t)
	ctx := context.Background()

	_, err := subtasks.Create(ctx, CreateSubtaskInput{
		TaskID:      task.ID,
		Title:       "Bad image",
		Description: `<img src="data:image/png;base64,AAAA"/><img src="data:image/tiff;base64,BBBB"/>`,
	})
	require.ErrorIs(t, err, apperrors.ErrImageTypeNotAllowed)

	// The subtask write failed as a unit: no rows, no orphaned images.
	var subtaskCount, imageCount int64
	require.NoError(t, db.Model(&models.Subtask{}).Count(&subtaskCount).Error)
	require.NoError(t, db.Model(&models.SubtaskImage{}).Count(&imageCount).Error)
	require.Zero(t, subtaskCount)
	require.Zero(t, imageCount)
}

func TestSubtaskService_UpdateDescriptionKeepsOldImages(t *testing.T) {
	db, _, subtasks, task := newSubtaskFixtures(t)
	ctx := context.Background()

	created, err := subtasks.Create(ctx, CreateSubtaskInput{
		TaskID:      task.ID,
		Title:       "Evolving",
		Description: `<img src="data:image/png;base64,AAAA"/>`,
	})
	require.NoError(t, err)
	require.Len(t, created.Images, 1)

	newDescription := `<p>replaced entirely</p>`
	updated, err := subtasks.Update(ctx, created.ID, UpdateSubtaskInput{Description: &newDescription})
	require.NoError(t, err)

	// Old image rows survive unless explicitly listed for removal.
	require.Len(t, updated.Images, 1)
	var imageCount int64
	require.NoError(t, db.Model(&models.SubtaskImage{}).Count(&imageCount).Error)
	require.EqualValues(t, 1, imageCount)
}

func TestSubtaskService_UpdateRemovesListedImages(t *testing.T) {
	db, cache, subtasks, task := newSubtaskFixtures(t)
	ctx := context.Background()

	created, err := subtasks.Create(ctx, CreateSubtaskInput{
		TaskID:      task.ID,
		Title:       "Trimmed",
		Description: `<img src="data:image/png;base64,AAAA"/>`,
	})
	require.NoError(t, err)
	imageID := created.Images[0].ID

	updated, err := subtasks.Update(ctx, created.ID, UpdateSubtaskInput{
		RemoveImageIDs: []string{imageID, "not-ours"},
	})
	require.NoError(t, err)
	require.Empty(t, updated.Images)

	var imageCount int64
	require.NoError(t, db.Model(&models.SubtaskImage{}).Count(&imageCount).Error)
	require.Zero(t, imageCount)

	_, ok := cache.Get(imageID)
	require.False(t, ok)
}

func TestSubtaskService_GetSurvivesCacheLoss(t *testing.T) {
	_, cache, subtasks, task := newSubtaskFixtures(t)
	ctx := context.Background()

	created, err := subtasks.Create(ctx, CreateSubtaskInput{
		TaskID:      task.ID,
		Title:       "Resilient",
		Description: `<img src="data:image/webp;base64,CCCC"/>`,
	})
	require.NoError(t, err)
	imageID := created.Images[0].ID

	// Simulate an external cache wipe; the database remains authoritative.
	cache.Remove(imageID)

	fetched, err := subtasks.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Contains(t, fetched.Description, `src="data:image/webp;base64,CCCC"`)

	// The read healed the cache.
	_, ok := cache.Get(imageID)
	require.True(t, ok)
}

func TestSubtaskService_ToggleAndDelete(t *testing.T) {
	db, cache, subtasks, task := newSubtaskFixtures(t)
	ctx := context.Background()

	created, err := subtasks.Create(ctx, CreateSubtaskInput{
		TaskID:      task.ID,
		Title:       "Lifecycle",
		Description: `<img src="data:image/gif;base64,DDDD"/>`,
	})
	require.NoError(t, err)
	imageID := created.Images[0].ID

	toggled, err := subtasks.Toggle(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, toggled.Done)

	require.NoError(t, subtasks.Delete(ctx, created.ID))

	_, err = subtasks.Get(ctx, created.ID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	var imageCount int64
	require.NoError(t, db.Model(&models.SubtaskImage{}).Count(&imageCount).Error)
	require.Zero(t, imageCount)

	_, ok := cache.Get(imageID)
	require.False(t, ok)
}
