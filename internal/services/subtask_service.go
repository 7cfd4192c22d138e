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

// SubtaskImageDTO describes image metadata exposed alongside a subtask.
type SubtaskImageDTO struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Order    int    `json:"order"`
}

// SubtaskDTO represents the API-friendly subtask payload. Description holds
// display HTML with inline images already resolved to data URLs.
type SubtaskDTO struct {
	ID          string            `json:"id"`
	TaskID      string            `json:"task_id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Done        bool              `json:"done"`
	Position    int               `json:"position"`
	Images      []SubtaskImageDTO `json:"images,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// CreateSubtaskInput defines attributes required to create a subtask.
type CreateSubtaskInput struct {
	TaskID      string
	Title       string
	Description string
}

// UpdateSubtaskInput carries optional subtask mutations. RemoveImageIDs lists
// previously extracted images the caller wants deleted; editing the
// description alone never deletes existing image rows.
type UpdateSubtaskInput struct {
	Title          *string
	Description    *string
	Done           *bool
	Position       *int
	RemoveImageIDs []string
}

// SubtaskService manages subtasks and drives the inline-image substitution
// engine on their rich-text descriptions.
type SubtaskService struct {
	db     *gorm.DB
	engine *images.Engine
}

// NewSubtaskService constructs a SubtaskService.
func NewSubtaskService(db *gorm.DB, engine *images.Engine) (*SubtaskService, error) {
	if db == nil {
		return nil, errors.New("subtask service: db is required")
	}
	if engine == nil {
		return nil, errors.New("subtask service: image engine is required")
	}
	return &SubtaskService{db: db, engine: engine}, nil
}

// Create persists a subtask. Embedded data-URL images in the description are
// validated up front, extracted into rows inside the same transaction as the
// subtask, and only registered in the payload cache once the transaction has
// committed.
func (s *SubtaskService) Create(ctx context.Context, input CreateSubtaskInput) (*SubtaskDTO, error) {
	ctx = ensureContext(ctx)

	taskID := strings.TrimSpace(input.TaskID)
	if taskID == "" {
		return nil, apperrors.NewBadRequest("task id is required")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewBadRequest("subtask title is required")
	}

	var exists int64
	if err := s.db.WithContext(ctx).Model(&models.Task{}).
		Where("id = ?", taskID).Count(&exists).Error; err != nil {
		return nil, fmt.Errorf("subtask service: check task: %w", err)
	}
	if exists == 0 {
		return nil, apperrors.ErrNotFound
	}

	var position int64
	if err := s.db.WithContext(ctx).Model(&models.Subtask{}).
		Where("task_id = ?", taskID).Count(&position).Error; err != nil {
		return nil, fmt.Errorf("subtask service: next position: %w", err)
	}

	subtask := models.Subtask{
		TaskID:      taskID,
		Title:       title,
		Description: input.Description,
		Position:    int(position),
	}

	var created []models.SubtaskImage
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&subtask).Error; err != nil {
			return fmt.Errorf("subtask service: create subtask: %w", err)
		}

		rewritten, rows, err := s.engine.ExtractAndRegister(ctx, tx, subtask.ID, input.Description)
		if err != nil {
			return err
		}
		created = rows

		if rewritten != subtask.Description {
			subtask.Description = rewritten
			if err := tx.Model(&subtask).Update("description", rewritten).Error; err != nil {
				return fmt.Errorf("subtask service: store rewritten description: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.engine.RegisterInCache(created)
	return s.Get(ctx, subtask.ID)
}

// Get returns a subtask with its description resolved for display.
func (s *SubtaskService) Get(ctx context.Context, subtaskID string) (*SubtaskDTO, error) {
	ctx = ensureContext(ctx)

	subtask, err := s.loadSubtask(ctx, subtaskID)
	if err != nil {
		return nil, err
	}

	metas, err := s.imageMetadata(ctx, subtask.ID)
	if err != nil {
		return nil, err
	}

	dto := s.mapSubtask(ctx, *subtask, metas)
	return &dto, nil
}

// ListForTask returns a task's subtasks ordered by position, descriptions
// resolved for display.
func (s *SubtaskService) ListForTask(ctx context.Context, taskID string) ([]SubtaskDTO, error) {
	ctx = ensureContext(ctx)

	var rows []models.Subtask
	if err := s.db.WithContext(ctx).
		Where("task_id = ?", strings.TrimSpace(taskID)).
		Order("position ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("subtask service: list subtasks: %w", err)
	}

	items := make([]SubtaskDTO, 0, len(rows))
	for _, row := range rows {
		metas, err := s.imageMetadata(ctx, row.ID)
		if err != nil {
			return nil, err
		}
		items = append(items, s.mapSubtask(ctx, row, metas))
	}
	return items, nil
}

// Update applies the provided mutations. A new description runs through the
// extraction path like Create; images listed in RemoveImageIDs are deleted
// from both the database and the cache.
func (s *SubtaskService) Update(ctx context.Context, subtaskID string, input UpdateSubtaskInput) (*SubtaskDTO, error) {
	ctx = ensureContext(ctx)

	subtask, err := s.loadSubtask(ctx, subtaskID)
	if err != nil {
		return nil, err
	}

	removeIDs, err := s.ownedImageIDs(ctx, subtask.ID, input.RemoveImageIDs)
	if err != nil {
		return nil, err
	}

	var created []models.SubtaskImage
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{}
		if input.Title != nil {
			title := strings.TrimSpace(*input.Title)
			if title == "" {
				return apperrors.NewBadRequest("subtask title cannot be empty")
			}
			updates["title"] = title
		}
		if input.Done != nil {
			updates["done"] = *input.Done
		}
		if input.Position != nil {
			updates["position"] = *input.Position
		}

		if input.Description != nil {
			rewritten, rows, err := s.engine.ExtractAndRegister(ctx, tx, subtask.ID, *input.Description)
			if err != nil {
				return err
			}
			created = rows
			updates["description"] = rewritten
		}

		if len(removeIDs) > 0 {
			if err := tx.Where("id IN ?", removeIDs).Delete(&models.SubtaskImage{}).Error; err != nil {
				return fmt.Errorf("subtask service: delete images: %w", err)
			}
		}

		if len(updates) > 0 {
			if err := tx.Model(subtask).Updates(updates).Error; err != nil {
				return fmt.Errorf("subtask service: update subtask: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.engine.RegisterInCache(created)
	s.engine.Forget(removeIDs...)
	return s.Get(ctx, subtaskID)
}

// Toggle flips the done flag.
func (s *SubtaskService) Toggle(ctx context.Context, subtaskID string) (*SubtaskDTO, error) {
	ctx = ensureContext(ctx)

	subtask, err := s.loadSubtask(ctx, subtaskID)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(subtask).
		Update("done", !subtask.Done).Error; err != nil {
		return nil, fmt.Errorf("subtask service: toggle subtask: %w", err)
	}

	return s.Get(ctx, subtaskID)
}

// Delete removes a subtask and its images, forgetting cached payloads.
func (s *SubtaskService) Delete(ctx context.Context, subtaskID string) error {
	ctx = ensureContext(ctx)

	subtask, err := s.loadSubtask(ctx, subtaskID)
	if err != nil {
		return err
	}

	var imageIDs []string
	if err := s.db.WithContext(ctx).Model(&models.SubtaskImage{}).
		Where("subtask_id = ?", subtask.ID).
		Pluck("id", &imageIDs).Error; err != nil {
		return fmt.Errorf("subtask service: collect image ids: %w", err)
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("subtask_id = ?", subtask.ID).Delete(&models.SubtaskImage{}).Error; err != nil {
			return err
		}
		return tx.Delete(subtask).Error
	}); err != nil {
		return fmt.Errorf("subtask service: delete subtask: %w", err)
	}

	s.engine.Forget(imageIDs...)
	return nil
}

// ImagePayload returns one image's payload and mime type, via the cache.
func (s *SubtaskService) ImagePayload(ctx context.Context, imageID string) (*models.SubtaskImage, error) {
	ctx = ensureContext(ctx)

	var row models.SubtaskImage
	if err := s.db.WithContext(ctx).Take(&row, "id = ?", strings.TrimSpace(imageID)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("subtask service: load image: %w", err)
	}
	return &row, nil
}

func (s *SubtaskService) loadSubtask(ctx context.Context, subtaskID string) (*models.Subtask, error) {
	var subtask models.Subtask
	if err := s.db.WithContext(ctx).Take(&subtask, "id = ?", strings.TrimSpace(subtaskID)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("subtask service: load subtask: %w", err)
	}
	return &subtask, nil
}

// imageMetadata loads image rows without payloads; the read path resolves
// payloads through the cache instead.
func (s *SubtaskService) imageMetadata(ctx context.Context, subtaskID string) ([]models.SubtaskImage, error) {
	var metas []models.SubtaskImage
	if err := s.db.WithContext(ctx).
		Omit("base64_data").
		Where("subtask_id = ?", subtaskID).
		Order("display_order ASC").
		Find(&metas).Error; err != nil {
		return nil, fmt.Errorf("subtask service: load image metadata: %w", err)
	}
	return metas, nil
}

// ownedImageIDs filters the requested removals down to ids actually owned by
// the subtask, so a stray id cannot delete another subtask's image.
func (s *SubtaskService) ownedImageIDs(ctx context.Context, subtaskID string, requested []string) ([]string, error) {
	if len(requested) == 0 {
		return nil, nil
	}

	var ids []string
	if err := s.db.WithContext(ctx).Model(&models.SubtaskImage{}).
		Where("subtask_id = ? AND id IN ?", subtaskID, requested).
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("subtask service: resolve image ids: %w", err)
	}
	return ids, nil
}

func (s *SubtaskService) mapSubtask(ctx context.Context, row models.Subtask, metas []models.SubtaskImage) SubtaskDTO {
	imageDTOs := make([]SubtaskImageDTO, 0, len(metas))
	for _, meta := range metas {
		imageDTOs = append(imageDTOs, SubtaskImageDTO{
			ID:       meta.ID,
			Filename: meta.Filename,
			MimeType: meta.MimeType,
			Order:    meta.Order,
		})
	}

	return SubtaskDTO{
		ID:          row.ID,
		TaskID:      row.TaskID,
		Title:       row.Title,
		Description: s.engine.ResolveForDisplay(ctx, row.Description, metas),
		Done:        row.Done,
		Position:    row.Position,
		Images:      imageDTOs,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}
