package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dcrane/planwise/internal/models"
	"github.com/dcrane/planwise/pkg/logger"
)

// DefaultDueSoonWindow is how far ahead the scanner looks for upcoming dues.
const DefaultDueSoonWindow = 24 * time.Hour

// DueScanner creates notifications for tasks approaching or past their due
// date. It is invoked from the maintenance scheduler.
type DueScanner struct {
	db            *gorm.DB
	notifications *NotificationService
	window        time.Duration
	now           func() time.Time
	log           *zap.Logger
}

// DueScannerOption customises a DueScanner.
type DueScannerOption func(*DueScanner)

// WithDueSoonWindow overrides the look-ahead window.
func WithDueSoonWindow(window time.Duration) DueScannerOption {
	return func(s *DueScanner) {
		if window > 0 {
			s.window = window
		}
	}
}

// WithClock overrides the clock, primarily for tests.
func WithClock(now func() time.Time) DueScannerOption {
	return func(s *DueScanner) {
		if now != nil {
			s.now = now
		}
	}
}

// NewDueScanner constructs a DueScanner.
func NewDueScanner(db *gorm.DB, notifications *NotificationService, opts ...DueScannerOption) (*DueScanner, error) {
	if db == nil {
		return nil, errors.New("due scanner: db is required")
	}
	if notifications == nil {
		return nil, errors.New("due scanner: notification service is required")
	}

	scanner := &DueScanner{
		db:            db,
		notifications: notifications,
		window:        DefaultDueSoonWindow,
		now:           time.Now,
		log:           logger.WithModule("due-scanner"),
	}
	for _, opt := range opts {
		opt(scanner)
	}
	return scanner, nil
}

// Scan walks tasks with due dates and creates at most one unread notification
// per (task, type). Returns how many notifications were created.
func (s *DueScanner) Scan(ctx context.Context) (int, error) {
	ctx = ensureContext(ctx)
	now := s.now().UTC()

	var tasks []models.Task
	if err := s.db.WithContext(ctx).
		Where("status <> ?", models.TaskStatusDone).
		Where("due_at IS NOT NULL AND due_at <= ?", now.Add(s.window)).
		Find(&tasks).Error; err != nil {
		return 0, fmt.Errorf("due scanner: load due tasks: %w", err)
	}

	created := 0
	for _, task := range tasks {
		notificationType := models.NotificationTaskDueSoon
		severity := "warning"
		message := fmt.Sprintf("%q is due %s", task.Title, task.DueAt.Local().Format("Jan 2 15:04"))
		if task.DueAt.Before(now) {
			notificationType = models.NotificationTaskOverdue
			severity = "error"
			message = fmt.Sprintf("%q was due %s", task.Title, task.DueAt.Local().Format("Jan 2 15:04"))
		}

		exists, err := s.hasUnread(ctx, task.ID, notificationType)
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}

		if _, err := s.notifications.Create(ctx, CreateNotificationInput{
			Type:     notificationType,
			Title:    task.Title,
			Message:  message,
			Severity: severity,
			TaskID:   task.ID,
			Metadata: map[string]any{
				"project_id": task.ProjectID,
				"due_at":     task.DueAt.UTC().Format(time.RFC3339),
			},
		}); err != nil {
			s.log.Warn("notification create failed",
				zap.String("task_id", task.ID), zap.Error(err))
			continue
		}
		created++
	}

	return created, nil
}

func (s *DueScanner) hasUnread(ctx context.Context, taskID, notificationType string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("task_id = ? AND type = ? AND is_read = ?", taskID, notificationType, false).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("due scanner: check existing notification: %w", err)
	}
	return count > 0, nil
}
