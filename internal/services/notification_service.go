package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/dcrane/planwise/internal/models"
	"github.com/dcrane/planwise/internal/notifications"
	apperrors "github.com/dcrane/planwise/pkg/errors"
	"github.com/dcrane/planwise/pkg/metrics"
)

// NotificationDTO represents the API-friendly notification payload.
type NotificationDTO struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Severity  string         `json:"severity"`
	TaskID    string         `json:"task_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	IsRead    bool           `json:"is_read"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	ReadAt    *time.Time     `json:"read_at,omitempty"`
}

// CreateNotificationInput defines attributes required to persist a notification.
type CreateNotificationInput struct {
	Type     string
	Title    string
	Message  string
	Severity string
	TaskID   string
	Metadata map[string]any
}

// ListNotificationsInput defines filters for querying notifications.
type ListNotificationsInput struct {
	UnreadOnly bool
	Limit      int
	Offset     int
}

// NotificationService manages in-app notifications.
type NotificationService struct {
	db  *gorm.DB
	hub *notifications.Hub
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(db *gorm.DB, hub *notifications.Hub) (*NotificationService, error) {
	if db == nil {
		return nil, errors.New("notification service: db is required")
	}
	return &NotificationService{db: db, hub: hub}, nil
}

// List returns notifications ordered by recency.
func (s *NotificationService) List(ctx context.Context, input ListNotificationsInput) ([]NotificationDTO, error) {
	ctx = ensureContext(ctx)

	limit := input.Limit
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	offset := input.Offset
	if offset < 0 {
		offset = 0
	}

	query := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Offset(offset)
	if input.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var rows []models.Notification
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("notification service: list notifications: %w", err)
	}

	items := make([]NotificationDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapNotification(row))
	}
	return items, nil
}

// Create registers a new notification and broadcasts it to subscribers.
func (s *NotificationService) Create(ctx context.Context, input CreateNotificationInput) (*NotificationDTO, error) {
	ctx = ensureContext(ctx)

	notificationType := strings.TrimSpace(input.Type)
	if notificationType == "" {
		return nil, errors.New("notification service: type is required")
	}

	notification := models.Notification{
		Type:     notificationType,
		Title:    strings.TrimSpace(input.Title),
		Message:  strings.TrimSpace(input.Message),
		Severity: defaultIfEmpty(strings.TrimSpace(input.Severity), "info"),
		TaskID:   strings.TrimSpace(input.TaskID),
		Metadata: encodeJSON(input.Metadata),
	}

	if err := s.db.WithContext(ctx).Create(&notification).Error; err != nil {
		return nil, fmt.Errorf("notification service: create notification: %w", err)
	}

	metrics.NotificationsCreated.WithLabelValues(notificationType).Inc()

	dto := mapNotification(notification)
	s.broadcast("notification.created", &dto)
	return &dto, nil
}

// MarkRead sets the notification read flag.
func (s *NotificationService) MarkRead(ctx context.Context, notificationID string) (*NotificationDTO, error) {
	return s.setReadState(ctx, notificationID, true)
}

// MarkUnread unsets the notification read flag.
func (s *NotificationService) MarkUnread(ctx context.Context, notificationID string) (*NotificationDTO, error) {
	return s.setReadState(ctx, notificationID, false)
}

func (s *NotificationService) setReadState(ctx context.Context, notificationID string, read bool) (*NotificationDTO, error) {
	ctx = ensureContext(ctx)

	var notification models.Notification
	if err := s.db.WithContext(ctx).
		Take(&notification, "id = ?", strings.TrimSpace(notificationID)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("notification service: load notification: %w", err)
	}

	updates := map[string]any{"is_read": read}
	var readAt *time.Time
	if read {
		now := time.Now().UTC()
		readAt = &now
		updates["read_at"] = now
	} else {
		updates["read_at"] = nil
	}

	if err := s.db.WithContext(ctx).Model(&notification).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("notification service: update read state: %w", err)
	}

	notification.IsRead = read
	notification.ReadAt = readAt
	dto := mapNotification(notification)

	s.broadcast("notification.updated", &dto)
	return &dto, nil
}

// MarkAllRead marks every unread notification as read.
func (s *NotificationService) MarkAllRead(ctx context.Context) error {
	ctx = ensureContext(ctx)

	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("is_read = ?", false).
		Updates(map[string]any{"is_read": true, "read_at": now}).Error; err != nil {
		return fmt.Errorf("notification service: mark all read: %w", err)
	}

	if s.hub != nil {
		s.hub.Broadcast(notifications.Event{Event: "notification.read_all"})
	}
	return nil
}

// Delete removes a notification.
func (s *NotificationService) Delete(ctx context.Context, notificationID string) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(notificationID)).
		Delete(&models.Notification{})
	if result.Error != nil {
		return fmt.Errorf("notification service: delete notification: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}

	if s.hub != nil {
		s.hub.Broadcast(notifications.Event{
			Event:          "notification.deleted",
			NotificationID: notificationID,
		})
	}
	return nil
}

func (s *NotificationService) broadcast(event string, dto *NotificationDTO) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(notifications.Event{
		Event:          event,
		Notification:   dto,
		NotificationID: dto.ID,
	})
}

func mapNotification(row models.Notification) NotificationDTO {
	return NotificationDTO{
		ID:        row.ID,
		Type:      row.Type,
		Title:     row.Title,
		Message:   row.Message,
		Severity:  defaultIfEmpty(row.Severity, "info"),
		TaskID:    row.TaskID,
		Metadata:  decodeJSONMap(row.Metadata),
		IsRead:    row.IsRead,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
		ReadAt:    row.ReadAt,
	}
}
