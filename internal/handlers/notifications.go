package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/dcrane/planwise/internal/notifications"
	"github.com/dcrane/planwise/internal/services"
	"github.com/dcrane/planwise/pkg/response"
)

// NotificationHandler exposes HTTP endpoints for notifications.
type NotificationHandler struct {
	service *services.NotificationService
	hub     *notifications.Hub
}

// NewNotificationHandler constructs a notification handler.
func NewNotificationHandler(db *gorm.DB, hub *notifications.Hub) (*NotificationHandler, error) {
	service, err := services.NewNotificationService(db, hub)
	if err != nil {
		return nil, err
	}
	return &NotificationHandler{service: service, hub: hub}, nil
}

// List returns notifications, newest first.
func (h *NotificationHandler) List(c *gin.Context) {
	limit := parseIntQuery(c, "limit", 25)
	offset := parseIntQuery(c, "offset", 0)

	items, err := h.service.List(requestContext(c), services.ListNotificationsInput{
		UnreadOnly: parseBoolQuery(c, "unread_only"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, items, &response.Meta{
		Limit:  limit,
		Offset: offset,
		Total:  int64(len(items)),
	})
}

// MarkRead toggles a notification to read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	h.updateReadState(c, true)
}

// MarkUnread toggles a notification to unread.
func (h *NotificationHandler) MarkUnread(c *gin.Context) {
	h.updateReadState(c, false)
}

func (h *NotificationHandler) updateReadState(c *gin.Context, read bool) {
	id := strings.TrimSpace(c.Param("id"))

	var dto *services.NotificationDTO
	var err error
	if read {
		dto, err = h.service.MarkRead(requestContext(c), id)
	} else {
		dto, err = h.service.MarkUnread(requestContext(c), id)
	}

	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, dto)
}

// MarkAllRead marks all notifications read.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	if err := h.service.MarkAllRead(requestContext(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"updated": true})
}

// Delete removes a notification.
func (h *NotificationHandler) Delete(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if err := h.service.Delete(requestContext(c), id); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// Stream upgrades the connection to a WebSocket for notification events.
func (h *NotificationHandler) Stream(c *gin.Context) {
	h.hub.Serve(c.Writer, c.Request)
}
