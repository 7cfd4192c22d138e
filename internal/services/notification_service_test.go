package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/dcrane/planwise/pkg/errors"
)

func TestNotificationService_CreateAndList(t *testing.T) {
	db, _, _ := newTestEngine(t)
	svc, err := NewNotificationService(db, nil)
	require.NoError(t, err)

	ctx := context.Background()

	created, err := svc.Create(ctx, CreateNotificationInput{
		Type:    "task.due_soon",
		Title:   "Fix fence",
		Message: "Due tomorrow",
		Metadata: map[string]any{
			"project_id": "p1",
		},
	})
	require.NoError(t, err)
	require.Equal(t, "info", created.Severity)
	require.False(t, created.IsRead)
	require.Equal(t, "p1", created.Metadata["project_id"])

	items, err := svc.List(ctx, ListNotificationsInput{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, created.ID, items[0].ID)
}

func TestNotificationService_ReadStateRoundTrip(t *testing.T) {
	db, _, _ := newTestEngine(t)
	svc, err := NewNotificationService(db, nil)
	require.NoError(t, err)

	ctx := context.Background()

	created, err := svc.Create(ctx, CreateNotificationInput{Type: "task.overdue", Title: "Late"})
	require.NoError(t, err)

	read, err := svc.MarkRead(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, read.IsRead)
	require.NotNil(t, read.ReadAt)

	unreadOnly, err := svc.List(ctx, ListNotificationsInput{UnreadOnly: true})
	require.NoError(t, err)
	require.Empty(t, unreadOnly)

	unread, err := svc.MarkUnread(ctx, created.ID)
	require.NoError(t, err)
	require.False(t, unread.IsRead)
	require.Nil(t, unread.ReadAt)
}

func TestNotificationService_MarkAllRead(t *testing.T) {
	db, _, _ := newTestEngine(t)
	svc, err := NewNotificationService(db, nil)
	require.NoError(t, err)

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, CreateNotificationInput{Type: "task.due_soon", Title: "N"})
		require.NoError(t, err)
	}

	require.NoError(t, svc.MarkAllRead(ctx))

	unread, err := svc.List(ctx, ListNotificationsInput{UnreadOnly: true})
	require.NoError(t, err)
	require.Empty(t, unread)
}

func TestNotificationService_DeleteMissing(t *testing.T) {
	db, _, _ := newTestEngine(t)
	svc, err := NewNotificationService(db, nil)
	require.NoError(t, err)

	err = svc.Delete(context.Background(), "missing")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}
