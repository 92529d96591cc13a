package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/01moynul/taptosell-orders/internal/apperr"
	"github.com/01moynul/taptosell-orders/internal/models"
)

func TestNotificationRepo(t *testing.T) {
	ctx := context.Background()
	repo := New().Notifications()
	t0 := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	for i, ev := range []string{"ev-1", "ev-2", "ev-3"} {
		created, err := repo.Add(ctx, &models.Notification{UserID: 7, EventID: ev, Message: ev, CreatedAt: t0.Add(time.Duration(i) * time.Minute)})
		require.NoError(t, err)
		assert.True(t, created)
	}
	created, err := repo.Add(ctx, &models.Notification{UserID: 7, EventID: "ev-2", Message: "again"})
	require.NoError(t, err)
	assert.False(t, created, "same event for the same user is recorded once")

	created, err = repo.Add(ctx, &models.Notification{UserID: 8, EventID: "ev-2", Message: "other user"})
	require.NoError(t, err)
	assert.True(t, created)

	require.NoError(t, repo.MarkRead(ctx, 7, 3))
	assert.ErrorIs(t, repo.MarkRead(ctx, 8, 1), apperr.ErrNotificationNotFound)

	list, err := repo.ListForUser(ctx, 7, 50)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"ev-2", "ev-1", "ev-3"}, []string{list[0].EventID, list[1].EventID, list[2].EventID})
	assert.True(t, list[2].IsRead)

	list, err = repo.ListForUser(ctx, 7, 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
