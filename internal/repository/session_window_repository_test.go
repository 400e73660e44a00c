package repository

import (
	"context"
	"testing"
	"time"

	"github.com/lamallamadel/outbound-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionWindowRepository_UpsertInbound(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewSessionWindowRepository(db)
	ctx := context.Background()

	t.Run("first inbound opens the window", func(t *testing.T) {
		at := time.Now()
		w, err := repo.UpsertInbound(ctx, "org-a", "+15550001111", at)
		require.NoError(t, err)
		assert.WithinDuration(t, at.Add(model.SessionWindowDuration), w.WindowExpiresAt, time.Second)
		assert.True(t, w.WithinWindowAt(at))
	})

	t.Run("later inbound refreshes in place", func(t *testing.T) {
		later := time.Now().Add(2 * time.Hour)
		w, err := repo.UpsertInbound(ctx, "org-a", "+15550001111", later)
		require.NoError(t, err)
		assert.WithinDuration(t, later.Add(model.SessionWindowDuration), w.WindowExpiresAt, time.Second)

		all, err := repo.ListRecent(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, all, 1, "one row per (org, phone)")
	})

	t.Run("windows are isolated per org", func(t *testing.T) {
		_, err := repo.UpsertInbound(ctx, "org-b", "+15550001111", time.Now())
		require.NoError(t, err)

		wa, err := repo.Get(ctx, "org-a", "+15550001111")
		require.NoError(t, err)
		wb, err := repo.Get(ctx, "org-b", "+15550001111")
		require.NoError(t, err)
		assert.NotEqual(t, wa.ID, wb.ID)
	})
}

func TestSessionWindowRepository_TouchOutbound(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewSessionWindowRepository(db)
	ctx := context.Background()

	opened := time.Now()
	w, err := repo.UpsertInbound(ctx, "org-a", "+15550001111", opened)
	require.NoError(t, err)

	t.Run("records traffic without extending the window", func(t *testing.T) {
		at := opened.Add(time.Hour)
		require.NoError(t, repo.TouchOutbound(ctx, "org-a", "+15550001111", at))

		got, err := repo.Get(ctx, "org-a", "+15550001111")
		require.NoError(t, err)
		require.NotNil(t, got.LastOutboundMessageAt)
		assert.Equal(t, w.WindowExpiresAt.Unix(), got.WindowExpiresAt.Unix())
	})

	t.Run("no-op without an open window", func(t *testing.T) {
		require.NoError(t, repo.TouchOutbound(ctx, "org-a", "+15559999999", time.Now()))

		got, err := repo.Get(ctx, "org-a", "+15559999999")
		require.NoError(t, err)
		assert.Nil(t, got, "outbound traffic cannot open a window")
	})
}

func TestSessionWindow_SecondsRemaining(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewSessionWindowRepository(db)
	ctx := context.Background()

	opened := time.Now().Add(-23 * time.Hour)
	w, err := repo.UpsertInbound(ctx, "org-a", "+15550001111", opened)
	require.NoError(t, err)

	now := time.Now()
	remaining := w.SecondsRemainingAt(now)
	assert.InDelta(t, time.Hour.Seconds(), float64(remaining), 5)

	assert.Zero(t, w.SecondsRemainingAt(now.Add(2*time.Hour)))
}
