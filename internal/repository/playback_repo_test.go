package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castarr/castarr/internal/models"
)

func TestProgressionRepo_Upsert(t *testing.T) {
	db := setupTestDB(t, &models.BucketProgression{})
	repo := NewProgressionRepository(db)
	ctx := context.Background()

	channelID := models.NewULID()
	bucketID := models.NewULID()
	mediaA := models.NewULID()
	mediaB := models.NewULID()

	got, err := repo.Get(ctx, channelID, bucketID)
	require.NoError(t, err)
	assert.Nil(t, got, "no progression yet")

	require.NoError(t, repo.Upsert(ctx, &models.BucketProgression{
		ChannelID:         channelID,
		BucketID:          bucketID,
		LastPlayedMediaID: mediaA,
		Position:          2,
	}))

	got, err = repo.Get(ctx, channelID, bucketID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.Position)
	assert.Equal(t, mediaA, got.LastPlayedMediaID)

	// Second upsert for the same pair updates in place.
	require.NoError(t, repo.Upsert(ctx, &models.BucketProgression{
		ChannelID:         channelID,
		BucketID:          bucketID,
		LastPlayedMediaID: mediaB,
		Position:          3,
	}))

	got, err = repo.Get(ctx, channelID, bucketID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 3, got.Position)
	assert.Equal(t, mediaB, got.LastPlayedMediaID)
}

func TestScheduleTimeRepo_InitializeIsIdempotent(t *testing.T) {
	db := setupTestDB(t, &models.ScheduleStartTime{})
	repo := NewScheduleTimeRepository(db)
	ctx := context.Background()

	channelID := models.NewULID()

	has, err := repo.Has(ctx, channelID)
	require.NoError(t, err)
	assert.False(t, has)

	epoch := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, repo.Initialize(ctx, channelID, epoch))

	has, err = repo.Has(ctx, channelID)
	require.NoError(t, err)
	assert.True(t, has)

	// A later Initialize must not advance the anchor.
	require.NoError(t, repo.Initialize(ctx, channelID, time.Now()))

	got, err := repo.Get(ctx, channelID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.WithinDuration(t, epoch, got.StartTime, time.Second)
}

func TestScheduleTimeRepo_SetOverwrites(t *testing.T) {
	db := setupTestDB(t, &models.ScheduleStartTime{})
	repo := NewScheduleTimeRepository(db)
	ctx := context.Background()

	channelID := models.NewULID()
	first := time.Now().Add(-2 * time.Hour).Truncate(time.Second)
	second := time.Now().Add(-time.Hour).Truncate(time.Second)

	require.NoError(t, repo.Set(ctx, channelID, first))
	require.NoError(t, repo.Set(ctx, channelID, second))

	got, err := repo.Get(ctx, channelID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.WithinDuration(t, second, got.StartTime, time.Second)
}

func TestPlaybackSessionRepo_CloseAndPrune(t *testing.T) {
	db := setupTestDB(t, &models.PlaybackSession{})
	repo := NewPlaybackSessionRepository(db)
	ctx := context.Background()

	channelID := models.NewULID()

	require.NoError(t, repo.Create(ctx, &models.PlaybackSession{
		ChannelID: channelID,
		StartedAt: time.Now().Add(-time.Hour),
		Type:      models.SessionTypeStarted,
		Trigger:   models.SessionTriggerAutomatic,
	}))

	require.NoError(t, repo.CloseOpen(ctx, channelID, time.Now().Add(-30*time.Minute)))

	var open int64
	require.NoError(t, db.Model(&models.PlaybackSession{}).
		Where("ended_at IS NULL").Count(&open).Error)
	assert.EqualValues(t, 0, open)

	n, err := repo.DeleteEndedBefore(ctx, time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestSettingRepo_GetSet(t *testing.T) {
	db := setupTestDB(t, &models.Setting{})
	repo := NewSettingRepository(db)
	ctx := context.Background()

	val, err := repo.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, "", val)

	require.NoError(t, repo.Set(ctx, "epg.salt", "1"))
	require.NoError(t, repo.Set(ctx, "epg.salt", "2"))

	val, err = repo.Get(ctx, "epg.salt")
	require.NoError(t, err)
	assert.Equal(t, "2", val)
}
