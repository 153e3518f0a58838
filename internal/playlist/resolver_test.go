package playlist

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/castarr/castarr/internal/models"
	"github.com/castarr/castarr/internal/repository"
)

type fixture struct {
	db       *gorm.DB
	resolver *Resolver
	buckets  repository.BucketRepository
	blocks   repository.ScheduleBlockRepository
	channel  *models.Channel
}

func setup(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.MediaFile{}, &models.Bucket{}, &models.BucketMedia{},
		&models.ChannelBucket{}, &models.ScheduleBlock{}, &models.BucketProgression{},
	))

	buckets := repository.NewBucketRepository(db)
	blocks := repository.NewScheduleBlockRepository(db)
	progressions := repository.NewProgressionRepository(db)

	return &fixture{
		db:       db,
		resolver: NewResolver(buckets, blocks, progressions, nil),
		buckets:  buckets,
		blocks:   blocks,
		channel:  &models.Channel{BaseModel: models.BaseModel{ID: models.NewULID()}},
	}
}

// fillBucket creates a bucket with n media files and returns it with the ids
// in insertion order.
func (f *fixture) fillBucket(t *testing.T, name string, n int) (*models.Bucket, []models.ULID) {
	t.Helper()
	ctx := context.Background()

	bucket := &models.Bucket{Name: name, Type: models.BucketTypeGlobal}
	require.NoError(t, f.buckets.Create(ctx, bucket))

	var ids []models.ULID
	for i := 0; i < n; i++ {
		mf := &models.MediaFile{
			Path:     fmt.Sprintf("/media/%s/ep%02d.mkv", name, i),
			Duration: 600,
		}
		require.NoError(t, f.db.Create(mf).Error)
		require.NoError(t, f.buckets.AddMedia(ctx, bucket.ID, mf.ID))
		ids = append(ids, mf.ID)
	}
	return bucket, ids
}

func TestResolve_StaticUnionDedup(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	high, highIDs := f.fillBucket(t, "high", 2)
	low, lowIDs := f.fillBucket(t, "low", 2)

	// The first file of the low bucket is also in the high bucket.
	require.NoError(t, f.buckets.AddMedia(ctx, high.ID, lowIDs[0]))

	require.NoError(t, f.buckets.AssignToChannel(ctx, f.channel.ID, low.ID, 1))
	require.NoError(t, f.buckets.AssignToChannel(ctx, f.channel.ID, high.ID, 5))

	res, err := f.resolver.Resolve(ctx, f.channel, time.Now())
	require.NoError(t, err)
	require.Nil(t, res.Block)

	var got []models.ULID
	for _, m := range res.Media {
		got = append(got, m.ID)
	}
	// High-priority bucket first, duplicate kept at its first occurrence.
	assert.Equal(t, []models.ULID{highIDs[0], highIDs[1], lowIDs[0], lowIDs[1]}, got)
}

func TestResolve_EmptyIsNoMedia(t *testing.T) {
	f := setup(t)

	_, err := f.resolver.Resolve(context.Background(), f.channel, time.Now())
	assert.ErrorIs(t, err, models.ErrNoMediaAvailable)
}

func TestResolve_DynamicActiveBlockWins(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.channel.UseDynamicPlaylist = true

	staticBucket, _ := f.fillBucket(t, "static", 1)
	require.NoError(t, f.buckets.AssignToChannel(ctx, f.channel.ID, staticBucket.ID, 1))

	blockBucket, blockIDs := f.fillBucket(t, "morning", 3)
	require.NoError(t, f.blocks.Create(ctx, &models.ScheduleBlock{
		ChannelID:    f.channel.ID,
		BucketID:     blockBucket.ID,
		StartTime:    "09:00:00",
		EndTime:      "10:00:00",
		PlaybackMode: models.PlaybackModeSequential,
		Priority:     1,
	}))

	at := time.Date(2026, 8, 24, 9, 30, 0, 0, time.Local)
	res, err := f.resolver.Resolve(ctx, f.channel, at)
	require.NoError(t, err)
	require.NotNil(t, res.Block)
	require.Len(t, res.Media, 3)
	assert.Equal(t, blockIDs[0], res.Media[0].ID)

	// Outside the window the static list takes over.
	res, err = f.resolver.Resolve(ctx, f.channel, at.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Nil(t, res.Block)
	assert.Len(t, res.Media, 1)
}

func TestResolve_HighestPriorityBlockWins(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.channel.UseDynamicPlaylist = true

	bucketA, _ := f.fillBucket(t, "a", 1)
	bucketB, bIDs := f.fillBucket(t, "b", 1)

	require.NoError(t, f.blocks.Create(ctx, &models.ScheduleBlock{
		ChannelID: f.channel.ID, BucketID: bucketA.ID,
		StartTime: "09:00:00", EndTime: "10:00:00",
		PlaybackMode: models.PlaybackModeSequential, Priority: 1,
	}))
	require.NoError(t, f.blocks.Create(ctx, &models.ScheduleBlock{
		ChannelID: f.channel.ID, BucketID: bucketB.ID,
		StartTime: "09:30:00", EndTime: "10:30:00",
		PlaybackMode: models.PlaybackModeSequential, Priority: 2,
	}))

	at := time.Date(2026, 8, 24, 9, 45, 0, 0, time.Local)
	res, err := f.resolver.Resolve(ctx, f.channel, at)
	require.NoError(t, err)
	require.NotNil(t, res.Block)
	assert.Equal(t, bucketB.ID, res.Block.BucketID)
	assert.Equal(t, bIDs[0], res.Media[0].ID)
}

func TestResolve_SequentialRotation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.channel.UseDynamicPlaylist = true

	bucket, ids := f.fillBucket(t, "seq", 3)
	require.NoError(t, f.blocks.Create(ctx, &models.ScheduleBlock{
		ChannelID: f.channel.ID, BucketID: bucket.ID,
		StartTime: "00:00:00", EndTime: "23:59:59",
		PlaybackMode: models.PlaybackModeSequential, Priority: 1,
	}))

	at := time.Date(2026, 8, 24, 12, 0, 0, 0, time.Local)

	// No progression yet: natural order.
	res, err := f.resolver.Resolve(ctx, f.channel, at)
	require.NoError(t, err)
	assert.Equal(t, ids[0], res.Media[0].ID)

	// After finishing the second file, the rotation starts at the third.
	require.NoError(t, f.resolver.RecordProgress(ctx, f.channel.ID, bucket.ID, res.Media, ids[1]))

	res, err = f.resolver.Resolve(ctx, f.channel, at)
	require.NoError(t, err)
	require.Len(t, res.Media, 3)
	assert.Equal(t, ids[2], res.Media[0].ID)
	assert.Equal(t, ids[0], res.Media[1].ID)
	assert.Equal(t, ids[1], res.Media[2].ID)
}

func TestResolve_RandomIsStableWithinADay(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.channel.UseDynamicPlaylist = true

	bucket, _ := f.fillBucket(t, "rnd", 8)
	require.NoError(t, f.blocks.Create(ctx, &models.ScheduleBlock{
		ChannelID: f.channel.ID, BucketID: bucket.ID,
		StartTime: "00:00:00", EndTime: "23:59:59",
		PlaybackMode: models.PlaybackModeRandom, Priority: 1,
	}))

	morning := time.Date(2026, 8, 24, 8, 0, 0, 0, time.Local)
	evening := time.Date(2026, 8, 24, 20, 0, 0, 0, time.Local)
	tomorrow := morning.AddDate(0, 0, 1)

	a, err := f.resolver.Resolve(ctx, f.channel, morning)
	require.NoError(t, err)
	b, err := f.resolver.Resolve(ctx, f.channel, evening)
	require.NoError(t, err)
	c, err := f.resolver.Resolve(ctx, f.channel, tomorrow)
	require.NoError(t, err)

	assert.Equal(t, mediaIDs(a.Media), mediaIDs(b.Media), "same day, same order")
	assert.NotEqual(t, mediaIDs(a.Media), mediaIDs(c.Media), "different day, different order")
}

func mediaIDs(media []*models.MediaFile) []models.ULID {
	ids := make([]models.ULID, len(media))
	for i, m := range media {
		ids[i] = m.ID
	}
	return ids
}
