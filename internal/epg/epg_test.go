package epg

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
	"github.com/castarr/castarr/internal/playlist"
	"github.com/castarr/castarr/internal/repository"
	"github.com/castarr/castarr/internal/timeline"
)

type fixture struct {
	db        *gorm.DB
	generator *Generator
	tl        *timeline.Service
	buckets   repository.BucketRepository
	blocks    repository.ScheduleBlockRepository
	channel   *models.Channel
	now       time.Time
}

func setup(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.MediaFile{}, &models.Bucket{}, &models.BucketMedia{},
		&models.ChannelBucket{}, &models.ScheduleBlock{},
		&models.BucketProgression{}, &models.ScheduleStartTime{},
	))

	buckets := repository.NewBucketRepository(db)
	blocks := repository.NewScheduleBlockRepository(db)
	tl := timeline.NewService(repository.NewScheduleTimeRepository(db), nil)
	resolver := playlist.NewResolver(buckets, blocks, repository.NewProgressionRepository(db), nil)

	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.Local)
	gen := NewGenerator(tl, resolver, 6*time.Hour, nil)
	gen.now = func() time.Time { return now }

	return &fixture{
		db:        db,
		generator: gen,
		tl:        tl,
		buckets:   buckets,
		blocks:    blocks,
		channel:   &models.Channel{BaseModel: models.BaseModel{ID: models.NewULID()}},
		now:       now,
	}
}

func (f *fixture) addBucket(t *testing.T, name string, durations ...float64) *models.Bucket {
	t.Helper()
	ctx := context.Background()

	bucket := &models.Bucket{Name: name, Type: models.BucketTypeGlobal}
	require.NoError(t, f.buckets.Create(ctx, bucket))
	for i, d := range durations {
		mf := &models.MediaFile{
			Path:     fmt.Sprintf("/media/%s/ep%02d.mkv", name, i),
			Duration: d,
			ShowName: name,
			Season:   1,
			Episode:  i + 1,
		}
		require.NoError(t, f.db.Create(mf).Error)
		require.NoError(t, f.buckets.AddMedia(ctx, bucket.ID, mf.ID))
	}
	return bucket
}

func (f *fixture) anchor(t *testing.T, before time.Duration) {
	t.Helper()
	db := repository.NewScheduleTimeRepository(f.db)
	require.NoError(t, db.Set(context.Background(), f.channel.ID, f.now.Add(-before)))
}

func TestPrograms_StaticChannelAlignedToEpoch(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	bucket := f.addBucket(t, "cosmos", 600, 1200, 900)
	require.NoError(t, f.buckets.AssignToChannel(ctx, f.channel.ID, bucket.ID, 1))
	f.anchor(t, 1500*time.Second)

	programs, err := f.generator.Programs(ctx, f.channel)
	require.NoError(t, err)
	require.NotEmpty(t, programs)

	// 1500s into a [600,1200,900] loop: file 2 has been on for 900s.
	first := programs[0]
	assert.Equal(t, "cosmos S01E02", first.Title)
	assert.Equal(t, f.now.Add(-900*time.Second), first.StartTime)
	assert.Equal(t, f.now.Add(300*time.Second), first.EndTime)

	// Programs tile the horizon with no gaps.
	for i := 1; i < len(programs); i++ {
		assert.Equal(t, programs[i-1].EndTime, programs[i].StartTime)
	}
	last := programs[len(programs)-1]
	assert.False(t, last.EndTime.Before(f.now.Add(6*time.Hour)))
}

func TestCurrentAndNext(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	bucket := f.addBucket(t, "cosmos", 600, 1200, 900)
	require.NoError(t, f.buckets.AssignToChannel(ctx, f.channel.ID, bucket.ID, 1))
	f.anchor(t, 1500*time.Second)

	current, next, err := f.generator.CurrentAndNext(ctx, f.channel)
	require.NoError(t, err)
	require.NotNil(t, current)
	require.NotNil(t, next)
	assert.Equal(t, "cosmos S01E02", current.Title)
	assert.Equal(t, "cosmos S01E03", next.Title)
}

func TestCurrentPlaybackPosition(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	bucket := f.addBucket(t, "cosmos", 600, 1200, 900)
	require.NoError(t, f.buckets.AssignToChannel(ctx, f.channel.ID, bucket.ID, 1))
	f.anchor(t, 1500*time.Second)

	media, err := f.buckets.GetMedia(ctx, bucket.ID)
	require.NoError(t, err)

	pos, ok, err := f.generator.CurrentPlaybackPosition(ctx, f.channel, media)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, pos.FileIndex)
	assert.InDelta(t, 900, pos.SeekSeconds, 0.5)
}

func TestCurrentPlaybackPosition_DisplayNameResync(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	bucket := f.addBucket(t, "cosmos", 600, 1200, 900)
	require.NoError(t, f.buckets.AssignToChannel(ctx, f.channel.ID, bucket.ID, 1))
	f.anchor(t, 1500*time.Second)

	media, err := f.buckets.GetMedia(ctx, bucket.ID)
	require.NoError(t, err)

	// Same display names under fresh ids, as after a library rescan.
	clones := make([]*models.MediaFile, len(media))
	for i, m := range media {
		clone := *m
		clone.ID = models.NewULID()
		clones[i] = &clone
	}

	pos, ok, err := f.generator.CurrentPlaybackPosition(ctx, f.channel, clones)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, pos.FileIndex, "resynced by display name")
}

func TestPrograms_DynamicBlockBoundary(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.channel.UseDynamicPlaylist = true

	morning := f.addBucket(t, "morning", 600)
	evening := f.addBucket(t, "evening", 600)

	require.NoError(t, f.blocks.Create(ctx, &models.ScheduleBlock{
		ChannelID: f.channel.ID, BucketID: morning.ID,
		StartTime: "08:00:00", EndTime: "14:00:00",
		PlaybackMode: models.PlaybackModeSequential, Priority: 1,
	}))
	require.NoError(t, f.blocks.Create(ctx, &models.ScheduleBlock{
		ChannelID: f.channel.ID, BucketID: evening.ID,
		StartTime: "14:00:00", EndTime: "23:00:00",
		PlaybackMode: models.PlaybackModeSequential, Priority: 1,
	}))
	f.anchor(t, time.Hour)

	programs, err := f.generator.Programs(ctx, f.channel)
	require.NoError(t, err)
	require.NotEmpty(t, programs)

	boundary := time.Date(2026, 8, 24, 14, 0, 0, 0, time.Local)
	for _, p := range programs {
		if p.StartTime.Before(boundary) {
			assert.Contains(t, p.Title, "morning", "before 14:00 the morning block airs")
		} else {
			assert.Contains(t, p.Title, "evening", "after 14:00 the evening block airs")
		}
	}
}

func TestPrograms_BlockBoundaryDoesNotOverlap(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.channel.UseDynamicPlaylist = true

	// 700s episodes do not divide the 14:00 boundary evenly, so a file is
	// mid-air on both sides of it.
	morning := f.addBucket(t, "morning", 700)
	evening := f.addBucket(t, "evening", 700)

	require.NoError(t, f.blocks.Create(ctx, &models.ScheduleBlock{
		ChannelID: f.channel.ID, BucketID: morning.ID,
		StartTime: "08:00:00", EndTime: "14:00:00",
		PlaybackMode: models.PlaybackModeSequential, Priority: 1,
	}))
	require.NoError(t, f.blocks.Create(ctx, &models.ScheduleBlock{
		ChannelID: f.channel.ID, BucketID: evening.ID,
		StartTime: "14:00:00", EndTime: "23:00:00",
		PlaybackMode: models.PlaybackModeSequential, Priority: 1,
	}))
	f.anchor(t, time.Hour)

	programs, err := f.generator.Programs(ctx, f.channel)
	require.NoError(t, err)
	require.NotEmpty(t, programs)

	for i := 1; i < len(programs); i++ {
		assert.False(t, programs[i].StartTime.Before(programs[i-1].EndTime),
			"guide entries %d and %d overlap", i-1, i)
	}

	// Epoch 11:00, so 14:00 is 10800s in; 10800 mod 700 leaves the evening
	// file 300s in when the block takes over.
	boundary := time.Date(2026, 8, 24, 14, 0, 0, 0, time.Local)
	var handoff *Program
	for i := range programs {
		if programs[i].StartTime.Equal(boundary) {
			handoff = &programs[i]
			break
		}
	}
	require.NotNil(t, handoff, "a program must start exactly at the block boundary")
	assert.Contains(t, handoff.Title, "evening")
	assert.InDelta(t, 300, handoff.StartOffsetSeconds, 0.5)
	assert.Equal(t, boundary.Add(400*time.Second), handoff.EndTime)
}

func TestInvalidate_ForcesRegeneration(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	bucket := f.addBucket(t, "cosmos", 600)
	require.NoError(t, f.buckets.AssignToChannel(ctx, f.channel.ID, bucket.ID, 1))
	f.anchor(t, time.Hour)

	first, err := f.generator.Programs(ctx, f.channel)
	require.NoError(t, err)

	// New media only shows up after invalidation.
	other := f.addBucket(t, "added", 900)
	require.NoError(t, f.buckets.AssignToChannel(ctx, f.channel.ID, other.ID, 5))

	cached, err := f.generator.Programs(ctx, f.channel)
	require.NoError(t, err)
	assert.Equal(t, len(first), len(cached))

	f.generator.Invalidate(f.channel.ID)
	fresh, err := f.generator.Programs(ctx, f.channel)
	require.NoError(t, err)
	assert.NotEqual(t, first[0].Title, fresh[0].Title)
}
