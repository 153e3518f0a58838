package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/castarr/castarr/internal/epg"
	"github.com/castarr/castarr/internal/models"
	"github.com/castarr/castarr/internal/playlist"
	"github.com/castarr/castarr/internal/repository"
	"github.com/castarr/castarr/internal/timeline"
)

func setupRunner(t *testing.T, retention time.Duration) (*Runner, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Channel{}, &models.PlaybackSession{}, &models.ScheduleStartTime{},
		&models.Bucket{}, &models.BucketMedia{}, &models.ChannelBucket{},
		&models.MediaFile{}, &models.ScheduleBlock{}, &models.BucketProgression{},
		&models.Setting{},
	))

	resolver := playlist.NewResolver(
		repository.NewBucketRepository(db),
		repository.NewScheduleBlockRepository(db),
		repository.NewProgressionRepository(db),
		nil,
	)
	tl := timeline.NewService(repository.NewScheduleTimeRepository(db), nil)
	generator := epg.NewGenerator(tl, resolver, 0, nil)

	r := NewRunner(
		repository.NewPlaybackSessionRepository(db),
		repository.NewChannelRepository(db),
		repository.NewSettingRepository(db),
		generator,
		Config{SessionRetention: retention},
		nil,
	)
	return r, db
}

func TestRunOnce_PrunesOldEndedSessions(t *testing.T) {
	r, db := setupRunner(t, 24*time.Hour)
	ctx := context.Background()

	channelID := models.NewULID()
	now := time.Now()
	old := now.Add(-48 * time.Hour)
	recent := now.Add(-time.Hour)

	sessions := []*models.PlaybackSession{
		{ChannelID: channelID, StartedAt: old.Add(-time.Hour), EndedAt: &old,
			Type: models.SessionTypeStarted, Trigger: models.SessionTriggerManual},
		{ChannelID: channelID, StartedAt: recent.Add(-time.Hour), EndedAt: &recent,
			Type: models.SessionTypeResumed, Trigger: models.SessionTriggerAutomatic},
		// Still open, must never be pruned regardless of age.
		{ChannelID: channelID, StartedAt: old,
			Type: models.SessionTypeStarted, Trigger: models.SessionTriggerManual},
	}
	for _, s := range sessions {
		require.NoError(t, db.Create(s).Error)
	}

	r.RunOnce(ctx)

	var remaining []models.PlaybackSession
	require.NoError(t, db.Find(&remaining).Error)
	assert.Len(t, remaining, 2)
	for _, s := range remaining {
		if s.EndedAt != nil {
			assert.True(t, s.EndedAt.After(now.Add(-24*time.Hour)))
		}
	}
}

func TestRunOnce_RecordsLastRun(t *testing.T) {
	r, _ := setupRunner(t, time.Hour)
	ctx := context.Background()

	last, err := r.LastRun(ctx)
	require.NoError(t, err)
	assert.True(t, last.IsZero())

	r.RunOnce(ctx)

	last, err = r.LastRun(ctx)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), last, time.Minute)
}

func TestRunner_DefaultsApplied(t *testing.T) {
	r, _ := setupRunner(t, 0)
	assert.Equal(t, DefaultSessionRetention, r.cfg.SessionRetention)
	assert.Equal(t, DefaultSchedule, r.cfg.Schedule)
}

func TestStart_RejectsBadSchedule(t *testing.T) {
	r, _ := setupRunner(t, time.Hour)
	r.cfg.Schedule = "not a cron line"
	assert.Error(t, r.Start())
}
