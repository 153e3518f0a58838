package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/castarr/castarr/internal/models"
)

// progressionRepo implements ProgressionRepository using GORM.
type progressionRepo struct {
	db *gorm.DB
}

// NewProgressionRepository creates a new ProgressionRepository.
func NewProgressionRepository(db *gorm.DB) *progressionRepo {
	return &progressionRepo{db: db}
}

// Get retrieves the progression for a (channel, bucket) pair.
func (r *progressionRepo) Get(ctx context.Context, channelID, bucketID models.ULID) (*models.BucketProgression, error) {
	var p models.BucketProgression
	if err := r.db.WithContext(ctx).
		Where("channel_id = ? AND bucket_id = ?", channelID, bucketID).
		First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting bucket progression: %w", err)
	}
	return &p, nil
}

// Upsert creates or updates the progression for its (channel, bucket) pair.
func (r *progressionRepo) Upsert(ctx context.Context, progression *models.BucketProgression) error {
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "channel_id"}, {Name: "bucket_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_played_media_id", "position", "updated_at"}),
	}).Create(progression).Error; err != nil {
		return fmt.Errorf("upserting bucket progression: %w", err)
	}
	return nil
}

// Ensure progressionRepo implements ProgressionRepository at compile time.
var _ ProgressionRepository = (*progressionRepo)(nil)

// playbackSessionRepo implements PlaybackSessionRepository using GORM.
type playbackSessionRepo struct {
	db *gorm.DB
}

// NewPlaybackSessionRepository creates a new PlaybackSessionRepository.
func NewPlaybackSessionRepository(db *gorm.DB) *playbackSessionRepo {
	return &playbackSessionRepo{db: db}
}

// Create creates a new playback session row.
func (r *playbackSessionRepo) Create(ctx context.Context, session *models.PlaybackSession) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("creating playback session: %w", err)
	}
	return nil
}

// CloseOpen stamps EndedAt on every open session for the channel.
func (r *playbackSessionRepo) CloseOpen(ctx context.Context, channelID models.ULID, endedAt time.Time) error {
	if err := r.db.WithContext(ctx).Model(&models.PlaybackSession{}).
		Where("channel_id = ? AND ended_at IS NULL", channelID).
		Update("ended_at", endedAt).Error; err != nil {
		return fmt.Errorf("closing playback sessions: %w", err)
	}
	return nil
}

// DeleteEndedBefore prunes ended sessions older than the cutoff.
func (r *playbackSessionRepo) DeleteEndedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("ended_at IS NOT NULL AND ended_at < ?", cutoff).
		Delete(&models.PlaybackSession{})
	if res.Error != nil {
		return 0, fmt.Errorf("pruning playback sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Ensure playbackSessionRepo implements PlaybackSessionRepository at compile time.
var _ PlaybackSessionRepository = (*playbackSessionRepo)(nil)

// scheduleTimeRepo implements ScheduleTimeRepository using GORM.
type scheduleTimeRepo struct {
	db *gorm.DB
}

// NewScheduleTimeRepository creates a new ScheduleTimeRepository.
func NewScheduleTimeRepository(db *gorm.DB) *scheduleTimeRepo {
	return &scheduleTimeRepo{db: db}
}

// Initialize sets the anchor if absent. An existing anchor is never moved;
// the schedule epoch survives restarts and pauses by design of the timeline.
func (r *scheduleTimeRepo) Initialize(ctx context.Context, channelID models.ULID, start time.Time) error {
	row := &models.ScheduleStartTime{ChannelID: channelID, StartTime: start}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "channel_id"}},
		DoNothing: true,
	}).Create(row).Error; err != nil {
		return fmt.Errorf("initializing schedule start time: %w", err)
	}
	return nil
}

// Get retrieves the anchor for a channel.
func (r *scheduleTimeRepo) Get(ctx context.Context, channelID models.ULID) (*models.ScheduleStartTime, error) {
	var row models.ScheduleStartTime
	if err := r.db.WithContext(ctx).Where("channel_id = ?", channelID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting schedule start time: %w", err)
	}
	return &row, nil
}

// Has reports whether an anchor exists for the channel.
func (r *scheduleTimeRepo) Has(ctx context.Context, channelID models.ULID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.ScheduleStartTime{}).
		Where("channel_id = ?", channelID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("checking schedule start time: %w", err)
	}
	return count > 0, nil
}

// Set overwrites the anchor. Only used by the explicit update-schedule-time
// operator action.
func (r *scheduleTimeRepo) Set(ctx context.Context, channelID models.ULID, start time.Time) error {
	row := &models.ScheduleStartTime{ChannelID: channelID, StartTime: start}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "channel_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"start_time", "updated_at"}),
	}).Create(row).Error; err != nil {
		return fmt.Errorf("setting schedule start time: %w", err)
	}
	return nil
}

// Ensure scheduleTimeRepo implements ScheduleTimeRepository at compile time.
var _ ScheduleTimeRepository = (*scheduleTimeRepo)(nil)

// settingRepo implements SettingRepository using GORM.
type settingRepo struct {
	db *gorm.DB
}

// NewSettingRepository creates a new SettingRepository.
func NewSettingRepository(db *gorm.DB) *settingRepo {
	return &settingRepo{db: db}
}

// Get retrieves a setting value; missing keys return "".
func (r *settingRepo) Get(ctx context.Context, key string) (string, error) {
	var s models.Setting
	if err := r.db.WithContext(ctx).Where("key = ?", key).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("getting setting: %w", err)
	}
	return s.Value, nil
}

// Set creates or updates a setting.
func (r *settingRepo) Set(ctx context.Context, key, value string) error {
	s := &models.Setting{Key: key, Value: value}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(s).Error; err != nil {
		return fmt.Errorf("setting %q: %w", key, err)
	}
	return nil
}

// Ensure settingRepo implements SettingRepository at compile time.
var _ SettingRepository = (*settingRepo)(nil)
