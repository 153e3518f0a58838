// Package repository provides data access for castarr entities using GORM.
package repository

import (
	"context"
	"time"

	"github.com/castarr/castarr/internal/models"
)

// ChannelRepository provides access to channel rows.
type ChannelRepository interface {
	Create(ctx context.Context, channel *models.Channel) error
	GetByID(ctx context.Context, id models.ULID) (*models.Channel, error)
	GetBySlug(ctx context.Context, slug string) (*models.Channel, error)
	List(ctx context.Context) ([]*models.Channel, error)
	ListAutoStart(ctx context.Context) ([]*models.Channel, error)
	Update(ctx context.Context, channel *models.Channel) error
	Delete(ctx context.Context, id models.ULID) error
	// CountByState returns the number of channels currently in the given state.
	CountByState(ctx context.Context, state models.ChannelState) (int64, error)
	// ResetRuntimeState forces every channel that did not survive a process
	// restart back to idle with zero viewers. Schedule anchors are untouched.
	ResetRuntimeState(ctx context.Context) (int64, error)
}

// MediaFileRepository provides access to scanned media files.
type MediaFileRepository interface {
	Create(ctx context.Context, file *models.MediaFile) error
	GetByID(ctx context.Context, id models.ULID) (*models.MediaFile, error)
	GetByIDs(ctx context.Context, ids []models.ULID) ([]*models.MediaFile, error)
	GetByPath(ctx context.Context, path string) (*models.MediaFile, error)
	List(ctx context.Context) ([]*models.MediaFile, error)
	Delete(ctx context.Context, id models.ULID) error
}

// LibraryFolderRepository provides access to watched library folders.
type LibraryFolderRepository interface {
	Create(ctx context.Context, folder *models.LibraryFolder) error
	GetByID(ctx context.Context, id models.ULID) (*models.LibraryFolder, error)
	List(ctx context.Context) ([]*models.LibraryFolder, error)
	Delete(ctx context.Context, id models.ULID) error
}

// BucketRepository provides access to buckets, their ordered media and
// channel associations.
type BucketRepository interface {
	Create(ctx context.Context, bucket *models.Bucket) error
	GetByID(ctx context.Context, id models.ULID) (*models.Bucket, error)
	List(ctx context.Context) ([]*models.Bucket, error)
	Update(ctx context.Context, bucket *models.Bucket) error
	Delete(ctx context.Context, id models.ULID) error

	// AddMedia appends a media file at the end of the bucket order.
	AddMedia(ctx context.Context, bucketID, mediaFileID models.ULID) error
	RemoveMedia(ctx context.Context, bucketID, mediaFileID models.ULID) error
	// GetMedia returns the bucket's media files ordered by position.
	GetMedia(ctx context.Context, bucketID models.ULID) ([]*models.MediaFile, error)

	// AssignToChannel associates a bucket with a channel at a priority,
	// updating the priority if the association already exists.
	AssignToChannel(ctx context.Context, channelID, bucketID models.ULID, priority int) error
	UnassignFromChannel(ctx context.Context, channelID, bucketID models.ULID) error
	// GetChannelBuckets returns a channel's associations ordered by priority
	// descending, ties broken by creation order.
	GetChannelBuckets(ctx context.Context, channelID models.ULID) ([]*models.ChannelBucket, error)
}

// ScheduleBlockRepository provides access to per-channel schedule blocks.
type ScheduleBlockRepository interface {
	Create(ctx context.Context, block *models.ScheduleBlock) error
	GetByID(ctx context.Context, id models.ULID) (*models.ScheduleBlock, error)
	// GetByChannel returns blocks ordered by priority descending, ties broken
	// by creation order, so the first active entry wins.
	GetByChannel(ctx context.Context, channelID models.ULID) ([]*models.ScheduleBlock, error)
	Update(ctx context.Context, block *models.ScheduleBlock) error
	Delete(ctx context.Context, id models.ULID) error
}

// ProgressionRepository tracks sequential playback position per
// (channel, bucket) pair.
type ProgressionRepository interface {
	Get(ctx context.Context, channelID, bucketID models.ULID) (*models.BucketProgression, error)
	Upsert(ctx context.Context, progression *models.BucketProgression) error
}

// PlaybackSessionRepository provides access to playback audit rows.
type PlaybackSessionRepository interface {
	Create(ctx context.Context, session *models.PlaybackSession) error
	// CloseOpen stamps EndedAt on every open session for the channel.
	CloseOpen(ctx context.Context, channelID models.ULID, endedAt time.Time) error
	// DeleteEndedBefore prunes ended sessions older than the cutoff and
	// returns the number removed.
	DeleteEndedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ScheduleTimeRepository provides access to the per-channel wall-clock anchor.
type ScheduleTimeRepository interface {
	// Initialize sets the anchor to start if absent. It is idempotent: an
	// existing anchor is never moved.
	Initialize(ctx context.Context, channelID models.ULID, start time.Time) error
	Get(ctx context.Context, channelID models.ULID) (*models.ScheduleStartTime, error)
	Has(ctx context.Context, channelID models.ULID) (bool, error)
	// Set overwrites the anchor (explicit operator action only).
	Set(ctx context.Context, channelID models.ULID, start time.Time) error
}

// SettingRepository provides typed access to the settings table.
type SettingRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}
