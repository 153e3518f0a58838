package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/castarr/castarr/internal/models"
)

// bucketRepo implements BucketRepository using GORM.
type bucketRepo struct {
	db *gorm.DB
}

// NewBucketRepository creates a new BucketRepository.
func NewBucketRepository(db *gorm.DB) *bucketRepo {
	return &bucketRepo{db: db}
}

// Create creates a new bucket.
func (r *bucketRepo) Create(ctx context.Context, bucket *models.Bucket) error {
	if err := r.db.WithContext(ctx).Create(bucket).Error; err != nil {
		return fmt.Errorf("creating bucket: %w", err)
	}
	return nil
}

// GetByID retrieves a bucket by ID.
func (r *bucketRepo) GetByID(ctx context.Context, id models.ULID) (*models.Bucket, error) {
	var bucket models.Bucket
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&bucket).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting bucket by ID: %w", err)
	}
	return &bucket, nil
}

// List retrieves all buckets ordered by name.
func (r *bucketRepo) List(ctx context.Context) ([]*models.Bucket, error) {
	var buckets []*models.Bucket
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&buckets).Error; err != nil {
		return nil, fmt.Errorf("listing buckets: %w", err)
	}
	return buckets, nil
}

// Update updates an existing bucket.
func (r *bucketRepo) Update(ctx context.Context, bucket *models.Bucket) error {
	if err := r.db.WithContext(ctx).Save(bucket).Error; err != nil {
		return fmt.Errorf("updating bucket: %w", err)
	}
	return nil
}

// Delete deletes a bucket and its memberships and associations.
func (r *bucketRepo) Delete(ctx context.Context, id models.ULID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("bucket_id = ?", id).Delete(&models.BucketMedia{}).Error; err != nil {
			return fmt.Errorf("deleting bucket media: %w", err)
		}
		if err := tx.Where("bucket_id = ?", id).Delete(&models.ChannelBucket{}).Error; err != nil {
			return fmt.Errorf("deleting channel associations: %w", err)
		}
		if err := tx.Where("id = ?", id).Delete(&models.Bucket{}).Error; err != nil {
			return fmt.Errorf("deleting bucket: %w", err)
		}
		return nil
	})
}

// AddMedia appends a media file at the end of the bucket's order.
func (r *bucketRepo) AddMedia(ctx context.Context, bucketID, mediaFileID models.ULID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxPos *int
		if err := tx.Model(&models.BucketMedia{}).
			Where("bucket_id = ?", bucketID).
			Select("MAX(position)").Scan(&maxPos).Error; err != nil {
			return fmt.Errorf("finding max position: %w", err)
		}
		pos := 0
		if maxPos != nil {
			pos = *maxPos + 1
		}
		bm := &models.BucketMedia{BucketID: bucketID, MediaFileID: mediaFileID, Position: pos}
		if err := tx.Create(bm).Error; err != nil {
			return fmt.Errorf("adding media to bucket: %w", err)
		}
		return nil
	})
}

// RemoveMedia removes a media file from a bucket.
func (r *bucketRepo) RemoveMedia(ctx context.Context, bucketID, mediaFileID models.ULID) error {
	if err := r.db.WithContext(ctx).
		Where("bucket_id = ? AND media_file_id = ?", bucketID, mediaFileID).
		Delete(&models.BucketMedia{}).Error; err != nil {
		return fmt.Errorf("removing media from bucket: %w", err)
	}
	return nil
}

// GetMedia returns the bucket's media files ordered by position.
func (r *bucketRepo) GetMedia(ctx context.Context, bucketID models.ULID) ([]*models.MediaFile, error) {
	var files []*models.MediaFile
	if err := r.db.WithContext(ctx).
		Model(&models.MediaFile{}).
		Joins("JOIN bucket_media ON bucket_media.media_file_id = media_files.id").
		Where("bucket_media.bucket_id = ?", bucketID).
		Order("bucket_media.position ASC").
		Find(&files).Error; err != nil {
		return nil, fmt.Errorf("getting bucket media: %w", err)
	}
	return files, nil
}

// AssignToChannel associates a bucket with a channel at a priority, updating
// the priority if the association already exists.
func (r *bucketRepo) AssignToChannel(ctx context.Context, channelID, bucketID models.ULID, priority int) error {
	cb := &models.ChannelBucket{ChannelID: channelID, BucketID: bucketID, Priority: priority}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "channel_id"}, {Name: "bucket_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"priority", "updated_at"}),
	}).Create(cb).Error; err != nil {
		return fmt.Errorf("assigning bucket to channel: %w", err)
	}
	return nil
}

// UnassignFromChannel removes a bucket association from a channel.
func (r *bucketRepo) UnassignFromChannel(ctx context.Context, channelID, bucketID models.ULID) error {
	if err := r.db.WithContext(ctx).
		Where("channel_id = ? AND bucket_id = ?", channelID, bucketID).
		Delete(&models.ChannelBucket{}).Error; err != nil {
		return fmt.Errorf("unassigning bucket from channel: %w", err)
	}
	return nil
}

// GetChannelBuckets returns a channel's associations ordered by priority
// descending, ties broken by creation order.
func (r *bucketRepo) GetChannelBuckets(ctx context.Context, channelID models.ULID) ([]*models.ChannelBucket, error) {
	var assocs []*models.ChannelBucket
	if err := r.db.WithContext(ctx).
		Where("channel_id = ?", channelID).
		Order("priority DESC, id ASC").
		Find(&assocs).Error; err != nil {
		return nil, fmt.Errorf("getting channel buckets: %w", err)
	}
	return assocs, nil
}

// Ensure bucketRepo implements BucketRepository at compile time.
var _ BucketRepository = (*bucketRepo)(nil)
