package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/castarr/castarr/internal/models"
)

// channelRepo implements ChannelRepository using GORM.
type channelRepo struct {
	db *gorm.DB
}

// NewChannelRepository creates a new ChannelRepository.
func NewChannelRepository(db *gorm.DB) *channelRepo {
	return &channelRepo{db: db}
}

// Create creates a new channel.
func (r *channelRepo) Create(ctx context.Context, channel *models.Channel) error {
	if err := r.db.WithContext(ctx).Create(channel).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return models.ErrSlugTaken
		}
		return fmt.Errorf("creating channel: %w", err)
	}
	return nil
}

// GetByID retrieves a channel by ID.
func (r *channelRepo) GetByID(ctx context.Context, id models.ULID) (*models.Channel, error) {
	var channel models.Channel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&channel).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting channel by ID: %w", err)
	}
	return &channel, nil
}

// GetBySlug retrieves a channel by its URL slug.
func (r *channelRepo) GetBySlug(ctx context.Context, slug string) (*models.Channel, error) {
	var channel models.Channel
	if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&channel).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting channel by slug: %w", err)
	}
	return &channel, nil
}

// List retrieves all channels ordered by name.
func (r *channelRepo) List(ctx context.Context) ([]*models.Channel, error) {
	var channels []*models.Channel
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&channels).Error; err != nil {
		return nil, fmt.Errorf("listing channels: %w", err)
	}
	return channels, nil
}

// ListAutoStart retrieves channels flagged to start on process startup.
func (r *channelRepo) ListAutoStart(ctx context.Context) ([]*models.Channel, error) {
	var channels []*models.Channel
	if err := r.db.WithContext(ctx).Where("auto_start = ?", true).Find(&channels).Error; err != nil {
		return nil, fmt.Errorf("listing auto-start channels: %w", err)
	}
	return channels, nil
}

// Update updates an existing channel.
func (r *channelRepo) Update(ctx context.Context, channel *models.Channel) error {
	if err := r.db.WithContext(ctx).Save(channel).Error; err != nil {
		return fmt.Errorf("updating channel: %w", err)
	}
	return nil
}

// Delete deletes a channel by ID.
func (r *channelRepo) Delete(ctx context.Context, id models.ULID) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Channel{}).Error; err != nil {
		return fmt.Errorf("deleting channel: %w", err)
	}
	return nil
}

// CountByState returns the number of channels in the given state.
func (r *channelRepo) CountByState(ctx context.Context, state models.ChannelState) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Channel{}).
		Where("state = ?", state).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting channels by state: %w", err)
	}
	return count, nil
}

// ResetRuntimeState forces non-idle channels back to idle with zero viewers.
// Called once on process startup; no encoder survives a restart.
func (r *channelRepo) ResetRuntimeState(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Channel{}).
		Where("state <> ? OR viewer_count <> 0", models.ChannelStateIdle).
		Updates(map[string]any{
			"state":        models.ChannelStateIdle,
			"viewer_count": 0,
			"started_at":   nil,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("resetting channel runtime state: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Ensure channelRepo implements ChannelRepository at compile time.
var _ ChannelRepository = (*channelRepo)(nil)
