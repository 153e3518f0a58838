package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/castarr/castarr/internal/models"
)

// scheduleBlockRepo implements ScheduleBlockRepository using GORM.
type scheduleBlockRepo struct {
	db *gorm.DB
}

// NewScheduleBlockRepository creates a new ScheduleBlockRepository.
func NewScheduleBlockRepository(db *gorm.DB) *scheduleBlockRepo {
	return &scheduleBlockRepo{db: db}
}

// Create creates a new schedule block.
func (r *scheduleBlockRepo) Create(ctx context.Context, block *models.ScheduleBlock) error {
	if err := r.db.WithContext(ctx).Create(block).Error; err != nil {
		return fmt.Errorf("creating schedule block: %w", err)
	}
	return nil
}

// GetByID retrieves a schedule block by ID.
func (r *scheduleBlockRepo) GetByID(ctx context.Context, id models.ULID) (*models.ScheduleBlock, error) {
	var block models.ScheduleBlock
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&block).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting schedule block by ID: %w", err)
	}
	return &block, nil
}

// GetByChannel returns blocks ordered by priority descending, ties broken by
// creation order (ULIDs are time-ordered).
func (r *scheduleBlockRepo) GetByChannel(ctx context.Context, channelID models.ULID) ([]*models.ScheduleBlock, error) {
	var blocks []*models.ScheduleBlock
	if err := r.db.WithContext(ctx).
		Where("channel_id = ?", channelID).
		Order("priority DESC, id ASC").
		Find(&blocks).Error; err != nil {
		return nil, fmt.Errorf("getting schedule blocks by channel: %w", err)
	}
	return blocks, nil
}

// Update updates an existing schedule block.
func (r *scheduleBlockRepo) Update(ctx context.Context, block *models.ScheduleBlock) error {
	if err := r.db.WithContext(ctx).Save(block).Error; err != nil {
		return fmt.Errorf("updating schedule block: %w", err)
	}
	return nil
}

// Delete deletes a schedule block by ID.
func (r *scheduleBlockRepo) Delete(ctx context.Context, id models.ULID) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.ScheduleBlock{}).Error; err != nil {
		return fmt.Errorf("deleting schedule block: %w", err)
	}
	return nil
}

// Ensure scheduleBlockRepo implements ScheduleBlockRepository at compile time.
var _ ScheduleBlockRepository = (*scheduleBlockRepo)(nil)
