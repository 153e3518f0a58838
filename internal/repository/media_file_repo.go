package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/castarr/castarr/internal/models"
)

// mediaFileRepo implements MediaFileRepository using GORM.
type mediaFileRepo struct {
	db *gorm.DB
}

// NewMediaFileRepository creates a new MediaFileRepository.
func NewMediaFileRepository(db *gorm.DB) *mediaFileRepo {
	return &mediaFileRepo{db: db}
}

// Create creates a new media file row.
func (r *mediaFileRepo) Create(ctx context.Context, file *models.MediaFile) error {
	if err := r.db.WithContext(ctx).Create(file).Error; err != nil {
		return fmt.Errorf("creating media file: %w", err)
	}
	return nil
}

// GetByID retrieves a media file by ID.
func (r *mediaFileRepo) GetByID(ctx context.Context, id models.ULID) (*models.MediaFile, error) {
	var file models.MediaFile
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&file).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting media file by ID: %w", err)
	}
	return &file, nil
}

// GetByIDs retrieves media files preserving the order of the given ids.
// Missing ids are skipped.
func (r *mediaFileRepo) GetByIDs(ctx context.Context, ids []models.ULID) ([]*models.MediaFile, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var files []*models.MediaFile
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&files).Error; err != nil {
		return nil, fmt.Errorf("getting media files by IDs: %w", err)
	}

	byID := make(map[models.ULID]*models.MediaFile, len(files))
	for _, f := range files {
		byID[f.ID] = f
	}
	ordered := make([]*models.MediaFile, 0, len(ids))
	for _, id := range ids {
		if f, ok := byID[id]; ok {
			ordered = append(ordered, f)
		}
	}
	return ordered, nil
}

// GetByPath retrieves a media file by its absolute path.
func (r *mediaFileRepo) GetByPath(ctx context.Context, path string) (*models.MediaFile, error) {
	var file models.MediaFile
	if err := r.db.WithContext(ctx).Where("path = ?", path).First(&file).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting media file by path: %w", err)
	}
	return &file, nil
}

// List retrieves all media files ordered by path.
func (r *mediaFileRepo) List(ctx context.Context) ([]*models.MediaFile, error) {
	var files []*models.MediaFile
	if err := r.db.WithContext(ctx).Order("path ASC").Find(&files).Error; err != nil {
		return nil, fmt.Errorf("listing media files: %w", err)
	}
	return files, nil
}

// Delete deletes a media file by ID.
func (r *mediaFileRepo) Delete(ctx context.Context, id models.ULID) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.MediaFile{}).Error; err != nil {
		return fmt.Errorf("deleting media file: %w", err)
	}
	return nil
}

// Ensure mediaFileRepo implements MediaFileRepository at compile time.
var _ MediaFileRepository = (*mediaFileRepo)(nil)

// libraryFolderRepo implements LibraryFolderRepository using GORM.
type libraryFolderRepo struct {
	db *gorm.DB
}

// NewLibraryFolderRepository creates a new LibraryFolderRepository.
func NewLibraryFolderRepository(db *gorm.DB) *libraryFolderRepo {
	return &libraryFolderRepo{db: db}
}

// Create creates a new library folder row.
func (r *libraryFolderRepo) Create(ctx context.Context, folder *models.LibraryFolder) error {
	if err := r.db.WithContext(ctx).Create(folder).Error; err != nil {
		return fmt.Errorf("creating library folder: %w", err)
	}
	return nil
}

// GetByID retrieves a library folder by ID.
func (r *libraryFolderRepo) GetByID(ctx context.Context, id models.ULID) (*models.LibraryFolder, error) {
	var folder models.LibraryFolder
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&folder).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting library folder by ID: %w", err)
	}
	return &folder, nil
}

// List retrieves all library folders ordered by path.
func (r *libraryFolderRepo) List(ctx context.Context) ([]*models.LibraryFolder, error) {
	var folders []*models.LibraryFolder
	if err := r.db.WithContext(ctx).Order("path ASC").Find(&folders).Error; err != nil {
		return nil, fmt.Errorf("listing library folders: %w", err)
	}
	return folders, nil
}

// Delete deletes a library folder by ID. Media rows found under the folder
// keep their folder_id; they are cleaned up by the next scan.
func (r *libraryFolderRepo) Delete(ctx context.Context, id models.ULID) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.LibraryFolder{}).Error; err != nil {
		return fmt.Errorf("deleting library folder: %w", err)
	}
	return nil
}

// Ensure libraryFolderRepo implements LibraryFolderRepository at compile time.
var _ LibraryFolderRepository = (*libraryFolderRepo)(nil)
