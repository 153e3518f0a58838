package handlers

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/castarr/castarr/internal/models"
	"github.com/castarr/castarr/internal/repository"
	"github.com/castarr/castarr/internal/scanner"
)

// fixedProber reports the same duration for every file.
type fixedProber struct{ duration float64 }

func (p fixedProber) Duration(_ context.Context, _ string) (float64, error) {
	return p.duration, nil
}

func newLibraryHandler(t *testing.T) (*LibraryHandler, repository.MediaFileRepository) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.LibraryFolder{}, &models.MediaFile{}))

	folders := repository.NewLibraryFolderRepository(db)
	media := repository.NewMediaFileRepository(db)
	sc := scanner.New(folders, media, fixedProber{duration: 600}, nil)
	return NewLibraryHandler(folders, sc), media
}

func TestAddFolder_RejectsMissingPath(t *testing.T) {
	h, _ := newLibraryHandler(t)

	input := &AddFolderInput{}
	input.Body.Path = "/does/not/exist"
	_, err := h.AddFolder(context.Background(), input)
	assert.Equal(t, 400, statusOf(t, err))
}

func TestAddFolder_RejectsRegularFile(t *testing.T) {
	h, _ := newLibraryHandler(t)

	file := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	input := &AddFolderInput{}
	input.Body.Path = file
	_, err := h.AddFolder(context.Background(), input)
	assert.Equal(t, 400, statusOf(t, err))
}

func TestScan_RegistersFolderContents(t *testing.T) {
	h, media := newLibraryHandler(t)
	ctx := context.Background()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "movie.mp4"), []byte("x"), 0o644))

	input := &AddFolderInput{}
	input.Body.Path = dir
	created, err := h.AddFolder(ctx, input)
	require.NoError(t, err)
	assert.NotEmpty(t, created.Body.ID)

	list, err := h.ListFolders(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, list.Body.Total)

	out, err := h.Scan(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Body.Added)

	files, err := media.List(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, 600.0, files[0].Duration)
}
