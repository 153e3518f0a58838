package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castarr/castarr/internal/models"
)

func testMediaFile(t *testing.T, db interface {
	Create(ctx context.Context, file *models.MediaFile) error
}, name string) *models.MediaFile {
	t.Helper()
	mf := &models.MediaFile{
		Path:     "/media/" + name + ".mkv",
		Filename: name + ".mkv",
		Duration: 1320,
		FileSize: 700 << 20,
	}
	require.NoError(t, db.Create(context.Background(), mf))
	return mf
}

func TestBucketRepo_AddMediaKeepsInsertionOrder(t *testing.T) {
	db := setupTestDB(t, &models.Bucket{}, &models.BucketMedia{}, &models.MediaFile{})
	buckets := NewBucketRepository(db)
	media := NewMediaFileRepository(db)
	ctx := context.Background()

	bucket := &models.Bucket{Name: "Cartoons", Type: models.BucketTypeGlobal}
	require.NoError(t, buckets.Create(ctx, bucket))

	var want []models.ULID
	for i := 0; i < 3; i++ {
		mf := testMediaFile(t, media, fmt.Sprintf("ep%02d", i))
		require.NoError(t, buckets.AddMedia(ctx, bucket.ID, mf.ID))
		want = append(want, mf.ID)
	}

	files, err := buckets.GetMedia(ctx, bucket.ID)
	require.NoError(t, err)
	require.Len(t, files, 3)
	for i, f := range files {
		assert.Equal(t, want[i], f.ID)
	}

	// Removing the middle entry preserves relative order of the rest.
	require.NoError(t, buckets.RemoveMedia(ctx, bucket.ID, want[1]))
	files, err = buckets.GetMedia(ctx, bucket.ID)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, want[0], files[0].ID)
	assert.Equal(t, want[2], files[1].ID)
}

func TestBucketRepo_AssignToChannelUpsertsPriority(t *testing.T) {
	db := setupTestDB(t, &models.Bucket{}, &models.ChannelBucket{})
	buckets := NewBucketRepository(db)
	ctx := context.Background()

	channelID := models.NewULID()
	bucket := &models.Bucket{Name: "Movies", Type: models.BucketTypeGlobal}
	require.NoError(t, buckets.Create(ctx, bucket))

	require.NoError(t, buckets.AssignToChannel(ctx, channelID, bucket.ID, 1))
	require.NoError(t, buckets.AssignToChannel(ctx, channelID, bucket.ID, 9))

	assocs, err := buckets.GetChannelBuckets(ctx, channelID)
	require.NoError(t, err)
	require.Len(t, assocs, 1, "re-assign must not duplicate the association")
	assert.Equal(t, 9, assocs[0].Priority)
}

func TestBucketRepo_GetChannelBucketsOrdering(t *testing.T) {
	db := setupTestDB(t, &models.Bucket{}, &models.ChannelBucket{})
	buckets := NewBucketRepository(db)
	ctx := context.Background()

	channelID := models.NewULID()
	low := &models.Bucket{Name: "Low", Type: models.BucketTypeGlobal}
	high := &models.Bucket{Name: "High", Type: models.BucketTypeChannelSpecific}
	require.NoError(t, buckets.Create(ctx, low))
	require.NoError(t, buckets.Create(ctx, high))

	require.NoError(t, buckets.AssignToChannel(ctx, channelID, low.ID, 1))
	require.NoError(t, buckets.AssignToChannel(ctx, channelID, high.ID, 5))

	assocs, err := buckets.GetChannelBuckets(ctx, channelID)
	require.NoError(t, err)
	require.Len(t, assocs, 2)
	assert.Equal(t, high.ID, assocs[0].BucketID)
	assert.Equal(t, low.ID, assocs[1].BucketID)
}

func TestBucketRepo_DeleteCascades(t *testing.T) {
	db := setupTestDB(t, &models.Bucket{}, &models.BucketMedia{}, &models.ChannelBucket{}, &models.MediaFile{})
	buckets := NewBucketRepository(db)
	media := NewMediaFileRepository(db)
	ctx := context.Background()

	bucket := &models.Bucket{Name: "Doomed", Type: models.BucketTypeGlobal}
	require.NoError(t, buckets.Create(ctx, bucket))
	mf := testMediaFile(t, media, "orphan")
	require.NoError(t, buckets.AddMedia(ctx, bucket.ID, mf.ID))
	require.NoError(t, buckets.AssignToChannel(ctx, models.NewULID(), bucket.ID, 1))

	require.NoError(t, buckets.Delete(ctx, bucket.ID))

	var memberships, assocs int64
	require.NoError(t, db.Model(&models.BucketMedia{}).Count(&memberships).Error)
	require.NoError(t, db.Model(&models.ChannelBucket{}).Count(&assocs).Error)
	assert.EqualValues(t, 0, memberships)
	assert.EqualValues(t, 0, assocs)
}

func TestMediaFileRepo_GetByIDsPreservesOrder(t *testing.T) {
	db := setupTestDB(t, &models.MediaFile{})
	media := NewMediaFileRepository(db)
	ctx := context.Background()

	a := testMediaFile(t, media, "a")
	b := testMediaFile(t, media, "b")
	c := testMediaFile(t, media, "c")

	files, err := media.GetByIDs(ctx, []models.ULID{c.ID, a.ID, b.ID})
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, c.ID, files[0].ID)
	assert.Equal(t, a.ID, files[1].ID)
	assert.Equal(t, b.ID, files[2].ID)
}
