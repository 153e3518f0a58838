package handlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/castarr/castarr/internal/models"
	"github.com/castarr/castarr/internal/repository"
	"github.com/castarr/castarr/internal/runtime"
)

// stubRuntime records lifecycle calls and returns canned errors.
type stubRuntime struct {
	startErr    error
	stopErr     error
	starts      int
	stops       int
	invalidated []models.ULID
}

func (s *stubRuntime) Start(_ context.Context, _ models.ULID, _ runtime.StartOptions) error {
	s.starts++
	return s.startErr
}

func (s *stubRuntime) Stop(_ context.Context, _ models.ULID) error {
	s.stops++
	return s.stopErr
}

func (s *stubRuntime) Restart(_ context.Context, _ models.ULID) error { return nil }
func (s *stubRuntime) Next(_ context.Context, _ models.ULID) error    { return nil }
func (s *stubRuntime) SetIndex(_ context.Context, _ models.ULID, index int) error {
	if index < 0 {
		return models.ErrInvalidIndex
	}
	return nil
}

func (s *stubRuntime) InvalidateChannelMedia(_ context.Context, channelID models.ULID) error {
	s.invalidated = append(s.invalidated, channelID)
	return nil
}

func newChannelHandler(t *testing.T) (*ChannelHandler, *stubRuntime) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Channel{}, &models.ScheduleStartTime{}))

	rt := &stubRuntime{}
	h := NewChannelHandler(
		repository.NewChannelRepository(db),
		repository.NewScheduleTimeRepository(db),
		rt,
	)
	return h, rt
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var se huma.StatusError
	require.True(t, errors.As(err, &se), "expected a status error, got %v", err)
	return se.GetStatus()
}

func mustParseTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func createInput(slug string) *CreateChannelInput {
	in := &CreateChannelInput{}
	in.Body.Name = "Channel " + slug
	in.Body.Slug = slug
	return in
}

func TestCreateChannel_SlugValidation(t *testing.T) {
	h, _ := newChannelHandler(t)
	ctx := context.Background()

	_, err := h.CreateChannel(ctx, createInput("Invalid Slug!"))
	require.Error(t, err)
	assert.Equal(t, 400, statusOf(t, err))

	out, err := h.CreateChannel(ctx, createInput("valid-1"))
	require.NoError(t, err)
	assert.Equal(t, "valid-1", out.Body.Slug)
	assert.Equal(t, "idle", out.Body.State)

	_, err = h.CreateChannel(ctx, createInput("valid-1"))
	require.Error(t, err)
	assert.Equal(t, 409, statusOf(t, err))
}

func TestCreateChannel_AppliesEncodingDefaults(t *testing.T) {
	h, _ := newChannelHandler(t)

	out, err := h.CreateChannel(context.Background(), createInput("defaults"))
	require.NoError(t, err)
	assert.Equal(t, 4000, out.Body.VideoBitrate)
	assert.Equal(t, "1920x1080", out.Body.Resolution)
	assert.Equal(t, 6, out.Body.SegmentDuration)
	assert.True(t, out.Body.IncludeBumpers)
}

func TestGetChannel_NotFound(t *testing.T) {
	h, _ := newChannelHandler(t)
	ctx := context.Background()

	_, err := h.GetChannel(ctx, &ChannelIDInput{ID: "not-a-ulid"})
	require.Error(t, err)
	assert.Equal(t, 400, statusOf(t, err))

	_, err = h.GetChannel(ctx, &ChannelIDInput{ID: models.NewULID().String()})
	require.Error(t, err)
	assert.Equal(t, 404, statusOf(t, err))
}

func TestStartChannel_MapsRuntimeErrors(t *testing.T) {
	h, rt := newChannelHandler(t)
	ctx := context.Background()

	out, err := h.CreateChannel(ctx, createInput("movies"))
	require.NoError(t, err)
	id := out.Body.ID

	rt.startErr = models.ErrNoMediaAvailable
	_, err = h.StartChannel(ctx, &ChannelIDInput{ID: id})
	require.Error(t, err)
	assert.Equal(t, 400, statusOf(t, err))

	rt.startErr = models.ErrAlreadyStreaming
	_, err = h.StartChannel(ctx, &ChannelIDInput{ID: id})
	require.Error(t, err)
	assert.Equal(t, 409, statusOf(t, err))

	rt.startErr = models.ErrTooManyStreams
	_, err = h.StartChannel(ctx, &ChannelIDInput{ID: id})
	require.Error(t, err)
	assert.Equal(t, 409, statusOf(t, err))

	rt.startErr = nil
	msg, err := h.StartChannel(ctx, &ChannelIDInput{ID: id})
	require.NoError(t, err)
	assert.True(t, msg.Body.Success)
	assert.Equal(t, 4, rt.starts)
}

func TestSetIndex_NegativeRejected(t *testing.T) {
	h, _ := newChannelHandler(t)
	ctx := context.Background()

	out, err := h.CreateChannel(ctx, createInput("idx"))
	require.NoError(t, err)

	in := &SetIndexInput{ID: out.Body.ID}
	in.Body.Index = -1
	_, err = h.SetIndex(ctx, in)
	require.Error(t, err)
	assert.Equal(t, 400, statusOf(t, err))
}

func TestSetScheduleTime_PersistsAndRefreshes(t *testing.T) {
	h, rt := newChannelHandler(t)
	ctx := context.Background()

	out, err := h.CreateChannel(ctx, createInput("anchored"))
	require.NoError(t, err)

	got, err := h.GetScheduleTime(ctx, &ChannelIDInput{ID: out.Body.ID})
	require.NoError(t, err)
	assert.Nil(t, got.Body.StartTime)

	in := &SetScheduleTimeInput{ID: out.Body.ID}
	in.Body.StartTime = mustParseTime(t, "2026-08-24T06:00:00Z")
	_, err = h.SetScheduleTime(ctx, in)
	require.NoError(t, err)
	require.Len(t, rt.invalidated, 1)

	got, err = h.GetScheduleTime(ctx, &ChannelIDInput{ID: out.Body.ID})
	require.NoError(t, err)
	require.NotNil(t, got.Body.StartTime)
	assert.True(t, got.Body.StartTime.Equal(in.Body.StartTime))
}
