// Package handlers provides HTTP API handlers for castarr.
package handlers

import (
	"errors"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/castarr/castarr/internal/models"
)

// domainError maps domain errors onto HTTP status codes: validation 400,
// not-found 404, state and uniqueness conflicts 409, everything else 500.
func domainError(err error) error {
	var validation models.ErrValidation
	switch {
	case errors.Is(err, models.ErrChannelNotFound),
		errors.Is(err, models.ErrBucketNotFound),
		errors.Is(err, models.ErrScheduleBlockNotFound),
		errors.Is(err, models.ErrMediaFileNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, models.ErrSlugTaken),
		errors.Is(err, models.ErrAlreadyStreaming),
		errors.Is(err, models.ErrTranscoderActive),
		errors.Is(err, models.ErrInvalidStateTransition),
		errors.Is(err, models.ErrTooManyStreams):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, models.ErrNoMediaAvailable),
		errors.Is(err, models.ErrNameRequired),
		errors.Is(err, models.ErrSlugRequired),
		errors.Is(err, models.ErrInvalidSlug),
		errors.Is(err, models.ErrPathRequired),
		errors.Is(err, models.ErrChannelIDRequired),
		errors.Is(err, models.ErrBucketIDRequired),
		errors.Is(err, models.ErrInvalidBucketType),
		errors.Is(err, models.ErrInvalidPlaybackMode),
		errors.Is(err, models.ErrInvalidTimeFormat),
		errors.Is(err, models.ErrInvalidTimeRange),
		errors.Is(err, models.ErrInvalidDayOfWeek),
		errors.Is(err, models.ErrInvalidPriority),
		errors.Is(err, models.ErrInvalidIndex),
		errors.As(err, &validation):
		return huma.Error400BadRequest(err.Error())
	default:
		return huma.Error500InternalServerError("internal error", err)
	}
}

// parseULID converts a path id, mapping parse failures to 400.
func parseULID(raw string) (models.ULID, error) {
	id, err := models.ParseULID(raw)
	if err != nil {
		return models.ULID{}, huma.Error400BadRequest("invalid id: " + raw)
	}
	return id, nil
}

// ChannelResponse is the API shape of a channel.
type ChannelResponse struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Slug            string     `json:"slug"`
	State           string     `json:"state"`
	VideoBitrate    int        `json:"video_bitrate"`
	AudioBitrate    int        `json:"audio_bitrate"`
	Resolution      string     `json:"resolution"`
	FPS             int        `json:"fps"`
	SegmentDuration int        `json:"segment_duration"`
	AutoStart       bool       `json:"auto_start"`
	DynamicPlaylist bool       `json:"use_dynamic_playlist"`
	IncludeBumpers  bool       `json:"include_bumpers"`
	CurrentIndex    int        `json:"current_index"`
	ViewerCount     int        `json:"viewer_count"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ChannelFromModel converts a channel row to its API shape.
func ChannelFromModel(ch *models.Channel) ChannelResponse {
	return ChannelResponse{
		ID:              ch.ID.String(),
		Name:            ch.Name,
		Slug:            ch.Slug,
		State:           string(ch.State),
		VideoBitrate:    ch.VideoBitrate,
		AudioBitrate:    ch.AudioBitrate,
		Resolution:      ch.Resolution,
		FPS:             ch.FPS,
		SegmentDuration: ch.SegmentDuration,
		AutoStart:       ch.AutoStart,
		DynamicPlaylist: ch.UseDynamicPlaylist,
		IncludeBumpers:  ch.BumpersEnabled(),
		CurrentIndex:    ch.CurrentIndex,
		ViewerCount:     ch.ViewerCount,
		StartedAt:       ch.StartedAt,
		LastError:       ch.LastError,
		CreatedAt:       ch.CreatedAt,
		UpdatedAt:       ch.UpdatedAt,
	}
}

// BucketResponse is the API shape of a bucket.
type BucketResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// BucketFromModel converts a bucket row to its API shape.
func BucketFromModel(b *models.Bucket) BucketResponse {
	return BucketResponse{
		ID:          b.ID.String(),
		Name:        b.Name,
		Type:        string(b.Type),
		Description: b.Description,
		CreatedAt:   b.CreatedAt,
	}
}

// ScheduleBlockResponse is the API shape of a schedule block.
type ScheduleBlockResponse struct {
	ID           string `json:"id"`
	ChannelID    string `json:"channel_id"`
	BucketID     string `json:"bucket_id"`
	DaysOfWeek   string `json:"days_of_week,omitempty"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	PlaybackMode string `json:"playback_mode"`
	Priority     int    `json:"priority"`
	Enabled      bool   `json:"enabled"`
}

// ScheduleBlockFromModel converts a schedule block row to its API shape.
func ScheduleBlockFromModel(b *models.ScheduleBlock) ScheduleBlockResponse {
	return ScheduleBlockResponse{
		ID:           b.ID.String(),
		ChannelID:    b.ChannelID.String(),
		BucketID:     b.BucketID.String(),
		DaysOfWeek:   b.DaysOfWeek,
		StartTime:    b.StartTime,
		EndTime:      b.EndTime,
		PlaybackMode: string(b.PlaybackMode),
		Priority:     b.Priority,
		Enabled:      b.IsEnabled(),
	}
}

// MediaFileResponse is the API shape of a media file.
type MediaFileResponse struct {
	ID          string  `json:"id"`
	Path        string  `json:"path"`
	Filename    string  `json:"filename"`
	Duration    float64 `json:"duration"`
	FileSize    int64   `json:"file_size"`
	DisplayName string  `json:"display_name"`
	ShowName    string  `json:"show_name,omitempty"`
	Season      int     `json:"season,omitempty"`
	Episode     int     `json:"episode,omitempty"`
	Title       string  `json:"title,omitempty"`
}

// MediaFileFromModel converts a media file row to its API shape.
func MediaFileFromModel(m *models.MediaFile) MediaFileResponse {
	return MediaFileResponse{
		ID:          m.ID.String(),
		Path:        m.Path,
		Filename:    m.Filename,
		Duration:    m.Duration,
		FileSize:    m.FileSize,
		DisplayName: m.DisplayName(),
		ShowName:    m.ShowName,
		Season:      m.Season,
		Episode:     m.Episode,
		Title:       m.Title,
	}
}
