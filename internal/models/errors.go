package models

import (
	"errors"
	"fmt"
)

// ErrValidation represents a validation error with field and message.
type ErrValidation struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ErrValidation) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Common errors for models and the channel runtime.
var (
	// ErrNameRequired indicates a required name field is empty.
	ErrNameRequired = errors.New("name is required")

	// ErrSlugRequired indicates a required slug field is empty.
	ErrSlugRequired = errors.New("slug is required")

	// ErrInvalidSlug indicates a slug with characters outside [a-z0-9-].
	ErrInvalidSlug = errors.New("slug must contain only lowercase letters, digits and hyphens")

	// ErrSlugTaken indicates a channel with the same slug already exists.
	ErrSlugTaken = errors.New("a channel with this slug already exists")

	// ErrInvalidStateTransition indicates an unsupported channel state edge.
	ErrInvalidStateTransition = errors.New("invalid channel state transition")

	// ErrChannelNotFound indicates a channel id is absent.
	ErrChannelNotFound = errors.New("channel not found")

	// ErrBucketNotFound indicates a bucket id is absent.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrScheduleBlockNotFound indicates a schedule block id is absent.
	ErrScheduleBlockNotFound = errors.New("schedule block not found")

	// ErrMediaFileNotFound indicates a media file id is absent.
	ErrMediaFileNotFound = errors.New("media file not found")

	// ErrNoMediaAvailable indicates the playlist resolver returned no media.
	ErrNoMediaAvailable = errors.New("no media available for channel")

	// ErrAlreadyStreaming indicates a start was requested on a streaming channel.
	ErrAlreadyStreaming = errors.New("channel is already streaming")

	// ErrTranscoderActive indicates a transcoder is already running for the channel.
	ErrTranscoderActive = errors.New("transcoder already active for channel")

	// ErrTooManyStreams indicates the concurrent stream admission cap was hit.
	ErrTooManyStreams = errors.New("maximum concurrent streams reached")

	// ErrPathRequired indicates a required file path field is empty.
	ErrPathRequired = errors.New("path is required")

	// ErrChannelIDRequired indicates a required channel ID field is zero.
	ErrChannelIDRequired = errors.New("channel_id is required")

	// ErrBucketIDRequired indicates a required bucket ID field is zero.
	ErrBucketIDRequired = errors.New("bucket_id is required")

	// ErrInvalidBucketType indicates an invalid bucket type.
	ErrInvalidBucketType = errors.New("invalid bucket type: must be 'global' or 'channel_specific'")

	// ErrInvalidPlaybackMode indicates an invalid schedule block playback mode.
	ErrInvalidPlaybackMode = errors.New("invalid playback mode: must be 'sequential', 'random' or 'shuffle'")

	// ErrInvalidTimeFormat indicates a block time not in HH:MM:SS form.
	ErrInvalidTimeFormat = errors.New("time must be in HH:MM:SS 24-hour format")

	// ErrInvalidTimeRange indicates end time is not after start time.
	ErrInvalidTimeRange = errors.New("end time must be after start time")

	// ErrInvalidDayOfWeek indicates a day outside 0..6.
	ErrInvalidDayOfWeek = errors.New("day of week must be between 0 (Sunday) and 6 (Saturday)")

	// ErrInvalidPriority indicates a schedule block priority below 1.
	ErrInvalidPriority = errors.New("priority must be at least 1")

	// ErrInvalidIndex indicates a media index outside the playlist bounds.
	ErrInvalidIndex = errors.New("index is out of range")
)
