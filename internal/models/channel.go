package models

import (
	"regexp"
	"time"

	"gorm.io/gorm"
)

// ChannelState is the lifecycle state of a channel's stream.
type ChannelState string

// Channel lifecycle states.
const (
	ChannelStateIdle      ChannelState = "idle"
	ChannelStateStarting  ChannelState = "starting"
	ChannelStateStreaming ChannelState = "streaming"
	ChannelStateStopping  ChannelState = "stopping"
	ChannelStateError     ChannelState = "error"
)

// legalTransitions enumerates every allowed state edge. Any edge not listed
// fails with ErrInvalidStateTransition and leaves the state untouched.
var legalTransitions = map[ChannelState][]ChannelState{
	ChannelStateIdle:      {ChannelStateStarting},
	ChannelStateStarting:  {ChannelStateStreaming, ChannelStateError, ChannelStateIdle},
	ChannelStateStreaming: {ChannelStateStopping, ChannelStateError},
	ChannelStateStopping:  {ChannelStateIdle, ChannelStateError},
	ChannelStateError:     {ChannelStateIdle, ChannelStateStarting},
}

var slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// Channel represents a persistent virtual TV channel with its own schedule.
type Channel struct {
	BaseModel

	// Name is the display name of the channel.
	Name string `gorm:"not null;size:255" json:"name"`

	// Slug is the unique URL-safe identifier used in stream paths.
	Slug string `gorm:"not null;size:255;uniqueIndex" json:"slug"`

	// OutputDir overrides the computed output directory when non-empty.
	OutputDir string `gorm:"size:4096" json:"output_dir,omitempty"`

	// VideoBitrate is the target video bitrate in kbps.
	VideoBitrate int `gorm:"default:4000" json:"video_bitrate"`

	// AudioBitrate is the target audio bitrate in kbps.
	AudioBitrate int `gorm:"default:192" json:"audio_bitrate"`

	// Resolution is the output resolution as WIDTHxHEIGHT, e.g. "1920x1080".
	Resolution string `gorm:"size:20;default:'1920x1080'" json:"resolution"`

	// FPS is the output frame rate.
	FPS int `gorm:"default:30" json:"fps"`

	// SegmentDuration is the HLS segment duration in seconds (1..30).
	SegmentDuration int `gorm:"default:6" json:"segment_duration"`

	// AutoStart starts the channel on process startup regardless of viewers.
	AutoStart bool `gorm:"default:false" json:"auto_start"`

	// UseDynamicPlaylist enables schedule-block driven playlist resolution.
	UseDynamicPlaylist bool `gorm:"default:false" json:"use_dynamic_playlist"`

	// IncludeBumpers enables "Up Next" interstitials between programs.
	// Nil means true.
	IncludeBumpers *bool `gorm:"default:true" json:"include_bumpers,omitempty"`

	// CurrentIndex is the index of the file currently (or last) playing.
	CurrentIndex int `gorm:"default:0" json:"current_index"`

	// ViewerCount is the number of active viewer sessions. Never negative.
	ViewerCount int `gorm:"default:0" json:"viewer_count"`

	// State is the channel lifecycle state.
	State ChannelState `gorm:"size:20;default:'idle';index" json:"state"`

	// StartedAt is set when the channel transitions to streaming.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// LastError holds the most recent failure message, if any.
	LastError string `gorm:"type:text" json:"last_error,omitempty"`
}

// TableName returns the table name for Channel.
func (Channel) TableName() string {
	return "channels"
}

// Validate performs basic validation on the channel.
func (c *Channel) Validate() error {
	if c.Name == "" {
		return ErrNameRequired
	}
	if c.Slug == "" {
		return ErrSlugRequired
	}
	if !slugPattern.MatchString(c.Slug) {
		return ErrInvalidSlug
	}
	if c.SegmentDuration < 1 || c.SegmentDuration > 30 {
		return ErrValidation{Field: "segment_duration", Message: "must be between 1 and 30 seconds"}
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the channel and generates ULID.
func (c *Channel) BeforeCreate(tx *gorm.DB) error {
	if err := c.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	if c.State == "" {
		c.State = ChannelStateIdle
	}
	return c.Validate()
}

// BeforeUpdate is a GORM hook that validates the channel before update.
func (c *Channel) BeforeUpdate(tx *gorm.DB) error {
	return c.Validate()
}

// BumpersEnabled reports whether bumpers are enabled, defaulting to true.
func (c *Channel) BumpersEnabled() bool {
	return BoolVal(c.IncludeBumpers)
}

// CanTransitionTo reports whether the edge from the current state to target
// is legal.
func (c *Channel) CanTransitionTo(target ChannelState) bool {
	for _, s := range legalTransitions[c.State] {
		if s == target {
			return true
		}
	}
	return false
}

// TransitionTo moves the channel to target, failing with
// ErrInvalidStateTransition on an illegal edge. Transitioning to streaming
// records StartedAt.
func (c *Channel) TransitionTo(target ChannelState) error {
	if !c.CanTransitionTo(target) {
		return ErrInvalidStateTransition
	}
	c.State = target
	if target == ChannelStateStreaming {
		now := time.Now()
		c.StartedAt = &now
	}
	return nil
}

// SetError records the failure message and moves the channel to the error
// state in one step. The edge to error is legal from every non-idle state;
// from idle the message is recorded without a state change.
func (c *Channel) SetError(msg string) {
	c.LastError = msg
	if c.CanTransitionTo(ChannelStateError) {
		c.State = ChannelStateError
	}
}

// UpdateCurrentIndex sets the currently-playing file index.
func (c *Channel) UpdateCurrentIndex(index int) {
	if index < 0 {
		index = 0
	}
	c.CurrentIndex = index
}

// IncrementViewerCount adds one viewer.
func (c *Channel) IncrementViewerCount() {
	c.ViewerCount++
}

// DecrementViewerCount removes one viewer, clamped at zero.
func (c *Channel) DecrementViewerCount() {
	if c.ViewerCount > 0 {
		c.ViewerCount--
	}
}
