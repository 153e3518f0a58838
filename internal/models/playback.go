package models

import (
	"time"

	"gorm.io/gorm"
)

// ScheduleStartTime is the persistent wall-clock anchor for a channel. It is
// set once when the channel is first initialized and never advanced; pause
// and resume leave it untouched so time keeps flowing like a broadcaster's
// wall clock.
type ScheduleStartTime struct {
	BaseModel

	ChannelID ULID      `gorm:"type:varchar(26);not null;uniqueIndex" json:"channel_id"`
	StartTime time.Time `gorm:"not null" json:"start_time"`
}

// TableName returns the table name for ScheduleStartTime.
func (ScheduleStartTime) TableName() string {
	return "schedule_start_times"
}

// BeforeCreate is a GORM hook that validates the row and generates ULID.
func (s *ScheduleStartTime) BeforeCreate(tx *gorm.DB) error {
	if err := s.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	if s.ChannelID.IsZero() {
		return ErrChannelIDRequired
	}
	return nil
}

// BucketProgression tracks where a sequential schedule block left off in its
// bucket so the next airing resumes instead of starting over.
type BucketProgression struct {
	BaseModel

	ChannelID ULID `gorm:"type:varchar(26);not null;index:idx_progression,unique" json:"channel_id"`
	BucketID  ULID `gorm:"type:varchar(26);not null;index:idx_progression,unique" json:"bucket_id"`

	LastPlayedMediaID ULID `gorm:"type:varchar(26)" json:"last_played_media_id"`
	Position          int  `gorm:"not null;default:0" json:"position"`
}

// TableName returns the table name for BucketProgression.
func (BucketProgression) TableName() string {
	return "bucket_progression"
}

// BeforeCreate is a GORM hook that validates the row and generates ULID.
func (p *BucketProgression) BeforeCreate(tx *gorm.DB) error {
	if err := p.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	if p.ChannelID.IsZero() {
		return ErrChannelIDRequired
	}
	if p.BucketID.IsZero() {
		return ErrBucketIDRequired
	}
	return nil
}

// SessionType distinguishes cold starts from viewer-driven resumes.
type SessionType string

// SessionTrigger records what initiated the playback.
type SessionTrigger string

// Playback session types and triggers.
const (
	SessionTypeStarted SessionType = "started"
	SessionTypeResumed SessionType = "resumed"

	SessionTriggerManual    SessionTrigger = "manual"
	SessionTriggerAutomatic SessionTrigger = "automatic"
)

// PlaybackSession is an audit row covering one continuous encoding run.
type PlaybackSession struct {
	BaseModel

	ChannelID ULID           `gorm:"type:varchar(26);not null;index" json:"channel_id"`
	StartedAt time.Time      `gorm:"not null" json:"started_at"`
	EndedAt   *time.Time     `json:"ended_at,omitempty"`
	Type      SessionType    `gorm:"size:20;not null" json:"type"`
	Trigger   SessionTrigger `gorm:"size:20;not null" json:"trigger"`
}

// TableName returns the table name for PlaybackSession.
func (PlaybackSession) TableName() string {
	return "playback_sessions"
}

// BeforeCreate is a GORM hook that validates the row and generates ULID.
func (s *PlaybackSession) BeforeCreate(tx *gorm.DB) error {
	if err := s.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	if s.ChannelID.IsZero() {
		return ErrChannelIDRequired
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now()
	}
	return nil
}

// Setting is a typed key/value row for process-wide persisted settings.
type Setting struct {
	BaseModel

	Key   string `gorm:"not null;size:255;uniqueIndex" json:"key"`
	Value string `gorm:"type:text" json:"value"`
}

// TableName returns the table name for Setting.
func (Setting) TableName() string {
	return "settings"
}
