package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
)

// PlaybackMode controls how a schedule block orders its bucket's media.
type PlaybackMode string

// Playback modes.
const (
	// PlaybackModeSequential resumes from the bucket's persisted progression.
	PlaybackModeSequential PlaybackMode = "sequential"
	// PlaybackModeRandom is pseudo-random, seeded per (channel, block, day)
	// so the order is stable within one calendar day.
	PlaybackModeRandom PlaybackMode = "random"
	// PlaybackModeShuffle is pseudo-random, seeded per block-activation
	// window so each airing of the block gets a fresh order.
	PlaybackModeShuffle PlaybackMode = "shuffle"
)

// ScheduleBlock ties a channel to a bucket during a daily time window.
// Blocks are only consulted for channels with UseDynamicPlaylist set.
type ScheduleBlock struct {
	BaseModel

	ChannelID ULID `gorm:"type:varchar(26);not null;index" json:"channel_id"`
	BucketID  ULID `gorm:"type:varchar(26);not null" json:"bucket_id"`

	// DaysOfWeek is a comma-separated subset of 0..6 (0=Sunday).
	// Empty means every day.
	DaysOfWeek string `gorm:"size:20" json:"days_of_week,omitempty"`

	// StartTime and EndTime are local wall-clock times as HH:MM:SS.
	StartTime string `gorm:"not null;size:8" json:"start_time"`
	EndTime   string `gorm:"not null;size:8" json:"end_time"`

	PlaybackMode PlaybackMode `gorm:"size:20;default:'sequential'" json:"playback_mode"`

	// Priority breaks overlaps: among active blocks the highest wins,
	// ties broken by creation order.
	Priority int `gorm:"not null;default:1" json:"priority"`

	Enabled *bool `gorm:"default:true" json:"enabled,omitempty"`
}

// TableName returns the table name for ScheduleBlock.
func (ScheduleBlock) TableName() string {
	return "schedule_blocks"
}

// Validate performs basic validation on the block.
func (b *ScheduleBlock) Validate() error {
	if b.ChannelID.IsZero() {
		return ErrChannelIDRequired
	}
	if b.BucketID.IsZero() {
		return ErrBucketIDRequired
	}
	start, err := parseDayTime(b.StartTime)
	if err != nil {
		return ErrInvalidTimeFormat
	}
	end, err := parseDayTime(b.EndTime)
	if err != nil {
		return ErrInvalidTimeFormat
	}
	if end <= start {
		return ErrInvalidTimeRange
	}
	switch b.PlaybackMode {
	case PlaybackModeSequential, PlaybackModeRandom, PlaybackModeShuffle:
	default:
		return ErrInvalidPlaybackMode
	}
	if b.Priority < 1 {
		return ErrInvalidPriority
	}
	if _, err := parseDays(b.DaysOfWeek); err != nil {
		return err
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the block and generates ULID.
func (b *ScheduleBlock) BeforeCreate(tx *gorm.DB) error {
	if err := b.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	if b.PlaybackMode == "" {
		b.PlaybackMode = PlaybackModeSequential
	}
	return b.Validate()
}

// BeforeUpdate is a GORM hook that validates the block before update.
func (b *ScheduleBlock) BeforeUpdate(tx *gorm.DB) error {
	return b.Validate()
}

// IsEnabled reports whether the block is enabled, defaulting to true.
func (b *ScheduleBlock) IsEnabled() bool {
	return BoolVal(b.Enabled)
}

// IsActiveAt reports whether the block is active at t (local time):
// enabled, t's weekday in DaysOfWeek (or all days), and
// StartTime <= t.timeOfDay < EndTime.
func (b *ScheduleBlock) IsActiveAt(t time.Time) bool {
	if !b.IsEnabled() {
		return false
	}
	days, err := parseDays(b.DaysOfWeek)
	if err != nil {
		return false
	}
	if len(days) > 0 {
		ok := false
		for _, d := range days {
			if d == int(t.Weekday()) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	start, err1 := parseDayTime(b.StartTime)
	end, err2 := parseDayTime(b.EndTime)
	if err1 != nil || err2 != nil {
		return false
	}
	secs := t.Hour()*3600 + t.Minute()*60 + t.Second()
	return secs >= start && secs < end
}

// WindowStartAt returns the activation-window start of the block on t's day.
// Used as the shuffle seed anchor.
func (b *ScheduleBlock) WindowStartAt(t time.Time) time.Time {
	start, err := parseDayTime(b.StartTime)
	if err != nil {
		start = 0
	}
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return midnight.Add(time.Duration(start) * time.Second)
}

// NextBoundaryAfter returns the earliest start or end of this block strictly
// after t, looking ahead up to seven days. Used by the EPG walk and the
// progression loop to find schedule-block transitions.
func (b *ScheduleBlock) NextBoundaryAfter(t time.Time) (time.Time, bool) {
	start, err1 := parseDayTime(b.StartTime)
	end, err2 := parseDayTime(b.EndTime)
	if err1 != nil || err2 != nil {
		return time.Time{}, false
	}
	days, err := parseDays(b.DaysOfWeek)
	if err != nil {
		return time.Time{}, false
	}
	dayOK := func(d time.Weekday) bool {
		if len(days) == 0 {
			return true
		}
		for _, x := range days {
			if x == int(d) {
				return true
			}
		}
		return false
	}
	for offset := 0; offset < 8; offset++ {
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()).AddDate(0, 0, offset)
		if !dayOK(day.Weekday()) {
			continue
		}
		for _, secs := range []int{start, end} {
			candidate := day.Add(time.Duration(secs) * time.Second)
			if candidate.After(t) {
				return candidate, true
			}
		}
	}
	return time.Time{}, false
}

// parseDayTime converts HH:MM:SS to seconds since midnight.
func parseDayTime(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute %q", s)
	}
	sec, err := strconv.Atoi(parts[2])
	if err != nil || sec < 0 || sec > 59 {
		return 0, fmt.Errorf("invalid second %q", s)
	}
	return h*3600 + m*60 + sec, nil
}

// parseDays parses the comma-separated day list. Empty input yields nil,
// meaning every day.
func parseDays(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var days []int
	for _, p := range strings.Split(s, ",") {
		d, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || d < 0 || d > 6 {
			return nil, ErrInvalidDayOfWeek
		}
		days = append(days, d)
	}
	return days, nil
}
