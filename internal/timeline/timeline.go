// Package timeline computes the wall-clock playback position for a channel.
//
// Each channel has a persistent schedule start time (its epoch). The position
// of "what should be playing now" is the elapsed time since the epoch, modulo
// the total playlist duration. The epoch is never advanced: pausing the
// encoder does not pause the schedule, so a returning viewer always lands
// mid-program the way broadcast TV would.
package timeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/castarr/castarr/internal/models"
	"github.com/castarr/castarr/internal/repository"
)

// Position is a resolved playback position within an ordered media list.
type Position struct {
	// FileIndex is the index into the media list.
	FileIndex int
	// SeekSeconds is the offset into that file.
	SeekSeconds float64
}

// Service maps (now, media list) to a playback position per channel.
type Service struct {
	repo   repository.ScheduleTimeRepository
	logger *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewService creates a timeline service.
func NewService(repo repository.ScheduleTimeRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		logger: logger.With("component", "timeline"),
		now:    time.Now,
	}
}

// Initialize sets the channel's schedule epoch to now if it has none.
// Idempotent: an existing epoch is never moved.
func (s *Service) Initialize(ctx context.Context, channelID models.ULID) error {
	if err := s.repo.Initialize(ctx, channelID, s.now()); err != nil {
		return fmt.Errorf("initializing schedule timeline: %w", err)
	}
	return nil
}

// Has reports whether the channel has a schedule epoch.
func (s *Service) Has(ctx context.Context, channelID models.ULID) (bool, error) {
	return s.repo.Has(ctx, channelID)
}

// StartTime returns the channel's schedule epoch, or nil if absent.
func (s *Service) StartTime(ctx context.Context, channelID models.ULID) (*time.Time, error) {
	row, err := s.repo.Get(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	t := row.StartTime
	return &t, nil
}

// SetStartTime overwrites the channel's schedule epoch. This is the explicit
// operator action; normal operation never moves the epoch.
func (s *Service) SetStartTime(ctx context.Context, channelID models.ULID, start time.Time) error {
	if err := s.repo.Set(ctx, channelID, start); err != nil {
		return fmt.Errorf("setting schedule start time: %w", err)
	}
	return nil
}

// CurrentPosition returns the position within media that should be playing
// right now, or ok=false when the channel has no epoch, media is empty, or
// the total duration is not positive.
func (s *Service) CurrentPosition(ctx context.Context, channelID models.ULID, media []*models.MediaFile) (Position, bool, error) {
	row, err := s.repo.Get(ctx, channelID)
	if err != nil {
		return Position{}, false, err
	}
	if row == nil {
		return Position{}, false, nil
	}

	pos, ok := PositionAt(row.StartTime, s.now(), media)
	if !ok {
		return Position{}, false, nil
	}

	s.logger.Debug("computed timeline position",
		"channel_id", channelID,
		"file_index", pos.FileIndex,
		"seek_seconds", pos.SeekSeconds)
	return pos, true, nil
}

// PositionAt computes the position within media for a given epoch and
// instant. Exposed so the EPG generator can walk the same arithmetic.
func PositionAt(epoch, now time.Time, media []*models.MediaFile) (Position, bool) {
	if len(media) == 0 {
		return Position{}, false
	}

	var total float64
	for _, m := range media {
		total += m.Duration
	}
	if total <= 0 {
		return Position{}, false
	}

	elapsed := now.Sub(epoch).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}

	pos := mod(elapsed, total)

	var cumulative float64
	for i, m := range media {
		if pos < cumulative+m.Duration {
			return Position{FileIndex: i, SeekSeconds: pos - cumulative}, true
		}
		cumulative += m.Duration
	}

	// pos == total can only happen through float rounding; land on the last file.
	last := len(media) - 1
	return Position{FileIndex: last, SeekSeconds: media[last].Duration}, true
}

// mod is a float modulo that always returns a value in [0, total).
func mod(x, total float64) float64 {
	r := x - total*float64(int64(x/total))
	if r < 0 {
		r += total
	}
	if r >= total {
		r = 0
	}
	return r
}
