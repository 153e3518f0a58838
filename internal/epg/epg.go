// Package epg derives the program guide from a channel's schedule.
//
// The guide is a pure function of (schedule epoch, media lists, schedule
// blocks, wall clock): the playlist loops from the epoch, so walking
// cumulative durations yields the start and end of every program. For
// dynamic channels the walk re-resolves the media list at every schedule
// block boundary. Results are cached per channel behind a monotonic version
// that collaborators bump on any media or schedule mutation.
package epg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/castarr/castarr/internal/models"
	"github.com/castarr/castarr/internal/playlist"
	"github.com/castarr/castarr/internal/timeline"
)

// DefaultHorizon is how far ahead the guide is generated.
const DefaultHorizon = 24 * time.Hour

// cacheTTL bounds how stale a cached guide may get even without an
// explicit invalidation, since the guide is anchored to "now".
const cacheTTL = 10 * time.Minute

// Program is one guide entry.
type Program struct {
	ID        string      `json:"id"`
	ChannelID models.ULID `json:"channel_id"`
	StartTime time.Time   `json:"start_time"`
	EndTime   time.Time   `json:"end_time"`
	// StartOffsetSeconds is how far into the file playback already was at
	// StartTime. Nonzero when the program joined in progress at a
	// schedule-block boundary.
	StartOffsetSeconds float64      `json:"start_offset_seconds,omitempty"`
	Title              string       `json:"title"`
	Description        string       `json:"description,omitempty"`
	Category           string       `json:"category,omitempty"`
	EpisodeNum         string       `json:"episode_num,omitempty"`
	MediaFileID        models.ULID  `json:"media_file_id"`
	BlockID            *models.ULID `json:"schedule_block_id,omitempty"`
}

type cacheEntry struct {
	programs    []Program
	version     uint64
	generatedAt time.Time
}

// Generator builds and caches program guides.
type Generator struct {
	timeline *timeline.Service
	resolver *playlist.Resolver
	logger   *slog.Logger
	horizon  time.Duration

	mu       sync.Mutex
	cache    map[models.ULID]*cacheEntry
	versions map[models.ULID]uint64

	// now is swappable for tests.
	now func() time.Time
}

// NewGenerator creates an EPG generator. horizon <= 0 uses DefaultHorizon.
func NewGenerator(tl *timeline.Service, resolver *playlist.Resolver, horizon time.Duration, logger *slog.Logger) *Generator {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		timeline: tl,
		resolver: resolver,
		logger:   logger.With("component", "epg"),
		horizon:  horizon,
		cache:    make(map[models.ULID]*cacheEntry),
		versions: make(map[models.ULID]uint64),
	}
}

// Invalidate bumps the channel's guide version so the next read regenerates.
func (g *Generator) Invalidate(channelID models.ULID) {
	g.mu.Lock()
	g.versions[channelID]++
	delete(g.cache, channelID)
	g.mu.Unlock()
	g.logger.Debug("invalidated epg cache", "channel_id", channelID)
}

// Programs returns the channel's guide, regenerating when the cache is
// missing, invalidated, or stale.
func (g *Generator) Programs(ctx context.Context, channel *models.Channel) ([]Program, error) {
	now := g.clock()

	g.mu.Lock()
	version := g.versions[channel.ID]
	entry := g.cache[channel.ID]
	g.mu.Unlock()

	if entry != nil && entry.version == version && now.Sub(entry.generatedAt) < cacheTTL {
		return entry.programs, nil
	}

	programs, err := g.generate(ctx, channel, now)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	// A concurrent Invalidate wins over this regeneration.
	if g.versions[channel.ID] == version {
		g.cache[channel.ID] = &cacheEntry{programs: programs, version: version, generatedAt: now}
	}
	g.mu.Unlock()
	return programs, nil
}

// GeneratePrograms builds a guide for an explicit media list without
// touching the cache. The runtime uses this during start to find the
// currently-airing program of a tentative media list.
func (g *Generator) GeneratePrograms(ctx context.Context, channel *models.Channel, media []*models.MediaFile) ([]Program, error) {
	now := g.clock()
	epoch, err := g.epoch(ctx, channel.ID, now)
	if err != nil {
		return nil, err
	}
	return g.walkSegment(channel, media, nil, epoch, now, now.Add(g.horizon), false), nil
}

// CurrentAndNext returns the currently-airing program and the one after it.
// Either may be nil when the guide is empty or exhausted.
func (g *Generator) CurrentAndNext(ctx context.Context, channel *models.Channel) (*Program, *Program, error) {
	programs, err := g.Programs(ctx, channel)
	if err != nil {
		return nil, nil, err
	}
	now := g.clock()
	for i := range programs {
		p := &programs[i]
		if !now.Before(p.StartTime) && now.Before(p.EndTime) {
			var next *Program
			if i+1 < len(programs) {
				next = &programs[i+1]
			}
			return p, next, nil
		}
	}
	return nil, nil, nil
}

// CurrentPlaybackPosition maps the currently-airing program onto the given
// media list: the returned index is the file the guide says is on right
// now, with the seek offset into it. The program's media id is matched
// first; when the list no longer contains it, the display-name tie-break
// applies; failing both, ok is false and the caller falls back to the raw
// timeline.
func (g *Generator) CurrentPlaybackPosition(ctx context.Context, channel *models.Channel, media []*models.MediaFile) (timeline.Position, bool, error) {
	current, _, err := g.CurrentAndNext(ctx, channel)
	if err != nil {
		return timeline.Position{}, false, err
	}
	if current == nil {
		return timeline.Position{}, false, nil
	}

	// StartOffsetSeconds accounts for a program that joined mid-file at a
	// schedule-block boundary; the guide's StartTime is the boundary, not
	// the start of the file.
	seek := current.StartOffsetSeconds + g.clock().Sub(current.StartTime).Seconds()
	if seek < 0 {
		seek = 0
	}

	for i, m := range media {
		if m.ID == current.MediaFileID {
			return timeline.Position{FileIndex: i, SeekSeconds: seek}, true, nil
		}
	}
	for i, m := range media {
		if m.DisplayName() == current.Title {
			return timeline.Position{FileIndex: i, SeekSeconds: seek}, true, nil
		}
	}
	return timeline.Position{}, false, nil
}

// generate builds the guide for the horizon starting at now.
func (g *Generator) generate(ctx context.Context, channel *models.Channel, now time.Time) ([]Program, error) {
	epoch, err := g.epoch(ctx, channel.ID, now)
	if err != nil {
		return nil, err
	}
	end := now.Add(g.horizon)

	if !channel.UseDynamicPlaylist {
		res, err := g.resolver.Resolve(ctx, channel, now)
		if err != nil {
			return nil, err
		}
		return g.walkSegment(channel, res.Media, nil, epoch, now, end, false), nil
	}

	// Dynamic: re-resolve at every schedule-block boundary within the
	// horizon; each boundary may change both the media list and its order.
	var programs []Program
	cursor := now
	for cursor.Before(end) {
		segEnd := end
		if next, ok := g.nextBlockBoundary(ctx, channel.ID, cursor); ok && next.Before(segEnd) {
			segEnd = next
		}

		res, err := g.resolver.Resolve(ctx, channel, cursor)
		if err != nil {
			if errors.Is(err, models.ErrNoMediaAvailable) {
				// Dead air until the next block opens.
				cursor = segEnd
				continue
			}
			return nil, err
		}

		var blockID *models.ULID
		if res.Block != nil {
			id := res.Block.ID
			blockID = &id
		}
		programs = append(programs, g.walkSegment(channel, res.Media, blockID, epoch, cursor, segEnd, cursor.After(now))...)
		cursor = segEnd
	}
	return programs, nil
}

// nextBlockBoundary returns the earliest start or end of any of the
// channel's blocks strictly after t.
func (g *Generator) nextBlockBoundary(ctx context.Context, channelID models.ULID, t time.Time) (time.Time, bool) {
	blocks, err := g.blocksFor(ctx, channelID)
	if err != nil {
		g.logger.Warn("failed loading blocks for boundary walk", "channel_id", channelID, "error", err)
		return time.Time{}, false
	}
	var earliest time.Time
	found := false
	for _, b := range blocks {
		if !b.IsEnabled() {
			continue
		}
		if next, ok := b.NextBoundaryAfter(t); ok {
			if !found || next.Before(earliest) {
				earliest = next
				found = true
			}
		}
	}
	return earliest, found
}

func (g *Generator) blocksFor(ctx context.Context, channelID models.ULID) ([]*models.ScheduleBlock, error) {
	// The resolver owns block access; go through it so ordering rules stay
	// in one place.
	return g.resolver.Blocks(ctx, channelID)
}

// walkSegment emits one program per media file from segStart to segEnd,
// anchored to the epoch: the file airing at segStart started at
// segStart - seek, and files follow each other by duration, looping.
// Emitted entries are truncated to [segStart, segEnd) so adjacent segments
// never overlap in the guide; clampStart additionally pulls the first
// program's start up to segStart, recording how much of the file had
// already played in StartOffsetSeconds. Callers leave clampStart false for
// the segment containing "now" so the guide shows when the airing program
// really began.
func (g *Generator) walkSegment(channel *models.Channel, media []*models.MediaFile, blockID *models.ULID, epoch, segStart, segEnd time.Time, clampStart bool) []Program {
	pos, ok := timeline.PositionAt(epoch, segStart, media)
	if !ok {
		return nil
	}

	var programs []Program
	idx := pos.FileIndex
	fileStart := segStart.Add(-time.Duration(pos.SeekSeconds * float64(time.Second)))
	for fileStart.Before(segEnd) {
		m := media[idx]
		dur := time.Duration(m.Duration * float64(time.Second))
		if dur <= 0 {
			break
		}
		fileEnd := fileStart.Add(dur)

		start := fileStart
		var offset float64
		if clampStart && start.Before(segStart) {
			start = segStart
			offset = segStart.Sub(fileStart).Seconds()
		}
		end := fileEnd
		if end.After(segEnd) {
			end = segEnd
		}
		if end.After(start) {
			programs = append(programs, Program{
				ID:                 fmt.Sprintf("%s-%d", channel.ID, start.Unix()),
				ChannelID:          channel.ID,
				StartTime:          start,
				EndTime:            end,
				StartOffsetSeconds: offset,
				Title:              m.DisplayName(),
				Category:           "Series",
				EpisodeNum:         m.EpisodeNum(),
				MediaFileID:        m.ID,
				BlockID:            blockID,
			})
		}
		fileStart = fileEnd
		idx = (idx + 1) % len(media)
	}
	return programs
}

// epoch returns the channel's schedule epoch, or now when it has none yet.
func (g *Generator) epoch(ctx context.Context, channelID models.ULID, now time.Time) (time.Time, error) {
	start, err := g.timeline.StartTime(ctx, channelID)
	if err != nil {
		return time.Time{}, fmt.Errorf("loading schedule epoch: %w", err)
	}
	if start == nil {
		return now, nil
	}
	return *start, nil
}

func (g *Generator) clock() time.Time {
	if g.now != nil {
		return g.now()
	}
	return time.Now()
}
