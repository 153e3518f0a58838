// Package playlist resolves the ordered media list a channel should play.
//
// Static channels play the union of their associated buckets, highest
// priority first, deduplicated. Dynamic channels consult schedule blocks:
// the highest-priority active block wins and its bucket is ordered by the
// block's playback mode (sequential rotation, per-day random, or
// per-activation-window shuffle).
package playlist

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand"
	"time"

	"github.com/castarr/castarr/internal/models"
	"github.com/castarr/castarr/internal/repository"
)

// Resolution is the outcome of resolving a channel's media list.
type Resolution struct {
	// Media is the ordered list the channel should play. Never empty on a
	// nil-error return from Resolve.
	Media []*models.MediaFile
	// Block is the active schedule block the list came from, or nil for a
	// static resolution.
	Block *models.ScheduleBlock
}

// Resolver picks media lists for channels.
type Resolver struct {
	buckets      repository.BucketRepository
	blocks       repository.ScheduleBlockRepository
	progressions repository.ProgressionRepository
	logger       *slog.Logger
}

// NewResolver creates a playlist resolver.
func NewResolver(
	buckets repository.BucketRepository,
	blocks repository.ScheduleBlockRepository,
	progressions repository.ProgressionRepository,
	logger *slog.Logger,
) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		buckets:      buckets,
		blocks:       blocks,
		progressions: progressions,
		logger:       logger.With("component", "playlist"),
	}
}

// Resolve returns the media list the channel should be playing at the given
// time. Returns models.ErrNoMediaAvailable when nothing resolves.
func (r *Resolver) Resolve(ctx context.Context, channel *models.Channel, at time.Time) (*Resolution, error) {
	if channel.UseDynamicPlaylist {
		block, err := r.ActiveBlock(ctx, channel.ID, at)
		if err != nil {
			return nil, err
		}
		if block != nil {
			media, err := r.resolveBlock(ctx, channel.ID, block, at)
			if err != nil {
				return nil, err
			}
			if len(media) > 0 {
				return &Resolution{Media: media, Block: block}, nil
			}
			r.logger.Warn("active schedule block has no media, falling back to static",
				"channel_id", channel.ID, "block_id", block.ID)
		}
	}

	media, err := r.resolveStatic(ctx, channel.ID)
	if err != nil {
		return nil, err
	}
	if len(media) == 0 {
		return nil, models.ErrNoMediaAvailable
	}
	return &Resolution{Media: media}, nil
}

// ActiveBlock returns the highest-priority enabled block whose window
// contains the given time, or nil when none is active. Blocks arrive from
// the repository ordered by priority descending with creation-order
// tie-break, so the first active one wins.
func (r *Resolver) ActiveBlock(ctx context.Context, channelID models.ULID, at time.Time) (*models.ScheduleBlock, error) {
	blocks, err := r.blocks.GetByChannel(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("loading schedule blocks: %w", err)
	}
	for _, b := range blocks {
		if b.IsActiveAt(at) {
			return b, nil
		}
	}
	return nil, nil
}

// Blocks returns the channel's schedule blocks in priority order. Exposed
// for the EPG boundary walk so block ordering rules live in one place.
func (r *Resolver) Blocks(ctx context.Context, channelID models.ULID) ([]*models.ScheduleBlock, error) {
	return r.blocks.GetByChannel(ctx, channelID)
}

// resolveStatic unions the channel's buckets, higher priority first,
// deduplicating by media id while preserving first occurrence.
func (r *Resolver) resolveStatic(ctx context.Context, channelID models.ULID) ([]*models.MediaFile, error) {
	assocs, err := r.buckets.GetChannelBuckets(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("loading channel buckets: %w", err)
	}

	seen := make(map[models.ULID]struct{})
	var out []*models.MediaFile
	for _, assoc := range assocs {
		files, err := r.buckets.GetMedia(ctx, assoc.BucketID)
		if err != nil {
			return nil, fmt.Errorf("loading bucket media: %w", err)
		}
		for _, f := range files {
			if _, dup := seen[f.ID]; dup {
				continue
			}
			seen[f.ID] = struct{}{}
			out = append(out, f)
		}
	}
	return out, nil
}

// resolveBlock orders the block's bucket by its playback mode.
func (r *Resolver) resolveBlock(ctx context.Context, channelID models.ULID, block *models.ScheduleBlock, at time.Time) ([]*models.MediaFile, error) {
	files, err := r.buckets.GetMedia(ctx, block.BucketID)
	if err != nil {
		return nil, fmt.Errorf("loading block bucket media: %w", err)
	}
	if len(files) == 0 {
		return nil, nil
	}

	switch block.PlaybackMode {
	case models.PlaybackModeSequential:
		return r.rotateSequential(ctx, channelID, block.BucketID, files)
	case models.PlaybackModeRandom:
		// Stable for a given calendar day so the guide does not churn.
		return shuffled(files, daySeed(channelID, block.ID, at)), nil
	case models.PlaybackModeShuffle:
		// Re-shuffled every time the block's window re-opens.
		return shuffled(files, windowSeed(channelID, block.ID, block.WindowStartAt(at))), nil
	default:
		return files, nil
	}
}

// rotateSequential rotates the bucket so playback continues after the media
// file the channel last finished in this bucket.
func (r *Resolver) rotateSequential(ctx context.Context, channelID, bucketID models.ULID, files []*models.MediaFile) ([]*models.MediaFile, error) {
	prog, err := r.progressions.Get(ctx, channelID, bucketID)
	if err != nil {
		return nil, fmt.Errorf("loading bucket progression: %w", err)
	}
	if prog == nil {
		return files, nil
	}

	// Prefer the recorded media id; position is the fallback when the file
	// was removed from the bucket since.
	offset := -1
	for i, f := range files {
		if f.ID == prog.LastPlayedMediaID {
			offset = i + 1
			break
		}
	}
	if offset < 0 {
		offset = prog.Position + 1
	}
	offset %= len(files)
	if offset == 0 {
		return files, nil
	}

	rotated := make([]*models.MediaFile, 0, len(files))
	rotated = append(rotated, files[offset:]...)
	rotated = append(rotated, files[:offset]...)
	return rotated, nil
}

// RecordProgress persists that the channel just finished playing mediaID
// from the bucket, so the next sequential resolution continues after it.
func (r *Resolver) RecordProgress(ctx context.Context, channelID, bucketID models.ULID, media []*models.MediaFile, mediaID models.ULID) error {
	pos := 0
	for i, f := range media {
		if f.ID == mediaID {
			pos = i
			break
		}
	}
	return r.progressions.Upsert(ctx, &models.BucketProgression{
		ChannelID:         channelID,
		BucketID:          bucketID,
		LastPlayedMediaID: mediaID,
		Position:          pos,
	})
}

// shuffled returns a new slice with a deterministic permutation of files.
func shuffled(files []*models.MediaFile, seed int64) []*models.MediaFile {
	out := make([]*models.MediaFile, len(files))
	copy(out, files)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}

// daySeed derives a seed stable for one calendar day.
func daySeed(channelID, blockID models.ULID, at time.Time) int64 {
	return hashSeed(channelID.String(), blockID.String(), at.Format("2006-01-02"))
}

// windowSeed derives a seed stable for one activation window of a block.
func windowSeed(channelID, blockID models.ULID, windowStart time.Time) int64 {
	return hashSeed(channelID.String(), blockID.String(), windowStart.UTC().Format(time.RFC3339))
}

func hashSeed(parts ...string) int64 {
	h := fnv.New64a()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return int64(h.Sum64())
}
