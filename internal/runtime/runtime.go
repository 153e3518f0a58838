// Package runtime orchestrates the per-channel streaming lifecycle.
//
// It composes the timeline, playlist resolver, EPG, bumper generator,
// concat manager, transcoder adapter and viewer presence tracker into the
// channel state machine: start, stop, restart, the progression loop that
// detects file and schedule-block transitions, viewer-driven pause and
// resume, and startup recovery. Every channel is an independent concurrency
// domain guarded by its own mutex; all orchestration steps for a channel
// are totally ordered by that mutex.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/castarr/castarr/internal/bumper"
	"github.com/castarr/castarr/internal/concat"
	"github.com/castarr/castarr/internal/epg"
	"github.com/castarr/castarr/internal/models"
	"github.com/castarr/castarr/internal/playlist"
	"github.com/castarr/castarr/internal/presence"
	"github.com/castarr/castarr/internal/repository"
	"github.com/castarr/castarr/internal/timeline"
	"github.com/castarr/castarr/internal/transcoder"
)

// BumperFilename is the interstitial's name inside a channel's output dir.
const BumperFilename = "bumper.mp4"

// Config carries the runtime's tunables.
type Config struct {
	ProgressionInterval  time.Duration
	SettleDelay          time.Duration
	IncludeBumpers       bool
	MaxConcurrentStreams int
	HWAccel              string
	// ChannelDir maps a slug to its output directory when the channel row
	// does not pin one.
	ChannelDir func(slug string) string

	ViewerIdleTimeout     time.Duration
	ViewerDisconnectGrace time.Duration
}

func (c *Config) applyDefaults() {
	if c.ProgressionInterval <= 0 {
		c.ProgressionInterval = 5 * time.Second
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 300 * time.Millisecond
	}
	if c.MaxConcurrentStreams <= 0 {
		c.MaxConcurrentStreams = 10
	}
	if c.ChannelDir == nil {
		c.ChannelDir = func(slug string) string {
			return filepath.Join("data", "channels", slug)
		}
	}
}

// StartOptions modify a start request.
type StartOptions struct {
	// StartIndex pins the starting file, bypassing the schedule position.
	StartIndex *int
	// IsTransition marks a schedule-block handoff of an already-streaming
	// channel: state stays STREAMING and segments are not wiped.
	IsTransition bool
	// Trigger records who asked, for the playback session audit row.
	Trigger models.SessionTrigger
}

// channelState is the per-channel runtime bookkeeping. Guarded by its mutex.
type channelState struct {
	mu sync.Mutex

	// cancelLoop stops the progression loop, nil when not running.
	cancelLoop context.CancelFunc

	media         []*models.MediaFile
	activeBlockID *models.ULID
	activeBucket  *models.ULID

	// encoderStart and startOffset reconstruct the virtual playlist
	// position: offset into the looped playlist at encoder start plus
	// elapsed wall time since. Both are measured on the encoder's
	// timeline, which includes bumperGap seconds after every file when
	// the manifest interleaved bumpers.
	encoderStart time.Time
	startOffset  float64
	bumperGap    float64
	currentIndex int
}

// Runtime is the channel orchestrator.
type Runtime struct {
	channels repository.ChannelRepository
	sessions repository.PlaybackSessionRepository
	resolver *playlist.Resolver
	timeline *timeline.Service
	epg      *epg.Generator
	concat   *concat.Manager
	bumpers  *bumper.Generator
	adapter  transcoder.Adapter
	tracker  *presence.Tracker
	cfg      Config
	logger   *slog.Logger

	mu     sync.Mutex
	states map[models.ULID]*channelState

	// now is swappable for tests.
	now func() time.Time
}

// New creates the runtime and wires the presence tracker's edges to it.
func New(
	channels repository.ChannelRepository,
	sessions repository.PlaybackSessionRepository,
	resolver *playlist.Resolver,
	tl *timeline.Service,
	guide *epg.Generator,
	concatMgr *concat.Manager,
	bumpers *bumper.Generator,
	adapter transcoder.Adapter,
	cfg Config,
	logger *slog.Logger,
) *Runtime {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runtime{
		channels: channels,
		sessions: sessions,
		resolver: resolver,
		timeline: tl,
		epg:      guide,
		concat:   concatMgr,
		bumpers:  bumpers,
		adapter:  adapter,
		cfg:      cfg,
		logger:   logger.With("component", "runtime"),
		states:   make(map[models.ULID]*channelState),
		now:      time.Now,
	}
	r.tracker = presence.NewTracker(cfg.ViewerIdleTimeout, cfg.ViewerDisconnectGrace, presence.Events{
		OnFirstViewer:    r.onFirstViewer,
		OnLastViewerGone: r.onLastViewerGone,
	}, logger)
	return r
}

// Tracker exposes the viewer presence tracker for the HTTP layer.
func (r *Runtime) Tracker() *presence.Tracker {
	return r.tracker
}

// state returns the channel's runtime state, creating it if needed.
func (r *Runtime) state(id models.ULID) *channelState {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.states[id]
	if st == nil {
		st = &channelState{}
		r.states[id] = st
	}
	return st
}

// Start brings a channel to STREAMING at the position the schedule says
// should be on right now.
func (r *Runtime) Start(ctx context.Context, channelID models.ULID, opts StartOptions) error {
	st := r.state(channelID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return r.startLocked(ctx, st, channelID, opts)
}

func (r *Runtime) startLocked(ctx context.Context, st *channelState, channelID models.ULID, opts StartOptions) error {
	ch, err := r.loadChannel(ctx, channelID)
	if err != nil {
		return err
	}
	log := r.logger.With("channel_id", ch.ID, "slug", ch.Slug)

	// Repair half-dead states left by a failed earlier attempt: nothing
	// survived, so forcing back to IDLE is both legal and truthful.
	switch {
	case ch.State == models.ChannelStateStreaming && !opts.IsTransition:
		return models.ErrAlreadyStreaming
	case ch.State == models.ChannelStateStopping,
		ch.State == models.ChannelStateError,
		ch.State == models.ChannelStateStarting && !opts.IsTransition:
		if err := ch.TransitionTo(models.ChannelStateIdle); err != nil {
			return err
		}
		if err := r.channels.Update(ctx, ch); err != nil {
			return fmt.Errorf("repairing channel state: %w", err)
		}
	}

	if !opts.IsTransition {
		streaming, err := r.channels.CountByState(ctx, models.ChannelStateStreaming)
		if err != nil {
			return err
		}
		if streaming >= int64(r.cfg.MaxConcurrentStreams) {
			return models.ErrTooManyStreams
		}
		if err := ch.TransitionTo(models.ChannelStateStarting); err != nil {
			return err
		}
		if err := r.channels.Update(ctx, ch); err != nil {
			return fmt.Errorf("entering starting state: %w", err)
		}
	}

	if err := r.startStream(ctx, st, ch, opts, log); err != nil {
		r.failChannel(ctx, ch, err, log)
		return err
	}
	return nil
}

// startStream performs the fallible middle of a start. The caller owns the
// failure policy.
func (r *Runtime) startStream(ctx context.Context, st *channelState, ch *models.Channel, opts StartOptions, log *slog.Logger) error {
	now := r.now()

	res, err := r.resolveForStart(ctx, ch, now)
	if err != nil {
		return err
	}
	media := res.Media

	// The epoch must exist before position math; creating it now means a
	// brand-new channel starts its schedule at first play.
	if err := r.timeline.Initialize(ctx, ch.ID); err != nil {
		return err
	}

	index, seek, err := r.pickPosition(ctx, ch, media, opts)
	if err != nil {
		return err
	}
	if index < 0 {
		index = 0
	}
	if index > len(media)-1 {
		index = len(media) - 1
	}
	if seek < 0 {
		seek = 0
	}

	outputDir := r.outputDir(ch)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if !opts.IsTransition {
		r.removeStaleSegments(outputDir, log)
	}

	bumperPath := filepath.Join(outputDir, BumperFilename)
	if r.bumpersEnabled(ch) && index+1 < len(media) {
		r.generateBumper(ctx, ch, media[index+1], bumperPath, log)
	}

	var blockID *models.ULID
	var bucketID *models.ULID
	if res.Block != nil {
		id := res.Block.ID
		blockID = &id
		bid := res.Block.BucketID
		bucketID = &bid
	}

	paths := mediaPaths(media)
	_, withBumpers, err := r.concat.Create(outputDir, paths, bumperPath, index, seek, blockID)
	if err != nil {
		return fmt.Errorf("writing concat manifest: %w", err)
	}

	if r.adapter.IsActive(ch.ID) {
		if err := r.adapter.Stop(ctx, ch.ID); err != nil {
			log.Warn("stopping previous transcoder failed", "error", err)
		}
		time.Sleep(r.cfg.SettleDelay)
	}

	if err := r.adapter.Start(ctx, ch.ID, transcoder.Config{
		ConcatFile:      filepath.Join(outputDir, concat.ManifestName),
		OutputDir:       outputDir,
		VideoBitrate:    ch.VideoBitrate,
		AudioBitrate:    ch.AudioBitrate,
		Resolution:      ch.Resolution,
		FPS:             ch.FPS,
		SegmentDuration: ch.SegmentDuration,
		HWAccel:         r.cfg.HWAccel,
	}); err != nil {
		return fmt.Errorf("starting transcoder: %w", err)
	}

	if !opts.IsTransition {
		if err := ch.TransitionTo(models.ChannelStateStreaming); err != nil {
			return err
		}
	}
	ch.UpdateCurrentIndex(index)
	ch.LastError = ""
	if err := r.channels.Update(ctx, ch); err != nil {
		return fmt.Errorf("persisting streaming state: %w", err)
	}

	st.media = media
	st.activeBlockID = blockID
	st.activeBucket = bucketID
	st.encoderStart = now
	st.bumperGap = manifestGap(withBumpers)
	st.startOffset = playlistOffset(media, index, st.bumperGap) + seek
	st.currentIndex = index

	r.startProgressionLoop(st, ch.ID)

	sessionType := models.SessionTypeStarted
	if opts.Trigger == models.SessionTriggerAutomatic {
		sessionType = models.SessionTypeResumed
	}
	if err := r.sessions.Create(ctx, &models.PlaybackSession{
		ChannelID: ch.ID,
		StartedAt: now,
		Type:      sessionType,
		Trigger:   opts.Trigger,
	}); err != nil {
		log.Warn("failed recording playback session", "error", err)
	}

	log.Info("channel streaming",
		"index", index,
		"seek_seconds", seek,
		"media_count", len(media),
		"transition", opts.IsTransition)
	return nil
}

// resolveForStart resolves the media list. For dynamic channels the list is
// pinned to the currently-airing program: a tentative guide for the
// resolver-at-now list finds what is airing, and the resolver is re-run at
// that program's start so ordering modes that depend on time stay aligned
// with what the guide promised.
func (r *Runtime) resolveForStart(ctx context.Context, ch *models.Channel, now time.Time) (*playlist.Resolution, error) {
	res, err := r.resolver.Resolve(ctx, ch, now)
	if err != nil {
		return nil, err
	}
	if !ch.UseDynamicPlaylist {
		return res, nil
	}

	programs, err := r.epg.GeneratePrograms(ctx, ch, res.Media)
	if err != nil || len(programs) == 0 {
		return res, nil
	}
	var current *epg.Program
	for i := range programs {
		p := &programs[i]
		if !now.Before(p.StartTime) && now.Before(p.EndTime) {
			current = p
			break
		}
	}
	if current == nil {
		return res, nil
	}

	pinned, err := r.resolver.Resolve(ctx, ch, current.StartTime)
	if err != nil || len(pinned.Media) == 0 {
		return res, nil
	}
	return pinned, nil
}

// pickPosition decides where playback begins, in this order: explicit
// index, EPG position, raw timeline position, last persisted index.
func (r *Runtime) pickPosition(ctx context.Context, ch *models.Channel, media []*models.MediaFile, opts StartOptions) (int, float64, error) {
	if opts.StartIndex != nil {
		return *opts.StartIndex, 0, nil
	}

	if pos, ok, err := r.epg.CurrentPlaybackPosition(ctx, ch, media); err == nil && ok {
		return pos.FileIndex, pos.SeekSeconds, nil
	} else if err != nil {
		r.logger.Warn("epg position failed, falling back to timeline", "channel_id", ch.ID, "error", err)
	}

	pos, ok, err := r.timeline.CurrentPosition(ctx, ch.ID, media)
	if err != nil {
		return 0, 0, err
	}
	if ok {
		return pos.FileIndex, pos.SeekSeconds, nil
	}
	return ch.CurrentIndex, 0, nil
}

// Stop takes a streaming channel back to IDLE. Stopping a non-streaming
// channel is a no-op.
func (r *Runtime) Stop(ctx context.Context, channelID models.ULID) error {
	st := r.state(channelID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return r.stopLocked(ctx, st, channelID)
}

func (r *Runtime) stopLocked(ctx context.Context, st *channelState, channelID models.ULID) error {
	ch, err := r.loadChannel(ctx, channelID)
	if err != nil {
		return err
	}
	log := r.logger.With("channel_id", ch.ID, "slug", ch.Slug)

	if ch.State != models.ChannelStateStreaming {
		log.Debug("stop requested but channel is not streaming", "state", ch.State)
		return nil
	}

	if err := ch.TransitionTo(models.ChannelStateStopping); err != nil {
		return err
	}
	if err := r.channels.Update(ctx, ch); err != nil {
		return fmt.Errorf("entering stopping state: %w", err)
	}

	r.stopProgressionLoop(st)

	if err := r.adapter.Stop(ctx, channelID); err != nil {
		log.Warn("transcoder stop failed", "error", err)
	}

	if err := r.sessions.CloseOpen(ctx, channelID, r.now()); err != nil {
		log.Warn("failed closing playback sessions", "error", err)
	}

	if err := ch.TransitionTo(models.ChannelStateIdle); err != nil {
		r.failChannel(ctx, ch, err, log)
		return err
	}
	if err := r.channels.Update(ctx, ch); err != nil {
		return fmt.Errorf("persisting idle state: %w", err)
	}

	st.activeBlockID = nil
	st.activeBucket = nil
	st.media = nil
	r.tracker.CancelPending(channelID)

	log.Info("channel stopped")
	return nil
}

// Restart stops and starts the channel, resuming at its current index.
func (r *Runtime) Restart(ctx context.Context, channelID models.ULID) error {
	st := r.state(channelID)
	st.mu.Lock()
	defer st.mu.Unlock()

	ch, err := r.loadChannel(ctx, channelID)
	if err != nil {
		return err
	}
	index := ch.CurrentIndex

	if err := r.stopLocked(ctx, st, channelID); err != nil {
		return err
	}
	return r.startLocked(ctx, st, channelID, StartOptions{
		StartIndex: &index,
		Trigger:    models.SessionTriggerManual,
	})
}

// Next skips to the following file in the channel's media list.
func (r *Runtime) Next(ctx context.Context, channelID models.ULID) error {
	st := r.state(channelID)
	st.mu.Lock()
	defer st.mu.Unlock()

	ch, err := r.loadChannel(ctx, channelID)
	if err != nil {
		return err
	}
	next := ch.CurrentIndex + 1
	if n := len(st.media); n > 0 {
		next %= n
	}

	if err := r.stopLocked(ctx, st, channelID); err != nil {
		return err
	}
	return r.startLocked(ctx, st, channelID, StartOptions{
		StartIndex: &next,
		Trigger:    models.SessionTriggerManual,
	})
}

// SetIndex repositions a channel at an explicit file index.
func (r *Runtime) SetIndex(ctx context.Context, channelID models.ULID, index int) error {
	if index < 0 {
		return models.ErrInvalidIndex
	}
	st := r.state(channelID)
	st.mu.Lock()
	defer st.mu.Unlock()

	ch, err := r.loadChannel(ctx, channelID)
	if err != nil {
		return err
	}
	if ch.State != models.ChannelStateStreaming {
		ch.UpdateCurrentIndex(index)
		return r.channels.Update(ctx, ch)
	}

	if err := r.stopLocked(ctx, st, channelID); err != nil {
		return err
	}
	return r.startLocked(ctx, st, channelID, StartOptions{
		StartIndex: &index,
		Trigger:    models.SessionTriggerManual,
	})
}

// InvalidateChannelMedia is called after any mutation of buckets, blocks or
// library associations that can change the channel's media list. The EPG
// cache is dropped; a streaming channel gets its manifest rewritten and its
// progression tracking restarted at the preserved index.
func (r *Runtime) InvalidateChannelMedia(ctx context.Context, channelID models.ULID) error {
	r.epg.Invalidate(channelID)

	st := r.state(channelID)
	st.mu.Lock()
	defer st.mu.Unlock()

	ch, err := r.loadChannel(ctx, channelID)
	if err != nil {
		return err
	}
	if ch.State != models.ChannelStateStreaming {
		return nil
	}
	log := r.logger.With("channel_id", ch.ID, "slug", ch.Slug)

	res, err := r.resolver.Resolve(ctx, ch, r.now())
	if err != nil {
		return err
	}
	media := res.Media

	index := ch.CurrentIndex
	if index > len(media)-1 {
		index = len(media) - 1
	}
	if index < 0 {
		index = 0
	}

	var blockID *models.ULID
	if res.Block != nil {
		id := res.Block.ID
		blockID = &id
	}

	outputDir := r.outputDir(ch)
	bumperPath := filepath.Join(outputDir, BumperFilename)
	_, withBumpers, err := r.concat.Create(outputDir, mediaPaths(media), bumperPath, index, 0, blockID)
	if err != nil {
		return fmt.Errorf("rewriting concat manifest: %w", err)
	}

	st.media = media
	st.activeBlockID = blockID
	st.encoderStart = r.now()
	st.bumperGap = manifestGap(withBumpers)
	st.startOffset = playlistOffset(media, index, st.bumperGap)
	st.currentIndex = index

	log.Info("channel media invalidated", "media_count", len(media), "index", index)
	return nil
}

// progression loop

func (r *Runtime) startProgressionLoop(st *channelState, channelID models.ULID) {
	r.stopProgressionLoop(st)
	ctx, cancel := context.WithCancel(context.Background())
	st.cancelLoop = cancel

	go func() {
		ticker := time.NewTicker(r.cfg.ProgressionInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.progressionTick(ctx, channelID)
			}
		}
	}()
}

func (r *Runtime) stopProgressionLoop(st *channelState) {
	if st.cancelLoop != nil {
		st.cancelLoop()
		st.cancelLoop = nil
	}
}

// progressionTick runs every interval per streaming channel: dynamic
// channels are checked for schedule-block changes, static ones for file
// boundaries so the current index and next bumper stay ahead of playback.
func (r *Runtime) progressionTick(ctx context.Context, channelID models.ULID) {
	st := r.state(channelID)
	st.mu.Lock()
	defer st.mu.Unlock()

	ch, err := r.loadChannel(ctx, channelID)
	if err != nil || ch == nil || ch.State != models.ChannelStateStreaming {
		return
	}
	log := r.logger.With("channel_id", ch.ID, "slug", ch.Slug)

	if ch.UseDynamicPlaylist {
		block, err := r.resolver.ActiveBlock(ctx, ch.ID, r.now())
		if err != nil {
			log.Warn("failed reading active block", "error", err)
			return
		}
		if blockChanged(st.activeBlockID, block) {
			r.transitionBlock(ctx, st, ch, block, log)
		}
		return
	}

	r.advanceIndex(ctx, st, ch, log)
}

// advanceIndex moves the persisted index to the file the clock says is
// playing and pre-generates the bumper for the one after it.
func (r *Runtime) advanceIndex(ctx context.Context, st *channelState, ch *models.Channel, log *slog.Logger) {
	if len(st.media) == 0 {
		return
	}
	expected := r.expectedIndex(st)
	if expected == st.currentIndex {
		return
	}

	log.Debug("file boundary detected", "from", st.currentIndex, "to", expected)

	// Record sequential progress before moving on, so a future block
	// resolution resumes after the file that just finished.
	if st.activeBucket != nil && st.currentIndex < len(st.media) {
		finished := st.media[st.currentIndex]
		if err := r.resolver.RecordProgress(ctx, ch.ID, *st.activeBucket, st.media, finished.ID); err != nil {
			log.Warn("failed recording bucket progression", "error", err)
		}
	}

	st.currentIndex = expected
	ch.UpdateCurrentIndex(expected)
	if err := r.channels.Update(ctx, ch); err != nil {
		log.Warn("failed persisting current index", "error", err)
	}

	if r.bumpersEnabled(ch) {
		next := st.media[(expected+1)%len(st.media)]
		bumperPath := filepath.Join(r.outputDir(ch), BumperFilename)
		r.generateBumper(ctx, ch, next, bumperPath, log)
	}
}

// expectedIndex computes which file should be playing from elapsed encoder
// wall time. The gap between files is the one the manifest actually
// interleaved: when the bumper was unusable at manifest time the encoder
// plays files back to back and the gap is zero, regardless of the channel's
// bumper setting.
func (r *Runtime) expectedIndex(st *channelState) int {
	gap := st.bumperGap

	var total float64
	for _, m := range st.media {
		total += m.Duration + gap
	}
	if total <= 0 {
		return st.currentIndex
	}

	elapsed := r.now().Sub(st.encoderStart).Seconds() + st.startOffset
	pos := elapsed - total*float64(int64(elapsed/total))

	var cumulative float64
	for i, m := range st.media {
		cumulative += m.Duration + gap
		if pos < cumulative {
			return i
		}
	}
	return len(st.media) - 1
}

// transitionBlock hands a streaming dynamic channel over to a new schedule
// block: new media, rewritten manifest, new encoder at the position the
// guide dictates. Externally the channel never leaves STREAMING.
func (r *Runtime) transitionBlock(ctx context.Context, st *channelState, ch *models.Channel, block *models.ScheduleBlock, log *slog.Logger) {
	from := "none"
	if st.activeBlockID != nil {
		from = st.activeBlockID.String()
	}
	to := "none"
	if block != nil {
		to = block.ID.String()
	}
	log.Info("schedule block transition", "from", from, "to", to)

	r.epg.Invalidate(ch.ID)

	if err := r.startStream(ctx, st, ch, StartOptions{
		IsTransition: true,
		Trigger:      models.SessionTriggerAutomatic,
	}, log); err != nil {
		r.failChannel(ctx, ch, fmt.Errorf("schedule block transition: %w", err), log)
	}
}

// viewer edges

// TouchViewer registers stream activity from a client and returns the
// channel's viewer count. Called by the HTTP layer on every playlist and
// segment request.
func (r *Runtime) TouchViewer(ctx context.Context, ch *models.Channel, remoteAddr, userAgent string) int {
	count := r.tracker.Touch(ch.ID, presence.DeriveSessionID(remoteAddr, userAgent))
	if ch.ViewerCount != count {
		ch.ViewerCount = count
		if err := r.channels.Update(ctx, ch); err != nil {
			r.logger.Debug("failed persisting viewer count", "channel_id", ch.ID, "error", err)
		}
	}
	return count
}

func (r *Runtime) onFirstViewer(channelID models.ULID) {
	ctx := context.Background()
	log := r.logger.With("channel_id", channelID)

	ch, err := r.loadChannel(ctx, channelID)
	if err != nil {
		log.Warn("first-viewer edge for unknown channel", "error", err)
		return
	}
	if ch.State != models.ChannelStateIdle || r.adapter.IsActive(channelID) {
		return
	}

	log.Info("first viewer arrived, resuming channel")
	if err := r.Start(ctx, channelID, StartOptions{Trigger: models.SessionTriggerAutomatic}); err != nil {
		if !errors.Is(err, models.ErrAlreadyStreaming) {
			log.Error("viewer-driven start failed", "error", err)
		}
	}
}

func (r *Runtime) onLastViewerGone(channelID models.ULID) {
	ctx := context.Background()
	log := r.logger.With("channel_id", channelID)

	ch, err := r.loadChannel(ctx, channelID)
	if err != nil {
		return
	}
	ch.ViewerCount = 0
	if err := r.channels.Update(ctx, ch); err != nil {
		log.Debug("failed zeroing viewer count", "error", err)
	}
	if ch.State != models.ChannelStateStreaming {
		return
	}

	// The schedule epoch is untouched: the channel's wall clock keeps
	// running while the encoder sleeps, so the next viewer lands mid-show.
	log.Info("last viewer gone, pausing channel")
	if err := r.Stop(ctx, channelID); err != nil {
		log.Error("viewer-driven stop failed", "error", err)
	}
}

// lifecycle

// RecoverStartupState forces all channels back to IDLE after a process
// restart: no encoder survived, so any persisted runtime state is stale.
// Schedule epochs are left alone.
func (r *Runtime) RecoverStartupState(ctx context.Context) error {
	n, err := r.channels.ResetRuntimeState(ctx)
	if err != nil {
		return fmt.Errorf("recovering channel state: %w", err)
	}
	if n > 0 {
		r.logger.Info("recovered channels from stale runtime state", "count", n)
	}
	return nil
}

// AutoStart starts every channel flagged for it. Failures are logged per
// channel and do not stop the rest.
func (r *Runtime) AutoStart(ctx context.Context) {
	chs, err := r.channels.ListAutoStart(ctx)
	if err != nil {
		r.logger.Error("failed listing autostart channels", "error", err)
		return
	}
	for _, ch := range chs {
		if err := r.Start(ctx, ch.ID, StartOptions{Trigger: models.SessionTriggerAutomatic}); err != nil {
			r.logger.Error("autostart failed", "channel_id", ch.ID, "slug", ch.Slug, "error", err)
		}
	}
}

// Shutdown stops all loops, encoders and timers.
func (r *Runtime) Shutdown(ctx context.Context) {
	r.tracker.Close()

	r.mu.Lock()
	ids := make([]models.ULID, 0, len(r.states))
	for id := range r.states {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		if err := r.Stop(ctx, id); err != nil {
			r.logger.Warn("failed stopping channel during shutdown", "channel_id", id, "error", err)
		}
	}

	r.adapter.Cleanup()
	r.bumpers.Close()
}

// helpers

func (r *Runtime) loadChannel(ctx context.Context, channelID models.ULID) (*models.Channel, error) {
	ch, err := r.channels.GetByID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, models.ErrChannelNotFound
	}
	return ch, nil
}

// failChannel implements the failure policy: record the error, move to
// ERROR when the edge is legal, best-effort stop the encoder.
func (r *Runtime) failChannel(ctx context.Context, ch *models.Channel, cause error, log *slog.Logger) {
	log.Error("channel failed", "error", cause)
	ch.SetError(cause.Error())
	if err := r.channels.Update(ctx, ch); err != nil {
		log.Warn("failed persisting error state", "error", err)
	}
	if err := r.adapter.Stop(ctx, ch.ID); err != nil {
		log.Debug("best-effort transcoder stop failed", "error", err)
	}
}

func (r *Runtime) bumpersEnabled(ch *models.Channel) bool {
	if ch.IncludeBumpers != nil {
		return *ch.IncludeBumpers
	}
	return r.cfg.IncludeBumpers
}

func (r *Runtime) outputDir(ch *models.Channel) string {
	if ch.OutputDir != "" {
		return ch.OutputDir
	}
	return r.cfg.ChannelDir(ch.Slug)
}

// OutputDir returns the directory the channel's HLS artifacts live in. The
// streaming routes serve playlists and segments from here.
func (r *Runtime) OutputDir(ch *models.Channel) string {
	return r.outputDir(ch)
}

// generateBumper writes the "Up Next" interstitial for the given file.
// Failures are non-fatal: the concat manager skips unusable bumpers.
func (r *Runtime) generateBumper(ctx context.Context, ch *models.Channel, next *models.MediaFile, bumperPath string, log *slog.Logger) {
	err := r.bumpers.GenerateWithFallback(ctx, bumper.Request{
		ShowName:     next.ShowName,
		EpisodeTitle: next.Title,
		Resolution:   ch.Resolution,
		FPS:          ch.FPS,
		VideoBitrate: ch.VideoBitrate,
		AudioBitrate: ch.AudioBitrate,
		OutPath:      bumperPath,
	})
	if err != nil {
		log.Warn("bumper generation failed, continuing without", "error", err)
	}
}

// removeStaleSegments wipes leftover HLS segments so a fresh start does not
// serve stale media.
func (r *Runtime) removeStaleSegments(outputDir string, log *slog.Logger) {
	matches, err := filepath.Glob(filepath.Join(outputDir, "stream_*.ts"))
	if err != nil {
		return
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			log.Debug("failed removing stale segment", "path", m, "error", err)
		}
	}
}

func mediaPaths(media []*models.MediaFile) []string {
	paths := make([]string, len(media))
	for i, m := range media {
		paths[i] = m.Path
	}
	return paths
}

// manifestGap is the per-file gap on the encoder timeline: the bumper
// duration when the manifest interleaved bumpers, zero otherwise.
func manifestGap(withBumpers bool) float64 {
	if withBumpers {
		return bumper.DefaultDuration.Seconds()
	}
	return 0
}

// playlistOffset returns where media[index] begins on the encoder timeline:
// the durations before it plus the gap the manifest put after each of them.
func playlistOffset(media []*models.MediaFile, index int, gap float64) float64 {
	var sum float64
	for i := 0; i < index && i < len(media); i++ {
		sum += media[i].Duration + gap
	}
	return sum
}

func blockChanged(tracked *models.ULID, current *models.ScheduleBlock) bool {
	switch {
	case tracked == nil && current == nil:
		return false
	case tracked == nil || current == nil:
		return true
	default:
		return *tracked != current.ID
	}
}
