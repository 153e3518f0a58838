// Package maintenance runs scheduled housekeeping: pruning old playback
// sessions and refreshing guide caches.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/castarr/castarr/internal/epg"
	"github.com/castarr/castarr/internal/repository"
)

// DefaultSessionRetention is how long ended playback sessions are kept.
const DefaultSessionRetention = 30 * 24 * time.Hour

// DefaultSchedule runs housekeeping nightly at 03:00.
const DefaultSchedule = "0 3 * * *"

// Config holds maintenance configuration.
type Config struct {
	// Schedule is a cron expression for the housekeeping run.
	Schedule string
	// SessionRetention is the age past which ended sessions are pruned.
	SessionRetention time.Duration
}

// lastRunKey is the settings key recording the completion time of the most
// recent housekeeping pass.
const lastRunKey = "maintenance.last_run"

// Runner schedules and executes housekeeping jobs.
type Runner struct {
	sessions  repository.PlaybackSessionRepository
	channels  repository.ChannelRepository
	settings  repository.SettingRepository
	generator *epg.Generator
	cfg       Config
	cron      *cron.Cron
	logger    *slog.Logger
}

// NewRunner creates a maintenance runner.
func NewRunner(sessions repository.PlaybackSessionRepository, channels repository.ChannelRepository, settings repository.SettingRepository, generator *epg.Generator, cfg Config, logger *slog.Logger) *Runner {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.SessionRetention <= 0 {
		cfg.SessionRetention = DefaultSessionRetention
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		sessions:  sessions,
		channels:  channels,
		settings:  settings,
		generator: generator,
		cfg:       cfg,
		cron:      cron.New(),
		logger:    logger.With("component", "maintenance"),
	}
}

// Start registers the housekeeping job and starts the cron scheduler.
func (r *Runner) Start() error {
	_, err := r.cron.AddFunc(r.cfg.Schedule, func() {
		r.RunOnce(context.Background())
	})
	if err != nil {
		return fmt.Errorf("invalid maintenance schedule %q: %w", r.cfg.Schedule, err)
	}

	r.cron.Start()
	r.logger.Info("maintenance scheduled",
		slog.String("schedule", r.cfg.Schedule),
		slog.Duration("session_retention", r.cfg.SessionRetention))
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("maintenance stopped")
}

// RunOnce executes one housekeeping pass. Exported so the serve command can
// run it at startup.
func (r *Runner) RunOnce(ctx context.Context) {
	r.pruneSessions(ctx)
	r.refreshGuides(ctx)
	if r.settings != nil {
		if err := r.settings.Set(ctx, lastRunKey, time.Now().UTC().Format(time.RFC3339)); err != nil {
			r.logger.Warn("recording maintenance run failed", "error", err)
		}
	}
}

// LastRun reports when housekeeping last completed, or the zero time when it
// has never run.
func (r *Runner) LastRun(ctx context.Context) (time.Time, error) {
	if r.settings == nil {
		return time.Time{}, nil
	}
	raw, err := r.settings.Get(ctx, lastRunKey)
	if err != nil || raw == "" {
		return time.Time{}, err
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %s: %w", lastRunKey, err)
	}
	return ts, nil
}

func (r *Runner) pruneSessions(ctx context.Context) {
	cutoff := time.Now().Add(-r.cfg.SessionRetention)
	n, err := r.sessions.DeleteEndedBefore(ctx, cutoff)
	if err != nil {
		r.logger.Error("pruning playback sessions failed", "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("pruned playback sessions",
			slog.Int64("removed", n),
			slog.Time("cutoff", cutoff))
	}
}

// refreshGuides drops every channel's cached guide so the next request
// regenerates against the current date. Guides are anchored to "now" and go
// stale across midnight even without any schedule mutation.
func (r *Runner) refreshGuides(ctx context.Context) {
	channels, err := r.channels.List(ctx)
	if err != nil {
		r.logger.Error("listing channels for guide refresh failed", "error", err)
		return
	}
	for _, ch := range channels {
		r.generator.Invalidate(ch.ID)
	}
	r.logger.Debug("guide caches refreshed", slog.Int("channels", len(channels)))
}
