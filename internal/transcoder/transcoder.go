// Package transcoder drives the per-channel ffmpeg encoder subprocess.
//
// The encoder is a black box from the orchestrator's point of view: it reads
// the concat manifest and emits HLS segments plus a playlist into the
// channel's output directory. This package only manages process lifecycle
// and guarantees at most one encoder per channel.
package transcoder

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/castarr/castarr/internal/models"
)

// Config carries everything one encoder run needs.
type Config struct {
	ConcatFile      string
	OutputDir       string
	VideoBitrate    int // kbps
	AudioBitrate    int // kbps
	Resolution      string
	FPS             int
	SegmentDuration int
	// HWAccel selects the video encoder: none, nvenc, qsv, videotoolbox.
	HWAccel string
	// StartPosition seeks into the concat timeline, in seconds. The
	// manifest's inpoint already carries a mid-file resume, so callers
	// normally leave this zero.
	StartPosition float64
}

// Adapter is the encoder lifecycle contract the runtime depends on.
type Adapter interface {
	// Start spawns an encoder for the channel. Fails with
	// models.ErrTranscoderActive when one is already running.
	Start(ctx context.Context, channelID models.ULID, cfg Config) error
	// Stop terminates the channel's encoder, converging in bounded time.
	// Stopping an already-stopped channel is not an error.
	Stop(ctx context.Context, channelID models.ULID) error
	// IsActive reports whether an encoder is running for the channel.
	IsActive(channelID models.ULID) bool
	// Cleanup stops every encoder. Used on process shutdown.
	Cleanup()
}

const stopTimeout = 10 * time.Second

// FFmpeg is the production Adapter implementation.
type FFmpeg struct {
	binaryPath string
	logger     *slog.Logger

	mu        sync.Mutex
	processes map[models.ULID]*exec.Cmd
}

// NewFFmpeg creates the ffmpeg adapter. binaryPath empty means look up
// "ffmpeg" on PATH.
func NewFFmpeg(binaryPath string, logger *slog.Logger) *FFmpeg {
	if binaryPath == "" {
		binaryPath = "ffmpeg"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpeg{
		binaryPath: binaryPath,
		logger:     logger.With("component", "transcoder"),
		processes:  make(map[models.ULID]*exec.Cmd),
	}
}

// Start spawns the encoder. The caller (runtime) serializes Start/Stop per
// channel; the map check here is the last line of defense for the
// one-encoder-per-channel invariant.
func (f *FFmpeg) Start(ctx context.Context, channelID models.ULID, cfg Config) error {
	f.mu.Lock()
	if _, active := f.processes[channelID]; active {
		f.mu.Unlock()
		return models.ErrTranscoderActive
	}

	cmd := exec.Command(f.binaryPath, buildArgs(cfg)...)
	if err := cmd.Start(); err != nil {
		f.mu.Unlock()
		return fmt.Errorf("starting ffmpeg: %w", err)
	}
	f.processes[channelID] = cmd
	f.mu.Unlock()

	f.logger.Info("transcoder started",
		"channel_id", channelID,
		"pid", cmd.Process.Pid,
		"concat", cfg.ConcatFile)

	// Reap on exit so IsActive goes false without a Stop call when the
	// encoder dies on its own.
	go func() {
		err := cmd.Wait()
		f.mu.Lock()
		if f.processes[channelID] == cmd {
			delete(f.processes, channelID)
		}
		f.mu.Unlock()
		if err != nil {
			f.logger.Warn("transcoder exited", "channel_id", channelID, "error", err)
		} else {
			f.logger.Info("transcoder exited", "channel_id", channelID)
		}
	}()

	return nil
}

// Stop terminates the channel's encoder: SIGTERM first, SIGKILL after the
// stop timeout. Returns nil when no encoder is running.
func (f *FFmpeg) Stop(ctx context.Context, channelID models.ULID) error {
	f.mu.Lock()
	cmd, ok := f.processes[channelID]
	if ok {
		delete(f.processes, channelID)
	}
	f.mu.Unlock()
	if !ok || cmd.Process == nil {
		return nil
	}

	f.logger.Info("stopping transcoder", "channel_id", channelID, "pid", cmd.Process.Pid)

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Already gone.
		return nil
	}

	done := make(chan struct{})
	go func() {
		// The reaper goroutine from Start owns Wait; poll via Signal(0).
		for cmd.ProcessState == nil {
			if cmd.Process.Signal(syscall.Signal(0)) != nil {
				break
			}
			time.Sleep(100 * time.Millisecond)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(stopTimeout):
		f.logger.Warn("transcoder did not exit in time, killing", "channel_id", channelID)
		_ = cmd.Process.Kill()
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		return ctx.Err()
	}
	return nil
}

// IsActive reports whether an encoder is running for the channel.
func (f *FFmpeg) IsActive(channelID models.ULID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.processes[channelID]
	return ok
}

// Cleanup stops every running encoder.
func (f *FFmpeg) Cleanup() {
	f.mu.Lock()
	ids := make([]models.ULID, 0, len(f.processes))
	for id := range f.processes {
		ids = append(ids, id)
	}
	f.mu.Unlock()

	for _, id := range ids {
		if err := f.Stop(context.Background(), id); err != nil {
			f.logger.Warn("failed stopping transcoder during cleanup", "channel_id", id, "error", err)
		}
	}
}

// Ensure FFmpeg implements Adapter at compile time.
var _ Adapter = (*FFmpeg)(nil)

// buildArgs assembles the encoder invocation: read the concat manifest in
// real time, encode to the channel's settings, and emit a rolling HLS
// playlist with numbered segments.
func buildArgs(cfg Config) []string {
	args := []string{
		"-hide_banner", "-loglevel", "warning",
		"-re",
		"-f", "concat", "-safe", "0",
	}
	if cfg.StartPosition > 0 {
		args = append(args, "-ss", fmt.Sprintf("%.3f", cfg.StartPosition))
	}
	args = append(args,
		"-i", cfg.ConcatFile,
		"-c:v", videoEncoder(cfg.HWAccel),
		"-preset", "veryfast",
		"-pix_fmt", "yuv420p",
	)
	if cfg.VideoBitrate > 0 {
		args = append(args,
			"-b:v", fmt.Sprintf("%dk", cfg.VideoBitrate),
			"-maxrate", fmt.Sprintf("%dk", cfg.VideoBitrate),
			"-bufsize", fmt.Sprintf("%dk", cfg.VideoBitrate*2),
		)
	}
	if cfg.Resolution != "" {
		args = append(args, "-s", cfg.Resolution)
	}
	if cfg.FPS > 0 {
		args = append(args, "-r", fmt.Sprintf("%d", cfg.FPS))
	}
	args = append(args, "-c:a", "aac")
	if cfg.AudioBitrate > 0 {
		args = append(args, "-b:a", fmt.Sprintf("%dk", cfg.AudioBitrate))
	}

	segDur := cfg.SegmentDuration
	if segDur <= 0 {
		segDur = 6
	}
	args = append(args,
		"-f", "hls",
		"-hls_time", fmt.Sprintf("%d", segDur),
		"-hls_list_size", "10",
		"-hls_flags", "delete_segments+append_list",
		"-hls_segment_filename", cfg.OutputDir+"/stream_%03d.ts",
		cfg.OutputDir+"/stream.m3u8",
	)
	return args
}

// videoEncoder maps the hwaccel option to an ffmpeg encoder name.
func videoEncoder(hwaccel string) string {
	switch hwaccel {
	case "nvenc":
		return "h264_nvenc"
	case "qsv":
		return "h264_qsv"
	case "videotoolbox":
		return "h264_videotoolbox"
	default:
		return "libx264"
	}
}
