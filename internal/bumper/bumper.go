// Package bumper synthesizes short "Up Next" interstitial videos.
//
// Bumpers are generated with ffmpeg's lavfi sources and written through a
// temp file plus rename, because the transcoder may be reading the previous
// bumper at the same path while the new one is produced. The concat manager
// refuses to reference a bumper while a temp sibling exists, which closes
// the read-under-write race.
package bumper

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// DefaultDuration is the bumper length when the caller does not override it.
const DefaultDuration = 5 * time.Second

// Request describes one bumper to generate.
type Request struct {
	// ShowName and EpisodeTitle name the upcoming program. ShowName empty
	// produces the generic "Loading..." placeholder.
	ShowName     string
	EpisodeTitle string

	Duration   time.Duration
	Resolution string // e.g. "1920x1080"
	FPS        int
	// VideoBitrate and AudioBitrate are in kbps, matching the channel config.
	VideoBitrate int
	AudioBitrate int

	// OutPath is the final bumper location; the write lands there by rename.
	OutPath string
}

// Generator produces bumper files via an ffmpeg subprocess.
type Generator struct {
	ffmpegPath string
	logger     *slog.Logger

	mu      sync.Mutex
	running map[string]*exec.Cmd // keyed by OutPath
	closed  bool
}

// NewGenerator creates a bumper generator. ffmpegPath empty means look up
// "ffmpeg" on PATH.
func NewGenerator(ffmpegPath string, logger *slog.Logger) *Generator {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		ffmpegPath: ffmpegPath,
		logger:     logger.With("component", "bumper"),
		running:    make(map[string]*exec.Cmd),
	}
}

// Generate synthesizes the bumper described by req. The write is atomic:
// ffmpeg writes to `<OutPath>.tmp.<unix-nanos>` which is renamed over
// OutPath on success. Errors are reported but callers treat them as
// non-fatal; a channel plays fine without bumpers.
func (g *Generator) Generate(ctx context.Context, req Request) error {
	if req.Duration <= 0 {
		req.Duration = DefaultDuration
	}
	if req.Resolution == "" {
		req.Resolution = "1920x1080"
	}
	if req.FPS <= 0 {
		req.FPS = 30
	}

	tmpPath := fmt.Sprintf("%s.tmp.%d", req.OutPath, time.Now().UnixNano())

	cmd := exec.CommandContext(ctx, g.ffmpegPath, g.args(req, tmpPath)...)
	cmd.Stdout = nil
	cmd.Stderr = nil

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return fmt.Errorf("bumper generator is closed")
	}
	g.running[req.OutPath] = cmd
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		delete(g.running, req.OutPath)
		g.mu.Unlock()
		// The temp file must never outlive the attempt; a stale sibling
		// would keep the concat manager from ever using the bumper.
		os.Remove(tmpPath)
	}()

	g.logger.Debug("generating bumper",
		"out", req.OutPath,
		"show", req.ShowName,
		"duration", req.Duration)

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("running ffmpeg for bumper: %w", err)
	}

	// ffmpeg wrote the temp file in another process; flush it before the
	// rename so a crash cannot publish a truncated bumper.
	if err := syncFile(tmpPath); err != nil {
		return fmt.Errorf("syncing bumper: %w", err)
	}
	if err := os.Rename(tmpPath, req.OutPath); err != nil {
		return fmt.Errorf("placing bumper: %w", err)
	}
	return nil
}

func syncFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

// GenerateWithFallback tries the announced bumper first and degrades to the
// "Loading..." placeholder when that fails. Both failing is reported; the
// caller proceeds without a bumper.
func (g *Generator) GenerateWithFallback(ctx context.Context, req Request) error {
	err := g.Generate(ctx, req)
	if err == nil {
		return nil
	}
	g.logger.Warn("bumper generation failed, trying placeholder",
		"out", req.OutPath, "error", err)

	placeholder := req
	placeholder.ShowName = ""
	placeholder.EpisodeTitle = ""
	if perr := g.Generate(ctx, placeholder); perr != nil {
		return fmt.Errorf("placeholder bumper also failed: %w (original: %v)", perr, err)
	}
	return nil
}

// Close kills any in-flight generations. The generator is unusable after.
func (g *Generator) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	for out, cmd := range g.running {
		if cmd.Process != nil {
			g.logger.Debug("killing in-flight bumper generation", "out", out)
			_ = cmd.Process.Kill()
		}
	}
}

// args builds the ffmpeg invocation: a solid background with drawtext lines
// over a silent audio track, encoded to match the channel's stream settings
// so the concat demuxer does not have to transcode across a format change.
func (g *Generator) args(req Request, tmpPath string) []string {
	secs := fmt.Sprintf("%.1f", req.Duration.Seconds())

	title := "Loading..."
	subtitle := ""
	if req.ShowName != "" {
		title = "Up Next"
		subtitle = req.ShowName
		if req.EpisodeTitle != "" {
			subtitle += ": " + req.EpisodeTitle
		}
	}

	filter := fmt.Sprintf(
		"drawtext=text='%s':fontcolor=white:fontsize=72:x=(w-text_w)/2:y=(h-text_h)/2-60",
		escapeDrawtext(title))
	if subtitle != "" {
		filter += fmt.Sprintf(
			",drawtext=text='%s':fontcolor=white:fontsize=44:x=(w-text_w)/2:y=(h-text_h)/2+40",
			escapeDrawtext(subtitle))
	}

	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "lavfi", "-i", fmt.Sprintf("color=c=0x101820:size=%s:rate=%d:duration=%s", req.Resolution, req.FPS, secs),
		"-f", "lavfi", "-i", fmt.Sprintf("anullsrc=channel_layout=stereo:sample_rate=44100:duration=%s", secs),
		"-vf", filter,
		"-c:v", "libx264", "-preset", "veryfast", "-pix_fmt", "yuv420p",
		"-c:a", "aac",
	}
	if req.VideoBitrate > 0 {
		args = append(args, "-b:v", fmt.Sprintf("%dk", req.VideoBitrate))
	}
	if req.AudioBitrate > 0 {
		args = append(args, "-b:a", fmt.Sprintf("%dk", req.AudioBitrate))
	}
	args = append(args, "-shortest", "-f", "mp4", tmpPath)
	return args
}

// escapeDrawtext escapes the characters drawtext treats specially inside a
// single-quoted text value.
func escapeDrawtext(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\\\'`,
		`:`, `\:`,
		`%`, `\%`,
	)
	return r.Replace(s)
}
