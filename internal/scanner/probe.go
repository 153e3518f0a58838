package scanner

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// FFProbe reports media durations via an ffprobe subprocess.
type FFProbe struct {
	binaryPath string
}

// NewFFProbe creates a prober. binaryPath empty means look up "ffprobe" on
// PATH.
func NewFFProbe(binaryPath string) *FFProbe {
	if binaryPath == "" {
		binaryPath = "ffprobe"
	}
	return &FFProbe{binaryPath: binaryPath}
}

// Duration returns the container duration of the file in seconds.
func (p *FFProbe) Duration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, p.binaryPath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("running ffprobe: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}

	raw := strings.TrimSpace(stdout.String())
	duration, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing ffprobe duration %q: %w", raw, err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("ffprobe reported non-positive duration %f", duration)
	}
	return duration, nil
}

// Ensure FFProbe implements Prober at compile time.
var _ Prober = (*FFProbe)(nil)
