package transcoder

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castarr/castarr/internal/models"
)

func TestBuildArgs(t *testing.T) {
	cfg := Config{
		ConcatFile:      "/data/channels/retro/concat.txt",
		OutputDir:       "/data/channels/retro",
		VideoBitrate:    4000,
		AudioBitrate:    192,
		Resolution:      "1920x1080",
		FPS:             30,
		SegmentDuration: 6,
	}

	joined := strings.Join(buildArgs(cfg), " ")
	assert.Contains(t, joined, "-f concat -safe 0 -i /data/channels/retro/concat.txt")
	assert.Contains(t, joined, "-c:v libx264")
	assert.Contains(t, joined, "-b:v 4000k")
	assert.Contains(t, joined, "-b:a 192k")
	assert.Contains(t, joined, "-hls_time 6")
	assert.Contains(t, joined, "delete_segments")
	assert.Contains(t, joined, "/data/channels/retro/stream_%03d.ts")
	assert.True(t, strings.HasSuffix(joined, "/data/channels/retro/stream.m3u8"))
}

func TestBuildArgs_StartPosition(t *testing.T) {
	joined := strings.Join(buildArgs(Config{ConcatFile: "/c", OutputDir: "/o", StartPosition: 42.5}), " ")
	assert.Contains(t, joined, "-ss 42.500 -i /c",
		"the seek must precede the input so the demuxer skips decoded output")

	joined = strings.Join(buildArgs(Config{ConcatFile: "/c", OutputDir: "/o"}), " ")
	assert.NotContains(t, joined, "-ss")
}

func TestBuildArgs_SegmentDurationDefault(t *testing.T) {
	joined := strings.Join(buildArgs(Config{OutputDir: "/o", ConcatFile: "/c"}), " ")
	assert.Contains(t, joined, "-hls_time 6")
}

func TestVideoEncoder(t *testing.T) {
	assert.Equal(t, "libx264", videoEncoder("none"))
	assert.Equal(t, "libx264", videoEncoder(""))
	assert.Equal(t, "h264_nvenc", videoEncoder("nvenc"))
	assert.Equal(t, "h264_qsv", videoEncoder("qsv"))
	assert.Equal(t, "h264_videotoolbox", videoEncoder("videotoolbox"))
}

func TestIsActive_UnknownChannel(t *testing.T) {
	f := NewFFmpeg("", nil)
	assert.False(t, f.IsActive(models.NewULID()))
}

func TestStop_ToleratesNotRunning(t *testing.T) {
	f := NewFFmpeg("", nil)
	require.NoError(t, f.Stop(context.Background(), models.NewULID()))
}
