package bumper

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgs_UpNextText(t *testing.T) {
	g := NewGenerator("", nil)
	req := Request{
		ShowName:     "Cosmos",
		EpisodeTitle: "The Shores of the Cosmic Ocean",
		Duration:     5 * time.Second,
		Resolution:   "1280x720",
		FPS:          25,
		VideoBitrate: 3000,
		AudioBitrate: 128,
		OutPath:      "/tmp/bumper.mp4",
	}

	joined := strings.Join(g.args(req, "/tmp/bumper.mp4.tmp.1"), " ")
	assert.Contains(t, joined, "Up Next")
	assert.Contains(t, joined, "Cosmos")
	assert.Contains(t, joined, "size=1280x720")
	assert.Contains(t, joined, "rate=25")
	assert.Contains(t, joined, "-b:v 3000k")
	assert.Contains(t, joined, "-b:a 128k")
	assert.True(t, strings.HasSuffix(joined, "/tmp/bumper.mp4.tmp.1"),
		"output must be the temp path, not the final path")
}

func TestArgs_PlaceholderWhenNoShow(t *testing.T) {
	g := NewGenerator("", nil)
	joined := strings.Join(g.args(Request{OutPath: "/tmp/b.mp4"}, "/tmp/b.mp4.tmp.1"), " ")
	assert.Contains(t, joined, "Loading...")
	assert.NotContains(t, joined, "Up Next")
}

func TestEscapeDrawtext(t *testing.T) {
	assert.Equal(t, `It\\\'s 100\% Fun`, escapeDrawtext(`It's 100% Fun`))
	assert.Equal(t, `a\:b`, escapeDrawtext("a:b"))
}

func TestGenerate_MissingBinaryFailsCleanly(t *testing.T) {
	dir := t.TempDir()
	g := NewGenerator(filepath.Join(dir, "no-such-ffmpeg"), nil)

	out := filepath.Join(dir, "bumper.mp4")
	err := g.Generate(context.Background(), Request{ShowName: "X", OutPath: out})
	require.Error(t, err)

	// No temp siblings may be left behind; a stale one would make the
	// concat manager skip bumpers forever.
	leftovers, err := filepath.Glob(out + ".tmp.*")
	require.NoError(t, err)
	assert.Empty(t, leftovers)
	assert.NoFileExists(t, out)
}

func TestSyncFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bumper.mp4.tmp.1")
	require.NoError(t, os.WriteFile(path, []byte("frames"), 0o644))
	assert.NoError(t, syncFile(path))
	assert.Error(t, syncFile(filepath.Join(t.TempDir(), "missing")),
		"a vanished temp file must fail the publish, not rename nothing")
}

func TestClose_RejectsNewWork(t *testing.T) {
	g := NewGenerator("", nil)
	g.Close()

	err := g.Generate(context.Background(), Request{OutPath: filepath.Join(t.TempDir(), "b.mp4")})
	assert.Error(t, err)
}
