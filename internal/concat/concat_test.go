package concat

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castarr/castarr/internal/models"
)

func writeBumper(t *testing.T, dir string, size int) string {
	t.Helper()
	path := filepath.Join(dir, "bumper.mp4")
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	return path
}

func TestEscape(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/media/plain.mkv", "/media/plain.mkv"},
		{"/media/with space.mkv", `/media/with\ space.mkv`},
		{`/media/back\slash.mkv`, `/media/back\\slash.mkv`},
		{"/media/it's.mkv", `/media/it\'s.mkv`},
		{`/media/say "hi".mkv`, `/media/say\ \"hi\".mkv`},
		{"/media/show (2024) [x265]!.mkv", `/media/show\ \(2024\)\ \[x265\]\!.mkv`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Escape(tt.in))
		})
	}
}

func TestCreate_ResumeMidFileWithBumpers(t *testing.T) {
	dir := t.TempDir()
	bumper := writeBumper(t, dir, 2048)
	m := NewManager(nil)

	paths := []string{"/media/ep1.mkv", "/media/ep2.mkv", "/media/ep3.mkv"}
	manifest, withBumpers, err := m.Create(dir, paths, bumper, 1, 900, nil)
	require.NoError(t, err)
	assert.True(t, withBumpers)

	data, err := os.ReadFile(manifest)
	require.NoError(t, err)

	want := strings.Join([]string{
		"file /media/ep2.mkv",
		"inpoint 900.000",
		"file " + Escape(bumper),
		"file /media/ep3.mkv",
		"",
	}, "\n")
	assert.Equal(t, want, string(data))
}

func TestCreate_NoSeekOmitsInpoint(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(nil)

	manifest, _, err := m.Create(dir, []string{"/media/ep1.mkv"}, "", 0, 0, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(manifest)
	require.NoError(t, err)
	assert.Equal(t, "file /media/ep1.mkv\n", string(data))
}

func TestCreate_ClampsIndexAndSeek(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(nil)
	paths := []string{"/media/ep1.mkv", "/media/ep2.mkv"}

	// startIndex past the end clamps to the last entry.
	manifest, _, err := m.Create(dir, paths, "", 5, -30, nil)
	require.NoError(t, err)
	data, err := os.ReadFile(manifest)
	require.NoError(t, err)
	assert.Equal(t, "file /media/ep2.mkv\n", string(data))

	meta, err := m.ReadMetadata(dir)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, 1, meta.StartIndex)
	assert.Equal(t, 0.0, meta.SeekToSeconds)
	assert.Equal(t, 2, meta.MediaCount)

	// Negative startIndex clamps to 0.
	manifest, _, err = m.Create(dir, paths, "", -1, 0, nil)
	require.NoError(t, err)
	data, err = os.ReadFile(manifest)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "file /media/ep1.mkv\n"))
}

func TestCreate_SkipsBumperUnderWrite(t *testing.T) {
	dir := t.TempDir()
	bumper := writeBumper(t, dir, 2048)

	// A temp sibling means the generator is mid-write.
	tmp := fmt.Sprintf("%s.tmp.%d", bumper, time.Now().UnixNano())
	require.NoError(t, os.WriteFile(tmp, []byte("partial"), 0o644))

	m := NewManager(nil)
	manifest, withBumpers, err := m.Create(dir, []string{"/media/a.mkv", "/media/b.mkv"}, bumper, 0, 0, nil)
	require.NoError(t, err)
	assert.False(t, withBumpers)

	data, err := os.ReadFile(manifest)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "bumper")
	assert.Equal(t, "file /media/a.mkv\nfile /media/b.mkv\n", string(data))
}

func TestCreate_SkipsUndersizedOrMissingBumper(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(nil)
	paths := []string{"/media/a.mkv", "/media/b.mkv"}

	// Missing.
	manifest, withBumpers, err := m.Create(dir, paths, filepath.Join(dir, "bumper.mp4"), 0, 0, nil)
	require.NoError(t, err)
	assert.False(t, withBumpers)
	data, _ := os.ReadFile(manifest)
	assert.NotContains(t, string(data), "bumper")

	// Present but under 1 KiB.
	bumper := writeBumper(t, dir, 512)
	manifest, withBumpers, err = m.Create(dir, paths, bumper, 0, 0, nil)
	require.NoError(t, err)
	assert.False(t, withBumpers)
	data, _ = os.ReadFile(manifest)
	assert.NotContains(t, string(data), "bumper")
}

func TestCreate_EmptyMediaFails(t *testing.T) {
	m := NewManager(nil)
	_, _, err := m.Create(t.TempDir(), nil, "", 0, 0, nil)
	assert.ErrorIs(t, err, models.ErrNoMediaAvailable)
}

func TestUpdate_MatchesCreateAtZero(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(nil)
	paths := []string{"/media/a.mkv", "/media/b.mkv"}

	first, _, err := m.Create(dir, paths, "", 0, 0, nil)
	require.NoError(t, err)
	before, err := os.ReadFile(first)
	require.NoError(t, err)

	second, _, err := m.Update(dir, paths, "", nil)
	require.NoError(t, err)
	after, err := os.ReadFile(second)
	require.NoError(t, err)

	assert.Equal(t, before, after, "rewrite with same inputs is byte-identical")
}

func TestMetadata_CarriesBlockID(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(nil)
	blockID := models.NewULID()

	_, _, err := m.Create(dir, []string{"/media/a.mkv"}, "", 0, 0, &blockID)
	require.NoError(t, err)

	meta, err := m.ReadMetadata(dir)
	require.NoError(t, err)
	require.NotNil(t, meta)
	require.NotNil(t, meta.ScheduleBlockID)
	assert.Equal(t, blockID, *meta.ScheduleBlockID)
}
