// Package concat writes the transcoder's concat demuxer manifest.
//
// The manifest is the contract between the orchestrator and the encoder: an
// ordered list of `file` directives, optionally led by an `inpoint` when the
// channel resumes mid-file, with bumper entries interleaved between programs.
// A JSON sidecar records what the manifest was built from so the progression
// loop can detect schedule-block changes.
package concat

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"

	"github.com/castarr/castarr/internal/models"
)

const (
	// ManifestName is the concat manifest filename within a channel's
	// output directory.
	ManifestName = "concat.txt"
	// MetadataName is the JSON sidecar filename.
	MetadataName = "concat.metadata.json"

	// minBumperSize is the smallest bumper the manifest will reference.
	// Anything under 1 KiB is a failed or in-progress write.
	minBumperSize = 1024
)

// Metadata is the sidecar written next to each manifest.
type Metadata struct {
	ScheduleBlockID *models.ULID `json:"scheduleBlockId"`
	CreatedAt       time.Time    `json:"createdAt"`
	MediaCount      int          `json:"mediaCount"`
	StartIndex      int          `json:"startIndex"`
	SeekToSeconds   float64      `json:"seekToSeconds"`
}

// Manager writes concat manifests and their metadata sidecars.
type Manager struct {
	logger *slog.Logger
}

// NewManager creates a concat manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger.With("component", "concat")}
}

// Create writes the manifest for mediaPaths into outputDir, starting at
// startIndex with an inpoint of seekSeconds. It returns the manifest path
// and whether bumper entries were interleaved, so position math downstream
// can account for the bumper gap only when the encoder will actually play
// one. startIndex and seekSeconds are clamped into bounds. Bumpers are
// interleaved only when the bumper file is safe to read (exists, at least
// 1 KiB, and no temp sibling is being written).
func (m *Manager) Create(outputDir string, mediaPaths []string, bumperPath string, startIndex int, seekSeconds float64, scheduleBlockID *models.ULID) (string, bool, error) {
	if len(mediaPaths) == 0 {
		return "", false, models.ErrNoMediaAvailable
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", false, fmt.Errorf("creating output directory: %w", err)
	}

	if startIndex < 0 {
		startIndex = 0
	}
	if startIndex > len(mediaPaths)-1 {
		startIndex = len(mediaPaths) - 1
	}
	if seekSeconds < 0 {
		seekSeconds = 0
	}

	useBumper := bumperUsable(bumperPath)

	var sb strings.Builder
	sb.WriteString("file " + Escape(mediaPaths[startIndex]) + "\n")
	if seekSeconds > 0 {
		// On non-intra codecs the demuxer starts at the nearest keyframe at
		// or before the inpoint.
		fmt.Fprintf(&sb, "inpoint %.3f\n", seekSeconds)
	}
	for i := startIndex + 1; i < len(mediaPaths); i++ {
		if useBumper {
			sb.WriteString("file " + Escape(bumperPath) + "\n")
		}
		sb.WriteString("file " + Escape(mediaPaths[i]) + "\n")
	}

	manifestPath := filepath.Join(outputDir, ManifestName)

	// Remove first so a reader never sees a half-replaced file through a
	// stale handle, then land the new content atomically.
	if err := os.Remove(manifestPath); err != nil && !os.IsNotExist(err) {
		return "", false, fmt.Errorf("removing old manifest: %w", err)
	}
	if err := renameio.WriteFile(manifestPath, []byte(sb.String()), 0o644); err != nil {
		return "", false, fmt.Errorf("writing manifest: %w", err)
	}

	meta := Metadata{
		ScheduleBlockID: scheduleBlockID,
		CreatedAt:       time.Now().UTC(),
		MediaCount:      len(mediaPaths),
		StartIndex:      startIndex,
		SeekToSeconds:   seekSeconds,
	}
	if err := m.writeMetadata(outputDir, meta); err != nil {
		// The sidecar is advisory; the encoder only reads the manifest.
		m.logger.Warn("failed writing concat metadata", "error", err)
	}

	m.logger.Debug("wrote concat manifest",
		"path", manifestPath,
		"media_count", len(mediaPaths),
		"start_index", startIndex,
		"seek_seconds", seekSeconds,
		"bumpers", useBumper)
	return manifestPath, useBumper, nil
}

// Update rewrites the manifest from the top of the list with no seek. Used
// after media-list invalidation and schedule-block transitions.
func (m *Manager) Update(outputDir string, mediaPaths []string, bumperPath string, scheduleBlockID *models.ULID) (string, bool, error) {
	return m.Create(outputDir, mediaPaths, bumperPath, 0, 0, scheduleBlockID)
}

// ReadMetadata loads the sidecar, or returns nil when it does not exist.
func (m *Manager) ReadMetadata(outputDir string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(outputDir, MetadataName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading concat metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decoding concat metadata: %w", err)
	}
	return &meta, nil
}

func (m *Manager) writeMetadata(outputDir string, meta Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding concat metadata: %w", err)
	}
	if err := renameio.WriteFile(filepath.Join(outputDir, MetadataName), data, 0o644); err != nil {
		return fmt.Errorf("writing concat metadata: %w", err)
	}
	return nil
}

// bumperUsable reports whether the bumper file is safe to reference: it
// exists, is at least minBumperSize, and no `<bumper>.tmp.*` sibling exists
// (the generator writes through a temp file and renames, so a temp sibling
// means a write is in flight).
func bumperUsable(bumperPath string) bool {
	if bumperPath == "" {
		return false
	}
	info, err := os.Stat(bumperPath)
	if err != nil || info.IsDir() || info.Size() < minBumperSize {
		return false
	}
	siblings, err := filepath.Glob(bumperPath + ".tmp.*")
	if err != nil || len(siblings) > 0 {
		return false
	}
	return true
}

// escaper covers the characters the concat demuxer treats specially in
// unquoted paths. Replacer works on the input in one pass, so inserted
// backslashes are never re-escaped.
var escaper = strings.NewReplacer(
	`\`, `\\`,
	` `, `\ `,
	`'`, `\'`,
	`"`, `\"`,
	`(`, `\(`,
	`)`, `\)`,
	`[`, `\[`,
	`]`, `\]`,
	`!`, `\!`,
)

// Escape escapes a path for an unquoted concat `file` directive.
func Escape(path string) string {
	return escaper.Replace(path)
}
