// Package scanner walks library folders and registers playable media files.
//
// A scan is idempotent: files already registered are skipped, new files are
// probed for duration and parsed for show metadata, and rows whose file has
// disappeared from disk are removed so playlists never reference dead paths.
package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/castarr/castarr/internal/models"
	"github.com/castarr/castarr/internal/repository"
)

// videoExtensions lists the file extensions the scanner considers playable.
var videoExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".avi":  true,
	".mov":  true,
	".m4v":  true,
	".ts":   true,
	".webm": true,
	".mpg":  true,
	".mpeg": true,
	".wmv":  true,
	".flv":  true,
}

// Prober reports the duration of a media file in seconds.
type Prober interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// Result summarizes one scan pass.
type Result struct {
	Scanned int `json:"scanned"`
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
	Removed int `json:"removed"`
}

// Scanner registers media files found under the configured library folders.
type Scanner struct {
	folders repository.LibraryFolderRepository
	media   repository.MediaFileRepository
	probe   Prober
	logger  *slog.Logger
}

// New creates a scanner.
func New(folders repository.LibraryFolderRepository, media repository.MediaFileRepository, probe Prober, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		folders: folders,
		media:   media,
		probe:   probe,
		logger:  logger.With("component", "scanner"),
	}
}

// ScanAll scans every library folder and then prunes rows whose file no
// longer exists on disk.
func (s *Scanner) ScanAll(ctx context.Context) (Result, error) {
	folders, err := s.folders.List(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("listing library folders: %w", err)
	}

	var total Result
	for _, folder := range folders {
		res, err := s.ScanFolder(ctx, folder)
		if err != nil {
			// One unreadable folder must not abort the rest of the scan.
			s.logger.Warn("scanning folder failed",
				"path", folder.Path, "error", err)
			continue
		}
		total.Scanned += res.Scanned
		total.Added += res.Added
		total.Skipped += res.Skipped
		total.Failed += res.Failed
	}

	removed, err := s.pruneMissing(ctx)
	if err != nil {
		return total, err
	}
	total.Removed = removed

	s.logger.Info("library scan finished",
		slog.Int("scanned", total.Scanned),
		slog.Int("added", total.Added),
		slog.Int("removed", total.Removed))
	return total, nil
}

// ScanFolder walks one folder and registers every new playable file.
func (s *Scanner) ScanFolder(ctx context.Context, folder *models.LibraryFolder) (Result, error) {
	var res Result

	err := filepath.WalkDir(folder.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		name := d.Name()
		if d.IsDir() {
			if strings.HasPrefix(name, ".") && path != folder.Path {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || !videoExtensions[strings.ToLower(filepath.Ext(name))] {
			return nil
		}

		res.Scanned++
		existing, err := s.media.GetByPath(ctx, path)
		if err != nil {
			return err
		}
		if existing != nil {
			res.Skipped++
			return nil
		}

		if err := s.register(ctx, folder, path, d); err != nil {
			res.Failed++
			s.logger.Warn("registering media file failed", "path", path, "error", err)
		} else {
			res.Added++
		}
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("walking %s: %w", folder.Path, err)
	}
	return res, nil
}

func (s *Scanner) register(ctx context.Context, folder *models.LibraryFolder, path string, d fs.DirEntry) error {
	duration, err := s.probe.Duration(ctx, path)
	if err != nil {
		return fmt.Errorf("probing duration: %w", err)
	}

	var size int64
	if info, err := d.Info(); err == nil {
		size = info.Size()
	}

	meta := ParseFilename(path)
	file := &models.MediaFile{
		FolderID: folder.ID,
		Path:     path,
		Duration: duration,
		FileSize: size,
		ShowName: meta.ShowName,
		Season:   meta.Season,
		Episode:  meta.Episode,
		Title:    meta.Title,
	}
	if err := s.media.Create(ctx, file); err != nil {
		return err
	}
	s.logger.Debug("registered media file",
		"path", path,
		"duration", duration,
		"show", meta.ShowName)
	return nil
}

// pruneMissing deletes rows whose file is gone from disk. Buckets referencing
// a pruned file lose the entry through the bucket_media cascade.
func (s *Scanner) pruneMissing(ctx context.Context) (int, error) {
	files, err := s.media.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing media files: %w", err)
	}

	removed := 0
	for _, f := range files {
		if _, err := os.Stat(f.Path); err == nil || !os.IsNotExist(err) {
			continue
		}
		if err := s.media.Delete(ctx, f.ID); err != nil {
			s.logger.Warn("pruning missing media file failed", "path", f.Path, "error", err)
			continue
		}
		removed++
		s.logger.Debug("pruned missing media file", "path", f.Path)
	}
	return removed, nil
}
