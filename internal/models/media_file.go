package models

import (
	"fmt"
	"path/filepath"

	"gorm.io/gorm"
)

// MediaFile represents one scanned video file in the library. Rows are
// written by the library scanner and treated as immutable afterwards.
type MediaFile struct {
	BaseModel

	// FolderID is the foreign key to the library folder the file was found in.
	FolderID ULID `gorm:"type:varchar(26);index" json:"folder_id"`

	// Path is the absolute filesystem path.
	Path string `gorm:"not null;size:4096;uniqueIndex" json:"path"`

	// Filename is the base name of the file.
	Filename string `gorm:"not null;size:512" json:"filename"`

	// Duration is the media duration in seconds.
	Duration float64 `gorm:"not null" json:"duration"`

	// FileSize is the size in bytes.
	FileSize int64 `json:"file_size"`

	// ShowName, Season, Episode and Title come from the filename parser.
	ShowName string `gorm:"size:512;index" json:"show_name,omitempty"`
	Season   int    `json:"season,omitempty"`
	Episode  int    `json:"episode,omitempty"`
	Title    string `gorm:"size:512" json:"title,omitempty"`
}

// TableName returns the table name for MediaFile.
func (MediaFile) TableName() string {
	return "media_files"
}

// Validate performs basic validation on the media file.
func (m *MediaFile) Validate() error {
	if m.Path == "" {
		return ErrPathRequired
	}
	if m.Duration <= 0 {
		return ErrValidation{Field: "duration", Message: "must be positive"}
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the file and generates ULID.
func (m *MediaFile) BeforeCreate(tx *gorm.DB) error {
	if err := m.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	if m.Filename == "" {
		m.Filename = filepath.Base(m.Path)
	}
	return m.Validate()
}

// DisplayName returns the human-readable program name for the file. This is
// the name the EPG publishes and the runtime compares against when resyncing
// the playback position to the guide.
func (m *MediaFile) DisplayName() string {
	switch {
	case m.ShowName != "" && m.Season > 0 && m.Episode > 0 && m.Title != "":
		return fmt.Sprintf("%s S%02dE%02d - %s", m.ShowName, m.Season, m.Episode, m.Title)
	case m.ShowName != "" && m.Season > 0 && m.Episode > 0:
		return fmt.Sprintf("%s S%02dE%02d", m.ShowName, m.Season, m.Episode)
	case m.ShowName != "" && m.Title != "":
		return fmt.Sprintf("%s - %s", m.ShowName, m.Title)
	case m.ShowName != "":
		return m.ShowName
	default:
		return m.Filename
	}
}

// EpisodeNum returns the XMLTV-style onscreen episode number, or "".
func (m *MediaFile) EpisodeNum() string {
	if m.Season > 0 && m.Episode > 0 {
		return fmt.Sprintf("S%02dE%02d", m.Season, m.Episode)
	}
	return ""
}

// LibraryFolder is a directory the scanner watches for media files.
type LibraryFolder struct {
	BaseModel

	Path string `gorm:"not null;size:4096;uniqueIndex" json:"path"`
	Name string `gorm:"size:255" json:"name"`
}

// TableName returns the table name for LibraryFolder.
func (LibraryFolder) TableName() string {
	return "library_folders"
}

// Validate performs basic validation on the folder.
func (f *LibraryFolder) Validate() error {
	if f.Path == "" {
		return ErrPathRequired
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the folder and generates ULID.
func (f *LibraryFolder) BeforeCreate(tx *gorm.DB) error {
	if err := f.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return f.Validate()
}
