package handlers

import (
	"context"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/castarr/castarr/internal/models"
	"github.com/castarr/castarr/internal/repository"
)

// MediaHandler handles media library endpoints. Most files arrive via the
// library scanner; registration here is for manual additions and tooling.
type MediaHandler struct {
	media  repository.MediaFileRepository
	logger *slog.Logger
}

// NewMediaHandler creates a new media handler.
func NewMediaHandler(media repository.MediaFileRepository) *MediaHandler {
	return &MediaHandler{
		media:  media,
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the handler.
func (h *MediaHandler) WithLogger(logger *slog.Logger) *MediaHandler {
	h.logger = logger
	return h
}

// Register registers the media routes with the API.
func (h *MediaHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listMediaFiles",
		Method:      "GET",
		Path:        "/api/v1/media",
		Summary:     "List media files",
		Tags:        []string{"Media"},
	}, h.ListMedia)

	huma.Register(api, huma.Operation{
		OperationID: "getMediaFile",
		Method:      "GET",
		Path:        "/api/v1/media/{id}",
		Summary:     "Get media file by ID",
		Tags:        []string{"Media"},
	}, h.GetMedia)

	huma.Register(api, huma.Operation{
		OperationID:   "registerMediaFile",
		Method:        "POST",
		Path:          "/api/v1/media",
		Summary:       "Register a media file",
		Tags:          []string{"Media"},
		DefaultStatus: 201,
	}, h.RegisterMedia)

	huma.Register(api, huma.Operation{
		OperationID: "deleteMediaFile",
		Method:      "DELETE",
		Path:        "/api/v1/media/{id}",
		Summary:     "Delete a media file",
		Tags:        []string{"Media"},
	}, h.DeleteMedia)
}

// ListMedia returns all media files.
func (h *MediaHandler) ListMedia(ctx context.Context, _ *struct{}) (*MediaListOutput, error) {
	files, err := h.media.List(ctx)
	if err != nil {
		return nil, domainError(err)
	}

	resp := &MediaListOutput{}
	resp.Body.Items = make([]MediaFileResponse, len(files))
	for i, f := range files {
		resp.Body.Items[i] = MediaFileFromModel(f)
	}
	resp.Body.Total = len(files)
	return resp, nil
}

// MediaIDInput identifies a media file by path ID.
type MediaIDInput struct {
	ID string `path:"id" doc:"Media file ID"`
}

// MediaFileOutput wraps a single media file response.
type MediaFileOutput struct {
	Body MediaFileResponse
}

// GetMedia returns a single media file.
func (h *MediaHandler) GetMedia(ctx context.Context, input *MediaIDInput) (*MediaFileOutput, error) {
	id, err := parseULID(input.ID)
	if err != nil {
		return nil, err
	}
	file, err := h.media.GetByID(ctx, id)
	if err != nil {
		return nil, domainError(err)
	}
	if file == nil {
		return nil, huma.Error404NotFound(models.ErrMediaFileNotFound.Error())
	}
	return &MediaFileOutput{Body: MediaFileFromModel(file)}, nil
}

// RegisterMediaInput is the input for registering a media file.
type RegisterMediaInput struct {
	Body struct {
		Path     string  `json:"path" minLength:"1" doc:"Absolute filesystem path"`
		Duration float64 `json:"duration" doc:"Duration in seconds, must be positive"`
		FileSize int64   `json:"file_size,omitempty"`
		ShowName string  `json:"show_name,omitempty"`
		Season   int     `json:"season,omitempty"`
		Episode  int     `json:"episode,omitempty"`
		Title    string  `json:"title,omitempty"`
	}
}

// RegisterMedia adds a media file to the library.
func (h *MediaHandler) RegisterMedia(ctx context.Context, input *RegisterMediaInput) (*MediaFileOutput, error) {
	file := &models.MediaFile{
		Path:     input.Body.Path,
		Duration: input.Body.Duration,
		FileSize: input.Body.FileSize,
		ShowName: input.Body.ShowName,
		Season:   input.Body.Season,
		Episode:  input.Body.Episode,
		Title:    input.Body.Title,
	}
	if err := h.media.Create(ctx, file); err != nil {
		return nil, domainError(err)
	}

	h.logger.Info("media file registered",
		slog.String("media_id", file.ID.String()),
		slog.String("path", file.Path))

	return &MediaFileOutput{Body: MediaFileFromModel(file)}, nil
}

// DeleteMedia removes a media file from the library.
func (h *MediaHandler) DeleteMedia(ctx context.Context, input *MediaIDInput) (*MessageOutput, error) {
	id, err := parseULID(input.ID)
	if err != nil {
		return nil, err
	}
	if err := h.media.Delete(ctx, id); err != nil {
		return nil, domainError(err)
	}
	return messageOutput("media file deleted"), nil
}
