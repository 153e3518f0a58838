package handlers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/castarr/castarr/internal/models"
	"github.com/castarr/castarr/internal/repository"
	"github.com/castarr/castarr/internal/scanner"
)

// LibraryHandler manages watched library folders and scan runs.
type LibraryHandler struct {
	folders repository.LibraryFolderRepository
	scanner *scanner.Scanner
	logger  *slog.Logger
}

// NewLibraryHandler creates a new library handler.
func NewLibraryHandler(folders repository.LibraryFolderRepository, sc *scanner.Scanner) *LibraryHandler {
	return &LibraryHandler{
		folders: folders,
		scanner: sc,
		logger:  slog.Default(),
	}
}

// WithLogger sets the logger for the handler.
func (h *LibraryHandler) WithLogger(logger *slog.Logger) *LibraryHandler {
	h.logger = logger
	return h
}

// Register registers the library routes with the API.
func (h *LibraryHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listLibraryFolders",
		Method:      "GET",
		Path:        "/api/v1/library/folders",
		Summary:     "List library folders",
		Tags:        []string{"Library"},
	}, h.ListFolders)

	huma.Register(api, huma.Operation{
		OperationID:   "addLibraryFolder",
		Method:        "POST",
		Path:          "/api/v1/library/folders",
		Summary:       "Add a library folder",
		Tags:          []string{"Library"},
		DefaultStatus: 201,
	}, h.AddFolder)

	huma.Register(api, huma.Operation{
		OperationID: "deleteLibraryFolder",
		Method:      "DELETE",
		Path:        "/api/v1/library/folders/{id}",
		Summary:     "Remove a library folder",
		Tags:        []string{"Library"},
	}, h.DeleteFolder)

	huma.Register(api, huma.Operation{
		OperationID: "scanLibrary",
		Method:      "POST",
		Path:        "/api/v1/library/scan",
		Summary:     "Scan all library folders",
		Description: "Walks every folder, registers new playable files and prunes rows whose file is gone.",
		Tags:        []string{"Library"},
	}, h.Scan)
}

// LibraryFolderResponse is the API shape of a library folder.
type LibraryFolderResponse struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func libraryFolderFromModel(f *models.LibraryFolder) LibraryFolderResponse {
	return LibraryFolderResponse{
		ID:        f.ID.String(),
		Path:      f.Path,
		Name:      f.Name,
		CreatedAt: f.CreatedAt,
	}
}

// FolderListOutput wraps the folder list response.
type FolderListOutput struct {
	Body struct {
		Items []LibraryFolderResponse `json:"items"`
		Total int                     `json:"total"`
	}
}

// ListFolders returns all library folders.
func (h *LibraryHandler) ListFolders(ctx context.Context, _ *struct{}) (*FolderListOutput, error) {
	folders, err := h.folders.List(ctx)
	if err != nil {
		return nil, domainError(err)
	}

	resp := &FolderListOutput{}
	resp.Body.Items = make([]LibraryFolderResponse, len(folders))
	for i, f := range folders {
		resp.Body.Items[i] = libraryFolderFromModel(f)
	}
	resp.Body.Total = len(folders)
	return resp, nil
}

// AddFolderInput is the input for adding a library folder.
type AddFolderInput struct {
	Body struct {
		Path string `json:"path" minLength:"1" doc:"Absolute directory path to watch"`
		Name string `json:"name,omitempty" maxLength:"255"`
	}
}

// FolderOutput wraps a single folder response.
type FolderOutput struct {
	Body LibraryFolderResponse
}

// AddFolder registers a directory as a library folder. The path must exist
// and be a directory.
func (h *LibraryHandler) AddFolder(ctx context.Context, input *AddFolderInput) (*FolderOutput, error) {
	info, err := os.Stat(input.Body.Path)
	if err != nil {
		return nil, huma.Error400BadRequest("folder path does not exist", err)
	}
	if !info.IsDir() {
		return nil, huma.Error400BadRequest("folder path is not a directory")
	}

	folder := &models.LibraryFolder{
		Path: input.Body.Path,
		Name: input.Body.Name,
	}
	if err := h.folders.Create(ctx, folder); err != nil {
		return nil, domainError(err)
	}

	h.logger.Info("library folder added",
		slog.String("folder_id", folder.ID.String()),
		slog.String("path", folder.Path))

	return &FolderOutput{Body: libraryFolderFromModel(folder)}, nil
}

// FolderIDInput identifies a folder by path ID.
type FolderIDInput struct {
	ID string `path:"id" doc:"Library folder ID"`
}

// DeleteFolder removes a library folder. Already-registered media stays until
// the next scan prunes files that no longer resolve.
func (h *LibraryHandler) DeleteFolder(ctx context.Context, input *FolderIDInput) (*MessageOutput, error) {
	id, err := parseULID(input.ID)
	if err != nil {
		return nil, err
	}
	if err := h.folders.Delete(ctx, id); err != nil {
		return nil, domainError(err)
	}
	return messageOutput("library folder deleted"), nil
}

// ScanOutput wraps the scan result.
type ScanOutput struct {
	Body scanner.Result
}

// Scan runs a full library scan synchronously and returns the tally.
func (h *LibraryHandler) Scan(ctx context.Context, _ *struct{}) (*ScanOutput, error) {
	res, err := h.scanner.ScanAll(ctx)
	if err != nil {
		return nil, domainError(err)
	}
	return &ScanOutput{Body: res}, nil
}
