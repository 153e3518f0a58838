package handlers

import (
	"context"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/castarr/castarr/internal/models"
	"github.com/castarr/castarr/internal/repository"
)

// BucketHandler handles bucket CRUD, media ordering and channel assignment.
type BucketHandler struct {
	buckets  repository.BucketRepository
	media    repository.MediaFileRepository
	channels repository.ChannelRepository
	runtime  ChannelRuntime
	logger   *slog.Logger
}

// NewBucketHandler creates a new bucket handler.
func NewBucketHandler(buckets repository.BucketRepository, media repository.MediaFileRepository, channels repository.ChannelRepository, rt ChannelRuntime) *BucketHandler {
	return &BucketHandler{
		buckets:  buckets,
		media:    media,
		channels: channels,
		runtime:  rt,
		logger:   slog.Default(),
	}
}

// WithLogger sets the logger for the handler.
func (h *BucketHandler) WithLogger(logger *slog.Logger) *BucketHandler {
	h.logger = logger
	return h
}

// Register registers the bucket routes with the API.
func (h *BucketHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listBuckets",
		Method:      "GET",
		Path:        "/api/v1/buckets",
		Summary:     "List all buckets",
		Tags:        []string{"Buckets"},
	}, h.ListBuckets)

	huma.Register(api, huma.Operation{
		OperationID: "getBucket",
		Method:      "GET",
		Path:        "/api/v1/buckets/{id}",
		Summary:     "Get bucket by ID",
		Tags:        []string{"Buckets"},
	}, h.GetBucket)

	huma.Register(api, huma.Operation{
		OperationID:   "createBucket",
		Method:        "POST",
		Path:          "/api/v1/buckets",
		Summary:       "Create a bucket",
		Tags:          []string{"Buckets"},
		DefaultStatus: 201,
	}, h.CreateBucket)

	huma.Register(api, huma.Operation{
		OperationID: "updateBucket",
		Method:      "PUT",
		Path:        "/api/v1/buckets/{id}",
		Summary:     "Update a bucket",
		Tags:        []string{"Buckets"},
	}, h.UpdateBucket)

	huma.Register(api, huma.Operation{
		OperationID: "deleteBucket",
		Method:      "DELETE",
		Path:        "/api/v1/buckets/{id}",
		Summary:     "Delete a bucket",
		Description: "Removes the bucket, its media ordering and its channel assignments.",
		Tags:        []string{"Buckets"},
	}, h.DeleteBucket)

	huma.Register(api, huma.Operation{
		OperationID: "getBucketMedia",
		Method:      "GET",
		Path:        "/api/v1/buckets/{id}/media",
		Summary:     "List a bucket's media in playback order",
		Tags:        []string{"Buckets"},
	}, h.GetBucketMedia)

	huma.Register(api, huma.Operation{
		OperationID: "addBucketMedia",
		Method:      "POST",
		Path:        "/api/v1/buckets/{id}/media",
		Summary:     "Append a media file to a bucket",
		Tags:        []string{"Buckets"},
	}, h.AddBucketMedia)

	huma.Register(api, huma.Operation{
		OperationID: "removeBucketMedia",
		Method:      "DELETE",
		Path:        "/api/v1/buckets/{id}/media/{mediaId}",
		Summary:     "Remove a media file from a bucket",
		Tags:        []string{"Buckets"},
	}, h.RemoveBucketMedia)

	huma.Register(api, huma.Operation{
		OperationID: "assignBucketToChannel",
		Method:      "POST",
		Path:        "/api/v1/channels/{channelId}/buckets",
		Summary:     "Assign a bucket to a channel",
		Description: "Associates the bucket at a priority. Re-assigning updates the priority in place.",
		Tags:        []string{"Buckets"},
	}, h.AssignToChannel)

	huma.Register(api, huma.Operation{
		OperationID: "unassignBucketFromChannel",
		Method:      "DELETE",
		Path:        "/api/v1/channels/{channelId}/buckets/{bucketId}",
		Summary:     "Remove a bucket from a channel",
		Tags:        []string{"Buckets"},
	}, h.UnassignFromChannel)

	huma.Register(api, huma.Operation{
		OperationID: "getChannelBuckets",
		Method:      "GET",
		Path:        "/api/v1/channels/{channelId}/buckets",
		Summary:     "List a channel's bucket assignments",
		Tags:        []string{"Buckets"},
	}, h.GetChannelBuckets)
}

// ListBucketsOutput is the output for listing buckets.
type ListBucketsOutput struct {
	Body struct {
		Items []BucketResponse `json:"items"`
		Total int              `json:"total"`
	}
}

// ListBuckets returns all buckets.
func (h *BucketHandler) ListBuckets(ctx context.Context, _ *struct{}) (*ListBucketsOutput, error) {
	buckets, err := h.buckets.List(ctx)
	if err != nil {
		return nil, domainError(err)
	}

	resp := &ListBucketsOutput{}
	resp.Body.Items = make([]BucketResponse, len(buckets))
	for i, b := range buckets {
		resp.Body.Items[i] = BucketFromModel(b)
	}
	resp.Body.Total = len(buckets)
	return resp, nil
}

// BucketIDInput identifies a bucket by path ID.
type BucketIDInput struct {
	ID string `path:"id" doc:"Bucket ID"`
}

// BucketOutput wraps a single bucket response.
type BucketOutput struct {
	Body BucketResponse
}

func (h *BucketHandler) loadBucket(ctx context.Context, rawID string) (*models.Bucket, error) {
	id, err := parseULID(rawID)
	if err != nil {
		return nil, err
	}
	b, err := h.buckets.GetByID(ctx, id)
	if err != nil {
		return nil, domainError(err)
	}
	if b == nil {
		return nil, huma.Error404NotFound(models.ErrBucketNotFound.Error())
	}
	return b, nil
}

// GetBucket returns a single bucket.
func (h *BucketHandler) GetBucket(ctx context.Context, input *BucketIDInput) (*BucketOutput, error) {
	b, err := h.loadBucket(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &BucketOutput{Body: BucketFromModel(b)}, nil
}

// CreateBucketInput is the input for creating a bucket.
type CreateBucketInput struct {
	Body struct {
		Name        string `json:"name" minLength:"1" maxLength:"255"`
		Type        string `json:"type" enum:"global,channel_specific"`
		Description string `json:"description,omitempty"`
	}
}

// CreateBucket creates a new bucket.
func (h *BucketHandler) CreateBucket(ctx context.Context, input *CreateBucketInput) (*BucketOutput, error) {
	b := &models.Bucket{
		Name:        input.Body.Name,
		Type:        models.BucketType(input.Body.Type),
		Description: input.Body.Description,
	}
	if err := h.buckets.Create(ctx, b); err != nil {
		return nil, domainError(err)
	}

	h.logger.Info("bucket created",
		slog.String("bucket_id", b.ID.String()),
		slog.String("name", b.Name))

	return &BucketOutput{Body: BucketFromModel(b)}, nil
}

// UpdateBucketInput is the input for updating a bucket.
type UpdateBucketInput struct {
	ID   string `path:"id" doc:"Bucket ID"`
	Body struct {
		Name        *string `json:"name,omitempty"`
		Description *string `json:"description,omitempty"`
	}
}

// UpdateBucket updates a bucket's name or description. The type is fixed at
// creation.
func (h *BucketHandler) UpdateBucket(ctx context.Context, input *UpdateBucketInput) (*BucketOutput, error) {
	b, err := h.loadBucket(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	if input.Body.Name != nil {
		b.Name = *input.Body.Name
	}
	if input.Body.Description != nil {
		b.Description = *input.Body.Description
	}

	if err := h.buckets.Update(ctx, b); err != nil {
		return nil, domainError(err)
	}
	return &BucketOutput{Body: BucketFromModel(b)}, nil
}

// DeleteBucket removes a bucket and refreshes every channel that used it.
func (h *BucketHandler) DeleteBucket(ctx context.Context, input *BucketIDInput) (*MessageOutput, error) {
	b, err := h.loadBucket(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	affected := h.channelsUsingBucket(ctx, b.ID)

	if err := h.buckets.Delete(ctx, b.ID); err != nil {
		return nil, domainError(err)
	}

	for _, channelID := range affected {
		h.refreshChannel(ctx, channelID)
	}
	return messageOutput("bucket deleted"), nil
}

// MediaListOutput is a list of media files in playback order.
type MediaListOutput struct {
	Body struct {
		Items []MediaFileResponse `json:"items"`
		Total int                 `json:"total"`
	}
}

// GetBucketMedia returns the bucket's media in playback order.
func (h *BucketHandler) GetBucketMedia(ctx context.Context, input *BucketIDInput) (*MediaListOutput, error) {
	b, err := h.loadBucket(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	files, err := h.buckets.GetMedia(ctx, b.ID)
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

// AddBucketMediaInput is the input for appending media to a bucket.
type AddBucketMediaInput struct {
	ID   string `path:"id" doc:"Bucket ID"`
	Body struct {
		MediaFileID string `json:"media_file_id"`
	}
}

// AddBucketMedia appends a media file to the end of the bucket order.
func (h *BucketHandler) AddBucketMedia(ctx context.Context, input *AddBucketMediaInput) (*MessageOutput, error) {
	b, err := h.loadBucket(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	mediaID, err := parseULID(input.Body.MediaFileID)
	if err != nil {
		return nil, err
	}

	file, err := h.media.GetByID(ctx, mediaID)
	if err != nil {
		return nil, domainError(err)
	}
	if file == nil {
		return nil, huma.Error404NotFound(models.ErrMediaFileNotFound.Error())
	}

	if err := h.buckets.AddMedia(ctx, b.ID, mediaID); err != nil {
		return nil, domainError(err)
	}

	h.refreshBucketChannels(ctx, b.ID)
	return messageOutput("media added to bucket"), nil
}

// RemoveBucketMediaInput identifies a bucket/media pair.
type RemoveBucketMediaInput struct {
	ID      string `path:"id" doc:"Bucket ID"`
	MediaID string `path:"mediaId" doc:"Media file ID"`
}

// RemoveBucketMedia removes a media file from a bucket, preserving the
// relative order of the rest.
func (h *BucketHandler) RemoveBucketMedia(ctx context.Context, input *RemoveBucketMediaInput) (*MessageOutput, error) {
	b, err := h.loadBucket(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	mediaID, err := parseULID(input.MediaID)
	if err != nil {
		return nil, err
	}

	if err := h.buckets.RemoveMedia(ctx, b.ID, mediaID); err != nil {
		return nil, domainError(err)
	}

	h.refreshBucketChannels(ctx, b.ID)
	return messageOutput("media removed from bucket"), nil
}

// AssignToChannelInput is the input for assigning a bucket to a channel.
type AssignToChannelInput struct {
	ChannelID string `path:"channelId" doc:"Channel ID"`
	Body      struct {
		BucketID string `json:"bucket_id"`
		Priority int    `json:"priority,omitempty" minimum:"0"`
	}
}

// AssignToChannel associates a bucket with a channel at a priority.
func (h *BucketHandler) AssignToChannel(ctx context.Context, input *AssignToChannelInput) (*MessageOutput, error) {
	channelID, err := parseULID(input.ChannelID)
	if err != nil {
		return nil, err
	}
	bucketID, err := parseULID(input.Body.BucketID)
	if err != nil {
		return nil, err
	}

	ch, err := h.channels.GetByID(ctx, channelID)
	if err != nil {
		return nil, domainError(err)
	}
	if ch == nil {
		return nil, huma.Error404NotFound(models.ErrChannelNotFound.Error())
	}
	b, err := h.buckets.GetByID(ctx, bucketID)
	if err != nil {
		return nil, domainError(err)
	}
	if b == nil {
		return nil, huma.Error404NotFound(models.ErrBucketNotFound.Error())
	}

	if err := h.buckets.AssignToChannel(ctx, channelID, bucketID, input.Body.Priority); err != nil {
		return nil, domainError(err)
	}

	h.refreshChannel(ctx, channelID)
	return messageOutput("bucket assigned to channel"), nil
}

// ChannelBucketInput identifies a channel/bucket pair.
type ChannelBucketInput struct {
	ChannelID string `path:"channelId" doc:"Channel ID"`
	BucketID  string `path:"bucketId" doc:"Bucket ID"`
}

// UnassignFromChannel removes a bucket from a channel.
func (h *BucketHandler) UnassignFromChannel(ctx context.Context, input *ChannelBucketInput) (*MessageOutput, error) {
	channelID, err := parseULID(input.ChannelID)
	if err != nil {
		return nil, err
	}
	bucketID, err := parseULID(input.BucketID)
	if err != nil {
		return nil, err
	}

	if err := h.buckets.UnassignFromChannel(ctx, channelID, bucketID); err != nil {
		return nil, domainError(err)
	}

	h.refreshChannel(ctx, channelID)
	return messageOutput("bucket removed from channel"), nil
}

// ChannelBucketsInput identifies a channel by path ID.
type ChannelBucketsInput struct {
	ChannelID string `path:"channelId" doc:"Channel ID"`
}

// ChannelBucketAssignment is a bucket assignment with its priority.
type ChannelBucketAssignment struct {
	BucketID string `json:"bucket_id"`
	Priority int    `json:"priority"`
}

// ChannelBucketsOutput lists a channel's bucket assignments.
type ChannelBucketsOutput struct {
	Body struct {
		Items []ChannelBucketAssignment `json:"items"`
		Total int                       `json:"total"`
	}
}

// GetChannelBuckets returns a channel's bucket assignments ordered by
// priority descending.
func (h *BucketHandler) GetChannelBuckets(ctx context.Context, input *ChannelBucketsInput) (*ChannelBucketsOutput, error) {
	channelID, err := parseULID(input.ChannelID)
	if err != nil {
		return nil, err
	}

	assocs, err := h.buckets.GetChannelBuckets(ctx, channelID)
	if err != nil {
		return nil, domainError(err)
	}

	resp := &ChannelBucketsOutput{}
	resp.Body.Items = make([]ChannelBucketAssignment, len(assocs))
	for i, a := range assocs {
		resp.Body.Items[i] = ChannelBucketAssignment{
			BucketID: a.BucketID.String(),
			Priority: a.Priority,
		}
	}
	resp.Body.Total = len(assocs)
	return resp, nil
}

// channelsUsingBucket returns the IDs of channels the bucket is assigned to.
// Failures degrade to an empty list: the refresh that follows is best effort.
func (h *BucketHandler) channelsUsingBucket(ctx context.Context, bucketID models.ULID) []models.ULID {
	channels, err := h.channels.List(ctx)
	if err != nil {
		h.logger.Warn("listing channels for bucket refresh", slog.Any("error", err))
		return nil
	}

	var affected []models.ULID
	for _, ch := range channels {
		assocs, err := h.buckets.GetChannelBuckets(ctx, ch.ID)
		if err != nil {
			continue
		}
		for _, a := range assocs {
			if a.BucketID == bucketID {
				affected = append(affected, ch.ID)
				break
			}
		}
	}
	return affected
}

// refreshBucketChannels refreshes every channel the bucket is assigned to.
func (h *BucketHandler) refreshBucketChannels(ctx context.Context, bucketID models.ULID) {
	for _, channelID := range h.channelsUsingBucket(ctx, bucketID) {
		h.refreshChannel(ctx, channelID)
	}
}

// refreshChannel rebuilds a channel's playlist after a bucket mutation.
func (h *BucketHandler) refreshChannel(ctx context.Context, channelID models.ULID) {
	if err := h.runtime.InvalidateChannelMedia(ctx, channelID); err != nil {
		h.logger.Warn("refreshing channel after bucket change",
			slog.String("channel_id", channelID.String()),
			slog.Any("error", err))
	}
}
