package handlers

import (
	"context"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/castarr/castarr/internal/models"
	"github.com/castarr/castarr/internal/repository"
)

// ScheduleBlockHandler handles per-channel schedule block endpoints.
type ScheduleBlockHandler struct {
	blocks   repository.ScheduleBlockRepository
	buckets  repository.BucketRepository
	channels repository.ChannelRepository
	runtime  ChannelRuntime
	logger   *slog.Logger
}

// NewScheduleBlockHandler creates a new schedule block handler.
func NewScheduleBlockHandler(blocks repository.ScheduleBlockRepository, buckets repository.BucketRepository, channels repository.ChannelRepository, rt ChannelRuntime) *ScheduleBlockHandler {
	return &ScheduleBlockHandler{
		blocks:   blocks,
		buckets:  buckets,
		channels: channels,
		runtime:  rt,
		logger:   slog.Default(),
	}
}

// WithLogger sets the logger for the handler.
func (h *ScheduleBlockHandler) WithLogger(logger *slog.Logger) *ScheduleBlockHandler {
	h.logger = logger
	return h
}

// Register registers the schedule block routes with the API.
func (h *ScheduleBlockHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listScheduleBlocks",
		Method:      "GET",
		Path:        "/api/v1/channels/{channelId}/schedule-blocks",
		Summary:     "List a channel's schedule blocks",
		Description: "Blocks are ordered by priority descending, the order the scheduler consults them in.",
		Tags:        []string{"Schedule"},
	}, h.ListBlocks)

	huma.Register(api, huma.Operation{
		OperationID:   "createScheduleBlock",
		Method:        "POST",
		Path:          "/api/v1/channels/{channelId}/schedule-blocks",
		Summary:       "Create a schedule block",
		Tags:          []string{"Schedule"},
		DefaultStatus: 201,
	}, h.CreateBlock)

	huma.Register(api, huma.Operation{
		OperationID: "updateScheduleBlock",
		Method:      "PUT",
		Path:        "/api/v1/schedule-blocks/{id}",
		Summary:     "Update a schedule block",
		Tags:        []string{"Schedule"},
	}, h.UpdateBlock)

	huma.Register(api, huma.Operation{
		OperationID: "deleteScheduleBlock",
		Method:      "DELETE",
		Path:        "/api/v1/schedule-blocks/{id}",
		Summary:     "Delete a schedule block",
		Tags:        []string{"Schedule"},
	}, h.DeleteBlock)
}

// ScheduleBlocksInput identifies a channel by path ID.
type ScheduleBlocksInput struct {
	ChannelID string `path:"channelId" doc:"Channel ID"`
}

// ScheduleBlocksOutput lists a channel's schedule blocks.
type ScheduleBlocksOutput struct {
	Body struct {
		Items []ScheduleBlockResponse `json:"items"`
		Total int                     `json:"total"`
	}
}

// ListBlocks returns a channel's schedule blocks in scheduler order.
func (h *ScheduleBlockHandler) ListBlocks(ctx context.Context, input *ScheduleBlocksInput) (*ScheduleBlocksOutput, error) {
	channelID, err := parseULID(input.ChannelID)
	if err != nil {
		return nil, err
	}

	blocks, err := h.blocks.GetByChannel(ctx, channelID)
	if err != nil {
		return nil, domainError(err)
	}

	resp := &ScheduleBlocksOutput{}
	resp.Body.Items = make([]ScheduleBlockResponse, len(blocks))
	for i, b := range blocks {
		resp.Body.Items[i] = ScheduleBlockFromModel(b)
	}
	resp.Body.Total = len(blocks)
	return resp, nil
}

// CreateScheduleBlockInput is the input for creating a schedule block.
type CreateScheduleBlockInput struct {
	ChannelID string `path:"channelId" doc:"Channel ID"`
	Body      struct {
		BucketID     string `json:"bucket_id"`
		DaysOfWeek   string `json:"days_of_week,omitempty" doc:"Comma-separated days 0..6 (0=Sunday), empty for every day"`
		StartTime    string `json:"start_time" doc:"HH:MM:SS local wall-clock"`
		EndTime      string `json:"end_time" doc:"HH:MM:SS local wall-clock, after start_time"`
		PlaybackMode string `json:"playback_mode,omitempty" enum:"sequential,random,shuffle"`
		Priority     int    `json:"priority,omitempty" minimum:"0"`
		Enabled      *bool  `json:"enabled,omitempty"`
	}
}

// ScheduleBlockOutput wraps a single schedule block response.
type ScheduleBlockOutput struct {
	Body ScheduleBlockResponse
}

// CreateBlock creates a schedule block for a channel.
func (h *ScheduleBlockHandler) CreateBlock(ctx context.Context, input *CreateScheduleBlockInput) (*ScheduleBlockOutput, error) {
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
	bucket, err := h.buckets.GetByID(ctx, bucketID)
	if err != nil {
		return nil, domainError(err)
	}
	if bucket == nil {
		return nil, huma.Error404NotFound(models.ErrBucketNotFound.Error())
	}

	priority := input.Body.Priority
	if priority == 0 {
		priority = 1
	}

	block := &models.ScheduleBlock{
		ChannelID:    channelID,
		BucketID:     bucketID,
		DaysOfWeek:   input.Body.DaysOfWeek,
		StartTime:    input.Body.StartTime,
		EndTime:      input.Body.EndTime,
		PlaybackMode: models.PlaybackMode(input.Body.PlaybackMode),
		Priority:     priority,
		Enabled:      input.Body.Enabled,
	}

	if err := h.blocks.Create(ctx, block); err != nil {
		return nil, domainError(err)
	}

	h.logger.Info("schedule block created",
		slog.String("block_id", block.ID.String()),
		slog.String("channel_id", channelID.String()),
		slog.String("window", block.StartTime+"-"+block.EndTime))

	h.refreshChannel(ctx, channelID)
	return &ScheduleBlockOutput{Body: ScheduleBlockFromModel(block)}, nil
}

// UpdateScheduleBlockInput is the input for updating a schedule block.
type UpdateScheduleBlockInput struct {
	ID   string `path:"id" doc:"Schedule block ID"`
	Body struct {
		BucketID     *string `json:"bucket_id,omitempty"`
		DaysOfWeek   *string `json:"days_of_week,omitempty"`
		StartTime    *string `json:"start_time,omitempty"`
		EndTime      *string `json:"end_time,omitempty"`
		PlaybackMode *string `json:"playback_mode,omitempty" enum:"sequential,random,shuffle"`
		Priority     *int    `json:"priority,omitempty"`
		Enabled      *bool   `json:"enabled,omitempty"`
	}
}

// UpdateBlock updates a schedule block and refreshes its channel.
func (h *ScheduleBlockHandler) UpdateBlock(ctx context.Context, input *UpdateScheduleBlockInput) (*ScheduleBlockOutput, error) {
	block, err := h.loadBlock(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	if input.Body.BucketID != nil {
		bucketID, err := parseULID(*input.Body.BucketID)
		if err != nil {
			return nil, err
		}
		bucket, err := h.buckets.GetByID(ctx, bucketID)
		if err != nil {
			return nil, domainError(err)
		}
		if bucket == nil {
			return nil, huma.Error404NotFound(models.ErrBucketNotFound.Error())
		}
		block.BucketID = bucketID
	}
	if input.Body.DaysOfWeek != nil {
		block.DaysOfWeek = *input.Body.DaysOfWeek
	}
	if input.Body.StartTime != nil {
		block.StartTime = *input.Body.StartTime
	}
	if input.Body.EndTime != nil {
		block.EndTime = *input.Body.EndTime
	}
	if input.Body.PlaybackMode != nil {
		block.PlaybackMode = models.PlaybackMode(*input.Body.PlaybackMode)
	}
	if input.Body.Priority != nil {
		block.Priority = *input.Body.Priority
	}
	if input.Body.Enabled != nil {
		block.Enabled = input.Body.Enabled
	}

	if err := h.blocks.Update(ctx, block); err != nil {
		return nil, domainError(err)
	}

	h.refreshChannel(ctx, block.ChannelID)
	return &ScheduleBlockOutput{Body: ScheduleBlockFromModel(block)}, nil
}

// ScheduleBlockIDInput identifies a schedule block by path ID.
type ScheduleBlockIDInput struct {
	ID string `path:"id" doc:"Schedule block ID"`
}

// DeleteBlock removes a schedule block and refreshes its channel.
func (h *ScheduleBlockHandler) DeleteBlock(ctx context.Context, input *ScheduleBlockIDInput) (*MessageOutput, error) {
	block, err := h.loadBlock(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	if err := h.blocks.Delete(ctx, block.ID); err != nil {
		return nil, domainError(err)
	}

	h.refreshChannel(ctx, block.ChannelID)
	return messageOutput("schedule block deleted"), nil
}

func (h *ScheduleBlockHandler) loadBlock(ctx context.Context, rawID string) (*models.ScheduleBlock, error) {
	id, err := parseULID(rawID)
	if err != nil {
		return nil, err
	}
	block, err := h.blocks.GetByID(ctx, id)
	if err != nil {
		return nil, domainError(err)
	}
	if block == nil {
		return nil, huma.Error404NotFound(models.ErrScheduleBlockNotFound.Error())
	}
	return block, nil
}

// refreshChannel rebuilds the channel's playlist and guide after a schedule
// change. A block edit can change what should be on air right now.
func (h *ScheduleBlockHandler) refreshChannel(ctx context.Context, channelID models.ULID) {
	if err := h.runtime.InvalidateChannelMedia(ctx, channelID); err != nil {
		h.logger.Warn("refreshing channel after schedule change",
			slog.String("channel_id", channelID.String()),
			slog.Any("error", err))
	}
}
