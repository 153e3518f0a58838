package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/castarr/castarr/internal/models"
	"github.com/castarr/castarr/internal/repository"
	"github.com/castarr/castarr/internal/runtime"
)

// ChannelRuntime is the subset of the channel runtime the API drives.
type ChannelRuntime interface {
	Start(ctx context.Context, channelID models.ULID, opts runtime.StartOptions) error
	Stop(ctx context.Context, channelID models.ULID) error
	Restart(ctx context.Context, channelID models.ULID) error
	Next(ctx context.Context, channelID models.ULID) error
	SetIndex(ctx context.Context, channelID models.ULID, index int) error
	InvalidateChannelMedia(ctx context.Context, channelID models.ULID) error
}

// ChannelHandler handles channel CRUD and lifecycle endpoints.
type ChannelHandler struct {
	channels      repository.ChannelRepository
	scheduleTimes repository.ScheduleTimeRepository
	runtime       ChannelRuntime
	logger        *slog.Logger
}

// NewChannelHandler creates a new channel handler.
func NewChannelHandler(channels repository.ChannelRepository, scheduleTimes repository.ScheduleTimeRepository, rt ChannelRuntime) *ChannelHandler {
	return &ChannelHandler{
		channels:      channels,
		scheduleTimes: scheduleTimes,
		runtime:       rt,
		logger:        slog.Default(),
	}
}

// WithLogger sets the logger for the handler.
func (h *ChannelHandler) WithLogger(logger *slog.Logger) *ChannelHandler {
	h.logger = logger
	return h
}

// Register registers the channel routes with the API.
func (h *ChannelHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listChannels",
		Method:      "GET",
		Path:        "/api/v1/channels",
		Summary:     "List all channels",
		Tags:        []string{"Channels"},
	}, h.ListChannels)

	huma.Register(api, huma.Operation{
		OperationID: "getChannel",
		Method:      "GET",
		Path:        "/api/v1/channels/{id}",
		Summary:     "Get channel by ID",
		Tags:        []string{"Channels"},
	}, h.GetChannel)

	huma.Register(api, huma.Operation{
		OperationID:   "createChannel",
		Method:        "POST",
		Path:          "/api/v1/channels",
		Summary:       "Create a channel",
		Tags:          []string{"Channels"},
		DefaultStatus: 201,
	}, h.CreateChannel)

	huma.Register(api, huma.Operation{
		OperationID: "updateChannel",
		Method:      "PUT",
		Path:        "/api/v1/channels/{id}",
		Summary:     "Update a channel",
		Tags:        []string{"Channels"},
	}, h.UpdateChannel)

	huma.Register(api, huma.Operation{
		OperationID: "deleteChannel",
		Method:      "DELETE",
		Path:        "/api/v1/channels/{id}",
		Summary:     "Delete a channel",
		Tags:        []string{"Channels"},
	}, h.DeleteChannel)

	huma.Register(api, huma.Operation{
		OperationID: "startChannel",
		Method:      "POST",
		Path:        "/api/v1/channels/{id}/start",
		Summary:     "Start streaming a channel",
		Description: "Launches the transcoder at the channel's current wall-clock schedule position.",
		Tags:        []string{"Channels"},
	}, h.StartChannel)

	huma.Register(api, huma.Operation{
		OperationID: "stopChannel",
		Method:      "POST",
		Path:        "/api/v1/channels/{id}/stop",
		Summary:     "Stop streaming a channel",
		Description: "Stops the transcoder. The schedule keeps advancing on the wall clock.",
		Tags:        []string{"Channels"},
	}, h.StopChannel)

	huma.Register(api, huma.Operation{
		OperationID: "restartChannel",
		Method:      "POST",
		Path:        "/api/v1/channels/{id}/restart",
		Summary:     "Restart a channel's stream",
		Tags:        []string{"Channels"},
	}, h.RestartChannel)

	huma.Register(api, huma.Operation{
		OperationID: "nextChannelItem",
		Method:      "POST",
		Path:        "/api/v1/channels/{id}/next",
		Summary:     "Skip to the next playlist item",
		Tags:        []string{"Channels"},
	}, h.NextItem)

	huma.Register(api, huma.Operation{
		OperationID: "setChannelIndex",
		Method:      "POST",
		Path:        "/api/v1/channels/{id}/index",
		Summary:     "Jump to a specific playlist index",
		Tags:        []string{"Channels"},
	}, h.SetIndex)

	huma.Register(api, huma.Operation{
		OperationID: "getChannelScheduleTime",
		Method:      "GET",
		Path:        "/api/v1/channels/{id}/schedule-time",
		Summary:     "Get the channel's schedule anchor",
		Tags:        []string{"Channels"},
	}, h.GetScheduleTime)

	huma.Register(api, huma.Operation{
		OperationID: "setChannelScheduleTime",
		Method:      "PUT",
		Path:        "/api/v1/channels/{id}/schedule-time",
		Summary:     "Overwrite the channel's schedule anchor",
		Description: "Moves the wall-clock epoch the timeline is computed from. This shifts the whole schedule.",
		Tags:        []string{"Channels"},
	}, h.SetScheduleTime)
}

// ListChannelsOutput is the output for listing channels.
type ListChannelsOutput struct {
	Body struct {
		Items []ChannelResponse `json:"items"`
		Total int               `json:"total"`
	}
}

// ListChannels returns all channels.
func (h *ChannelHandler) ListChannels(ctx context.Context, _ *struct{}) (*ListChannelsOutput, error) {
	channels, err := h.channels.List(ctx)
	if err != nil {
		return nil, domainError(err)
	}

	resp := &ListChannelsOutput{}
	resp.Body.Items = make([]ChannelResponse, len(channels))
	for i, ch := range channels {
		resp.Body.Items[i] = ChannelFromModel(ch)
	}
	resp.Body.Total = len(channels)
	return resp, nil
}

// ChannelIDInput identifies a channel by path ID.
type ChannelIDInput struct {
	ID string `path:"id" doc:"Channel ID"`
}

// ChannelOutput wraps a single channel response.
type ChannelOutput struct {
	Body ChannelResponse
}

func (h *ChannelHandler) loadChannel(ctx context.Context, rawID string) (*models.Channel, error) {
	id, err := parseULID(rawID)
	if err != nil {
		return nil, err
	}
	ch, err := h.channels.GetByID(ctx, id)
	if err != nil {
		return nil, domainError(err)
	}
	if ch == nil {
		return nil, huma.Error404NotFound(models.ErrChannelNotFound.Error())
	}
	return ch, nil
}

// GetChannel returns a single channel.
func (h *ChannelHandler) GetChannel(ctx context.Context, input *ChannelIDInput) (*ChannelOutput, error) {
	ch, err := h.loadChannel(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &ChannelOutput{Body: ChannelFromModel(ch)}, nil
}

// CreateChannelInput is the input for creating a channel.
type CreateChannelInput struct {
	Body struct {
		Name            string `json:"name" minLength:"1" maxLength:"255"`
		Slug            string `json:"slug" minLength:"1" maxLength:"255" doc:"URL-safe identifier, lowercase letters, digits and hyphens"`
		VideoBitrate    int    `json:"video_bitrate,omitempty"`
		AudioBitrate    int    `json:"audio_bitrate,omitempty"`
		Resolution      string `json:"resolution,omitempty"`
		FPS             int    `json:"fps,omitempty"`
		SegmentDuration int    `json:"segment_duration,omitempty"`
		AutoStart       bool   `json:"auto_start,omitempty"`
		DynamicPlaylist bool   `json:"use_dynamic_playlist,omitempty"`
		IncludeBumpers  *bool  `json:"include_bumpers,omitempty"`
	}
}

// CreateChannel creates a new channel.
func (h *ChannelHandler) CreateChannel(ctx context.Context, input *CreateChannelInput) (*ChannelOutput, error) {
	ch := &models.Channel{
		Name:               input.Body.Name,
		Slug:               input.Body.Slug,
		VideoBitrate:       input.Body.VideoBitrate,
		AudioBitrate:       input.Body.AudioBitrate,
		Resolution:         input.Body.Resolution,
		FPS:                input.Body.FPS,
		SegmentDuration:    input.Body.SegmentDuration,
		AutoStart:          input.Body.AutoStart,
		UseDynamicPlaylist: input.Body.DynamicPlaylist,
		IncludeBumpers:     input.Body.IncludeBumpers,
	}
	applyChannelDefaults(ch)

	if err := h.channels.Create(ctx, ch); err != nil {
		return nil, domainError(err)
	}

	h.logger.Info("channel created",
		slog.String("channel_id", ch.ID.String()),
		slog.String("slug", ch.Slug))

	return &ChannelOutput{Body: ChannelFromModel(ch)}, nil
}

// applyChannelDefaults fills encoding defaults for zero-valued fields so the
// model validation hooks see a complete row.
func applyChannelDefaults(ch *models.Channel) {
	if ch.VideoBitrate == 0 {
		ch.VideoBitrate = 4000
	}
	if ch.AudioBitrate == 0 {
		ch.AudioBitrate = 192
	}
	if ch.Resolution == "" {
		ch.Resolution = "1920x1080"
	}
	if ch.FPS == 0 {
		ch.FPS = 30
	}
	if ch.SegmentDuration == 0 {
		ch.SegmentDuration = 6
	}
	if ch.IncludeBumpers == nil {
		ch.IncludeBumpers = models.BoolPtr(true)
	}
}

// UpdateChannelInput is the input for updating a channel.
type UpdateChannelInput struct {
	ID   string `path:"id" doc:"Channel ID"`
	Body struct {
		Name            *string `json:"name,omitempty"`
		VideoBitrate    *int    `json:"video_bitrate,omitempty"`
		AudioBitrate    *int    `json:"audio_bitrate,omitempty"`
		Resolution      *string `json:"resolution,omitempty"`
		FPS             *int    `json:"fps,omitempty"`
		SegmentDuration *int    `json:"segment_duration,omitempty"`
		AutoStart       *bool   `json:"auto_start,omitempty"`
		DynamicPlaylist *bool   `json:"use_dynamic_playlist,omitempty"`
		IncludeBumpers  *bool   `json:"include_bumpers,omitempty"`
	}
}

// UpdateChannel updates channel settings. The slug is immutable: it is baked
// into stream URLs and the on-disk output directory.
func (h *ChannelHandler) UpdateChannel(ctx context.Context, input *UpdateChannelInput) (*ChannelOutput, error) {
	ch, err := h.loadChannel(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	if input.Body.Name != nil {
		ch.Name = *input.Body.Name
	}
	if input.Body.VideoBitrate != nil {
		ch.VideoBitrate = *input.Body.VideoBitrate
	}
	if input.Body.AudioBitrate != nil {
		ch.AudioBitrate = *input.Body.AudioBitrate
	}
	if input.Body.Resolution != nil {
		ch.Resolution = *input.Body.Resolution
	}
	if input.Body.FPS != nil {
		ch.FPS = *input.Body.FPS
	}
	if input.Body.SegmentDuration != nil {
		ch.SegmentDuration = *input.Body.SegmentDuration
	}
	if input.Body.AutoStart != nil {
		ch.AutoStart = *input.Body.AutoStart
	}
	if input.Body.DynamicPlaylist != nil {
		ch.UseDynamicPlaylist = *input.Body.DynamicPlaylist
	}
	if input.Body.IncludeBumpers != nil {
		ch.IncludeBumpers = input.Body.IncludeBumpers
	}

	if err := h.channels.Update(ctx, ch); err != nil {
		return nil, domainError(err)
	}

	return &ChannelOutput{Body: ChannelFromModel(ch)}, nil
}

// MessageOutput wraps a plain success message.
type MessageOutput struct {
	Body struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
}

func messageOutput(msg string) *MessageOutput {
	out := &MessageOutput{}
	out.Body.Success = true
	out.Body.Message = msg
	return out
}

// DeleteChannel stops and deletes a channel.
func (h *ChannelHandler) DeleteChannel(ctx context.Context, input *ChannelIDInput) (*MessageOutput, error) {
	ch, err := h.loadChannel(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	// Best effort: a streaming channel is stopped before removal.
	if err := h.runtime.Stop(ctx, ch.ID); err != nil {
		h.logger.Warn("stopping channel before delete",
			slog.String("channel_id", ch.ID.String()),
			slog.Any("error", err))
	}

	if err := h.channels.Delete(ctx, ch.ID); err != nil {
		return nil, domainError(err)
	}
	return messageOutput("channel deleted"), nil
}

// StartChannel starts streaming the channel.
func (h *ChannelHandler) StartChannel(ctx context.Context, input *ChannelIDInput) (*MessageOutput, error) {
	ch, err := h.loadChannel(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if err := h.runtime.Start(ctx, ch.ID, runtime.StartOptions{Trigger: models.SessionTriggerManual}); err != nil {
		return nil, domainError(err)
	}
	return messageOutput("channel started"), nil
}

// StopChannel stops streaming the channel.
func (h *ChannelHandler) StopChannel(ctx context.Context, input *ChannelIDInput) (*MessageOutput, error) {
	ch, err := h.loadChannel(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if err := h.runtime.Stop(ctx, ch.ID); err != nil {
		return nil, domainError(err)
	}
	return messageOutput("channel stopped"), nil
}

// RestartChannel stops and restarts the channel's stream.
func (h *ChannelHandler) RestartChannel(ctx context.Context, input *ChannelIDInput) (*MessageOutput, error) {
	ch, err := h.loadChannel(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if err := h.runtime.Restart(ctx, ch.ID); err != nil {
		return nil, domainError(err)
	}
	return messageOutput("channel restarted"), nil
}

// NextItem skips to the next playlist item.
func (h *ChannelHandler) NextItem(ctx context.Context, input *ChannelIDInput) (*MessageOutput, error) {
	ch, err := h.loadChannel(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if err := h.runtime.Next(ctx, ch.ID); err != nil {
		return nil, domainError(err)
	}
	return messageOutput("skipped to next item"), nil
}

// SetIndexInput is the input for jumping to a playlist index.
type SetIndexInput struct {
	ID   string `path:"id" doc:"Channel ID"`
	Body struct {
		Index int `json:"index" minimum:"0" doc:"Zero-based playlist index"`
	}
}

// SetIndex jumps playback to a specific playlist index.
func (h *ChannelHandler) SetIndex(ctx context.Context, input *SetIndexInput) (*MessageOutput, error) {
	ch, err := h.loadChannel(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if err := h.runtime.SetIndex(ctx, ch.ID, input.Body.Index); err != nil {
		return nil, domainError(err)
	}
	return messageOutput("playlist index updated"), nil
}

// ScheduleTimeOutput is the schedule anchor for a channel.
type ScheduleTimeOutput struct {
	Body struct {
		ChannelID string     `json:"channel_id"`
		StartTime *time.Time `json:"start_time,omitempty"`
	}
}

// GetScheduleTime returns the channel's wall-clock schedule anchor, if set.
func (h *ChannelHandler) GetScheduleTime(ctx context.Context, input *ChannelIDInput) (*ScheduleTimeOutput, error) {
	ch, err := h.loadChannel(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	anchor, err := h.scheduleTimes.Get(ctx, ch.ID)
	if err != nil {
		return nil, domainError(err)
	}

	out := &ScheduleTimeOutput{}
	out.Body.ChannelID = ch.ID.String()
	if anchor != nil {
		out.Body.StartTime = &anchor.StartTime
	}
	return out, nil
}

// SetScheduleTimeInput is the input for moving the schedule anchor.
type SetScheduleTimeInput struct {
	ID   string `path:"id" doc:"Channel ID"`
	Body struct {
		StartTime time.Time `json:"start_time" doc:"New schedule epoch"`
	}
}

// SetScheduleTime overwrites the channel's schedule anchor and rewrites the
// running playlist so playback lines up with the shifted timeline.
func (h *ChannelHandler) SetScheduleTime(ctx context.Context, input *SetScheduleTimeInput) (*MessageOutput, error) {
	ch, err := h.loadChannel(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	if err := h.scheduleTimes.Set(ctx, ch.ID, input.Body.StartTime); err != nil {
		return nil, domainError(err)
	}
	if err := h.runtime.InvalidateChannelMedia(ctx, ch.ID); err != nil {
		h.logger.Warn("refreshing channel after anchor move",
			slog.String("channel_id", ch.ID.String()),
			slog.Any("error", err))
	}

	h.logger.Info("schedule anchor moved",
		slog.String("channel_id", ch.ID.String()),
		slog.Time("start_time", input.Body.StartTime))

	return messageOutput("schedule time updated"), nil
}
