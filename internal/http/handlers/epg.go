package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/castarr/castarr/internal/epg"
	"github.com/castarr/castarr/internal/models"
	"github.com/castarr/castarr/internal/repository"
	"github.com/castarr/castarr/pkg/xmltv"
)

// EPGHandler serves the program guide.
type EPGHandler struct {
	channels  repository.ChannelRepository
	generator *epg.Generator
	baseURL   string
	logger    *slog.Logger
}

// NewEPGHandler creates a new EPG handler. baseURL is used for channel URLs
// in the XMLTV export, e.g. "http://localhost:8080".
func NewEPGHandler(channels repository.ChannelRepository, generator *epg.Generator, baseURL string) *EPGHandler {
	return &EPGHandler{
		channels:  channels,
		generator: generator,
		baseURL:   strings.TrimRight(baseURL, "/"),
		logger:    slog.Default(),
	}
}

// WithLogger sets the logger for the handler.
func (h *EPGHandler) WithLogger(logger *slog.Logger) *EPGHandler {
	h.logger = logger
	return h
}

// Register registers the EPG routes with the API.
func (h *EPGHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getChannelGuide",
		Method:      "GET",
		Path:        "/api/v1/channels/{id}/epg",
		Summary:     "Get a channel's program guide",
		Description: "Programs over the guide horizon, derived from the channel's schedule position.",
		Tags:        []string{"EPG"},
	}, h.GetGuide)

	huma.Register(api, huma.Operation{
		OperationID: "getChannelNowNext",
		Method:      "GET",
		Path:        "/api/v1/channels/{id}/epg/now",
		Summary:     "Get the current and next program",
		Tags:        []string{"EPG"},
	}, h.GetNowNext)

	huma.Register(api, huma.Operation{
		OperationID: "refreshChannelGuide",
		Method:      "POST",
		Path:        "/api/v1/channels/{id}/epg/refresh",
		Summary:     "Force guide regeneration",
		Tags:        []string{"EPG"},
	}, h.RefreshGuide)

	huma.Register(api, huma.Operation{
		OperationID: "exportXMLTV",
		Method:      "GET",
		Path:        "/xmltv",
		Summary:     "Export the guide for all channels as XMLTV",
		Tags:        []string{"EPG"},
	}, h.ExportXMLTV)
}

// GuideOutput is a channel's program listing.
type GuideOutput struct {
	Body struct {
		ChannelID string        `json:"channel_id"`
		Programs  []epg.Program `json:"programs"`
	}
}

func (h *EPGHandler) loadChannel(ctx context.Context, rawID string) (*models.Channel, error) {
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

// GetGuide returns the channel's program guide.
func (h *EPGHandler) GetGuide(ctx context.Context, input *ChannelIDInput) (*GuideOutput, error) {
	ch, err := h.loadChannel(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	programs, err := h.generator.Programs(ctx, ch)
	if err != nil {
		return nil, domainError(err)
	}

	out := &GuideOutput{}
	out.Body.ChannelID = ch.ID.String()
	out.Body.Programs = programs
	return out, nil
}

// NowNextOutput is the current and upcoming program for a channel.
type NowNextOutput struct {
	Body struct {
		ChannelID string       `json:"channel_id"`
		Current   *epg.Program `json:"current,omitempty"`
		Next      *epg.Program `json:"next,omitempty"`
	}
}

// GetNowNext returns what is on air now and what follows.
func (h *EPGHandler) GetNowNext(ctx context.Context, input *ChannelIDInput) (*NowNextOutput, error) {
	ch, err := h.loadChannel(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	current, next, err := h.generator.CurrentAndNext(ctx, ch)
	if err != nil {
		return nil, domainError(err)
	}

	out := &NowNextOutput{}
	out.Body.ChannelID = ch.ID.String()
	out.Body.Current = current
	out.Body.Next = next
	return out, nil
}

// RefreshGuide drops the channel's cached guide.
func (h *EPGHandler) RefreshGuide(ctx context.Context, input *ChannelIDInput) (*MessageOutput, error) {
	ch, err := h.loadChannel(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	h.generator.Invalidate(ch.ID)
	return messageOutput("guide refreshed"), nil
}

// XMLTVOutput carries the raw XMLTV document.
type XMLTVOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

// ExportXMLTV renders the guide for every channel as one XMLTV document.
// Channels whose guide cannot be generated (no media, no anchor yet) are
// listed without programmes rather than failing the whole export.
func (h *EPGHandler) ExportXMLTV(ctx context.Context, _ *struct{}) (*XMLTVOutput, error) {
	channels, err := h.channels.List(ctx)
	if err != nil {
		return nil, domainError(err)
	}

	var sb strings.Builder
	w := xmltv.NewWriter(&sb, "castarr")

	guides := make(map[string][]epg.Program, len(channels))
	for _, ch := range channels {
		if err := w.WriteChannel(&xmltv.Channel{
			ID:          ch.Slug,
			DisplayName: ch.Name,
			URL:         h.streamURL(ch.Slug),
		}); err != nil {
			return nil, huma.Error500InternalServerError("rendering XMLTV", err)
		}

		programs, err := h.generator.Programs(ctx, ch)
		if err != nil {
			h.logger.Warn("skipping channel in XMLTV export",
				slog.String("channel_id", ch.ID.String()),
				slog.Any("error", err))
			continue
		}
		guides[ch.Slug] = programs
	}

	for _, ch := range channels {
		for i := range guides[ch.Slug] {
			p := &guides[ch.Slug][i]
			if err := w.WriteProgramme(&xmltv.Programme{
				Start:      p.StartTime,
				Stop:       p.EndTime,
				Channel:    ch.Slug,
				Title:      p.Title,
				Category:   p.Category,
				EpisodeNum: p.EpisodeNum,
			}); err != nil {
				return nil, huma.Error500InternalServerError("rendering XMLTV", err)
			}
		}
	}

	if err := w.Close(); err != nil {
		return nil, huma.Error500InternalServerError("rendering XMLTV", err)
	}

	return &XMLTVOutput{
		ContentType: "application/xml; charset=utf-8",
		Body:        []byte(sb.String()),
	}, nil
}

func (h *EPGHandler) streamURL(slug string) string {
	if h.baseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/stream/%s/master.m3u8", h.baseURL, slug)
}
