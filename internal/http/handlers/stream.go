package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/castarr/castarr/internal/models"
	"github.com/castarr/castarr/internal/repository"
)

// segmentPattern matches the segment names the transcoder emits. Anything
// else is rejected before it can touch the filesystem.
var segmentPattern = regexp.MustCompile(`^(stream_\d+|starting)\.ts$`)

// StreamRuntime is the subset of the channel runtime the streaming routes use.
type StreamRuntime interface {
	TouchViewer(ctx context.Context, ch *models.Channel, remoteAddr, userAgent string) int
	OutputDir(ch *models.Channel) string
}

// StreamHandler serves HLS playlists and segments. These are raw chi routes,
// not huma operations: the payloads are files.
type StreamHandler struct {
	channels repository.ChannelRepository
	runtime  StreamRuntime
	logger   *slog.Logger
}

// NewStreamHandler creates a new streaming handler.
func NewStreamHandler(channels repository.ChannelRepository, rt StreamRuntime) *StreamHandler {
	return &StreamHandler{
		channels: channels,
		runtime:  rt,
		logger:   slog.Default(),
	}
}

// WithLogger sets the logger for the handler.
func (h *StreamHandler) WithLogger(logger *slog.Logger) *StreamHandler {
	h.logger = logger
	return h
}

// RegisterRoutes registers the streaming routes on the router.
func (h *StreamHandler) RegisterRoutes(router chi.Router) {
	router.Get("/stream/{slug}/master.m3u8", h.ServeMaster)
	router.Get("/stream/{slug}/stream.m3u8", h.ServePlaylist)
	router.Get("/stream/{slug}/{segment}", h.ServeSegment)
}

// loadChannel resolves the slug and records viewer presence. Every playlist
// and segment fetch counts as activity for the pause/resume logic.
func (h *StreamHandler) loadChannel(w http.ResponseWriter, r *http.Request) *models.Channel {
	slug := chi.URLParam(r, "slug")
	ch, err := h.channels.GetBySlug(r.Context(), slug)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil
	}
	if ch == nil {
		http.Error(w, "channel not found", http.StatusNotFound)
		return nil
	}

	h.runtime.TouchViewer(r.Context(), ch, r.RemoteAddr, r.UserAgent())
	return ch
}

// ServeMaster serves a synthesized master playlist with the channel's single
// variant. Players start here; the variant playlist is transcoder-written.
func (h *StreamHandler) ServeMaster(w http.ResponseWriter, r *http.Request) {
	ch := h.loadChannel(w, r)
	if ch == nil {
		return
	}

	// Master playlists advertise total bandwidth in bits per second.
	bandwidth := (ch.VideoBitrate + ch.AudioBitrate) * 1000

	var sb strings.Builder
	sb.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n")
	fmt.Fprintf(&sb, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%s\n", bandwidth, ch.Resolution)
	sb.WriteString("stream.m3u8\n")

	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write([]byte(sb.String()))
}

// ServePlaylist serves the live variant playlist written by the transcoder.
func (h *StreamHandler) ServePlaylist(w http.ResponseWriter, r *http.Request) {
	ch := h.loadChannel(w, r)
	if ch == nil {
		return
	}

	path := filepath.Join(h.runtime.OutputDir(ch), "stream.m3u8")
	if _, err := os.Stat(path); err != nil {
		// The encoder may still be warming up after a viewer-driven resume.
		http.Error(w, "stream not ready", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, path)
}

// ServeSegment serves one HLS media segment.
func (h *StreamHandler) ServeSegment(w http.ResponseWriter, r *http.Request) {
	segment := chi.URLParam(r, "segment")
	if !segmentPattern.MatchString(segment) {
		http.Error(w, "invalid segment name", http.StatusBadRequest)
		return
	}

	ch := h.loadChannel(w, r)
	if ch == nil {
		return
	}

	path := filepath.Join(h.runtime.OutputDir(ch), segment)
	if _, err := os.Stat(path); err != nil {
		http.Error(w, "segment not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "video/mp2t")
	http.ServeFile(w, r, path)
}
