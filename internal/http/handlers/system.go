package handlers

import (
	"context"
	"log/slog"
	"os"
	goruntime "runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/castarr/castarr/internal/models"
	"github.com/castarr/castarr/internal/repository"
)

// SystemHandler serves process and stream status.
type SystemHandler struct {
	channels  repository.ChannelRepository
	startTime time.Time
	logger    *slog.Logger
}

// NewSystemHandler creates a new system status handler.
func NewSystemHandler(channels repository.ChannelRepository) *SystemHandler {
	return &SystemHandler{
		channels:  channels,
		startTime: time.Now(),
		logger:    slog.Default(),
	}
}

// WithLogger sets the logger for the handler.
func (h *SystemHandler) WithLogger(logger *slog.Logger) *SystemHandler {
	h.logger = logger
	return h
}

// Register registers the system routes with the API.
func (h *SystemHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getSystemStatus",
		Method:      "GET",
		Path:        "/api/v1/system/status",
		Summary:     "Get system status",
		Description: "Process uptime, load, memory and per-channel stream states. Child processes are the ffmpeg transcoders.",
		Tags:        []string{"System"},
	}, h.GetStatus)
}

// ChannelStreamStatus is a channel's runtime state summary.
type ChannelStreamStatus struct {
	ChannelID   string     `json:"channel_id"`
	Slug        string     `json:"slug"`
	State       string     `json:"state"`
	ViewerCount int        `json:"viewer_count"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// SystemLoad is host load information.
type SystemLoad struct {
	Cores     int     `json:"cores"`
	Load1Min  float64 `json:"load_1min"`
	Load5Min  float64 `json:"load_5min"`
	Load15Min float64 `json:"load_15min"`
}

// SystemMemory is host and process memory information.
type SystemMemory struct {
	TotalMB        float64 `json:"total_mb"`
	UsedMB         float64 `json:"used_mb"`
	AvailableMB    float64 `json:"available_mb"`
	ProcessRSSMB   float64 `json:"process_rss_mb"`
	ChildCount     int     `json:"child_process_count"`
	ChildRSSMB     float64 `json:"child_rss_mb"`
	ProcessTreeRSS float64 `json:"process_tree_rss_mb"`
}

// SystemStatusOutput is the output for the system status endpoint.
type SystemStatusOutput struct {
	Body struct {
		Uptime          string                `json:"uptime"`
		UptimeSeconds   float64               `json:"uptime_seconds"`
		Load            SystemLoad            `json:"load"`
		Memory          SystemMemory          `json:"memory"`
		ActiveStreams   int                   `json:"active_streams"`
		Channels        []ChannelStreamStatus `json:"channels"`
		TotalViewers    int                   `json:"total_viewers"`
		GoroutineCount  int                   `json:"goroutine_count"`
	}
}

// GetStatus returns process and stream status.
func (h *SystemHandler) GetStatus(ctx context.Context, _ *struct{}) (*SystemStatusOutput, error) {
	channels, err := h.channels.List(ctx)
	if err != nil {
		return nil, domainError(err)
	}

	out := &SystemStatusOutput{}
	uptime := time.Since(h.startTime)
	out.Body.Uptime = uptime.Round(time.Second).String()
	out.Body.UptimeSeconds = uptime.Seconds()
	out.Body.Load = h.loadInfo()
	out.Body.Memory = h.memoryInfo()
	out.Body.GoroutineCount = goruntime.NumGoroutine()

	out.Body.Channels = make([]ChannelStreamStatus, len(channels))
	for i, ch := range channels {
		out.Body.Channels[i] = ChannelStreamStatus{
			ChannelID:   ch.ID.String(),
			Slug:        ch.Slug,
			State:       string(ch.State),
			ViewerCount: ch.ViewerCount,
			StartedAt:   ch.StartedAt,
			LastError:   ch.LastError,
		}
		if ch.State == models.ChannelStateStreaming {
			out.Body.ActiveStreams++
		}
		out.Body.TotalViewers += ch.ViewerCount
	}
	return out, nil
}

func (h *SystemHandler) loadInfo() SystemLoad {
	info := SystemLoad{Cores: goruntime.NumCPU()}
	if avg, err := load.Avg(); err == nil && avg != nil {
		info.Load1Min = avg.Load1
		info.Load5Min = avg.Load5
		info.Load15Min = avg.Load15
	}
	return info
}

func (h *SystemHandler) memoryInfo() SystemMemory {
	info := SystemMemory{}

	if vm, err := mem.VirtualMemory(); err == nil && vm != nil {
		info.TotalMB = float64(vm.Total) / 1024 / 1024
		info.UsedMB = float64(vm.Used) / 1024 / 1024
		info.AvailableMB = float64(vm.Available) / 1024 / 1024
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return info
	}
	if pm, err := proc.MemoryInfo(); err == nil && pm != nil {
		info.ProcessRSSMB = float64(pm.RSS) / 1024 / 1024
		info.ProcessTreeRSS = info.ProcessRSSMB
	}
	if children, err := proc.Children(); err == nil {
		info.ChildCount = len(children)
		for _, child := range children {
			if cm, err := child.MemoryInfo(); err == nil && cm != nil {
				childMB := float64(cm.RSS) / 1024 / 1024
				info.ChildRSSMB += childMB
				info.ProcessTreeRSS += childMB
			}
		}
	}
	return info
}
