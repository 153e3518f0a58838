package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"gorm.io/gorm"
)

// HealthHandler handles the health check endpoint.
type HealthHandler struct {
	version   string
	startTime time.Time
	db        *gorm.DB
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string, db *gorm.DB) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
		db:        db,
	}
}

// DatabaseHealth describes the state of the database connection.
type DatabaseHealth struct {
	Status         string  `json:"status"`
	ResponseTimeMS float64 `json:"response_time_ms"`
	OpenConns      int     `json:"open_connections"`
	IdleConns      int     `json:"idle_connections"`
}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body struct {
		Status        string         `json:"status"`
		Timestamp     string         `json:"timestamp"`
		Version       string         `json:"version"`
		Uptime        string         `json:"uptime"`
		UptimeSeconds float64        `json:"uptime_seconds"`
		Database      DatabaseHealth `json:"database"`
	}
}

// Register registers the health routes with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// GetHealth returns the health status of the service.
func (h *HealthHandler) GetHealth(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)

	dbHealth := h.databaseHealth(ctx)

	out := &HealthOutput{}
	out.Body.Status = "healthy"
	if dbHealth.Status != "ok" {
		out.Body.Status = "degraded"
	}
	out.Body.Timestamp = now.UTC().Format(time.RFC3339)
	out.Body.Version = h.version
	out.Body.Uptime = uptime.Round(time.Second).String()
	out.Body.UptimeSeconds = uptime.Seconds()
	out.Body.Database = dbHealth
	return out, nil
}

func (h *HealthHandler) databaseHealth(ctx context.Context) DatabaseHealth {
	health := DatabaseHealth{Status: "ok"}
	if h.db == nil {
		health.Status = "unknown"
		return health
	}

	sqlDB, err := h.db.DB()
	if err != nil {
		health.Status = "error"
		return health
	}

	stats := sqlDB.Stats()
	health.OpenConns = stats.OpenConnections
	health.IdleConns = stats.Idle

	start := time.Now()
	if err := sqlDB.PingContext(ctx); err != nil {
		health.Status = "error"
	}
	health.ResponseTimeMS = float64(time.Since(start).Microseconds()) / 1000
	return health
}
