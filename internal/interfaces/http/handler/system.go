package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/erp/qbconnector/internal/domain/connector"
	"github.com/erp/qbconnector/internal/infrastructure/logger"
	"github.com/erp/qbconnector/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Pinger reports whether the backing database is reachable
type Pinger interface {
	Ping() error
}

// TaskCounter reports queue depth per status
type TaskCounter interface {
	Stats(ctx context.Context) (map[connector.TaskStatus]int64, error)
}

// SessionCounter reports how many sessions the registry holds
type SessionCounter interface {
	Count(ctx context.Context) (int64, error)
}

// SystemHandler serves health and runtime information
type SystemHandler struct {
	BaseHandler
	name      string
	db        Pinger
	tasks     TaskCounter
	sessions  SessionCounter
	startTime time.Time
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(name string, db Pinger, tasks TaskCounter, sessions SessionCounter) *SystemHandler {
	return &SystemHandler{
		name:      name,
		db:        db,
		tasks:     tasks,
		sessions:  sessions,
		startTime: time.Now(),
	}
}

// RegisterRoutes mounts the versioned system routes
func (h *SystemHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/system/info", h.GetSystemInfo)
}

// SystemInfoResponse represents the system information response
type SystemInfoResponse struct {
	Name      string           `json:"name"`
	Version   string           `json:"version"`
	GoVersion string           `json:"go_version"`
	Uptime    string           `json:"uptime"`
	Tasks     map[string]int64 `json:"tasks"`
	Sessions  int64            `json:"sessions"`
}

// Health reports liveness and database reachability.
// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	now := time.Now().Format(time.RFC3339)
	if err := h.db.Ping(); err != nil {
		logger.GetGinLogger(c).Warn("Health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"time":     now,
			"database": "error",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"time":     now,
		"database": "ok",
	})
}

// GetSystemInfo returns version, uptime and queue depth
// GET /api/v1/system/info
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	ctx := c.Request.Context()

	counts, err := h.tasks.Stats(ctx)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	sessions, err := h.sessions.Count(ctx)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	tasks := map[string]int64{
		connector.TaskStatusPending.String(): 0,
		connector.TaskStatusSent.String():    0,
		connector.TaskStatusDone.String():    0,
		connector.TaskStatusError.String():   0,
	}
	for status, n := range counts {
		tasks[status.String()] = n
	}

	h.Success(c, SystemInfoResponse{
		Name:      h.name,
		Version:   telemetry.ServiceVersion,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Tasks:     tasks,
		Sessions:  sessions,
	})
}
