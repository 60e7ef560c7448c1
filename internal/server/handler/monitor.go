package handler

import (
	"log/slog"
	"net/http"

	"github.com/meridianquant/tradecore/internal/monitor"
)

// MonitorController is the scheduler surface the admin API needs.
type MonitorController interface {
	Stats() *monitor.Stats
	TriggerScan()
}

// MonitorHandler exposes the monitor's counters and a manual scan trigger.
type MonitorHandler struct {
	scheduler MonitorController
	logger    *slog.Logger
}

// NewMonitorHandler creates a MonitorHandler.
func NewMonitorHandler(scheduler MonitorController, logger *slog.Logger) *MonitorHandler {
	return &MonitorHandler{
		scheduler: scheduler,
		logger:    logHandler(logger, "monitor"),
	}
}

// GetStats returns the scheduler's cycle counters.
// GET /api/v1/monitor/stats
func (h *MonitorHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "monitor not running in this mode")
		return
	}
	writeJSON(w, http.StatusOK, h.scheduler.Stats().Snapshot())
}

// TriggerScan requests an immediate scan cycle.
// POST /api/v1/monitor/scan
func (h *MonitorHandler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "monitor not running in this mode")
		return
	}
	h.scheduler.TriggerScan()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "scan requested"})
}
