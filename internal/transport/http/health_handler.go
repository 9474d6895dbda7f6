package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"clinicore/internal/services"
)

// HealthHandler reports process liveness plus the license subsystem state
type HealthHandler struct {
	service services.ActivationService
	logger  *slog.Logger
	started time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(service services.ActivationService, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "health")),
		started: time.Now(),
	}
}

// HealthResponse is the health check payload
type HealthResponse struct {
	Status        string    `json:"status"`
	Uptime        string    `json:"uptime"`
	LicenseStatus string    `json:"license_status"`
	CanProceed    bool      `json:"can_proceed"`
	Timestamp     time.Time `json:"timestamp"`
}

// Handle responds to GET /api/health. The process is healthy even when
// the license blocks; the license state rides along for dashboards.
func (h *HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	status := h.service.Status(r.Context())

	render.Status(r, http.StatusOK)
	render.JSON(w, r, HealthResponse{
		Status:        "ok",
		Uptime:        time.Since(h.started).Round(time.Second).String(),
		LicenseStatus: status.Status,
		CanProceed:    status.CanProceed,
		Timestamp:     time.Now(),
	})
}
