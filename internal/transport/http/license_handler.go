package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	apperrors "clinicore/internal/errors"
	"clinicore/internal/services"
)

// LicenseHandler exposes the activation service over HTTP
type LicenseHandler struct {
	service services.ActivationService
	logger  *slog.Logger
}

// NewLicenseHandler creates a new license handler
func NewLicenseHandler(service services.ActivationService, logger *slog.Logger) *LicenseHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LicenseHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "license")),
	}
}

// ActivationRequest is the activation request payload
type ActivationRequest struct {
	LicenseKey string `json:"license_key"`
}

// Bind implements the render.Binder interface
func (a *ActivationRequest) Bind(r *http.Request) error {
	if a.LicenseKey == "" {
		return errors.New("license_key is required")
	}
	return nil
}

// Routes returns a chi router for license endpoints
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/status", h.Status)
	r.Post("/activate", h.Activate)
	r.Post("/deactivate", h.Deactivate)
	r.Get("/device-info", h.DeviceInfo)

	return r
}

// Status handles GET /api/license/status
func (h *LicenseHandler) Status(w http.ResponseWriter, r *http.Request) {
	resp := h.service.Status(r.Context())
	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

// Activate handles POST /api/license/activate
func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req ActivationRequest
	if err := render.Bind(r, &req); err != nil {
		problem := apperrors.NewLicenseProblem(apperrors.ErrInvalidLicenseKey, middleware.GetReqID(r.Context()))
		render.Render(w, r, problem)
		return
	}

	resp := h.service.Activate(r.Context(), req.LicenseKey)
	if !resp.Success {
		render.Status(r, statusForCode(resp.ErrorCode))
	} else {
		render.Status(r, http.StatusOK)
	}
	render.JSON(w, r, resp)
}

// Deactivate handles POST /api/license/deactivate
func (h *LicenseHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	resp := h.service.Deactivate(r.Context())
	if !resp.Success {
		render.Status(r, statusForCode(resp.ErrorCode))
	} else {
		render.Status(r, http.StatusOK)
	}
	render.JSON(w, r, resp)
}

// DeviceInfo handles GET /api/license/device-info
func (h *LicenseHandler) DeviceInfo(w http.ResponseWriter, r *http.Request) {
	resp := h.service.DeviceInfo(r.Context())
	if resp.Error != "" {
		render.Status(r, http.StatusInternalServerError)
	} else {
		render.Status(r, http.StatusOK)
	}
	render.JSON(w, r, resp)
}

// statusForCode maps a stable error code back to an HTTP status
func statusForCode(code string) int {
	switch code {
	case apperrors.CodeInvalidKey, apperrors.CodeSignatureInvalid:
		return http.StatusBadRequest
	case apperrors.CodeAlreadyActivated:
		return http.StatusConflict
	case apperrors.CodeExpired, apperrors.CodeDeviceMismatch,
		apperrors.CodeTampered, apperrors.CodePermanentlyDeactivated:
		return http.StatusForbidden
	case apperrors.CodeNotActivated:
		return http.StatusPreconditionRequired
	case apperrors.CodeRateLimited:
		return http.StatusTooManyRequests
	case "":
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}
