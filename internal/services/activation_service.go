package services

import (
	"context"
	"log/slog"
	"time"

	apperrors "clinicore/internal/errors"
	"clinicore/internal/infrastructure"
	"clinicore/internal/license"
)

// LicenseGuard is the guard surface the service depends on
type LicenseGuard interface {
	VerifyLicense(ctx context.Context) license.CheckResult
	Activate(ctx context.Context, licenseKey string) (*license.ActivationOutcome, error)
	Deactivate(ctx context.Context) error
	CurrentDeviceInfo() (map[string]string, error)
}

// ActivationService is the façade the host application talks to
type ActivationService interface {
	Activate(ctx context.Context, key string) *ActivationResponse
	Deactivate(ctx context.Context) *DeactivationResponse
	Status(ctx context.Context) *StatusResponse
	DeviceInfo(ctx context.Context) *DeviceInfoResponse
}

// LicenseSummary is the caller-facing view of an activated license
type LicenseSummary struct {
	LicenseID   string    `json:"license_id"`
	LicenseType string    `json:"license_type"`
	ActivatedAt time.Time `json:"activated_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Features    []string  `json:"features,omitempty"`
}

// ActivationResponse is the result of an activation request
type ActivationResponse struct {
	Success   bool            `json:"success"`
	License   *LicenseSummary `json:"license,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorCode string          `json:"error_code,omitempty"`
	TraceID   string          `json:"trace_id"`
}

// DeactivationResponse is the result of a deactivation request
type DeactivationResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
	TraceID   string `json:"trace_id"`
}

// StatusResponse is the result of a validation check
type StatusResponse struct {
	Status         string    `json:"status"`
	CanProceed     bool      `json:"can_proceed"`
	RemainingDays  int       `json:"remaining_days"`
	IsExpiringSoon bool      `json:"is_expiring_soon"`
	Error          string    `json:"error,omitempty"`
	ErrorCode      string    `json:"error_code,omitempty"`
	CheckedAt      time.Time `json:"checked_at"`
	TraceID        string    `json:"trace_id"`
}

// DeviceInfoResponse carries the display-safe device identity
type DeviceInfoResponse struct {
	Device    map[string]string `json:"device,omitempty"`
	Error     string            `json:"error,omitempty"`
	ErrorCode string            `json:"error_code,omitempty"`
	TraceID   string            `json:"trace_id"`
}

// activationService implements ActivationService on top of the guard
type activationService struct {
	guard  LicenseGuard
	logger *slog.Logger
}

// NewActivationService creates the license façade
func NewActivationService(guard LicenseGuard, logger *slog.Logger) ActivationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &activationService{
		guard:  guard,
		logger: logger.With(slog.String("service", "activation")),
	}
}

// Activate binds the given key to this device
func (s *activationService) Activate(ctx context.Context, key string) *ActivationResponse {
	ctx, traceID := infrastructure.EnsureTraceID(ctx)

	outcome, err := s.guard.Activate(ctx, key)
	if err != nil {
		s.logger.WarnContext(ctx, "activation failed",
			slog.String("error_code", apperrors.CodeForError(err)),
			slog.String("error", err.Error()),
		)
		return &ActivationResponse{
			Success:   false,
			Error:     apperrors.MessageForError(err),
			ErrorCode: apperrors.CodeForError(err),
			TraceID:   traceID,
		}
	}

	resp := &ActivationResponse{
		Success: true,
		License: summarize(outcome.License),
		TraceID: traceID,
	}
	if outcome.AlreadyOnThisDevice {
		// Idempotent re-activation is a success variant, surfaced with its
		// own code so the UI can word it differently.
		resp.ErrorCode = apperrors.CodeAlreadyOnThisDevice
	}
	return resp
}

// Deactivate releases this device's binding permanently
func (s *activationService) Deactivate(ctx context.Context) *DeactivationResponse {
	ctx, traceID := infrastructure.EnsureTraceID(ctx)

	if err := s.guard.Deactivate(ctx); err != nil {
		s.logger.WarnContext(ctx, "deactivation failed",
			slog.String("error_code", apperrors.CodeForError(err)),
			slog.String("error", err.Error()),
		)
		return &DeactivationResponse{
			Success:   false,
			Error:     apperrors.MessageForError(err),
			ErrorCode: apperrors.CodeForError(err),
			TraceID:   traceID,
		}
	}

	return &DeactivationResponse{Success: true, TraceID: traceID}
}

// Status runs one validation check and reports the outcome
func (s *activationService) Status(ctx context.Context) *StatusResponse {
	ctx, traceID := infrastructure.EnsureTraceID(ctx)

	result := s.guard.VerifyLicense(ctx)
	resp := &StatusResponse{
		Status:         string(result.Status),
		CanProceed:     result.CanProceed,
		RemainingDays:  result.RemainingDays,
		IsExpiringSoon: result.IsExpiringSoon,
		CheckedAt:      result.CheckedAt,
		TraceID:        traceID,
	}
	if result.Err != nil {
		resp.Error = apperrors.MessageForError(result.Err)
		resp.ErrorCode = apperrors.CodeForError(result.Err)
	}
	return resp
}

// DeviceInfo returns the display-safe fingerprint summary
func (s *activationService) DeviceInfo(ctx context.Context) *DeviceInfoResponse {
	_, traceID := infrastructure.EnsureTraceID(ctx)

	device, err := s.guard.CurrentDeviceInfo()
	if err != nil {
		return &DeviceInfoResponse{
			Error:     apperrors.MessageForError(err),
			ErrorCode: apperrors.CodeForError(err),
			TraceID:   traceID,
		}
	}
	return &DeviceInfoResponse{Device: device, TraceID: traceID}
}

// summarize converts the stored record to its caller-facing view
func summarize(data *license.ActivatedLicenseData) *LicenseSummary {
	if data == nil {
		return nil
	}
	return &LicenseSummary{
		LicenseID:   data.LicenseID,
		LicenseType: string(data.LicenseType),
		ActivatedAt: data.ActivatedAt,
		ExpiresAt:   data.ExpiresAt,
		Features:    data.Features,
	}
}
