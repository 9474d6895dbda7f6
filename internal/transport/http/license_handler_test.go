package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "clinicore/internal/errors"
	"clinicore/internal/services"
)

// fakeService scripts the activation service responses
type fakeService struct {
	activate   *services.ActivationResponse
	deactivate *services.DeactivationResponse
	status     *services.StatusResponse
	deviceInfo *services.DeviceInfoResponse

	activatedKey string
}

func (f *fakeService) Activate(_ context.Context, key string) *services.ActivationResponse {
	f.activatedKey = key
	return f.activate
}
func (f *fakeService) Deactivate(context.Context) *services.DeactivationResponse {
	return f.deactivate
}
func (f *fakeService) Status(context.Context) *services.StatusResponse { return f.status }
func (f *fakeService) DeviceInfo(context.Context) *services.DeviceInfoResponse {
	return f.deviceInfo
}

func serve(t *testing.T, svc services.ActivationService, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	handler := NewLicenseHandler(svc, nil)

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, req)
	return rec
}

func TestStatusEndpoint(t *testing.T) {
	svc := &fakeService{status: &services.StatusResponse{
		Status:         "VALID",
		CanProceed:     true,
		RemainingDays:  12,
		IsExpiringSoon: false,
		CheckedAt:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		TraceID:        "trace-1",
	}}

	rec := serve(t, svc, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got services.StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "VALID", got.Status)
	assert.True(t, got.CanProceed)
	assert.Equal(t, 12, got.RemainingDays)
}

func TestActivateEndpoint(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		svc := &fakeService{activate: &services.ActivationResponse{
			Success: true,
			License: &services.LicenseSummary{LicenseID: "LIC-1", LicenseType: "standard"},
			TraceID: "trace-1",
		}}

		rec := serve(t, svc, http.MethodPost, "/activate", `{"license_key":"the-key"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "the-key", svc.activatedKey)

		var got services.ActivationResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.True(t, got.Success)
		assert.Equal(t, "LIC-1", got.License.LicenseID)
	})

	t.Run("missing key is a bad request", func(t *testing.T) {
		svc := &fakeService{}
		rec := serve(t, svc, http.MethodPost, "/activate", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, svc.activatedKey)
	})

	t.Run("error codes map to statuses", func(t *testing.T) {
		tests := []struct {
			code string
			want int
		}{
			{apperrors.CodeInvalidKey, http.StatusBadRequest},
			{apperrors.CodeSignatureInvalid, http.StatusBadRequest},
			{apperrors.CodeAlreadyActivated, http.StatusConflict},
			{apperrors.CodeExpired, http.StatusForbidden},
			{apperrors.CodePermanentlyDeactivated, http.StatusForbidden},
			{apperrors.CodeRateLimited, http.StatusTooManyRequests},
			{apperrors.CodeStorageError, http.StatusInternalServerError},
		}
		for _, tt := range tests {
			t.Run(tt.code, func(t *testing.T) {
				svc := &fakeService{activate: &services.ActivationResponse{
					Success:   false,
					Error:     "failed",
					ErrorCode: tt.code,
				}}
				rec := serve(t, svc, http.MethodPost, "/activate", `{"license_key":"the-key"}`)
				assert.Equal(t, tt.want, rec.Code)
			})
		}
	})

	t.Run("idempotent re-activation stays 200", func(t *testing.T) {
		svc := &fakeService{activate: &services.ActivationResponse{
			Success:   true,
			License:   &services.LicenseSummary{LicenseID: "LIC-1"},
			ErrorCode: apperrors.CodeAlreadyOnThisDevice,
		}}
		rec := serve(t, svc, http.MethodPost, "/activate", `{"license_key":"the-key"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), apperrors.CodeAlreadyOnThisDevice)
	})
}

func TestDeactivateEndpoint(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		svc := &fakeService{deactivate: &services.DeactivationResponse{Success: true}}
		rec := serve(t, svc, http.MethodPost, "/deactivate", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("not activated", func(t *testing.T) {
		svc := &fakeService{deactivate: &services.DeactivationResponse{
			Success:   false,
			Error:     "nothing to deactivate",
			ErrorCode: apperrors.CodeNotActivated,
		}}
		rec := serve(t, svc, http.MethodPost, "/deactivate", "")
		assert.Equal(t, http.StatusPreconditionRequired, rec.Code)
	})
}

func TestDeviceInfoEndpoint(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		svc := &fakeService{deviceInfo: &services.DeviceInfoResponse{
			Device: map[string]string{"platform": "linux", "device_signature": "abcdef123456"},
		}}
		rec := serve(t, svc, http.MethodGet, "/device-info", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "abcdef123456")
	})

	t.Run("failure", func(t *testing.T) {
		svc := &fakeService{deviceInfo: &services.DeviceInfoResponse{
			Error:     "fingerprint failed",
			ErrorCode: apperrors.CodeStorageError,
		}}
		rec := serve(t, svc, http.MethodGet, "/device-info", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
