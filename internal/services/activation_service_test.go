package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "clinicore/internal/errors"
	"clinicore/internal/license"
)

// fakeGuard scripts the guard responses for service tests
type fakeGuard struct {
	checkResult   license.CheckResult
	activation    *license.ActivationOutcome
	activationErr error
	deactivateErr error
	device        map[string]string
	deviceErr     error

	activatedKey string
}

func (f *fakeGuard) VerifyLicense(context.Context) license.CheckResult { return f.checkResult }
func (f *fakeGuard) Activate(_ context.Context, key string) (*license.ActivationOutcome, error) {
	f.activatedKey = key
	return f.activation, f.activationErr
}
func (f *fakeGuard) Deactivate(context.Context) error              { return f.deactivateErr }
func (f *fakeGuard) CurrentDeviceInfo() (map[string]string, error) { return f.device, f.deviceErr }

func activatedLicense() *license.ActivatedLicenseData {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return &license.ActivatedLicenseData{
		RawLicenseData: license.RawLicenseData{
			LicenseID:   "LIC-1",
			LicenseType: license.TypeStandard,
			MaxDays:     30,
			Features:    []string{"reporting"},
		},
		ActivatedAt: t0,
		ExpiresAt:   t0.Add(30 * 24 * time.Hour),
	}
}

func TestServiceActivate(t *testing.T) {
	ctx := context.Background()

	t.Run("success carries the license summary", func(t *testing.T) {
		guard := &fakeGuard{activation: &license.ActivationOutcome{License: activatedLicense()}}
		svc := NewActivationService(guard, nil)

		resp := svc.Activate(ctx, "some-key")
		require.True(t, resp.Success)
		require.NotNil(t, resp.License)
		assert.Equal(t, "LIC-1", resp.License.LicenseID)
		assert.Equal(t, "standard", resp.License.LicenseType)
		assert.Equal(t, []string{"reporting"}, resp.License.Features)
		assert.Empty(t, resp.ErrorCode)
		assert.NotEmpty(t, resp.TraceID)
		assert.Equal(t, "some-key", guard.activatedKey)
	})

	t.Run("idempotent re-activation is a success variant", func(t *testing.T) {
		guard := &fakeGuard{activation: &license.ActivationOutcome{
			License:             activatedLicense(),
			AlreadyOnThisDevice: true,
		}}
		resp := NewActivationService(guard, nil).Activate(ctx, "some-key")

		assert.True(t, resp.Success)
		assert.Equal(t, apperrors.CodeAlreadyOnThisDevice, resp.ErrorCode)
		assert.NotNil(t, resp.License)
	})

	t.Run("failures map to stable codes", func(t *testing.T) {
		tests := []struct {
			name     string
			err      error
			wantCode string
		}{
			{"invalid key", apperrors.ErrInvalidLicenseKey, apperrors.CodeInvalidKey},
			{"bound elsewhere", apperrors.ErrLicenseAlreadyActivated, apperrors.CodeAlreadyActivated},
			{"deactivated", apperrors.ErrLicenseDeactivated, apperrors.CodePermanentlyDeactivated},
			{"rate limited", apperrors.ErrRateLimited, apperrors.CodeRateLimited},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				guard := &fakeGuard{activationErr: tt.err}
				resp := NewActivationService(guard, nil).Activate(ctx, "some-key")

				assert.False(t, resp.Success)
				assert.Nil(t, resp.License)
				assert.Equal(t, tt.wantCode, resp.ErrorCode)
				assert.NotEmpty(t, resp.Error)
			})
		}
	})
}

func TestServiceDeactivate(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		resp := NewActivationService(&fakeGuard{}, nil).Deactivate(ctx)
		assert.True(t, resp.Success)
		assert.Empty(t, resp.ErrorCode)
	})

	t.Run("not activated", func(t *testing.T) {
		guard := &fakeGuard{deactivateErr: apperrors.ErrNotActivated}
		resp := NewActivationService(guard, nil).Deactivate(ctx)
		assert.False(t, resp.Success)
		assert.Equal(t, apperrors.CodeNotActivated, resp.ErrorCode)
	})
}

func TestServiceStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("valid check passes through", func(t *testing.T) {
		guard := &fakeGuard{checkResult: license.CheckResult{
			ValidationResult: license.ValidationResult{
				Status:         license.StatusValid,
				RemainingDays:  5,
				IsExpiringSoon: true,
			},
			CanProceed: true,
			CheckedAt:  time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		}}
		resp := NewActivationService(guard, nil).Status(ctx)

		assert.Equal(t, "VALID", resp.Status)
		assert.True(t, resp.CanProceed)
		assert.Equal(t, 5, resp.RemainingDays)
		assert.True(t, resp.IsExpiringSoon)
		assert.Empty(t, resp.ErrorCode)
	})

	t.Run("failed check carries the code", func(t *testing.T) {
		guard := &fakeGuard{checkResult: license.CheckResult{
			ValidationResult: license.ValidationResult{
				Status: license.StatusTampered,
				Err:    apperrors.ErrTampered,
			},
		}}
		resp := NewActivationService(guard, nil).Status(ctx)

		assert.Equal(t, "TAMPERED", resp.Status)
		assert.False(t, resp.CanProceed)
		assert.Equal(t, apperrors.CodeTampered, resp.ErrorCode)
		assert.NotEmpty(t, resp.Error)
	})
}

func TestServiceDeviceInfo(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the summary", func(t *testing.T) {
		guard := &fakeGuard{device: map[string]string{"platform": "linux"}}
		resp := NewActivationService(guard, nil).DeviceInfo(ctx)
		assert.Equal(t, "linux", resp.Device["platform"])
		assert.Empty(t, resp.ErrorCode)
	})

	t.Run("fingerprint failure maps to storage code", func(t *testing.T) {
		guard := &fakeGuard{deviceErr: apperrors.ErrStorage}
		resp := NewActivationService(guard, nil).DeviceInfo(ctx)
		assert.Nil(t, resp.Device)
		assert.Equal(t, apperrors.CodeStorageError, resp.ErrorCode)
	})
}
