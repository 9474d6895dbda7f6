package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"invalid key", ErrInvalidLicenseKey, CodeInvalidKey},
		{"signature invalid", ErrSignatureInvalid, CodeSignatureInvalid},
		{"expired", ErrLicenseExpired, CodeExpired},
		{"device mismatch", ErrDeviceMismatch, CodeDeviceMismatch},
		{"already on another device", ErrLicenseAlreadyActivated, CodeAlreadyActivated},
		{"already on this device", ErrAlreadyActivatedOnDevice, CodeAlreadyOnThisDevice},
		{"deactivated", ErrLicenseDeactivated, CodePermanentlyDeactivated},
		{"tampered", ErrTampered, CodeTampered},
		{"not activated", ErrNotActivated, CodeNotActivated},
		{"rate limited", ErrRateLimited, CodeRateLimited},
		{"storage", ErrStorage, CodeStorageError},
		{"wrapped", fmt.Errorf("activation failed: %w", ErrLicenseExpired), CodeExpired},
		{"deeply wrapped", fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", ErrTampered)), CodeTampered},
		// Unknown errors fail closed as storage errors.
		{"unknown", fmt.Errorf("something else"), CodeStorageError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeForError(tt.err))
		})
	}
}

func TestHTTPStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"invalid key", ErrInvalidLicenseKey, http.StatusBadRequest},
		{"signature invalid", ErrSignatureInvalid, http.StatusBadRequest},
		{"expired", ErrLicenseExpired, http.StatusForbidden},
		{"device mismatch", ErrDeviceMismatch, http.StatusForbidden},
		{"tampered", ErrTampered, http.StatusForbidden},
		{"deactivated", ErrLicenseDeactivated, http.StatusForbidden},
		{"conflict", ErrLicenseAlreadyActivated, http.StatusConflict},
		{"not activated", ErrNotActivated, http.StatusPreconditionRequired},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests},
		{"storage", ErrStorage, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusForError(tt.err))
		})
	}
}

func TestMessageForError(t *testing.T) {
	t.Run("every sentinel has an actionable message", func(t *testing.T) {
		for _, err := range []error{
			ErrInvalidLicenseKey, ErrSignatureInvalid, ErrLicenseExpired,
			ErrDeviceMismatch, ErrLicenseAlreadyActivated, ErrAlreadyActivatedOnDevice,
			ErrLicenseDeactivated, ErrTampered, ErrNotActivated, ErrStorage, ErrRateLimited,
		} {
			assert.NotEmpty(t, MessageForError(err), "no message for %v", err)
		}
	})

	t.Run("messages never leak internal detail", func(t *testing.T) {
		wrapped := fmt.Errorf("%w: open /var/lib/clinicore/license.dat: permission denied", ErrStorage)
		msg := MessageForError(wrapped)
		assert.NotContains(t, msg, "/var/lib")
		assert.NotContains(t, msg, "permission denied")
	})
}
