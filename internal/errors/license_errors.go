package errors

import (
	"errors"
	"net/http"
)

// License-specific sentinel errors. The engine wraps these with %w so
// callers can classify failures with errors.Is regardless of the layer
// they surfaced from.
var (
	ErrInvalidLicenseKey       = errors.New("invalid license key")
	ErrSignatureInvalid        = errors.New("license signature invalid")
	ErrLicenseExpired          = errors.New("license expired")
	ErrDeviceMismatch          = errors.New("license bound to a different device")
	ErrLicenseAlreadyActivated = errors.New("license already activated on another device")
	ErrAlreadyActivatedOnDevice = errors.New("license already activated on this device")
	ErrLicenseDeactivated      = errors.New("license permanently deactivated")
	ErrTampered                = errors.New("license record tampered")
	ErrNotActivated            = errors.New("license not activated")
	ErrStorage                 = errors.New("license storage error")
	ErrRateLimited             = errors.New("too many activation attempts")
)

// Stable error codes surfaced to the host/UI.
const (
	CodeInvalidKey             = "INVALID_KEY"
	CodeSignatureInvalid       = "SIGNATURE_INVALID"
	CodeExpired                = "EXPIRED"
	CodeDeviceMismatch         = "DEVICE_MISMATCH"
	CodeAlreadyActivated       = "LICENSE_ALREADY_REGISTERED"
	CodeAlreadyOnThisDevice    = "LICENSE_ALREADY_ACTIVATED_ON_THIS_DEVICE"
	CodeTampered               = "TAMPERED"
	CodePermanentlyDeactivated = "LICENSE_PERMANENTLY_DEACTIVATED"
	CodeNotActivated           = "NOT_ACTIVATED"
	CodeStorageError           = "STORAGE_ERROR"
	CodeRateLimited            = "RATE_LIMITED"
)

// CodeAliasAlreadyActivated is the documented alias for CodeAlreadyActivated.
const CodeAliasAlreadyActivated = "ALREADY_ACTIVATED"

// CodeForError maps a (possibly wrapped) engine error to its stable code.
// Unrecognized errors map to STORAGE_ERROR so the caller fails closed.
func CodeForError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidLicenseKey):
		return CodeInvalidKey
	case errors.Is(err, ErrSignatureInvalid):
		return CodeSignatureInvalid
	case errors.Is(err, ErrLicenseExpired):
		return CodeExpired
	case errors.Is(err, ErrDeviceMismatch):
		return CodeDeviceMismatch
	case errors.Is(err, ErrAlreadyActivatedOnDevice):
		return CodeAlreadyOnThisDevice
	case errors.Is(err, ErrLicenseAlreadyActivated):
		return CodeAlreadyActivated
	case errors.Is(err, ErrLicenseDeactivated):
		return CodePermanentlyDeactivated
	case errors.Is(err, ErrTampered):
		return CodeTampered
	case errors.Is(err, ErrNotActivated):
		return CodeNotActivated
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	default:
		return CodeStorageError
	}
}

// HTTPStatusForError maps an engine error to the status the HTTP façade
// responds with.
func HTTPStatusForError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidLicenseKey), errors.Is(err, ErrSignatureInvalid):
		return http.StatusBadRequest
	case errors.Is(err, ErrLicenseExpired), errors.Is(err, ErrDeviceMismatch),
		errors.Is(err, ErrTampered), errors.Is(err, ErrLicenseDeactivated):
		return http.StatusForbidden
	case errors.Is(err, ErrLicenseAlreadyActivated):
		return http.StatusConflict
	case errors.Is(err, ErrNotActivated):
		return http.StatusPreconditionRequired
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// MessageForError returns the actionable, human-recoverable message for an
// engine error.
func MessageForError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidLicenseKey):
		return "The provided license key is invalid or malformed. Please re-enter it."
	case errors.Is(err, ErrSignatureInvalid):
		return "The license key signature could not be verified. Please check the key or contact support."
	case errors.Is(err, ErrLicenseExpired):
		return "Your license has expired. Please renew to continue."
	case errors.Is(err, ErrDeviceMismatch):
		return "This license is bound to a different device."
	case errors.Is(err, ErrAlreadyActivatedOnDevice):
		return "This license is already active on this device."
	case errors.Is(err, ErrLicenseAlreadyActivated):
		return "This license is registered to another device. Deactivate it there first or obtain a new key."
	case errors.Is(err, ErrLicenseDeactivated):
		return "This license has been permanently deactivated and can no longer be used."
	case errors.Is(err, ErrTampered):
		return "The stored license record failed verification. Please activate again with a valid key."
	case errors.Is(err, ErrNotActivated):
		return "No license has been activated. Please activate a license to continue."
	case errors.Is(err, ErrRateLimited):
		return "Too many activation attempts. Please try again later."
	default:
		return "A storage error occurred while processing the license. Please try again."
	}
}
