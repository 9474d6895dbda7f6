package license

import (
	"time"

	apperrors "clinicore/internal/errors"
	"clinicore/internal/registry"
	"clinicore/internal/security"
)

// DefaultWarningDays is the expiring-soon threshold applied when the
// validator is constructed with a non-positive value.
const DefaultWarningDays = 7

// RegistryLookup resolves the registry entry for a license id. A nil
// entry with nil error means the license has never been registered here.
type RegistryLookup func(licenseID string) (*registry.Entry, error)

// Validator maps (stored record, current fingerprint, now, registry
// state) to a status. It holds no mutable state; every call is a pure
// evaluation.
type Validator struct {
	codec       *KeyCodec
	warningDays int
}

// NewValidator creates a validator using the given codec for signature
// re-verification.
func NewValidator(codec *KeyCodec, warningDays int) *Validator {
	if warningDays <= 0 {
		warningDays = DefaultWarningDays
	}
	return &Validator{codec: codec, warningDays: warningDays}
}

// Validate runs the deterministic check sequence. Check order matters:
// tamper and deactivation outrank device and expiry so a forged or
// revoked record is never reported under a softer status.
func (v *Validator) Validate(stored *ActivatedLicenseData, current *security.Fingerprint, now time.Time, lookup RegistryLookup) ValidationResult {
	if stored == nil {
		return ValidationResult{Status: StatusNotActivated}
	}

	if !v.verifyStored(stored) {
		return ValidationResult{Status: StatusTampered, Err: apperrors.ErrTampered}
	}

	if lookup != nil {
		entry, err := lookup(stored.LicenseID)
		if err != nil {
			// Fail closed: an unreadable registry blocks, it never grants.
			return ValidationResult{Status: StatusInvalid, Err: err}
		}
		if entry != nil && entry.Deactivated {
			return ValidationResult{Status: StatusDeactivated, Err: apperrors.ErrLicenseDeactivated}
		}
	}

	if !security.Compare(stored.DeviceFingerprint, current) {
		return ValidationResult{Status: StatusDeviceMismatch, Err: apperrors.ErrDeviceMismatch}
	}

	if !now.Before(stored.ExpiresAt) {
		return ValidationResult{Status: StatusExpired, Err: apperrors.ErrLicenseExpired}
	}

	remaining := remainingDays(stored.ExpiresAt, now)
	return ValidationResult{
		Status:         StatusValid,
		RemainingDays:  remaining,
		IsExpiringSoon: remaining <= v.warningDays,
	}
}

// verifyStored re-verifies the canonical payload signature and confirms
// the signature field still equals the one verified at activation.
func (v *Validator) verifyStored(stored *ActivatedLicenseData) bool {
	if stored.OriginalSignature == "" || stored.Signature != stored.OriginalSignature {
		return false
	}
	return v.codec.Verify(&stored.RawLicenseData)
}

// remainingDays is ceil((expiresAt - now) / 24h)
func remainingDays(expiresAt, now time.Time) int {
	remaining := expiresAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	days := int(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) != 0 {
		days++
	}
	return days
}
