package license

import (
	"time"

	"clinicore/internal/security"
)

// LicenseType identifies the commercial tier of an issued key
type LicenseType string

// Known license types
const (
	TypeTrial      LicenseType = "trial"
	TypeStandard   LicenseType = "standard"
	TypePremium    LicenseType = "premium"
	TypeEnterprise LicenseType = "enterprise"
)

// RawLicenseData is the decoded content of a license key. It is immutable
// once issued; the signature covers the canonical subset of its fields.
type RawLicenseData struct {
	LicenseID   string                 `json:"licenseId" validate:"required"`
	LicenseType LicenseType            `json:"licenseType" validate:"required,oneof=trial standard premium enterprise"`
	MaxDays     int                    `json:"maxDays" validate:"required,gt=0"`
	CreatedAt   time.Time              `json:"createdAt" validate:"required"`
	Signature   string                 `json:"signature" validate:"required,hexadecimal"`
	Features    []string               `json:"features,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// ActivatedLicenseData is the persisted activation record: the raw license
// plus the binding taken at activation time. The fingerprint snapshot and
// original signature are never overwritten by validation; only
// LastValidatedAt may be touched afterwards.
type ActivatedLicenseData struct {
	RawLicenseData

	ActivatedAt time.Time `json:"activatedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
	// DeviceFingerprint is the snapshot captured at activation.
	DeviceFingerprint *security.Fingerprint `json:"deviceFingerprint"`
	// OriginalSignature is the verified signature copied at activation,
	// retained so later edits to the signature field are detectable.
	OriginalSignature string    `json:"originalSignature"`
	ActivationID      string    `json:"activationId"`
	LastValidatedAt   time.Time `json:"lastValidatedAt,omitempty"`
}

// Status is the outcome of a validation check
type Status string

// Validation statuses, in check order.
const (
	StatusNotActivated   Status = "NOT_ACTIVATED"
	StatusValid          Status = "VALID"
	StatusExpired        Status = "EXPIRED"
	StatusInvalid        Status = "INVALID"
	StatusDeviceMismatch Status = "DEVICE_MISMATCH"
	StatusTampered       Status = "TAMPERED"
	StatusDeactivated    Status = "DEACTIVATED"
)

// ValidationResult is the full outcome of one validation check
type ValidationResult struct {
	Status         Status `json:"status"`
	RemainingDays  int    `json:"remaining_days"`
	IsExpiringSoon bool   `json:"is_expiring_soon"`
	Err            error  `json:"-"`
}

// CheckResult is a ValidationResult plus the single proceed/block decision
// the host consumes.
type CheckResult struct {
	ValidationResult
	CanProceed bool      `json:"can_proceed"`
	CheckedAt  time.Time `json:"checked_at"`
}
