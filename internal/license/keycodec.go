package license

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	apperrors "clinicore/internal/errors"
)

// KeyCodec decodes license key strings and verifies their embedded
// HMAC-SHA256 signature against the issuing key.
type KeyCodec struct {
	signingKey []byte
	validate   *validator.Validate
}

// NewKeyCodec creates a codec bound to the given signing key
func NewKeyCodec(signingKey []byte) *KeyCodec {
	return &KeyCodec{
		signingKey: signingKey,
		validate:   validator.New(),
	}
}

// Decode parses a license key string into RawLicenseData. The key is
// accepted either as a raw JSON object or as base64-encoded JSON; JSON is
// attempted first. Decode validates structure only, not the signature.
func (c *KeyCodec) Decode(text string) (*RawLicenseData, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty key", apperrors.ErrInvalidLicenseKey)
	}

	raw := []byte(text)
	var data RawLicenseData
	if err := json.Unmarshal(raw, &data); err != nil {
		decoded, decErr := decodeBase64(text)
		if decErr != nil {
			return nil, fmt.Errorf("%w: not JSON or base64 JSON", apperrors.ErrInvalidLicenseKey)
		}
		if err := json.Unmarshal(decoded, &data); err != nil {
			return nil, fmt.Errorf("%w: base64 payload is not valid JSON", apperrors.ErrInvalidLicenseKey)
		}
	}

	if err := c.validate.Struct(&data); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidLicenseKey, err)
	}

	return &data, nil
}

// decodeBase64 tries the standard and URL-safe alphabets, with and
// without padding.
func decodeBase64(text string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	} {
		if decoded, err := enc.DecodeString(text); err == nil {
			return decoded, nil
		}
	}
	return nil, fmt.Errorf("invalid base64")
}

// Encode serializes a license into the distributable base64(JSON) form
func (c *KeyCodec) Encode(data *RawLicenseData) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal license: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Sign computes the hex HMAC-SHA256 signature over the canonical payload
func (c *KeyCodec) Sign(data *RawLicenseData) string {
	mac := hmac.New(sha256.New, c.signingKey)
	mac.Write([]byte(canonicalPayload(data)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature over the canonical field subset and
// compares it in constant time against data.Signature. Only the fixed
// subset is signed, so attacker-supplied extra fields cannot ride along
// inside a valid signature, and JSON key order never affects the result.
func (c *KeyCodec) Verify(data *RawLicenseData) bool {
	if data == nil || data.Signature == "" {
		return false
	}
	expected, err := hex.DecodeString(data.Signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, c.signingKey)
	mac.Write([]byte(canonicalPayload(data)))
	return hmac.Equal(mac.Sum(nil), expected)
}

// canonicalPayload serializes the signed field subset in fixed order
func canonicalPayload(data *RawLicenseData) string {
	return fmt.Sprintf("%s|%s|%d|%s",
		data.LicenseID,
		data.LicenseType,
		data.MaxDays,
		data.CreatedAt.UTC().Format(time.RFC3339),
	)
}
