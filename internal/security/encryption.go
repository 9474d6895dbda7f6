package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/scrypt"
)

// Sealer encrypts and decrypts the persisted activation record with
// AES-256-GCM under a scrypt-derived key. The sealing is an at-rest
// obfuscation layer; tamper detection proper is the HMAC over the license
// fields, which survives even if the sealing secret is extracted.
type Sealer struct {
	secret []byte

	// scrypt parameters (OWASP recommended minimums)
	n, r, p, keyLen int
}

// sealedPayload is the on-disk envelope of an encrypted record
type sealedPayload struct {
	Version    uint8  `json:"version"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
	SealedAt   int64  `json:"sealed_at"`
}

const sealedPayloadVersion = 1

// NewSealer creates a sealer bound to the given secret. The secret is
// typically derived from the machine identity so a copied license file is
// unreadable elsewhere, though the fingerprint check remains the
// authoritative device binding.
func NewSealer(secret []byte) *Sealer {
	return &Sealer{
		secret: secret,
		n:      32768,
		r:      8,
		p:      1,
		keyLen: 32,
	}
}

// Seal encrypts plaintext into a self-describing JSON envelope
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	salt := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := s.cipherFor(salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	payload := sealedPayload{
		Version:    sealedPayloadVersion,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: gcm.Seal(nil, nonce, plaintext, nil),
		SealedAt:   time.Now().Unix(),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sealed payload: %w", err)
	}
	return data, nil
}

// Open decrypts a sealed envelope produced by Seal. Any structural or
// authentication failure is returned as an error; callers decide whether
// that means tampering.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	var payload sealedPayload
	if err := json.Unmarshal(sealed, &payload); err != nil {
		return nil, fmt.Errorf("malformed sealed payload: %w", err)
	}
	if payload.Version != sealedPayloadVersion {
		return nil, fmt.Errorf("unsupported sealed payload version %d", payload.Version)
	}

	gcm, err := s.cipherFor(payload.Salt)
	if err != nil {
		return nil, err
	}
	if len(payload.Nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("invalid nonce length %d", len(payload.Nonce))
	}

	plaintext, err := gcm.Open(nil, payload.Nonce, payload.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate sealed payload: %w", err)
	}
	return plaintext, nil
}

// cipherFor derives the AES-GCM AEAD for a given salt
func (s *Sealer) cipherFor(salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(s.secret, salt, s.n, s.r, s.p, s.keyLen)
	if err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// MachineSealerSecret builds the sealing secret for this installation from
// the device's primary identity.
func MachineSealerSecret(provider DeviceInfoProvider) []byte {
	machineID, err := provider.MachineID()
	if err != nil {
		// Sealing still works with a constant secret; the record simply
		// loses its machine-scoped obfuscation.
		machineID = "clinicore-shared"
	}
	return []byte("clinicore-license-seal|" + machineID + "|" + provider.Platform() + "|" + provider.Arch())
}
