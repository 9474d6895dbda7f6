package license

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	apperrors "clinicore/internal/errors"
	"clinicore/internal/security"
)

// Store persists the single activation record for this installation. The
// record is sealed at rest and replaced atomically: a crash mid-write can
// never leave a half-written record observable as valid.
type Store struct {
	path   string
	sealer *security.Sealer
	logger *slog.Logger
}

// NewStore creates a store writing to path, sealing records with sealer
func NewStore(path string, sealer *security.Sealer, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:   path,
		sealer: sealer,
		logger: logger.With(slog.String("component", "license_store")),
	}
}

// Path returns the location of the activation record
func (s *Store) Path() string {
	return s.path
}

// Save writes the activation record using write-temp-then-rename
func (s *Store) Save(data *ActivatedLicenseData) error {
	plaintext, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal record: %v", apperrors.ErrStorage, err)
	}

	sealed, err := s.sealer.Seal(plaintext)
	if err != nil {
		return fmt.Errorf("%w: failed to seal record: %v", apperrors.ErrStorage, err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("%w: failed to create data directory: %v", apperrors.ErrStorage, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".license-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: failed to create temp file: %v", apperrors.ErrStorage, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: failed to set permissions: %v", apperrors.ErrStorage, err)
	}
	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: failed to write record: %v", apperrors.ErrStorage, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: failed to sync record: %v", apperrors.ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: failed to close temp file: %v", apperrors.ErrStorage, err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("%w: failed to commit record: %v", apperrors.ErrStorage, err)
	}

	s.logger.Info("activation record stored",
		slog.String("license_id", data.LicenseID),
		slog.String("path", s.path),
		slog.Time("expires_at", data.ExpiresAt),
	)
	return nil
}

// Load returns the stored record, or (nil, nil) when no record exists.
// A present-but-unreadable record is NOT treated as absent: it surfaces
// as a tamper error so the caller reports TAMPERED rather than a clean
// NOT_ACTIVATED state.
func (s *Store) Load() (*ActivatedLicenseData, error) {
	sealed, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read record: %v", apperrors.ErrStorage, err)
	}

	plaintext, err := s.sealer.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("%w: record failed authentication: %v", apperrors.ErrTampered, err)
	}

	var data ActivatedLicenseData
	if err := json.Unmarshal(plaintext, &data); err != nil {
		return nil, fmt.Errorf("%w: record is not parseable: %v", apperrors.ErrTampered, err)
	}

	return &data, nil
}

// Delete erases the activation record. Used only by the deactivation
// sequence, after the registry release has committed. Deleting an absent
// record is not an error.
func (s *Store) Delete() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: failed to delete record: %v", apperrors.ErrStorage, err)
	}
	if err == nil {
		s.logger.Info("activation record deleted", slog.String("path", s.path))
	}
	return nil
}

// TouchLastValidated updates only the last-validated timestamp, logging a
// warning when the clock has moved backwards since the previous check.
// Rollback is observed, not enforced.
func (s *Store) TouchLastValidated(now time.Time) error {
	data, err := s.Load()
	if err != nil || data == nil {
		return err
	}
	if !data.LastValidatedAt.IsZero() && now.Before(data.LastValidatedAt) {
		s.logger.Warn("system clock moved backwards since last validation",
			slog.Time("last_validated_at", data.LastValidatedAt),
			slog.Time("now", now),
		)
	}
	data.LastValidatedAt = now
	return s.Save(data)
}
