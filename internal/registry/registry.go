// Package registry persists the local binding of license identifiers to
// device signatures, including the terminal deactivation flag. The
// registry is authoritative for this installation only; there is no
// network enforcement authority.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	apperrors "clinicore/internal/errors"
)

// Entry is the stored binding for one license id
type Entry struct {
	LicenseID       string     `json:"license_id"`
	DeviceSignature string     `json:"device_signature"`
	ActivatedAt     time.Time  `json:"activated_at"`
	Deactivated     bool       `json:"deactivated"`
	DeactivatedAt   *time.Time `json:"deactivated_at,omitempty"`
}

// RegisterResult reports the outcome of a successful registration
type RegisterResult struct {
	// AlreadyOnThisDevice is true when the license was already bound to
	// the same device signature (idempotent re-activation).
	AlreadyOnThisDevice bool
	// BoundAt is the activation time of the binding: the original time
	// for an idempotent re-registration, the given time otherwise.
	BoundAt time.Time
}

// Registry stores license bindings in a local sqlite database
type Registry struct {
	db     *sql.DB
	logger *slog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS license_bindings (
	license_id       TEXT PRIMARY KEY,
	device_signature TEXT NOT NULL,
	activated_at     TIMESTAMP NOT NULL,
	deactivated      INTEGER NOT NULL DEFAULT 0,
	deactivated_at   TIMESTAMP
);`

// Open opens (creating if necessary) the registry database at path
func Open(path string, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping registry database: %w", err)
	}

	// Serialized access; the engine is single-process and low volume.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create registry schema: %w", err)
	}

	logger.Info("license registry opened",
		slog.String("component", "registry"),
		slog.String("path", path),
	)

	return &Registry{
		db:     db,
		logger: logger.With(slog.String("component", "registry")),
	}, nil
}

// Close releases the underlying database handle
func (r *Registry) Close() error {
	return r.db.Close()
}

// Register binds licenseID to deviceSignature. Re-registering the same
// device succeeds idempotently; a different device fails while the
// binding is live; a deactivated binding is terminal and never
// registrable again.
func (r *Registry) Register(ctx context.Context, licenseID, deviceSignature string, activatedAt time.Time) (*RegisterResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to begin registry transaction: %v", apperrors.ErrStorage, err)
	}
	defer tx.Rollback()

	entry, err := lookupTx(ctx, tx, licenseID)
	if err != nil {
		return nil, err
	}

	switch {
	case entry == nil:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO license_bindings (license_id, device_signature, activated_at, deactivated) VALUES (?, ?, ?, 0)`,
			licenseID, deviceSignature, activatedAt.UTC(),
		)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to insert binding: %v", apperrors.ErrStorage, err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("%w: failed to commit binding: %v", apperrors.ErrStorage, err)
		}
		r.logger.InfoContext(ctx, "license bound to device",
			slog.String("license_id", licenseID),
			slog.String("device_signature", shorten(deviceSignature)),
		)
		return &RegisterResult{BoundAt: activatedAt.UTC()}, nil

	case entry.Deactivated:
		return nil, apperrors.ErrLicenseDeactivated

	case entry.DeviceSignature == deviceSignature:
		// Re-activation on the same machine, e.g. after reinstall.
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("%w: failed to commit: %v", apperrors.ErrStorage, err)
		}
		return &RegisterResult{AlreadyOnThisDevice: true, BoundAt: entry.ActivatedAt}, nil

	default:
		r.logger.WarnContext(ctx, "registration rejected, license bound elsewhere",
			slog.String("license_id", licenseID),
			slog.String("bound_signature", shorten(entry.DeviceSignature)),
			slog.String("requested_signature", shorten(deviceSignature)),
		)
		return nil, apperrors.ErrLicenseAlreadyActivated
	}
}

// Discard removes a live binding created by a failed activation attempt,
// matched by device signature so it can never touch another device's
// binding. Deactivated rows are terminal and are never removed.
func (r *Registry) Discard(ctx context.Context, licenseID, deviceSignature string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM license_bindings WHERE license_id = ? AND device_signature = ? AND deactivated = 0`,
		licenseID, deviceSignature,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to discard binding: %v", apperrors.ErrStorage, err)
	}
	return nil
}

// Release marks the binding deactivated. The row is never deleted so the
// terminal flag cannot be forgotten. Releasing an already-released
// binding is idempotent; releasing an unknown license is an error.
func (r *Registry) Release(ctx context.Context, licenseID string) error {
	entry, err := r.Lookup(ctx, licenseID)
	if err != nil {
		return err
	}
	if entry == nil {
		return apperrors.ErrNotActivated
	}
	if entry.Deactivated {
		return nil
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE license_bindings SET deactivated = 1, deactivated_at = ? WHERE license_id = ?`,
		time.Now().UTC(), licenseID,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to release binding: %v", apperrors.ErrStorage, err)
	}

	r.logger.InfoContext(ctx, "license permanently deactivated",
		slog.String("license_id", licenseID),
	)
	return nil
}

// Lookup returns the binding for licenseID, or nil when none exists
func (r *Registry) Lookup(ctx context.Context, licenseID string) (*Entry, error) {
	return lookup(ctx, r.db, licenseID)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func lookup(ctx context.Context, q queryer, licenseID string) (*Entry, error) {
	row := q.QueryRowContext(ctx,
		`SELECT license_id, device_signature, activated_at, deactivated, deactivated_at
		 FROM license_bindings WHERE license_id = ?`, licenseID)

	var entry Entry
	var deactivated int
	var deactivatedAt sql.NullTime
	err := row.Scan(&entry.LicenseID, &entry.DeviceSignature, &entry.ActivatedAt, &deactivated, &deactivatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read binding: %v", apperrors.ErrStorage, err)
	}
	entry.Deactivated = deactivated != 0
	if deactivatedAt.Valid {
		t := deactivatedAt.Time
		entry.DeactivatedAt = &t
	}
	return &entry, nil
}

func lookupTx(ctx context.Context, tx *sql.Tx, licenseID string) (*Entry, error) {
	return lookup(ctx, tx, licenseID)
}

// shorten truncates a device signature for log output
func shorten(signature string) string {
	if len(signature) <= 12 {
		return signature
	}
	return signature[:12]
}
