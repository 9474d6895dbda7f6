package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	apperrors "clinicore/internal/errors"
	"clinicore/internal/registry"
	"clinicore/internal/security"
)

// BindingRegistry is the registry surface the guard depends on, kept as
// an interface so tests can substitute fakes without touching global
// state.
type BindingRegistry interface {
	Register(ctx context.Context, licenseID, deviceSignature string, activatedAt time.Time) (*registry.RegisterResult, error)
	Discard(ctx context.Context, licenseID, deviceSignature string) error
	Release(ctx context.Context, licenseID string) error
	Lookup(ctx context.Context, licenseID string) (*registry.Entry, error)
}

// Clock supplies wall-clock time, injectable for tests
type Clock func() time.Time

// StatusListener receives check results whenever the status transitions
type StatusListener func(result CheckResult)

// GuardConfig bundles guard tuning knobs
type GuardConfig struct {
	WarningDays     int
	CheckInterval   time.Duration
	ActivationRPS   float64
	ActivationBurst int
}

// ActivationOutcome reports a successful activation
type ActivationOutcome struct {
	License *ActivatedLicenseData
	// AlreadyOnThisDevice is true for an idempotent re-activation of a
	// license already bound to this machine.
	AlreadyOnThisDevice bool
}

// Guard orchestrates the validator, store, registry and fingerprint
// engine behind a single proceed/block decision. Activate and Deactivate
// are serialized under one mutex; validation is read-only and collapsed
// through singleflight.
type Guard struct {
	store     *Store
	registry  BindingRegistry
	engine    *security.FingerprintEngine
	codec     *KeyCodec
	validator *Validator
	clock     Clock
	logger    *slog.Logger
	metrics   *Metrics

	cfg     GuardConfig
	limiter *rate.Limiter

	mu sync.Mutex // serializes Activate/Deactivate against checks
	sf singleflight.Group

	listenerMu sync.Mutex
	listener   StatusListener
	lastStatus Status

	// touchInterval throttles last-validated persistence; resealing the
	// record on every 10s tick would be wasted scrypt work.
	touchInterval time.Duration
}

// NewGuard constructs a guard from injected dependencies
func NewGuard(store *Store, reg BindingRegistry, engine *security.FingerprintEngine, codec *KeyCodec, cfg GuardConfig, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 10 * time.Second
	}
	if cfg.ActivationRPS <= 0 {
		cfg.ActivationRPS = 1
	}
	if cfg.ActivationBurst <= 0 {
		cfg.ActivationBurst = 5
	}
	return &Guard{
		store:         store,
		registry:      reg,
		engine:        engine,
		codec:         codec,
		validator:     NewValidator(codec, cfg.WarningDays),
		clock:         time.Now,
		logger:        logger.With(slog.String("component", "license_guard")),
		cfg:           cfg,
		limiter:       rate.NewLimiter(rate.Limit(cfg.ActivationRPS), cfg.ActivationBurst),
		lastStatus:    Status(""),
		touchInterval: 5 * time.Minute,
	}
}

// SetClock overrides the wall-clock source (tests only)
func (g *Guard) SetClock(clock Clock) {
	g.clock = clock
}

// SetMetrics attaches OpenTelemetry metrics to the guard
func (g *Guard) SetMetrics(metrics *Metrics) {
	g.metrics = metrics
}

// SetStatusListener registers the callback notified on status transitions
func (g *Guard) SetStatusListener(listener StatusListener) {
	g.listenerMu.Lock()
	defer g.listenerMu.Unlock()
	g.listener = listener
}

// VerifyLicense reads the store, generates a fresh fingerprint, consults
// the registry and runs the validator. Concurrent callers share one
// in-flight check. Any failure, including a panic anywhere in the chain,
// yields CanProceed == false.
func (g *Guard) VerifyLicense(ctx context.Context) CheckResult {
	v, _, _ := g.sf.Do("verify", func() (any, error) {
		return g.verifyOnce(ctx), nil
	})
	return v.(CheckResult)
}

func (g *Guard) verifyOnce(ctx context.Context) (result CheckResult) {
	start := g.clock()
	result = CheckResult{
		ValidationResult: ValidationResult{Status: StatusInvalid},
		CheckedAt:        start,
	}

	defer func() {
		if r := recover(); r != nil {
			// Fail closed on any panic in the chain.
			result = CheckResult{
				ValidationResult: ValidationResult{
					Status: StatusInvalid,
					Err:    fmt.Errorf("%w: validation panicked: %v", apperrors.ErrStorage, r),
				},
				CheckedAt: start,
			}
			g.logError(ctx, "verify_license", "validation panicked",
				slog.Any("panic", r),
			)
		}
		g.recordCheck(ctx, result, g.clock().Sub(start))
	}()

	g.mu.Lock()
	defer g.mu.Unlock()

	stored, err := g.store.Load()
	if err != nil {
		if errors.Is(err, apperrors.ErrTampered) {
			// Unreadable is not the same as absent: the record exists but
			// cannot be trusted.
			result.ValidationResult = ValidationResult{Status: StatusTampered, Err: err}
			return result
		}
		result.ValidationResult = ValidationResult{Status: StatusNotActivated, Err: err}
		return result
	}

	current, err := g.engine.Generate()
	if err != nil {
		result.ValidationResult = ValidationResult{
			Status: StatusInvalid,
			Err:    fmt.Errorf("%w: fingerprint generation failed: %v", apperrors.ErrStorage, err),
		}
		return result
	}

	now := g.clock()
	result.ValidationResult = g.validator.Validate(stored, current, now, func(licenseID string) (*registry.Entry, error) {
		return g.registry.Lookup(ctx, licenseID)
	})
	result.CanProceed = result.Status == StatusValid

	if result.Status == StatusValid && stored != nil && now.Sub(stored.LastValidatedAt) >= g.touchInterval {
		if err := g.store.TouchLastValidated(now); err != nil {
			g.logWarn(ctx, "verify_license", "failed to persist last validation time",
				slog.String("error", err.Error()),
			)
		}
	}

	return result
}

// Activate runs the full activation sequence: decode, verify signature,
// fingerprint, register, store. No persistent state survives a failure on
// any branch.
func (g *Guard) Activate(ctx context.Context, licenseKey string) (*ActivationOutcome, error) {
	if !g.limiter.Allow() {
		g.logWarn(ctx, "activate", "activation rate limit exceeded",
			slog.String("license_key_masked", maskLicenseKey(licenseKey)),
		)
		return nil, apperrors.ErrRateLimited
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	start := g.clock()
	g.logInfo(ctx, "activate", "license activation started",
		slog.String("license_key_masked", maskLicenseKey(licenseKey)),
		slog.String("license_key_hash", hashLicenseKey(licenseKey)),
	)

	data, err := g.codec.Decode(licenseKey)
	if err != nil {
		g.recordActivation(ctx, false, "invalid_key")
		return nil, err
	}

	if !g.codec.Verify(data) {
		g.recordActivation(ctx, false, "signature_invalid")
		return nil, fmt.Errorf("%w: license %s", apperrors.ErrSignatureInvalid, data.LicenseID)
	}

	fingerprint, err := g.engine.Generate()
	if err != nil {
		g.recordActivation(ctx, false, "fingerprint_error")
		return nil, fmt.Errorf("%w: fingerprint generation failed: %v", apperrors.ErrStorage, err)
	}

	now := g.clock()
	regResult, err := g.registry.Register(ctx, data.LicenseID, fingerprint.Signature, now)
	if err != nil {
		// Registry rejected: propagate its error, no state has changed.
		g.recordActivation(ctx, false, "registry_rejected")
		return nil, err
	}

	activatedAt := now
	if regResult.AlreadyOnThisDevice && !regResult.BoundAt.IsZero() {
		// Re-activation on the same machine keeps the original clock; the
		// expiry window never restarts.
		activatedAt = regResult.BoundAt
	}

	record := &ActivatedLicenseData{
		RawLicenseData:    *data,
		ActivatedAt:       activatedAt,
		ExpiresAt:         activatedAt.Add(time.Duration(data.MaxDays) * 24 * time.Hour),
		DeviceFingerprint: fingerprint,
		OriginalSignature: data.Signature,
		ActivationID:      uuid.NewString(),
		LastValidatedAt:   now,
	}

	if err := g.store.Save(record); err != nil {
		// Roll back a binding created by this attempt so no partial state
		// remains. An idempotent re-registration left the registry as it
		// was, so there is nothing to undo.
		if !regResult.AlreadyOnThisDevice {
			if derr := g.registry.Discard(ctx, data.LicenseID, fingerprint.Signature); derr != nil {
				g.logError(ctx, "activate", "failed to roll back registry binding",
					slog.String("license_id", data.LicenseID),
					slog.String("error", derr.Error()),
				)
			}
		}
		g.recordActivation(ctx, false, "storage_error")
		return nil, err
	}

	g.recordActivation(ctx, true, "ok")
	g.logInfo(ctx, "activate", "license activated",
		slog.String("license_id", data.LicenseID),
		slog.String("license_type", string(data.LicenseType)),
		slog.Time("expires_at", record.ExpiresAt),
		slog.Bool("already_on_this_device", regResult.AlreadyOnThisDevice),
		slog.Duration("duration", g.clock().Sub(start)),
	)

	return &ActivationOutcome{
		License:             record,
		AlreadyOnThisDevice: regResult.AlreadyOnThisDevice,
	}, nil
}

// Deactivate releases the registry binding, then deletes the local
// record, in that order. If the delete fails the registry has already
// committed the terminal flag, which is the safe side: the stale local
// copy validates as DEACTIVATED on the next check.
func (g *Guard) Deactivate(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	stored, err := g.store.Load()
	if err != nil {
		// A tampered record is unreadable, so its registry binding cannot
		// be released; deleting the file here would strand a live binding
		// with no local record. The record is kept: re-activating with the
		// original key on this device restores it idempotently.
		return err
	}
	if stored == nil {
		return apperrors.ErrNotActivated
	}

	if err := g.registry.Release(ctx, stored.LicenseID); err != nil && !errors.Is(err, apperrors.ErrNotActivated) {
		return err
	}

	if err := g.store.Delete(); err != nil {
		g.logError(ctx, "deactivate", "registry released but record deletion failed",
			slog.String("error", err.Error()),
		)
		return err
	}

	g.logInfo(ctx, "deactivate", "license deactivated")
	return nil
}

// CurrentDeviceInfo returns the display-safe fingerprint summary
func (g *Guard) CurrentDeviceInfo() (map[string]string, error) {
	fingerprint, err := g.engine.Generate()
	if err != nil {
		return nil, fmt.Errorf("%w: fingerprint generation failed: %v", apperrors.ErrStorage, err)
	}
	return fingerprint.Summary(), nil
}

// Run drives the periodic re-check loop until ctx is cancelled. The loop
// is coarse by design; any per-second countdown in the UI is
// presentational and never authoritative.
func (g *Guard) Run(ctx context.Context) error {
	ticker := time.NewTicker(g.cfg.CheckInterval)
	defer ticker.Stop()

	g.notifyIfChanged(g.VerifyLicense(ctx))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			g.notifyIfChanged(g.VerifyLicense(ctx))
		}
	}
}

// notifyIfChanged pushes the result to the listener on status transitions
func (g *Guard) notifyIfChanged(result CheckResult) {
	g.listenerMu.Lock()
	changed := result.Status != g.lastStatus
	g.lastStatus = result.Status
	listener := g.listener
	g.listenerMu.Unlock()

	if changed && listener != nil {
		listener(result)
	}
}

func (g *Guard) recordActivation(ctx context.Context, success bool, reason string) {
	if g.metrics != nil {
		g.metrics.RecordActivation(ctx, success, reason)
	}
}

func (g *Guard) recordCheck(ctx context.Context, result CheckResult, elapsed time.Duration) {
	if g.metrics != nil {
		g.metrics.RecordValidation(ctx, string(result.Status), elapsed)
	}
}
