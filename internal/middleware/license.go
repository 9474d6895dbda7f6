package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/render"

	apperrors "clinicore/internal/errors"
	"clinicore/internal/infrastructure"
	"clinicore/internal/license"
)

// LicenseChecker is the guard surface the gate depends on
type LicenseChecker interface {
	VerifyLicense(ctx context.Context) license.CheckResult
}

// LicenseGate blocks application routes while the license engine says the
// host may not proceed. License management routes themselves stay
// reachable so the user can fix the situation.
type LicenseGate struct {
	checker LicenseChecker
	logger  *slog.Logger

	excludePaths    map[string]struct{}
	excludePrefixes []string

	// cache keeps the last decision briefly so request bursts do not each
	// pay for a full validation chain.
	cache struct {
		mu        sync.RWMutex
		result    license.CheckResult
		checkedAt time.Time
		ttl       time.Duration
	}
}

// NewLicenseGate creates the gate middleware
func NewLicenseGate(checker LicenseChecker, logger *slog.Logger) *LicenseGate {
	if logger == nil {
		logger = slog.Default()
	}
	gate := &LicenseGate{
		checker: checker,
		logger:  logger.With(slog.String("component", "license_gate")),
		excludePaths: map[string]struct{}{
			"/":            {},
			"/favicon.ico": {},
		},
		excludePrefixes: []string{
			"/api/license/",
			"/api/health",
			"/metrics",
			"/ws",
			"/static/",
		},
	}
	gate.cache.ttl = 5 * time.Second
	return gate
}

// Handler is the chi middleware function
func (g *LicenseGate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.isExcluded(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		result := g.check(r.Context())
		if result.CanProceed {
			next.ServeHTTP(w, r)
			return
		}

		traceID := infrastructure.TraceIDFromContext(r.Context())
		g.logger.WarnContext(r.Context(), "request blocked by license gate",
			slog.String("path", r.URL.Path),
			slog.String("status", string(result.Status)),
		)

		err := result.Err
		if err == nil {
			err = apperrors.ErrNotActivated
		}
		problem := apperrors.NewLicenseProblem(err, traceID)
		problem.Status = http.StatusForbidden
		problem.WithExtension("license_status", string(result.Status))
		render.Render(w, r, problem)
	})
}

// check returns the cached decision when fresh, otherwise re-validates
func (g *LicenseGate) check(ctx context.Context) license.CheckResult {
	g.cache.mu.RLock()
	if !g.cache.checkedAt.IsZero() && time.Since(g.cache.checkedAt) < g.cache.ttl {
		result := g.cache.result
		g.cache.mu.RUnlock()
		return result
	}
	g.cache.mu.RUnlock()

	result := g.checker.VerifyLicense(ctx)

	g.cache.mu.Lock()
	g.cache.result = result
	g.cache.checkedAt = time.Now()
	g.cache.mu.Unlock()

	return result
}

// isExcluded reports whether the path bypasses the gate
func (g *LicenseGate) isExcluded(path string) bool {
	if _, ok := g.excludePaths[path]; ok {
		return true
	}
	for _, prefix := range g.excludePrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
