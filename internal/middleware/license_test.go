package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "clinicore/internal/errors"
	"clinicore/internal/license"
)

// countingChecker returns a scripted result and counts validations
type countingChecker struct {
	result license.CheckResult
	calls  int
}

func (c *countingChecker) VerifyLicense(context.Context) license.CheckResult {
	c.calls++
	return c.result
}

func validResult() license.CheckResult {
	return license.CheckResult{
		ValidationResult: license.ValidationResult{Status: license.StatusValid},
		CanProceed:       true,
	}
}

func blockedResult(status license.Status, err error) license.CheckResult {
	return license.CheckResult{
		ValidationResult: license.ValidationResult{Status: status, Err: err},
		CanProceed:       false,
	}
}

func serveThrough(gate *LicenseGate, path string) *httptest.ResponseRecorder {
	handler := gate.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("app content"))
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestLicenseGate(t *testing.T) {
	t.Run("valid license passes through", func(t *testing.T) {
		gate := NewLicenseGate(&countingChecker{result: validResult()}, nil)
		rec := serveThrough(gate, "/api/patients")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "app content", rec.Body.String())
	})

	t.Run("blocked license yields a problem response", func(t *testing.T) {
		checker := &countingChecker{result: blockedResult(license.StatusExpired, apperrors.ErrLicenseExpired)}
		gate := NewLicenseGate(checker, nil)
		rec := serveThrough(gate, "/api/patients")

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "json")
		assert.Contains(t, rec.Body.String(), apperrors.CodeExpired)
		assert.Contains(t, rec.Body.String(), "EXPIRED")
	})

	t.Run("not activated blocks with its own code", func(t *testing.T) {
		checker := &countingChecker{result: blockedResult(license.StatusNotActivated, nil)}
		gate := NewLicenseGate(checker, nil)
		rec := serveThrough(gate, "/api/patients")

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), apperrors.CodeNotActivated)
	})

	t.Run("license routes stay reachable while blocked", func(t *testing.T) {
		checker := &countingChecker{result: blockedResult(license.StatusNotActivated, nil)}
		gate := NewLicenseGate(checker, nil)

		for _, path := range []string{
			"/api/license/activate",
			"/api/license/status",
			"/api/health",
			"/metrics",
			"/ws",
			"/",
			"/favicon.ico",
		} {
			rec := serveThrough(gate, path)
			assert.Equal(t, http.StatusOK, rec.Code, "path %s must bypass the gate", path)
		}
		assert.Zero(t, checker.calls, "excluded paths must not trigger validation")
	})

	t.Run("decision is cached across a burst", func(t *testing.T) {
		checker := &countingChecker{result: validResult()}
		gate := NewLicenseGate(checker, nil)

		for i := 0; i < 10; i++ {
			serveThrough(gate, "/api/patients")
		}
		assert.Equal(t, 1, checker.calls)
	})
}
