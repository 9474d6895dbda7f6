package errors

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/render"
)

// Problem type URIs for license errors, following RFC 7807.
const (
	TypeValidation           = "/errors/validation"
	TypeLicenseInvalidKey    = "/errors/license/invalid-key"
	TypeLicenseExpired       = "/errors/license/expired"
	TypeLicenseMismatch      = "/errors/license/device-mismatch"
	TypeLicenseConflict      = "/errors/license/already-registered"
	TypeLicenseDeactivated   = "/errors/license/permanently-deactivated"
	TypeLicenseTampered      = "/errors/license/tampered"
	TypeLicenseNotActivated  = "/errors/license/not-activated"
	TypeLicenseStorage       = "/errors/license/storage"
	TypeRateLimit            = "/errors/rate-limit"
	TypeInternal             = "/errors/internal"
)

// ProblemDetails implements RFC 7807 Problem Details for HTTP APIs
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	Extensions map[string]interface{} `json:"-"`
}

// Render implements the render.Renderer interface
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

// MarshalJSON includes extension members alongside the standard fields
func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	data := make(map[string]interface{})
	data["type"] = pd.Type
	data["title"] = pd.Title
	data["status"] = pd.Status
	if pd.Detail != "" {
		data["detail"] = pd.Detail
	}
	if pd.Instance != "" {
		data["instance"] = pd.Instance
	}
	for k, v := range pd.Extensions {
		data[k] = v
	}
	return json.Marshal(data)
}

// NewProblemDetails creates a new RFC 7807 compliant error
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:       problemType,
		Title:      title,
		Status:     status,
		Detail:     detail,
		Instance:   instance,
		Extensions: make(map[string]interface{}),
	}
}

// WithExtension adds an extension member to the problem details
func (pd *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	pd.Extensions[key] = value
	return pd
}

// problemTypeForCode maps stable error codes to problem type URIs
func problemTypeForCode(code string) string {
	switch code {
	case CodeInvalidKey, CodeSignatureInvalid:
		return TypeLicenseInvalidKey
	case CodeExpired:
		return TypeLicenseExpired
	case CodeDeviceMismatch:
		return TypeLicenseMismatch
	case CodeAlreadyActivated:
		return TypeLicenseConflict
	case CodePermanentlyDeactivated:
		return TypeLicenseDeactivated
	case CodeTampered:
		return TypeLicenseTampered
	case CodeNotActivated:
		return TypeLicenseNotActivated
	case CodeRateLimited:
		return TypeRateLimit
	default:
		return TypeLicenseStorage
	}
}

// NewLicenseProblem builds the ProblemDetails response for an engine error,
// carrying the stable error_code extension the UI keys its messages off.
func NewLicenseProblem(err error, traceID string) *ProblemDetails {
	code := CodeForError(err)
	problem := NewProblemDetails(
		HTTPStatusForError(err),
		problemTypeForCode(code),
		http.StatusText(HTTPStatusForError(err)),
		MessageForError(err),
		"",
	)
	problem.WithExtension("error_code", code)
	if code == CodeAlreadyActivated {
		problem.WithExtension("error_code_alias", CodeAliasAlreadyActivated)
	}
	if traceID != "" {
		problem.WithExtension("trace_id", traceID)
	}
	return problem
}
