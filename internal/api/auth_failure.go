package api

import (
	"net/http"

	"github.com/99minutos/starter/internal/core/domain"
)

// LoginPath is where failed guard checks send the browser.
const LoginPath = "/login"

// AuthFailureResponse is the externally visible result of an auth failure.
// Exactly one of Redirect or Status is set.
type AuthFailureResponse struct {
	Redirect string
	Status   int
}

// TranslateAuthFailure maps every domain.FailureKind to a response. Per-request
// failures send the browser to the login page; configuration failures are an
// opaque server error.
func TranslateAuthFailure(kind domain.FailureKind) AuthFailureResponse {
	switch kind {
	case domain.TokenMissing,
		domain.TokenMalformed,
		domain.SignatureInvalid,
		domain.TokenExpired,
		domain.RoleUnauthorized:
		return AuthFailureResponse{Redirect: LoginPath}
	case domain.ConfigurationError:
		return AuthFailureResponse{Status: http.StatusInternalServerError}
	default:
		// Unknown kinds are treated as server faults rather than silently
		// granting or redirecting.
		return AuthFailureResponse{Status: http.StatusInternalServerError}
	}
}
