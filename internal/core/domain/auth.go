package domain

import (
	"errors"
	"fmt"
	"time"
)

// FailureKind enumerates every way a request can fail authentication or
// authorization. It never reaches handler code; the HTTP error handler
// translates it.
type FailureKind int

const (
	TokenMissing FailureKind = iota + 1
	TokenMalformed
	SignatureInvalid
	TokenExpired
	RoleUnauthorized
	ConfigurationError
)

// FailureKinds lists all kinds in declaration order.
var FailureKinds = []FailureKind{
	TokenMissing,
	TokenMalformed,
	SignatureInvalid,
	TokenExpired,
	RoleUnauthorized,
	ConfigurationError,
}

func (k FailureKind) String() string {
	switch k {
	case TokenMissing:
		return "token_missing"
	case TokenMalformed:
		return "token_malformed"
	case SignatureInvalid:
		return "signature_invalid"
	case TokenExpired:
		return "token_expired"
	case RoleUnauthorized:
		return "role_unauthorized"
	case ConfigurationError:
		return "configuration_error"
	default:
		return fmt.Sprintf("failure_kind(%d)", int(k))
	}
}

// AuthError carries a FailureKind plus an optional cause for logs.
type AuthError struct {
	Kind FailureKind
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Kind, e.Err)
	}
	return "auth: " + e.Kind.String()
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is matches any *AuthError of the same kind, so errors.Is(err, NewAuthError(TokenExpired, nil))
// works regardless of the wrapped cause.
func (e *AuthError) Is(target error) bool {
	var t *AuthError
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

func NewAuthError(kind FailureKind, err error) *AuthError {
	return &AuthError{Kind: kind, Err: err}
}

// KindOf extracts the FailureKind from err. ok is false for non-auth errors.
func KindOf(err error) (kind FailureKind, ok bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return 0, false
}

// ErrHashing reports an RNG or KDF failure while producing a password hash.
var ErrHashing = errors.New("password hashing failed")

// SessionClaims is the payload signed into a session token.
type SessionClaims struct {
	Subject   int64
	Role      Role
	ExpiresAt int64 // unix seconds
}

func (c SessionClaims) Expiry() time.Time {
	return time.Unix(c.ExpiresAt, 0).UTC()
}

// Principal is the authenticated identity handed to protected handlers.
type Principal struct {
	Subject int64
	Role    Role
}

// Capability is the set of roles allowed through a route.
type Capability struct {
	roles map[Role]struct{}
}

// RequireRoles builds a Capability admitting exactly the given roles.
func RequireRoles(roles ...Role) Capability {
	c := Capability{roles: make(map[Role]struct{}, len(roles))}
	for _, r := range roles {
		c.roles[r] = struct{}{}
	}
	return c
}

// AdminOnly is the capability used by the application's protected pages.
var AdminOnly = RequireRoles(RoleAdmin)

func (c Capability) Allows(r Role) bool {
	_, ok := c.roles[r]
	return ok
}
