package ports

import (
	"context"
	"time"

	"github.com/99minutos/starter/internal/core/domain"
)

// PasswordHasher produces and checks self-describing password hashes.
// Verify never distinguishes a wrong password from a malformed hash.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) bool
}

// TokenCodec issues and validates signed session tokens. Validate failures
// are *domain.AuthError values.
type TokenCodec interface {
	Issue(subject int64, role domain.Role, ttl time.Duration) (string, domain.SessionClaims, error)
	Validate(token string) (domain.SessionClaims, error)
}

// WorkerPool runs CPU-bound jobs on a bounded set of goroutines. ctx only
// bounds the wait for a free worker; an accepted job always runs to completion.
type WorkerPool interface {
	Do(ctx context.Context, job func()) error
}
