package ports

import (
	"context"

	"github.com/99minutos/starter/internal/core/domain"
)

// UserRepository defines the interface for user account persistence.
// FindByEmail returns domain.ErrUserNotFound when no account matches and
// Create returns domain.ErrUserExists on a duplicate email.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	Count(ctx context.Context) (int64, error)
}
