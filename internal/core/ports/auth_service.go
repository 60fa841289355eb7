package ports

import (
	"context"

	"github.com/99minutos/starter/internal/core/domain"
)

// RegisterInput carries the registration form after transport-level binding.
type RegisterInput struct {
	Email          string
	Password       string
	RepeatPassword string
}

// Session is what a successful login hands back to the transport layer.
type Session struct {
	Token  string
	Claims domain.SessionClaims
}

type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*domain.User, error)
	Login(ctx context.Context, email, password string) (*Session, error)
}
