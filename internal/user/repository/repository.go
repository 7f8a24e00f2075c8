package repository

import (
	"context"

	"backoffice/authcore/internal/user/domain"
)

// Repository defines persistence for users.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	// BumpSessionVersion increments session_version and returns the new value, invalidating all sessions.
	BumpSessionVersion(ctx context.Context, userID string) (int64, error)
	SetPendingMFASecret(ctx context.Context, userID, secret string) error
	// EnableMFA promotes the pending secret to the active secret.
	EnableMFA(ctx context.Context, userID string) error
	DisableMFA(ctx context.Context, userID string) error
}
