package repository

import (
	"context"

	"backoffice/authcore/internal/identity/domain"
)

// Repository defines persistence for identities.
type Repository interface {
	GetByUserAndProvider(ctx context.Context, userID string, provider domain.IdentityProvider) (*domain.Identity, error)
	Create(ctx context.Context, i *domain.Identity) error
	// ResetPassword replaces the local password hash, flags the user for a forced change and bumps
	// session_version in one transaction. Returns the new session version.
	ResetPassword(ctx context.Context, userID, passwordHash string) (int64, error)
}
