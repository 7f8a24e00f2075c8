package repository

import (
	"context"

	"backoffice/authcore/internal/tenant/domain"
)

// Repository defines persistence for tenants and their policy.
type Repository interface {
	// GetByID returns the tenant, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.Tenant, error)
	Create(ctx context.Context, t *domain.Tenant) error
	SetMFARequired(ctx context.Context, id string, required bool) error
}
