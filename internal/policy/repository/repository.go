package repository

import (
	"context"

	"backoffice/authcore/internal/policy/domain"
)

// Repository defines persistence for tenant re-auth policies.
type Repository interface {
	GetEnabledPoliciesByTenant(ctx context.Context, tenantID string) ([]*domain.Policy, error)
	Create(ctx context.Context, p *domain.Policy) error
	SetEnabled(ctx context.Context, id string, enabled bool) error
}
