package repository

import (
	"context"

	"backoffice/authcore/internal/audit/domain"
)

// Repository defines persistence for access events.
type Repository interface {
	Create(ctx context.Context, e *domain.AccessEvent) error
	ListByTenant(ctx context.Context, tenantID string, limit, offset int32) ([]*domain.AccessEvent, error)
}
