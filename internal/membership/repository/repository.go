package repository

import (
	"context"

	"backoffice/authcore/internal/membership/domain"
)

// Repository defines persistence for tenant memberships.
type Repository interface {
	GetMembershipByUserAndTenant(ctx context.Context, userID, tenantID string) (*domain.Membership, error)
	ListMembershipsByUser(ctx context.Context, userID string) ([]*domain.Membership, error)
	CreateMembership(ctx context.Context, m *domain.Membership) error
	// ChangeRole sets the role in one transaction, refusing to demote the tenant's last owner with
	// domain.ErrLastOwner. It returns the previous role and the membership, or a nil membership when
	// the user is not a member.
	ChangeRole(ctx context.Context, userID, tenantID string, next domain.Role) (domain.Role, *domain.Membership, error)
	CountOwnersByTenant(ctx context.Context, tenantID string) (int64, error)
}
