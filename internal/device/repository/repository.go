package repository

import (
	"context"
	"time"

	"backoffice/authcore/internal/device/domain"
)

// Repository defines persistence for trusted devices.
type Repository interface {
	GetByUserAndFingerprint(ctx context.Context, userID, fingerprint string) (*domain.Device, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Device, error)
	// Approve upserts the (user, fingerprint) row with approved_at = at and revoked_at cleared.
	Approve(ctx context.Context, d *domain.Device, at time.Time) error
	UpdateLastSeen(ctx context.Context, id string, at time.Time) error
	// Revoke marks the user's device revoked. Returns false if no such device exists for the user.
	Revoke(ctx context.Context, userID, id string, at time.Time) (bool, error)
}
