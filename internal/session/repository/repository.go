package repository

import (
	"context"
	"time"

	"backoffice/authcore/internal/session/domain"
)

// Repository defines persistence for sessions.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error)
	Create(ctx context.Context, s *domain.Session) error
	// Revoke marks the session revoked if it is not already. Returns whether this call revoked it.
	Revoke(ctx context.Context, id, reason string, at time.Time) (bool, error)
	RevokeAllByUser(ctx context.Context, userID, reason string, at time.Time) (int64, error)
	UpdateLastSeen(ctx context.Context, id string, at time.Time) error
	ClearStepUp(ctx context.Context, id string) error
}
