package repository

import (
	"context"
	"time"

	"backoffice/authcore/internal/mfa/domain"
)

// Repository defines persistence for MFA recovery codes.
type Repository interface {
	// Consume marks the unconsumed code with codeHash as used by consumedBy. It reports false when no
	// such unconsumed code exists, so concurrent attempts with the same code succeed at most once.
	Consume(ctx context.Context, userID, codeHash, consumedBy string, at time.Time) (bool, error)
	// Replace deletes every code of the user and stores codes in its place.
	Replace(ctx context.Context, userID string, codes []*domain.RecoveryCode) error
	CountRemaining(ctx context.Context, userID string) (int, error)
}
