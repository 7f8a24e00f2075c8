package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"backoffice/authcore/internal/db"
	"backoffice/authcore/internal/mfa/domain"
)

type PostgresRepository struct {
	conn *sql.DB
}

// NewPostgresRepository returns a recovery code repository that uses the given db.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{conn: conn}
}

// Consume is a single conditional update; the row is claimed only while consumed_at is NULL.
func (r *PostgresRepository) Consume(ctx context.Context, userID, codeHash, consumedBy string, at time.Time) (bool, error) {
	res, err := r.conn.ExecContext(ctx,
		`UPDATE mfa_recovery_codes SET consumed_at = $3, consumed_by = $4
		 WHERE user_id = $1 AND code_hash = $2 AND consumed_at IS NULL`,
		userID, codeHash, at, db.NullString(consumedBy))
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

// Replace swaps the user's codes in one transaction.
func (r *PostgresRepository) Replace(ctx context.Context, userID string, codes []*domain.RecoveryCode) error {
	return db.WithTx(ctx, r.conn, func(ctx context.Context, tx db.DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM mfa_recovery_codes WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		for _, c := range codes {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO mfa_recovery_codes (id, user_id, code_hash, created_at) VALUES ($1, $2, $3, $4)`,
				c.ID, userID, c.CodeHash, c.CreatedAt); err != nil {
				return fmt.Errorf("db error: %w", err)
			}
		}
		return nil
	})
}

// CountRemaining returns how many unconsumed codes the user has.
func (r *PostgresRepository) CountRemaining(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM mfa_recovery_codes WHERE user_id = $1 AND consumed_at IS NULL`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
