package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"backoffice/authcore/internal/db"
	"backoffice/authcore/internal/identity/domain"
)

// ErrNotFound is returned when the user has no local identity to reset.
var ErrNotFound = errors.New("identity not found")

type PostgresRepository struct {
	conn *sql.DB
}

// NewPostgresRepository returns an identity repository that uses the given db for persistence.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{conn: conn}
}

// GetByUserAndProvider returns the identity for the user and provider, or nil if not found.
func (r *PostgresRepository) GetByUserAndProvider(ctx context.Context, userID string, provider domain.IdentityProvider) (*domain.Identity, error) {
	var (
		i        domain.Identity
		prov     string
		password sql.NullString
	)
	err := r.conn.QueryRowContext(ctx,
		`SELECT id, user_id, provider, provider_id, password_hash, created_at
		 FROM identities WHERE user_id = $1 AND provider = $2`,
		userID, string(provider)).Scan(&i.ID, &i.UserID, &prov, &i.ProviderID, &password, &i.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	i.Provider = domain.IdentityProvider(prov)
	i.PasswordHash = password.String
	return &i, nil
}

// Create persists the identity. The identity must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, i *domain.Identity) error {
	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO identities (id, user_id, provider, provider_id, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		i.ID, i.UserID, string(i.Provider), i.ProviderID, db.NullString(i.PasswordHash), i.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ResetPassword updates the hash and bumps the user's session version atomically.
func (r *PostgresRepository) ResetPassword(ctx context.Context, userID, passwordHash string) (int64, error) {
	var version int64
	err := db.WithTx(ctx, r.conn, func(ctx context.Context, tx db.DBTX) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE identities SET password_hash = $3 WHERE user_id = $1 AND provider = $2`,
			userID, string(domain.IdentityProviderLocal), passwordHash)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		err = tx.QueryRowContext(ctx,
			`UPDATE users SET session_version = session_version + 1, must_change_password = TRUE, updated_at = $2
			 WHERE id = $1
			 RETURNING session_version`, userID, time.Now().UTC()).Scan(&version)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("db error: %w", err)
		}
		return nil
	})
	return version, err
}
