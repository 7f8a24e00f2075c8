package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"backoffice/authcore/internal/db"
	"backoffice/authcore/internal/user/domain"
)

// ErrNotFound is returned by mutations that target a user id that does not exist.
var ErrNotFound = errors.New("user not found")

const userColumns = `id, email, name, status, is_superadmin, session_version, must_change_password,
       mfa_enabled, mfa_secret, mfa_pending_secret, created_at, updated_at`

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a user repository that uses the given db for persistence.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetByEmail returns the user with the given (already normalized) email, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// Create persists the user. The user must have ID set; it is not assigned by this method.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, status, is_superadmin, session_version, must_change_password,
		                    mfa_enabled, mfa_secret, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		u.ID, u.Email, u.Name, string(u.Status), u.IsSuperadmin, u.SessionVersion, u.MustChangePassword,
		u.MFAEnabled, db.NullString(u.MFASecret), u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// BumpSessionVersion increments session_version and returns the new value.
func (r *PostgresRepository) BumpSessionVersion(ctx context.Context, userID string) (int64, error) {
	var v int64
	err := r.db.QueryRowContext(ctx,
		`UPDATE users SET session_version = session_version + 1, updated_at = $2
		 WHERE id = $1
		 RETURNING session_version`, userID, time.Now().UTC()).Scan(&v)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return v, nil
}

// SetPendingMFASecret stores a TOTP secret awaiting confirmation.
func (r *PostgresRepository) SetPendingMFASecret(ctx context.Context, userID, secret string) error {
	return r.execOne(ctx,
		`UPDATE users SET mfa_pending_secret = $2, updated_at = $3 WHERE id = $1`,
		userID, secret, time.Now().UTC())
}

// EnableMFA promotes the pending secret. Fails with ErrNotFound when no pending secret exists.
func (r *PostgresRepository) EnableMFA(ctx context.Context, userID string) error {
	return r.execOne(ctx,
		`UPDATE users SET mfa_enabled = TRUE, mfa_secret = mfa_pending_secret, mfa_pending_secret = NULL, updated_at = $2
		 WHERE id = $1 AND mfa_pending_secret IS NOT NULL`,
		userID, time.Now().UTC())
}

// DisableMFA clears MFA state for the user.
func (r *PostgresRepository) DisableMFA(ctx context.Context, userID string) error {
	return r.execOne(ctx,
		`UPDATE users SET mfa_enabled = FALSE, mfa_secret = NULL, mfa_pending_secret = NULL, updated_at = $2
		 WHERE id = $1`,
		userID, time.Now().UTC())
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var (
		u             domain.User
		status        string
		secret        sql.NullString
		pendingSecret sql.NullString
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &status, &u.IsSuperadmin, &u.SessionVersion, &u.MustChangePassword,
		&u.MFAEnabled, &secret, &pendingSecret, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	u.Status = domain.UserStatus(status)
	u.MFASecret = secret.String
	u.MFAPendingSecret = pendingSecret.String
	return &u, nil
}
