package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"backoffice/authcore/internal/db"
	"backoffice/authcore/internal/tenant/domain"
)

// ErrNotFound is returned by mutations on a tenant that does not exist.
var ErrNotFound = errors.New("tenant not found")

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a tenant repository that uses the given db for persistence.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetByID returns the tenant with features parsed and validated, or nil if not found.
// Malformed stored features are an error, never a silent default.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	var (
		t        domain.Tenant
		plan     string
		features []byte
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, mfa_required, plan, features, created_at, updated_at FROM tenants WHERE id = $1`, id).
		Scan(&t.ID, &t.Name, &t.MFARequired, &plan, &features, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	t.Plan = domain.Plan(plan)
	if !t.Plan.Valid() {
		return nil, fmt.Errorf("tenant %s: invalid plan %q", id, plan)
	}
	t.Features, err = domain.ParseFeatures(t.Plan, features)
	if err != nil {
		return nil, fmt.Errorf("tenant %s: %w", id, err)
	}
	return &t, nil
}

// Create persists the tenant. The tenant must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, t *domain.Tenant) error {
	if err := t.Validate(); err != nil {
		return err
	}
	overrides, err := domain.MarshalOverrides(t.Plan, t.Features)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, mfa_required, plan, features, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.Name, t.MFARequired, string(t.Plan), overrides, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// SetMFARequired updates the tenant's MFA policy.
func (r *PostgresRepository) SetMFARequired(ctx context.Context, id string, required bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE tenants SET mfa_required = $2, updated_at = $3 WHERE id = $1`, id, required, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
