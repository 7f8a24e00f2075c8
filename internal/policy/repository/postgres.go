package repository

import (
	"context"
	"errors"
	"fmt"

	"backoffice/authcore/internal/db"
	"backoffice/authcore/internal/policy/domain"
)

// ErrNotFound is returned when updating a policy that does not exist.
var ErrNotFound = errors.New("policy not found")

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a policy repository that uses the given db for persistence.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetEnabledPoliciesByTenant returns the tenant's enabled policies, oldest first.
func (r *PostgresRepository) GetEnabledPoliciesByTenant(ctx context.Context, tenantID string) ([]*domain.Policy, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, tenant_id, rules, enabled, created_at FROM reauth_policies
		 WHERE tenant_id = $1 AND enabled ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()
	var out []*domain.Policy
	for rows.Next() {
		var p domain.Policy
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Rules, &p.Enabled, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// Create persists the policy. The policy must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, p *domain.Policy) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reauth_policies (id, tenant_id, rules, enabled, created_at) VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.TenantID, p.Rules, p.Enabled, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// SetEnabled toggles a policy.
func (r *PostgresRepository) SetEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE reauth_policies SET enabled = $2 WHERE id = $1`, id, enabled)
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
