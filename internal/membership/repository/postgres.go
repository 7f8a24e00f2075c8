package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"backoffice/authcore/internal/db"
	"backoffice/authcore/internal/membership/domain"
)

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a membership repository that uses the given db for persistence.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetMembershipByUserAndTenant returns the membership, or nil if the user is not a member.
func (r *PostgresRepository) GetMembershipByUserAndTenant(ctx context.Context, userID, tenantID string) (*domain.Membership, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, tenant_id, role, created_at
		 FROM tenant_memberships WHERE user_id = $1 AND tenant_id = $2`, userID, tenantID)
	m, err := scanMembership(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

// ListMembershipsByUser returns all memberships of the user ordered by tenant id.
func (r *PostgresRepository) ListMembershipsByUser(ctx context.Context, userID string) ([]*domain.Membership, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, tenant_id, role, created_at
		 FROM tenant_memberships WHERE user_id = $1 ORDER BY tenant_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()
	var out []*domain.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// CreateMembership persists the membership. The membership must have ID set.
func (r *PostgresRepository) CreateMembership(ctx context.Context, m *domain.Membership) error {
	if !m.Role.Valid() {
		return fmt.Errorf("invalid role %q", m.Role)
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tenant_memberships (id, user_id, tenant_id, role, created_at) VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.UserID, m.TenantID, string(m.Role), m.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ChangeRole locks the tenant's owner rows and the target row, checks the last-owner invariant
// against the locked count and updates the role. Concurrent demotions serialize on the owner locks.
func (r *PostgresRepository) ChangeRole(ctx context.Context, userID, tenantID string, next domain.Role) (domain.Role, *domain.Membership, error) {
	var (
		prev domain.Role
		out  *domain.Membership
	)
	err := r.inTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		owners, err := lockOwners(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		current, err := scanMembership(tx.QueryRowContext(ctx,
			`SELECT id, user_id, tenant_id, role, created_at
			 FROM tenant_memberships WHERE user_id = $1 AND tenant_id = $2 FOR UPDATE`, userID, tenantID))
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		prev = current.Role
		if current.Role == next {
			out = current
			return nil
		}
		if err := domain.CheckRoleChange(current.Role, next, owners); err != nil {
			return err
		}
		out, err = scanMembership(tx.QueryRowContext(ctx,
			`UPDATE tenant_memberships SET role = $3 WHERE user_id = $1 AND tenant_id = $2
			 RETURNING id, user_id, tenant_id, role, created_at`, userID, tenantID, string(next)))
		return err
	})
	if err != nil {
		return "", nil, err
	}
	return prev, out, nil
}

func lockOwners(ctx context.Context, tx db.DBTX, tenantID string) (int64, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM tenant_memberships WHERE tenant_id = $1 AND role = 'owner' ORDER BY id FOR UPDATE`, tenantID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()
	var n int64
	for rows.Next() {
		n++
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// inTx runs fn in a new transaction, or directly when the repository already wraps one.
func (r *PostgresRepository) inTx(ctx context.Context, fn func(ctx context.Context, tx db.DBTX) error) error {
	if conn, ok := r.db.(*sql.DB); ok {
		return db.WithTx(ctx, conn, fn)
	}
	return fn(ctx, r.db)
}

// CountOwnersByTenant returns how many owners the tenant has.
func (r *PostgresRepository) CountOwnersByTenant(ctx context.Context, tenantID string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM tenant_memberships WHERE tenant_id = $1 AND role = 'owner'`, tenantID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMembership(s scanner) (*domain.Membership, error) {
	var (
		m    domain.Membership
		role string
	)
	if err := s.Scan(&m.ID, &m.UserID, &m.TenantID, &role, &m.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	m.Role = domain.Role(role)
	return &m, nil
}
