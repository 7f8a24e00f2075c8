package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"backoffice/authcore/internal/audit/domain"
	"backoffice/authcore/internal/db"
)

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns an access event repository that uses the given db for persistence.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// Create appends the event. The event must have ID and CreatedAt set.
func (r *PostgresRepository) Create(ctx context.Context, e *domain.AccessEvent) error {
	meta := []byte("{}")
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return err
		}
		meta = b
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO access_events (id, kind, actor_user_id, tenant_id, ip, user_agent, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, string(e.Kind), db.NullString(e.ActorUserID), db.NullString(e.TenantID), e.IP, e.UserAgent, meta, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Write makes the repository usable as an access event sink.
func (r *PostgresRepository) Write(ctx context.Context, e *domain.AccessEvent) error {
	return r.Create(ctx, e)
}

// ListByTenant returns events for the tenant, newest first.
func (r *PostgresRepository) ListByTenant(ctx context.Context, tenantID string, limit, offset int32) ([]*domain.AccessEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, kind, actor_user_id, tenant_id, ip, user_agent, metadata, created_at
		 FROM access_events WHERE tenant_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*domain.AccessEvent
	for rows.Next() {
		var (
			e      domain.AccessEvent
			kind   string
			actor  sql.NullString
			tenant sql.NullString
			meta   []byte
		)
		if err := rows.Scan(&e.ID, &kind, &actor, &tenant, &e.IP, &e.UserAgent, &meta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		e.Kind = domain.Kind(kind)
		e.ActorUserID = actor.String
		e.TenantID = tenant.String
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("access event %s metadata: %w", e.ID, err)
			}
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}
