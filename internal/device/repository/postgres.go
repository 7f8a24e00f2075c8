package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"backoffice/authcore/internal/db"
	"backoffice/authcore/internal/device/domain"
)

const deviceColumns = `id, user_id, fingerprint, label, metadata, approved_at, revoked_at, last_seen_at, created_at`

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a device repository that uses the given db for persistence.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetByUserAndFingerprint returns the device, or nil if not found.
func (r *PostgresRepository) GetByUserAndFingerprint(ctx context.Context, userID, fingerprint string) (*domain.Device, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM trusted_devices WHERE user_id = $1 AND fingerprint = $2`, userID, fingerprint)
	d, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

// ListByUser returns the user's devices, most recently created first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Device, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM trusted_devices WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()
	var out []*domain.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// Approve inserts or re-approves the device. The device must have ID, UserID and Fingerprint set;
// on conflict the existing row keeps its id.
func (r *PostgresRepository) Approve(ctx context.Context, d *domain.Device, at time.Time) error {
	meta, err := json.Marshal(d.Metadata)
	if err != nil {
		return err
	}
	if d.Metadata == nil {
		meta = []byte("{}")
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO trusted_devices (id, user_id, fingerprint, label, metadata, approved_at, last_seen_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6, $6)
		 ON CONFLICT (user_id, fingerprint)
		 DO UPDATE SET approved_at = EXCLUDED.approved_at, revoked_at = NULL, last_seen_at = EXCLUDED.last_seen_at`,
		d.ID, d.UserID, d.Fingerprint, d.Label, meta, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// UpdateLastSeen sets last_seen_at.
func (r *PostgresRepository) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE trusted_devices SET last_seen_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Revoke sets revoked_at on the user's active device. Returns false when the device does not belong to
// the user or is already revoked.
func (r *PostgresRepository) Revoke(ctx context.Context, userID, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE trusted_devices SET revoked_at = $3 WHERE id = $1 AND user_id = $2 AND revoked_at IS NULL`,
		id, userID, at)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(s scanner) (*domain.Device, error) {
	var (
		d                           domain.Device
		meta                        []byte
		approved, revoked, lastSeen sql.NullTime
	)
	if err := s.Scan(&d.ID, &d.UserID, &d.Fingerprint, &d.Label, &meta, &approved, &revoked, &lastSeen, &d.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &d.Metadata); err != nil {
			return nil, fmt.Errorf("device %s metadata: %w", d.ID, err)
		}
	}
	d.ApprovedAt = db.TimePtr(approved)
	d.RevokedAt = db.TimePtr(revoked)
	d.LastSeenAt = db.TimePtr(lastSeen)
	return &d, nil
}
