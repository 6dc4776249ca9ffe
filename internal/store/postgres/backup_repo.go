package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/queueforge/vqueue/internal/errs"
	"github.com/queueforge/vqueue/internal/store"
)

// BackupRepo implements store.BackupRepository against the global
// public.backups table — backups span tenants, so unlike the other
// repositories it always queries through Pool rather than a tenant-pinned
// connection.
type BackupRepo struct {
	Pool *pgxpool.Pool
}

func (r *BackupRepo) GetByID(ctx context.Context, id uuid.UUID) (*store.Backup, error) {
	row := r.Pool.QueryRow(ctx, `
		SELECT id, tenant_id, status, location, size_bytes, checksum, created_at, completed_at, error
		FROM public.backups WHERE id = $1`, id)
	return scanBackup(row)
}

func (r *BackupRepo) List(ctx context.Context) ([]*store.Backup, error) {
	rows, err := r.Pool.Query(ctx, `
		SELECT id, tenant_id, status, location, size_bytes, checksum, created_at, completed_at, error
		FROM public.backups ORDER BY created_at DESC`)
	if err != nil {
		return nil, errs.Transientf(err, "listing backups")
	}
	defer rows.Close()

	var out []*store.Backup
	for rows.Next() {
		b, err := scanBackupRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *BackupRepo) Add(ctx context.Context, b *store.Backup) error {
	err := r.Pool.QueryRow(ctx, `
		INSERT INTO public.backups (tenant_id, status, location, size_bytes, checksum, error)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		b.TenantID, b.Status, b.Location, b.SizeBytes, b.Checksum, b.Error,
	).Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		return errs.Transientf(err, "inserting backup")
	}
	return nil
}

func (r *BackupRepo) Update(ctx context.Context, b *store.Backup) error {
	_, err := r.Pool.Exec(ctx, `
		UPDATE public.backups
		SET status = $2, size_bytes = $3, checksum = $4, completed_at = $5, error = $6
		WHERE id = $1`,
		b.ID, b.Status, b.SizeBytes, b.Checksum, b.CompletedAt, b.Error,
	)
	if err != nil {
		return errs.Transientf(err, "updating backup")
	}
	return nil
}

func scanBackup(row pgx.Row) (*store.Backup, error) {
	var b store.Backup
	if err := row.Scan(&b.ID, &b.TenantID, &b.Status, &b.Location, &b.SizeBytes, &b.Checksum, &b.CreatedAt, &b.CompletedAt, &b.Error); err != nil {
		if err == pgx.ErrNoRows {
			return nil, errs.NotFoundf("backup not found")
		}
		return nil, errs.Transientf(err, "scanning backup")
	}
	return &b, nil
}

func scanBackupRow(rows pgx.Rows) (*store.Backup, error) {
	var b store.Backup
	if err := rows.Scan(&b.ID, &b.TenantID, &b.Status, &b.Location, &b.SizeBytes, &b.Checksum, &b.CreatedAt, &b.CompletedAt, &b.Error); err != nil {
		return nil, errs.Transientf(err, "scanning backup")
	}
	return &b, nil
}
