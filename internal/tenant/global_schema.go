package tenant

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureGlobalSchema lays down the cross-tenant public-schema tables
// (tenants directory, backup records) that must exist before any tenant is
// provisioned or any backup is recorded. It is idempotent, so it is safe to
// call on every startup rather than tracking applied migrations.
func EnsureGlobalSchema(ctx context.Context, db *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS public.tenants (
			id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
			name text NOT NULL,
			domain text NOT NULL UNIQUE,
			api_key text NOT NULL,
			active boolean NOT NULL DEFAULT true,
			created_at timestamptz NOT NULL DEFAULT now(),
			deleted boolean NOT NULL DEFAULT false
		)`,
		`CREATE TABLE IF NOT EXISTS public.backups (
			id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
			tenant_id uuid REFERENCES public.tenants(id),
			status text NOT NULL DEFAULT 'Pending',
			location text NOT NULL DEFAULT '',
			size_bytes bigint NOT NULL DEFAULT 0,
			checksum text NOT NULL DEFAULT '',
			created_at timestamptz NOT NULL DEFAULT now(),
			completed_at timestamptz,
			error text NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS backups_tenant_idx ON public.backups (tenant_id)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
