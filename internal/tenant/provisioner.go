package tenant

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// slugPattern restricts tenant slugs to safe identifiers usable in schema
// names built by string formatting.
var slugPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,62}$`)

// Provisioner creates and destroys tenant schemas and their tables.
type Provisioner struct {
	DB     *pgxpool.Pool
	Logger *slog.Logger
}

// Provision inserts the global tenant record, creates its schema, and lays
// down the per-tenant tables described by the data model.
func (p *Provisioner) Provision(ctx context.Context, name, domain string) (*Info, error) {
	if !slugPattern.MatchString(domain) {
		return nil, fmt.Errorf("invalid tenant domain %q: must match %s", domain, slugPattern.String())
	}

	var id uuid.UUID
	err := p.DB.QueryRow(ctx,
		`INSERT INTO public.tenants (id, name, domain, api_key, active, created_at)
		 VALUES (gen_random_uuid(), $1, $2, encode(gen_random_bytes(32), 'hex'), true, now())
		 RETURNING id`,
		name, domain,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("inserting tenant record: %w", err)
	}

	schema := SchemaName(domain)

	if _, err := p.DB.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
		_, _ = p.DB.Exec(ctx, `DELETE FROM public.tenants WHERE id = $1`, id)
		return nil, fmt.Errorf("creating schema %s: %w", schema, err)
	}

	if err := p.createTenantTables(ctx, schema); err != nil {
		_, _ = p.DB.Exec(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schema))
		_, _ = p.DB.Exec(ctx, `DELETE FROM public.tenants WHERE id = $1`, id)
		return nil, fmt.Errorf("creating tenant tables: %w", err)
	}

	p.Logger.Info("tenant provisioned", "tenant_id", id, "domain", domain, "schema", schema)

	return &Info{ID: id, Name: name, Slug: domain, Schema: schema}, nil
}

// Deprovision drops the tenant schema and soft-deletes the global record.
func (p *Provisioner) Deprovision(ctx context.Context, domain string) error {
	schema := SchemaName(domain)

	if _, err := p.DB.Exec(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schema)); err != nil {
		return fmt.Errorf("dropping schema %s: %w", schema, err)
	}

	tag, err := p.DB.Exec(ctx, `UPDATE public.tenants SET deleted = true WHERE domain = $1`, domain)
	if err != nil {
		return fmt.Errorf("soft-deleting tenant %q: %w", domain, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("tenant %q not found", domain)
	}

	p.Logger.Info("tenant deprovisioned", "domain", domain, "schema", schema)
	return nil
}

// createTenantTables lays down the tenant-scoped tables for a fresh schema.
// Safe to call with a schema name that has already passed slugPattern.
func (p *Provisioner) createTenantTables(ctx context.Context, schema string) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE %s.users (
			id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
			username text NOT NULL,
			email text NOT NULL,
			password_hash text NOT NULL,
			first_name text NOT NULL,
			last_name text NOT NULL,
			phone text,
			role text NOT NULL DEFAULT 'User',
			status text NOT NULL DEFAULT 'Pending',
			last_login_at timestamptz,
			email_verified_at timestamptz,
			phone_verified_at timestamptz,
			two_factor_enabled boolean NOT NULL DEFAULT false,
			two_factor_secret text,
			refresh_token_hash text,
			refresh_expires_at timestamptz,
			metadata jsonb NOT NULL DEFAULT '{}',
			created_at timestamptz NOT NULL DEFAULT now(),
			deleted boolean NOT NULL DEFAULT false,
			UNIQUE (username),
			UNIQUE (email)
		)`, schema),
		fmt.Sprintf(`CREATE TABLE %s.queues (
			id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
			name text NOT NULL,
			description text,
			max_concurrent_users int NOT NULL CHECK (max_concurrent_users > 0),
			release_rate_per_minute int NOT NULL DEFAULT 0 CHECK (release_rate_per_minute >= 0),
			active boolean NOT NULL DEFAULT true,
			last_release_at timestamptz,
			schedule jsonb NOT NULL DEFAULT '{}',
			version bigint NOT NULL DEFAULT 1,
			created_at timestamptz NOT NULL DEFAULT now(),
			deleted boolean NOT NULL DEFAULT false
		)`, schema),
		fmt.Sprintf(`CREATE TABLE %s.user_sessions (
			id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
			queue_id uuid NOT NULL REFERENCES %s.queues(id),
			user_identifier text NOT NULL,
			status text NOT NULL DEFAULT 'Waiting',
			priority int NOT NULL DEFAULT 1,
			enqueued_at timestamptz NOT NULL DEFAULT now(),
			released_at timestamptz,
			served_at timestamptz,
			position int NOT NULL DEFAULT 0,
			metadata jsonb NOT NULL DEFAULT '{}',
			version bigint NOT NULL DEFAULT 1
		)`, schema, schema),
		fmt.Sprintf(`CREATE UNIQUE INDEX user_sessions_active_identifier_idx ON %s.user_sessions (queue_id, user_identifier)
			WHERE status IN ('Waiting', 'Serving')`, schema),
		fmt.Sprintf(`CREATE INDEX user_sessions_queue_status_idx ON %s.user_sessions (queue_id, status, priority DESC, enqueued_at, id)`, schema),
		fmt.Sprintf(`CREATE TABLE %s.queue_events (
			id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
			queue_id uuid NOT NULL,
			session_id uuid,
			event_type text NOT NULL,
			occurred_at timestamptz NOT NULL DEFAULT now(),
			metadata jsonb NOT NULL DEFAULT '{}',
			ip text,
			user_agent text
		)`, schema),
		fmt.Sprintf(`CREATE INDEX queue_events_queue_time_idx ON %s.queue_events (queue_id, occurred_at)`, schema),
		fmt.Sprintf(`CREATE TABLE %s.api_keys (
			id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
			name text NOT NULL,
			key_hash text NOT NULL UNIQUE,
			key_prefix text NOT NULL,
			permissions jsonb NOT NULL DEFAULT '[]',
			revoked boolean NOT NULL DEFAULT false,
			created_at timestamptz NOT NULL DEFAULT now(),
			last_used_at timestamptz
		)`, schema),
		fmt.Sprintf(`CREATE TABLE %s.webhooks (
			id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
			url text NOT NULL,
			secret text NOT NULL,
			event_types jsonb NOT NULL DEFAULT '[]',
			headers jsonb NOT NULL DEFAULT '{}',
			active boolean NOT NULL DEFAULT true,
			created_at timestamptz NOT NULL DEFAULT now(),
			deleted boolean NOT NULL DEFAULT false
		)`, schema),
		fmt.Sprintf(`CREATE TABLE %s.webhook_deliveries (
			id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
			webhook_id uuid NOT NULL REFERENCES %s.webhooks(id),
			event_type text NOT NULL,
			payload jsonb NOT NULL,
			status_code int,
			retryable boolean NOT NULL DEFAULT false,
			delivered_at timestamptz,
			created_at timestamptz NOT NULL DEFAULT now()
		)`, schema, schema),
		fmt.Sprintf(`CREATE TABLE %s.retention_policies (
			id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
			entity_type text NOT NULL,
			retention_period interval NOT NULL,
			action text NOT NULL,
			criteria jsonb NOT NULL DEFAULT '{}',
			active boolean NOT NULL DEFAULT true,
			created_at timestamptz NOT NULL DEFAULT now()
		)`, schema),
		fmt.Sprintf(`CREATE TABLE %s.audit_log (
			id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
			actor text,
			action text NOT NULL,
			entity_type text NOT NULL,
			entity_id text,
			before jsonb,
			after jsonb,
			ip text,
			user_agent text,
			result text NOT NULL,
			occurred_at timestamptz NOT NULL DEFAULT now()
		)`, schema),
		fmt.Sprintf(`CREATE INDEX audit_log_time_idx ON %s.audit_log (occurred_at)`, schema),
		fmt.Sprintf(`CREATE INDEX audit_log_entity_idx ON %s.audit_log (entity_type, entity_id)`, schema),
	}

	for _, stmt := range stmts {
		if _, err := p.DB.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
