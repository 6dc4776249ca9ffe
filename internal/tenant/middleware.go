package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Resolver identifies the tenant slug for the current request.
type Resolver interface {
	Resolve(r *http.Request) (string, error)
}

// HeaderResolver resolves the tenant from the X-Tenant-Slug header. The
// pre-auth routes (login, refresh) use it; credentialed routes resolve the
// tenant from the request's own credential with CredentialResolver.
type HeaderResolver struct{}

func (HeaderResolver) Resolve(r *http.Request) (string, error) {
	slug := r.Header.Get("X-Tenant-Slug")
	if slug == "" {
		return "", fmt.Errorf("missing X-Tenant-Slug header")
	}
	return slug, nil
}

// Lookup resolves a tenant identity by slug or by id.
type Lookup interface {
	LookupBySlug(ctx context.Context, slug string) (id uuid.UUID, name string, active bool, err error)
	// LookupByID resolves the slug for an already-known tenant id, used
	// when the tenant was derived from an authenticated credential
	// (§4.1) rather than a request header.
	LookupByID(ctx context.Context, id uuid.UUID) (slug, name string, active bool, err error)
}

// DefaultLookup queries the public.tenants table directly.
type DefaultLookup struct {
	Pool *pgxpool.Pool
}

func (l *DefaultLookup) LookupBySlug(ctx context.Context, slug string) (uuid.UUID, string, bool, error) {
	var id uuid.UUID
	var name string
	var active bool
	err := l.Pool.QueryRow(ctx,
		`SELECT id, name, active FROM public.tenants WHERE domain = $1 AND deleted IS NOT TRUE`,
		slug,
	).Scan(&id, &name, &active)
	if err != nil {
		return uuid.Nil, "", false, fmt.Errorf("looking up tenant %q: %w", slug, err)
	}
	return id, name, active, nil
}

func (l *DefaultLookup) LookupByID(ctx context.Context, id uuid.UUID) (string, string, bool, error) {
	var slug, name string
	var active bool
	err := l.Pool.QueryRow(ctx,
		`SELECT domain, name, active FROM public.tenants WHERE id = $1 AND deleted IS NOT TRUE`,
		id,
	).Scan(&slug, &name, &active)
	if err != nil {
		return "", "", false, fmt.Errorf("looking up tenant %s: %w", id, err)
	}
	return slug, name, active, nil
}

// ErrTenantInactive is returned when a resolved tenant has active=false.
var ErrTenantInactive = errors.New("tenant: inactive")

// Middleware resolves the request's tenant slug, looks it up, acquires a
// pooled connection pinned to the tenant's schema via search_path, and
// stores both the Info and the connection in the request context. The
// connection is released when the handler returns.
func Middleware(pool *pgxpool.Pool, lookup Lookup, resolver Resolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			slug, err := resolver.Resolve(r)
			if err != nil {
				respondError(w, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			}

			id, name, active, err := lookup.LookupBySlug(r.Context(), slug)
			if err != nil {
				respondError(w, http.StatusUnauthorized, "unauthorized", "unknown tenant")
				return
			}
			if !active {
				respondError(w, http.StatusForbidden, "closed", "tenant is not active")
				return
			}

			conn, err := pool.Acquire(r.Context())
			if err != nil {
				logger.Error("acquiring tenant connection", "error", err)
				respondError(w, http.StatusServiceUnavailable, "transient", "database unavailable")
				return
			}
			defer conn.Release()

			schema := SchemaName(slug)
			if _, err := conn.Exec(r.Context(), `SELECT set_config('search_path', $1, false)`, schema); err != nil {
				logger.Error("setting search_path", "schema", schema, "error", err)
				respondError(w, http.StatusServiceUnavailable, "transient", "database unavailable")
				return
			}

			info := &Info{ID: id, Name: name, Slug: slug, Schema: schema}
			ctx := NewContext(r.Context(), info)
			ctx = NewConnContext(ctx, conn)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func respondError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":%q,"message":%q}`, kind, message)
}
