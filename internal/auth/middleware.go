package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/queueforge/vqueue/internal/tenant"
)

// Middleware authenticates the caller via Authorization: Bearer <jwt> or
// X-API-Key, and stores the resulting Identity in the request context.
// It assumes tenant.Middleware has already run, so a tenant-scoped
// connection is in context for the API-key repository lookup.
func Middleware(tokens *TokenManager, apikeys *APIKeyAuthenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var identity *Identity

			if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
				raw := strings.TrimSpace(authHeader[len("bearer "):])
				id, err := tokens.Validate(r.Context(), raw)
				if err != nil {
					logger.Warn("session token validation failed", "error", err)
					respondErr(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
					return
				}
				identity = id
			}

			if identity == nil {
				if rawKey := r.Header.Get("X-API-Key"); rawKey != "" {
					id, err := apikeys.Authenticate(r.Context(), rawKey)
					if err != nil {
						logger.Warn("api key authentication failed", "error", err)
						respondErr(w, http.StatusUnauthorized, "unauthorized", "invalid API key")
						return
					}
					identity = id
				}
			}

			if identity == nil {
				respondErr(w, http.StatusUnauthorized, "unauthorized", "no valid authentication provided")
				return
			}

			if info := tenant.FromContext(r.Context()); info != nil {
				identity.TenantID = info.ID
			}

			ctx := NewContext(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// roleLevel maps roles to a numeric privilege level for hierarchical checks.
var roleLevel = map[string]int{
	"Admin":   40,
	"Manager": 30,
	"User":    20,
	"ApiUser": 20,
	"Guest":   10,
}

// RequireAuth rejects requests with no authenticated identity.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if FromContext(r.Context()) == nil {
			respondErr(w, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole rejects requests whose identity does not hold one of the
// listed roles, by exact match.
func RequireRole(allowed ...string) func(http.Handler) http.Handler {
	set := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		set[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := FromContext(r.Context())
			if id == nil {
				respondErr(w, http.StatusForbidden, "forbidden", "authentication required")
				return
			}
			if _, ok := set[string(id.Role)]; !ok {
				respondErr(w, http.StatusForbidden, "forbidden", "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireMinRole rejects requests whose identity has a lower privilege
// level than minRole, e.g. RequireMinRole("Manager") permits Admin too.
func RequireMinRole(minRole string) func(http.Handler) http.Handler {
	minLevel := roleLevel[minRole]
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := FromContext(r.Context())
			if id == nil {
				respondErr(w, http.StatusForbidden, "forbidden", "authentication required")
				return
			}
			if roleLevel[string(id.Role)] < minLevel {
				respondErr(w, http.StatusForbidden, "forbidden", "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
