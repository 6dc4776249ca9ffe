// Package auth authenticates callers via session JWT or API key, and
// enforces role membership on protected handlers. Authorization — which
// permissions a role or API key actually holds — lives in internal/authz.
package auth

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/queueforge/vqueue/internal/store"
)

// Method identifies how the caller authenticated.
type Method string

const (
	MethodSession Method = "session"
	MethodAPIKey  Method = "api_key"
)

// Identity is the authenticated caller, attached to the request context by
// Middleware and read by authz and audit.
type Identity struct {
	Subject  string
	TenantID uuid.UUID
	UserID   *uuid.UUID
	APIKeyID *uuid.UUID
	Role     store.Role
	Method   Method
}

type contextKey string

const identityKey contextKey = "auth_identity"

// NewContext stores identity in the context.
func NewContext(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext extracts the authenticated identity, or nil if unauthenticated.
func FromContext(ctx context.Context) *Identity {
	v, _ := ctx.Value(identityKey).(*Identity)
	return v
}

func respondErr(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + kind + `","message":"` + message + `"}`))
}
