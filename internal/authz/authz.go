// Package authz resolves role and API-key permissions and answers
// authorize(tenant, principal, resource, action) queries, with a 5-minute
// cache in front of the (static) permission tables.
package authz

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/queueforge/vqueue/internal/cache"
	"github.com/queueforge/vqueue/internal/store"
)

const cacheTTL = 5 * time.Minute

// rolePermissions is the fixed permission set granted to each built-in role.
var rolePermissions = map[store.Role][]string{
	store.RoleAdmin: {
		"queue.create", "queue.read", "queue.update", "queue.delete",
		"user.create", "user.read", "user.update", "user.delete",
		"tenant.create", "tenant.read", "tenant.update", "tenant.delete",
		"analytics.read", "system.*",
	},
	store.RoleManager: {
		"queue.create", "queue.read", "queue.update",
		"user.read", "user.update",
		"analytics.read",
	},
	store.RoleUser: {
		"queue.read", "queue.update",
		"user.read",
	},
	store.RoleGuest: {
		"queue.join", "queue.read",
	},
}

// Authorizer answers authorization checks for a role or, for ApiUser
// principals, the permission list stamped on the api key itself.
type Authorizer struct {
	Cache *cache.Cache
	group singleflight.Group
}

// New constructs an Authorizer.
func New(c *cache.Cache) *Authorizer {
	return &Authorizer{Cache: c}
}

// Authorize reports whether principal (identified by principalID, holding
// role, and — for ApiUser — apiKeyPermissions) may perform resource.action
// in tenant. Results are cached for 5 minutes keyed on the tuple.
func (a *Authorizer) Authorize(ctx context.Context, tenantID, principalID string, role store.Role, apiKeyPermissions []string, resource, action string) (bool, error) {
	perm := fmt.Sprintf("%s.%s", resource, action)
	key := cache.PermissionKey(tenantID, principalID, perm)

	var cached bool
	if err := a.Cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	groupKey := key
	result, err, _ := a.group.Do(groupKey, func() (any, error) {
		allowed := a.evaluate(role, apiKeyPermissions, resource, action)
		_ = a.Cache.Set(ctx, key, allowed, cacheTTL)
		return allowed, nil
	})
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}

// Invalidate wipes every cached permission decision for principalID in
// tenant, forcing the next Authorize call to re-evaluate.
func (a *Authorizer) Invalidate(ctx context.Context, tenantID, principalID string) error {
	return a.Cache.RemoveByPattern(ctx, fmt.Sprintf("permission:%s:%s:*", tenantID, principalID))
}

func (a *Authorizer) evaluate(role store.Role, apiKeyPermissions []string, resource, action string) bool {
	perm := fmt.Sprintf("%s.%s", resource, action)
	wildcard := resource + ".*"

	var grants []string
	if role == store.RoleAPIUser {
		grants = apiKeyPermissions
	} else {
		grants = rolePermissions[role]
	}

	for _, g := range grants {
		if g == perm || g == wildcard {
			return true
		}
	}
	return false
}
