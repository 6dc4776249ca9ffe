package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/queueforge/vqueue/internal/errs"
	"github.com/queueforge/vqueue/internal/store"
)

type fakeAPIKeyRepo struct {
	byHash map[string]*store.ApiKey
}

func (f *fakeAPIKeyRepo) GetByHash(ctx context.Context, hash string) (*store.ApiKey, error) {
	k, ok := f.byHash[hash]
	if !ok {
		return nil, errs.NotFoundf("not found")
	}
	return k, nil
}
func (f *fakeAPIKeyRepo) List(ctx context.Context) ([]*store.ApiKey, error)            { return nil, nil }
func (f *fakeAPIKeyRepo) Add(ctx context.Context, k *store.ApiKey) error                { return nil }
func (f *fakeAPIKeyRepo) Revoke(ctx context.Context, id uuid.UUID) error                { return nil }
func (f *fakeAPIKeyRepo) TouchLastUsed(ctx context.Context, id uuid.UUID, t time.Time) error {
	return nil
}

func TestAuthenticateAcceptsValidKey(t *testing.T) {
	raw, hash, prefix, err := GenerateAPIKey("acme")
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	repo := &fakeAPIKeyRepo{byHash: map[string]*store.ApiKey{
		hash: {ID: uuid.New(), KeyHash: hash, KeyPrefix: prefix},
	}}
	auth := &APIKeyAuthenticator{Keys: repo}

	id, err := auth.Authenticate(context.Background(), raw)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if id.Role != store.RoleAPIUser {
		t.Fatalf("expected ApiUser role, got %s", id.Role)
	}
}

func TestAuthenticateRejectsRevokedKey(t *testing.T) {
	raw, hash, prefix, err := GenerateAPIKey("acme")
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	repo := &fakeAPIKeyRepo{byHash: map[string]*store.ApiKey{
		hash: {ID: uuid.New(), KeyHash: hash, KeyPrefix: prefix, Revoked: true},
	}}
	auth := &APIKeyAuthenticator{Keys: repo}

	if _, err := auth.Authenticate(context.Background(), raw); !errs.Is(err, errs.Unauthorized) {
		t.Fatalf("expected Unauthorized for revoked key, got %v", err)
	}
}

func TestAuthenticateRejectsUnknownKey(t *testing.T) {
	repo := &fakeAPIKeyRepo{byHash: map[string]*store.ApiKey{}}
	auth := &APIKeyAuthenticator{Keys: repo}

	if _, err := auth.Authenticate(context.Background(), "vq_acme_bogus"); !errs.Is(err, errs.Unauthorized) {
		t.Fatalf("expected Unauthorized for unknown key, got %v", err)
	}
}
