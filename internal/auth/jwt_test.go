package auth

import (
	"context"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"

	"github.com/queueforge/vqueue/internal/errs"
	"github.com/queueforge/vqueue/internal/store"
)

type memBlacklist struct {
	jtis map[string]bool
}

func newMemBlacklist() *memBlacklist { return &memBlacklist{jtis: make(map[string]bool)} }

func (b *memBlacklist) Add(ctx context.Context, jti string, ttl time.Duration) error {
	b.jtis[jti] = true
	return nil
}

func (b *memBlacklist) Contains(ctx context.Context, jti string) (bool, error) {
	return b.jtis[jti], nil
}

func testTokenManager(t *testing.T, bl Blacklist) *TokenManager {
	t.Helper()
	tm, err := NewTokenManager("a-secret-at-least-32-bytes-long!", time.Minute*15, bl)
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	return tm
}

func TestIssueThenValidateRoundTrip(t *testing.T) {
	tm := testTokenManager(t, newMemBlacklist())
	u := &store.User{ID: uuid.New(), Username: "alice", Role: store.RoleUser}
	tenantID := uuid.New()

	token, jti, _, err := tm.Issue(u, tenantID)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if jti == "" {
		t.Fatal("expected non-empty jti")
	}

	id, err := tm.Validate(context.Background(), token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if id.TenantID != tenantID || *id.UserID != u.ID || id.Role != store.RoleUser {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestValidateRejectsBlacklistedToken(t *testing.T) {
	bl := newMemBlacklist()
	tm := testTokenManager(t, bl)
	u := &store.User{ID: uuid.New(), Username: "alice", Role: store.RoleUser}

	token, jti, expiresAt, err := tm.Issue(u, uuid.New())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := tm.Revoke(context.Background(), jti, expiresAt); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	_, err = tm.Validate(context.Background(), token)
	if !errs.Is(err, errs.Unauthorized) {
		t.Fatalf("expected Unauthorized for blacklisted token, got %v", err)
	}
}

func TestValidateRejectsWrongAudience(t *testing.T) {
	tm := testTokenManager(t, newMemBlacklist())

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: tm.signingKey}, (&jose.SignerOptions{}).WithType("JWT"))
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	now := time.Now().UTC()
	registered := jwt.Claims{
		Subject:  uuid.New().String(),
		Issuer:   "vqueue",
		Audience: jwt.Audience{"some-other-api"},
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(time.Minute)),
		ID:       uuid.NewString(),
	}
	custom := Claims{Subject: "alice", TenantID: uuid.New().String(), Role: string(store.RoleUser), JTI: registered.ID, Audience: "some-other-api"}

	token, err := jwt.Signed(signer).Claims(registered).Claims(custom).Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	if _, err := tm.Validate(context.Background(), token); !errs.Is(err, errs.Unauthorized) {
		t.Fatalf("expected Unauthorized for audience mismatch, got %v", err)
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	tm := testTokenManager(t, newMemBlacklist())
	if _, err := tm.Validate(context.Background(), "not-a-jwt"); err == nil {
		t.Fatal("expected error for malformed token")
	}
}
