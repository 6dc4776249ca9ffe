package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"

	"github.com/queueforge/vqueue/internal/errs"
	"github.com/queueforge/vqueue/internal/store"
)

// tokenAudience is the single audience every access token is issued for and
// validated against.
const tokenAudience = "vqueue-api"

// Claims are the contents of a session access token: {subject, tenant_id,
// roles, jti, aud, iat, exp}.
type Claims struct {
	Subject  string `json:"sub"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
	JTI      string `json:"jti"`
	Audience string `json:"aud"`
}

// Blacklist reports and records revoked token ids (jti), backed by
// internal/cache so an entry expires naturally at the token's own TTL.
type Blacklist interface {
	Add(ctx context.Context, jti string, ttl time.Duration) error
	Contains(ctx context.Context, jti string) (bool, error)
}

// TokenManager issues and validates HMAC-signed session access tokens.
type TokenManager struct {
	signingKey []byte
	accessTTL  time.Duration
	blacklist  Blacklist
}

// NewTokenManager creates a TokenManager. secret must be at least 32 bytes.
func NewTokenManager(secret string, accessTTL time.Duration, blacklist Blacklist) (*TokenManager, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("auth: session secret must be at least 32 bytes, got %d", len(secret))
	}
	return &TokenManager{signingKey: []byte(secret), accessTTL: accessTTL, blacklist: blacklist}, nil
}

// Issue mints a signed access token for the given user, bound to the
// user's Active status by the caller (Issue itself does not check it).
func (m *TokenManager) Issue(u *store.User, tenantID uuid.UUID) (token, jti string, expiresAt time.Time, err error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: m.signingKey},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("creating signer: %w", err)
	}

	now := time.Now().UTC()
	expiresAt = now.Add(m.accessTTL)
	jti = uuid.NewString()

	registered := jwt.Claims{
		Subject:   u.ID.String(),
		Issuer:    "vqueue",
		Audience:  jwt.Audience{tokenAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		Expiry:    jwt.NewNumericDate(expiresAt),
		ID:        jti,
	}
	custom := Claims{
		Subject:  u.Username,
		TenantID: tenantID.String(),
		Role:     string(u.Role),
		JTI:      jti,
		Audience: tokenAudience,
	}

	token, err = jwt.Signed(signer).Claims(registered).Claims(custom).Serialize()
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return token, jti, expiresAt, nil
}

// Validate verifies signature, expiry, issuer, and blacklist membership,
// returning the resolved Identity.
func (m *TokenManager) Validate(ctx context.Context, raw string) (*Identity, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, errs.New(errs.Unauthorized, "malformed token")
	}

	var registered jwt.Claims
	var custom Claims
	if err := tok.Claims(m.signingKey, &registered, &custom); err != nil {
		return nil, errs.New(errs.Unauthorized, "invalid token signature")
	}

	if err := registered.ValidateWithLeeway(jwt.Expected{
		Issuer:   "vqueue",
		Audience: jwt.Audience{tokenAudience},
		Time:     time.Now(),
	}, 5*time.Second); err != nil {
		return nil, errs.New(errs.Unauthorized, "token expired, not yet valid, or audience mismatch")
	}

	if custom.JTI == "" {
		return nil, errs.New(errs.Unauthorized, "token missing jti")
	}
	if custom.Audience != tokenAudience {
		return nil, errs.New(errs.Unauthorized, "token audience mismatch")
	}
	if m.blacklist != nil {
		blacklisted, err := m.blacklist.Contains(ctx, custom.JTI)
		if err != nil {
			return nil, errs.Transientf(err, "checking token blacklist")
		}
		if blacklisted {
			return nil, errs.New(errs.Unauthorized, "token has been revoked")
		}
	}

	userID, err := uuid.Parse(registered.Subject)
	if err != nil {
		return nil, errs.New(errs.Unauthorized, "invalid subject claim")
	}
	tenantID, err := uuid.Parse(custom.TenantID)
	if err != nil {
		return nil, errs.New(errs.Unauthorized, "invalid tenant_id claim")
	}

	return &Identity{
		Subject:  custom.Subject,
		TenantID: tenantID,
		UserID:   &userID,
		Role:     store.Role(custom.Role),
		Method:   MethodSession,
	}, nil
}

// Revoke blacklists jti until its original expiry, so Logout and Refresh
// invalidate the prior token immediately.
func (m *TokenManager) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if m.blacklist == nil {
		return nil
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	return m.blacklist.Add(ctx, jti, ttl)
}
