package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/queueforge/vqueue/internal/errs"
	"github.com/queueforge/vqueue/internal/store"
)

// Session issues and refreshes access/refresh token pairs, enforcing the
// Active-status and two-factor gates before minting a token.
type Session struct {
	Users        store.UserRepository
	Tokens       *TokenManager
	RefreshTTL   time.Duration
}

// Result is the outcome of a successful login or refresh.
type Result struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         *store.User
}

// Login validates a username/password (and two-factor code, if enabled),
// then issues a token pair. The user must be Active.
func (s *Session) Login(ctx context.Context, tenantID uuid.UUID, username, password, twoFactorCode string) (*Result, error) {
	u, err := s.Users.GetByUsername(ctx, username)
	if err != nil {
		if errs.Is(err, errs.NotFound) {
			return nil, errs.New(errs.Unauthorized, "invalid credentials")
		}
		return nil, err
	}
	if u.Status != store.UserActive {
		return nil, errs.New(errs.Unauthorized, "account is not active")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, errs.New(errs.Unauthorized, "invalid credentials")
	}
	if u.TwoFactorEnabled {
		if twoFactorCode == "" {
			return nil, errs.New(errs.Unauthorized, "two-factor code required")
		}
		if !VerifyTwoFactorCode(u.TwoFactorSecret, twoFactorCode) {
			return nil, errs.New(errs.Unauthorized, "invalid two-factor code")
		}
	}

	return s.issue(ctx, u, tenantID)
}

// Refresh exchanges a valid refresh token for a new token pair, blacklisting
// the prior access token (identified by priorAccessJTI/priorAccessExpiresAt,
// taken from the caller's now-expiring session) so it cannot be replayed
// alongside the new one.
func (s *Session) Refresh(ctx context.Context, tenantID, userID uuid.UUID, rawRefreshToken, priorAccessJTI string, priorAccessExpiresAt time.Time) (*Result, error) {
	u, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.RefreshTokenHash == "" || u.RefreshExpiresAt == nil || time.Now().After(*u.RefreshExpiresAt) {
		return nil, errs.New(errs.Unauthorized, "refresh token expired")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.RefreshTokenHash), []byte(rawRefreshToken)); err != nil {
		return nil, errs.New(errs.Unauthorized, "invalid refresh token")
	}

	if priorAccessJTI != "" {
		if err := s.Tokens.Revoke(ctx, priorAccessJTI, priorAccessExpiresAt); err != nil {
			return nil, fmt.Errorf("revoking prior access token: %w", err)
		}
	}

	return s.issue(ctx, u, tenantID)
}

// Logout blacklists the given access token's jti until its own expiry.
func (s *Session) Logout(ctx context.Context, jti string, expiresAt time.Time) error {
	return s.Tokens.Revoke(ctx, jti, expiresAt)
}

func (s *Session) issue(ctx context.Context, u *store.User, tenantID uuid.UUID) (*Result, error) {
	accessToken, _, expiresAt, err := s.Tokens.Issue(u, tenantID)
	if err != nil {
		return nil, fmt.Errorf("issuing access token: %w", err)
	}

	rawRefresh, err := randomToken()
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(rawRefresh), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing refresh token: %w", err)
	}

	now := time.Now().UTC()
	refreshExpiresAt := now.Add(s.RefreshTTL)
	u.RefreshTokenHash = string(hash)
	u.RefreshExpiresAt = &refreshExpiresAt
	u.LastLoginAt = &now
	if err := s.Users.Update(ctx, u); err != nil {
		return nil, err
	}

	return &Result{
		AccessToken:  accessToken,
		RefreshToken: rawRefresh,
		ExpiresAt:    expiresAt,
		User:         u,
	}, nil
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating refresh token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
