package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/queueforge/vqueue/internal/errs"
	"github.com/queueforge/vqueue/internal/store"
)

type memUsers struct {
	byID map[uuid.UUID]*store.User
}

func newMemUsers(users ...*store.User) *memUsers {
	m := &memUsers{byID: make(map[uuid.UUID]*store.User)}
	for _, u := range users {
		m.byID[u.ID] = u
	}
	return m
}

func (m *memUsers) GetByID(ctx context.Context, id uuid.UUID) (*store.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return nil, errs.New(errs.NotFound, "user not found")
	}
	return u, nil
}

func (m *memUsers) GetByUsername(ctx context.Context, username string) (*store.User, error) {
	for _, u := range m.byID {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, errs.New(errs.NotFound, "user not found")
}

func (m *memUsers) GetByEmail(ctx context.Context, email string) (*store.User, error) {
	for _, u := range m.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, errs.New(errs.NotFound, "user not found")
}

func (m *memUsers) Add(ctx context.Context, u *store.User) error {
	m.byID[u.ID] = u
	return nil
}

func (m *memUsers) Update(ctx context.Context, u *store.User) error {
	m.byID[u.ID] = u
	return nil
}

func (m *memUsers) SoftDelete(ctx context.Context, id uuid.UUID) error {
	delete(m.byID, id)
	return nil
}

func TestRefreshBlacklistsPriorAccessToken(t *testing.T) {
	bl := newMemBlacklist()
	tm := testTokenManager(t, bl)

	rawRefresh := "a-raw-refresh-token"
	hash, err := bcrypt.GenerateFromPassword([]byte(rawRefresh), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword: %v", err)
	}
	refreshExpiresAt := time.Now().Add(time.Hour)
	u := &store.User{
		ID:               uuid.New(),
		Username:         "alice",
		Status:           store.UserActive,
		RefreshTokenHash: string(hash),
		RefreshExpiresAt: &refreshExpiresAt,
	}

	s := &Session{Users: newMemUsers(u), Tokens: tm, RefreshTTL: time.Hour}

	priorAccessToken, priorJTI, priorExpiresAt, err := tm.Issue(u, uuid.New())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := tm.Validate(context.Background(), priorAccessToken); err != nil {
		t.Fatalf("expected prior access token to validate before refresh: %v", err)
	}

	if _, err := s.Refresh(context.Background(), uuid.New(), u.ID, rawRefresh, priorJTI, priorExpiresAt); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if _, err := tm.Validate(context.Background(), priorAccessToken); !errs.Is(err, errs.Unauthorized) {
		t.Fatalf("expected prior access token to be blacklisted after refresh, got %v", err)
	}
}

func TestRefreshRejectsExpiredRefreshToken(t *testing.T) {
	tm := testTokenManager(t, newMemBlacklist())

	rawRefresh := "a-raw-refresh-token"
	hash, err := bcrypt.GenerateFromPassword([]byte(rawRefresh), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword: %v", err)
	}
	expired := time.Now().Add(-time.Minute)
	u := &store.User{
		ID:               uuid.New(),
		Username:         "alice",
		Status:           store.UserActive,
		RefreshTokenHash: string(hash),
		RefreshExpiresAt: &expired,
	}

	s := &Session{Users: newMemUsers(u), Tokens: tm, RefreshTTL: time.Hour}

	if _, err := s.Refresh(context.Background(), uuid.New(), u.ID, rawRefresh, "", time.Time{}); !errs.Is(err, errs.Unauthorized) {
		t.Fatalf("expected Unauthorized for expired refresh token, got %v", err)
	}
}
