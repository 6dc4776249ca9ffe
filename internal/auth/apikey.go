package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"github.com/queueforge/vqueue/internal/errs"
	"github.com/queueforge/vqueue/internal/store"
)

// APIKeyPrefix is the fixed literal prefix of every issued API key, before
// the tenant slug and the random suffix.
const APIKeyPrefix = "vq"

// HashAPIKey returns the stored lookup hash for a raw API key. Keys are
// high-entropy random strings, so a fast hash (not bcrypt/argon2) is
// sufficient and keeps the hot-path lookup cheap.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// GenerateAPIKey mints a new opaque credential "vq_{tenantSlug}_{64 hex}"
// and its lookup hash.
func GenerateAPIKey(tenantSlug string) (raw, hash, prefix string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", "", fmt.Errorf("generating api key: %w", err)
	}
	suffix := hex.EncodeToString(buf)
	raw = fmt.Sprintf("%s_%s_%s", APIKeyPrefix, tenantSlug, suffix)
	prefix = raw[:len(APIKeyPrefix)+len(tenantSlug)+9]
	return raw, HashAPIKey(raw), prefix, nil
}

// APIKeyAuthenticator resolves a raw API key to an Identity.
type APIKeyAuthenticator struct {
	Keys store.ApiKeyRepository
}

// Authenticate looks up rawKey by its hash and rejects revoked keys.
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, rawKey string) (*Identity, error) {
	if rawKey == "" {
		return nil, errs.New(errs.Unauthorized, "empty API key")
	}
	hash := HashAPIKey(rawKey)

	key, err := a.Keys.GetByHash(ctx, hash)
	if err != nil {
		if errs.Is(err, errs.NotFound) {
			return nil, errs.New(errs.Unauthorized, "invalid API key")
		}
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(key.KeyHash), []byte(hash)) != 1 {
		return nil, errs.New(errs.Unauthorized, "invalid API key")
	}
	if key.Revoked {
		return nil, errs.New(errs.Unauthorized, "API key revoked")
	}

	return &Identity{
		Subject:  fmt.Sprintf("apikey:%s", key.KeyPrefix),
		APIKeyID: &key.ID,
		Role:     store.RoleAPIUser,
		Method:   MethodAPIKey,
	}, nil
}
