package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/queueforge/vqueue/internal/errs"
	"github.com/queueforge/vqueue/internal/store"
)

// ApiKeyRepo implements store.ApiKeyRepository.
type ApiKeyRepo struct {
	Pool *pgxpool.Pool
}

func (r *ApiKeyRepo) GetByHash(ctx context.Context, hash string) (*store.ApiKey, error) {
	row := conn(ctx, r.Pool).QueryRow(ctx, `
		SELECT id, name, key_hash, key_prefix, permissions, revoked, created_at, last_used_at
		FROM api_keys WHERE key_hash = $1`, hash)
	return scanAPIKey(row)
}

func (r *ApiKeyRepo) List(ctx context.Context) ([]*store.ApiKey, error) {
	rows, err := conn(ctx, r.Pool).Query(ctx, `
		SELECT id, name, key_hash, key_prefix, permissions, revoked, created_at, last_used_at
		FROM api_keys ORDER BY created_at DESC`)
	if err != nil {
		return nil, errs.Transientf(err, "listing api keys")
	}
	defer rows.Close()

	var out []*store.ApiKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (r *ApiKeyRepo) Add(ctx context.Context, k *store.ApiKey) error {
	perms, _ := json.Marshal(k.Permissions)
	err := conn(ctx, r.Pool).QueryRow(ctx, `
		INSERT INTO api_keys (name, key_hash, key_prefix, permissions)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		k.Name, k.KeyHash, k.KeyPrefix, perms,
	).Scan(&k.ID, &k.CreatedAt)
	if err != nil {
		return errs.Transientf(err, "inserting api key")
	}
	return nil
}

func (r *ApiKeyRepo) Revoke(ctx context.Context, id uuid.UUID) error {
	tag, err := conn(ctx, r.Pool).Exec(ctx, `UPDATE api_keys SET revoked = true WHERE id = $1`, id)
	if err != nil {
		return errs.Transientf(err, "revoking api key")
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFoundf("api key %s not found", id)
	}
	return nil
}

func (r *ApiKeyRepo) TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	if _, err := conn(ctx, r.Pool).Exec(ctx, `UPDATE api_keys SET last_used_at = $1 WHERE id = $2`, at, id); err != nil {
		return errs.Transientf(err, "touching api key last_used_at")
	}
	return nil
}

func scanAPIKey(row pgx.Row) (*store.ApiKey, error) {
	var k store.ApiKey
	var perms []byte
	err := row.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &perms, &k.Revoked, &k.CreatedAt, &k.LastUsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.NotFoundf("api key not found")
		}
		return nil, errs.Transientf(err, "scanning api key")
	}
	if len(perms) > 0 {
		_ = json.Unmarshal(perms, &k.Permissions)
	}
	return &k, nil
}
