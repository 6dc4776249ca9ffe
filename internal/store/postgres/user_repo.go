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

// UserRepo implements store.UserRepository. Phone and email are encrypted
// at rest by an EncryptedFieldCodec; callers always see plaintext.
type UserRepo struct {
	Pool  *pgxpool.Pool
	Codec *EncryptedFieldCodec
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*store.User, error) {
	row := conn(ctx, r.Pool).QueryRow(ctx, userSelectColumns+` FROM users WHERE id = $1 AND deleted = false`, id)
	return r.scanUser(row)
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*store.User, error) {
	row := conn(ctx, r.Pool).QueryRow(ctx, userSelectColumns+` FROM users WHERE username = $1 AND deleted = false`, username)
	return r.scanUser(row)
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*store.User, error) {
	encEmail, err := r.Codec.Encrypt(email)
	if err != nil {
		return nil, errs.InvalidArgumentf("encrypting email lookup: %v", err)
	}
	row := conn(ctx, r.Pool).QueryRow(ctx, userSelectColumns+` FROM users WHERE email = $1 AND deleted = false`, encEmail)
	return r.scanUser(row)
}

func (r *UserRepo) Add(ctx context.Context, u *store.User) error {
	meta, err := json.Marshal(u.Metadata)
	if err != nil {
		return errs.InvalidArgumentf("encoding user metadata: %v", err)
	}
	encEmail, err := r.Codec.Encrypt(u.Email)
	if err != nil {
		return errs.InvalidArgumentf("encrypting email: %v", err)
	}
	encPhone, err := r.Codec.Encrypt(u.Phone)
	if err != nil {
		return errs.InvalidArgumentf("encrypting phone: %v", err)
	}

	err = conn(ctx, r.Pool).QueryRow(ctx, `
		INSERT INTO users (username, email, password_hash, first_name, last_name, phone,
		                    role, status, two_factor_enabled, two_factor_secret, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at`,
		u.Username, encEmail, u.PasswordHash, u.FirstName, u.LastName, encPhone,
		u.Role, u.Status, u.TwoFactorEnabled, u.TwoFactorSecret, meta,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return errs.Transientf(err, "inserting user")
	}
	return nil
}

func (r *UserRepo) Update(ctx context.Context, u *store.User) error {
	meta, err := json.Marshal(u.Metadata)
	if err != nil {
		return errs.InvalidArgumentf("encoding user metadata: %v", err)
	}
	encEmail, err := r.Codec.Encrypt(u.Email)
	if err != nil {
		return errs.InvalidArgumentf("encrypting email: %v", err)
	}
	encPhone, err := r.Codec.Encrypt(u.Phone)
	if err != nil {
		return errs.InvalidArgumentf("encrypting phone: %v", err)
	}

	tag, err := conn(ctx, r.Pool).Exec(ctx, `
		UPDATE users SET email = $1, first_name = $2, last_name = $3, phone = $4,
		    role = $5, status = $6, last_login_at = $7, two_factor_enabled = $8,
		    two_factor_secret = $9, refresh_token_hash = $10, refresh_expires_at = $11, metadata = $12
		WHERE id = $13`,
		encEmail, u.FirstName, u.LastName, encPhone, u.Role, u.Status, u.LastLoginAt,
		u.TwoFactorEnabled, u.TwoFactorSecret, u.RefreshTokenHash, u.RefreshExpiresAt, meta, u.ID,
	)
	if err != nil {
		return errs.Transientf(err, "updating user")
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFoundf("user %s not found", u.ID)
	}
	return nil
}

func (r *UserRepo) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := conn(ctx, r.Pool).Exec(ctx, `UPDATE users SET deleted = true WHERE id = $1`, id)
	if err != nil {
		return errs.Transientf(err, "soft-deleting user")
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFoundf("user %s not found", id)
	}
	return nil
}

const userSelectColumns = `
	SELECT id, username, email, password_hash, first_name, last_name, phone,
	       role, status, last_login_at, email_verified_at, phone_verified_at,
	       two_factor_enabled, two_factor_secret, refresh_token_hash, refresh_expires_at,
	       metadata, created_at, deleted`

func (r *UserRepo) scanUser(row pgx.Row) (*store.User, error) {
	var u store.User
	var meta []byte
	var encEmail, encPhone string
	err := row.Scan(&u.ID, &u.Username, &encEmail, &u.PasswordHash, &u.FirstName, &u.LastName, &encPhone,
		&u.Role, &u.Status, &u.LastLoginAt, &u.EmailVerifiedAt, &u.PhoneVerifiedAt,
		&u.TwoFactorEnabled, &u.TwoFactorSecret, &u.RefreshTokenHash, &u.RefreshExpiresAt,
		&meta, &u.CreatedAt, &u.Deleted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.NotFoundf("user not found")
		}
		return nil, errs.Transientf(err, "scanning user")
	}

	u.Email, err = r.Codec.Decrypt(encEmail)
	if err != nil {
		return nil, errs.Transientf(err, "decrypting email")
	}
	u.Phone, err = r.Codec.Decrypt(encPhone)
	if err != nil {
		return nil, errs.Transientf(err, "decrypting phone")
	}
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &u.Metadata)
	}
	return &u, nil
}

// touchLastLogin returns a pointer to a copy of t.
func touchLastLogin(t time.Time) *time.Time { return &t }
