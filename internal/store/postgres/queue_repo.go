// Package postgres implements internal/store's repository contracts
// against tenant-scoped PostgreSQL schemas. Methods take their connection
// from tenant.ConnFromContext(ctx), which already has search_path pinned
// to the caller's tenant schema, and fall back to the repository's Pool
// when the context carries none; BackupRepo always uses its Pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/queueforge/vqueue/internal/errs"
	"github.com/queueforge/vqueue/internal/store"
	"github.com/queueforge/vqueue/internal/tenant"
)

// QueueRepo implements store.QueueRepository.
type QueueRepo struct {
	// Fallback pool, used only when no tenant connection is present in the
	// context (e.g. background jobs that manage their own connections).
	Pool *pgxpool.Pool
}

func conn(ctx context.Context, pool *pgxpool.Pool) queryer {
	if c := tenant.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

// queryer is satisfied by both *pgxpool.Pool and *pgxpool.Conn.
type queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *QueueRepo) GetByID(ctx context.Context, id uuid.UUID) (*store.Queue, error) {
	row := conn(ctx, r.Pool).QueryRow(ctx, `
		SELECT id, name, description, max_concurrent_users, release_rate_per_minute,
		       active, last_release_at, schedule, version, created_at, deleted
		FROM queues WHERE id = $1 AND deleted = false`, id)
	return scanQueue(row)
}

func (r *QueueRepo) ListActive(ctx context.Context) ([]*store.Queue, error) {
	rows, err := conn(ctx, r.Pool).Query(ctx, `
		SELECT id, name, description, max_concurrent_users, release_rate_per_minute,
		       active, last_release_at, schedule, version, created_at, deleted
		FROM queues WHERE active = true AND deleted = false`)
	if err != nil {
		return nil, errs.Transientf(err, "listing active queues")
	}
	defer rows.Close()
	return collectQueues(rows)
}

func (r *QueueRepo) List(ctx context.Context) ([]*store.Queue, error) {
	rows, err := conn(ctx, r.Pool).Query(ctx, `
		SELECT id, name, description, max_concurrent_users, release_rate_per_minute,
		       active, last_release_at, schedule, version, created_at, deleted
		FROM queues WHERE deleted = false`)
	if err != nil {
		return nil, errs.Transientf(err, "listing queues")
	}
	defer rows.Close()
	return collectQueues(rows)
}

func (r *QueueRepo) Add(ctx context.Context, q *store.Queue) error {
	sched, err := json.Marshal(q.Schedule)
	if err != nil {
		return errs.InvalidArgumentf("encoding schedule: %v", err)
	}
	err = conn(ctx, r.Pool).QueryRow(ctx, `
		INSERT INTO queues (name, description, max_concurrent_users, release_rate_per_minute,
		                     active, schedule)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, version, created_at`,
		q.Name, q.Description, q.MaxConcurrentUsers, q.ReleaseRatePerMinute, q.Active, sched,
	).Scan(&q.ID, &q.Version, &q.CreatedAt)
	if err != nil {
		return errs.Transientf(err, "inserting queue")
	}
	return nil
}

func (r *QueueRepo) Update(ctx context.Context, q *store.Queue) error {
	sched, err := json.Marshal(q.Schedule)
	if err != nil {
		return errs.InvalidArgumentf("encoding schedule: %v", err)
	}

	tag, err := conn(ctx, r.Pool).Exec(ctx, `
		UPDATE queues
		SET name = $1, description = $2, max_concurrent_users = $3,
		    release_rate_per_minute = $4, active = $5, schedule = $6, version = version + 1
		WHERE id = $7 AND version = $8`,
		q.Name, q.Description, q.MaxConcurrentUsers, q.ReleaseRatePerMinute,
		q.Active, sched, q.ID, q.Version,
	)
	if err != nil {
		return errs.Transientf(err, "updating queue")
	}
	if tag.RowsAffected() == 0 {
		return errs.Conflictf("queue %s was modified concurrently", q.ID)
	}
	q.Version++
	return nil
}

func (r *QueueRepo) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := conn(ctx, r.Pool).Exec(ctx, `UPDATE queues SET deleted = true WHERE id = $1`, id)
	if err != nil {
		return errs.Transientf(err, "soft-deleting queue")
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFoundf("queue %s not found", id)
	}
	return nil
}

func (r *QueueRepo) AdvanceRelease(ctx context.Context, id uuid.UUID, expectedVersion int64, newLastReleaseAt time.Time) (int64, error) {
	tag, err := conn(ctx, r.Pool).Exec(ctx, `
		UPDATE queues SET last_release_at = $1, version = version + 1
		WHERE id = $2 AND version = $3`,
		newLastReleaseAt, id, expectedVersion,
	)
	if err != nil {
		return 0, errs.Transientf(err, "advancing release checkpoint")
	}
	if tag.RowsAffected() == 0 {
		return 0, errs.Conflictf("queue %s release checkpoint changed concurrently", id)
	}
	return expectedVersion + 1, nil
}

func scanQueue(row pgx.Row) (*store.Queue, error) {
	var q store.Queue
	var sched []byte
	err := row.Scan(&q.ID, &q.Name, &q.Description, &q.MaxConcurrentUsers, &q.ReleaseRatePerMinute,
		&q.Active, &q.LastReleaseAt, &sched, &q.Version, &q.CreatedAt, &q.Deleted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.NotFoundf("queue not found")
		}
		return nil, errs.Transientf(err, "scanning queue")
	}
	if len(sched) > 0 {
		if err := json.Unmarshal(sched, &q.Schedule); err != nil {
			return nil, errs.Transientf(err, "decoding queue schedule")
		}
	}
	return &q, nil
}

func collectQueues(rows pgx.Rows) ([]*store.Queue, error) {
	var out []*store.Queue
	for rows.Next() {
		q, err := scanQueue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Transientf(err, "iterating queues")
	}
	return out, nil
}
