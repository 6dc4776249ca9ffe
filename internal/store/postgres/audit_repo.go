package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/queueforge/vqueue/internal/errs"
	"github.com/queueforge/vqueue/internal/store"
)

// AuditRepo implements store.AuditRepository.
type AuditRepo struct {
	Pool *pgxpool.Pool
}

func (r *AuditRepo) Add(ctx context.Context, e *store.AuditEntry) error {
	before, _ := json.Marshal(e.Before)
	after, _ := json.Marshal(e.After)
	err := conn(ctx, r.Pool).QueryRow(ctx, `
		INSERT INTO audit_log (actor, action, entity_type, entity_id, before, after, ip, user_agent, result, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		e.Actor, e.Action, e.EntityType, e.EntityID, before, after, e.IP, e.UserAgent, e.Result, e.OccurredAt,
	).Scan(&e.ID)
	if err != nil {
		return errs.Transientf(err, "inserting audit entry")
	}
	return nil
}

func (r *AuditRepo) ListByTimeRange(ctx context.Context, from, to time.Time) ([]*store.AuditEntry, error) {
	rows, err := conn(ctx, r.Pool).Query(ctx, `
		SELECT id, actor, action, entity_type, entity_id, before, after, ip, user_agent, result, occurred_at
		FROM audit_log WHERE occurred_at >= $1 AND occurred_at < $2 ORDER BY occurred_at ASC`, from, to)
	if err != nil {
		return nil, errs.Transientf(err, "listing audit entries by time range")
	}
	defer rows.Close()
	return collectAuditEntries(rows)
}

func (r *AuditRepo) ListByEntity(ctx context.Context, entityType, entityID string) ([]*store.AuditEntry, error) {
	rows, err := conn(ctx, r.Pool).Query(ctx, `
		SELECT id, actor, action, entity_type, entity_id, before, after, ip, user_agent, result, occurred_at
		FROM audit_log WHERE entity_type = $1 AND entity_id = $2 ORDER BY occurred_at ASC`, entityType, entityID)
	if err != nil {
		return nil, errs.Transientf(err, "listing audit entries by entity")
	}
	defer rows.Close()
	return collectAuditEntries(rows)
}

func (r *AuditRepo) ListByActor(ctx context.Context, actor string) ([]*store.AuditEntry, error) {
	rows, err := conn(ctx, r.Pool).Query(ctx, `
		SELECT id, actor, action, entity_type, entity_id, before, after, ip, user_agent, result, occurred_at
		FROM audit_log WHERE actor = $1 ORDER BY occurred_at ASC`, actor)
	if err != nil {
		return nil, errs.Transientf(err, "listing audit entries by actor")
	}
	defer rows.Close()
	return collectAuditEntries(rows)
}

func (r *AuditRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := conn(ctx, r.Pool).Exec(ctx, `DELETE FROM audit_log WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, errs.Transientf(err, "archiving old audit entries")
	}
	return tag.RowsAffected(), nil
}

func collectAuditEntries(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]*store.AuditEntry, error) {
	var out []*store.AuditEntry
	for rows.Next() {
		var e store.AuditEntry
		var before, after []byte
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.EntityType, &e.EntityID, &before, &after, &e.IP, &e.UserAgent, &e.Result, &e.OccurredAt); err != nil {
			return nil, errs.Transientf(err, "scanning audit entry")
		}
		if len(before) > 0 {
			_ = json.Unmarshal(before, &e.Before)
		}
		if len(after) > 0 {
			_ = json.Unmarshal(after, &e.After)
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Transientf(err, "iterating audit entries")
	}
	return out, nil
}
