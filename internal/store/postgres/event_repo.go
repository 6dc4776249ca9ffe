package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/queueforge/vqueue/internal/errs"
	"github.com/queueforge/vqueue/internal/store"
)

// QueueEventRepo implements store.QueueEventRepository.
type QueueEventRepo struct {
	Pool *pgxpool.Pool
}

func (r *QueueEventRepo) Add(ctx context.Context, e *store.QueueEvent) error {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return errs.InvalidArgumentf("encoding event metadata: %v", err)
	}
	err = conn(ctx, r.Pool).QueryRow(ctx, `
		INSERT INTO queue_events (queue_id, session_id, event_type, occurred_at, metadata, ip, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		e.QueueID, e.SessionID, e.EventType, e.Timestamp, meta, e.IP, e.UserAgent,
	).Scan(&e.ID)
	if err != nil {
		return errs.Transientf(err, "inserting queue event")
	}
	return nil
}

func (r *QueueEventRepo) ListByQueue(ctx context.Context, queueID uuid.UUID, from, to time.Time) ([]*store.QueueEvent, error) {
	rows, err := conn(ctx, r.Pool).Query(ctx, `
		SELECT id, queue_id, session_id, event_type, occurred_at, metadata, ip, user_agent
		FROM queue_events
		WHERE queue_id = $1 AND occurred_at >= $2 AND occurred_at < $3
		ORDER BY occurred_at ASC`, queueID, from, to)
	if err != nil {
		return nil, errs.Transientf(err, "listing queue events")
	}
	defer rows.Close()

	var out []*store.QueueEvent
	for rows.Next() {
		var e store.QueueEvent
		var meta []byte
		if err := rows.Scan(&e.ID, &e.QueueID, &e.SessionID, &e.EventType, &e.Timestamp, &meta, &e.IP, &e.UserAgent); err != nil {
			return nil, errs.Transientf(err, "scanning queue event")
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &e.Metadata)
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Transientf(err, "iterating queue events")
	}
	return out, nil
}
