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

// SessionRepo implements store.SessionRepository.
type SessionRepo struct {
	Pool *pgxpool.Pool
}

func (r *SessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*store.UserSession, error) {
	row := conn(ctx, r.Pool).QueryRow(ctx, `
		SELECT id, queue_id, user_identifier, status, priority, enqueued_at,
		       released_at, served_at, position, metadata, version
		FROM user_sessions WHERE id = $1`, id)
	return scanSession(row)
}

func (r *SessionRepo) GetActiveByIdentifier(ctx context.Context, queueID uuid.UUID, userIdentifier string) (*store.UserSession, error) {
	row := conn(ctx, r.Pool).QueryRow(ctx, `
		SELECT id, queue_id, user_identifier, status, priority, enqueued_at,
		       released_at, served_at, position, metadata, version
		FROM user_sessions
		WHERE queue_id = $1 AND user_identifier = $2 AND status IN ('Waiting', 'Serving')`,
		queueID, userIdentifier)
	s, err := scanSession(row)
	if errs.Is(err, errs.NotFound) {
		return nil, nil
	}
	return s, err
}

func (r *SessionRepo) ListWaitingOrdered(ctx context.Context, queueID uuid.UUID) ([]*store.UserSession, error) {
	rows, err := conn(ctx, r.Pool).Query(ctx, `
		SELECT id, queue_id, user_identifier, status, priority, enqueued_at,
		       released_at, served_at, position, metadata, version
		FROM user_sessions
		WHERE queue_id = $1 AND status = 'Waiting'
		ORDER BY priority DESC, enqueued_at ASC, id ASC`, queueID)
	if err != nil {
		return nil, errs.Transientf(err, "listing waiting sessions")
	}
	defer rows.Close()
	return collectSessions(rows)
}

func (r *SessionRepo) CountActive(ctx context.Context, queueID uuid.UUID) (waiting, serving int, err error) {
	err = conn(ctx, r.Pool).QueryRow(ctx, `
		SELECT
			count(*) FILTER (WHERE status = 'Waiting'),
			count(*) FILTER (WHERE status = 'Serving')
		FROM user_sessions WHERE queue_id = $1`, queueID,
	).Scan(&waiting, &serving)
	if err != nil {
		return 0, 0, errs.Transientf(err, "counting active sessions")
	}
	return waiting, serving, nil
}

func (r *SessionRepo) Add(ctx context.Context, s *store.UserSession) error {
	meta, err := json.Marshal(s.Metadata)
	if err != nil {
		return errs.InvalidArgumentf("encoding session metadata: %v", err)
	}
	err = conn(ctx, r.Pool).QueryRow(ctx, `
		INSERT INTO user_sessions (queue_id, user_identifier, status, priority,
		                            enqueued_at, position, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, version`,
		s.QueueID, s.UserIdentifier, s.Status, s.Priority, s.EnqueuedAt, s.Position, meta,
	).Scan(&s.ID, &s.Version)
	if err != nil {
		return errs.Transientf(err, "inserting session")
	}
	return nil
}

func (r *SessionRepo) Update(ctx context.Context, s *store.UserSession) error {
	meta, err := json.Marshal(s.Metadata)
	if err != nil {
		return errs.InvalidArgumentf("encoding session metadata: %v", err)
	}
	tag, err := conn(ctx, r.Pool).Exec(ctx, `
		UPDATE user_sessions
		SET status = $1, released_at = $2, served_at = $3, position = $4,
		    metadata = $5, version = version + 1
		WHERE id = $6 AND version = $7`,
		s.Status, s.ReleasedAt, s.ServedAt, s.Position, meta, s.ID, s.Version,
	)
	if err != nil {
		return errs.Transientf(err, "updating session")
	}
	if tag.RowsAffected() == 0 {
		return errs.Conflictf("session %s was modified concurrently", s.ID)
	}
	s.Version++
	return nil
}

func (r *SessionRepo) UpdatePositions(ctx context.Context, positions map[uuid.UUID]int) error {
	if len(positions) == 0 {
		return nil
	}
	c := conn(ctx, r.Pool)
	for id, pos := range positions {
		if _, err := c.Exec(ctx, `UPDATE user_sessions SET position = $1 WHERE id = $2`, pos, id); err != nil {
			return errs.Transientf(err, "updating session position")
		}
	}
	return nil
}

func (r *SessionRepo) SessionsInRange(ctx context.Context, queueID uuid.UUID, from, to time.Time) ([]*store.UserSession, error) {
	rows, err := conn(ctx, r.Pool).Query(ctx, `
		SELECT id, queue_id, user_identifier, status, priority, enqueued_at,
		       released_at, served_at, position, metadata, version
		FROM user_sessions
		WHERE queue_id = $1 AND enqueued_at >= $2 AND enqueued_at < $3`,
		queueID, from, to)
	if err != nil {
		return nil, errs.Transientf(err, "listing sessions in range")
	}
	defer rows.Close()
	return collectSessions(rows)
}

func scanSession(row pgx.Row) (*store.UserSession, error) {
	var s store.UserSession
	var meta []byte
	err := row.Scan(&s.ID, &s.QueueID, &s.UserIdentifier, &s.Status, &s.Priority,
		&s.EnqueuedAt, &s.ReleasedAt, &s.ServedAt, &s.Position, &meta, &s.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.NotFoundf("session not found")
		}
		return nil, errs.Transientf(err, "scanning session")
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &s.Metadata); err != nil {
			return nil, errs.Transientf(err, "decoding session metadata")
		}
	}
	return &s, nil
}

func collectSessions(rows pgx.Rows) ([]*store.UserSession, error) {
	var out []*store.UserSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Transientf(err, "iterating sessions")
	}
	return out, nil
}
