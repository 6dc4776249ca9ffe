package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/queueforge/vqueue/internal/errs"
	"github.com/queueforge/vqueue/internal/store"
)

// RetentionRepo implements store.RetentionRepository.
type RetentionRepo struct {
	Pool *pgxpool.Pool
}

func (r *RetentionRepo) List(ctx context.Context) ([]*store.RetentionPolicy, error) {
	rows, err := conn(ctx, r.Pool).Query(ctx, `
		SELECT id, entity_type, retention_period, action, criteria, active, created_at
		FROM retention_policies WHERE active = true`)
	if err != nil {
		return nil, errs.Transientf(err, "listing retention policies")
	}
	defer rows.Close()

	var out []*store.RetentionPolicy
	for rows.Next() {
		var p store.RetentionPolicy
		var criteria []byte
		if err := rows.Scan(&p.ID, &p.EntityType, &p.RetentionPeriod, &p.Action, &criteria, &p.Active, &p.CreatedAt); err != nil {
			return nil, errs.Transientf(err, "scanning retention policy")
		}
		if len(criteria) > 0 {
			_ = json.Unmarshal(criteria, &p.Criteria)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (r *RetentionRepo) Add(ctx context.Context, p *store.RetentionPolicy) error {
	criteria, _ := json.Marshal(p.Criteria)
	err := conn(ctx, r.Pool).QueryRow(ctx, `
		INSERT INTO retention_policies (entity_type, retention_period, action, criteria, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		p.EntityType, p.RetentionPeriod, p.Action, criteria, p.Active,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return errs.Transientf(err, "inserting retention policy")
	}
	return nil
}
