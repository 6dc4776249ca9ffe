package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/queueforge/vqueue/internal/errs"
	"github.com/queueforge/vqueue/internal/store"
)

// WebhookRepo implements store.WebhookRepository.
type WebhookRepo struct {
	Pool *pgxpool.Pool
}

func (r *WebhookRepo) GetByID(ctx context.Context, id uuid.UUID) (*store.Webhook, error) {
	row := conn(ctx, r.Pool).QueryRow(ctx, `
		SELECT id, url, secret, event_types, headers, active, created_at, deleted
		FROM webhooks WHERE id = $1 AND deleted = false`, id)
	return scanWebhook(row)
}

func (r *WebhookRepo) ListActiveForEvent(ctx context.Context, eventType string) ([]*store.Webhook, error) {
	rows, err := conn(ctx, r.Pool).Query(ctx, `
		SELECT id, url, secret, event_types, headers, active, created_at, deleted
		FROM webhooks
		WHERE active = true AND deleted = false AND event_types @> to_jsonb($1::text)`, eventType)
	if err != nil {
		return nil, errs.Transientf(err, "listing webhooks for event %q", eventType)
	}
	defer rows.Close()
	return collectWebhooks(rows)
}

func (r *WebhookRepo) List(ctx context.Context) ([]*store.Webhook, error) {
	rows, err := conn(ctx, r.Pool).Query(ctx, `
		SELECT id, url, secret, event_types, headers, active, created_at, deleted
		FROM webhooks WHERE deleted = false`)
	if err != nil {
		return nil, errs.Transientf(err, "listing webhooks")
	}
	defer rows.Close()
	return collectWebhooks(rows)
}

func (r *WebhookRepo) Add(ctx context.Context, w *store.Webhook) error {
	events, _ := json.Marshal(w.EventTypes)
	headers, _ := json.Marshal(w.Headers)
	err := conn(ctx, r.Pool).QueryRow(ctx, `
		INSERT INTO webhooks (url, secret, event_types, headers, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		w.URL, w.Secret, events, headers, w.Active,
	).Scan(&w.ID, &w.CreatedAt)
	if err != nil {
		return errs.Transientf(err, "inserting webhook")
	}
	return nil
}

func (r *WebhookRepo) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := conn(ctx, r.Pool).Exec(ctx, `UPDATE webhooks SET deleted = true WHERE id = $1`, id)
	if err != nil {
		return errs.Transientf(err, "soft-deleting webhook")
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFoundf("webhook %s not found", id)
	}
	return nil
}

func (r *WebhookRepo) RecordDelivery(ctx context.Context, d *store.WebhookDelivery) error {
	payload, _ := json.Marshal(d.Payload)
	err := conn(ctx, r.Pool).QueryRow(ctx, `
		INSERT INTO webhook_deliveries (webhook_id, event_type, payload, status_code, retryable, delivered_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		d.WebhookID, d.EventType, payload, d.StatusCode, d.Retryable, d.DeliveredAt,
	).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		return errs.Transientf(err, "recording webhook delivery")
	}
	return nil
}

func (r *WebhookRepo) ListDeliveries(ctx context.Context, webhookID uuid.UUID) ([]*store.WebhookDelivery, error) {
	rows, err := conn(ctx, r.Pool).Query(ctx, `
		SELECT id, webhook_id, event_type, payload, status_code, retryable, delivered_at, created_at
		FROM webhook_deliveries WHERE webhook_id = $1 ORDER BY created_at DESC`, webhookID)
	if err != nil {
		return nil, errs.Transientf(err, "listing webhook deliveries")
	}
	defer rows.Close()

	var out []*store.WebhookDelivery
	for rows.Next() {
		var d store.WebhookDelivery
		var payload []byte
		if err := rows.Scan(&d.ID, &d.WebhookID, &d.EventType, &payload, &d.StatusCode, &d.Retryable, &d.DeliveredAt, &d.CreatedAt); err != nil {
			return nil, errs.Transientf(err, "scanning webhook delivery")
		}
		if len(payload) > 0 {
			_ = json.Unmarshal(payload, &d.Payload)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

func scanWebhook(row pgx.Row) (*store.Webhook, error) {
	var w store.Webhook
	var events, headers []byte
	err := row.Scan(&w.ID, &w.URL, &w.Secret, &events, &headers, &w.Active, &w.CreatedAt, &w.Deleted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.NotFoundf("webhook not found")
		}
		return nil, errs.Transientf(err, "scanning webhook")
	}
	if len(events) > 0 {
		_ = json.Unmarshal(events, &w.EventTypes)
	}
	if len(headers) > 0 {
		_ = json.Unmarshal(headers, &w.Headers)
	}
	return &w, nil
}

func collectWebhooks(rows pgx.Rows) ([]*store.Webhook, error) {
	var out []*store.Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
