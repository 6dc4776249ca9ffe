package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/queueforge/vqueue/internal/store"
	"github.com/queueforge/vqueue/internal/tenant"
)

// webhookPayload is the JSON body POSTed to every registered webhook.
type webhookPayload struct {
	EventType  string         `json:"event_type"`
	TenantID   uuid.UUID      `json:"tenant_id"`
	Payload    map[string]any `json:"payload"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// WebhookSink delivers events to tenant-registered HTTP endpoints, signing
// each body with the webhook's secret over HMAC-SHA256.
type WebhookSink struct {
	Hooks  store.WebhookRepository
	Client *http.Client
}

// NewWebhookSink constructs a WebhookSink with a bounded-timeout client.
func NewWebhookSink(hooks store.WebhookRepository) *WebhookSink {
	return &WebhookSink{Hooks: hooks, Client: &http.Client{Timeout: sendTimeout}}
}

func (s *WebhookSink) Channel() Channel { return ChannelWebhook }

// Send delivers msg to every active webhook subscribed to msg.EventType,
// recording each attempt via WebhookRepository.RecordDelivery. The returned
// DeliveryResult reports overall success: delivered if every subscriber
// accepted the payload.
func (s *WebhookSink) Send(ctx context.Context, msg Message) DeliveryResult {
	hooks, err := s.Hooks.ListActiveForEvent(ctx, msg.EventType)
	if err != nil {
		return DeliveryResult{Channel: ChannelWebhook, Delivered: false, Error: err.Error()}
	}
	if len(hooks) == 0 {
		return DeliveryResult{Channel: ChannelWebhook, Delivered: true}
	}

	var tenantID uuid.UUID
	if info := tenant.FromContext(ctx); info != nil {
		tenantID = info.ID
	}
	body := webhookPayload{
		EventType:  msg.EventType,
		TenantID:   tenantID,
		Payload:    msg.Payload,
		OccurredAt: time.Now(),
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return DeliveryResult{Channel: ChannelWebhook, Delivered: false, Error: err.Error()}
	}

	allDelivered := true
	var lastErr string
	for _, hook := range hooks {
		status, retryable, err := s.deliverOne(ctx, hook, raw)
		delivered := err == nil && status >= 200 && status < 300
		allDelivered = allDelivered && delivered

		rec := &store.WebhookDelivery{
			ID:         uuid.New(),
			WebhookID:  hook.ID,
			EventType:  msg.EventType,
			Payload:    msg.Payload,
			StatusCode: status,
			Retryable:  retryable,
			CreatedAt:  time.Now(),
		}
		if delivered {
			now := time.Now()
			rec.DeliveredAt = &now
		}
		_ = s.Hooks.RecordDelivery(ctx, rec)

		if err != nil {
			lastErr = err.Error()
		}
	}

	return DeliveryResult{Channel: ChannelWebhook, Delivered: allDelivered, Error: lastErr}
}

func (s *WebhookSink) deliverOne(ctx context.Context, hook *store.Webhook, body []byte) (status int, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return 0, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Vqueue-Signature", sign(hook.Secret, body))
	for k, v := range hook.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return 0, true, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return resp.StatusCode, true, fmt.Errorf("webhook %s returned %d", hook.ID, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return resp.StatusCode, false, fmt.Errorf("webhook %s returned %d", hook.ID, resp.StatusCode)
	}
	return resp.StatusCode, false, nil
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
