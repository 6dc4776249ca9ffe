package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/queueforge/vqueue/internal/store"
)

type fakeWebhookRepo struct {
	active     []*store.Webhook
	deliveries []*store.WebhookDelivery
}

func (f *fakeWebhookRepo) GetByID(ctx context.Context, id uuid.UUID) (*store.Webhook, error) {
	return nil, nil
}
func (f *fakeWebhookRepo) ListActiveForEvent(ctx context.Context, eventType string) ([]*store.Webhook, error) {
	return f.active, nil
}
func (f *fakeWebhookRepo) List(ctx context.Context) ([]*store.Webhook, error) { return f.active, nil }
func (f *fakeWebhookRepo) Add(ctx context.Context, w *store.Webhook) error    { return nil }
func (f *fakeWebhookRepo) SoftDelete(ctx context.Context, id uuid.UUID) error { return nil }
func (f *fakeWebhookRepo) RecordDelivery(ctx context.Context, d *store.WebhookDelivery) error {
	f.deliveries = append(f.deliveries, d)
	return nil
}
func (f *fakeWebhookRepo) ListDeliveries(ctx context.Context, webhookID uuid.UUID) ([]*store.WebhookDelivery, error) {
	return nil, nil
}

func TestWebhookSinkSignsAndDeliversToActiveSubscribers(t *testing.T) {
	var gotBody []byte
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get("X-Vqueue-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	secret := "s3cr3t"
	repo := &fakeWebhookRepo{active: []*store.Webhook{
		{ID: uuid.New(), URL: srv.URL, Secret: secret, EventTypes: []string{"user.released"}},
	}}
	sink := NewWebhookSink(repo)

	result := sink.Send(context.Background(), Message{EventType: "user.released", Payload: map[string]any{"queue_id": "q1"}})

	if !result.Delivered {
		t.Fatalf("expected delivery to succeed, got %+v", result)
	}
	if len(repo.deliveries) != 1 || repo.deliveries[0].StatusCode != http.StatusOK {
		t.Fatalf("expected one recorded 200 delivery, got %+v", repo.deliveries)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(gotBody)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if gotSig != want {
		t.Fatalf("signature mismatch: got %q want %q", gotSig, want)
	}

	var decoded webhookPayload
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if decoded.EventType != "user.released" {
		t.Fatalf("expected event_type user.released, got %q", decoded.EventType)
	}
}

func TestWebhookSinkRecordsFailureAsRetryableOn5xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	repo := &fakeWebhookRepo{active: []*store.Webhook{
		{ID: uuid.New(), URL: srv.URL, Secret: "x", EventTypes: []string{"user.enqueued"}},
	}}
	sink := NewWebhookSink(repo)

	result := sink.Send(context.Background(), Message{EventType: "user.enqueued"})

	if result.Delivered {
		t.Fatal("expected delivery to be reported as failed")
	}
	if len(repo.deliveries) != 1 || !repo.deliveries[0].Retryable {
		t.Fatalf("expected a retryable delivery record, got %+v", repo.deliveries)
	}
}

func TestWebhookSinkSkipsWhenNoActiveSubscribers(t *testing.T) {
	repo := &fakeWebhookRepo{}
	sink := NewWebhookSink(repo)

	result := sink.Send(context.Background(), Message{EventType: "user.dropped"})
	if !result.Delivered {
		t.Fatalf("expected no-subscriber send to report delivered, got %+v", result)
	}
}
