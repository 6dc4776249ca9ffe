package notify

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/queueforge/vqueue/internal/errs"
	"github.com/queueforge/vqueue/internal/store"
)

type fakeUserRepo struct {
	users map[uuid.UUID]*store.User
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*store.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, errs.NotFoundf("user %s not found", id)
	}
	return u, nil
}
func (f *fakeUserRepo) GetByUsername(ctx context.Context, username string) (*store.User, error) {
	return nil, errs.NotFoundf("not found")
}
func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*store.User, error) {
	return nil, errs.NotFoundf("not found")
}
func (f *fakeUserRepo) Add(ctx context.Context, u *store.User) error    { return nil }
func (f *fakeUserRepo) Update(ctx context.Context, u *store.User) error { return nil }
func (f *fakeUserRepo) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return nil
}

type recordingSink struct {
	ch      Channel
	sent    []Message
	succeed bool
}

func (s *recordingSink) Channel() Channel { return s.ch }
func (s *recordingSink) Send(ctx context.Context, msg Message) DeliveryResult {
	s.sent = append(s.sent, msg)
	return DeliveryResult{Channel: s.ch, Delivered: s.succeed}
}

func TestDeliverDefaultsToEmailWhenNoPreferenceSet(t *testing.T) {
	recipient := uuid.New()
	users := &fakeUserRepo{users: map[uuid.UUID]*store.User{
		recipient: {ID: recipient, Email: "visitor@example.com"},
	}}
	email := &recordingSink{ch: ChannelEmail, succeed: true}
	svc := New(map[Channel]Sink{ChannelEmail: email}, users, nil)

	results := svc.Deliver(context.Background(), recipient, Message{EventType: "user.released"})

	if len(results) != 1 || results[0].Channel != ChannelEmail {
		t.Fatalf("expected single email delivery, got %v", results)
	}
	if len(email.sent) != 1 || email.sent[0].Address != "visitor@example.com" {
		t.Fatalf("expected email sink addressed to visitor@example.com, got %+v", email.sent)
	}
}

func TestDeliverFansOutToEachConfiguredChannel(t *testing.T) {
	recipient := uuid.New()
	users := &fakeUserRepo{users: map[uuid.UUID]*store.User{
		recipient: {
			ID:    recipient,
			Email: "visitor@example.com",
			Phone: "+15551234567",
			Metadata: map[string]any{
				"notification_channels": []any{"email", "sms"},
			},
		},
	}}
	email := &recordingSink{ch: ChannelEmail, succeed: true}
	sms := &recordingSink{ch: ChannelSMS, succeed: false}
	svc := New(map[Channel]Sink{ChannelEmail: email, ChannelSMS: sms}, users, nil)

	results := svc.Deliver(context.Background(), recipient, Message{EventType: "user.enqueued"})

	if len(results) != 2 {
		t.Fatalf("expected 2 delivery results, got %d", len(results))
	}
	if len(sms.sent) != 1 || sms.sent[0].Address != "+15551234567" {
		t.Fatalf("expected sms sink addressed to phone number, got %+v", sms.sent)
	}
}

func TestDeliverReturnsEmptyForUnknownRecipient(t *testing.T) {
	users := &fakeUserRepo{users: map[uuid.UUID]*store.User{}}
	svc := New(map[Channel]Sink{}, users, nil)

	results := svc.Deliver(context.Background(), uuid.New(), Message{EventType: "user.dropped"})
	if results != nil {
		t.Fatalf("expected nil results for unknown recipient, got %v", results)
	}
}
