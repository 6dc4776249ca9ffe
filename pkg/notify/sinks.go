// Package notify resolves per-visitor channel preferences and fans a
// domain event out to the configured external sinks: email, SMS,
// WhatsApp, push, and signed webhooks.
package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Channel is one of the five visitor-facing notification channels.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelPush     Channel = "push"
	ChannelWebhook  Channel = "webhook"
)

// Message is the rendered content handed to a sink for one channel.
type Message struct {
	RecipientID uuid.UUID
	Address     string // email address, phone number, device token, etc.
	Subject     string
	Body        string
	EventType   string
	Payload     map[string]any
}

// DeliveryResult is returned by every sink, successful or not — delivery
// failures are logged and surfaced, never propagated as an operation failure.
type DeliveryResult struct {
	Channel   Channel
	Delivered bool
	Error     string
}

// Sink delivers one Message over one channel within a bounded timeout.
type Sink interface {
	Channel() Channel
	Send(ctx context.Context, msg Message) DeliveryResult
}

// NoopSink logs the message and reports success, for channels with no
// configured credentials.
type NoopSink struct {
	Ch     Channel
	Logger *slog.Logger
}

func (s *NoopSink) Channel() Channel { return s.Ch }

func (s *NoopSink) Send(ctx context.Context, msg Message) DeliveryResult {
	if s.Logger != nil {
		s.Logger.Info("noop notification sink",
			"channel", s.Ch, "recipient", msg.RecipientID, "event_type", msg.EventType)
	}
	return DeliveryResult{Channel: s.Ch, Delivered: true}
}
