package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/queueforge/vqueue/internal/store"
	"github.com/queueforge/vqueue/internal/telemetry"
)

const sendTimeout = 5 * time.Second

// Service fans a domain event out to the recipient's enabled channels. Per
// channel, a single attempt is made with a bounded timeout; failures are
// logged and returned in the result slice but never fail the caller.
type Service struct {
	Sinks  map[Channel]Sink
	Users  store.UserRepository
	Logger *slog.Logger
}

// New constructs a Service. Missing channels fall back to a NoopSink so
// Deliver always has something to call.
func New(sinks map[Channel]Sink, users store.UserRepository, logger *slog.Logger) *Service {
	for _, ch := range []Channel{ChannelEmail, ChannelSMS, ChannelWhatsApp, ChannelPush, ChannelWebhook} {
		if _, ok := sinks[ch]; !ok {
			sinks[ch] = &NoopSink{Ch: ch, Logger: logger}
		}
	}
	return &Service{Sinks: sinks, Users: users, Logger: logger}
}

// enabledChannels returns the channels the recipient has opted into. A
// user's Metadata["notification_channels"] is a []string of channel names;
// absent or empty defaults to {email}.
func enabledChannels(u *store.User) []Channel {
	raw, ok := u.Metadata["notification_channels"]
	if !ok {
		return []Channel{ChannelEmail}
	}
	list, ok := raw.([]any)
	if !ok || len(list) == 0 {
		return []Channel{ChannelEmail}
	}
	var channels []Channel
	for _, v := range list {
		if s, ok := v.(string); ok {
			channels = append(channels, Channel(s))
		}
	}
	if len(channels) == 0 {
		return []Channel{ChannelEmail}
	}
	return channels
}

// Deliver resolves recipientID's channel preferences and attempts delivery
// of msg on each, returning one DeliveryResult per attempted channel.
func (s *Service) Deliver(ctx context.Context, recipientID uuid.UUID, msg Message) []DeliveryResult {
	u, err := s.Users.GetByID(ctx, recipientID)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Warn("notify: recipient lookup failed", "recipient_id", recipientID, "error", err)
		}
		return nil
	}

	channels := enabledChannels(u)
	msg.RecipientID = recipientID

	results := make([]DeliveryResult, 0, len(channels))
	for _, ch := range channels {
		sink, ok := s.Sinks[ch]
		if !ok {
			continue
		}

		addressed := msg
		addressed.Address = addressFor(u, ch)

		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		result := sink.Send(sendCtx, addressed)
		cancel()

		outcome := "failure"
		if result.Delivered {
			outcome = "success"
		} else if s.Logger != nil {
			s.Logger.Warn("notify: delivery failed", "channel", ch, "recipient_id", recipientID, "error", result.Error)
		}
		telemetry.NotificationsDeliveredTotal.WithLabelValues(string(ch), outcome).Inc()

		results = append(results, result)
	}
	return results
}

func addressFor(u *store.User, ch Channel) string {
	switch ch {
	case ChannelEmail:
		return u.Email
	case ChannelSMS, ChannelWhatsApp:
		return u.Phone
	default:
		return u.ID.String()
	}
}
