package notify

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"
)

// OpsAlert pages operators about a sustained system condition — queues
// wedged at capacity, a release rate falling behind, a persisted-event
// failure — distinct from the five visitor-facing channels.
type OpsAlert struct {
	TenantID string
	QueueID  string
	Kind     string // e.g. "at_capacity", "transient_error"
	Detail   string
}

// OpsNotifier posts OpsAlerts to a fixed operator channel.
type OpsNotifier struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// NewOpsNotifier creates an OpsNotifier. If botToken is empty the notifier
// is a noop that only logs.
func NewOpsNotifier(botToken, channel string, logger *slog.Logger) *OpsNotifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &OpsNotifier{client: client, channel: channel, logger: logger}
}

func (n *OpsNotifier) IsEnabled() bool {
	return n.client != nil && n.channel != ""
}

// Page posts alert to the configured channel, returning the message
// timestamp for later threading (e.g. a resolved follow-up).
func (n *OpsNotifier) Page(ctx context.Context, alert OpsAlert) (ts string, err error) {
	if !n.IsEnabled() {
		n.logger.Warn("ops notifier disabled, skipping page",
			"tenant_id", alert.TenantID, "queue_id", alert.QueueID, "kind", alert.Kind)
		return "", nil
	}

	text := fmt.Sprintf(":rotating_light: [%s] queue %s: %s — %s",
		alert.Kind, alert.QueueID, alert.TenantID, alert.Detail)

	_, ts, err = n.client.PostMessageContext(ctx, n.channel, goslack.MsgOptionText(text, false))
	if err != nil {
		return "", fmt.Errorf("posting ops alert to slack: %w", err)
	}
	return ts, nil
}

// Resolve posts a threaded follow-up marking alert as cleared.
func (n *OpsNotifier) Resolve(ctx context.Context, ts string, alert OpsAlert) error {
	if !n.IsEnabled() {
		return nil
	}
	text := fmt.Sprintf(":white_check_mark: resolved: queue %s %s", alert.QueueID, alert.Kind)
	_, _, err := n.client.PostMessageContext(ctx, n.channel,
		goslack.MsgOptionText(text, false), goslack.MsgOptionTS(ts))
	if err != nil {
		return fmt.Errorf("posting ops resolution to slack: %w", err)
	}
	return nil
}
