package notify

import (
	"context"
	"log/slog"
	"os"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpsNotifierIsDisabledWithoutToken(t *testing.T) {
	n := NewOpsNotifier("", "#ops", testLogger())
	if n.IsEnabled() {
		t.Fatal("expected notifier without a bot token to be disabled")
	}

	ts, err := n.Page(context.Background(), OpsAlert{TenantID: "acme", QueueID: "q1", Kind: "at_capacity"})
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if ts != "" {
		t.Fatalf("expected empty timestamp from disabled notifier, got %q", ts)
	}
}

func TestOpsNotifierIsDisabledWithoutChannel(t *testing.T) {
	n := NewOpsNotifier("xoxb-test", "", testLogger())
	if n.IsEnabled() {
		t.Fatal("expected notifier without a channel to be disabled")
	}
}

func TestOpsNotifierResolveNoopsWhenDisabled(t *testing.T) {
	n := NewOpsNotifier("", "", testLogger())
	if err := n.Resolve(context.Background(), "123.456", OpsAlert{QueueID: "q1", Kind: "at_capacity"}); err != nil {
		t.Fatalf("expected Resolve on disabled notifier to be a noop, got %v", err)
	}
}
