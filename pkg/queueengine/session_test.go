package queueengine

import (
	"testing"
	"time"

	"github.com/queueforge/vqueue/internal/errs"
	"github.com/queueforge/vqueue/internal/store"
)

func TestApplyTransitionLegalMoves(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		from store.SessionStatus
		to   store.SessionStatus
	}{
		{"waiting to released", store.SessionWaiting, store.SessionReleased},
		{"waiting to serving", store.SessionWaiting, store.SessionServing},
		{"waiting to dropped", store.SessionWaiting, store.SessionDropped},
		{"serving to released", store.SessionServing, store.SessionReleased},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := &store.UserSession{Status: tc.from}
			if err := applyTransition(s, tc.to, now); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if s.Status != tc.to {
				t.Fatalf("expected status %s, got %s", tc.to, s.Status)
			}
		})
	}
}

func TestApplyTransitionRejectsIllegalMoves(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		from store.SessionStatus
		to   store.SessionStatus
	}{
		{"released cannot re-enter serving", store.SessionReleased, store.SessionServing},
		{"dropped cannot re-enter waiting", store.SessionDropped, store.SessionWaiting},
		{"serving cannot go back to waiting", store.SessionServing, store.SessionWaiting},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := &store.UserSession{Status: tc.from}
			err := applyTransition(s, tc.to, now)
			if !errs.Is(err, errs.InvalidState) {
				t.Fatalf("expected InvalidState, got %v", err)
			}
		})
	}
}

func TestApplyTransitionStampsTimestamps(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	s := &store.UserSession{Status: store.SessionWaiting}
	if err := applyTransition(s, store.SessionServing, now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ServedAt == nil || !s.ServedAt.Equal(now) {
		t.Fatal("expected served_at to be stamped")
	}

	if err := applyTransition(s, store.SessionReleased, now.Add(time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ReleasedAt == nil || !s.ReleasedAt.Equal(now.Add(time.Minute)) {
		t.Fatal("expected released_at to be stamped")
	}
}
