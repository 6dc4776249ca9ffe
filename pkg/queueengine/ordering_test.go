package queueengine

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/queueforge/vqueue/internal/store"
)

func TestLessOrdersByPriorityThenEnqueuedAtThenID(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	high := &store.UserSession{ID: uuid.New(), Priority: store.PriorityVIP, EnqueuedAt: base.Add(time.Minute)}
	low := &store.UserSession{ID: uuid.New(), Priority: store.PriorityStandard, EnqueuedAt: base}
	if !Less(high, low) {
		t.Error("higher priority should sort first even when enqueued later")
	}

	earlier := &store.UserSession{ID: uuid.New(), Priority: store.PriorityStandard, EnqueuedAt: base}
	later := &store.UserSession{ID: uuid.New(), Priority: store.PriorityStandard, EnqueuedAt: base.Add(time.Second)}
	if !Less(earlier, later) {
		t.Error("same priority, earlier enqueued_at should sort first")
	}
}

func TestRecomputePositionsAssignsContiguousRanks(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sessions := []*store.UserSession{
		{ID: uuid.New(), Priority: store.PriorityLow, EnqueuedAt: base, Position: 5},
		{ID: uuid.New(), Priority: store.PriorityVIP, EnqueuedAt: base, Position: 0},
		{ID: uuid.New(), Priority: store.PriorityStandard, EnqueuedAt: base, Position: 9},
	}
	SortWaiting(sessions)
	changed := RecomputePositions(sessions)

	for i, s := range sessions {
		if s.Position != i+1 {
			t.Fatalf("position %d: expected %d, got %d", i, i+1, s.Position)
		}
	}
	if len(changed) != 3 {
		t.Fatalf("expected 3 changed positions, got %d", len(changed))
	}
}

func TestRecomputePositionsSkipsUnchanged(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sessions := []*store.UserSession{
		{ID: uuid.New(), Priority: store.PriorityVIP, EnqueuedAt: base, Position: 1},
		{ID: uuid.New(), Priority: store.PriorityStandard, EnqueuedAt: base, Position: 2},
	}
	changed := RecomputePositions(sessions)
	if len(changed) != 0 {
		t.Fatalf("expected no changes, got %d", len(changed))
	}
}
