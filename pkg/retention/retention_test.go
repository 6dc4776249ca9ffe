package retention

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/queueforge/vqueue/internal/store"
)

type fakeRetentionRepo struct {
	policies []*store.RetentionPolicy
}

func (f *fakeRetentionRepo) List(ctx context.Context) ([]*store.RetentionPolicy, error) {
	return f.policies, nil
}
func (f *fakeRetentionRepo) Add(ctx context.Context, p *store.RetentionPolicy) error {
	f.policies = append(f.policies, p)
	return nil
}

type fakePurger struct {
	cutoffs []time.Time
	count   int64
}

func (f *fakePurger) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.count, nil
}

type fakeArchiver struct {
	fakePurger
	archived int64
	wrote    []map[string]any
}

func (f *fakeArchiver) ArchiveOlderThan(ctx context.Context, cutoff time.Time, dest ColdStore) (int64, error) {
	loc, err := dest.Write(ctx, "audit_log", []map[string]any{{"id": "1"}})
	if err != nil {
		return 0, err
	}
	_ = loc
	return f.archived, nil
}

type fakeColdStore struct {
	locations []string
}

func (f *fakeColdStore) Write(ctx context.Context, entityType string, rows []map[string]any) (string, error) {
	loc := "cold://" + entityType
	f.locations = append(f.locations, loc)
	return loc, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestApplyOneDeletesEntitiesOlderThanCutoff(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	purger := &fakePurger{count: 12}
	e := New(&fakeRetentionRepo{}, map[string]Purger{"audit_log": purger}, nil, nil, fixedClock(now), nil)

	policy := &store.RetentionPolicy{
		ID:              uuid.New(),
		EntityType:      "audit_log",
		RetentionPeriod: 30 * 24 * time.Hour,
		Action:          store.RetentionDelete,
		Active:          true,
	}

	exec, err := e.ApplyOne(context.Background(), policy)
	if err != nil {
		t.Fatalf("ApplyOne: %v", err)
	}
	if exec.MatchedCount != 12 {
		t.Fatalf("expected MatchedCount 12, got %d", exec.MatchedCount)
	}
	wantCutoff := now.Add(-30 * 24 * time.Hour)
	if len(purger.cutoffs) != 1 || !purger.cutoffs[0].Equal(wantCutoff) {
		t.Fatalf("expected cutoff %v, got %v", wantCutoff, purger.cutoffs)
	}
}

func TestApplyOneSkipsInactivePolicy(t *testing.T) {
	purger := &fakePurger{count: 99}
	e := New(&fakeRetentionRepo{}, map[string]Purger{"audit_log": purger}, nil, nil, nil, nil)

	policy := &store.RetentionPolicy{EntityType: "audit_log", Action: store.RetentionDelete, Active: false}
	exec, err := e.ApplyOne(context.Background(), policy)
	if err != nil {
		t.Fatalf("ApplyOne: %v", err)
	}
	if exec.MatchedCount != 0 || len(purger.cutoffs) != 0 {
		t.Fatal("expected an inactive policy to be a no-op")
	}
}

func TestApplyOneArchivesThroughColdStore(t *testing.T) {
	cold := &fakeColdStore{}
	archiver := &fakeArchiver{archived: 5}
	e := New(&fakeRetentionRepo{}, nil, map[string]Archiver{"audit_log": archiver}, cold, fixedClock(time.Now()), nil)

	policy := &store.RetentionPolicy{
		ID: uuid.New(), EntityType: "audit_log", RetentionPeriod: time.Hour,
		Action: store.RetentionArchive, Active: true,
	}

	exec, err := e.ApplyOne(context.Background(), policy)
	if err != nil {
		t.Fatalf("ApplyOne: %v", err)
	}
	if exec.MatchedCount != 5 {
		t.Fatalf("expected MatchedCount 5, got %d", exec.MatchedCount)
	}
	if len(cold.locations) != 1 {
		t.Fatalf("expected one cold-store write, got %d", len(cold.locations))
	}
}

func TestApplyOneFailsForUnregisteredEntityType(t *testing.T) {
	e := New(&fakeRetentionRepo{}, map[string]Purger{}, nil, nil, nil, nil)
	policy := &store.RetentionPolicy{EntityType: "unknown", Action: store.RetentionDelete, Active: true}

	if _, err := e.ApplyOne(context.Background(), policy); err == nil {
		t.Fatal("expected an error for an entity type with no registered purger")
	}
}

func TestApplyAllRunsEveryActivePolicyAndSkipsInactiveOnes(t *testing.T) {
	purger := &fakePurger{count: 3}
	repo := &fakeRetentionRepo{policies: []*store.RetentionPolicy{
		{ID: uuid.New(), EntityType: "audit_log", RetentionPeriod: time.Hour, Action: store.RetentionDelete, Active: true},
		{ID: uuid.New(), EntityType: "audit_log", RetentionPeriod: time.Hour, Action: store.RetentionDelete, Active: false},
	}}
	e := New(repo, map[string]Purger{"audit_log": purger}, nil, nil, fixedClock(time.Now()), nil)

	execs, err := e.ApplyAll(context.Background())
	if err != nil {
		t.Fatalf("ApplyAll: %v", err)
	}
	if len(execs) != 1 {
		t.Fatalf("expected 1 execution (inactive policy skipped), got %d", len(execs))
	}
}
