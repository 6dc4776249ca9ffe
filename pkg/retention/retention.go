// Package retention applies age-based delete/archive policies to entities
// past their configured retention period, and tracks opaque backup
// snapshots.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/queueforge/vqueue/internal/errs"
	"github.com/queueforge/vqueue/internal/store"
)

// Purger performs the mechanical delete for one entity type.
type Purger interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Archiver performs an archive for one entity type: it ships matching rows
// to cold storage, then deletes the originals, returning how many moved.
type Archiver interface {
	Purger
	ArchiveOlderThan(ctx context.Context, cutoff time.Time, dest ColdStore) (int64, error)
}

// ColdStore receives rows evicted by an Archive policy.
type ColdStore interface {
	Write(ctx context.Context, entityType string, rows []map[string]any) (location string, err error)
}

// Execution records the outcome of one apply(policy) call.
type Execution struct {
	PolicyID     uuid.UUID
	EntityType   string
	Action       store.RetentionAction
	MatchedCount int64
	StartedAt    time.Time
	Duration     time.Duration
	Error        string
}

// Engine applies RetentionPolicy records against registered per-entity
// purgers/archivers. Schedules are driven externally (a cron caller); the
// engine only exposes ApplyOne/ApplyAll.
type Engine struct {
	Policies  store.RetentionRepository
	Purgers   map[string]Purger
	Archivers map[string]Archiver
	Cold      ColdStore
	Clock     func() time.Time
	Logger    *slog.Logger
}

// New constructs an Engine. clock defaults to time.Now.
func New(policies store.RetentionRepository, purgers map[string]Purger, archivers map[string]Archiver, cold ColdStore, clock func() time.Time, logger *slog.Logger) *Engine {
	if clock == nil {
		clock = time.Now
	}
	return &Engine{Policies: policies, Purgers: purgers, Archivers: archivers, Cold: cold, Clock: clock, Logger: logger}
}

// ApplyOne runs a single policy: selects entities older than
// now - retention_period and deletes or archives them.
func (e *Engine) ApplyOne(ctx context.Context, policy *store.RetentionPolicy) (Execution, error) {
	start := e.Clock()
	exec := Execution{PolicyID: policy.ID, EntityType: policy.EntityType, Action: policy.Action, StartedAt: start}

	if !policy.Active {
		exec.Duration = e.Clock().Sub(start)
		return exec, nil
	}

	cutoff := start.Add(-policy.RetentionPeriod)

	var count int64
	var err error
	switch policy.Action {
	case store.RetentionDelete:
		purger, ok := e.Purgers[policy.EntityType]
		if !ok {
			err = errs.InvalidArgumentf("no purger registered for entity type %q", policy.EntityType)
			break
		}
		count, err = purger.DeleteOlderThan(ctx, cutoff)
	case store.RetentionArchive:
		archiver, ok := e.Archivers[policy.EntityType]
		if !ok {
			err = errs.InvalidArgumentf("no archiver registered for entity type %q", policy.EntityType)
			break
		}
		if e.Cold == nil {
			err = errs.InvalidArgumentf("archive policy for %q configured with no cold store", policy.EntityType)
			break
		}
		count, err = archiver.ArchiveOlderThan(ctx, cutoff, e.Cold)
	default:
		err = errs.InvalidArgumentf("unknown retention action %q", policy.Action)
	}

	exec.MatchedCount = count
	exec.Duration = e.Clock().Sub(start)
	if err != nil {
		exec.Error = err.Error()
		if e.Logger != nil {
			e.Logger.Error("retention policy failed", "policy_id", policy.ID, "entity_type", policy.EntityType, "error", err)
		}
		return exec, err
	}
	if e.Logger != nil {
		e.Logger.Info("retention policy applied",
			"policy_id", policy.ID, "entity_type", policy.EntityType, "action", policy.Action,
			"matched", count, "duration", exec.Duration)
	}
	return exec, nil
}

// ApplyAll runs every active policy, collecting one Execution per policy. A
// single policy's failure does not stop the rest from running.
func (e *Engine) ApplyAll(ctx context.Context) ([]Execution, error) {
	policies, err := e.Policies.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing retention policies: %w", err)
	}

	execs := make([]Execution, 0, len(policies))
	for _, p := range policies {
		if !p.Active {
			continue
		}
		exec, _ := e.ApplyOne(ctx, p)
		execs = append(execs, exec)
	}
	return execs, nil
}
