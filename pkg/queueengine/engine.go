package queueengine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/queueforge/vqueue/internal/cache"
	"github.com/queueforge/vqueue/internal/errs"
	"github.com/queueforge/vqueue/internal/store"
	"github.com/queueforge/vqueue/internal/tenant"
	"github.com/queueforge/vqueue/pkg/eventbus"
	"github.com/queueforge/vqueue/pkg/schedule"
)

// positionCacheTTL bounds how long a cached position is trusted before a
// recompute is required to confirm it; positions shift too quickly for a
// longer TTL to be useful.
const positionCacheTTL = 30 * time.Second

// Engine implements the ordered waiting-line state machine: admission,
// drop, the Waiting/Serving handoff, and position lookups. A background
// Releaser (see releaser.go) drives rate-limited admission on top of the
// same repositories.
type Engine struct {
	Queues   store.QueueRepository
	Sessions store.SessionRepository
	Events   store.QueueEventRepository
	Bus      *eventbus.Bus
	Clock    schedule.Clock

	// Cache, if set, is opportunistically updated with each session's
	// position on recompute and consulted by Position ahead of the stored
	// position.
	// A nil Cache disables this; every lookup falls through to Sessions.
	Cache *cache.Cache

	// Strict, when true, rejects Enqueue with AtCapacity once
	// count(Waiting)+count(Serving) reaches the queue's max_concurrent_users.
	// When false capacity is advisory only.
	Strict bool

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// New constructs an Engine. clock defaults to schedule.RealClock{} if nil.
func New(queues store.QueueRepository, sessions store.SessionRepository, events store.QueueEventRepository, bus *eventbus.Bus, clock schedule.Clock, strict bool) *Engine {
	if clock == nil {
		clock = schedule.RealClock{}
	}
	return &Engine{
		Queues:   queues,
		Sessions: sessions,
		Events:   events,
		Bus:      bus,
		Clock:    clock,
		Strict:   strict,
		locks:    make(map[uuid.UUID]*sync.Mutex),
	}
}

// lockFor returns the serializing mutex for queueID, creating it on first use.
func (e *Engine) lockFor(queueID uuid.UUID) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[queueID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[queueID] = l
	}
	return l
}

func tenantID(ctx context.Context) uuid.UUID {
	if info := tenant.FromContext(ctx); info != nil {
		return info.ID
	}
	return uuid.Nil
}

// Enqueue admits userIdentifier to queueID, or returns the existing
// non-terminal session idempotently if one is already present.
func (e *Engine) Enqueue(ctx context.Context, queueID uuid.UUID, userIdentifier string, priority store.Priority, metadata map[string]any) (*store.UserSession, error) {
	lock := e.lockFor(queueID)
	lock.Lock()
	defer lock.Unlock()

	q, err := e.Queues.GetByID(ctx, queueID)
	if err != nil {
		return nil, err
	}

	now := e.Clock.Now()
	active, err := isActive(q, now)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, errs.Closedf("queue %s is not active", queueID)
	}

	if existing, err := e.Sessions.GetActiveByIdentifier(ctx, queueID, userIdentifier); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	waiting, serving, err := e.Sessions.CountActive(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if e.Strict && waiting+serving >= q.MaxConcurrentUsers {
		return nil, errs.AtCapacityf("queue %s is at capacity", queueID)
	}

	session := &store.UserSession{
		ID:             uuid.New(),
		QueueID:        queueID,
		UserIdentifier: userIdentifier,
		Status:         store.SessionWaiting,
		Priority:       priority,
		EnqueuedAt:     now,
		Metadata:       metadata,
	}
	if err := e.Sessions.Add(ctx, session); err != nil {
		return nil, err
	}

	if err := e.recomputePositions(ctx, queueID); err != nil {
		return nil, err
	}
	session, err = e.Sessions.GetByID(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	e.publish(ctx, eventbus.UserEnqueued, store.EventUserEnqueued, q.ID, &session.ID, session.Position, false)
	return session, nil
}

// Drop transitions a Waiting session to Dropped. It is an idempotent no-op
// if the session is already terminal.
func (e *Engine) Drop(ctx context.Context, queueID, sessionID uuid.UUID, reason store.DropReason) error {
	lock := e.lockFor(queueID)
	lock.Lock()
	defer lock.Unlock()

	session, err := e.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status != store.SessionWaiting {
		return nil
	}

	now := e.Clock.Now()
	if err := applyTransition(session, store.SessionDropped, now); err != nil {
		return err
	}
	if session.Metadata == nil {
		session.Metadata = map[string]any{}
	}
	session.Metadata["drop_reason"] = string(reason)
	if err := e.Sessions.Update(ctx, session); err != nil {
		return err
	}

	if err := e.recomputePositions(ctx, queueID); err != nil {
		return err
	}

	e.publish(ctx, eventbus.UserDropped, store.EventUserDropped, queueID, &session.ID, 0, false)
	return nil
}

// BeginServe moves a Waiting session into Serving.
func (e *Engine) BeginServe(ctx context.Context, sessionID uuid.UUID) (*store.UserSession, error) {
	session, err := e.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	lock := e.lockFor(session.QueueID)
	lock.Lock()
	defer lock.Unlock()

	now := e.Clock.Now()
	if err := applyTransition(session, store.SessionServing, now); err != nil {
		return nil, err
	}
	if err := e.Sessions.Update(ctx, session); err != nil {
		return nil, err
	}

	if err := e.recomputePositions(ctx, session.QueueID); err != nil {
		return nil, err
	}

	e.publish(ctx, eventbus.UserServing, store.EventUserServing, session.QueueID, &session.ID, 0, false)
	return session, nil
}

// CompleteServe moves a Serving session into Released.
func (e *Engine) CompleteServe(ctx context.Context, sessionID uuid.UUID) (*store.UserSession, error) {
	session, err := e.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	lock := e.lockFor(session.QueueID)
	lock.Lock()
	defer lock.Unlock()

	now := e.Clock.Now()
	if err := applyTransition(session, store.SessionReleased, now); err != nil {
		return nil, err
	}
	if err := e.Sessions.Update(ctx, session); err != nil {
		return nil, err
	}

	e.publish(ctx, eventbus.UserReleased, store.EventUserReleased, session.QueueID, &session.ID, 0, true)
	return session, nil
}

// PositionResult is a session's rank in its queue plus a rough estimate of
// how long it will wait before release, derived from the queue's
// configured release rate.
type PositionResult struct {
	Position             int
	EstimatedWaitSeconds int
}

// Position returns a session's current 1-based rank among Waiting members
// and an estimated wait, or a zero PositionResult if the session is not
// Waiting. It reads the session from the store and, when Cache holds a
// position for it, reports the cached value instead of the stored one.
func (e *Engine) Position(ctx context.Context, sessionID uuid.UUID) (PositionResult, error) {
	session, err := e.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return PositionResult{}, err
	}
	if session.Status != store.SessionWaiting {
		return PositionResult{}, nil
	}

	queue, err := e.Queues.GetByID(ctx, session.QueueID)
	if err != nil {
		return PositionResult{}, err
	}

	position := session.Position
	if e.Cache != nil {
		var cached int
		if err := e.Cache.Get(ctx, cache.PositionKey(session.QueueID.String(), session.UserIdentifier), &cached); err == nil {
			position = cached
		}
	}

	return PositionResult{
		Position:             position,
		EstimatedWaitSeconds: estimatedWaitSeconds(position, queue.ReleaseRatePerMinute),
	}, nil
}

// estimatedWaitSeconds projects how long a session at the given position
// will wait, assuming releases continue at the queue's configured rate. A
// zero or unset rate means releases aren't time-based (e.g. manual-only
// queues), so no estimate can be made.
func estimatedWaitSeconds(position, releaseRatePerMinute int) int {
	if releaseRatePerMinute <= 0 || position <= 0 {
		return 0
	}
	return int((float64(position) / float64(releaseRatePerMinute)) * 60)
}

// recomputePositions re-ranks the queue's Waiting members, persists any
// changed positions with one UpdatePositions call, and opportunistically
// refreshes their cached positions. A cache write failure is ignored, not
// returned: the store update is the durable source of truth.
func (e *Engine) recomputePositions(ctx context.Context, queueID uuid.UUID) error {
	waiting, err := e.Sessions.ListWaitingOrdered(ctx, queueID)
	if err != nil {
		return err
	}
	SortWaiting(waiting)
	changed := RecomputePositions(waiting)
	if len(changed) == 0 {
		return nil
	}
	if err := e.Sessions.UpdatePositions(ctx, changed); err != nil {
		return err
	}

	if e.Cache != nil {
		for _, s := range waiting {
			if _, ok := changed[s.ID]; !ok {
				continue
			}
			_ = e.Cache.Set(ctx, cache.PositionKey(queueID.String(), s.UserIdentifier), s.Position, positionCacheTTL)
		}
	}
	return nil
}

// publish records the mutation in the append-only event log and notifies
// the event bus's subscribers.
func (e *Engine) publish(ctx context.Context, evType eventbus.EventType, logType store.QueueEventType, queueID uuid.UUID, sessionID *uuid.UUID, position int, critical bool) {
	now := e.Clock.Now()

	if e.Events != nil {
		_ = e.Events.Add(ctx, &store.QueueEvent{
			ID:        uuid.New(),
			QueueID:   queueID,
			SessionID: sessionID,
			EventType: logType,
			Timestamp: now,
		})
	}

	if e.Bus == nil {
		return
	}
	_ = e.Bus.Publish(ctx, eventbus.Event{
		ID:         uuid.New(),
		Type:       evType,
		TenantID:   tenantID(ctx),
		QueueID:    queueID,
		SessionID:  sessionID,
		Position:   position,
		OccurredAt: now,
		Critical:   critical,
	})
}
