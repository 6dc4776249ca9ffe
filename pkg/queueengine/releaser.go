package queueengine

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/queueforge/vqueue/internal/errs"
	"github.com/queueforge/vqueue/internal/store"
	"github.com/queueforge/vqueue/pkg/eventbus"
)

// Releaser runs the rate-limited admission tick described in the release
// algorithm: each active queue accrues a fractional release allowance from
// its configured rate, and on each tick pops up to floor(allowance)
// top-ranked Waiting sessions into Released (or Serving, if a handoff is
// configured).
type Releaser struct {
	Engine *Engine
	Logger *slog.Logger

	// PollInterval is how often Run wakes to evaluate every active queue.
	PollInterval time.Duration
	// DefaultMaxBurst bounds k per tick for every queue; values below 1
	// are treated as 1.
	DefaultMaxBurst int
	// HandoffToServing, when true, leaves released sessions in Serving
	// instead of Released, for callers that drive an explicit complete().
	HandoffToServing bool
}

// Run blocks, ticking every PollInterval until ctx is done.
func (r *Releaser) Run(ctx context.Context) {
	interval := r.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Releaser) tick(ctx context.Context) {
	queues, err := r.Engine.Queues.ListActive(ctx)
	if err != nil {
		if r.Logger != nil {
			r.Logger.Warn("releaser: listing active queues failed", "error", err)
		}
		return
	}
	for _, q := range queues {
		if err := r.tickQueue(ctx, q); err != nil && r.Logger != nil {
			r.Logger.Warn("releaser: tick failed", "queue_id", q.ID, "error", err)
		}
	}
}

func (r *Releaser) tickQueue(ctx context.Context, q *store.Queue) error {
	now := r.Engine.Clock.Now()

	active, err := isActive(q, now)
	if err != nil {
		return err
	}
	if !active {
		return nil
	}

	last := now
	if q.LastReleaseAt != nil {
		last = *q.LastReleaseAt
	}
	if last.After(now) {
		last = now
	}

	rate := float64(q.ReleaseRatePerMinute)
	if rate <= 0 {
		return nil
	}
	allowance := rate * now.Sub(last).Seconds() / 60
	if allowance < 1 {
		return nil
	}

	k := int(allowance)
	maxBurst := r.DefaultMaxBurst
	if maxBurst < 1 {
		maxBurst = 1
	}
	if k > maxBurst {
		k = maxBurst
	}

	advance := time.Duration(float64(k) * 60 / rate * float64(time.Second))
	newLastRelease := last.Add(advance)

	operation := func() (int64, error) {
		return r.Engine.Queues.AdvanceRelease(ctx, q.ID, q.Version, newLastRelease)
	}
	newVersion, err := backoff.Retry(ctx, operation, backoff.WithMaxTries(3))
	if err != nil {
		return errs.Transientf(err, "advancing release cursor for queue %s", q.ID)
	}
	q.Version = newVersion
	q.LastReleaseAt = &newLastRelease

	lock := r.Engine.lockFor(q.ID)
	lock.Lock()
	defer lock.Unlock()

	waiting, err := r.Engine.Sessions.ListWaitingOrdered(ctx, q.ID)
	if err != nil {
		return err
	}
	SortWaiting(waiting)
	if k > len(waiting) {
		k = len(waiting)
	}

	target := store.SessionReleased
	if r.HandoffToServing {
		target = store.SessionServing
	}

	for i := 0; i < k; i++ {
		session := waiting[i]
		if err := applyTransition(session, target, now); err != nil {
			continue
		}
		if err := r.Engine.Sessions.Update(ctx, session); err != nil {
			return err
		}
		evType := eventTypeFor(target)
		logType := logEventTypeFor(target)
		sessionID := session.ID
		r.Engine.publish(ctx, evType, logType, q.ID, &sessionID, 0, target == store.SessionReleased)
	}

	return r.Engine.recomputePositions(ctx, q.ID)
}

// Reconcile re-ranks every active queue's Waiting members on startup, so a
// crash between a status transition and its position recompute self-heals
// rather than leaving a non-contiguous permutation.
func (r *Releaser) Reconcile(ctx context.Context) error {
	queues, err := r.Engine.Queues.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, q := range queues {
		if err := r.Engine.recomputePositions(ctx, q.ID); err != nil {
			return err
		}
	}
	return nil
}

func eventTypeFor(status store.SessionStatus) eventbus.EventType {
	if status == store.SessionServing {
		return eventbus.UserServing
	}
	return eventbus.UserReleased
}

func logEventTypeFor(status store.SessionStatus) store.QueueEventType {
	if status == store.SessionServing {
		return store.EventUserServing
	}
	return store.EventUserReleased
}
