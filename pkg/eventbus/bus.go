package eventbus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Handler processes one Event. Local handlers run synchronously on the
// publishing goroutine; external handlers (notification fan-out, webhook
// delivery) run on the bus's bounded worker pool.
type Handler func(ctx context.Context, ev Event)

// PersistCritical is invoked synchronously, before Publish returns, for
// events marked Critical (analytics rollup inputs) so they survive even if
// the external worker pool later drops work under overload.
type PersistCritical func(ctx context.Context, ev Event) error

// Bus is an in-process publish/subscribe hub with a bounded external
// worker pool and a per-tenant concurrency cap, so one noisy tenant cannot
// starve delivery for the rest.
type Bus struct {
	logger          *slog.Logger
	persistCritical PersistCritical

	mu         sync.Mutex
	localSubs  []Handler
	externalSubs []Handler

	capacity int
	queue    []Event
	notify   chan struct{}

	tenantSemMu sync.Mutex
	tenantSem   map[uuid.UUID]*semaphore.Weighted
	perTenant   int64

	workerCount int
	wg          sync.WaitGroup

	droppedMu sync.Mutex
	dropped   int64
}

// New creates a Bus. workerCount is the number of goroutines draining the
// external-delivery queue; queueDepth bounds that queue; perTenantLimit
// caps concurrent external deliveries per tenant.
func New(workerCount, queueDepth int, perTenantLimit int64, logger *slog.Logger, persistCritical PersistCritical) *Bus {
	if workerCount < 1 {
		workerCount = 1
	}
	if queueDepth < 1 {
		queueDepth = 1
	}
	if perTenantLimit < 1 {
		perTenantLimit = 1
	}
	return &Bus{
		logger:          logger,
		persistCritical: persistCritical,
		capacity:        queueDepth,
		notify:          make(chan struct{}, 1),
		tenantSem:       make(map[uuid.UUID]*semaphore.Weighted),
		perTenant:       perTenantLimit,
		workerCount:     workerCount,
	}
}

// SubscribeLocal registers a handler invoked synchronously on every Publish.
func (b *Bus) SubscribeLocal(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.localSubs = append(b.localSubs, h)
}

// SubscribeExternal registers a handler run on the bounded worker pool.
func (b *Bus) SubscribeExternal(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.externalSubs = append(b.externalSubs, h)
}

// Start launches the worker pool. Call once; it stops when ctx is done.
func (b *Bus) Start(ctx context.Context) {
	for i := 0; i < b.workerCount; i++ {
		b.wg.Add(1)
		go b.work(ctx)
	}
}

// Wait blocks until all workers have stopped (after ctx passed to Start is done).
func (b *Bus) Wait() { b.wg.Wait() }

// DroppedCount returns how many non-critical events have been evicted
// under sustained overload since the bus started.
func (b *Bus) DroppedCount() int64 {
	b.droppedMu.Lock()
	defer b.droppedMu.Unlock()
	return b.dropped
}

// Publish delivers ev to local subscribers synchronously, persists it if
// Critical, then enqueues it for external delivery. Under overload the
// oldest non-critical queued event is evicted to make room.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	b.mu.Lock()
	subs := append([]Handler(nil), b.localSubs...)
	b.mu.Unlock()
	for _, h := range subs {
		h(ctx, ev)
	}

	if ev.Critical && b.persistCritical != nil {
		if err := b.persistCritical(ctx, ev); err != nil {
			return err
		}
	}

	b.enqueue(ev)
	return nil
}

func (b *Bus) enqueue(ev Event) {
	b.mu.Lock()
	if len(b.queue) >= b.capacity {
		evicted := false
		for i, queued := range b.queue {
			if !queued.Critical {
				b.queue = append(b.queue[:i], b.queue[i+1:]...)
				evicted = true
				break
			}
		}
		if evicted {
			b.droppedMu.Lock()
			b.dropped++
			b.droppedMu.Unlock()
			if b.logger != nil {
				b.logger.Warn("eventbus: dropped oldest non-critical event under overload")
			}
		}
	}
	b.queue = append(b.queue, ev)
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

func (b *Bus) tryPop() (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return Event{}, false
	}
	ev := b.queue[0]
	b.queue = b.queue[1:]
	return ev, true
}

func (b *Bus) work(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.notify:
			for {
				ev, ok := b.tryPop()
				if !ok {
					break
				}
				b.deliverExternal(ctx, ev)
			}
		}
	}
}

func (b *Bus) deliverExternal(ctx context.Context, ev Event) {
	sem := b.semaphoreFor(ev.TenantID)
	if err := sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer sem.Release(1)

	b.mu.Lock()
	subs := append([]Handler(nil), b.externalSubs...)
	b.mu.Unlock()

	for _, h := range subs {
		h(ctx, ev)
	}
}

func (b *Bus) semaphoreFor(tenantID uuid.UUID) *semaphore.Weighted {
	b.tenantSemMu.Lock()
	defer b.tenantSemMu.Unlock()
	sem, ok := b.tenantSem[tenantID]
	if !ok {
		sem = semaphore.NewWeighted(b.perTenant)
		b.tenantSem[tenantID] = sem
	}
	return sem
}
