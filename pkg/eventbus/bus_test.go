package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestSubscribeLocalRunsSynchronously(t *testing.T) {
	b := New(1, 8, 1, nil, nil)
	var received int32
	b.SubscribeLocal(func(ctx context.Context, ev Event) {
		atomic.AddInt32(&received, 1)
	})

	if err := b.Publish(context.Background(), Event{ID: uuid.New(), Type: UserEnqueued}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if atomic.LoadInt32(&received) != 1 {
		t.Fatalf("expected local handler to run synchronously, got %d", received)
	}
}

func TestCriticalEventPersistedBeforeAck(t *testing.T) {
	b := New(1, 8, 1, nil, func(ctx context.Context, ev Event) error {
		return nil
	})

	var persisted int32
	b.persistCritical = func(ctx context.Context, ev Event) error {
		atomic.AddInt32(&persisted, 1)
		return nil
	}

	if err := b.Publish(context.Background(), Event{ID: uuid.New(), Critical: true}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if atomic.LoadInt32(&persisted) != 1 {
		t.Fatalf("expected critical event to be persisted, got %d", persisted)
	}
}

func TestExternalDeliveryRunsOnWorkerPool(t *testing.T) {
	b := New(2, 16, 4, nil, nil)

	var wg sync.WaitGroup
	wg.Add(3)
	var delivered int32
	b.SubscribeExternal(func(ctx context.Context, ev Event) {
		atomic.AddInt32(&delivered, 1)
		wg.Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Start(ctx)

	tenant := uuid.New()
	for i := 0; i < 3; i++ {
		if err := b.Publish(ctx, Event{ID: uuid.New(), TenantID: tenant}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for external delivery")
	}

	if atomic.LoadInt32(&delivered) != 3 {
		t.Fatalf("expected 3 deliveries, got %d", delivered)
	}
}

func TestOverloadDropsOldestNonCritical(t *testing.T) {
	b := New(1, 2, 1, nil, nil)

	// Fill the queue without starting workers so nothing drains it.
	b.enqueue(Event{ID: uuid.New(), Critical: false})
	b.enqueue(Event{ID: uuid.New(), Critical: false})
	b.enqueue(Event{ID: uuid.New(), Critical: true})

	if b.DroppedCount() != 1 {
		t.Fatalf("expected 1 dropped event, got %d", b.DroppedCount())
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ev := range b.queue {
		if !ev.Critical {
			continue
		}
	}
	foundCritical := false
	for _, ev := range b.queue {
		if ev.Critical {
			foundCritical = true
		}
	}
	if !foundCritical {
		t.Fatal("expected critical event to survive eviction")
	}
}
