package queueengine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/queueforge/vqueue/internal/errs"
	"github.com/queueforge/vqueue/internal/store"
)

// fakeQueueRepo and fakeSessionRepo are minimal in-memory stand-ins for the
// postgres-backed repositories, sufficient to exercise Engine/Releaser
// logic without a database.

type fakeQueueRepo struct {
	mu     sync.Mutex
	queues map[uuid.UUID]*store.Queue
}

func newFakeQueueRepo() *fakeQueueRepo {
	return &fakeQueueRepo{queues: make(map[uuid.UUID]*store.Queue)}
}

func (f *fakeQueueRepo) put(q *store.Queue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *q
	f.queues[q.ID] = &cp
}

func (f *fakeQueueRepo) GetByID(ctx context.Context, id uuid.UUID) (*store.Queue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.queues[id]
	if !ok {
		return nil, errs.NotFoundf("queue %s not found", id)
	}
	cp := *q
	return &cp, nil
}

func (f *fakeQueueRepo) ListActive(ctx context.Context) ([]*store.Queue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.Queue
	for _, q := range f.queues {
		if q.Active && !q.Deleted {
			cp := *q
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeQueueRepo) List(ctx context.Context) ([]*store.Queue, error) {
	return f.ListActive(ctx)
}

func (f *fakeQueueRepo) Add(ctx context.Context, q *store.Queue) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	f.put(q)
	return nil
}

func (f *fakeQueueRepo) Update(ctx context.Context, q *store.Queue) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.queues[q.ID]
	if !ok {
		return errs.NotFoundf("queue %s not found", q.ID)
	}
	if existing.Version != q.Version {
		return errs.Conflictf("queue %s version mismatch", q.ID)
	}
	q.Version++
	cp := *q
	f.queues[q.ID] = &cp
	return nil
}

func (f *fakeQueueRepo) SoftDelete(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.queues[id]
	if !ok {
		return errs.NotFoundf("queue %s not found", id)
	}
	q.Deleted = true
	return nil
}

func (f *fakeQueueRepo) AdvanceRelease(ctx context.Context, id uuid.UUID, expectedVersion int64, newLastReleaseAt time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.queues[id]
	if !ok {
		return 0, errs.NotFoundf("queue %s not found", id)
	}
	if q.Version != expectedVersion {
		return 0, errs.Conflictf("queue %s version mismatch", id)
	}
	q.Version++
	q.LastReleaseAt = &newLastReleaseAt
	return q.Version, nil
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*store.UserSession
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[uuid.UUID]*store.UserSession)}
}

func (f *fakeSessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*store.UserSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, errs.NotFoundf("session %s not found", id)
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessionRepo) GetActiveByIdentifier(ctx context.Context, queueID uuid.UUID, userIdentifier string) (*store.UserSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.QueueID == queueID && s.UserIdentifier == userIdentifier &&
			(s.Status == store.SessionWaiting || s.Status == store.SessionServing) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeSessionRepo) ListWaitingOrdered(ctx context.Context, queueID uuid.UUID) ([]*store.UserSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.UserSession
	for _, s := range f.sessions {
		if s.QueueID == queueID && s.Status == store.SessionWaiting {
			cp := *s
			out = append(out, &cp)
		}
	}
	SortWaiting(out)
	return out, nil
}

func (f *fakeSessionRepo) CountActive(ctx context.Context, queueID uuid.UUID) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var waiting, serving int
	for _, s := range f.sessions {
		if s.QueueID != queueID {
			continue
		}
		switch s.Status {
		case store.SessionWaiting:
			waiting++
		case store.SessionServing:
			serving++
		}
	}
	return waiting, serving, nil
}

func (f *fakeSessionRepo) Add(ctx context.Context, s *store.UserSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	cp := *s
	f.sessions[s.ID] = &cp
	return nil
}

func (f *fakeSessionRepo) Update(ctx context.Context, s *store.UserSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[s.ID]; !ok {
		return errs.NotFoundf("session %s not found", s.ID)
	}
	cp := *s
	f.sessions[s.ID] = &cp
	return nil
}

func (f *fakeSessionRepo) UpdatePositions(ctx context.Context, positions map[uuid.UUID]int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, pos := range positions {
		if s, ok := f.sessions[id]; ok {
			s.Position = pos
		}
	}
	return nil
}

func (f *fakeSessionRepo) SessionsInRange(ctx context.Context, queueID uuid.UUID, from, to time.Time) ([]*store.UserSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.UserSession
	for _, s := range f.sessions {
		if s.QueueID == queueID && !s.EnqueuedAt.Before(from) && s.EnqueuedAt.Before(to) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeEventRepo struct {
	mu     sync.Mutex
	events []*store.QueueEvent
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{}
}

func (f *fakeEventRepo) Add(ctx context.Context, e *store.QueueEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func (f *fakeEventRepo) ListByQueue(ctx context.Context, queueID uuid.UUID, from, to time.Time) ([]*store.QueueEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.QueueEvent
	for _, e := range f.events {
		if e.QueueID == queueID {
			out = append(out, e)
		}
	}
	return out, nil
}
