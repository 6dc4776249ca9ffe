package queueengine

import (
	"time"

	"github.com/queueforge/vqueue/internal/errs"
	"github.com/queueforge/vqueue/internal/store"
)

// transitions enumerates every legal SessionStatus move. Anything not
// listed here is rejected with errs.InvalidState.
var transitions = map[store.SessionStatus][]store.SessionStatus{
	store.SessionWaiting: {store.SessionServing, store.SessionReleased, store.SessionDropped},
	store.SessionServing: {store.SessionReleased},
}

// canTransition reports whether from -> to is a legal move.
func canTransition(from, to store.SessionStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// applyTransition moves s to status at the given time, stamping the
// matching timestamp field, or returns errs.InvalidState if the move
// isn't legal from s's current status.
func applyTransition(s *store.UserSession, to store.SessionStatus, at time.Time) error {
	if !canTransition(s.Status, to) {
		return errs.InvalidStatef("cannot transition session %s from %s to %s", s.ID, s.Status, to)
	}
	s.Status = to
	switch to {
	case store.SessionServing:
		s.ServedAt = &at
	case store.SessionReleased:
		s.ReleasedAt = &at
	case store.SessionDropped:
		s.ReleasedAt = &at
	}
	return nil
}
