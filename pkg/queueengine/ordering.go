// Package queueengine implements the virtual queue's admission, ordering
// and release semantics on top of internal/store.
package queueengine

import (
	"sort"

	"github.com/google/uuid"

	"github.com/queueforge/vqueue/internal/store"
)

// Less reports whether a should be served before b: higher priority first,
// then earlier enqueued_at, then lexicographically smaller id as a final
// tiebreaker so the order is always total and deterministic.
func Less(a, b *store.UserSession) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.EnqueuedAt.Equal(b.EnqueuedAt) {
		return a.EnqueuedAt.Before(b.EnqueuedAt)
	}
	return a.ID.String() < b.ID.String()
}

// SortWaiting orders sessions in-place per Less.
func SortWaiting(sessions []*store.UserSession) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return Less(sessions[i], sessions[j])
	})
}

// RecomputePositions assigns 1-based positions to an already-ordered
// Waiting list, updates each session's Position field, and returns only
// the entries whose position changed so callers can persist a minimal
// batch update via SessionRepository.UpdatePositions.
func RecomputePositions(ordered []*store.UserSession) map[uuid.UUID]int {
	changed := make(map[uuid.UUID]int)
	for i, s := range ordered {
		pos := i + 1
		if s.Position != pos {
			changed[s.ID] = pos
			s.Position = pos
		}
	}
	return changed
}
