// Package eventbus is the in-process typed publish/subscribe hub that
// drives notification fan-out and analytics from queue engine activity.
package eventbus

import (
	"time"

	"github.com/google/uuid"
)

// EventType tags an Event for transport and subscriber dispatch.
type EventType string

const (
	UserEnqueued EventType = "UserEnqueued"
	UserDropped  EventType = "UserDropped"
	UserReleased EventType = "UserReleased"
	UserServing  EventType = "UserServing"
)

// Event is a JSON-serializable domain event carrying {event_id, occurred_at,
// tenant_id} plus the entity diff, per the external interface contract.
type Event struct {
	ID         uuid.UUID      `json:"event_id"`
	Type       EventType      `json:"event_type"`
	TenantID   uuid.UUID      `json:"tenant_id"`
	QueueID    uuid.UUID      `json:"queue_id"`
	SessionID  *uuid.UUID     `json:"session_id,omitempty"`
	Position   int            `json:"position,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload,omitempty"`
	// Critical events (analytics rollup inputs) are persisted before the
	// publish call acknowledges; non-critical events may be dropped under
	// sustained overload.
	Critical bool `json:"-"`
}
