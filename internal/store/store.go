// Package store defines the durable-store domain types and repository
// contracts. Concrete implementations live in internal/store/postgres;
// every read and write except BackupRepository's is scoped to the tenant
// connection already pinned by internal/tenant, so no repository method
// takes a tenant_id parameter of its own.
package store

import (
	"time"

	"github.com/google/uuid"
)

// Role enumerates a user's authorization role.
type Role string

const (
	RoleAdmin    Role = "Admin"
	RoleManager  Role = "Manager"
	RoleUser     Role = "User"
	RoleGuest    Role = "Guest"
	RoleAPIUser  Role = "ApiUser"
)

// UserStatus enumerates account status.
type UserStatus string

const (
	UserActive    UserStatus = "Active"
	UserInactive  UserStatus = "Inactive"
	UserSuspended UserStatus = "Suspended"
	UserPending   UserStatus = "Pending"
)

// User is a tenant-scoped account.
type User struct {
	ID               uuid.UUID
	Username         string
	Email            string
	PasswordHash     string
	FirstName        string
	LastName         string
	Phone            string
	Role             Role
	Status           UserStatus
	LastLoginAt      *time.Time
	EmailVerifiedAt  *time.Time
	PhoneVerifiedAt  *time.Time
	TwoFactorEnabled bool
	TwoFactorSecret  string
	RefreshTokenHash string
	RefreshExpiresAt *time.Time
	Metadata         map[string]any
	CreatedAt        time.Time
	Deleted          bool
}

// Priority orders Waiting sessions; higher values are served first.
type Priority int

const (
	PriorityLow      Priority = 0
	PriorityStandard Priority = 1
	PriorityPremium  Priority = 2
	PriorityVIP      Priority = 3
)

// SessionStatus enumerates a UserSession's lifecycle state.
type SessionStatus string

const (
	SessionWaiting  SessionStatus = "Waiting"
	SessionServing  SessionStatus = "Serving"
	SessionReleased SessionStatus = "Released"
	SessionDropped  SessionStatus = "Dropped"
)

// Schedule is the persisted form of a queue's activation gate. See
// pkg/schedule for the compiled, evaluable form.
type Schedule struct {
	BusinessHours *BusinessHours `json:"business_hours,omitempty"`
	StartDate     *time.Time     `json:"start_date,omitempty"`
	EndDate       *time.Time     `json:"end_date,omitempty"`
	Recurring     bool           `json:"recurring,omitempty"`
	SpecificDates []time.Time    `json:"specific_dates,omitempty"`
}

// BusinessHours is the persisted form of a weekly activation window.
type BusinessHours struct {
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	WorkingDays []int  `json:"working_days"` // 0=Sunday .. 6=Saturday
	TimeZone    string `json:"time_zone"`
}

// Queue is a named waiting line.
type Queue struct {
	ID                   uuid.UUID
	Name                 string
	Description          string
	MaxConcurrentUsers   int
	ReleaseRatePerMinute int
	Active               bool
	LastReleaseAt        *time.Time
	Schedule             Schedule
	Version              int64
	CreatedAt            time.Time
	Deleted              bool
}

// UserSession is one visitor's membership in one queue.
type UserSession struct {
	ID             uuid.UUID
	QueueID        uuid.UUID
	UserIdentifier string
	Status         SessionStatus
	Priority       Priority
	EnqueuedAt     time.Time
	ReleasedAt     *time.Time
	ServedAt       *time.Time
	Position       int
	Metadata       map[string]any
	Version        int64
}

// DropReason classifies why a session left the Waiting state via Drop.
type DropReason string

const (
	DropReasonUser    DropReason = "user"
	DropReasonTimeout DropReason = "timeout"
	DropReasonAdmin   DropReason = "admin"
)

// QueueEventType tags an entry in the append-only queue event log.
type QueueEventType string

const (
	EventUserEnqueued QueueEventType = "UserEnqueued"
	EventUserDropped  QueueEventType = "UserDropped"
	EventUserReleased QueueEventType = "UserReleased"
	EventUserServing  QueueEventType = "UserServing"
)

// QueueEvent is an append-only audit record of admission/release/drop.
type QueueEvent struct {
	ID        uuid.UUID
	QueueID   uuid.UUID
	SessionID *uuid.UUID
	EventType QueueEventType
	Timestamp time.Time
	Metadata  map[string]any
	IP        string
	UserAgent string
}
