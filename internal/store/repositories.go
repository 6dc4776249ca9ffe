package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// QueueRepository persists Queue records.
type QueueRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Queue, error)
	ListActive(ctx context.Context) ([]*Queue, error)
	List(ctx context.Context) ([]*Queue, error)
	Add(ctx context.Context, q *Queue) error
	// Update performs an optimistic-concurrency write: it fails with
	// errs.Conflict if q.Version does not match the stored row, and bumps
	// the stored version on success.
	Update(ctx context.Context, q *Queue) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	// AdvanceRelease atomically sets last_release_at and bumps the version
	// when the stored version still equals expectedVersion, failing with
	// errs.Conflict otherwise. It is used only by the releaser, so two
	// concurrent ticks on the same queue cannot both advance it.
	AdvanceRelease(ctx context.Context, id uuid.UUID, expectedVersion int64, newLastReleaseAt time.Time) (newVersion int64, err error)
}

// SessionRepository persists UserSession records.
type SessionRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*UserSession, error)
	// GetActiveByIdentifier returns the non-terminal (Waiting or Serving)
	// session for (queueID, userIdentifier), or nil if none exists.
	GetActiveByIdentifier(ctx context.Context, queueID uuid.UUID, userIdentifier string) (*UserSession, error)
	// ListWaitingOrdered returns all Waiting sessions for a queue in the
	// canonical priority/enqueued_at/id order (see pkg/queueengine/ordering.go).
	ListWaitingOrdered(ctx context.Context, queueID uuid.UUID) ([]*UserSession, error)
	CountActive(ctx context.Context, queueID uuid.UUID) (waiting, serving int, err error)
	Add(ctx context.Context, s *UserSession) error
	Update(ctx context.Context, s *UserSession) error
	// UpdatePositions persists a new position for each session id in one
	// call after a recomputation pass; the postgres implementation issues
	// one UPDATE per session.
	UpdatePositions(ctx context.Context, positions map[uuid.UUID]int) error
	SessionsInRange(ctx context.Context, queueID uuid.UUID, from, to time.Time) ([]*UserSession, error)
}

// QueueEventRepository persists the append-only QueueEvent log.
type QueueEventRepository interface {
	Add(ctx context.Context, e *QueueEvent) error
	ListByQueue(ctx context.Context, queueID uuid.UUID, from, to time.Time) ([]*QueueEvent, error)
}

// UserRepository persists User accounts.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Add(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

// AuditEntry is an append-only record of a mutating operation.
type AuditEntry struct {
	ID         uuid.UUID
	Actor      string
	Action     string
	EntityType string
	EntityID   string
	Before     map[string]any
	After      map[string]any
	IP         string
	UserAgent  string
	Result     string
	OccurredAt time.Time
}

// AuditRepository persists audit log entries.
type AuditRepository interface {
	Add(ctx context.Context, e *AuditEntry) error
	ListByTimeRange(ctx context.Context, from, to time.Time) ([]*AuditEntry, error)
	ListByEntity(ctx context.Context, entityType, entityID string) ([]*AuditEntry, error)
	ListByActor(ctx context.Context, actor string) ([]*AuditEntry, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ApiKey is an opaque bearer credential resolving to a tenant and a fixed
// permission list.
type ApiKey struct {
	ID          uuid.UUID
	Name        string
	KeyHash     string
	KeyPrefix   string
	Permissions []string
	Revoked     bool
	CreatedAt   time.Time
	LastUsedAt  *time.Time
}

// ApiKeyRepository persists ApiKey records.
type ApiKeyRepository interface {
	GetByHash(ctx context.Context, hash string) (*ApiKey, error)
	List(ctx context.Context) ([]*ApiKey, error)
	Add(ctx context.Context, k *ApiKey) error
	Revoke(ctx context.Context, id uuid.UUID) error
	TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Webhook is a tenant-registered HTTP subscriber.
type Webhook struct {
	ID         uuid.UUID
	URL        string
	Secret     string // HMAC-SHA256 signing key for the X-Vqueue-Signature header
	EventTypes []string
	Headers    map[string]string
	Active     bool
	CreatedAt  time.Time
	Deleted    bool
}

// WebhookDelivery records one attempted delivery.
type WebhookDelivery struct {
	ID          uuid.UUID
	WebhookID   uuid.UUID
	EventType   string
	Payload     map[string]any
	StatusCode  int
	Retryable   bool
	DeliveredAt *time.Time
	CreatedAt   time.Time
}

// WebhookRepository persists Webhook records and their deliveries.
type WebhookRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Webhook, error)
	ListActiveForEvent(ctx context.Context, eventType string) ([]*Webhook, error)
	List(ctx context.Context) ([]*Webhook, error)
	Add(ctx context.Context, w *Webhook) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	RecordDelivery(ctx context.Context, d *WebhookDelivery) error
	ListDeliveries(ctx context.Context, webhookID uuid.UUID) ([]*WebhookDelivery, error)
}

// RetentionAction classifies what a RetentionPolicy does to matching rows.
type RetentionAction string

const (
	RetentionDelete  RetentionAction = "Delete"
	RetentionArchive RetentionAction = "Archive"
)

// RetentionPolicy ages out entities older than RetentionPeriod.
type RetentionPolicy struct {
	ID               uuid.UUID
	EntityType       string
	RetentionPeriod  time.Duration
	Action           RetentionAction
	Criteria         map[string]any
	Active           bool
	CreatedAt        time.Time
}

// RetentionRepository persists RetentionPolicy records.
type RetentionRepository interface {
	List(ctx context.Context) ([]*RetentionPolicy, error)
	Add(ctx context.Context, p *RetentionPolicy) error
}

// BackupStatus tracks a snapshot through its lifecycle.
type BackupStatus string

const (
	BackupPending   BackupStatus = "Pending"
	BackupRunning   BackupStatus = "Running"
	BackupCompleted BackupStatus = "Completed"
	BackupFailed    BackupStatus = "Failed"
)

// Backup is an opaque snapshot record. TenantID is nil for a system-wide
// backup spanning every tenant schema.
type Backup struct {
	ID          uuid.UUID
	TenantID    *uuid.UUID
	Status      BackupStatus
	Location    string // URI the snapshot was written to
	SizeBytes   int64
	Checksum    string // hex sha256 of the snapshot contents
	CreatedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// BackupRepository persists Backup records.
type BackupRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Backup, error)
	List(ctx context.Context) ([]*Backup, error)
	Add(ctx context.Context, b *Backup) error
	Update(ctx context.Context, b *Backup) error
}
