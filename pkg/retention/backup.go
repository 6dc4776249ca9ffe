package retention

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/queueforge/vqueue/internal/errs"
	"github.com/queueforge/vqueue/internal/store"
)

// SnapshotReader opens a backup's content for verification. A local-disk
// implementation wraps os.Open; a cloud implementation wraps an object-store
// GetObject call. Either way Verify only needs io.Reader + the byte count.
type SnapshotReader interface {
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

// BackupManager creates and verifies opaque snapshot records.
type BackupManager struct {
	Backups store.BackupRepository
	Reader  SnapshotReader
	Clock   func() time.Time
}

// NewBackupManager constructs a BackupManager. clock defaults to time.Now.
func NewBackupManager(backups store.BackupRepository, reader SnapshotReader, clock func() time.Time) *BackupManager {
	if clock == nil {
		clock = time.Now
	}
	return &BackupManager{Backups: backups, Reader: reader, Clock: clock}
}

// Start records a new Pending backup for tenantID (nil for system-wide).
func (m *BackupManager) Start(ctx context.Context, tenantID *uuid.UUID, location string) (*store.Backup, error) {
	b := &store.Backup{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Status:    store.BackupPending,
		Location:  location,
		CreatedAt: m.Clock(),
	}
	if err := m.Backups.Add(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Complete marks a backup Completed with its final size and checksum.
func (m *BackupManager) Complete(ctx context.Context, b *store.Backup, sizeBytes int64, checksum string) error {
	now := m.Clock()
	b.Status = store.BackupCompleted
	b.SizeBytes = sizeBytes
	b.Checksum = checksum
	b.CompletedAt = &now
	return m.Backups.Update(ctx, b)
}

// Fail marks a backup Failed with the given error message.
func (m *BackupManager) Fail(ctx context.Context, b *store.Backup, cause error) error {
	now := m.Clock()
	b.Status = store.BackupFailed
	b.Error = cause.Error()
	b.CompletedAt = &now
	return m.Backups.Update(ctx, b)
}

// Verify reports whether a Completed backup's snapshot still exists, has a
// positive size, and hashes to its recorded checksum.
func (m *BackupManager) Verify(ctx context.Context, b *store.Backup) (bool, error) {
	if b.Status != store.BackupCompleted {
		return false, errs.InvalidStatef("backup %s is %s, not Completed", b.ID, b.Status)
	}

	rc, err := m.Reader.Open(ctx, b.Location)
	if err != nil {
		return false, nil
	}
	defer rc.Close()

	hasher := sha256.New()
	n, err := io.Copy(hasher, rc)
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	sum := hex.EncodeToString(hasher.Sum(nil))
	return sum == b.Checksum, nil
}
