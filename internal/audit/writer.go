// Package audit is an async, buffered writer for the append-only audit log.
package audit

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/queueforge/vqueue/internal/auth"
	"github.com/queueforge/vqueue/internal/store"
	"github.com/queueforge/vqueue/internal/tenant"
)

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
	flushBatch    = 32
)

// entry pairs an AuditEntry with the tenant connection it must be written
// through, since the writer runs detached from any single request context.
type entry struct {
	conn *tenant.Info
	rec  store.AuditEntry
}

// Writer is an async, buffered audit log writer. Entries are sent to an
// internal channel and flushed by a background goroutine, grouped by
// tenant so each tenant's repository is resolved once per flush; the
// entries themselves are still written one row at a time.
type Writer struct {
	repoFor func(tenantID uuid.UUID) store.AuditRepository
	logger  *slog.Logger
	entries chan entry
	wg      sync.WaitGroup
}

// NewWriter creates an audit Writer. repoFor resolves the tenant-scoped
// AuditRepository for a given tenant id; Start begins processing entries.
func NewWriter(repoFor func(tenantID uuid.UUID) store.AuditRepository, logger *slog.Logger) *Writer {
	return &Writer{
		repoFor: repoFor,
		logger:  logger,
		entries: make(chan entry, bufferSize),
	}
}

// Start begins the background goroutine that flushes audit entries.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Close waits for all pending entries to be flushed.
func (w *Writer) Close() {
	close(w.entries)
	w.wg.Wait()
}

// Log enqueues an audit entry for async writing. It never blocks the
// caller; if the buffer is full the entry is dropped and a warning logged.
func (w *Writer) Log(info *tenant.Info, rec store.AuditEntry) {
	select {
	case w.entries <- entry{conn: info, rec: rec}:
	default:
		if w.logger != nil {
			w.logger.Warn("audit log buffer full, dropping entry",
				"action", rec.Action, "entity_type", rec.EntityType)
		}
	}
}

// LogFromRequest is a convenience method that extracts tenant and actor
// identity from the request context, then enqueues the entry.
func (w *Writer) LogFromRequest(r *http.Request, action, entityType, entityID string, before, after map[string]any, result string) {
	rec := store.AuditEntry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Before:     before,
		After:      after,
		Result:     result,
		OccurredAt: time.Now().UTC(),
	}

	if id := auth.FromContext(r.Context()); id != nil {
		rec.Actor = id.Subject
	}
	rec.IP = clientIP(r)
	rec.UserAgent = r.Header.Get("User-Agent")

	w.Log(tenant.FromContext(r.Context()), rec)
}

func (w *Writer) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]entry, 0, flushBatch)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case e, ok := <-w.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, e)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case e, ok := <-w.entries:
					if !ok {
						flush()
						return
					}
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		}
	}
}

// flush writes a batch of entries, grouped by tenant.
func (w *Writer) flush(batch []entry) {
	byTenant := make(map[uuid.UUID][]entry)
	for _, e := range batch {
		var id uuid.UUID
		if e.conn != nil {
			id = e.conn.ID
		}
		byTenant[id] = append(byTenant[id], e)
	}

	for tenantID, entries := range byTenant {
		if tenantID == uuid.Nil {
			if w.logger != nil {
				w.logger.Warn("audit entry without tenant, skipping", "count", len(entries))
			}
			continue
		}
		repo := w.repoFor(tenantID)
		for _, e := range entries {
			if err := repo.Add(context.Background(), &e.rec); err != nil && w.logger != nil {
				w.logger.Error("writing audit log entry", "error", err,
					"action", e.rec.Action, "entity_type", e.rec.EntityType)
			}
		}
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
