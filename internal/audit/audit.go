// Package audit implements the append-only audit log (§6, §8 property 9):
// every capability grant/revocation, amendment transition, liquidation, key
// cooldown entry/exit, and constitution activation produces an entry whose
// actor_id is non-empty and whose timestamp is monotonically non-decreasing
// per actor.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/neurotech-brt/agentium/internal/authctx"
)

// Level mirrors the severity tags used throughout §7 error handling design.
type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Entry represents a single audit log entry to be written.
type Entry struct {
	Level      Level
	ActorType  string // "agent" | "principal" | "system"
	ActorID    string // tier_id, username, or "system"
	Action     string
	TargetType string
	TargetID   string
	Detail     json.RawMessage
	TS         time.Time
}

// Writer is an async, buffered audit log writer. Entries are sent to an
// internal channel and flushed by a background goroutine, so logging an
// audit entry never blocks the caller's transaction.
type Writer struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	entries chan Entry
	wg      sync.WaitGroup

	mu     sync.Mutex
	lastTS map[string]time.Time // last written ts per actor, enforces monotonicity
}

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
	flushBatch    = 32
)

// NewWriter creates an audit Writer. Call Start to begin processing entries.
func NewWriter(pool *pgxpool.Pool, logger *slog.Logger) *Writer {
	return &Writer{
		pool:    pool,
		logger:  logger,
		entries: make(chan Entry, bufferSize),
		lastTS:  make(map[string]time.Time),
	}
}

// Start launches the background goroutine that flushes audit entries to the
// database and returns immediately. The goroutine stops once ctx is
// cancelled or Close is called; Close waits for it to finish.
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

// Log enqueues an audit entry for async writing. It never blocks the caller;
// if the buffer is full, the entry is dropped and a warning is logged — audit
// completeness on the hot path is best-effort by design, matching the
// teacher's async writer; callers that require a synchronous guarantee (e.g.
// constitution activation) should call LogSync instead.
func (w *Writer) Log(entry Entry) {
	entry = w.stamp(entry)
	select {
	case w.entries <- entry:
	default:
		w.logger.Warn("audit log buffer full, dropping entry",
			"action", entry.Action, "target_type", entry.TargetType)
	}
}

// LogSync writes an entry immediately instead of enqueueing it, for
// operations (constitution activation, amendment ratification) that must not
// observe a gap between the domain mutation and its audit record.
func (w *Writer) LogSync(ctx context.Context, entry Entry) error {
	return w.insert(ctx, w.pool, w.stamp(entry))
}

// LogFromRequest is a convenience method that extracts the authenticated
// caller from the request context, then enqueues the entry.
func (w *Writer) LogFromRequest(r *http.Request, action, targetType, targetID string, detail json.RawMessage) {
	entry := Entry{
		Level:      LevelInfo,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Detail:     detail,
		ActorType:  "principal",
		ActorID:    "unknown",
	}

	if id := authctx.FromContext(r.Context()); id != nil {
		entry.ActorID = id.Subject
		if !id.IsPrincipal {
			entry.ActorType = "agent"
		}
	}

	w.Log(entry)
}

func (w *Writer) stamp(entry Entry) Entry {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now().UTC()
	if last, ok := w.lastTS[entry.ActorID]; ok && !now.After(last) {
		now = last.Add(time.Microsecond)
	}
	entry.TS = now
	w.lastTS[entry.ActorID] = now
	return entry
}

func (w *Writer) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, flushBatch)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-w.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case entry, ok := <-w.entries:
					if !ok {
						flush()
						return
					}
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (w *Writer) flush(entries []Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, e := range entries {
		if err := w.insert(ctx, w.pool, e); err != nil {
			w.logger.Error("writing audit log entry", "error", err,
				"action", e.Action, "target_type", e.TargetType)
		}
	}
}

func (w *Writer) insert(ctx context.Context, pool *pgxpool.Pool, e Entry) error {
	if e.ActorID == "" {
		return fmt.Errorf("audit entry missing actor_id for action %q", e.Action)
	}
	if e.Detail == nil {
		e.Detail = json.RawMessage("{}")
	}
	_, err := pool.Exec(ctx, `
		INSERT INTO audit_logs (id, ts, level, actor_type, actor_id, action, target_type, target_id, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, uuid.New(), e.TS, string(e.Level), e.ActorType, e.ActorID, e.Action, e.TargetType, e.TargetID, e.Detail)
	if err != nil {
		return fmt.Errorf("inserting audit log entry: %w", err)
	}
	return nil
}
