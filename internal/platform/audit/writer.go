package audit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carevault/carevault/internal/platform/metrics"
)

// Store persists audit entries. The Writer is the only component permitted
// to call it for writes.
type Store interface {
	Insert(ctx context.Context, e *Entry) error
	InsertBatch(ctx context.Context, entries []*Entry) error
}

// Writer durably appends classified entries to the audit store off the
// request path. Persistence runs on a background worker fed by a bounded
// queue: the originating request never waits for, and never observes, a
// write failure. Failures are logged, counted, and dropped.
type Writer struct {
	store   Store
	logger  zerolog.Logger
	queue   chan *Entry
	timeout time.Duration

	// mu serializes queue sends against Close so a late Enqueue can never
	// hit a closed channel, regardless of caller shutdown ordering.
	mu     sync.RWMutex
	closed bool

	wg       sync.WaitGroup
	failures atomic.Uint64
	dropped  atomic.Uint64
	written  atomic.Uint64
}

// NewWriter creates a Writer with a queue of the given size and starts its
// background worker. timeout bounds each persistence attempt independently
// of any request deadline.
func NewWriter(store Store, logger zerolog.Logger, queueSize int, timeout time.Duration) *Writer {
	if queueSize < 1 {
		queueSize = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	w := &Writer{
		store:   store,
		logger:  logger,
		queue:   make(chan *Entry, queueSize),
		timeout: timeout,
	}
	w.wg.Add(1)
	go w.run()
	return w
}

func (w *Writer) run() {
	defer w.wg.Done()
	for e := range w.queue {
		w.persist(e)
	}
}

func (w *Writer) persist(e *Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	if err := w.store.Insert(ctx, e); err != nil {
		w.failures.Add(1)
		metrics.AuditWriteFailures.Inc()
		w.logger.Error().Err(err).
			Str("event_type", string(e.EventType)).
			Str("action", e.Action).
			Msg("audit entry persistence failed")
		return
	}
	w.written.Add(1)
	metrics.AuditEntriesWritten.Inc()
}

// Enqueue hands a draft to the background worker without blocking. Invalid
// drafts and queue saturation are counted and logged but never surfaced:
// losing one audit record is preferable to failing a clinical operation.
func (w *Writer) Enqueue(e Entry) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.dropped.Add(1)
		metrics.AuditDropped.Inc()
		return
	}

	fillDefaults(&e)
	e.Redact()
	if err := e.Validate(); err != nil {
		w.failures.Add(1)
		metrics.AuditWriteFailures.Inc()
		w.logger.Error().Err(err).Str("action", e.Action).Msg("invalid audit entry rejected")
		return
	}

	select {
	case w.queue <- &e:
	default:
		w.dropped.Add(1)
		metrics.AuditDropped.Inc()
		w.logger.Error().
			Str("event_type", string(e.EventType)).
			Str("action", e.Action).
			Msg("audit queue full, entry dropped")
	}
}

// CreateManual validates and enqueues an entry built by a call site that
// knows more than the classifier can infer from the HTTP shape (e.g. which
// patient identifiers were touched). Manual entries bypass classification
// and are persisted as-is after validation.
func (w *Writer) CreateManual(e Entry) error {
	fillDefaults(&e)
	e.Redact()
	if err := e.Validate(); err != nil {
		return err
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.dropped.Add(1)
		metrics.AuditDropped.Inc()
		return fmt.Errorf("audit writer: closed")
	}
	select {
	case w.queue <- &e:
		return nil
	default:
		w.dropped.Add(1)
		metrics.AuditDropped.Inc()
		return fmt.Errorf("audit writer: queue full")
	}
}

// WriteBatch validates and persists a sequence of drafts as a single unit,
// synchronously. Intended for bulk/background workflows, not the request path.
func (w *Writer) WriteBatch(ctx context.Context, entries []Entry) error {
	batch := make([]*Entry, 0, len(entries))
	for i := range entries {
		e := entries[i]
		fillDefaults(&e)
		e.Redact()
		if err := e.Validate(); err != nil {
			return fmt.Errorf("audit batch entry %d: %w", i, err)
		}
		batch = append(batch, &e)
	}
	if len(batch) == 0 {
		return nil
	}
	if err := w.store.InsertBatch(ctx, batch); err != nil {
		w.failures.Add(1)
		metrics.AuditWriteFailures.Inc()
		return fmt.Errorf("audit batch insert: %w", err)
	}
	w.written.Add(uint64(len(batch)))
	for range batch {
		metrics.AuditEntriesWritten.Inc()
	}
	return nil
}

// Close stops accepting entries, drains the queue, and waits for the worker
// to finish or the context to expire.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("audit writer: drain interrupted: %w", ctx.Err())
	}
}

// Failures reports the persistence failure count since startup. Exposed so
// repeated failures can be surfaced as an operational alert.
func (w *Writer) Failures() uint64 { return w.failures.Load() }

// Dropped reports entries discarded due to queue saturation.
func (w *Writer) Dropped() uint64 { return w.dropped.Load() }

// Written reports entries successfully persisted.
func (w *Writer) Written() uint64 { return w.written.Load() }

func fillDefaults(e *Entry) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
}
