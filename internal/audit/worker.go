package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	dErrors "phiguard/pkg/domain-errors"
)

// ErrQueueFull is returned by Worker.Emit when the buffer has no room.
var ErrQueueFull = errors.New("audit queue full")

const defaultDrainTimeout = 5 * time.Second

// Worker decouples a slow sink (a broker or remote store) from the request path.
// Emit enqueues without blocking; Run drains the queue into the downstream sink
// and dead-letters anything it rejects.
type Worker struct {
	next       Sink
	inbox      chan Record
	deadLetter *slog.Logger
	timeout    time.Duration

	// mu orders Emit against shutdown: once stopped is set under the write lock,
	// no further record can enter inbox and the final drain sees everything.
	mu      sync.RWMutex
	stopped bool
}

func NewWorker(next Sink, buffer int, deadLetter *slog.Logger) *Worker {
	if buffer <= 0 {
		buffer = 1
	}
	return &Worker{
		next:       next,
		inbox:      make(chan Record, buffer),
		deadLetter: deadLetter,
		timeout:    defaultDrainTimeout,
	}
}

// Emit queues the record. A full queue is reported to the caller so the recorder
// can dead-letter it.
func (w *Worker) Emit(ctx context.Context, record Record) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return dErrors.New(dErrors.CodeAuditWrite, "audit worker stopped")
	}
	select {
	case w.inbox <- record:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// Run persists queued records until ctx is cancelled, then flushes what is
// already buffered before returning.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.stop()
			w.drain()
			return ctx.Err()
		case record := <-w.inbox:
			w.persist(context.WithoutCancel(ctx), record)
		}
	}
}

func (w *Worker) stop() {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
}

func (w *Worker) drain() {
	for {
		select {
		case record := <-w.inbox:
			w.persist(context.Background(), record)
		default:
			return
		}
	}
}

func (w *Worker) persist(ctx context.Context, record Record) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	if err := w.next.Emit(ctx, record); err != nil {
		writeFailuresTotal.Inc()
		w.deadLetter.ErrorContext(ctx, "audit record could not be persisted",
			"code", string(dErrors.CodeAuditWrite),
			"error", err,
			"request_id", record.RequestID,
			"record", record,
		)
	}
}
