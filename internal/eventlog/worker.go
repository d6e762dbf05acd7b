package eventlog

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// defaultPollInterval paces outbox scans when the log is idle.
const defaultPollInterval = 500 * time.Millisecond

// defaultBatchSize caps how many events one forwarding pass ships.
const defaultBatchSize = 100

// Worker forwards committed events from the outbox to a sink. Failures leave
// events pending; the next pass retries them, so delivery is at-least-once.
type Worker struct {
	store    Store
	sink     Sink
	logger   *slog.Logger
	interval time.Duration
	batch    int
}

func NewWorker(store Store, sink Sink, logger *slog.Logger) *Worker {
	return &Worker{
		store:    store,
		sink:     sink,
		logger:   logger,
		interval: defaultPollInterval,
		batch:    defaultBatchSize,
	}
}

// Run forwards events until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.forwardOnce(ctx); err != nil && ctx.Err() == nil {
				w.logger.WarnContext(ctx, "event forwarding pass failed", "error", err)
			}
		}
	}
}

func (w *Worker) forwardOnce(ctx context.Context) error {
	events, err := w.store.ListPending(ctx, w.batch)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}
	if err := w.sink.Publish(ctx, events); err != nil {
		return err
	}
	ids := make([]uuid.UUID, len(events))
	for i, event := range events {
		ids[i] = event.ID
	}
	return w.store.MarkPublished(ctx, ids)
}
