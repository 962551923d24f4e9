package notify

import (
	"context"
	"log/slog"
	"time"
)

const enqueueTimeout = 5 * time.Second

// Enqueuer submits a delivery task for a stored notification.
type Enqueuer interface {
	EnqueueNotification(ctx context.Context, id int64) error
}

// Recorder counts enqueue outcomes.
type Recorder interface {
	ObserveEnqueue(ok bool)
}

// Dispatcher hands committed notification rows to the queue.
type Dispatcher struct {
	queue    Enqueuer
	logger   *slog.Logger
	recorder Recorder
}

// NewDispatcher constructs a Dispatcher. A nil queue leaves rows PENDING for
// the redispatch job.
func NewDispatcher(queue Enqueuer, logger *slog.Logger, recorder Recorder) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{queue: queue, logger: logger, recorder: recorder}
}

// Enqueue submits each id. Failures are logged and counted, never returned:
// the rows stay PENDING and are picked up again by the redispatch job.
func (d *Dispatcher) Enqueue(ctx context.Context, ids ...int64) {
	if d == nil || len(ids) == 0 {
		return
	}
	if d.queue == nil {
		d.logger.Debug("notification queue not configured", slog.Int("pending", len(ids)))
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
	defer cancel()

	for _, id := range ids {
		err := d.queue.EnqueueNotification(ctx, id)
		if d.recorder != nil {
			d.recorder.ObserveEnqueue(err == nil)
		}
		if err != nil {
			d.logger.Warn("enqueue notification failed",
				slog.Int64("notification_id", id),
				slog.Any("error", err))
		}
	}
}
