package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/kid-livraison/parcel/internal/jobs"
	"github.com/kid-livraison/parcel/internal/notify"
)

// NotificationRedispatchJob re-enqueues PENDING notifications that were
// committed but never reached the queue.
type NotificationRedispatchJob struct {
	Store   notify.DeliveryStore
	Queue   notify.Enqueuer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewNotificationRedispatchJob initialises the redispatch handler.
func NewNotificationRedispatchJob(store notify.DeliveryStore, queue notify.Enqueuer, logger *slog.Logger, metrics *jobmetrics.Metrics) *NotificationRedispatchJob {
	return &NotificationRedispatchJob{
		Store:   store,
		Queue:   queue,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle runs one sweep.
func (j *NotificationRedispatchJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Store == nil || j.Queue == nil {
		return errors.New("notification redispatch: handler not configured")
	}
	var payload NotificationRedispatchPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.metrics().Track(TaskNotificationRedispatch)
	defer func() {
		err = tracker.End(err)
	}()

	cutoff := j.now().Add(-payload.minAge())
	ids, err := j.Store.PendingIDs(ctx, cutoff, payload.batchSize())
	if err != nil {
		return fmt.Errorf("load pending notifications: %w", err)
	}

	var failed int
	for _, id := range ids {
		if err := j.Queue.EnqueueNotification(ctx, id); err != nil {
			failed++
			j.logger().Warn("redispatch notification", slog.Int64("notification_id", id), slog.Any("error", err))
		}
	}
	j.logger().Info("completed notification redispatch",
		slog.Int("pending", len(ids)),
		slog.Int("failed", failed),
		slog.Time("cutoff", cutoff))
	if failed > 0 && failed == len(ids) {
		return fmt.Errorf("redispatch: all %d enqueues failed", failed)
	}
	return nil
}

func (j *NotificationRedispatchJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *NotificationRedispatchJob) metrics() *jobmetrics.Metrics {
	return j.Metrics
}

func (j *NotificationRedispatchJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
