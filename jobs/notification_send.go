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
	"github.com/kid-livraison/parcel/internal/shared"
)

// NotificationSendJob delivers stored notifications through a Sender.
// Delivery is at least once: rows no longer PENDING are skipped.
type NotificationSendJob struct {
	Store   notify.DeliveryStore
	Sender  notify.Sender
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewNotificationSendJob initialises the send handler.
func NewNotificationSendJob(store notify.DeliveryStore, sender notify.Sender, logger *slog.Logger, metrics *jobmetrics.Metrics) *NotificationSendJob {
	return &NotificationSendJob{
		Store:   store,
		Sender:  sender,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one delivery attempt.
func (j *NotificationSendJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Store == nil || j.Sender == nil {
		return errors.New("notification send: handler not configured")
	}
	var payload NotificationSendPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.NotificationID <= 0 {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskNotificationSend)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.logger().With(slog.Int64("notification_id", payload.NotificationID))
	n, err := j.Store.Get(ctx, payload.NotificationID)
	if errors.Is(err, shared.ErrNotFound) {
		logger.Warn("notification vanished before delivery")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load notification: %w", err)
	}
	if n.Status != notify.StatusPending {
		logger.Debug("notification already settled", slog.String("status", string(n.Status)))
		return nil
	}

	sendErr := j.Sender.Send(ctx, n.Message())
	channel := string(n.Channel)
	switch {
	case sendErr == nil:
		if err := j.Store.MarkSent(ctx, n.ID, j.now()); err != nil {
			return fmt.Errorf("mark sent: %w", err)
		}
		j.metrics().ObserveDelivery(channel, "sent")
		logger.Info("notification delivered", slog.String("channel", channel))
		return nil
	case errors.Is(sendErr, notify.ErrRejected) || finalAttempt(ctx):
		if err := j.Store.MarkFailed(ctx, n.ID, sendErr.Error()); err != nil {
			return fmt.Errorf("mark failed: %w", err)
		}
		j.metrics().ObserveDelivery(channel, "failed")
		logger.Warn("notification failed permanently", slog.Any("error", sendErr))
		return fmt.Errorf("%v: %w", sendErr, asynq.SkipRetry)
	default:
		if err := j.Store.RecordAttempt(ctx, n.ID, sendErr.Error()); err != nil {
			logger.Warn("record attempt", slog.Any("error", err))
		}
		j.metrics().ObserveDelivery(channel, "retry")
		return fmt.Errorf("send notification: %w", sendErr)
	}
}

// finalAttempt reports whether asynq will not retry the running task again.
func finalAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return false
	}
	limit, ok := asynq.GetMaxRetry(ctx)
	return ok && retried >= limit
}

func (j *NotificationSendJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *NotificationSendJob) metrics() *jobmetrics.Metrics {
	return j.Metrics
}

func (j *NotificationSendJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
