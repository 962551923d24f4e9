package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueNotifications carries customer notification deliveries.
	QueueNotifications = "notifications"

	// TaskNotificationSend delivers one stored notification.
	TaskNotificationSend = "notification:send"
	// TaskNotificationRedispatch re-enqueues notifications whose enqueue was lost.
	TaskNotificationRedispatch = "notification:redispatch"

	// NotificationMaxRetry bounds delivery attempts of one notification.
	NotificationMaxRetry = 5
	// RedispatchSpec runs the redispatch sweep every five minutes.
	RedispatchSpec = "*/5 * * * *"
)

// NotificationSendPayload identifies the notification row to deliver.
type NotificationSendPayload struct {
	NotificationID int64 `json:"notification_id"`
}

// NotificationRedispatchPayload tunes one redispatch sweep.
type NotificationRedispatchPayload struct {
	MinAgeSeconds int `json:"min_age_seconds"`
	BatchSize     int `json:"batch_size"`
}

func (p NotificationRedispatchPayload) minAge() time.Duration {
	if p.MinAgeSeconds <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(p.MinAgeSeconds) * time.Second
}

func (p NotificationRedispatchPayload) batchSize() int {
	if p.BatchSize <= 0 {
		return 200
	}
	return p.BatchSize
}

// notificationTaskID keys a send task on its row so a row is queued at most
// once at a time.
func notificationTaskID(id int64) string {
	return fmt.Sprintf("notification:%d", id)
}

// NewNotificationSendTask constructs an Asynq task delivering notification id.
func NewNotificationSendTask(id int64) (*asynq.Task, error) {
	data, err := json.Marshal(NotificationSendPayload{NotificationID: id})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationSend, data,
		asynq.Queue(QueueNotifications),
		asynq.MaxRetry(NotificationMaxRetry),
		asynq.TaskID(notificationTaskID(id)),
	), nil
}

// NewNotificationRedispatchTask constructs the periodic redispatch task.
func NewNotificationRedispatchTask(minAge time.Duration, batchSize int) (*asynq.Task, error) {
	data, err := json.Marshal(NotificationRedispatchPayload{
		MinAgeSeconds: int(minAge / time.Second),
		BatchSize:     batchSize,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationRedispatch, data, asynq.Queue(QueueDefault)), nil
}
