package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/kid-livraison/parcel/internal/jobs"
	"github.com/kid-livraison/parcel/internal/notify"
	"github.com/kid-livraison/parcel/internal/shared"
)

type memoryDelivery struct {
	rows     map[int64]notify.Notification
	attempts map[int64]int
	pending  []int64
	cutoff   time.Time
}

func newMemoryDelivery(rows ...notify.Notification) *memoryDelivery {
	m := &memoryDelivery{rows: make(map[int64]notify.Notification), attempts: make(map[int64]int)}
	for _, n := range rows {
		m.rows[n.ID] = n
	}
	return m
}

func (m *memoryDelivery) Get(_ context.Context, id int64) (notify.Notification, error) {
	n, ok := m.rows[id]
	if !ok {
		return notify.Notification{}, fmt.Errorf("notification %d: %w", id, shared.ErrNotFound)
	}
	return n, nil
}

func (m *memoryDelivery) MarkSent(_ context.Context, id int64, at time.Time) error {
	n := m.rows[id]
	n.Status = notify.StatusSent
	n.SentAt = &at
	m.rows[id] = n
	return nil
}

func (m *memoryDelivery) MarkFailed(_ context.Context, id int64, reason string) error {
	n := m.rows[id]
	n.Status = notify.StatusFailed
	n.LastError = &reason
	m.rows[id] = n
	return nil
}

func (m *memoryDelivery) RecordAttempt(_ context.Context, id int64, _ string) error {
	m.attempts[id]++
	return nil
}

func (m *memoryDelivery) PendingIDs(_ context.Context, createdBefore time.Time, _ int) ([]int64, error) {
	m.cutoff = createdBefore
	return m.pending, nil
}

type stubSender struct {
	err  error
	sent []notify.Message
}

func (s *stubSender) Send(_ context.Context, msg notify.Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sendTask(t *testing.T, id int64) *asynq.Task {
	t.Helper()
	task, err := NewNotificationSendTask(id)
	require.NoError(t, err)
	return task
}

func pendingSMS(id int64) notify.Notification {
	return notify.Notification{ID: id, PackageID: 1, Kind: notify.KindIncomingPackage, Channel: notify.ChannelSMS,
		Recipient: "+2250700000000", Subject: "s", Body: "b", Status: notify.StatusPending}
}

func TestSendJobDeliversPending(t *testing.T) {
	store := newMemoryDelivery(pendingSMS(1))
	sender := &stubSender{}
	job := NewNotificationSendJob(store, sender, discard(), jobmetrics.NewMetrics(prometheus.NewRegistry()))

	require.NoError(t, job.Handle(context.Background(), sendTask(t, 1)))
	assert.Equal(t, notify.StatusSent, store.rows[1].Status)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "+2250700000000", sender.sent[0].To)

	require.NoError(t, job.Handle(context.Background(), sendTask(t, 1)))
	assert.Len(t, sender.sent, 1)
}

func TestSendJobTransientFailureRetries(t *testing.T) {
	store := newMemoryDelivery(pendingSMS(2))
	job := NewNotificationSendJob(store, &stubSender{err: errors.New("gateway timeout")}, discard(), nil)

	err := job.Handle(context.Background(), sendTask(t, 2))
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
	assert.Equal(t, notify.StatusPending, store.rows[2].Status)
	assert.Equal(t, 1, store.attempts[2])
}

func TestSendJobRejectedFailsPermanently(t *testing.T) {
	store := newMemoryDelivery(pendingSMS(3))
	job := NewNotificationSendJob(store, &stubSender{err: fmt.Errorf("%w: bad number", notify.ErrRejected)}, discard(), nil)

	err := job.Handle(context.Background(), sendTask(t, 3))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Equal(t, notify.StatusFailed, store.rows[3].Status)
	require.NotNil(t, store.rows[3].LastError)
	assert.Contains(t, *store.rows[3].LastError, "bad number")
}

func TestSendJobMissingRowIsDropped(t *testing.T) {
	job := NewNotificationSendJob(newMemoryDelivery(), &stubSender{}, discard(), nil)
	assert.NoError(t, job.Handle(context.Background(), sendTask(t, 99)))
}

func TestSendJobBadPayload(t *testing.T) {
	job := NewNotificationSendJob(newMemoryDelivery(), &stubSender{}, discard(), nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskNotificationSend, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

type recordingQueue struct {
	ids  []int64
	fail map[int64]bool
}

func (q *recordingQueue) EnqueueNotification(_ context.Context, id int64) error {
	if q.fail[id] {
		return errors.New("redis down")
	}
	q.ids = append(q.ids, id)
	return nil
}

func TestRedispatchJobRequeuesStaleRows(t *testing.T) {
	store := newMemoryDelivery()
	store.pending = []int64{4, 5, 6}
	queue := &recordingQueue{fail: map[int64]bool{5: true}}
	job := NewNotificationRedispatchJob(store, queue, discard(), nil)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	job.clock = func() time.Time { return now }

	task, err := NewNotificationRedispatchTask(2*time.Minute, 50)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, []int64{4, 6}, queue.ids)
	assert.Equal(t, now.Add(-2*time.Minute), store.cutoff)
}

func TestRedispatchJobFailsWhenQueueIsDown(t *testing.T) {
	store := newMemoryDelivery()
	store.pending = []int64{7}
	job := NewNotificationRedispatchJob(store, &recordingQueue{fail: map[int64]bool{7: true}}, discard(), nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskNotificationRedispatch, nil))
	assert.Error(t, err)
}

func TestClientEnqueueNotification(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	require.NoError(t, client.EnqueueNotification(ctx, 42))
	require.NoError(t, client.EnqueueNotification(ctx, 42))

	pending, err := mr.List("asynq:{" + QueueNotifications + "}:pending")
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestRetryDelay(t *testing.T) {
	task := sendTask(t, 1)
	assert.Equal(t, 30*time.Second, retryDelay(0, nil, task))
	assert.Equal(t, 10*time.Minute, retryDelay(40, nil, task))
}
