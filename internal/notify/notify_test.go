package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type captureSender struct {
	sent []Message
	err  error
}

func (s *captureSender) Send(_ context.Context, msg Message) error {
	s.sent = append(s.sent, msg)
	return s.err
}

type fakeQueue struct {
	ids  []int64
	fail map[int64]bool
}

func (q *fakeQueue) EnqueueNotification(ctx context.Context, id int64) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if q.fail[id] {
		return errors.New("redis unavailable")
	}
	q.ids = append(q.ids, id)
	return nil
}

type enqueueCounter struct{ ok, failed int }

func (c *enqueueCounter) ObserveEnqueue(ok bool) {
	if ok {
		c.ok++
		return
	}
	c.failed++
}

func TestMessagesCarryTrackingNumber(t *testing.T) {
	msgs := []Notification{
		RegistrationConfirmation(1, "KIN1234", "+225000001"),
		IncomingPackage(1, "KIN1234", "+225000002"),
		DeliverySuccess(1, "KIN1234", "+225000002"),
		DeliveryFailed(1, "KIN1234", "+225000002", "absent"),
		StatusChange(1, "KIN1234", "+225000002", "RETURNED"),
		DeliveryReturned(1, "KIN1234", "+225000002", "adresse introuvable"),
	}
	for _, n := range msgs {
		assert.Equal(t, StatusPending, n.Status)
		assert.Equal(t, ChannelSMS, n.Channel)
		assert.Equal(t, int64(1), n.PackageID)
		assert.Contains(t, n.Body, "KIN1234", n.Kind)
		assert.NotEmpty(t, n.Subject)
	}
	assert.Equal(t, "+225000001", msgs[0].Recipient)
	assert.Equal(t, KindIncomingPackage, msgs[1].Kind)
}

func TestDispatcherSwallowsFailures(t *testing.T) {
	queue := &fakeQueue{fail: map[int64]bool{2: true}}
	counter := &enqueueCounter{}
	d := NewDispatcher(queue, quietLogger(), counter)

	d.Enqueue(context.Background(), 1, 2, 3)

	assert.Equal(t, []int64{1, 3}, queue.ids)
	assert.Equal(t, 2, counter.ok)
	assert.Equal(t, 1, counter.failed)
}

func TestDispatcherIgnoresCancelledRequest(t *testing.T) {
	queue := &fakeQueue{}
	d := NewDispatcher(queue, quietLogger(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d.Enqueue(ctx, 9)

	assert.Equal(t, []int64{9}, queue.ids)
}

func TestDispatcherWithoutQueue(t *testing.T) {
	var nilDispatcher *Dispatcher
	nilDispatcher.Enqueue(context.Background(), 1)
	NewDispatcher(nil, quietLogger(), nil).Enqueue(context.Background(), 1)
}

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSender(slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, s.Send(context.Background(), Message{Channel: ChannelSMS, To: "+225000001", Subject: "hello"}))
	assert.Contains(t, buf.String(), "to=+225000001")

	err := s.Send(context.Background(), Message{Channel: ChannelSMS, To: " "})
	require.ErrorIs(t, err, ErrRejected)
}

func TestSMTPSender(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Addr: "mail.local:2525", From: "noreply@kid.ci", Username: "u", Password: "p"})
	assert.Equal(t, "mail.local", s.host)

	var sent *mail.Msg
	s.deliver = func(ctx context.Context, m *mail.Msg) error {
		require.NoError(t, ctx.Err())
		sent = m
		return nil
	}

	err := s.Send(context.Background(), Message{
		Channel: ChannelEmail,
		To:      "a@b.ci",
		Subject: "Échec de livraison\r\nBcc: intrus@example.com",
		Body:    "La livraison a échoué.",
	})
	require.NoError(t, err)
	require.NotNil(t, sent)

	to, err := sent.GetRecipients()
	require.NoError(t, err)
	assert.Equal(t, []string{"a@b.ci"}, to)

	var raw bytes.Buffer
	_, err = sent.WriteTo(&raw)
	require.NoError(t, err)
	assert.Contains(t, raw.String(), "=?UTF-8?q?=C3=89chec")
	assert.NotContains(t, raw.String(), "\r\nBcc:")

	require.ErrorIs(t, s.Send(context.Background(), Message{Channel: ChannelSMS, To: "+225"}), ErrRejected)
	require.ErrorIs(t, s.Send(context.Background(), Message{Channel: ChannelEmail, To: "nobody"}), ErrRejected)
}

func TestSMTPSenderHonoursContext(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Addr: "127.0.0.1:1", From: "noreply@kid.ci"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Send(ctx, Message{Channel: ChannelEmail, To: "a@b.ci", Subject: "Colis", Body: "ok"})
	assert.Error(t, err)
}

func TestWithEmailAddsCopy(t *testing.T) {
	n := DeliverySuccess(1, "KIN1234", "+225000002")
	assert.Len(t, WithEmail(n, nil), 1)
	blank := "  "
	assert.Len(t, WithEmail(n, &blank), 1)

	email := " awa@example.ci "
	both := WithEmail(n, &email)
	require.Len(t, both, 2)
	assert.Equal(t, ChannelSMS, both[0].Channel)
	assert.Equal(t, ChannelEmail, both[1].Channel)
	assert.Equal(t, "awa@example.ci", both[1].Recipient)
	assert.Equal(t, n.Body, both[1].Body)
	assert.Equal(t, KindDeliverySuccess, both[1].Kind)
}

func TestMultiSenderRoutesByChannel(t *testing.T) {
	sms := &captureSender{}
	email := &captureSender{}
	m := NewMultiSender(nil).Route(ChannelSMS, sms).Route(ChannelEmail, email)

	require.NoError(t, m.Send(context.Background(), Message{Channel: ChannelSMS, To: "1"}))
	require.NoError(t, m.Send(context.Background(), Message{Channel: ChannelEmail, To: "a@b"}))
	require.ErrorIs(t, m.Send(context.Background(), Message{Channel: ChannelPush, To: "dev"}), ErrRejected)

	assert.Len(t, sms.sent, 1)
	assert.Len(t, email.sent, 1)

	fallback := &captureSender{}
	require.NoError(t, NewMultiSender(fallback).Send(context.Background(), Message{Channel: ChannelPush, To: "dev"}))
	assert.Len(t, fallback.sent, 1)
}
