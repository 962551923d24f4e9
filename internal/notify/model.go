// Package notify persists outbound customer notifications and hands them to
// the job queue for delivery.
//
// Rows are written PENDING inside the business transaction that triggers
// them. After commit, the Dispatcher enqueues one task per row; the worker
// sends the message and records SENT or FAILED. Delivery is at-least-once and
// never fails the operation that produced the row.
package notify

import (
	"time"
)

// Channel is the transport of a notification.
type Channel string

const (
	ChannelSMS   Channel = "SMS"
	ChannelEmail Channel = "EMAIL"
	ChannelPush  Channel = "PUSH"
)

// IsValid reports whether the channel is known.
func (c Channel) IsValid() bool {
	switch c {
	case ChannelSMS, ChannelEmail, ChannelPush:
		return true
	default:
		return false
	}
}

// Status is the delivery state of a notification.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
)

// Kind names the lifecycle event a notification reports.
type Kind string

const (
	KindRegistrationConfirmation Kind = "REGISTRATION_CONFIRMATION"
	KindIncomingPackage          Kind = "INCOMING_PACKAGE"
	KindDeliverySuccess          Kind = "DELIVERY_SUCCESS"
	KindDeliveryFailed           Kind = "DELIVERY_FAILED"
	KindStatusChange             Kind = "STATUS_CHANGE"
)

// Notification is one outbound message row.
type Notification struct {
	ID        int64      `json:"id"`
	PackageID int64      `json:"package_id"`
	Kind      Kind       `json:"kind"`
	Channel   Channel    `json:"channel"`
	Recipient string     `json:"recipient"`
	Subject   string     `json:"subject"`
	Body      string     `json:"body"`
	Status    Status     `json:"status"`
	Attempts  int        `json:"attempts"`
	LastError *string    `json:"last_error,omitempty"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Message is what a Sender transmits.
type Message struct {
	Channel Channel
	To      string
	Subject string
	Body    string
}

// Message converts the row into a sendable message.
func (n Notification) Message() Message {
	return Message{Channel: n.Channel, To: n.Recipient, Subject: n.Subject, Body: n.Body}
}

// ListFilter narrows notification listings.
type ListFilter struct {
	PackageID *int64
	Status    *Status
	Limit     int
	Offset    int
}
