package parcel

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kid-livraison/parcel/internal/shared"
)

// Event is something that happened to a package and may move its status.
type Event string

const (
	EventDispatched          Event = "DISPATCHED"
	EventOutForDelivery      Event = "OUT_FOR_DELIVERY"
	EventDelivered           Event = "DELIVERED"
	EventCodeConfirmed       Event = "CODE_CONFIRMED"
	EventAssignmentStarted   Event = "ASSIGNMENT_STARTED"
	EventAssignmentCompleted Event = "ASSIGNMENT_COMPLETED"
	EventAssignmentFailed    Event = "ASSIGNMENT_FAILED"
	EventReturned            Event = "RETURNED"
	EventCancelled           Event = "CANCELLED"
)

// Events lists every known event.
func Events() []Event {
	return []Event{
		EventDispatched, EventOutForDelivery, EventDelivered, EventCodeConfirmed,
		EventAssignmentStarted, EventAssignmentCompleted, EventAssignmentFailed,
		EventReturned, EventCancelled,
	}
}

// IsValid reports whether the event is known.
func (e Event) IsValid() bool {
	for _, known := range Events() {
		if e == known {
			return true
		}
	}
	return false
}

// Manual reports whether staff may apply the event directly. Assignment
// events are only raised by the dispatch workflow and CODE_CONFIRMED only
// by a hand-off with the recipient's code.
func (e Event) Manual() bool {
	switch e {
	case EventCodeConfirmed, EventAssignmentStarted, EventAssignmentCompleted, EventAssignmentFailed:
		return false
	default:
		return e.IsValid()
	}
}

// TrackingStatus is the history snapshot written when the event applies.
func (e Event) TrackingStatus() TrackingStatus {
	switch e {
	case EventDispatched:
		return TrackingInTransit
	case EventOutForDelivery, EventAssignmentStarted:
		return TrackingOutForDelivery
	case EventDelivered, EventCodeConfirmed, EventAssignmentCompleted:
		return TrackingDelivered
	case EventAssignmentFailed:
		return TrackingDeliveryFailed
	case EventReturned:
		return TrackingReturned
	case EventCancelled:
		return TrackingCancelled
	default:
		return TrackingStatus(e)
	}
}

func (e Event) defaultDescription() string {
	switch e {
	case EventDispatched:
		return "package dispatched"
	case EventOutForDelivery:
		return "package out for delivery"
	case EventDelivered:
		return "package delivered"
	case EventCodeConfirmed:
		return "package delivered on code confirmation"
	case EventAssignmentStarted:
		return "courier left with the package"
	case EventAssignmentCompleted:
		return "package handed over by courier"
	case EventAssignmentFailed:
		return "delivery attempt failed"
	case EventReturned:
		return "package returned to sender"
	case EventCancelled:
		return "package cancelled"
	default:
		return string(e)
	}
}

// Transition returns the status a package in current moves to on ev.
// Terminal states reject every event.
func Transition(current Status, ev Event) (Status, error) {
	if !current.IsValid() {
		return current, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, current)
	}
	if !ev.IsValid() {
		return current, fmt.Errorf("%w: unknown event %q", shared.ErrValidation, ev)
	}
	if current.Terminal() {
		return current, fmt.Errorf("%w: package is %s, %s not allowed", shared.ErrInvalidState, current, ev)
	}

	switch ev {
	case EventDispatched:
		if current == StatusPending {
			return StatusInTransit, nil
		}
	case EventOutForDelivery:
		if current == StatusPending || current == StatusInTransit {
			return StatusOutForDelivery, nil
		}
	case EventAssignmentStarted:
		return StatusOutForDelivery, nil
	case EventDelivered:
		if current == StatusInTransit || current == StatusOutForDelivery {
			return StatusDelivered, nil
		}
	case EventCodeConfirmed:
		if current == StatusPending {
			return StatusDelivered, nil
		}
	case EventAssignmentCompleted:
		return StatusDelivered, nil
	case EventAssignmentFailed:
		return StatusInTransit, nil
	case EventReturned:
		return StatusReturned, nil
	case EventCancelled:
		return StatusCancelled, nil
	}
	return current, fmt.Errorf("%w: %s not allowed from %s", shared.ErrInvalidState, ev, current)
}

// Step describes one lifecycle event together with the history entry it
// leaves behind.
type Step struct {
	Event       Event
	Description string
	Location    *string
	Latitude    *decimal.Decimal
	Longitude   *decimal.Decimal
	// Tracking overrides the history snapshot derived from Event.
	Tracking TrackingStatus
}

// Mutator is the write surface lifecycle steps need inside a transaction.
type Mutator interface {
	UpdatePackage(ctx context.Context, id int64, updates map[string]interface{}) error
	InsertTrackingEntry(ctx context.Context, entry TrackingEntry) (int64, error)
}

// Advance applies step to pkg, persists the new status and appends exactly
// one tracking entry. pkg must have been loaded for update in the same
// transaction m writes to.
func Advance(ctx context.Context, m Mutator, pkg Package, step Step, at time.Time) (Package, error) {
	next, err := Transition(pkg.Status, step.Event)
	if err != nil {
		return pkg, err
	}

	updates := map[string]interface{}{"status": next}
	if next == StatusDelivered {
		updates["delivered_at"] = at
	}
	if err := m.UpdatePackage(ctx, pkg.ID, updates); err != nil {
		return pkg, fmt.Errorf("update package: %w", err)
	}

	entry := TrackingEntry{
		PackageID:   pkg.ID,
		Status:      step.Event.TrackingStatus(),
		Description: step.Description,
		Location:    step.Location,
		Latitude:    step.Latitude,
		Longitude:   step.Longitude,
		ActorID:     shared.ActorPtr(ctx),
		CreatedAt:   at,
	}
	if step.Tracking != "" {
		entry.Status = step.Tracking
	}
	if entry.Description == "" {
		entry.Description = step.Event.defaultDescription()
	}
	if _, err := m.InsertTrackingEntry(ctx, entry); err != nil {
		return pkg, fmt.Errorf("insert tracking entry: %w", err)
	}

	pkg.Status = next
	if next == StatusDelivered {
		pkg.DeliveredAt = &at
	}
	pkg.UpdatedAt = at
	return pkg, nil
}
