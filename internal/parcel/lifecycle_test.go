package parcel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kid-livraison/parcel/internal/shared"
)

func TestTransitionTable(t *testing.T) {
	want := map[Event]map[Status]Status{
		EventDispatched: {
			StatusPending: StatusInTransit,
		},
		EventOutForDelivery: {
			StatusPending:   StatusOutForDelivery,
			StatusInTransit: StatusOutForDelivery,
		},
		EventDelivered: {
			StatusInTransit:      StatusDelivered,
			StatusOutForDelivery: StatusDelivered,
		},
		EventCodeConfirmed: {
			StatusPending: StatusDelivered,
		},
		EventAssignmentStarted: {
			StatusPending:        StatusOutForDelivery,
			StatusInTransit:      StatusOutForDelivery,
			StatusOutForDelivery: StatusOutForDelivery,
		},
		EventAssignmentCompleted: {
			StatusPending:        StatusDelivered,
			StatusInTransit:      StatusDelivered,
			StatusOutForDelivery: StatusDelivered,
		},
		EventAssignmentFailed: {
			StatusPending:        StatusInTransit,
			StatusInTransit:      StatusInTransit,
			StatusOutForDelivery: StatusInTransit,
		},
		EventReturned: {
			StatusPending:        StatusReturned,
			StatusInTransit:      StatusReturned,
			StatusOutForDelivery: StatusReturned,
		},
		EventCancelled: {
			StatusPending:        StatusCancelled,
			StatusInTransit:      StatusCancelled,
			StatusOutForDelivery: StatusCancelled,
		},
	}
	statuses := []Status{StatusPending, StatusInTransit, StatusOutForDelivery,
		StatusDelivered, StatusReturned, StatusCancelled}

	require.Len(t, want, len(Events()))
	for _, ev := range Events() {
		for _, from := range statuses {
			got, err := Transition(from, ev)
			expected, allowed := want[ev][from]
			if allowed {
				require.NoError(t, err, "%s from %s", ev, from)
				assert.Equal(t, expected, got, "%s from %s", ev, from)
				continue
			}
			assert.ErrorIs(t, err, shared.ErrInvalidState, "%s from %s", ev, from)
			assert.Equal(t, from, got)
		}
	}
}

func TestTransitionRejectsUnknownEvent(t *testing.T) {
	_, err := Transition(StatusPending, Event("TELEPORTED"))
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestManualEvents(t *testing.T) {
	assert.True(t, EventDispatched.Manual())
	assert.True(t, EventCancelled.Manual())
	assert.True(t, EventDelivered.Manual())
	assert.False(t, EventCodeConfirmed.Manual())
	assert.False(t, EventAssignmentCompleted.Manual())
	assert.False(t, Event("NOPE").Manual())
}

type recordingMutator struct {
	updates []map[string]interface{}
	entries []TrackingEntry
}

func (m *recordingMutator) UpdatePackage(_ context.Context, _ int64, updates map[string]interface{}) error {
	m.updates = append(m.updates, updates)
	return nil
}

func (m *recordingMutator) InsertTrackingEntry(_ context.Context, e TrackingEntry) (int64, error) {
	m.entries = append(m.entries, e)
	return int64(len(m.entries)), nil
}

func TestAdvanceWritesOneEntry(t *testing.T) {
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	m := &recordingMutator{}
	ctx := shared.ContextWithActor(context.Background(), 42)

	pkg, err := Advance(ctx, m, Package{ID: 9, Status: StatusOutForDelivery}, Step{
		Event:    EventReturned,
		Tracking: TrackingDeliveryFailed,
	}, at)
	require.NoError(t, err)
	assert.Equal(t, StatusReturned, pkg.Status)
	assert.Nil(t, pkg.DeliveredAt)

	require.Len(t, m.entries, 1)
	assert.Equal(t, TrackingDeliveryFailed, m.entries[0].Status)
	assert.Equal(t, "package returned to sender", m.entries[0].Description)
	require.NotNil(t, m.entries[0].ActorID)
	assert.Equal(t, int64(42), *m.entries[0].ActorID)
	assert.Equal(t, StatusReturned, m.updates[0]["status"])
}

func TestAdvanceSetsDeliveredAt(t *testing.T) {
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	m := &recordingMutator{}

	pkg, err := Advance(context.Background(), m, Package{ID: 1, Status: StatusInTransit},
		Step{Event: EventAssignmentCompleted}, at)
	require.NoError(t, err)
	require.NotNil(t, pkg.DeliveredAt)
	assert.Equal(t, at, *pkg.DeliveredAt)
	assert.Equal(t, at, m.updates[0]["delivered_at"])
	assert.Equal(t, TrackingDelivered, m.entries[0].Status)
}

func TestAdvanceRejectedLeavesNoTrace(t *testing.T) {
	m := &recordingMutator{}
	_, err := Advance(context.Background(), m, Package{ID: 1, Status: StatusDelivered},
		Step{Event: EventCancelled}, time.Now())
	assert.ErrorIs(t, err, shared.ErrInvalidState)
	assert.Empty(t, m.updates)
	assert.Empty(t, m.entries)
}
