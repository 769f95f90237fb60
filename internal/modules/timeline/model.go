// README: Timeline entries: the append-only audit trail of booking state changes.
package timeline

import (
	"fmt"
	"time"

	"medtrans/internal/types"
)

type EventType string

const (
	EventCreated          EventType = "created"
	EventAccepted         EventType = "accepted"
	EventAssigned         EventType = "assigned"
	EventReturned         EventType = "returned"
	EventStatusChanged    EventType = "status_changed"
	EventCancelled        EventType = "cancelled"
	EventPaymentSubmitted EventType = "payment_submitted"
	EventPaymentVerified  EventType = "payment_verified"
	EventPaymentRejected  EventType = "payment_rejected"
	EventDeleted          EventType = "deleted"
)

type Entry struct {
	ID        int64
	BookingID int64
	EventType EventType
	ActorID   types.ID
	ActorKind types.ActorKind
	Message   string
	CreatedAt time.Time
}

// NewEntry builds an entry for actor; BookingID and CreatedAt are filled in by the store
// that commits it.
func NewEntry(event EventType, actor types.Actor, format string, args ...any) *Entry {
	return &Entry{
		EventType: event,
		ActorID:   actor.ID,
		ActorKind: actor.Kind,
		Message:   fmt.Sprintf(format, args...),
	}
}

// Key is the idempotency key realtime consumers dedupe on.
func (e Entry) Key() string {
	return DedupeKey(e.BookingID, string(e.EventType), e.CreatedAt)
}

func DedupeKey(bookingID int64, kind string, at time.Time) string {
	return fmt.Sprintf("%d|%s|%d", bookingID, kind, at.UnixMicro())
}
