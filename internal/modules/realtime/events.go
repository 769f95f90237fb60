// README: Realtime event catalogue as a closed set of variants, plus the JSON envelope used on the wire.
package realtime

import (
	"errors"
	"fmt"
	"time"

	"medtrans/internal/types"
)

type Kind string

const (
	KindCreated  Kind = "booking.created"
	KindReturned Kind = "booking.returned"
	KindAssigned Kind = "booking.assigned"
	KindAccepted Kind = "booking.accepted"
	KindDeleted  Kind = "booking.deleted"
	KindUpdated  Kind = "booking-updated"
)

// UpdateType disambiguates KindUpdated events.
type UpdateType string

const (
	TypeStatusUpdate       UpdateType = "STATUS_UPDATE"
	TypeAdminStatusUpdate  UpdateType = "ADMIN_STATUS_UPDATE"
	TypeUserCancelBooking  UpdateType = "USER_CANCEL_BOOKING"
	TypeUserSubmitSlip     UpdateType = "USER_SUBMIT_SLIP"
	TypeAdminVerifyPayment UpdateType = "ADMIN_VERIFY_PAYMENT"
	TypeAdminRejectPayment UpdateType = "ADMIN_REJECT_PAYMENT"
)

var ErrUnknownEvent = errors.New("unknown realtime event")

// Snapshot is the booking state carried by every event.
type Snapshot struct {
	ID            int64       `json:"id"`
	Status        string      `json:"status"`
	PaymentStatus string      `json:"payment_status"`
	PatientID     types.ID    `json:"patient_id"`
	DriverID      *types.ID   `json:"driver_id"`
	Pickup        types.Place `json:"pickup"`
	Dropoff       types.Place `json:"dropoff"`
	ScheduledDate string      `json:"scheduled_date"`
	ScheduledTime string      `json:"scheduled_time"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// Event is implemented only by the variants in this file; consumers type-switch on them.
type Event interface {
	Kind() Kind
	BookingID() int64
	OccurredAt() time.Time
	Booking() Snapshot
	envelope() Envelope
}

type base struct {
	snap Snapshot
}

func (b base) BookingID() int64      { return b.snap.ID }
func (b base) OccurredAt() time.Time { return b.snap.UpdatedAt }
func (b base) Booking() Snapshot     { return b.snap }

func (b base) env(kind Kind) Envelope {
	s := b.snap
	return Envelope{Kind: kind, BookingID: s.ID, OccurredAt: s.UpdatedAt, Booking: &s}
}

// BookingCreated: a patient created a booking; it entered the pool.
type BookingCreated struct{ base }

func NewBookingCreated(s Snapshot) BookingCreated { return BookingCreated{base{s}} }
func (BookingCreated) Kind() Kind                  { return KindCreated }
func (e BookingCreated) envelope() Envelope        { return e.env(KindCreated) }

// BookingAccepted: a driver claimed the booking from the pool.
type BookingAccepted struct{ base }

func NewBookingAccepted(s Snapshot) BookingAccepted { return BookingAccepted{base{s}} }
func (BookingAccepted) Kind() Kind                   { return KindAccepted }
func (e BookingAccepted) envelope() Envelope         { return e.env(KindAccepted) }

// BookingAssigned: an admin dispatched the booking to a driver.
type BookingAssigned struct {
	base
	AssignedBy types.ID
}

func NewBookingAssigned(s Snapshot, by types.ID) BookingAssigned {
	return BookingAssigned{base: base{s}, AssignedBy: by}
}
func (BookingAssigned) Kind() Kind { return KindAssigned }
func (e BookingAssigned) envelope() Envelope {
	env := e.env(KindAssigned)
	env.ActorID = e.AssignedBy
	return env
}

// BookingReturned: the booking went back to the pool and its driver was cleared.
type BookingReturned struct {
	base
	PreviousDriverID types.ID
	ByDriver         bool
}

func NewBookingReturned(s Snapshot, previousDriver types.ID, byDriver bool) BookingReturned {
	return BookingReturned{base: base{s}, PreviousDriverID: previousDriver, ByDriver: byDriver}
}
func (BookingReturned) Kind() Kind { return KindReturned }
func (e BookingReturned) envelope() Envelope {
	env := e.env(KindReturned)
	env.PreviousDriverID = e.PreviousDriverID
	env.ByDriver = e.ByDriver
	return env
}

// BookingDeleted: an admin hard-deleted the booking. The snapshot is its last state.
type BookingDeleted struct{ base }

func NewBookingDeleted(s Snapshot) BookingDeleted { return BookingDeleted{base{s}} }
func (BookingDeleted) Kind() Kind                  { return KindDeleted }
func (e BookingDeleted) envelope() Envelope        { return e.env(KindDeleted) }

type update struct {
	base
	PreviousStatus string
	Reason         string
}

func (update) Kind() Kind { return KindUpdated }

func (u update) env(t UpdateType) Envelope {
	env := u.base.env(KindUpdated)
	env.Type = t
	env.PreviousStatus = u.PreviousStatus
	env.Reason = u.Reason
	return env
}

// StatusUpdated: the assigned driver advanced the status.
type StatusUpdated struct{ update }

func NewStatusUpdated(s Snapshot, previous string) StatusUpdated {
	return StatusUpdated{update{base: base{s}, PreviousStatus: previous}}
}
func (StatusUpdated) Type() UpdateType     { return TypeStatusUpdate }
func (e StatusUpdated) envelope() Envelope { return e.env(TypeStatusUpdate) }

// AdminStatusUpdated: an admin forced a status (including force-cancel).
type AdminStatusUpdated struct{ update }

func NewAdminStatusUpdated(s Snapshot, previous, reason string) AdminStatusUpdated {
	return AdminStatusUpdated{update{base: base{s}, PreviousStatus: previous, Reason: reason}}
}
func (AdminStatusUpdated) Type() UpdateType     { return TypeAdminStatusUpdate }
func (e AdminStatusUpdated) envelope() Envelope { return e.env(TypeAdminStatusUpdate) }

// PatientCancelled: the owning patient cancelled before pickup.
type PatientCancelled struct{ update }

func NewPatientCancelled(s Snapshot, previous, reason string) PatientCancelled {
	return PatientCancelled{update{base: base{s}, PreviousStatus: previous, Reason: reason}}
}
func (PatientCancelled) Type() UpdateType     { return TypeUserCancelBooking }
func (e PatientCancelled) envelope() Envelope { return e.env(TypeUserCancelBooking) }

// SlipSubmitted: the patient submitted a payment slip for verification.
type SlipSubmitted struct{ update }

func NewSlipSubmitted(s Snapshot) SlipSubmitted {
	return SlipSubmitted{update{base: base{s}, PreviousStatus: s.Status}}
}
func (SlipSubmitted) Type() UpdateType     { return TypeUserSubmitSlip }
func (e SlipSubmitted) envelope() Envelope { return e.env(TypeUserSubmitSlip) }

// PaymentVerified: an admin verified the payment.
type PaymentVerified struct{ update }

func NewPaymentVerified(s Snapshot, previous string) PaymentVerified {
	return PaymentVerified{update{base: base{s}, PreviousStatus: previous}}
}
func (PaymentVerified) Type() UpdateType     { return TypeAdminVerifyPayment }
func (e PaymentVerified) envelope() Envelope { return e.env(TypeAdminVerifyPayment) }

// PaymentRejected: an admin rejected the submitted slip.
type PaymentRejected struct{ update }

func NewPaymentRejected(s Snapshot, reason string) PaymentRejected {
	return PaymentRejected{update{base: base{s}, PreviousStatus: s.Status, Reason: reason}}
}
func (PaymentRejected) Type() UpdateType     { return TypeAdminRejectPayment }
func (e PaymentRejected) envelope() Envelope { return e.env(TypeAdminRejectPayment) }

// Envelope is the JSON form of an Event.
type Envelope struct {
	Kind             Kind       `json:"event_kind"`
	Type             UpdateType `json:"type,omitempty"`
	BookingID        int64      `json:"booking_id"`
	OccurredAt       time.Time  `json:"occurred_at"`
	Booking          *Snapshot  `json:"booking,omitempty"`
	PreviousStatus   string     `json:"previous_status,omitempty"`
	PreviousDriverID types.ID   `json:"previous_driver_id,omitempty"`
	ByDriver         bool       `json:"by_driver,omitempty"`
	ActorID          types.ID   `json:"actor_id,omitempty"`
	Reason           string     `json:"reason,omitempty"`
}

func Encode(ev Event) Envelope {
	return ev.envelope()
}

// Decode turns an envelope back into its variant. Unknown kinds or types yield ErrUnknownEvent
// so older consumers can skip events they do not understand.
func Decode(env Envelope) (Event, error) {
	if env.Booking == nil {
		return nil, fmt.Errorf("%w: %s without booking", ErrUnknownEvent, env.Kind)
	}
	s := *env.Booking
	switch env.Kind {
	case KindCreated:
		return NewBookingCreated(s), nil
	case KindAccepted:
		return NewBookingAccepted(s), nil
	case KindAssigned:
		return NewBookingAssigned(s, env.ActorID), nil
	case KindReturned:
		return NewBookingReturned(s, env.PreviousDriverID, env.ByDriver), nil
	case KindDeleted:
		return NewBookingDeleted(s), nil
	case KindUpdated:
		switch env.Type {
		case TypeStatusUpdate:
			return NewStatusUpdated(s, env.PreviousStatus), nil
		case TypeAdminStatusUpdate:
			return NewAdminStatusUpdated(s, env.PreviousStatus, env.Reason), nil
		case TypeUserCancelBooking:
			return NewPatientCancelled(s, env.PreviousStatus, env.Reason), nil
		case TypeUserSubmitSlip:
			return NewSlipSubmitted(s), nil
		case TypeAdminVerifyPayment:
			return NewPaymentVerified(s, env.PreviousStatus), nil
		case TypeAdminRejectPayment:
			return NewPaymentRejected(s, env.Reason), nil
		}
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownEvent, env.Kind, env.Type)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, env.Kind)
}

// dedupeKind is the event_type half of the consumer idempotency key.
func dedupeKind(ev Event) string {
	env := ev.envelope()
	if env.Type != "" {
		return string(env.Kind) + "/" + string(env.Type)
	}
	return string(env.Kind)
}
