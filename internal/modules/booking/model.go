// README: Booking aggregate, status enumeration and payment sub-state.
package booking

import (
	"time"

	"medtrans/internal/modules/realtime"
	"medtrans/internal/types"
)

type Status string

const (
	StatusPending           Status = "pending"
	StatusAccepted          Status = "accepted"
	StatusGoingPickup       Status = "going_pickup"
	StatusPickedUp          Status = "picked_up"
	StatusHeadingToHospital Status = "heading_to_hospital"
	StatusArrivedAtHospital Status = "arrived_at_hospital"
	StatusWaitingForReturn  Status = "waiting_for_return"
	StatusHeadingHome       Status = "heading_home"
	StatusArrivedHome       Status = "arrived_home"
	StatusPendingPayment    Status = "pending_payment"
	StatusPaymented         Status = "paymented"
	StatusSuccess           Status = "success"
	StatusCancelled         Status = "cancelled"
)

// Lifecycle is the forward order of statuses; cancelled sits outside it.
var Lifecycle = []Status{
	StatusPending,
	StatusAccepted,
	StatusGoingPickup,
	StatusPickedUp,
	StatusHeadingToHospital,
	StatusArrivedAtHospital,
	StatusWaitingForReturn,
	StatusHeadingHome,
	StatusArrivedHome,
	StatusPendingPayment,
	StatusPaymented,
	StatusSuccess,
}

// Position is the index of s in Lifecycle, or -1 for cancelled and unknown values.
func (s Status) Position() int {
	for i, v := range Lifecycle {
		if v == s {
			return i
		}
	}
	return -1
}

func (s Status) Valid() bool {
	return s == StatusCancelled || s.Position() >= 0
}

func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusCancelled
}

type PaymentStatus string

const (
	PaymentNone          PaymentStatus = "none"
	PaymentWaitingVerify PaymentStatus = "waiting_verify"
	PaymentVerified      PaymentStatus = "verified"
	PaymentRejected      PaymentStatus = "rejected"
)

type Booking struct {
	ID            int64
	Status        Status
	PaymentStatus PaymentStatus
	PatientID     types.ID
	DriverID      *types.ID
	Pickup        types.Place
	Dropoff       types.Place
	// ScheduledDate is YYYY-MM-DD and ScheduledTime is HH:MM, both local to the service area.
	ScheduledDate string
	ScheduledTime string
	Note          string
	PaymentSlip   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (b *Booking) HasDriver(id types.ID) bool {
	return b.DriverID != nil && *b.DriverID == id
}

func (b *Booking) driverOrEmpty() types.ID {
	if b.DriverID == nil {
		return ""
	}
	return *b.DriverID
}

func (b *Booking) clone() *Booking {
	cp := *b
	if b.DriverID != nil {
		d := *b.DriverID
		cp.DriverID = &d
	}
	return &cp
}

// Snapshot converts the booking to its realtime representation.
func (b *Booking) Snapshot() realtime.Snapshot {
	s := realtime.Snapshot{
		ID:            b.ID,
		Status:        string(b.Status),
		PaymentStatus: string(b.PaymentStatus),
		PatientID:     b.PatientID,
		Pickup:        b.Pickup,
		Dropoff:       b.Dropoff,
		ScheduledDate: b.ScheduledDate,
		ScheduledTime: b.ScheduledTime,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
	if b.DriverID != nil {
		d := *b.DriverID
		s.DriverID = &d
	}
	return s
}

type SortOrder string

const (
	SortCreatedDesc SortOrder = "created_desc"
	SortScheduleAsc SortOrder = "schedule_asc"
)

func ParseSortOrder(v string) (SortOrder, error) {
	switch SortOrder(v) {
	case "", SortCreatedDesc:
		return SortCreatedDesc, nil
	case SortScheduleAsc:
		return SortScheduleAsc, nil
	}
	return "", ErrBadRequest
}
