// README: Base handler utilities (service contracts, JSON helpers, error mapping).
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"medtrans/internal/modules/booking"
	"medtrans/internal/modules/driver"
	"medtrans/internal/modules/timeline"
	"medtrans/internal/types"
)

// BookingService is the part of booking.Service the HTTP layer drives.
type BookingService interface {
	Create(ctx context.Context, cmd booking.CreateCommand) (*booking.Booking, error)
	Get(ctx context.Context, id int64, actor types.Actor) (*booking.Booking, error)
	Timeline(ctx context.Context, id int64, actor types.Actor) ([]timeline.Entry, error)
	ListOpen(ctx context.Context, sort booking.SortOrder) ([]*booking.Booking, error)
	ListForDriver(ctx context.Context, driverID types.ID) ([]*booking.Booking, error)
	Claim(ctx context.Context, cmd booking.ClaimCommand) (*booking.Booking, error)
	Assign(ctx context.Context, cmd booking.AssignCommand) (*booking.Booking, error)
	Release(ctx context.Context, cmd booking.ReleaseCommand) (*booking.Booking, error)
	Transition(ctx context.Context, cmd booking.TransitionCommand) (*booking.Booking, error)
	PatientCancel(ctx context.Context, cmd booking.CancelCommand) (*booking.Booking, error)
	ForceCancel(ctx context.Context, cmd booking.CancelCommand) (*booking.Booking, error)
	SubmitSlip(ctx context.Context, cmd booking.SlipCommand) (*booking.Booking, error)
	VerifyPayment(ctx context.Context, cmd booking.PaymentReviewCommand) (*booking.Booking, error)
	RejectPayment(ctx context.Context, cmd booking.PaymentReviewCommand) (*booking.Booking, error)
	Delete(ctx context.Context, id int64, actor types.Actor) (*booking.Booking, error)
}

type DriverService interface {
	Get(ctx context.Context, id types.ID) (*driver.Availability, error)
	SetOnline(ctx context.Context, cmd driver.SetOnlineCommand) (*driver.SetOnlineResult, error)
	SetVerification(ctx context.Context, actor types.Actor, driverID types.ID, status driver.VerificationStatus) (*driver.Availability, error)
}

type errorResponse struct {
	Error string `json:"error"`
}

type bookingResponse struct {
	ID            int64       `json:"id"`
	Status        string      `json:"status"`
	PaymentStatus string      `json:"payment_status"`
	PatientID     types.ID    `json:"patient_id"`
	DriverID      *types.ID   `json:"driver_id"`
	Pickup        types.Place `json:"pickup"`
	Dropoff       types.Place `json:"dropoff"`
	ScheduledDate string      `json:"scheduled_date"`
	ScheduledTime string      `json:"scheduled_time"`
	Note          string      `json:"note,omitempty"`
	PaymentSlip   string      `json:"payment_slip,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

func toBookingResponse(b *booking.Booking) bookingResponse {
	return bookingResponse{
		ID:            b.ID,
		Status:        string(b.Status),
		PaymentStatus: string(b.PaymentStatus),
		PatientID:     b.PatientID,
		DriverID:      b.DriverID,
		Pickup:        b.Pickup,
		Dropoff:       b.Dropoff,
		ScheduledDate: b.ScheduledDate,
		ScheduledTime: b.ScheduledTime,
		Note:          b.Note,
		PaymentSlip:   b.PaymentSlip,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
}

func toBookingList(bs []*booking.Booking) []bookingResponse {
	out := make([]bookingResponse, 0, len(bs))
	for _, b := range bs {
		out = append(out, toBookingResponse(b))
	}
	return out
}

type timelineResponse struct {
	ID        int64     `json:"id"`
	EventType string    `json:"event_type"`
	ActorID   types.ID  `json:"actor_id,omitempty"`
	ActorKind string    `json:"actor_kind"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

type reasonReq struct {
	Reason string `json:"reason"`
}

// bookingID parses the :id path parameter; it writes the 400 itself.
func bookingID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, http.StatusBadRequest, "invalid booking id")
		return 0, false
	}
	return id, true
}

// bindOptional decodes a JSON body when one is present.
func bindOptional(c *gin.Context, v any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(v); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeBookingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, booking.ErrConflict):
		writeError(c, http.StatusConflict, booking.ErrConflict.Error())
	case errors.Is(err, booking.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, booking.ErrIneligible):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, booking.ErrBadRequest),
		errors.Is(err, booking.ErrInvalidTransition),
		errors.Is(err, booking.ErrTerminalState),
		errors.Is(err, booking.ErrNoDriverAssigned),
		errors.Is(err, booking.ErrPaymentState):
		writeError(c, http.StatusBadRequest, err.Error())
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func writeDriverError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, driver.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, driver.ErrForbidden):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, driver.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
