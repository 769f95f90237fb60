// README: Booking handlers for patients (create, cancel, pay) and shared reads.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"medtrans/internal/http/middleware"
	"medtrans/internal/modules/booking"
	"medtrans/internal/types"
)

type BookingHandler struct {
	booking BookingService
}

func NewBookingHandler(svc BookingService) *BookingHandler {
	return &BookingHandler{booking: svc}
}

type createBookingReq struct {
	Pickup        types.Place `json:"pickup"`
	Dropoff       types.Place `json:"dropoff"`
	ScheduledDate string      `json:"scheduled_date" binding:"required"`
	ScheduledTime string      `json:"scheduled_time" binding:"required"`
	Note          string      `json:"note"`
}

func (h *BookingHandler) Create(c *gin.Context) {
	actor := middleware.CallerActor(c)
	if actor.Kind != types.ActorPatient {
		writeError(c, http.StatusForbidden, "only patients can book")
		return
	}
	var req createBookingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	b, err := h.booking.Create(c.Request.Context(), booking.CreateCommand{
		PatientID:     actor.ID,
		Pickup:        req.Pickup,
		Dropoff:       req.Dropoff,
		ScheduledDate: req.ScheduledDate,
		ScheduledTime: req.ScheduledTime,
		Note:          req.Note,
	})
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, toBookingResponse(b))
}

func (h *BookingHandler) Get(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	b, err := h.booking.Get(c.Request.Context(), id, middleware.CallerActor(c))
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) Timeline(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	entries, err := h.booking.Timeline(c.Request.Context(), id, middleware.CallerActor(c))
	if err != nil {
		writeBookingError(c, err)
		return
	}
	out := make([]timelineResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, timelineResponse{
			ID:        e.ID,
			EventType: string(e.EventType),
			ActorID:   e.ActorID,
			ActorKind: string(e.ActorKind),
			Message:   e.Message,
			CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(c, http.StatusOK, gin.H{"booking_id": id, "timeline": out})
}

func (h *BookingHandler) Cancel(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	var req reasonReq
	if !bindOptional(c, &req) {
		return
	}
	b, err := h.booking.PatientCancel(c.Request.Context(), booking.CancelCommand{
		BookingID: id,
		Actor:     middleware.CallerActor(c),
		Reason:    req.Reason,
	})
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toBookingResponse(b))
}

type slipReq struct {
	SlipRef string `json:"slip_ref" binding:"required"`
}

func (h *BookingHandler) SubmitSlip(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	var req slipReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "slip_ref is required")
		return
	}
	b, err := h.booking.SubmitSlip(c.Request.Context(), booking.SlipCommand{
		BookingID: id,
		Actor:     middleware.CallerActor(c),
		SlipRef:   req.SlipRef,
	})
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toBookingResponse(b))
}

type statusReq struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason"`
}

// UpdateStatus serves both the assigned driver and admins; the service decides what each may do.
func (h *BookingHandler) UpdateStatus(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	var req statusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "status is required")
		return
	}
	b, err := h.booking.Transition(c.Request.Context(), booking.TransitionCommand{
		BookingID: id,
		To:        booking.Status(req.Status),
		Actor:     middleware.CallerActor(c),
		Reason:    req.Reason,
	})
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) Delete(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	if _, err := h.booking.Delete(c.Request.Context(), id, middleware.CallerActor(c)); err != nil {
		writeBookingError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
