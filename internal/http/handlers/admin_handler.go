// README: Admin-only booking handlers: force cancel and payment review.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"medtrans/internal/http/middleware"
	"medtrans/internal/modules/booking"
)

type AdminHandler struct {
	booking BookingService
}

func NewAdminHandler(svc BookingService) *AdminHandler {
	return &AdminHandler{booking: svc}
}

func (h *AdminHandler) ForceCancel(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	var req reasonReq
	if !bindOptional(c, &req) {
		return
	}
	b, err := h.booking.ForceCancel(c.Request.Context(), booking.CancelCommand{
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

func (h *AdminHandler) VerifyPayment(c *gin.Context) {
	h.review(c, h.booking.VerifyPayment)
}

func (h *AdminHandler) RejectPayment(c *gin.Context) {
	h.review(c, h.booking.RejectPayment)
}

func (h *AdminHandler) review(c *gin.Context, fn func(ctx context.Context, cmd booking.PaymentReviewCommand) (*booking.Booking, error)) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	var req reasonReq
	if !bindOptional(c, &req) {
		return
	}
	b, err := fn(c.Request.Context(), booking.PaymentReviewCommand{
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
