// README: Job pool handlers: listing, claiming, assigning and handing jobs back.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"medtrans/internal/http/middleware"
	"medtrans/internal/modules/booking"
	"medtrans/internal/types"
)

type JobHandler struct {
	booking BookingService
}

func NewJobHandler(svc BookingService) *JobHandler {
	return &JobHandler{booking: svc}
}

func (h *JobHandler) ListOpen(c *gin.Context) {
	sort, err := booking.ParseSortOrder(c.Query("sort"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "sort must be created_desc or schedule_asc")
		return
	}
	jobs, err := h.booking.ListOpen(c.Request.Context(), sort)
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"jobs": toBookingList(jobs)})
}

func (h *JobHandler) ListMine(c *gin.Context) {
	jobs, err := h.booking.ListForDriver(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"jobs": toBookingList(jobs)})
}

func (h *JobHandler) Accept(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	b, err := h.booking.Claim(c.Request.Context(), booking.ClaimCommand{
		BookingID: id,
		DriverID:  types.ID(middleware.CallerUID(c)),
	})
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toBookingResponse(b))
}

type assignReq struct {
	DriverID string `json:"driver_id" binding:"required"`
}

func (h *JobHandler) Assign(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	var req assignReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "driver_id is required")
		return
	}
	b, err := h.booking.Assign(c.Request.Context(), booking.AssignCommand{
		BookingID: id,
		DriverID:  types.ID(req.DriverID),
		Actor:     middleware.CallerActor(c),
	})
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toBookingResponse(b))
}

// CancelTask is the driver handing an accepted job back to the pool.
func (h *JobHandler) CancelTask(c *gin.Context) {
	h.release(c)
}

// Release is the admin variant; it may pull a job back at any non-terminal stage.
func (h *JobHandler) Release(c *gin.Context) {
	h.release(c)
}

func (h *JobHandler) release(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	var req reasonReq
	if !bindOptional(c, &req) {
		return
	}
	b, err := h.booking.Release(c.Request.Context(), booking.ReleaseCommand{
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
