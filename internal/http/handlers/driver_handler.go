// README: Driver availability handlers (self-service online toggle and admin moderation).
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"medtrans/internal/http/middleware"
	"medtrans/internal/modules/driver"
	"medtrans/internal/types"
)

type DriverHandler struct {
	driver DriverService
}

func NewDriverHandler(svc DriverService) *DriverHandler {
	return &DriverHandler{driver: svc}
}

type availabilityResponse struct {
	DriverID           types.ID  `json:"driver_id"`
	OnlineStatus       string    `json:"online_status"`
	VerificationStatus string    `json:"verification_status"`
	UpdatedAt          time.Time `json:"updated_at"`
	Released           int       `json:"released,omitempty"`
}

func toAvailabilityResponse(a *driver.Availability) availabilityResponse {
	return availabilityResponse{
		DriverID:           a.DriverID,
		OnlineStatus:       string(a.OnlineStatus),
		VerificationStatus: string(a.VerificationStatus),
		UpdatedAt:          a.UpdatedAt,
	}
}

type onlineReq struct {
	OnlineStatus string `json:"online_status" binding:"required"`
}

func (h *DriverHandler) Me(c *gin.Context) {
	a, err := h.driver.Get(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeDriverError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toAvailabilityResponse(a))
}

// SetMyOnline toggles the caller between active and inactive.
func (h *DriverHandler) SetMyOnline(c *gin.Context) {
	h.setOnline(c, types.ID(middleware.CallerUID(c)))
}

// SetStatus is the admin route, which may also ban.
func (h *DriverHandler) SetStatus(c *gin.Context) {
	h.setOnline(c, types.ID(c.Param("id")))
}

func (h *DriverHandler) setOnline(c *gin.Context, driverID types.ID) {
	var req onlineReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "online_status is required")
		return
	}
	res, err := h.driver.SetOnline(c.Request.Context(), driver.SetOnlineCommand{
		DriverID: driverID,
		Status:   driver.OnlineStatus(req.OnlineStatus),
		Actor:    middleware.CallerActor(c),
	})
	if err != nil && (res == nil || res.Availability == nil) {
		writeDriverError(c, err)
		return
	}
	if err != nil {
		// the status change committed; only part of the release failed
		_ = c.Error(err)
	}
	out := toAvailabilityResponse(res.Availability)
	out.Released = res.Released
	writeJSON(c, http.StatusOK, out)
}

type verificationReq struct {
	VerificationStatus string `json:"verification_status" binding:"required"`
}

func (h *DriverHandler) SetVerification(c *gin.Context) {
	var req verificationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "verification_status is required")
		return
	}
	a, err := h.driver.SetVerification(c.Request.Context(), middleware.CallerActor(c), types.ID(c.Param("id")), driver.VerificationStatus(req.VerificationStatus))
	if err != nil {
		writeDriverError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toAvailabilityResponse(a))
}
