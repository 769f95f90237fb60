// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"medtrans/internal/http/handlers"
	"medtrans/internal/http/middleware"
	"medtrans/internal/infra"
	"medtrans/internal/modules/realtime"
)

type RouterDeps struct {
	Booking  handlers.BookingService
	Driver   handlers.DriverService
	Hub      *realtime.Hub
	Verifier infra.TokenVerifier
	// StatusLimiter throttles status updates by non-admin callers.
	StatusLimiter *middleware.KeyedLimiter
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(), middleware.Logging())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/", middleware.Auth(deps.Verifier))

	bookingHandler := handlers.NewBookingHandler(deps.Booking)
	api.POST("/bookings", bookingHandler.Create)
	api.GET("/bookings/:id", bookingHandler.Get)
	api.GET("/bookings/:id/timeline", bookingHandler.Timeline)
	api.PATCH("/bookings/:id/cancel", bookingHandler.Cancel)
	api.PATCH("/bookings/:id/payment-slip", bookingHandler.SubmitSlip)
	statusChain := []gin.HandlerFunc{middleware.RequireRole(middleware.RoleDriver, middleware.RoleAdmin)}
	if deps.StatusLimiter != nil {
		statusChain = append(statusChain, middleware.RateLimitCaller(deps.StatusLimiter))
	}
	api.PATCH("/bookings/:id/status", append(statusChain, bookingHandler.UpdateStatus)...)
	api.DELETE("/bookings/:id", middleware.RequireRole(middleware.RoleAdmin), bookingHandler.Delete)

	jobHandler := handlers.NewJobHandler(deps.Booking)
	api.GET("/jobs", middleware.RequireRole(middleware.RoleDriver, middleware.RoleAdmin), jobHandler.ListOpen)
	api.PATCH("/jobs/:id/accept", middleware.RequireRole(middleware.RoleDriver), jobHandler.Accept)
	api.PATCH("/jobs/:id/cancel-task", middleware.RequireRole(middleware.RoleDriver), jobHandler.CancelTask)
	api.PATCH("/jobs/:id/assign", middleware.RequireRole(middleware.RoleAdmin), jobHandler.Assign)

	driverHandler := handlers.NewDriverHandler(deps.Driver)
	me := api.Group("/drivers/me", middleware.RequireRole(middleware.RoleDriver))
	me.GET("", driverHandler.Me)
	me.GET("/jobs", jobHandler.ListMine)
	me.PATCH("/online", driverHandler.SetMyOnline)

	adminHandler := handlers.NewAdminHandler(deps.Booking)
	admin := api.Group("/admin", middleware.RequireRole(middleware.RoleAdmin))
	admin.PATCH("/bookings/:id/cancel", adminHandler.ForceCancel)
	admin.PATCH("/bookings/:id/release", jobHandler.Release)
	admin.PATCH("/bookings/:id/payment/verify", adminHandler.VerifyPayment)
	admin.PATCH("/bookings/:id/payment/reject", adminHandler.RejectPayment)
	admin.PATCH("/drivers/:id/status", driverHandler.SetStatus)
	admin.PATCH("/drivers/:id/verification", driverHandler.SetVerification)

	if deps.Hub != nil {
		api.GET("/ws", handlers.NewRealtimeHandler(deps.Hub).Serve)
	}
	return r
}
