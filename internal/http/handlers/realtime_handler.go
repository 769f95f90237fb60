// README: Websocket endpoint; the caller's identity decides which channels it hears.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"medtrans/internal/http/middleware"
	"medtrans/internal/modules/realtime"
)

type RealtimeHandler struct {
	hub *realtime.Hub
}

func NewRealtimeHandler(hub *realtime.Hub) *RealtimeHandler {
	return &RealtimeHandler{hub: hub}
}

func (h *RealtimeHandler) Serve(c *gin.Context) {
	channels := realtime.ChannelsFor(middleware.CallerActor(c))
	if len(channels) == 0 {
		writeError(c, http.StatusForbidden, "no realtime channels for caller")
		return
	}
	if err := h.hub.ServeWS(c.Writer, c.Request, channels); err != nil {
		// the upgrader has already answered the client
		_ = c.Error(err)
	}
}
