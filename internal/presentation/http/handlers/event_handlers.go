package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/mediakit-go/internal/application/services"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/observability/logging"
)

// EventHandlers streams session events to browsers
type EventHandlers struct {
	sessions    *services.SessionService
	broadcaster messaging.Broadcaster
	heartbeat   time.Duration
	logger      *logging.ChanneledLogger
}

// NewEventHandlers creates event handlers. A heartbeat of zero defaults to
// 30 seconds.
func NewEventHandlers(sessions *services.SessionService, broadcaster messaging.Broadcaster, heartbeat time.Duration, logger *logging.ChanneledLogger) *EventHandlers {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &EventHandlers{
		sessions:    sessions,
		broadcaster: broadcaster,
		heartbeat:   heartbeat,
		logger:      logger,
	}
}

// StreamEvents handles GET /api/v1/kits/:kitId/events. The stream ends when
// the client leaves or the session closes.
func (h *EventHandlers) StreamEvents(c *gin.Context) {
	kitID := c.Param("kitId")
	if _, err := h.sessions.Get(kitID); err != nil {
		respondError(c, err)
		return
	}

	client, err := h.broadcaster.AddClient(kitID)
	if err != nil {
		respondError(c, err)
		return
	}
	defer h.broadcaster.RemoveClient(client)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	connected, _ := messaging.FormatEvent("connected", gin.H{"kitId": kitID, "clientId": client.ID, "timestamp": time.Now().UTC()})
	if _, err := c.Writer.WriteString(connected); err != nil {
		return
	}
	c.Writer.Flush()

	h.logger.SSE().Info("SSE connection established",
		"kitId", kitID,
		"clientId", client.ID,
		"kitConnections", h.broadcaster.ConnectionCount(kitID),
		"totalConnections", h.broadcaster.TotalConnections())

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	clientCtx := c.Request.Context()
	connectionStart := time.Now()
	for {
		select {
		case <-clientCtx.Done():
			h.logger.SSE().Info("SSE client disconnected",
				"kitId", kitID,
				"clientId", client.ID,
				"connectionDuration", time.Since(connectionStart))
			return

		case frame, ok := <-client.Events:
			if !ok {
				h.logger.SSE().Info("SSE stream closed with session",
					"kitId", kitID,
					"clientId", client.ID,
					"connectionDuration", time.Since(connectionStart))
				return
			}
			if _, err := c.Writer.WriteString(frame); err != nil {
				h.logger.SSE().Error("SSE write failed", "kitId", kitID, "clientId", client.ID, "error", err.Error())
				return
			}
			c.Writer.Flush()

		case <-ticker.C:
			heartbeat, _ := messaging.FormatEvent("heartbeat", gin.H{"timestamp": time.Now().UTC()})
			if _, err := c.Writer.WriteString(heartbeat); err != nil {
				h.logger.SSE().Error("SSE heartbeat failed", "kitId", kitID, "clientId", client.ID, "error", err.Error())
				return
			}
			c.Writer.Flush()
		}
	}
}
