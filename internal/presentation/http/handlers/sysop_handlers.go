package handlers

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AtRiskMedia/mediakit-go/internal/application/container"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/observability/performance"
)

// SysOpHandlers serves the operator dashboard: open sessions, logs and
// performance data
type SysOpHandlers struct {
	container *container.Container
	upgrader  websocket.Upgrader
}

// NewSysOpHandlers creates new SysOp handlers
func NewSysOpHandlers(container *container.Container) *SysOpHandlers {
	origins := container.AllowedOrigins
	return &SysOpHandlers{
		container: container,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(r.Header.Get("Origin"), origins)
			},
		},
	}
}

// GetSessions handles GET /api/sysop/sessions
func (h *SysOpHandlers) GetSessions(c *gin.Context) {
	c.JSON(http.StatusOK, h.container.SysOpBroadcaster.Snapshot())
}

// StreamSessions handles GET /api/sysop/sessions/ws. The socket receives a
// session snapshot on connect and then on every monitor tick.
func (h *SysOpHandlers) StreamSessions(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.container.Logger.SSE().Warn("SysOp websocket upgrade failed", "error", err.Error())
		return
	}
	client := messaging.NewSysOpClient(conn)
	h.container.SysOpBroadcaster.Register(client)

	// the read side only watches for the dashboard going away
	go func() {
		defer h.container.SysOpBroadcaster.Unregister(client)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer conn.Close()
	for message := range client.Send {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(wsWriteWait))
}

// GetPerformance handles GET /api/sysop/performance?kit=<kitId>
func (h *SysOpHandlers) GetPerformance(c *gin.Context) {
	kitID := c.Query("kit")
	alerts := h.container.PerfTracker.GetAlerts(kitID)
	if alerts == nil {
		alerts = []*performance.PerformanceAlert{}
	}
	c.JSON(http.StatusOK, gin.H{
		"operations": h.container.PerfTracker.Summaries(kitID),
		"alerts":     alerts,
	})
}

// ReloadTemplates handles POST /api/sysop/templates/reload
func (h *SysOpHandlers) ReloadTemplates(c *gin.Context) {
	if err := h.container.TemplateWatcher.ReloadNow(c.Request.Context()); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Template reload failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"overrides": h.container.Templates.Overrides(),
		"sessions":  h.container.SessionService.Len(),
	})
}

// RunAutosave handles POST /api/sysop/autosave - saves every dirty session now
func (h *SysOpHandlers) RunAutosave(c *gin.Context) {
	saved := h.container.AutosaveService.RunOnce(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"saved": saved})
}

func parseLevel(name string) (slog.Level, bool) {
	switch name {
	case "DEBUG":
		return slog.LevelDebug, true
	case "INFO":
		return slog.LevelInfo, true
	case "WARN":
		return slog.LevelWarn, true
	case "ERROR":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// StreamLogs handles the SSE connection for live log streaming.
func (h *SysOpHandlers) StreamLogs(c *gin.Context) {
	broadcaster := h.container.LogBroadcaster
	if broadcaster == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Log broadcaster not available"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	logLevel, _ := parseLevel(c.DefaultQuery("level", "INFO"))
	filters := logging.AppliedFilters{
		Channel: logging.Channel(c.DefaultQuery("channel", "all")),
		Level:   logLevel,
	}

	client := broadcaster.NewClient(filters)
	broadcaster.RegisterClient(client)
	defer broadcaster.UnregisterClient(client)

	fmt.Fprintf(c.Writer, ": connection established\n\n")
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case message, ok := <-client.Channel:
			if !ok {
				return false
			}
			fmt.Fprintf(w, "data: %s\n\n", message)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// GetLogLevels handles GET /api/sysop/logs/levels - returns current log levels for all channels.
func (h *SysOpHandlers) GetLogLevels(c *gin.Context) {
	logger := h.container.Logger
	if logger == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Logger not available"})
		return
	}
	c.JSON(http.StatusOK, logger.GetChannelLevels())
}

// SetLogLevel handles POST /api/sysop/logs/levels - sets the log level for a specific channel.
func (h *SysOpHandlers) SetLogLevel(c *gin.Context) {
	logger := h.container.Logger
	if logger == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Logger not available"})
		return
	}

	var req struct {
		Channel string `json:"channel" binding:"required"`
		Level   string `json:"level" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	level, ok := parseLevel(req.Level)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid log level specified"})
		return
	}

	if err := logger.SetChannelLevel(logging.Channel(req.Channel), level); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to set log level", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": fmt.Sprintf("Log level for channel '%s' set to '%s'", req.Channel, req.Level)})
}
