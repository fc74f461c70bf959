package handlers

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AtRiskMedia/mediakit-go/internal/application/services"
	"github.com/AtRiskMedia/mediakit-go/internal/domain/entities/mediakit"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/observability/logging"
)

const (
	wsReadLimit  = 64 << 10
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsWriteWait  = 10 * time.Second
)

// EditorHandlers serves editor panels and field input
type EditorHandlers struct {
	sessions *services.SessionService
	logger   *logging.ChanneledLogger
	upgrader websocket.Upgrader
}

// NewEditorHandlers creates editor handlers. Websocket upgrades are accepted
// from the given origins only.
func NewEditorHandlers(sessions *services.SessionService, allowedOrigins []string, logger *logging.ChanneledLogger) *EditorHandlers {
	return &EditorHandlers{
		sessions: sessions,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(r.Header.Get("Origin"), allowedOrigins)
			},
		},
	}
}

func originAllowed(origin string, allowed []string) bool {
	if origin == "" {
		return true
	}
	return slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
}

// EditorReady handles POST /api/v1/kits/:kitId/editor/:componentId/ready.
// It mounts a fresh panel, registers it for sync and returns its markup.
func (h *EditorHandlers) EditorReady(c *gin.Context) {
	id := c.Param("componentId")
	var markup string
	var fields []string
	if !inSession(c, h.sessions, func(sess *services.EditingSession) error {
		if err := sess.OpenEditor(id); err != nil {
			return err
		}
		markup, _ = sess.EditorHTML(id)
		fields = sess.Sync().Fields(id)
		return nil
	}) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"componentId": id, "html": markup, "fields": fields})
}

type inputRequest struct {
	ComponentID string `json:"componentId"`
	Field       string `json:"field" binding:"required"`
	Value       string `json:"value"`
	Surface     string `json:"surface"`
}

// EditorInput handles POST /api/v1/kits/:kitId/editor/:componentId/input.
// The write lands after the sync debounce; the response only acknowledges it.
func (h *EditorHandlers) EditorInput(c *gin.Context) {
	var req inputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
		return
	}
	id := c.Param("componentId")
	if !inSession(c, h.sessions, func(sess *services.EditingSession) error {
		return sess.ApplyInput(id, req.Field, req.Value, req.Surface)
	}) {
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": true, "componentId": id, "field": req.Field})
}

// CloseEditor handles DELETE /api/v1/kits/:kitId/editor/:componentId
func (h *EditorHandlers) CloseEditor(c *gin.Context) {
	id := c.Param("componentId")
	if !inSession(c, h.sessions, func(sess *services.EditingSession) error {
		if !sess.CloseEditor(id) {
			return fmt.Errorf("%w: no editor panel for %q", mediakit.ErrNotFound, id)
		}
		return nil
	}) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "componentId": id})
}

// SetPreviewEditing handles PUT /api/v1/kits/:kitId/sync/preview-editing
func (h *EditorHandlers) SetPreviewEditing(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
		return
	}
	if !inSession(c, h.sessions, func(sess *services.EditingSession) error {
		sess.Sync().TogglePreviewEditing(*req.Enabled)
		return nil
	}) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"previewEditing": *req.Enabled})
}

// SyncStats handles GET /api/v1/kits/:kitId/sync/stats
func (h *EditorHandlers) SyncStats(c *gin.Context) {
	var result gin.H
	if !inSession(c, h.sessions, func(sess *services.EditingSession) error {
		result = gin.H{
			"stats":          sess.Sync().Stats(),
			"previewEditing": sess.Sync().PreviewEditing(),
			"rendered":       len(sess.Render().Registered()),
		}
		return nil
	}) {
		return
	}
	c.JSON(http.StatusOK, result)
}

// wsMessage is a frame on the editor input socket.
type wsMessage struct {
	Type        string `json:"type"`
	ComponentID string `json:"componentId,omitempty"`
	Field       string `json:"field,omitempty"`
	Value       string `json:"value,omitempty"`
	Surface     string `json:"surface,omitempty"`
	Error       string `json:"error,omitempty"`
}

// InputSocket handles GET /api/v1/kits/:kitId/ws. Each "input" frame is
// replayed like EditorInput and answered with an "ack" or "error" frame.
func (h *EditorHandlers) InputSocket(c *gin.Context) {
	kitID := c.Param("kitId")
	sess, err := h.sessions.Get(kitID)
	if err != nil {
		respondError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.SSE().Warn("Websocket upgrade failed", "kitId", kitID, "error", err.Error())
		return
	}
	defer conn.Close()
	h.logger.SSE().Info("Editor websocket connected", "kitId", kitID)

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	replies := make(chan wsMessage, 16)
	go h.writePump(ctx, conn, replies)

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.SSE().Warn("Editor websocket closed unexpectedly", "kitId", kitID, "error", err.Error())
			}
			return
		}
		reply := h.handleFrame(ctx, sess, msg)
		select {
		case replies <- reply:
		case <-ctx.Done():
			return
		}
	}
}

func (h *EditorHandlers) handleFrame(ctx context.Context, sess *services.EditingSession, msg wsMessage) wsMessage {
	switch msg.Type {
	case "input":
		err := sess.Do(ctx, func() error {
			return sess.ApplyInput(msg.ComponentID, msg.Field, msg.Value, msg.Surface)
		})
		if err != nil {
			return wsMessage{Type: "error", ComponentID: msg.ComponentID, Field: msg.Field, Error: err.Error()}
		}
		return wsMessage{Type: "ack", ComponentID: msg.ComponentID, Field: msg.Field}
	case "ping":
		return wsMessage{Type: "pong"}
	default:
		return wsMessage{Type: "error", Error: fmt.Sprintf("unknown message type %q", msg.Type)}
	}
}

// writePump owns every write to conn.
func (h *EditorHandlers) writePump(ctx context.Context, conn *websocket.Conn, replies <-chan wsMessage) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
			return
		case reply := <-replies:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(reply); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
