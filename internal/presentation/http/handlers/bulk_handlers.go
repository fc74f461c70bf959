package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/mediakit-go/internal/application/services"
	"github.com/AtRiskMedia/mediakit-go/internal/domain/entities/mediakit"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/observability/performance"
	kitstore "github.com/AtRiskMedia/mediakit-go/internal/infrastructure/persistence/mediakit"
)

// ExternalContent reads and replaces the generated content of a kit.
type ExternalContent interface {
	Fields(ctx context.Context, kitID string) ([]kitstore.ExternalField, error)
	ReplaceFields(ctx context.Context, kitID string, fields []kitstore.ExternalField) error
}

// BulkHandlers runs whole-document operations
type BulkHandlers struct {
	sessions    *services.SessionService
	external    ExternalContent
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewBulkHandlers creates bulk handlers with injected dependencies
func NewBulkHandlers(sessions *services.SessionService, external ExternalContent, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *BulkHandlers {
	return &BulkHandlers{
		sessions:    sessions,
		external:    external,
		logger:      logger,
		perfTracker: perfTracker,
	}
}

// confirmation approves the prompt when the request carries confirm=true and
// otherwise records it so the client can ask the user.
type confirmation struct {
	approved bool
	prompt   *services.Prompt
}

func newConfirmation(c *gin.Context) *confirmation {
	return &confirmation{approved: c.Query("confirm") == "true"}
}

func (cf *confirmation) answer(p services.Prompt) bool {
	cf.prompt = &p
	return cf.approved
}

type bulkRun func(ctx context.Context, bulk *services.BulkOperationController, confirm services.ConfirmFunc) error

func (h *BulkHandlers) run(c *gin.Context, operation string, fn bulkRun) {
	kitID := c.Param("kitId")
	marker := h.perfTracker.StartOperation("bulk_"+operation+"_request", kitID)
	defer marker.Complete()

	sess, err := h.sessions.Get(kitID)
	if err != nil {
		respondError(c, err)
		return
	}
	cf := newConfirmation(c)
	ctx := c.Request.Context()
	err = sess.Do(ctx, func() error {
		return fn(ctx, sess.Bulk(), cf.answer)
	})
	if err != nil {
		marker.SetError(err)
		if errors.Is(err, mediakit.ErrCancelled) && !cf.approved && cf.prompt != nil {
			c.JSON(http.StatusConflict, gin.H{"error": "confirmation required", "prompt": cf.prompt})
			return
		}
		respondError(c, err)
		return
	}
	h.logger.Bulk().Info("Bulk operation completed", "kitId", kitID, "operation", operation)
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"operation": operation,
		"state":     sess.Store().GetState(),
	})
}

// SyncAll handles POST /api/v1/kits/:kitId/bulk/sync?confirm=true
func (h *BulkHandlers) SyncAll(c *gin.Context) {
	h.run(c, services.BulkSync, func(ctx context.Context, bulk *services.BulkOperationController, confirm services.ConfirmFunc) error {
		return bulk.SyncAllFromExternalSource(ctx, confirm)
	})
}

// ClearAll handles POST /api/v1/kits/:kitId/bulk/clear?confirm=true
func (h *BulkHandlers) ClearAll(c *gin.Context) {
	h.run(c, services.BulkClear, func(_ context.Context, bulk *services.BulkOperationController, confirm services.ConfirmFunc) error {
		return bulk.ClearAll(confirm)
	})
}

// Reset handles POST /api/v1/kits/:kitId/bulk/reset?confirm=true
func (h *BulkHandlers) Reset(c *gin.Context) {
	h.run(c, services.BulkReset, func(ctx context.Context, bulk *services.BulkOperationController, confirm services.ConfirmFunc) error {
		return bulk.ResetToExternalSource(ctx, confirm)
	})
}

// Undo handles POST /api/v1/kits/:kitId/bulk/undo
func (h *BulkHandlers) Undo(c *gin.Context) {
	h.run(c, services.BulkUndo, func(_ context.Context, bulk *services.BulkOperationController, _ services.ConfirmFunc) error {
		return bulk.UndoLastBulkOperation()
	})
}

// History handles GET /api/v1/kits/:kitId/bulk/history
func (h *BulkHandlers) History(c *gin.Context) {
	sess, err := h.sessions.Get(c.Param("kitId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": sess.Bulk().History()})
}

// GetExternal handles GET /api/v1/kits/:kitId/external
func (h *BulkHandlers) GetExternal(c *gin.Context) {
	kitID := c.Param("kitId")
	fields, err := h.external.Fields(c.Request.Context(), kitID)
	if err != nil {
		h.logger.LogError(logging.ChannelStorage, "get-external", err, kitID, nil)
		respondError(c, err)
		return
	}
	if fields == nil {
		fields = []kitstore.ExternalField{}
	}
	c.JSON(http.StatusOK, gin.H{"fields": fields})
}

// PutExternal handles PUT /api/v1/kits/:kitId/external. It replaces the
// generated content that bulk sync and reset read from.
func (h *BulkHandlers) PutExternal(c *gin.Context) {
	var req struct {
		Fields []kitstore.ExternalField `json:"fields"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
		return
	}
	kitID := c.Param("kitId")
	if err := h.external.ReplaceFields(c.Request.Context(), kitID, req.Fields); err != nil {
		h.logger.LogError(logging.ChannelStorage, "put-external", err, kitID, nil)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "fields": len(req.Fields)})
}
