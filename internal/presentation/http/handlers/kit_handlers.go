package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/mediakit-go/internal/application/services"
	"github.com/AtRiskMedia/mediakit-go/internal/domain/entities/mediakit"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/catalog"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/observability/performance"
	kitstore "github.com/AtRiskMedia/mediakit-go/internal/infrastructure/persistence/mediakit"
)

// KitDirectory lists and deletes stored kits.
type KitDirectory interface {
	List(ctx context.Context) ([]kitstore.KitSummary, error)
	Delete(ctx context.Context, kitID string) (bool, error)
}

// KitHandlers contains the document editing endpoints of a kit
type KitHandlers struct {
	sessions    *services.SessionService
	catalog     *catalog.Catalog
	kits        KitDirectory
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewKitHandlers creates kit handlers with injected dependencies
func NewKitHandlers(sessions *services.SessionService, cat *catalog.Catalog, kits KitDirectory, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *KitHandlers {
	return &KitHandlers{
		sessions:    sessions,
		catalog:     cat,
		kits:        kits,
		logger:      logger,
		perfTracker: perfTracker,
	}
}

// inSession runs fn on the loop of the kit's open session and writes the
// error response when anything fails. It reports whether fn succeeded.
func inSession(c *gin.Context, sessions *services.SessionService, fn func(*services.EditingSession) error) bool {
	sess, err := sessions.Get(c.Param("kitId"))
	if err != nil {
		respondError(c, err)
		return false
	}
	if err := sess.Do(c.Request.Context(), func() error { return fn(sess) }); err != nil {
		respondError(c, err)
		return false
	}
	return true
}

// ListKits handles GET /api/v1/kits
func (h *KitHandlers) ListKits(c *gin.Context) {
	kits, err := h.kits.List(c.Request.Context())
	if err != nil {
		h.logger.LogError(logging.ChannelStorage, "list-kits", err, "", nil)
		respondError(c, err)
		return
	}

	type kitListing struct {
		kitstore.KitSummary
		Open bool `json:"open"`
	}
	open := make(map[string]bool)
	for _, sess := range h.sessions.Sessions() {
		open[sess.KitID()] = true
	}
	out := make([]kitListing, 0, len(kits))
	for _, k := range kits {
		out = append(out, kitListing{KitSummary: k, Open: open[k.ID]})
	}
	c.JSON(http.StatusOK, gin.H{"kits": out, "openSessions": h.sessions.Len()})
}

// DeleteKit handles DELETE /api/v1/kits/:kitId. Open kits must be closed first.
func (h *KitHandlers) DeleteKit(c *gin.Context) {
	kitID := c.Param("kitId")
	if _, err := h.sessions.Get(kitID); err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "kit is open for editing"})
		return
	}
	existed, err := h.kits.Delete(c.Request.Context(), kitID)
	if err != nil {
		h.logger.LogError(logging.ChannelStorage, "delete-kit", err, kitID, nil)
		respondError(c, err)
		return
	}
	if !existed {
		c.JSON(http.StatusNotFound, gin.H{"error": "kit not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "kitId": kitID})
}

// OpenKit handles POST /api/v1/kits/:kitId/open
func (h *KitHandlers) OpenKit(c *gin.Context) {
	kitID := c.Param("kitId")
	marker := h.perfTracker.StartOperation("open_kit_request", kitID)
	defer marker.Complete()

	sess, created, err := h.sessions.Open(c.Request.Context(), kitID)
	if err != nil {
		marker.SetError(err)
		h.logger.LogError(logging.ChannelSystem, "open-kit", err, kitID, nil)
		respondError(c, err)
		return
	}

	var preview string
	if err := sess.Do(c.Request.Context(), func() error {
		preview = sess.PreviewHTML()
		return nil
	}); err != nil {
		respondError(c, err)
		return
	}

	h.logger.Perf().Info("Performance for OpenKit request", "duration", time.Since(marker.StartTime), "kitId", kitID, "created", created)
	c.JSON(http.StatusOK, gin.H{
		"kitId":   kitID,
		"created": created,
		"state":   sess.Store().GetState(),
		"preview": preview,
	})
}

// CloseKit handles POST /api/v1/kits/:kitId/close
func (h *KitHandlers) CloseKit(c *gin.Context) {
	kitID := c.Param("kitId")
	if err := h.sessions.Close(c.Request.Context(), kitID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "kitId": kitID})
}

// GetState handles GET /api/v1/kits/:kitId/state
func (h *KitHandlers) GetState(c *gin.Context) {
	sess, err := h.sessions.Get(c.Param("kitId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"state": sess.Store().GetState(),
		"dirty": sess.Store().IsDirty(),
	})
}

type addComponentRequest struct {
	ID    string         `json:"id"`
	Type  string         `json:"type" binding:"required"`
	Props mediakit.Props `json:"props"`
}

// AddComponent handles POST /api/v1/kits/:kitId/components. Catalog defaults
// fill the props the request leaves out.
func (h *KitHandlers) AddComponent(c *gin.Context) {
	var req addComponentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
		return
	}
	comp := h.newComponent(req)
	if !inSession(c, h.sessions, func(sess *services.EditingSession) error {
		return sess.Store().AddComponent(comp)
	}) {
		return
	}
	stored, _ := h.storedComponent(c, comp.ID)
	c.JSON(http.StatusCreated, gin.H{"component": stored})
}

func (h *KitHandlers) newComponent(req addComponentRequest) *mediakit.Component {
	props := h.catalog.DefaultProps(req.Type)
	props.Merge(req.Props)
	id := req.ID
	if id == "" {
		id = services.NewComponentID()
	}
	return &mediakit.Component{ID: id, Type: req.Type, Props: props}
}

func (h *KitHandlers) storedComponent(c *gin.Context, id string) (*mediakit.Component, bool) {
	sess, err := h.sessions.Get(c.Param("kitId"))
	if err != nil {
		return nil, false
	}
	return sess.Store().Component(id)
}

// UpdateComponent handles PATCH /api/v1/kits/:kitId/components/:componentId
func (h *KitHandlers) UpdateComponent(c *gin.Context) {
	var req struct {
		Props mediakit.Props `json:"props"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
		return
	}
	id := c.Param("componentId")
	if !inSession(c, h.sessions, func(sess *services.EditingSession) error {
		return sess.Store().UpdateComponentProps(id, req.Props)
	}) {
		return
	}
	stored, _ := h.storedComponent(c, id)
	c.JSON(http.StatusOK, gin.H{"component": stored})
}

// DeleteComponent handles DELETE /api/v1/kits/:kitId/components/:componentId.
// Deleting an absent component succeeds with removed=false.
func (h *KitHandlers) DeleteComponent(c *gin.Context) {
	id := c.Param("componentId")
	var removed bool
	if !inSession(c, h.sessions, func(sess *services.EditingSession) error {
		removed = sess.Store().RemoveComponent(id)
		return nil
	}) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "componentId": id, "removed": removed})
}

// MoveComponent handles POST /api/v1/kits/:kitId/components/:componentId/move.
// A move past either end of the layout succeeds with moved=false.
func (h *KitHandlers) MoveComponent(c *gin.Context) {
	var req struct {
		Direction string `json:"direction" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
		return
	}
	direction, err := mediakit.ParseDirection(req.Direction)
	if err != nil {
		respondError(c, err)
		return
	}

	id := c.Param("componentId")
	var moved bool
	var layout []string
	if !inSession(c, h.sessions, func(sess *services.EditingSession) error {
		if _, ok := sess.Store().Component(id); !ok {
			return fmt.Errorf("%w: %q", mediakit.ErrNotFound, id)
		}
		moved = sess.Store().MoveComponent(id, direction)
		layout = sess.Store().GetState().Layout
		return nil
	}) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"moved": moved, "layout": layout})
}

// SetLayout handles PUT /api/v1/kits/:kitId/layout. The applied layout may
// differ from the request after repair.
func (h *KitHandlers) SetLayout(c *gin.Context) {
	var req struct {
		Layout []string `json:"layout"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
		return
	}
	var applied []string
	if !inSession(c, h.sessions, func(sess *services.EditingSession) error {
		applied = sess.Store().SetLayout(req.Layout)
		return nil
	}) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"layout": applied})
}

// UpdateSettings handles PUT /api/v1/kits/:kitId/settings. A null value
// removes the key.
func (h *KitHandlers) UpdateSettings(c *gin.Context) {
	var req struct {
		Settings map[string]mediakit.Value `json:"settings" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
		return
	}
	var settings map[string]mediakit.Value
	if !inSession(c, h.sessions, func(sess *services.EditingSession) error {
		sess.Store().UpdateGlobalSettings(req.Settings)
		settings = sess.Store().GetState().GlobalSettings
		return nil
	}) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"globalSettings": settings})
}

// batchOperation is one step of a batch request.
type batchOperation struct {
	Op        string                    `json:"op"`
	ID        string                    `json:"id"`
	Type      string                    `json:"type"`
	Props     mediakit.Props            `json:"props"`
	Direction string                    `json:"direction"`
	Layout    []string                  `json:"layout"`
	Settings  map[string]mediakit.Value `json:"settings"`
}

// Batch handles POST /api/v1/kits/:kitId/batch. The operations run in one
// state batch and subscribers see a single change. The batch stops at the
// first failing operation; the steps before it stay applied.
func (h *KitHandlers) Batch(c *gin.Context) {
	var req struct {
		Operations []batchOperation `json:"operations" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
		return
	}

	kitID := c.Param("kitId")
	marker := h.perfTracker.StartOperation("batch_request", kitID)
	defer marker.Complete()
	marker.AddMetadata("operations", len(req.Operations))

	applied := 0
	var state *mediakit.State
	ok := inSession(c, h.sessions, func(sess *services.EditingSession) error {
		store := sess.Store()
		err := store.Batch(func() error {
			for i, op := range req.Operations {
				if err := h.applyOperation(store, op); err != nil {
					return fmt.Errorf("operation %d (%s): %w", i, op.Op, err)
				}
				applied++
			}
			return nil
		})
		state = store.GetState()
		return err
	})
	if !ok {
		marker.SetSuccess(false)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applied": applied, "state": state})
}

func (h *KitHandlers) applyOperation(store *services.StateStore, op batchOperation) error {
	switch op.Op {
	case "add":
		if op.Type == "" {
			return fmt.Errorf("%w: component type is required", mediakit.ErrInvalidArgument)
		}
		return store.AddComponent(h.newComponent(addComponentRequest{ID: op.ID, Type: op.Type, Props: op.Props}))
	case "update":
		return store.UpdateComponentProps(op.ID, op.Props)
	case "remove":
		store.RemoveComponent(op.ID)
		return nil
	case "move":
		direction, err := mediakit.ParseDirection(op.Direction)
		if err != nil {
			return err
		}
		store.MoveComponent(op.ID, direction)
		return nil
	case "layout":
		store.SetLayout(op.Layout)
		return nil
	case "settings":
		store.UpdateGlobalSettings(op.Settings)
		return nil
	default:
		return fmt.Errorf("%w: unknown operation %q", mediakit.ErrInvalidArgument, op.Op)
	}
}

// SaveKit handles POST /api/v1/kits/:kitId/save
func (h *KitHandlers) SaveKit(c *gin.Context) {
	kitID := c.Param("kitId")
	if err := h.sessions.Save(c.Request.Context(), kitID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "kitId": kitID, "savedAt": time.Now().UTC()})
}

// LoadKit handles POST /api/v1/kits/:kitId/load. Unsaved edits are replaced
// by the stored document.
func (h *KitHandlers) LoadKit(c *gin.Context) {
	var state *mediakit.State
	if !inSession(c, h.sessions, func(sess *services.EditingSession) error {
		if err := sess.Store().LoadStateFromStorage(c.Request.Context()); err != nil {
			return err
		}
		state = sess.Store().GetState()
		return nil
	}) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

// GetPreview handles GET /api/v1/kits/:kitId/preview
func (h *KitHandlers) GetPreview(c *gin.Context) {
	var markup string
	if !inSession(c, h.sessions, func(sess *services.EditingSession) error {
		markup = sess.PreviewHTML()
		return nil
	}) {
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(markup))
}

// VerifyRender handles GET /api/v1/kits/:kitId/render/verify/:componentId
func (h *KitHandlers) VerifyRender(c *gin.Context) {
	id := c.Param("componentId")
	var result gin.H
	if !inSession(c, h.sessions, func(sess *services.EditingSession) error {
		v := sess.Render().VerifyUniqueElement(id)
		result = gin.H{"componentId": id, "verification": v, "registered": sess.Render().LocateComponent(id) != nil}
		return nil
	}) {
		return
	}
	c.JSON(http.StatusOK, result)
}

// CleanupRender handles POST /api/v1/kits/:kitId/render/cleanup
func (h *KitHandlers) CleanupRender(c *gin.Context) {
	var removed int
	if !inSession(c, h.sessions, func(sess *services.EditingSession) error {
		removed = sess.Render().ForceCleanupAllDuplicates()
		return nil
	}) {
		return
	}
	h.logger.Render().Info("Duplicate sweep requested", "kitId", c.Param("kitId"), "removed", removed)
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// GetCatalog handles GET /api/v1/catalog
func (h *KitHandlers) GetCatalog(c *gin.Context) {
	types := make([]*catalog.ComponentType, 0)
	for _, name := range h.catalog.Types() {
		if ct, ok := h.catalog.Get(name); ok {
			types = append(types, ct)
		}
	}
	c.JSON(http.StatusOK, gin.H{"components": types})
}
