package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AtRiskMedia/mediakit-go/internal/domain/entities/mediakit"
	"github.com/AtRiskMedia/mediakit-go/internal/domain/events"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/observability/performance"
)

// Bulk operation names.
const (
	BulkSync  = "sync"
	BulkClear = "clear"
	BulkReset = "reset"
	BulkUndo  = "undo"
)

// ExternalSource supplies generated component content for a kit.
type ExternalSource interface {
	FetchComponents(ctx context.Context, kitID string) ([]mediakit.ExternalComponent, error)
}

// Prompt describes a bulk operation to the user before it runs.
type Prompt struct {
	Operation   string `json:"operation"`
	Message     string `json:"message"`
	Destructive bool   `json:"destructive"`
}

// ConfirmFunc answers a Prompt.
type ConfirmFunc func(Prompt) bool

// AlwaysConfirm approves every prompt.
func AlwaysConfirm(Prompt) bool { return true }

// BulkSnapshot is the document as it was before a bulk operation.
type BulkSnapshot struct {
	Operation   string          `json:"operation"`
	Description string          `json:"description"`
	Timestamp   time.Time       `json:"timestamp"`
	State       *mediakit.State `json:"-"`
}

// BulkOperationController runs whole-document operations with confirmation,
// progress and a bounded single-step undo history of its own.
type BulkOperationController struct {
	kitID  string
	store  *StateStore
	source ExternalSource
	bus    *events.Bus
	logger *logging.ChanneledLogger
	perf   *performance.Tracker
	newID  func() string
	limit  int

	mu      sync.Mutex
	history []BulkSnapshot
}

func NewBulkOperationController(kitID string, store *StateStore, source ExternalSource, bus *events.Bus, logger *logging.ChanneledLogger, perf *performance.Tracker, newID func() string, limit int) *BulkOperationController {
	if limit <= 0 {
		limit = 10
	}
	return &BulkOperationController{
		kitID:  kitID,
		store:  store,
		source: source,
		bus:    bus,
		logger: logger,
		perf:   perf,
		newID:  newID,
		limit:  limit,
	}
}

// SyncAllFromExternalSource merges external content into components of the
// same type and adds the types the kit does not have yet.
func (b *BulkOperationController) SyncAllFromExternalSource(ctx context.Context, confirm ConfirmFunc) error {
	marker := b.perf.StartOperation("bulk:sync", b.kitID)
	defer marker.Complete()

	incoming, err := b.fetch(ctx, BulkSync)
	if err != nil {
		marker.SetError(err)
		return err
	}
	prompt := Prompt{
		Operation: BulkSync,
		Message:   fmt.Sprintf("Sync %d components from your generated content? Matching components will be updated.", len(incoming)),
	}
	if !b.confirm(confirm, prompt) {
		return mediakit.ErrCancelled
	}
	snap := b.pushSnapshot(BulkSync, fmt.Sprintf("Sync of %d components", len(incoming)))

	current := b.store.GetState()
	claimed := make(map[string]bool)
	added, updated := 0, 0
	err = b.store.Batch(func() error {
		for i, ext := range incoming {
			if target := firstOfType(current, ext.Type, claimed); target != "" {
				claimed[target] = true
				if err := b.store.UpdateComponentProps(target, ext.Props); err != nil {
					return err
				}
				updated++
			} else {
				if err := b.store.AddComponent(&mediakit.Component{ID: b.newID(), Type: ext.Type, Props: ext.Props.Clone()}); err != nil {
					return err
				}
				added++
			}
			b.progress(BulkSync, "apply", i+1, len(incoming))
		}
		return nil
	})
	if err != nil {
		marker.SetError(err)
		b.rollback(snap)
		b.notice(events.NoticeError, fmt.Sprintf("Sync failed: %v", err))
		return err
	}

	marker.AddMetadata("added", added)
	marker.AddMetadata("updated", updated)
	b.logger.Bulk().Info("Bulk sync applied", "kitId", b.kitID, "added", added, "updated", updated)
	b.notice(events.NoticeSuccess, fmt.Sprintf("Synced %d components (%d added, %d updated)", len(incoming), added, updated))
	return nil
}

// ClearAll removes every component.
func (b *BulkOperationController) ClearAll(confirm ConfirmFunc) error {
	marker := b.perf.StartOperation("bulk:clear", b.kitID)
	defer marker.Complete()

	current := b.store.GetState()
	if current.IsEmpty() {
		b.notice(events.NoticeInfo, "There is nothing to clear")
		return mediakit.ErrNothingToClear
	}
	prompt := Prompt{
		Operation:   BulkClear,
		Message:     fmt.Sprintf("Remove all %d components from this media kit?", len(current.Components)),
		Destructive: true,
	}
	if !b.confirm(confirm, prompt) {
		return mediakit.ErrCancelled
	}
	b.pushSnapshot(BulkClear, fmt.Sprintf("Clear of %d components", len(current.Components)))

	ids := append([]string(nil), current.Layout...)
	_ = b.store.Batch(func() error {
		for i, id := range ids {
			b.store.RemoveComponent(id)
			b.progress(BulkClear, "remove", i+1, len(ids))
		}
		return nil
	})

	b.logger.Bulk().Info("Media kit cleared", "kitId", b.kitID, "removed", len(ids))
	b.notice(events.NoticeSuccess, fmt.Sprintf("Removed %d components", len(ids)))
	return nil
}

// ResetToExternalSource discards local edits and rebuilds the kit from the
// external source. Global settings are kept.
func (b *BulkOperationController) ResetToExternalSource(ctx context.Context, confirm ConfirmFunc) error {
	marker := b.perf.StartOperation("bulk:reset", b.kitID)
	defer marker.Complete()

	incoming, err := b.fetch(ctx, BulkReset)
	if err != nil {
		marker.SetError(err)
		return err
	}
	prompt := Prompt{
		Operation:   BulkReset,
		Message:     fmt.Sprintf("Replace the whole media kit with %d generated components? Local edits will be overwritten.", len(incoming)),
		Destructive: true,
	}
	if !b.confirm(confirm, prompt) {
		return mediakit.ErrCancelled
	}
	snap := b.pushSnapshot(BulkReset, "Reset to generated content")

	current := b.store.GetState()
	err = b.store.Batch(func() error {
		for _, id := range current.Layout {
			b.store.RemoveComponent(id)
		}
		b.progress(BulkReset, "clear", 0, len(incoming))
		for i, ext := range incoming {
			if err := b.store.AddComponent(&mediakit.Component{ID: b.newID(), Type: ext.Type, Props: ext.Props.Clone()}); err != nil {
				return err
			}
			b.progress(BulkReset, "apply", i+1, len(incoming))
		}
		return nil
	})
	if err != nil {
		marker.SetError(err)
		b.rollback(snap)
		b.notice(events.NoticeError, fmt.Sprintf("Reset failed: %v", err))
		return err
	}

	b.logger.Bulk().Info("Media kit reset", "kitId", b.kitID, "components", len(incoming))
	b.notice(events.NoticeSuccess, fmt.Sprintf("Reset to %d generated components", len(incoming)))
	return nil
}

// UndoLastBulkOperation restores the document saved before the most recent
// bulk operation.
func (b *BulkOperationController) UndoLastBulkOperation() error {
	b.mu.Lock()
	if len(b.history) == 0 {
		b.mu.Unlock()
		b.notice(events.NoticeInfo, "No bulk operation to undo")
		return mediakit.ErrNoSnapshot
	}
	snap := b.history[len(b.history)-1]
	b.history = b.history[:len(b.history)-1]
	b.mu.Unlock()

	b.progress(BulkUndo, "restore", 0, 0)
	b.store.ReplaceState(snap.State)
	b.logger.Bulk().Info("Bulk operation undone", "kitId", b.kitID, "operation", snap.Operation)
	b.notice(events.NoticeSuccess, "Undid "+snap.Description)
	return nil
}

// History lists snapshots newest first.
func (b *BulkOperationController) History() []BulkSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]BulkSnapshot, 0, len(b.history))
	for i := len(b.history) - 1; i >= 0; i-- {
		entry := b.history[i]
		entry.State = entry.State.Clone()
		out = append(out, entry)
	}
	return out
}

func (b *BulkOperationController) fetch(ctx context.Context, operation string) ([]mediakit.ExternalComponent, error) {
	if b.source == nil {
		b.notice(events.NoticeWarning, "No generated content is available for this media kit")
		return nil, mediakit.ErrNothingToSync
	}
	b.progress(operation, "fetch", 0, 0)
	incoming, err := b.source.FetchComponents(ctx, b.kitID)
	if err != nil {
		b.logger.LogError(logging.ChannelBulk, operation, err, b.kitID, nil)
		b.notice(events.NoticeError, "Could not load generated content")
		return nil, fmt.Errorf("%w: fetch external components: %v", mediakit.ErrPersistence, err)
	}
	var usable []mediakit.ExternalComponent
	for _, ext := range incoming {
		if ext.Type != "" {
			usable = append(usable, ext)
		}
	}
	if len(usable) == 0 {
		b.notice(events.NoticeWarning, "No generated content is available for this media kit")
		return nil, mediakit.ErrNothingToSync
	}
	return usable, nil
}

func (b *BulkOperationController) confirm(confirm ConfirmFunc, prompt Prompt) bool {
	if confirm == nil || !confirm(prompt) {
		b.logger.Bulk().Info("Bulk operation cancelled", "kitId", b.kitID, "operation", prompt.Operation)
		return false
	}
	return true
}

func (b *BulkOperationController) pushSnapshot(operation, description string) BulkSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	snap := BulkSnapshot{
		Operation:   operation,
		Description: description,
		Timestamp:   time.Now(),
		State:       b.store.GetState(),
	}
	b.history = append(b.history, snap)
	if len(b.history) > b.limit {
		b.history = b.history[len(b.history)-b.limit:]
	}
	return snap
}

// rollback restores the document from snap after a partial failure and
// drops snap from the history, since there is nothing left to undo.
func (b *BulkOperationController) rollback(snap BulkSnapshot) {
	b.mu.Lock()
	if n := len(b.history); n > 0 && b.history[n-1].State == snap.State {
		b.history = b.history[:n-1]
	}
	b.mu.Unlock()
	b.store.ReplaceState(snap.State)
	b.logger.Bulk().Warn("Bulk operation rolled back", "kitId", b.kitID, "operation", snap.Operation)
}

func (b *BulkOperationController) progress(operation, stage string, done, total int) {
	b.bus.Publish(events.BulkProgress{Operation: operation, Stage: stage, Done: done, Total: total})
}

func (b *BulkOperationController) notice(level events.NoticeLevel, message string) {
	b.bus.Publish(events.Notice{Level: level, Message: message})
}

func firstOfType(st *mediakit.State, componentType string, claimed map[string]bool) string {
	for _, comp := range st.ComponentsInLayout() {
		if comp.Type == componentType && !claimed[comp.ID] {
			return comp.ID
		}
	}
	return ""
}
